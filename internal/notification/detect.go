package notification

import (
	"encoding/json"
	"fmt"
	"time"

	"example.com/engagement/internal/domain"
	"example.com/engagement/internal/streak"
)

const (
	deadlineHorizon = 24 * time.Hour
	atRiskStreak    = 3
)

// Candidate is a detected notifiable condition before routing.
type Candidate struct {
	Type     domain.NotificationType
	Title    string
	Message  string
	Metadata string
}

// Detect returns the candidates raised by a user's open tasks and habits.
// Critical tasks due within the next 24 hours raise critical_deadline; habits
// with a live streak of at least three days not yet completed today raise
// habit_at_risk.
func Detect(activity domain.UserActivity, now time.Time) []Candidate {
	candidates := make([]Candidate, 0)
	for _, task := range activity.OpenTasks {
		if task.Status == domain.TaskStatusDone || task.Priority != domain.TaskPriorityCritical || task.DueDate == nil {
			continue
		}
		left := task.DueDate.Sub(now)
		if left <= 0 || left >= deadlineHorizon {
			continue
		}
		candidates = append(candidates, Candidate{
			Type:     domain.NotificationCriticalDeadline,
			Title:    "Critical Objective at Risk",
			Message:  fmt.Sprintf("Operational deadline for %q is less than 24 hours away.", task.Title),
			Metadata: metadata("taskId", task.ID),
		})
	}

	for _, habit := range activity.Habits {
		current := streak.Calculate(habit.Logs, now)
		if current < atRiskStreak || streak.CompletedOn(habit.Logs, now) {
			continue
		}
		candidates = append(candidates, Candidate{
			Type:     domain.NotificationHabitAtRisk,
			Title:    "Neural Pattern Decoupling",
			Message:  fmt.Sprintf("Your %d-day streak for %q is at risk of termination.", current, habit.Title),
			Metadata: metadata("habitId", habit.ID),
		})
	}
	return candidates
}

// metadata renders a single-key correlation payload as canonical JSON.
func metadata(key, value string) string {
	body, err := json.Marshal(map[string]string{key: value})
	if err != nil {
		return "{}"
	}
	return string(body)
}
