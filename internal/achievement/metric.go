package achievement

import (
	"fmt"
	"strings"
	"time"

	"example.com/engagement/internal/domain"
	"example.com/engagement/internal/streak"
)

// Metric names the live value a definition's progress is read from.
type Metric int

const (
	MetricNone Metric = iota
	MetricCompletedTasks
	MetricCriticalTasks
	MetricMaxStreak
	MetricLevel
	MetricAccountAgeDays
)

const neuralSyncPrefix = "neural_sync_"

// MetricFor maps a definition key to the metric its progress reads. Keys
// without a mapping report MetricNone and never progress.
func MetricFor(key domain.AchievementKey) Metric {
	switch key {
	case domain.AchievementFirstStrike, domain.AchievementFieldAgent:
		return MetricCompletedTasks
	case domain.AchievementCriticalResponse:
		return MetricCriticalTasks
	case domain.AchievementNeuralSyncBasic, domain.AchievementNeuralSyncElite:
		return MetricMaxStreak
	case domain.AchievementRankAscension:
		return MetricLevel
	case domain.AchievementVanguard:
		return MetricAccountAgeDays
	}
	if strings.HasPrefix(string(key), neuralSyncPrefix) {
		return MetricMaxStreak
	}
	return MetricNone
}

// Stats are the live values gathered for one user.
type Stats struct {
	CompletedTasks int
	CriticalTasks  int
	MaxStreak      int
	Level          int
	AccountAgeDays int
	FirstTaskTitle string
}

// Collect derives Stats from a user's activity as of now.
func Collect(activity domain.UserActivity, now time.Time) Stats {
	stats := Stats{
		CompletedTasks: len(activity.CompletedTasks),
		MaxStreak:      streak.Max(activity.Habits, now),
		Level:          activity.User.Progress.Level,
		AccountAgeDays: accountAgeDays(activity.User.CreatedAt, now),
	}
	for _, t := range activity.CompletedTasks {
		if t.Priority == domain.TaskPriorityCritical {
			stats.CriticalTasks++
		}
	}
	if len(activity.CompletedTasks) > 0 {
		stats.FirstTaskTitle = activity.CompletedTasks[0].Title
	}
	return stats
}

// Value returns the stat backing m.
func (s Stats) Value(m Metric) int {
	switch m {
	case MetricCompletedTasks:
		return s.CompletedTasks
	case MetricCriticalTasks:
		return s.CriticalTasks
	case MetricMaxStreak:
		return s.MaxStreak
	case MetricLevel:
		return s.Level
	case MetricAccountAgeDays:
		return s.AccountAgeDays
	}
	return 0
}

// Reason renders the unlock message for key from the live stats.
func Reason(key domain.AchievementKey, s Stats) string {
	switch key {
	case domain.AchievementFirstStrike:
		title := s.FirstTaskTitle
		if title == "" {
			title = "Initial Ops"
		}
		return fmt.Sprintf("Neutralized first tactical objective: %s", title)
	case domain.AchievementFieldAgent:
		return fmt.Sprintf("Concluded %d distinct missions.", s.CompletedTasks)
	case domain.AchievementCriticalResponse:
		return fmt.Sprintf("Handled %d critical priority operations.", s.CriticalTasks)
	case domain.AchievementNeuralSyncElite:
		return fmt.Sprintf("Reached elite synchronization depth (%d days).", s.MaxStreak)
	case domain.AchievementRankAscension:
		return fmt.Sprintf("Ascended to authority rank %d.", s.Level)
	case domain.AchievementVanguard:
		return fmt.Sprintf("Link active for %d deployment cycles.", s.AccountAgeDays)
	}
	if MetricFor(key) == MetricMaxStreak {
		return fmt.Sprintf("Held a consistent neural link for %d cycles.", s.MaxStreak)
	}
	return ""
}

func accountAgeDays(createdAt, now time.Time) int {
	if createdAt.IsZero() || now.Before(createdAt) {
		return 0
	}
	return int(now.Sub(createdAt) / (24 * time.Hour))
}
