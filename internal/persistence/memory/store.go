// Package memory provides an in-process implementation of every store
// contract for local development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/engagement/internal/domain"
)

// Option configures the Store.
type Option func(*Store)

// WithClock overrides the time source used to stamp rows without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store keeps all engagement state in memory. Uniqueness rules mirror the
// Postgres schema: one unlock per (user, definition) and one unread
// notification per (user, type, metadata).
type Store struct {
	mu sync.RWMutex

	users         map[string]domain.User
	tasks         map[string]domain.Task
	taskOrder     []string
	habits        map[string]domain.Habit
	habitOrder    []string
	memberships   map[string][]string
	activities    []domain.TeamActivity
	definitions   []domain.AchievementDefinition
	unlocks       map[string]domain.UserAchievement
	notifications []domain.Notification
	audits        []domain.NotificationAudit

	now func() time.Time
}

var (
	_ domain.Store    = (*Store)(nil)
	_ domain.Fixtures = (*Store)(nil)
)

// NewStore constructs an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		users:       make(map[string]domain.User),
		tasks:       make(map[string]domain.Task),
		habits:      make(map[string]domain.Habit),
		memberships: make(map[string][]string),
		unlocks:     make(map[string]domain.UserAchievement),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return s.now().UTC()
	}
	return t.UTC()
}

// PutUser inserts or replaces a user. Missing ids and levels are filled in;
// a user without channel settings gets the defaults, keeping its quiet hours.
func (s *Store) PutUser(_ context.Context, user domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(user.ID) == "" {
		user.ID = uuid.NewString()
	}
	if user.Progress.Level < 1 {
		user.Progress.Level = 1
	}
	if user.Settings.Channels == nil {
		quiet := user.Settings.QuietHours
		user.Settings = domain.DefaultSettings()
		user.Settings.QuietHours = quiet
	}
	user.Settings.QuietHours = domain.NormalizeQuietHours(user.Settings.QuietHours)
	user.CreatedAt = s.stamp(user.CreatedAt)
	s.users[user.ID] = user
	return user, nil
}

// PutTask inserts or replaces a task owned by an existing user.
func (s *Store) PutTask(_ context.Context, task domain.Task) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[task.UserID]; !ok {
		return domain.Task{}, fmt.Errorf("user %s: %w", task.UserID, domain.ErrNotFound)
	}
	if strings.TrimSpace(task.ID) == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = domain.TaskStatusTodo
	}
	if task.Priority == "" {
		task.Priority = domain.TaskPriorityMedium
	}
	task.CreatedAt = s.stamp(task.CreatedAt)
	if _, exists := s.tasks[task.ID]; !exists {
		s.taskOrder = append(s.taskOrder, task.ID)
	}
	s.tasks[task.ID] = task
	return task, nil
}

// PutHabit inserts or replaces a habit owned by an existing user.
func (s *Store) PutHabit(_ context.Context, habit domain.Habit) (domain.Habit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[habit.UserID]; !ok {
		return domain.Habit{}, fmt.Errorf("user %s: %w", habit.UserID, domain.ErrNotFound)
	}
	if strings.TrimSpace(habit.ID) == "" {
		habit.ID = uuid.NewString()
	}
	if habit.Frequency == "" {
		habit.Frequency = "daily"
	}
	habit.CreatedAt = s.stamp(habit.CreatedAt)
	logs := make([]domain.HabitLog, 0, len(habit.Logs))
	for _, l := range habit.Logs {
		l.HabitID = habit.ID
		l.Date = domain.UTCDay(l.Date)
		logs = append(logs, l)
	}
	habit.Logs = logs
	if _, exists := s.habits[habit.ID]; !exists {
		s.habitOrder = append(s.habitOrder, habit.ID)
	}
	s.habits[habit.ID] = habit
	return habit, nil
}

// AddTeamMember records that userID belongs to teamID.
func (s *Store) AddTeamMember(_ context.Context, teamID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.memberships[userID] {
		if existing == teamID {
			return nil
		}
	}
	s.memberships[userID] = append(s.memberships[userID], teamID)
	return nil
}

// Activities returns every appended team activity row in insertion order.
func (s *Store) Activities() []domain.TeamActivity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.TeamActivity, len(s.activities))
	copy(out, s.activities)
	return out
}

// GetUser implements domain.UserStore.
func (s *Store) GetUser(_ context.Context, userID string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return domain.User{}, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	return user, nil
}

// GetUserActivity implements domain.UserStore. Completed tasks are ordered by
// completion time, open tasks and habits by creation.
func (s *Store) GetUserActivity(_ context.Context, userID string) (domain.UserActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return domain.UserActivity{}, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}

	activity := domain.UserActivity{
		User:           user,
		CompletedTasks: []domain.Task{},
		OpenTasks:      []domain.Task{},
		Habits:         []domain.Habit{},
	}
	for _, id := range s.taskOrder {
		task := s.tasks[id]
		if task.UserID != userID {
			continue
		}
		if task.Status == domain.TaskStatusDone {
			activity.CompletedTasks = append(activity.CompletedTasks, task)
		} else {
			activity.OpenTasks = append(activity.OpenTasks, task)
		}
	}
	sort.SliceStable(activity.CompletedTasks, func(i, j int) bool {
		return completedAt(activity.CompletedTasks[i]).Before(completedAt(activity.CompletedTasks[j]))
	})

	for _, id := range s.habitOrder {
		habit := s.habits[id]
		if habit.UserID != userID {
			continue
		}
		logs := make([]domain.HabitLog, len(habit.Logs))
		copy(logs, habit.Logs)
		habit.Logs = logs
		activity.Habits = append(activity.Habits, habit)
	}
	return activity, nil
}

func completedAt(t domain.Task) time.Time {
	if t.CompletedAt != nil {
		return *t.CompletedAt
	}
	return t.CreatedAt
}

// UpdateProgress implements domain.UserStore.
func (s *Store) UpdateProgress(_ context.Context, userID string, prev, next domain.UserProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	if user.Progress != prev {
		return domain.ErrProgressConflict
	}
	user.Progress = next
	s.users[userID] = user
	return nil
}

// UpdateSettings implements domain.UserStore. The master switch is owned by
// the client preferences blob and is left untouched.
func (s *Store) UpdateSettings(_ context.Context, userID string, settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	channels := make(map[domain.NotificationType][]domain.Channel, len(settings.Channels))
	for t, list := range settings.Channels {
		channels[t] = append([]domain.Channel{}, list...)
	}
	user.Settings.Channels = channels
	user.Settings.QuietHours = domain.NormalizeQuietHours(settings.QuietHours)
	s.users[userID] = user
	return nil
}

// ListTeamIDs implements domain.TeamDirectory.
func (s *Store) ListTeamIDs(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.memberships[userID]))
	copy(out, s.memberships[userID])
	return out, nil
}

// AppendActivity implements domain.ActivitySink.
func (s *Store) AppendActivity(_ context.Context, activity domain.TeamActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(activity.ID) == "" {
		activity.ID = uuid.NewString()
	}
	activity.CreatedAt = s.stamp(activity.CreatedAt)
	s.activities = append(s.activities, activity)
	return nil
}

// ListTeamActivity implements domain.TeamFeed.
func (s *Store) ListTeamActivity(_ context.Context, teamID string, limit int) ([]domain.TeamActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.TeamActivity, 0)
	for i := len(s.activities) - 1; i >= 0; i-- {
		if s.activities[i].TeamID == teamID {
			out = append(out, s.activities[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListDefinitions implements domain.AchievementStore.
func (s *Store) ListDefinitions(_ context.Context) ([]domain.AchievementDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AchievementDefinition, len(s.definitions))
	copy(out, s.definitions)
	return out, nil
}

// UpsertDefinition implements domain.AchievementStore. Edits bump the version.
func (s *Store) UpsertDefinition(_ context.Context, def domain.AchievementDefinition) (domain.AchievementDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(string(def.Key)) == "" {
		return domain.AchievementDefinition{}, fmt.Errorf("%w: definition key is required", domain.ErrInvalidArgument)
	}
	now := s.now().UTC()
	for i, existing := range s.definitions {
		if existing.Key != def.Key {
			continue
		}
		existing.Title = def.Title
		existing.Description = def.Description
		existing.Icon = def.Icon
		existing.Category = def.Category
		existing.Target = def.Target
		existing.Version++
		existing.UpdatedAt = now
		s.definitions[i] = existing
		return existing, nil
	}

	def.ID = uuid.NewString()
	def.Version = 1
	def.CreatedAt = now
	def.UpdatedAt = now
	s.definitions = append(s.definitions, def)
	return def, nil
}

// ListUserAchievements implements domain.AchievementStore.
func (s *Store) ListUserAchievements(_ context.Context, userID string) ([]domain.UserAchievement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.UserAchievement{}
	for _, ua := range s.unlocks {
		if ua.UserID == userID {
			out = append(out, ua)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnlockedAt.Before(out[j].UnlockedAt) })
	return out, nil
}

// UnlockAchievement implements domain.AchievementStore.
func (s *Store) UnlockAchievement(_ context.Context, unlock domain.UserAchievement) (domain.UserAchievement, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := unlock.UserID + "|" + unlock.DefinitionID
	if existing, ok := s.unlocks[key]; ok {
		return existing, false, nil
	}
	if strings.TrimSpace(unlock.ID) == "" {
		unlock.ID = uuid.NewString()
	}
	unlock.UnlockedAt = s.stamp(unlock.UnlockedAt)
	s.unlocks[key] = unlock
	return unlock, true, nil
}

// CreateNotification implements domain.NotificationStore.
func (s *Store) CreateNotification(_ context.Context, n domain.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.notifications {
		if !existing.IsRead && existing.UserID == n.UserID && existing.Type == n.Type && existing.Metadata == n.Metadata {
			return false, nil
		}
	}
	if strings.TrimSpace(n.ID) == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = s.stamp(n.CreatedAt)
	s.notifications = append(s.notifications, n)
	return true, nil
}

// ListNotifications implements domain.NotificationStore, newest first.
func (s *Store) ListNotifications(_ context.Context, userID string, limit int) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.Notification{}
	for i := len(s.notifications) - 1; i >= 0; i-- {
		if s.notifications[i].UserID == userID {
			out = append(out, s.notifications[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkRead implements domain.NotificationStore.
func (s *Store) MarkRead(_ context.Context, userID, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notifications {
		if n.ID == notificationID && n.UserID == userID {
			s.notifications[i].IsRead = true
			return nil
		}
	}
	return fmt.Errorf("notification %s: %w", notificationID, domain.ErrNotFound)
}

// MarkAllRead implements domain.NotificationStore.
func (s *Store) MarkAllRead(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for i, n := range s.notifications {
		if n.UserID == userID && !n.IsRead {
			s.notifications[i].IsRead = true
			count++
		}
	}
	return count, nil
}

// AppendAudit implements domain.NotificationStore.
func (s *Store) AppendAudit(_ context.Context, audit domain.NotificationAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(audit.ID) == "" {
		audit.ID = uuid.NewString()
	}
	audit.CreatedAt = s.stamp(audit.CreatedAt)
	s.audits = append(s.audits, audit)
	return nil
}

// LatestAudit implements domain.NotificationStore.
func (s *Store) LatestAudit(_ context.Context, userID string, t domain.NotificationType, since time.Time) (*domain.NotificationAudit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.NotificationAudit
	for i := range s.audits {
		a := s.audits[i]
		if a.UserID != userID || a.Type != t || a.CreatedAt.Before(since) {
			continue
		}
		if latest == nil || !a.CreatedAt.Before(latest.CreatedAt) {
			found := a
			latest = &found
		}
	}
	return latest, nil
}

// ListAudit implements domain.NotificationStore, newest first.
func (s *Store) ListAudit(_ context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.NotificationAudit, *domain.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.NotificationAudit, 0)
	for _, a := range s.audits {
		if a.UserID == userID {
			matched = append(matched, a)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	results := make([]domain.NotificationAudit, 0, limit)
	for _, a := range matched {
		if cursor != nil && !before(a, *cursor) {
			continue
		}
		results = append(results, a)
		if limit > 0 && len(results) == limit {
			break
		}
	}

	var next *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return results, next, nil
}

// before reports whether a sorts strictly after the cursor position in
// newest-first order.
func before(a domain.NotificationAudit, c domain.Cursor) bool {
	if a.CreatedAt.Equal(c.CreatedAt) {
		return a.ID < c.ID
	}
	return a.CreatedAt.Before(c.CreatedAt)
}

// CompleteTask implements domain.TaskStore.
func (s *Store) CompleteTask(_ context.Context, userID, taskID string, at time.Time) (domain.Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok || task.UserID != userID {
		return domain.Task{}, false, fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
	}
	if task.Status == domain.TaskStatusDone {
		return task, false, nil
	}
	completed := at.UTC()
	task.Status = domain.TaskStatusDone
	task.CompletedAt = &completed
	s.tasks[taskID] = task
	return task, true, nil
}

// ToggleHabit implements domain.HabitStore.
func (s *Store) ToggleHabit(_ context.Context, userID, habitID string, day time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	habit, ok := s.habits[habitID]
	if !ok || habit.UserID != userID {
		return false, fmt.Errorf("habit %s: %w", habitID, domain.ErrNotFound)
	}
	d := domain.UTCDay(day)
	for i, l := range habit.Logs {
		if l.Date.Equal(d) {
			logs := make([]domain.HabitLog, 0, len(habit.Logs)-1)
			logs = append(logs, habit.Logs[:i]...)
			logs = append(logs, habit.Logs[i+1:]...)
			habit.Logs = logs
			s.habits[habitID] = habit
			return false, nil
		}
	}
	habit.Logs = append(append([]domain.HabitLog{}, habit.Logs...), domain.HabitLog{HabitID: habitID, Date: d, Completed: true})
	s.habits[habitID] = habit
	return true, nil
}
