package domain

import (
	"context"
	"time"
)

// UserStore reads users with the relations needed for evaluation and applies
// progress and settings updates.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (User, error)
	GetUserActivity(ctx context.Context, userID string) (UserActivity, error)
	// UpdateProgress swaps prev for next and returns ErrProgressConflict when
	// the stored progress no longer equals prev.
	UpdateProgress(ctx context.Context, userID string, prev, next UserProgress) error
	UpdateSettings(ctx context.Context, userID string, settings Settings) error
}

// TeamDirectory resolves team memberships.
type TeamDirectory interface {
	ListTeamIDs(ctx context.Context, userID string) ([]string, error)
}

// ActivitySink appends rows to a team activity feed.
type ActivitySink interface {
	AppendActivity(ctx context.Context, activity TeamActivity) error
}

// TeamFeed reads a team's activity feed, newest first.
type TeamFeed interface {
	ListTeamActivity(ctx context.Context, teamID string, limit int) ([]TeamActivity, error)
}

// AchievementStore persists definitions and unlock records. Definitions are
// listed in their natural retrieval order (creation time, then id).
type AchievementStore interface {
	ListDefinitions(ctx context.Context) ([]AchievementDefinition, error)
	UpsertDefinition(ctx context.Context, def AchievementDefinition) (AchievementDefinition, error)
	ListUserAchievements(ctx context.Context, userID string) ([]UserAchievement, error)
	// UnlockAchievement inserts the record unless one already exists for the
	// (user, definition) pair, in which case the stored row is returned with
	// created=false.
	UnlockAchievement(ctx context.Context, unlock UserAchievement) (UserAchievement, bool, error)
}

// NotificationStore persists in-app notifications and the dispatch audit.
type NotificationStore interface {
	// CreateNotification returns false without writing when an unread
	// notification with the same user, type and metadata exists.
	CreateNotification(ctx context.Context, n Notification) (bool, error)
	ListNotifications(ctx context.Context, userID string, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
	AppendAudit(ctx context.Context, audit NotificationAudit) error
	// LatestAudit returns the newest audit row for (user, type) created at or
	// after since, or nil when there is none.
	LatestAudit(ctx context.Context, userID string, t NotificationType, since time.Time) (*NotificationAudit, error)
	ListAudit(ctx context.Context, userID string, cursor *Cursor, limit int) ([]NotificationAudit, *Cursor, error)
}

// TaskStore applies task transitions.
type TaskStore interface {
	// CompleteTask moves the task to done. transitioned is false when the
	// task was already done.
	CompleteTask(ctx context.Context, userID, taskID string, at time.Time) (task Task, transitioned bool, err error)
}

// HabitStore applies habit check-ins.
type HabitStore interface {
	// ToggleHabit creates a completed log for day or removes the existing one.
	// created reports which of the two happened.
	ToggleHabit(ctx context.Context, userID, habitID string, day time.Time) (created bool, err error)
}

// Store is the full persistence surface used by the engagement service.
type Store interface {
	UserStore
	TeamDirectory
	ActivitySink
	TeamFeed
	AchievementStore
	NotificationStore
	TaskStore
	HabitStore
}

// Fixtures writes the rows owned by the surrounding CRUD layer. Seeding and
// tests use it to populate a store.
type Fixtures interface {
	PutUser(ctx context.Context, user User) (User, error)
	PutTask(ctx context.Context, task Task) (Task, error)
	PutHabit(ctx context.Context, habit Habit) (Habit, error)
	AddTeamMember(ctx context.Context, teamID, userID string) error
}

// UTCDay truncates t to midnight UTC.
func UTCDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
