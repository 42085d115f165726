// Package domain defines the entities, store contracts and error taxonomy
// shared by the engagement engine components.
package domain

import "time"

// XPSource identifies what kind of completion earned experience points.
type XPSource string

const (
	XPSourceTask  XPSource = "task"
	XPSourceHabit XPSource = "habit"
)

// Valid reports whether the source is one of the known completion sources.
func (s XPSource) Valid() bool {
	switch s {
	case XPSourceTask, XPSourceHabit:
		return true
	}
	return false
}

// UserProgress is the leveling state of a user. XP is always below the
// requirement of the next level once an award has been applied.
type UserProgress struct {
	XP    int64
	Level int
}

// User is the account view consumed by the engine.
type User struct {
	ID        string
	Email     string
	Name      string
	Progress  UserProgress
	CreatedAt time.Time
	Settings  Settings
}

// TaskPriority is the urgency assigned to a task by its owner.
type TaskPriority string

const (
	TaskPriorityLow      TaskPriority = "low"
	TaskPriorityMedium   TaskPriority = "medium"
	TaskPriorityHigh     TaskPriority = "high"
	TaskPriorityCritical TaskPriority = "critical"
)

// TaskStatus is the board column of a task.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
)

// Task is a unit of work owned by a user.
type Task struct {
	ID          string
	UserID      string
	Title       string
	Priority    TaskPriority
	Status      TaskStatus
	DueDate     *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// HabitLog records a habit check-in for one UTC calendar day.
type HabitLog struct {
	HabitID   string
	Date      time.Time
	Completed bool
}

// Habit is a recurring behaviour tracked through daily logs.
type Habit struct {
	ID        string
	UserID    string
	Title     string
	Frequency string
	CreatedAt time.Time
	Logs      []HabitLog
}

// UserActivity is a user together with the relations needed for evaluation.
// Stores return empty, non-nil slices when a relation has no rows.
type UserActivity struct {
	User           User
	CompletedTasks []Task
	OpenTasks      []Task
	Habits         []Habit
}

// TeamActivity is a row in a team's activity feed.
type TeamActivity struct {
	ID        string
	TeamID    string
	ActorID   string
	Type      string
	Metadata  map[string]any
	CreatedAt time.Time
}

// ActivityLevelUp is the team activity type emitted on level-up.
const ActivityLevelUp = "level_up"

// AchievementKey is the unique slug of an achievement definition.
type AchievementKey string

const (
	AchievementFirstStrike      AchievementKey = "first_strike"
	AchievementFieldAgent       AchievementKey = "field_agent"
	AchievementCriticalResponse AchievementKey = "critical_response"
	AchievementNeuralSyncBasic  AchievementKey = "neural_sync_basic"
	AchievementNeuralSyncElite  AchievementKey = "neural_sync_elite"
	AchievementRankAscension    AchievementKey = "rank_ascension"
	AchievementVanguard         AchievementKey = "vanguard"
)

// KnownAchievementKeys lists every key the evaluator has a metric for.
var KnownAchievementKeys = []AchievementKey{
	AchievementFirstStrike,
	AchievementFieldAgent,
	AchievementCriticalResponse,
	AchievementNeuralSyncBasic,
	AchievementNeuralSyncElite,
	AchievementRankAscension,
	AchievementVanguard,
}

// AchievementDefinition is the admin-managed description of a milestone.
type AchievementDefinition struct {
	ID          string
	Key         AchievementKey
	Title       string
	Description string
	Icon        string
	Category    string
	Target      int
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserAchievement is the unlock record for a (user, definition) pair.
type UserAchievement struct {
	ID             string
	UserID         string
	DefinitionID   string
	DefinitionKey  AchievementKey
	UnlockedAt     time.Time
	UnlockedReason string
}

// NotificationType classifies detected conditions.
type NotificationType string

const (
	NotificationCriticalDeadline NotificationType = "critical_deadline"
	NotificationHabitAtRisk      NotificationType = "habit_at_risk"
	NotificationSystemAlert      NotificationType = "system_alert"
)

// KnownNotificationTypes lists every type with a channel and priority mapping.
var KnownNotificationTypes = []NotificationType{
	NotificationCriticalDeadline,
	NotificationHabitAtRisk,
	NotificationSystemAlert,
}

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationCriticalDeadline, NotificationHabitAtRisk, NotificationSystemAlert:
		return true
	}
	return false
}

// Priority returns the delivery priority used for the type.
func (t NotificationType) Priority() Priority {
	switch t {
	case NotificationCriticalDeadline:
		return PriorityUrgent
	case NotificationHabitAtRisk:
		return PriorityHigh
	case NotificationSystemAlert:
		return PriorityMedium
	}
	return PriorityLow
}

// DefaultChannels returns the channels used when the user has no preference for t.
func (t NotificationType) DefaultChannels() []Channel {
	switch t {
	case NotificationCriticalDeadline:
		return []Channel{ChannelInApp, ChannelEmail}
	case NotificationHabitAtRisk:
		return []Channel{ChannelInApp}
	case NotificationSystemAlert:
		return []Channel{ChannelInApp}
	}
	return nil
}

// Priority is the delivery urgency of a notification.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Channel is a delivery route. ChannelSuppressed only appears in audit rows.
type Channel string

const (
	ChannelInApp      Channel = "in_app"
	ChannelEmail      Channel = "email"
	ChannelSuppressed Channel = "suppressed"
)

// Deliverable reports whether c can be configured as a delivery channel.
func (c Channel) Deliverable() bool {
	return c == ChannelInApp || c == ChannelEmail
}

// Notification is an in-app inbox item.
type Notification struct {
	ID        string
	UserID    string
	Type      NotificationType
	Title     string
	Message   string
	Priority  Priority
	Metadata  string
	IsRead    bool
	CreatedAt time.Time
}

// NotificationAudit is an append-only record of one channel-level dispatch attempt.
type NotificationAudit struct {
	ID        string
	UserID    string
	Type      NotificationType
	Channel   Channel
	Reason    string
	CreatedAt time.Time
}

// Cursor models the pagination token for time-ordered listings.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}
