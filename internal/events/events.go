// Package events defines the payloads published through the outbox.
package events

import "time"

// Event types.
const (
	TypeAchievementUnlocked    = "achievement.unlocked"
	TypeTeamActivityRecorded   = "team.activity_recorded"
	TypeNotificationDispatched = "notification.dispatched"
)

// Topics.
const (
	TopicAchievements  = "engagement_achievements"
	TopicTeamActivity  = "engagement_team_activity"
	TopicNotifications = "engagement_notifications"
)

// AchievementUnlocked is emitted once per persisted unlock.
type AchievementUnlocked struct {
	UserAchievementID string    `json:"user_achievement_id"`
	UserID            string    `json:"user_id"`
	DefinitionID      string    `json:"definition_id"`
	Key               string    `json:"key"`
	Reason            string    `json:"reason"`
	UnlockedAt        time.Time `json:"unlocked_at"`
}

// TeamActivityRecorded mirrors a row appended to a team feed.
type TeamActivityRecorded struct {
	ActivityID string         `json:"activity_id"`
	TeamID     string         `json:"team_id"`
	ActorID    string         `json:"actor_id"`
	Type       string         `json:"type"`
	Metadata   map[string]any `json:"metadata"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NotificationDispatched mirrors one channel-level audit row.
type NotificationDispatched struct {
	AuditID    string    `json:"audit_id"`
	UserID     string    `json:"user_id"`
	Type       string    `json:"type"`
	Channel    string    `json:"channel"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}
