package outbox

import "example.com/engagement/internal/events"

const achievementUnlockedSchema = `{
  "type": "object",
  "title": "AchievementUnlocked",
  "properties": {
    "user_achievement_id": {"type": "string"},
    "user_id": {"type": "string"},
    "definition_id": {"type": "string"},
    "key": {"type": "string"},
    "reason": {"type": "string"},
    "unlocked_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_achievement_id", "user_id", "definition_id", "key", "unlocked_at"],
  "additionalProperties": false
}`

const teamActivityRecordedSchema = `{
  "type": "object",
  "title": "TeamActivityRecorded",
  "properties": {
    "activity_id": {"type": "string"},
    "team_id": {"type": "string"},
    "actor_id": {"type": "string"},
    "type": {"type": "string"},
    "metadata": {"type": "object"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "team_id", "actor_id", "type", "occurred_at"],
  "additionalProperties": false
}`

const notificationDispatchedSchema = `{
  "type": "object",
  "title": "NotificationDispatched",
  "properties": {
    "audit_id": {"type": "string"},
    "user_id": {"type": "string"},
    "type": {"type": "string"},
    "channel": {"type": "string", "enum": ["in_app", "email", "suppressed"]},
    "reason": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["audit_id", "user_id", "type", "channel", "occurred_at"],
  "additionalProperties": false
}`

// schemaForEvent returns the JSON schema registered for an event type.
func schemaForEvent(eventType string) (string, bool) {
	switch eventType {
	case events.TypeAchievementUnlocked:
		return achievementUnlockedSchema, true
	case events.TypeTeamActivityRecorded:
		return teamActivityRecordedSchema, true
	case events.TypeNotificationDispatched:
		return notificationDispatchedSchema, true
	}
	return "", false
}
