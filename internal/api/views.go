package api

import (
	"time"

	"example.com/engagement/internal/domain"
	"example.com/engagement/internal/leveling"
)

// ProfileView is the response body for GET /v1/me/profile.
type ProfileView struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	XP          int64     `json:"xp"`
	Level       int       `json:"level"`
	NextLevelXP int64     `json:"next_level_xp"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProgressView describes leveling state after an award.
type ProgressView struct {
	XP          int64 `json:"xp"`
	Level       int   `json:"level"`
	NextLevelXP int64 `json:"next_level_xp"`
	LeveledUp   bool  `json:"leveled_up"`
}

// AchievementView merges a definition with the caller's unlock state.
type AchievementView struct {
	ID             string     `json:"id"`
	Key            string     `json:"key"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Icon           string     `json:"icon,omitempty"`
	Category       string     `json:"category,omitempty"`
	IsUnlocked     bool       `json:"is_unlocked"`
	Progress       int        `json:"progress"`
	Target         int        `json:"target"`
	UnlockedAt     *time.Time `json:"unlocked_at,omitempty"`
	UnlockedReason string     `json:"unlocked_reason,omitempty"`
	Version        int        `json:"version"`
}

// ListAchievementsResponse packages achievement views.
type ListAchievementsResponse struct {
	Items []AchievementView `json:"items"`
}

// NotificationView is an inbox item.
type NotificationView struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Priority  string    `json:"priority"`
	Metadata  string    `json:"metadata,omitempty"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// ListNotificationsResponse packages inbox items.
type ListNotificationsResponse struct {
	Items []NotificationView `json:"items"`
}

// MarkAllReadResponse reports how many notifications changed.
type MarkAllReadResponse struct {
	Updated int `json:"updated"`
}

// AuditView is one channel-level dispatch record.
type AuditView struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Channel   string    `json:"channel"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// ListAuditResponse packages a page of audit rows.
type ListAuditResponse struct {
	Items      []AuditView `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// UpdateSettingsRequest is the payload for PUT /v1/me/settings. Omitted
// fields keep their stored values.
type UpdateSettingsRequest struct {
	Channels   map[string][]string `json:"channels,omitempty"`
	QuietHours *domain.QuietHours  `json:"quiet_hours,omitempty"`
}

// SettingsView is the stored notification configuration.
type SettingsView struct {
	NotificationsEnabled bool                `json:"notifications_enabled"`
	Channels             map[string][]string `json:"channels"`
	QuietHours           domain.QuietHours   `json:"quiet_hours"`
}

// CompleteTaskResponse describes a task completion.
type CompleteTaskResponse struct {
	TaskID      string        `json:"task_id"`
	Status      string        `json:"status"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Progress    *ProgressView `json:"progress,omitempty"`
}

// ToggleHabitRequest is the optional payload for a habit toggle.
type ToggleHabitRequest struct {
	Date string `json:"date"`
}

// ToggleHabitResponse describes a habit check-in change.
type ToggleHabitResponse struct {
	HabitID   string        `json:"habit_id"`
	Date      string        `json:"date"`
	Completed bool          `json:"completed"`
	Progress  *ProgressView `json:"progress,omitempty"`
}

// UpsertDefinitionRequest is the payload for PUT /v1/admin/achievements/{key}.
type UpsertDefinitionRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Category    string `json:"category"`
	Target      int    `json:"target"`
}

// DefinitionView is a stored achievement definition.
type DefinitionView struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Icon        string    `json:"icon,omitempty"`
	Category    string    `json:"category,omitempty"`
	Target      int       `json:"target"`
	Version     int       `json:"version"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toNotificationView(n domain.Notification) NotificationView {
	return NotificationView{
		ID:        n.ID,
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		Priority:  string(n.Priority),
		Metadata:  n.Metadata,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}

func toProgressView(r *leveling.Result) *ProgressView {
	if r == nil {
		return nil
	}
	return &ProgressView{
		XP:          r.XP,
		Level:       r.Level,
		NextLevelXP: r.NextLevelXP,
		LeveledUp:   r.LeveledUp(),
	}
}

func toSettingsView(s domain.Settings) SettingsView {
	channels := make(map[string][]string, len(domain.KnownNotificationTypes))
	for _, t := range domain.KnownNotificationTypes {
		list := s.ChannelsFor(t)
		names := make([]string, 0, len(list))
		for _, c := range list {
			names = append(names, string(c))
		}
		channels[string(t)] = names
	}
	return SettingsView{
		NotificationsEnabled: s.NotificationsEnabled,
		Channels:             channels,
		QuietHours:           s.QuietHours,
	}
}

// TeamActivityView is one row of a team feed.
type TeamActivityView struct {
	ID        string         `json:"id"`
	TeamID    string         `json:"team_id"`
	ActorID   string         `json:"actor_id"`
	Type      string         `json:"type"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// ListTeamActivityResponse packages a team feed page.
type ListTeamActivityResponse struct {
	Items []TeamActivityView `json:"items"`
}

func toTeamActivityView(a domain.TeamActivity) TeamActivityView {
	metadata := a.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return TeamActivityView{
		ID:        a.ID,
		TeamID:    a.TeamID,
		ActorID:   a.ActorID,
		Type:      a.Type,
		Metadata:  metadata,
		CreatedAt: a.CreatedAt,
	}
}
