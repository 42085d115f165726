// Package engagement composes the leveling, achievement and notification
// components into the operations exposed over HTTP and the CLI.
package engagement

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"example.com/engagement/internal/achievement"
	"example.com/engagement/internal/domain"
	"example.com/engagement/internal/leveling"
	"example.com/engagement/internal/mail"
	"example.com/engagement/internal/notification"
	"example.com/engagement/internal/streak"
)

// Profile is the account summary shown to the signed-in user.
type Profile struct {
	ID          string
	Email       string
	Name        string
	XP          int64
	Level       int
	NextLevelXP int64
	CreatedAt   time.Time
}

// TaskCompletion is the outcome of CompleteTask. Progress is nil when the
// task was already done and nothing was awarded.
type TaskCompletion struct {
	Task     domain.Task
	Progress *leveling.Result
}

// HabitToggle is the outcome of ToggleHabit. Progress is nil when the
// toggle removed an existing check-in.
type HabitToggle struct {
	HabitID   string
	Date      time.Time
	Completed bool
	Progress  *leveling.Result
}

// SettingsUpdate carries the caller's changes. Channel lists replace the
// stored list for the types present; QuietHours replaces the window when set.
type SettingsUpdate struct {
	Channels   map[domain.NotificationType][]domain.Channel
	QuietHours *domain.QuietHours
}

type options struct {
	logger            *log.Logger
	now               func() time.Time
	cooldown          time.Duration
	notificationLimit int
	auditLimit        int
}

// Option configures a Service.
type Option func(*options)

// WithLogger sets the logger handed to every component.
func WithLogger(logger *log.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock sets the time source handed to every component.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithNotificationPolicy overrides the cooldown and list limits of the dispatcher.
func WithNotificationPolicy(cooldown time.Duration, notificationLimit, auditLimit int) Option {
	return func(o *options) {
		o.cooldown = cooldown
		o.notificationLimit = notificationLimit
		o.auditLimit = auditLimit
	}
}

// Service is the engagement engine facade.
type Service struct {
	store      domain.Store
	leveling   *leveling.Engine
	evaluator  *achievement.Evaluator
	dispatcher *notification.Dispatcher
	logger     *log.Logger
	now        func() time.Time
}

// New wires the components over store. mailer delivers the email channel.
func New(store domain.Store, mailer mail.Sender, opts ...Option) *Service {
	o := options{logger: log.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return &Service{
		store: store,
		leveling: leveling.NewEngine(store, store, store,
			leveling.WithLogger(o.logger.WithPrefix("leveling")),
			leveling.WithClock(o.now),
		),
		evaluator: achievement.NewEvaluator(store, store,
			achievement.WithLogger(o.logger.WithPrefix("achievements")),
			achievement.WithClock(o.now),
		),
		dispatcher: notification.NewDispatcher(store, store, mailer,
			notification.WithLogger(o.logger.WithPrefix("notifications")),
			notification.WithClock(o.now),
			notification.WithCooldown(o.cooldown),
			notification.WithLimits(o.notificationLimit, o.auditLimit),
		),
		logger: o.logger,
		now:    o.now,
	}
}

// GetProfile returns the user's progress summary. An empty display name
// falls back to the local part of the email address.
func (s *Service) GetProfile(ctx context.Context, userID string) (Profile, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	level := user.Progress.Level
	if level < 1 {
		level = 1
	}
	name := strings.TrimSpace(user.Name)
	if name == "" {
		name, _, _ = strings.Cut(user.Email, "@")
	}
	return Profile{
		ID:          user.ID,
		Email:       user.Email,
		Name:        name,
		XP:          user.Progress.XP,
		Level:       level,
		NextLevelXP: leveling.NextLevelXP(level),
		CreatedAt:   user.CreatedAt,
	}, nil
}

// Team feed page sizes.
const (
	DefaultTeamActivityLimit = 20
	MaxTeamActivityLimit     = 100
)

// GetTeamActivity returns the newest rows of a team feed. Only members of the
// team may read it; everyone else gets domain.ErrForbidden.
func (s *Service) GetTeamActivity(ctx context.Context, userID, teamID string, limit int) ([]domain.TeamActivity, error) {
	teamIDs, err := s.store.ListTeamIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(teamIDs, teamID) {
		return nil, fmt.Errorf("team %s: %w", teamID, domain.ErrForbidden)
	}
	if limit <= 0 {
		limit = DefaultTeamActivityLimit
	}
	return s.store.ListTeamActivity(ctx, teamID, min(limit, MaxTeamActivityLimit))
}

// AwardXP delegates to the leveling engine.
func (s *Service) AwardXP(ctx context.Context, userID string, source domain.XPSource, amount int64) (leveling.Result, error) {
	return s.leveling.AwardXP(ctx, userID, source, amount)
}

// CalculateStreak returns the current streak of logs as of now.
func (s *Service) CalculateStreak(logs []domain.HabitLog) int {
	return streak.Calculate(logs, s.now())
}

// GetAchievements evaluates and returns the user's achievement views.
func (s *Service) GetAchievements(ctx context.Context, userID string) ([]achievement.View, error) {
	return s.evaluator.GetAchievements(ctx, userID)
}

// GetNotifications runs detection and returns the newest inbox items.
func (s *Service) GetNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	return s.dispatcher.GetNotifications(ctx, userID)
}

// MarkNotificationRead marks one of the user's notifications read.
func (s *Service) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	return s.dispatcher.MarkRead(ctx, userID, notificationID)
}

// MarkAllRead marks every unread notification of the user read.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return s.dispatcher.MarkAllRead(ctx, userID)
}

// GetAudit returns the newest dispatch audit rows.
func (s *Service) GetAudit(ctx context.Context, userID string) ([]domain.NotificationAudit, error) {
	return s.dispatcher.GetAudit(ctx, userID)
}

// ListAudit pages through the dispatch audit, newest first.
func (s *Service) ListAudit(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.NotificationAudit, *domain.Cursor, error) {
	return s.dispatcher.ListAudit(ctx, userID, cursor, limit)
}

// CompleteTask moves the task to done and awards XPPerTask the first time.
func (s *Service) CompleteTask(ctx context.Context, userID, taskID string) (TaskCompletion, error) {
	task, transitioned, err := s.store.CompleteTask(ctx, userID, taskID, s.now().UTC())
	if err != nil {
		return TaskCompletion{}, err
	}
	out := TaskCompletion{Task: task}
	if !transitioned {
		return out, nil
	}

	// The transition is committed; the award outlives the request.
	result, err := s.leveling.AwardXP(context.WithoutCancel(ctx), userID, domain.XPSourceTask, leveling.XPPerTask)
	if err != nil {
		return out, fmt.Errorf("award task xp: %w", err)
	}
	out.Progress = &result
	s.logger.Info("task completed", "user_id", userID, "task_id", taskID, "level", result.Level)
	return out, nil
}

// ToggleHabit checks the habit in for the UTC day of day, awarding
// XPPerHabit, or removes an existing check-in without a refund. A zero day
// means today.
func (s *Service) ToggleHabit(ctx context.Context, userID, habitID string, day time.Time) (HabitToggle, error) {
	if day.IsZero() {
		day = s.now()
	}
	date := domain.UTCDay(day)

	created, err := s.store.ToggleHabit(ctx, userID, habitID, date)
	if err != nil {
		return HabitToggle{}, err
	}
	out := HabitToggle{HabitID: habitID, Date: date, Completed: created}
	if !created {
		return out, nil
	}

	result, err := s.leveling.AwardXP(context.WithoutCancel(ctx), userID, domain.XPSourceHabit, leveling.XPPerHabit)
	if err != nil {
		return out, fmt.Errorf("award habit xp: %w", err)
	}
	out.Progress = &result
	return out, nil
}

// UpdateSettings validates and applies a settings change and returns the
// stored result.
func (s *Service) UpdateSettings(ctx context.Context, userID string, update SettingsUpdate) (domain.Settings, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return domain.Settings{}, err
	}

	settings := user.Settings
	channels := make(map[domain.NotificationType][]domain.Channel, len(domain.KnownNotificationTypes))
	for _, t := range domain.KnownNotificationTypes {
		channels[t] = settings.ChannelsFor(t)
	}
	for t, list := range update.Channels {
		if !t.Valid() {
			return domain.Settings{}, fmt.Errorf("%w: unknown notification type %q", domain.ErrInvalidArgument, t)
		}
		cleaned := make([]domain.Channel, 0, len(list))
		for _, c := range list {
			if !c.Deliverable() {
				return domain.Settings{}, fmt.Errorf("%w: channel %q is not deliverable", domain.ErrInvalidArgument, c)
			}
			if !containsChannel(cleaned, c) {
				cleaned = append(cleaned, c)
			}
		}
		channels[t] = cleaned
	}
	settings.Channels = channels

	if update.QuietHours != nil {
		quiet, err := validateQuietHours(*update.QuietHours)
		if err != nil {
			return domain.Settings{}, err
		}
		settings.QuietHours = quiet
	}

	if err := s.store.UpdateSettings(ctx, userID, settings); err != nil {
		return domain.Settings{}, err
	}
	stored, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return domain.Settings{}, err
	}
	return stored.Settings, nil
}

func validateQuietHours(q domain.QuietHours) (domain.QuietHours, error) {
	if strings.TrimSpace(q.Timezone) != "" {
		if _, err := time.LoadLocation(q.Timezone); err != nil {
			return domain.QuietHours{}, fmt.Errorf("%w: unknown timezone %q", domain.ErrInvalidArgument, q.Timezone)
		}
	}
	normalized := domain.NormalizeQuietHours(q)
	if q.Enabled && !normalized.Enabled {
		return domain.QuietHours{}, fmt.Errorf("%w: quiet hours must use HH:MM bounds", domain.ErrInvalidArgument)
	}
	return normalized, nil
}

func containsChannel(list []domain.Channel, c domain.Channel) bool {
	for _, existing := range list {
		if existing == c {
			return true
		}
	}
	return false
}

// UpsertDefinition creates or edits an achievement definition by key.
func (s *Service) UpsertDefinition(ctx context.Context, def domain.AchievementDefinition) (domain.AchievementDefinition, error) {
	if strings.TrimSpace(string(def.Key)) == "" {
		return domain.AchievementDefinition{}, fmt.Errorf("%w: key is required", domain.ErrInvalidArgument)
	}
	if def.Target < 1 {
		return domain.AchievementDefinition{}, fmt.Errorf("%w: target must be at least 1", domain.ErrInvalidArgument)
	}
	if achievement.MetricFor(def.Key) == achievement.MetricNone {
		s.logger.Warn("definition has no metric and will never unlock", "key", def.Key)
	}
	return s.store.UpsertDefinition(ctx, def)
}

// SeedDefinitions installs the default catalogue entries that are missing
// and returns how many were created. Existing definitions are not touched.
func (s *Service) SeedDefinitions(ctx context.Context) (int, error) {
	existing, err := s.store.ListDefinitions(ctx)
	if err != nil {
		return 0, err
	}
	have := make(map[domain.AchievementKey]struct{}, len(existing))
	for _, def := range existing {
		have[def.Key] = struct{}{}
	}

	created := 0
	for _, def := range DefaultDefinitions() {
		if _, ok := have[def.Key]; ok {
			continue
		}
		if _, err := s.store.UpsertDefinition(ctx, def); err != nil {
			return created, fmt.Errorf("seed %s: %w", def.Key, err)
		}
		created++
	}
	return created, nil
}

// NotifySystem raises a system_alert for the user through the regular
// dispatch path. Alerts with the same key collapse while one is unread.
func (s *Service) NotifySystem(ctx context.Context, userID, key, title, message string) error {
	if strings.TrimSpace(title) == "" || strings.TrimSpace(message) == "" {
		return fmt.Errorf("%w: title and message are required", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(key) == "" {
		key = title
	}
	meta, err := json.Marshal(map[string]string{"alertKey": key})
	if err != nil {
		return err
	}
	return s.dispatcher.Notify(ctx, userID, notification.Candidate{
		Type:     domain.NotificationSystemAlert,
		Title:    title,
		Message:  message,
		Metadata: string(meta),
	})
}
