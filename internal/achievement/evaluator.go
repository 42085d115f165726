// Package achievement computes progress against achievement definitions and
// persists unlocks exactly once per user and definition.
package achievement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"example.com/engagement/internal/domain"
	"example.com/engagement/internal/observability"
)

// View is the per-definition result returned to callers.
type View struct {
	ID             string
	Key            domain.AchievementKey
	Title          string
	Description    string
	Icon           string
	Category       string
	IsUnlocked     bool
	Progress       int
	Target         int
	UnlockedAt     *time.Time
	UnlockedReason string
	Version        int
}

// Option configures optional behaviour for the Evaluator.
type Option func(*Evaluator)

// WithLogger overrides the evaluator logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// WithClock overrides the time source used for streaks, account age and unlock stamps.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		e.now = now
	}
}

// Evaluator evaluates every definition for a user and persists new unlocks.
type Evaluator struct {
	users        domain.UserStore
	achievements domain.AchievementStore
	logger       *log.Logger
	now          func() time.Time
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(users domain.UserStore, achievements domain.AchievementStore, opts ...Option) *Evaluator {
	e := &Evaluator{
		users:        users,
		achievements: achievements,
		logger:       log.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GetAchievements returns one view per definition, in definition order,
// unlocking every definition whose target is met for the first time.
func (e *Evaluator) GetAchievements(ctx context.Context, userID string) ([]View, error) {
	activity, err := e.users.GetUserActivity(ctx, userID)
	if err != nil {
		return nil, err
	}
	definitions, err := e.achievements.ListDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	unlocked, err := e.achievements.ListUserAchievements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list unlocks: %w", err)
	}

	earned := make(map[string]domain.UserAchievement, len(unlocked))
	for _, ua := range unlocked {
		earned[ua.DefinitionID] = ua
	}

	now := e.now().UTC()
	stats := Collect(activity, now)
	views := make([]View, 0, len(definitions))
	for _, def := range definitions {
		progress := stats.Value(MetricFor(def.Key))
		view := View{
			ID:          def.ID,
			Key:         def.Key,
			Title:       def.Title,
			Description: def.Description,
			Icon:        def.Icon,
			Category:    def.Category,
			Progress:    clamp(progress, def.Target),
			Target:      def.Target,
			Version:     def.Version,
		}

		record, ok := earned[def.ID]
		if !ok && progress >= def.Target {
			record, err = e.unlock(ctx, userID, def, Reason(def.Key, stats), now)
			if err != nil {
				return nil, err
			}
			ok = true
		}
		if ok {
			at := record.UnlockedAt
			view.IsUnlocked = true
			view.UnlockedAt = &at
			view.UnlockedReason = record.UnlockedReason
		}
		views = append(views, view)
	}

	observability.RecordEvaluation(now)
	return views, nil
}

// unlock persists the record. A concurrent evaluation that got there first is
// not an error; its stored row is used instead.
func (e *Evaluator) unlock(ctx context.Context, userID string, def domain.AchievementDefinition, reason string, now time.Time) (domain.UserAchievement, error) {
	candidate := domain.UserAchievement{
		UserID:         userID,
		DefinitionID:   def.ID,
		DefinitionKey:  def.Key,
		UnlockedAt:     now,
		UnlockedReason: reason,
	}

	stored, created, err := e.achievements.UnlockAchievement(ctx, candidate)
	switch {
	case errors.Is(err, domain.ErrConstraintViolation):
		e.logger.Debug("unlock already recorded", "user_id", userID, "key", def.Key)
		return candidate, nil
	case err != nil:
		return domain.UserAchievement{}, fmt.Errorf("unlock %s: %w", def.Key, err)
	}

	if created {
		observability.RecordAchievementUnlocked(string(def.Key))
		e.logger.Info("achievement unlocked", "user_id", userID, "key", def.Key)
	}
	return stored, nil
}

func clamp(progress, target int) int {
	if progress < 0 {
		return 0
	}
	if target < 0 {
		return 0
	}
	if progress > target {
		return target
	}
	return progress
}
