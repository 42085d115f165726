// Package leveling owns experience accumulation and the level curve.
package leveling

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/log"

	"example.com/engagement/internal/domain"
	"example.com/engagement/internal/observability"
)

const (
	// XPPerTask is awarded by callers when a task moves to done.
	XPPerTask int64 = 50
	// XPPerHabit is awarded by callers when a habit is checked in.
	XPPerHabit int64 = 20

	baseXP     = 100
	multiplier = 1.25

	conflictBackoffStep = 2 * time.Millisecond
	conflictBackoffMax  = 50 * time.Millisecond
)

// NextLevelXP returns the experience required to advance past level.
func NextLevelXP(level int) int64 {
	if level < 1 {
		level = 1
	}
	required := math.Floor(baseXP * math.Pow(multiplier, float64(level-1)))
	if required >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(required)
}

// Apply adds amount to p and rolls every overflow into level-ups.
func Apply(p domain.UserProgress, amount int64) domain.UserProgress {
	if p.Level < 1 {
		p.Level = 1
	}
	p.XP += amount
	for next := NextLevelXP(p.Level); p.XP >= next; next = NextLevelXP(p.Level) {
		p.XP -= next
		p.Level++
	}
	return p
}

// Result is the progress after an award.
type Result struct {
	XP            int64
	Level         int
	NextLevelXP   int64
	PreviousLevel int
}

// LeveledUp reports whether the award crossed at least one level threshold.
func (r Result) LeveledUp() bool {
	return r.Level > r.PreviousLevel
}

// Option configures optional behaviour for the Engine.
type Option func(*Engine)

// WithLogger overrides the logger used to report best-effort failures.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock overrides the time source used to stamp activity rows.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine applies XP awards and records level-ups to every team of the user.
type Engine struct {
	users  domain.UserStore
	teams  domain.TeamDirectory
	sink   domain.ActivitySink
	logger *log.Logger
	now    func() time.Time
}

// NewEngine constructs an Engine.
func NewEngine(users domain.UserStore, teams domain.TeamDirectory, sink domain.ActivitySink, opts ...Option) *Engine {
	e := &Engine{
		users:  users,
		teams:  teams,
		sink:   sink,
		logger: log.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AwardXP adds amount to the user's progress. The update is a compare-and-swap
// against the progress that was read. A lost race means another award was
// applied, so the award is retried until it lands or ctx is done.
func (e *Engine) AwardXP(ctx context.Context, userID string, source domain.XPSource, amount int64) (Result, error) {
	if !source.Valid() {
		return Result{}, fmt.Errorf("%w: unknown xp source %q", domain.ErrInvalidArgument, source)
	}
	if amount < 0 {
		return Result{}, fmt.Errorf("%w: xp amount must not be negative", domain.ErrInvalidArgument)
	}

	for attempt := 1; ; attempt++ {
		user, err := e.users.GetUser(ctx, userID)
		if err != nil {
			return Result{}, err
		}

		prev := user.Progress
		if prev.Level < 1 {
			prev.Level = 1
		}
		next := Apply(prev, amount)

		err = e.users.UpdateProgress(ctx, userID, user.Progress, next)
		if errors.Is(err, domain.ErrProgressConflict) {
			observability.RecordProgressConflict()
			e.logger.Debug("xp award conflicted, retrying", "user_id", userID, "attempt", attempt)
			if err := waitConflictBackoff(ctx, attempt); err != nil {
				return Result{}, fmt.Errorf("award xp to %s: %w", userID, err)
			}
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("update progress: %w", err)
		}

		observability.RecordXPAwarded(string(source), amount, next.Level-prev.Level)
		if next.Level > prev.Level {
			e.announceLevelUp(ctx, userID, prev.Level, next.Level)
		}

		return Result{
			XP:            next.XP,
			Level:         next.Level,
			NextLevelXP:   NextLevelXP(next.Level),
			PreviousLevel: prev.Level,
		}, nil
	}
}

func waitConflictBackoff(ctx context.Context, attempt int) error {
	delay := min(time.Duration(attempt)*conflictBackoffStep, conflictBackoffMax)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// announceLevelUp appends one level_up row per team. Failures are logged and
// never fail the award.
func (e *Engine) announceLevelUp(ctx context.Context, userID string, previousLevel, level int) {
	teamIDs, err := e.teams.ListTeamIDs(ctx, userID)
	if err != nil {
		observability.RecordSecondaryFailure("team_lookup")
		e.logger.Warn("list teams for level-up failed", "user_id", userID, "error", err)
		return
	}

	at := e.now().UTC()
	for _, teamID := range teamIDs {
		activity := domain.TeamActivity{
			TeamID:  teamID,
			ActorID: userID,
			Type:    domain.ActivityLevelUp,
			Metadata: map[string]any{
				"level":         level,
				"previousLevel": previousLevel,
			},
			CreatedAt: at,
		}
		if err := e.sink.AppendActivity(ctx, activity); err != nil {
			observability.RecordSecondaryFailure("team_activity")
			e.logger.Warn("append level-up activity failed", "user_id", userID, "team_id", teamID, "error", err)
		}
	}
}
