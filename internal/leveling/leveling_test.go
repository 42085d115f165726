package leveling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/engagement/internal/domain"
	"example.com/engagement/internal/logger"
)

type fakeUsers struct {
	mu        sync.Mutex
	progress  map[string]domain.UserProgress
	conflicts int
	updateErr error
}

func (f *fakeUsers) GetUser(_ context.Context, userID string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.progress[userID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return domain.User{ID: userID, Progress: p}, nil
}

func (f *fakeUsers) GetUserActivity(context.Context, string) (domain.UserActivity, error) {
	return domain.UserActivity{}, errors.New("not used")
}

func (f *fakeUsers) UpdateProgress(_ context.Context, userID string, prev, next domain.UserProgress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.conflicts > 0 {
		f.conflicts--
		// Simulate a concurrent award landing first.
		cur := f.progress[userID]
		f.progress[userID] = Apply(cur, 10)
		return domain.ErrProgressConflict
	}
	if f.progress[userID] != prev {
		return domain.ErrProgressConflict
	}
	f.progress[userID] = next
	return nil
}

func (f *fakeUsers) UpdateSettings(context.Context, string, domain.Settings) error {
	return nil
}

type fakeTeams struct {
	ids map[string][]string
	err error
}

func (f fakeTeams) ListTeamIDs(_ context.Context, userID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ids[userID], nil
}

type fakeSink struct {
	mu       sync.Mutex
	rows     []domain.TeamActivity
	failTeam string
}

func (f *fakeSink) AppendActivity(_ context.Context, a domain.TeamActivity) error {
	if a.TeamID == f.failTeam {
		return errors.New("sink unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, a)
	return nil
}

var fixedNow = time.Date(2025, time.May, 4, 10, 0, 0, 0, time.UTC)

func newEngine(users *fakeUsers, teams fakeTeams, sink *fakeSink) *Engine {
	return NewEngine(users, teams, sink,
		WithLogger(logger.Discard()),
		WithClock(func() time.Time { return fixedNow }),
	)
}

func TestNextLevelXP(t *testing.T) {
	require.Equal(t, int64(100), NextLevelXP(1))
	require.Equal(t, int64(125), NextLevelXP(2))
	require.Equal(t, int64(156), NextLevelXP(3))
	require.Equal(t, int64(195), NextLevelXP(4))
	require.Equal(t, int64(100), NextLevelXP(0))
}

func TestApplyRollsOverMultipleLevels(t *testing.T) {
	got := Apply(domain.UserProgress{XP: 0, Level: 1}, 100+125+156+10)
	require.Equal(t, domain.UserProgress{XP: 10, Level: 4}, got)
}

func TestApplyLeavesXPBelowThreshold(t *testing.T) {
	p := domain.UserProgress{XP: 0, Level: 1}
	for _, amount := range []int64{0, 1, 49, 50, 99, 100, 1000, 12345} {
		p = Apply(p, amount)
		require.Less(t, p.XP, NextLevelXP(p.Level))
		require.GreaterOrEqual(t, p.XP, int64(0))
	}
}

func TestApplyIsAssociative(t *testing.T) {
	start := domain.UserProgress{XP: 40, Level: 2}
	whole := Apply(start, 900)

	split := start
	for _, part := range []int64{50, 20, 300, 30, 500} {
		split = Apply(split, part)
	}
	require.Equal(t, whole, split)
}

func TestAwardXPLevelUpFansOutPerTeam(t *testing.T) {
	users := &fakeUsers{progress: map[string]domain.UserProgress{"u1": {XP: 80, Level: 1}}}
	sink := &fakeSink{}
	engine := newEngine(users, fakeTeams{ids: map[string][]string{"u1": {"t1", "t2"}}}, sink)

	res, err := engine.AwardXP(context.Background(), "u1", domain.XPSourceTask, XPPerTask)
	require.NoError(t, err)
	require.Equal(t, Result{XP: 30, Level: 2, NextLevelXP: 125, PreviousLevel: 1}, res)
	require.True(t, res.LeveledUp())
	require.Equal(t, domain.UserProgress{XP: 30, Level: 2}, users.progress["u1"])

	require.Len(t, sink.rows, 2)
	for i, team := range []string{"t1", "t2"} {
		row := sink.rows[i]
		require.Equal(t, team, row.TeamID)
		require.Equal(t, "u1", row.ActorID)
		require.Equal(t, domain.ActivityLevelUp, row.Type)
		require.Equal(t, map[string]any{"level": 2, "previousLevel": 1}, row.Metadata)
		require.Equal(t, fixedNow, row.CreatedAt)
	}
}

func TestAwardXPWithoutLevelUpWritesNoActivity(t *testing.T) {
	users := &fakeUsers{progress: map[string]domain.UserProgress{"u1": {XP: 10, Level: 1}}}
	sink := &fakeSink{}
	engine := newEngine(users, fakeTeams{ids: map[string][]string{"u1": {"t1"}}}, sink)

	res, err := engine.AwardXP(context.Background(), "u1", domain.XPSourceHabit, XPPerHabit)
	require.NoError(t, err)
	require.False(t, res.LeveledUp())
	require.Equal(t, int64(30), res.XP)
	require.Empty(t, sink.rows)
}

func TestAwardXPUnknownUser(t *testing.T) {
	engine := newEngine(&fakeUsers{progress: map[string]domain.UserProgress{}}, fakeTeams{}, &fakeSink{})

	_, err := engine.AwardXP(context.Background(), "ghost", domain.XPSourceTask, XPPerTask)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAwardXPRejectsInvalidInput(t *testing.T) {
	engine := newEngine(&fakeUsers{progress: map[string]domain.UserProgress{"u1": {Level: 1}}}, fakeTeams{}, &fakeSink{})

	_, err := engine.AwardXP(context.Background(), "u1", domain.XPSource("quest"), 10)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = engine.AwardXP(context.Background(), "u1", domain.XPSourceTask, -5)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestAwardXPRetriesOnConflict(t *testing.T) {
	users := &fakeUsers{
		progress:  map[string]domain.UserProgress{"u1": {XP: 0, Level: 1}},
		conflicts: 2,
	}
	engine := newEngine(users, fakeTeams{}, &fakeSink{})

	res, err := engine.AwardXP(context.Background(), "u1", domain.XPSourceTask, XPPerTask)
	require.NoError(t, err)
	// Two concurrent awards of 10 landed before ours.
	require.Equal(t, int64(70), res.XP)
	require.Equal(t, domain.UserProgress{XP: 70, Level: 1}, users.progress["u1"])
}

func TestAwardXPKeepsRetryingUntilApplied(t *testing.T) {
	users := &fakeUsers{
		progress:  map[string]domain.UserProgress{"u1": {XP: 0, Level: 1}},
		conflicts: 12,
	}
	engine := newEngine(users, fakeTeams{}, &fakeSink{})

	res, err := engine.AwardXP(context.Background(), "u1", domain.XPSourceTask, XPPerTask)
	require.NoError(t, err)
	// Twelve concurrent awards of 10 rolled the user into level 2 first.
	require.Equal(t, 2, res.Level)
	require.Equal(t, int64(70), res.XP)
	require.Equal(t, domain.UserProgress{XP: 70, Level: 2}, users.progress["u1"])
}

func TestAwardXPStopsWhenContextCancelled(t *testing.T) {
	users := &fakeUsers{
		progress:  map[string]domain.UserProgress{"u1": {XP: 0, Level: 1}},
		conflicts: 1000,
	}
	engine := newEngine(users, fakeTeams{}, &fakeSink{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.AwardXP(ctx, "u1", domain.XPSourceTask, XPPerTask)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 999, users.conflicts)
}

func TestAwardXPPropagatesStoreFailure(t *testing.T) {
	users := &fakeUsers{
		progress:  map[string]domain.UserProgress{"u1": {XP: 0, Level: 1}},
		updateErr: errors.New("connection reset"),
	}
	engine := newEngine(users, fakeTeams{}, &fakeSink{})

	_, err := engine.AwardXP(context.Background(), "u1", domain.XPSourceTask, XPPerTask)
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection reset")
}

func TestAwardXPSecondaryFailuresDoNotFailAward(t *testing.T) {
	users := &fakeUsers{progress: map[string]domain.UserProgress{"u1": {XP: 99, Level: 1}}}
	sink := &fakeSink{failTeam: "t1"}
	engine := newEngine(users, fakeTeams{ids: map[string][]string{"u1": {"t1", "t2"}}}, sink)

	res, err := engine.AwardXP(context.Background(), "u1", domain.XPSourceHabit, XPPerHabit)
	require.NoError(t, err)
	require.Equal(t, 2, res.Level)
	require.Len(t, sink.rows, 1)
	require.Equal(t, "t2", sink.rows[0].TeamID)

	users.progress["u2"] = domain.UserProgress{XP: 99, Level: 1}
	failing := newEngine(users, fakeTeams{err: errors.New("directory down")}, &fakeSink{})
	res, err = failing.AwardXP(context.Background(), "u2", domain.XPSourceHabit, XPPerHabit)
	require.NoError(t, err)
	require.Equal(t, 2, res.Level)
}

func TestAwardXPConcurrentAwardsAreNotLost(t *testing.T) {
	users := &fakeUsers{progress: map[string]domain.UserProgress{"u1": {XP: 0, Level: 1}}}
	engine := newEngine(users, fakeTeams{}, &fakeSink{})

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.AwardXP(context.Background(), "u1", domain.XPSourceHabit, XPPerHabit)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, domain.UserProgress{XP: 60, Level: 1}, users.progress["u1"])
}
