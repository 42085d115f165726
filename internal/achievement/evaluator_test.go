package achievement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/engagement/internal/domain"
	"example.com/engagement/internal/logger"
	"example.com/engagement/internal/persistence/memory"
)

var now = time.Date(2025, time.August, 20, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store     *memory.Store
	evaluator *Evaluator
	user      domain.User
}

func newFixture(t *testing.T, defs ...domain.AchievementDefinition) fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore(memory.WithClock(func() time.Time { return now }))
	for _, def := range defs {
		_, err := store.UpsertDefinition(ctx, def)
		require.NoError(t, err)
	}
	user, err := store.PutUser(ctx, domain.User{
		Email:     "kai@example.com",
		CreatedAt: now.AddDate(0, 0, -40),
		Progress:  domain.UserProgress{XP: 10, Level: 3},
	})
	require.NoError(t, err)

	evaluator := NewEvaluator(store, store,
		WithLogger(logger.Discard()),
		WithClock(func() time.Time { return now }),
	)
	return fixture{store: store, evaluator: evaluator, user: user}
}

func (f fixture) completeTask(t *testing.T, title string, priority domain.TaskPriority, offset time.Duration) {
	t.Helper()
	completed := now.Add(-offset)
	_, err := f.store.PutTask(context.Background(), domain.Task{
		UserID:      f.user.ID,
		Title:       title,
		Priority:    priority,
		Status:      domain.TaskStatusDone,
		CompletedAt: &completed,
	})
	require.NoError(t, err)
}

func TestMetricForCoversKnownKeys(t *testing.T) {
	for _, key := range domain.KnownAchievementKeys {
		require.NotEqual(t, MetricNone, MetricFor(key), "key %s has no metric", key)
		require.NotEmpty(t, Reason(key, Stats{}), "key %s has no reason", key)
	}
	require.Equal(t, MetricMaxStreak, MetricFor("neural_sync_legend"))
	require.Equal(t, MetricNone, MetricFor("mystery"))
	require.Empty(t, Reason("mystery", Stats{}))
}

func TestGetAchievementsProgressAndUnlock(t *testing.T) {
	f := newFixture(t,
		domain.AchievementDefinition{Key: domain.AchievementFirstStrike, Title: "First Strike", Target: 1},
		domain.AchievementDefinition{Key: domain.AchievementFieldAgent, Title: "Field Agent", Target: 10},
		domain.AchievementDefinition{Key: domain.AchievementCriticalResponse, Target: 1},
		domain.AchievementDefinition{Key: domain.AchievementNeuralSyncBasic, Target: 3},
		domain.AchievementDefinition{Key: domain.AchievementRankAscension, Target: 5},
		domain.AchievementDefinition{Key: domain.AchievementVanguard, Target: 30},
		domain.AchievementDefinition{Key: "mystery", Target: 1},
	)
	f.completeTask(t, "Recon", domain.TaskPriorityLow, 3*time.Hour)
	f.completeTask(t, "Extraction", domain.TaskPriorityHigh, time.Hour)

	views, err := f.evaluator.GetAchievements(context.Background(), f.user.ID)
	require.NoError(t, err)
	require.Len(t, views, 7)

	byKey := make(map[domain.AchievementKey]View, len(views))
	for _, v := range views {
		byKey[v.Key] = v
	}

	first := byKey[domain.AchievementFirstStrike]
	require.True(t, first.IsUnlocked)
	require.Equal(t, 1, first.Progress)
	require.Equal(t, "Neutralized first tactical objective: Recon", first.UnlockedReason)
	require.NotNil(t, first.UnlockedAt)
	require.Equal(t, now, *first.UnlockedAt)

	agent := byKey[domain.AchievementFieldAgent]
	require.False(t, agent.IsUnlocked)
	require.Equal(t, 2, agent.Progress)
	require.Nil(t, agent.UnlockedAt)

	require.False(t, byKey[domain.AchievementCriticalResponse].IsUnlocked)
	require.Equal(t, 0, byKey[domain.AchievementNeuralSyncBasic].Progress)
	require.Equal(t, 3, byKey[domain.AchievementRankAscension].Progress)

	vanguard := byKey[domain.AchievementVanguard]
	require.True(t, vanguard.IsUnlocked)
	require.Equal(t, 30, vanguard.Progress)
	require.Equal(t, "Link active for 40 deployment cycles.", vanguard.UnlockedReason)

	mystery := byKey["mystery"]
	require.False(t, mystery.IsUnlocked)
	require.Equal(t, 0, mystery.Progress)
}

func TestGetAchievementsKeepsDefinitionOrder(t *testing.T) {
	f := newFixture(t,
		domain.AchievementDefinition{Key: domain.AchievementVanguard, Target: 30},
		domain.AchievementDefinition{Key: domain.AchievementFirstStrike, Target: 1},
		domain.AchievementDefinition{Key: domain.AchievementRankAscension, Target: 5},
	)

	views, err := f.evaluator.GetAchievements(context.Background(), f.user.ID)
	require.NoError(t, err)
	keys := make([]domain.AchievementKey, 0, len(views))
	for _, v := range views {
		keys = append(keys, v.Key)
	}
	require.Equal(t, []domain.AchievementKey{domain.AchievementVanguard, domain.AchievementFirstStrike, domain.AchievementRankAscension}, keys)
}

func TestGetAchievementsUsesMaxHabitStreak(t *testing.T) {
	f := newFixture(t, domain.AchievementDefinition{Key: domain.AchievementNeuralSyncBasic, Target: 3})
	ctx := context.Background()
	day := domain.UTCDay(now)
	_, err := f.store.PutHabit(ctx, domain.Habit{UserID: f.user.ID, Title: "Run", Logs: []domain.HabitLog{
		{Date: day, Completed: true},
		{Date: day.AddDate(0, 0, -1), Completed: true},
		{Date: day.AddDate(0, 0, -2), Completed: true},
		{Date: day.AddDate(0, 0, -4), Completed: true},
	}})
	require.NoError(t, err)
	_, err = f.store.PutHabit(ctx, domain.Habit{UserID: f.user.ID, Title: "Stretch", Logs: []domain.HabitLog{
		{Date: day, Completed: true},
	}})
	require.NoError(t, err)

	views, err := f.evaluator.GetAchievements(ctx, f.user.ID)
	require.NoError(t, err)
	require.True(t, views[0].IsUnlocked)
	require.Equal(t, 3, views[0].Progress)
	require.Equal(t, "Held a consistent neural link for 3 cycles.", views[0].UnlockedReason)
}

func TestGetAchievementsUnlocksOnce(t *testing.T) {
	f := newFixture(t, domain.AchievementDefinition{Key: domain.AchievementRankAscension, Target: 2})
	ctx := context.Background()

	first, err := f.evaluator.GetAchievements(ctx, f.user.ID)
	require.NoError(t, err)
	second, err := f.evaluator.GetAchievements(ctx, f.user.ID)
	require.NoError(t, err)

	require.Equal(t, first, second)
	rows, err := f.store.ListUserAchievements(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestGetAchievementsConcurrentEvaluationsUnlockOnce(t *testing.T) {
	f := newFixture(t, domain.AchievementDefinition{Key: domain.AchievementRankAscension, Target: 2})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.evaluator.GetAchievements(ctx, f.user.ID)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	rows, err := f.store.ListUserAchievements(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestGetAchievementsStaysUnlockedWhenProgressDrops(t *testing.T) {
	f := newFixture(t, domain.AchievementDefinition{Key: domain.AchievementFirstStrike, Target: 1})
	ctx := context.Background()
	defs, err := f.store.ListDefinitions(ctx)
	require.NoError(t, err)

	earlier := now.Add(-48 * time.Hour)
	_, _, err = f.store.UnlockAchievement(ctx, domain.UserAchievement{
		UserID:         f.user.ID,
		DefinitionID:   defs[0].ID,
		UnlockedAt:     earlier,
		UnlockedReason: "stored reason",
	})
	require.NoError(t, err)

	views, err := f.evaluator.GetAchievements(ctx, f.user.ID)
	require.NoError(t, err)
	require.True(t, views[0].IsUnlocked)
	require.Equal(t, 0, views[0].Progress)
	require.Equal(t, "stored reason", views[0].UnlockedReason)
	require.Equal(t, earlier, *views[0].UnlockedAt)
}

func TestGetAchievementsUnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.evaluator.GetAchievements(context.Background(), "ghost")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

type racingStore struct {
	domain.AchievementStore
	err error
}

func (r racingStore) UnlockAchievement(context.Context, domain.UserAchievement) (domain.UserAchievement, bool, error) {
	return domain.UserAchievement{}, false, r.err
}

func TestGetAchievementsConstraintViolationIsBenign(t *testing.T) {
	f := newFixture(t, domain.AchievementDefinition{Key: domain.AchievementRankAscension, Target: 2})
	evaluator := NewEvaluator(f.store, racingStore{AchievementStore: f.store, err: domain.ErrConstraintViolation},
		WithLogger(logger.Discard()),
		WithClock(func() time.Time { return now }),
	)

	views, err := evaluator.GetAchievements(context.Background(), f.user.ID)
	require.NoError(t, err)
	require.True(t, views[0].IsUnlocked)
	require.Equal(t, "Ascended to authority rank 3.", views[0].UnlockedReason)
}

func TestGetAchievementsPropagatesUnlockFailure(t *testing.T) {
	f := newFixture(t, domain.AchievementDefinition{Key: domain.AchievementRankAscension, Target: 2})
	evaluator := NewEvaluator(f.store, racingStore{AchievementStore: f.store, err: errors.New("disk full")},
		WithLogger(logger.Discard()),
	)

	_, err := evaluator.GetAchievements(context.Background(), f.user.ID)
	require.ErrorContains(t, err, "disk full")
}

func TestClamp(t *testing.T) {
	require.Equal(t, 0, clamp(-1, 5))
	require.Equal(t, 5, clamp(9, 5))
	require.Equal(t, 3, clamp(3, 5))
	require.Equal(t, 0, clamp(3, -1))
}
