package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/engagement/internal/domain"
)

var base = time.Date(2025, time.January, 10, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, domain.User) {
	t.Helper()
	store := NewStore(WithClock(func() time.Time { return base }))
	user, err := store.PutUser(context.Background(), domain.User{Email: "ada@example.com"})
	require.NoError(t, err)
	return store, user
}

func TestPutUserFillsDefaults(t *testing.T) {
	_, user := newTestStore(t)
	require.NotEmpty(t, user.ID)
	require.Equal(t, 1, user.Progress.Level)
	require.True(t, user.Settings.NotificationsEnabled)
	require.Equal(t, []domain.Channel{domain.ChannelInApp, domain.ChannelEmail}, user.Settings.ChannelsFor(domain.NotificationCriticalDeadline))
	require.Equal(t, base, user.CreatedAt)
}

func TestGetUserActivityReturnsEmptyRelations(t *testing.T) {
	store, user := newTestStore(t)

	activity, err := store.GetUserActivity(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotNil(t, activity.CompletedTasks)
	require.NotNil(t, activity.OpenTasks)
	require.NotNil(t, activity.Habits)

	_, err = store.GetUserActivity(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateProgressCompareAndSwap(t *testing.T) {
	store, user := newTestStore(t)
	ctx := context.Background()

	next := domain.UserProgress{XP: 50, Level: 1}
	require.NoError(t, store.UpdateProgress(ctx, user.ID, user.Progress, next))
	require.ErrorIs(t, store.UpdateProgress(ctx, user.ID, user.Progress, next), domain.ErrProgressConflict)

	stored, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, next, stored.Progress)
}

func TestUnlockAchievementIsUnique(t *testing.T) {
	store, user := newTestStore(t)
	ctx := context.Background()

	def, err := store.UpsertDefinition(ctx, domain.AchievementDefinition{Key: domain.AchievementFirstStrike, Target: 1})
	require.NoError(t, err)

	first, created, err := store.UnlockAchievement(ctx, domain.UserAchievement{UserID: user.ID, DefinitionID: def.ID, UnlockedReason: "first"})
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := store.UnlockAchievement(ctx, domain.UserAchievement{UserID: user.ID, DefinitionID: def.ID, UnlockedReason: "second"})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first, second)

	rows, err := store.ListUserAchievements(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestUpsertDefinitionBumpsVersion(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	created, err := store.UpsertDefinition(ctx, domain.AchievementDefinition{Key: domain.AchievementFieldAgent, Title: "Field Agent", Target: 10})
	require.NoError(t, err)
	require.Equal(t, 1, created.Version)

	updated, err := store.UpsertDefinition(ctx, domain.AchievementDefinition{Key: domain.AchievementFieldAgent, Title: "Field Agent", Target: 12})
	require.NoError(t, err)
	require.Equal(t, created.ID, updated.ID)
	require.Equal(t, 2, updated.Version)
	require.Equal(t, 12, updated.Target)

	_, err = store.UpsertDefinition(ctx, domain.AchievementDefinition{Title: "No key"})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestCreateNotificationDedupesUnread(t *testing.T) {
	store, user := newTestStore(t)
	ctx := context.Background()
	n := domain.Notification{UserID: user.ID, Type: domain.NotificationCriticalDeadline, Metadata: `{"taskId":"t1"}`}

	created, err := store.CreateNotification(ctx, n)
	require.NoError(t, err)
	require.True(t, created)

	created, err = store.CreateNotification(ctx, n)
	require.NoError(t, err)
	require.False(t, created)

	count, err := store.MarkAllRead(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	created, err = store.CreateNotification(ctx, n)
	require.NoError(t, err)
	require.True(t, created)
}

func TestMarkReadRejectsForeignNotification(t *testing.T) {
	store, user := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateNotification(ctx, domain.Notification{UserID: user.ID, Type: domain.NotificationSystemAlert, Metadata: "{}"})
	require.NoError(t, err)
	list, err := store.ListNotifications(ctx, user.ID, 20)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.ErrorIs(t, store.MarkRead(ctx, "someone-else", list[0].ID), domain.ErrNotFound)
	require.NoError(t, store.MarkRead(ctx, user.ID, list[0].ID))
}

func TestListNotificationsNewestFirstWithLimit(t *testing.T) {
	store, user := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.CreateNotification(ctx, domain.Notification{
			UserID:    user.ID,
			Type:      domain.NotificationHabitAtRisk,
			Metadata:  string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	list, err := store.ListNotifications(ctx, user.ID, 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, "e", list[0].Metadata)
	require.Equal(t, "c", list[2].Metadata)
}

func TestAuditLatestAndPagination(t *testing.T) {
	store, user := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.AppendAudit(ctx, domain.NotificationAudit{
			UserID:    user.ID,
			Type:      domain.NotificationCriticalDeadline,
			Channel:   domain.ChannelInApp,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	latest, err := store.LatestAudit(ctx, user.ID, domain.NotificationCriticalDeadline, base.Add(3*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, base.Add(4*time.Hour), latest.CreatedAt)

	none, err := store.LatestAudit(ctx, user.ID, domain.NotificationHabitAtRisk, base)
	require.NoError(t, err)
	require.Nil(t, none)

	page, cursor, err := store.ListAudit(ctx, user.ID, nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotNil(t, cursor)
	require.Equal(t, base.Add(4*time.Hour), page[0].CreatedAt)

	page, cursor, err = store.ListAudit(ctx, user.ID, cursor, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, base.Add(2*time.Hour), page[0].CreatedAt)

	page, cursor, err = store.ListAudit(ctx, user.ID, cursor, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Nil(t, cursor)
}

func TestCompleteTaskOnce(t *testing.T) {
	store, user := newTestStore(t)
	ctx := context.Background()

	task, err := store.PutTask(ctx, domain.Task{UserID: user.ID, Title: "Ship it"})
	require.NoError(t, err)

	done, transitioned, err := store.CompleteTask(ctx, user.ID, task.ID, base)
	require.NoError(t, err)
	require.True(t, transitioned)
	require.Equal(t, domain.TaskStatusDone, done.Status)

	_, transitioned, err = store.CompleteTask(ctx, user.ID, task.ID, base)
	require.NoError(t, err)
	require.False(t, transitioned)

	_, _, err = store.CompleteTask(ctx, "intruder", task.ID, base)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestToggleHabitCreatesThenRemoves(t *testing.T) {
	store, user := newTestStore(t)
	ctx := context.Background()

	habit, err := store.PutHabit(ctx, domain.Habit{UserID: user.ID, Title: "Read"})
	require.NoError(t, err)

	created, err := store.ToggleHabit(ctx, user.ID, habit.ID, base.Add(3*time.Hour))
	require.NoError(t, err)
	require.True(t, created)

	activity, err := store.GetUserActivity(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, activity.Habits, 1)
	require.Equal(t, []domain.HabitLog{{HabitID: habit.ID, Date: domain.UTCDay(base), Completed: true}}, activity.Habits[0].Logs)

	created, err = store.ToggleHabit(ctx, user.ID, habit.ID, base)
	require.NoError(t, err)
	require.False(t, created)

	activity, err = store.GetUserActivity(ctx, user.ID)
	require.NoError(t, err)
	require.Empty(t, activity.Habits[0].Logs)
}

func TestListTeamActivityFiltersByTeamNewestFirst(t *testing.T) {
	store, user := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendActivity(ctx, domain.TeamActivity{TeamID: "t1", ActorID: user.ID, Type: "a", CreatedAt: base}))
	require.NoError(t, store.AppendActivity(ctx, domain.TeamActivity{TeamID: "t2", ActorID: user.ID, Type: "b", CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, store.AppendActivity(ctx, domain.TeamActivity{TeamID: "t1", ActorID: user.ID, Type: "c", CreatedAt: base.Add(2 * time.Minute)}))
	// Same timestamp as the newest row; later appends sort first.
	require.NoError(t, store.AppendActivity(ctx, domain.TeamActivity{TeamID: "t1", ActorID: user.ID, Type: "d", CreatedAt: base.Add(2 * time.Minute)}))

	feed, err := store.ListTeamActivity(ctx, "t1", 10)
	require.NoError(t, err)
	types := make([]string, 0, len(feed))
	for _, a := range feed {
		types = append(types, a.Type)
	}
	require.Equal(t, []string{"d", "c", "a"}, types)

	feed, err = store.ListTeamActivity(ctx, "t1", 1)
	require.NoError(t, err)
	require.Len(t, feed, 1)

	feed, err = store.ListTeamActivity(ctx, "nobody", 10)
	require.NoError(t, err)
	require.NotNil(t, feed)
	require.Empty(t, feed)
}
