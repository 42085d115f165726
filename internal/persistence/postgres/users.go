package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"example.com/engagement/internal/domain"
	"example.com/engagement/internal/events"
)

const selectUser = `SELECT user_id, email, name, xp, level, preferences, notification_prefs, quiet_hours, created_at
        FROM users WHERE user_id=$1`

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		user domain.User
		raw  domain.RawSettings
	)
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &user.Progress.XP, &user.Progress.Level, &raw.Preferences, &raw.NotificationPrefs, &raw.QuietHours, &user.CreatedAt); err != nil {
		return domain.User{}, err
	}
	user.Settings = domain.DecodeSettings(raw)
	return user, nil
}

// GetUser implements domain.UserStore.
func (r *Repository) GetUser(ctx context.Context, userID string) (domain.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, selectUser, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	return user, err
}

// GetUserActivity implements domain.UserStore. All relations are read in one
// repeatable-read transaction so they describe the same moment.
func (r *Repository) GetUserActivity(ctx context.Context, userID string) (domain.UserActivity, error) {
	activity := domain.UserActivity{
		CompletedTasks: []domain.Task{},
		OpenTasks:      []domain.Task{},
		Habits:         []domain.Habit{},
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return activity, err
	}
	defer tx.Rollback(ctx)

	activity.User, err = scanUser(tx.QueryRow(ctx, selectUser, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return activity, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		return activity, err
	}

	rows, err := tx.Query(ctx, `SELECT task_id, user_id, title, priority, status, due_date, completed_at, created_at
        FROM tasks WHERE user_id=$1
        ORDER BY completed_at ASC NULLS LAST, created_at ASC, task_id ASC`, userID)
	if err != nil {
		return activity, err
	}
	for rows.Next() {
		task, scanErr := scanTask(rows)
		if scanErr != nil {
			rows.Close()
			return activity, scanErr
		}
		if task.Status == domain.TaskStatusDone {
			activity.CompletedTasks = append(activity.CompletedTasks, task)
		} else {
			activity.OpenTasks = append(activity.OpenTasks, task)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return activity, err
	}

	rows, err = tx.Query(ctx, `SELECT habit_id, user_id, title, frequency, created_at
        FROM habits WHERE user_id=$1 ORDER BY created_at ASC, habit_id ASC`, userID)
	if err != nil {
		return activity, err
	}
	index := make(map[string]int)
	for rows.Next() {
		habit := domain.Habit{Logs: []domain.HabitLog{}}
		if err := rows.Scan(&habit.ID, &habit.UserID, &habit.Title, &habit.Frequency, &habit.CreatedAt); err != nil {
			rows.Close()
			return activity, err
		}
		index[habit.ID] = len(activity.Habits)
		activity.Habits = append(activity.Habits, habit)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return activity, err
	}

	rows, err = tx.Query(ctx, `SELECT l.habit_id, l.log_date, l.completed
        FROM habit_logs l JOIN habits h ON h.habit_id = l.habit_id
        WHERE h.user_id=$1 ORDER BY l.log_date DESC`, userID)
	if err != nil {
		return activity, err
	}
	defer rows.Close()
	for rows.Next() {
		var log domain.HabitLog
		if err := rows.Scan(&log.HabitID, &log.Date, &log.Completed); err != nil {
			return activity, err
		}
		log.Date = domain.UTCDay(log.Date)
		if i, ok := index[log.HabitID]; ok {
			activity.Habits[i].Logs = append(activity.Habits[i].Logs, log)
		}
	}
	if err := rows.Err(); err != nil {
		return activity, err
	}

	return activity, tx.Commit(ctx)
}

func scanTask(row pgx.Row) (domain.Task, error) {
	var task domain.Task
	err := row.Scan(&task.ID, &task.UserID, &task.Title, &task.Priority, &task.Status, &task.DueDate, &task.CompletedAt, &task.CreatedAt)
	return task, err
}

// UpdateProgress implements domain.UserStore as a compare-and-swap.
func (r *Repository) UpdateProgress(ctx context.Context, userID string, prev, next domain.UserProgress) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET xp=$2, level=$3 WHERE user_id=$1 AND xp=$4 AND level=$5`,
		userID, next.XP, next.Level, prev.XP, prev.Level,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE user_id=$1)`, userID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	return domain.ErrProgressConflict
}

// UpdateSettings implements domain.UserStore.
func (r *Repository) UpdateSettings(ctx context.Context, userID string, settings domain.Settings) error {
	settings.QuietHours = domain.NormalizeQuietHours(settings.QuietHours)
	prefs, quiet, err := domain.EncodeSettings(settings)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET notification_prefs=$2, quiet_hours=$3 WHERE user_id=$1`,
		userID, prefs, quiet,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	return nil
}

// ListTeamIDs implements domain.TeamDirectory.
func (r *Repository) ListTeamIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT team_id FROM team_members WHERE user_id=$1 ORDER BY joined_at, team_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AppendActivity implements domain.ActivitySink.
func (r *Repository) AppendActivity(ctx context.Context, activity domain.TeamActivity) error {
	if strings.TrimSpace(activity.ID) == "" {
		activity.ID = uuid.NewString()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}
	if activity.Metadata == nil {
		activity.Metadata = map[string]any{}
	}
	metadata, err := json.Marshal(activity.Metadata)
	if err != nil {
		return err
	}

	return r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO team_activities (activity_id, team_id, actor_id, activity_type, metadata, created_at)
            VALUES ($1,$2,$3,$4,$5,$6)`,
			activity.ID, activity.TeamID, activity.ActorID, activity.Type, metadata, activity.CreatedAt,
		); err != nil {
			return mapError(err)
		}
		return insertOutbox(ctx, tx, outboxEvent{
			AggregateType: "team_activity",
			AggregateID:   activity.ID,
			EventType:     events.TypeTeamActivityRecorded,
			PartitionKey:  activity.TeamID,
			Payload: events.TeamActivityRecorded{
				ActivityID: activity.ID,
				TeamID:     activity.TeamID,
				ActorID:    activity.ActorID,
				Type:       activity.Type,
				Metadata:   activity.Metadata,
				OccurredAt: activity.CreatedAt,
			},
		})
	})
}

// ListTeamActivity implements domain.TeamFeed.
func (r *Repository) ListTeamActivity(ctx context.Context, teamID string, limit int) ([]domain.TeamActivity, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT activity_id, team_id, actor_id, activity_type, metadata, created_at
        FROM team_activities WHERE team_id=$1
        ORDER BY created_at DESC, activity_id DESC
        LIMIT $2`, teamID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.TeamActivity, 0)
	for rows.Next() {
		var (
			activity domain.TeamActivity
			metadata []byte
		)
		if err := rows.Scan(&activity.ID, &activity.TeamID, &activity.ActorID, &activity.Type, &metadata, &activity.CreatedAt); err != nil {
			return nil, err
		}
		activity.Metadata = map[string]any{}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &activity.Metadata); err != nil {
				return nil, fmt.Errorf("decode activity %s metadata: %w", activity.ID, err)
			}
		}
		out = append(out, activity)
	}
	return out, rows.Err()
}

// CompleteTask implements domain.TaskStore.
func (r *Repository) CompleteTask(ctx context.Context, userID, taskID string, at time.Time) (domain.Task, bool, error) {
	var (
		task         domain.Task
		transitioned bool
	)
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		task, err = scanTask(tx.QueryRow(ctx,
			`SELECT task_id, user_id, title, priority, status, due_date, completed_at, created_at
            FROM tasks WHERE task_id=$1 AND user_id=$2 FOR UPDATE`, taskID, userID))
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if task.Status == domain.TaskStatusDone {
			return nil
		}

		completed := at.UTC()
		if _, err := tx.Exec(ctx, `UPDATE tasks SET status='done', completed_at=$2 WHERE task_id=$1`, taskID, completed); err != nil {
			return err
		}
		task.Status = domain.TaskStatusDone
		task.CompletedAt = &completed
		transitioned = true
		return nil
	})
	if err != nil {
		return domain.Task{}, false, err
	}
	return task, transitioned, nil
}

// ToggleHabit implements domain.HabitStore.
func (r *Repository) ToggleHabit(ctx context.Context, userID, habitID string, day time.Time) (bool, error) {
	var created bool
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var owner string
		err := tx.QueryRow(ctx, `SELECT user_id FROM habits WHERE habit_id=$1 FOR UPDATE`, habitID).Scan(&owner)
		if errors.Is(err, pgx.ErrNoRows) || (err == nil && owner != userID) {
			return fmt.Errorf("habit %s: %w", habitID, domain.ErrNotFound)
		}
		if err != nil {
			return err
		}

		date := domain.UTCDay(day)
		tag, err := tx.Exec(ctx, `DELETE FROM habit_logs WHERE habit_id=$1 AND log_date=$2`, habitID, date)
		if err != nil {
			return err
		}
		if tag.RowsAffected() > 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, `INSERT INTO habit_logs (habit_id, log_date, completed) VALUES ($1,$2,TRUE)`, habitID, date); err != nil {
			return mapError(err)
		}
		created = true
		return nil
	})
	return created, err
}

// PutUser implements domain.Fixtures.
func (r *Repository) PutUser(ctx context.Context, user domain.User) (domain.User, error) {
	if strings.TrimSpace(user.ID) == "" {
		user.ID = uuid.NewString()
	}
	if user.Progress.Level < 1 {
		user.Progress.Level = 1
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.Settings.Channels == nil {
		quiet := user.Settings.QuietHours
		user.Settings = domain.DefaultSettings()
		user.Settings.QuietHours = quiet
	}
	user.Settings.QuietHours = domain.NormalizeQuietHours(user.Settings.QuietHours)

	preferences, err := json.Marshal(map[string]bool{"notifications": user.Settings.NotificationsEnabled})
	if err != nil {
		return domain.User{}, err
	}
	prefs, quiet, err := domain.EncodeSettings(user.Settings)
	if err != nil {
		return domain.User{}, err
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO users (user_id, email, name, xp, level, preferences, notification_prefs, quiet_hours, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (user_id) DO UPDATE SET email=EXCLUDED.email, name=EXCLUDED.name, xp=EXCLUDED.xp, level=EXCLUDED.level,
            preferences=EXCLUDED.preferences, notification_prefs=EXCLUDED.notification_prefs, quiet_hours=EXCLUDED.quiet_hours`,
		user.ID, user.Email, user.Name, user.Progress.XP, user.Progress.Level, string(preferences), prefs, quiet, user.CreatedAt,
	)
	if err != nil {
		return domain.User{}, mapError(err)
	}
	return user, nil
}

// PutTask implements domain.Fixtures.
func (r *Repository) PutTask(ctx context.Context, task domain.Task) (domain.Task, error) {
	if strings.TrimSpace(task.ID) == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = domain.TaskStatusTodo
	}
	if task.Priority == "" {
		task.Priority = domain.TaskPriorityMedium
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO tasks (task_id, user_id, title, priority, status, due_date, completed_at, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (task_id) DO UPDATE SET title=EXCLUDED.title, priority=EXCLUDED.priority, status=EXCLUDED.status,
            due_date=EXCLUDED.due_date, completed_at=EXCLUDED.completed_at`,
		task.ID, task.UserID, task.Title, task.Priority, task.Status, task.DueDate, task.CompletedAt, task.CreatedAt,
	)
	if err != nil {
		return domain.Task{}, mapError(err)
	}
	return task, nil
}

// PutHabit implements domain.Fixtures. Logs replace any stored for the habit.
func (r *Repository) PutHabit(ctx context.Context, habit domain.Habit) (domain.Habit, error) {
	if strings.TrimSpace(habit.ID) == "" {
		habit.ID = uuid.NewString()
	}
	if habit.Frequency == "" {
		habit.Frequency = "daily"
	}
	if habit.CreatedAt.IsZero() {
		habit.CreatedAt = time.Now().UTC()
	}

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO habits (habit_id, user_id, title, frequency, created_at) VALUES ($1,$2,$3,$4,$5)
            ON CONFLICT (habit_id) DO UPDATE SET title=EXCLUDED.title, frequency=EXCLUDED.frequency`,
			habit.ID, habit.UserID, habit.Title, habit.Frequency, habit.CreatedAt,
		); err != nil {
			return mapError(err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM habit_logs WHERE habit_id=$1`, habit.ID); err != nil {
			return err
		}
		logs := make([]domain.HabitLog, 0, len(habit.Logs))
		for _, l := range habit.Logs {
			l.HabitID = habit.ID
			l.Date = domain.UTCDay(l.Date)
			if _, err := tx.Exec(ctx,
				`INSERT INTO habit_logs (habit_id, log_date, completed) VALUES ($1,$2,$3)
                ON CONFLICT (habit_id, log_date) DO UPDATE SET completed=EXCLUDED.completed`,
				l.HabitID, l.Date, l.Completed,
			); err != nil {
				return err
			}
			logs = append(logs, l)
		}
		habit.Logs = logs
		return nil
	})
	if err != nil {
		return domain.Habit{}, err
	}
	return habit, nil
}

// AddTeamMember implements domain.Fixtures. Unknown teams are created on the fly.
func (r *Repository) AddTeamMember(ctx context.Context, teamID, userID string) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO teams (team_id, name) VALUES ($1,$1) ON CONFLICT (team_id) DO NOTHING`, teamID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO team_members (team_id, user_id) VALUES ($1,$2) ON CONFLICT (team_id, user_id) DO NOTHING`,
			teamID, userID,
		); err != nil {
			return mapError(err)
		}
		return nil
	})
}
