package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"example.com/engagement/internal/domain"
	"example.com/engagement/internal/events"
)

const definitionColumns = `definition_id, key, title, description, icon, category, target, version, created_at, updated_at`

func scanDefinition(row pgx.Row) (domain.AchievementDefinition, error) {
	var def domain.AchievementDefinition
	err := row.Scan(&def.ID, &def.Key, &def.Title, &def.Description, &def.Icon, &def.Category, &def.Target, &def.Version, &def.CreatedAt, &def.UpdatedAt)
	return def, err
}

// ListDefinitions implements domain.AchievementStore.
func (r *Repository) ListDefinitions(ctx context.Context) ([]domain.AchievementDefinition, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+definitionColumns+` FROM achievement_definitions ORDER BY created_at ASC, definition_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	defs := make([]domain.AchievementDefinition, 0)
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// UpsertDefinition implements domain.AchievementStore. Edits bump the version.
func (r *Repository) UpsertDefinition(ctx context.Context, def domain.AchievementDefinition) (domain.AchievementDefinition, error) {
	if strings.TrimSpace(string(def.Key)) == "" {
		return domain.AchievementDefinition{}, fmt.Errorf("%w: definition key is required", domain.ErrInvalidArgument)
	}

	const stmt = `INSERT INTO achievement_definitions (definition_id, key, title, description, icon, category, target)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (key) DO UPDATE SET
            title=EXCLUDED.title,
            description=EXCLUDED.description,
            icon=EXCLUDED.icon,
            category=EXCLUDED.category,
            target=EXCLUDED.target,
            version=achievement_definitions.version + 1,
            updated_at=NOW()
        RETURNING ` + definitionColumns

	saved, err := scanDefinition(r.pool.QueryRow(ctx, stmt,
		uuid.NewString(), def.Key, def.Title, def.Description, def.Icon, def.Category, def.Target,
	))
	if err != nil {
		return domain.AchievementDefinition{}, mapError(err)
	}
	return saved, nil
}

// ListUserAchievements implements domain.AchievementStore.
func (r *Repository) ListUserAchievements(ctx context.Context, userID string) ([]domain.UserAchievement, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ua.user_achievement_id, ua.user_id, ua.definition_id, d.key, ua.unlocked_at, ua.unlocked_reason
        FROM user_achievements ua JOIN achievement_definitions d ON d.definition_id = ua.definition_id
        WHERE ua.user_id=$1 ORDER BY ua.unlocked_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.UserAchievement, 0)
	for rows.Next() {
		var ua domain.UserAchievement
		if err := rows.Scan(&ua.ID, &ua.UserID, &ua.DefinitionID, &ua.DefinitionKey, &ua.UnlockedAt, &ua.UnlockedReason); err != nil {
			return nil, err
		}
		out = append(out, ua)
	}
	return out, rows.Err()
}

// UnlockAchievement implements domain.AchievementStore. A fresh unlock records
// an achievement.unlocked outbox event in the same transaction.
func (r *Repository) UnlockAchievement(ctx context.Context, unlock domain.UserAchievement) (domain.UserAchievement, bool, error) {
	if strings.TrimSpace(unlock.ID) == "" {
		unlock.ID = uuid.NewString()
	}
	if unlock.UnlockedAt.IsZero() {
		unlock.UnlockedAt = time.Now().UTC()
	}

	var created bool
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO user_achievements (user_achievement_id, user_id, definition_id, unlocked_at, unlocked_reason)
            VALUES ($1,$2,$3,$4,$5)
            ON CONFLICT (user_id, definition_id) DO NOTHING
            RETURNING unlocked_at`,
			unlock.ID, unlock.UserID, unlock.DefinitionID, unlock.UnlockedAt, unlock.UnlockedReason,
		).Scan(&unlock.UnlockedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return tx.QueryRow(ctx,
				`SELECT user_achievement_id, unlocked_at, unlocked_reason FROM user_achievements
                WHERE user_id=$1 AND definition_id=$2`,
				unlock.UserID, unlock.DefinitionID,
			).Scan(&unlock.ID, &unlock.UnlockedAt, &unlock.UnlockedReason)
		}
		if err != nil {
			return mapError(err)
		}

		created = true
		return insertOutbox(ctx, tx, outboxEvent{
			AggregateType: "user_achievement",
			AggregateID:   unlock.ID,
			EventType:     events.TypeAchievementUnlocked,
			PartitionKey:  unlock.UserID,
			Payload: events.AchievementUnlocked{
				UserAchievementID: unlock.ID,
				UserID:            unlock.UserID,
				DefinitionID:      unlock.DefinitionID,
				Key:               string(unlock.DefinitionKey),
				Reason:            unlock.UnlockedReason,
				UnlockedAt:        unlock.UnlockedAt,
			},
		})
	})
	if err != nil {
		return domain.UserAchievement{}, false, err
	}
	return unlock, created, nil
}
