// Package postgres implements the engagement stores on Postgres. Every write
// that other services care about records an outbox row in the same transaction.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/engagement/internal/domain"
	"example.com/engagement/internal/events"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Repository provides Postgres-backed persistence for the engagement engine.
type Repository struct {
	pool *pgxpool.Pool
}

var (
	_ domain.Store    = (*Repository)(nil)
	_ domain.Fixtures = (*Repository)(nil)
)

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// outboxEvent is a domain event waiting to be recorded with its aggregate.
type outboxEvent struct {
	AggregateType string
	AggregateID   string
	EventType     string
	PartitionKey  string
	Payload       any
}

func insertOutbox(ctx context.Context, tx pgx.Tx, evt outboxEvent) error {
	body, err := json.Marshal(evt.Payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[evt.EventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", evt.EventType)
	}

	dedupeKey := fmt.Sprintf("%s:%s", evt.AggregateID, evt.EventType)

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		evt.AggregateType,
		evt.AggregateID,
		evt.EventType,
		meta.Topic,
		meta.SchemaSubject,
		evt.PartitionKey,
		body,
		dedupeKey,
	)
	return err
}

// mapError translates constraint failures into domain errors.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return fmt.Errorf("%w: %s", domain.ErrConstraintViolation, pgErr.ConstraintName)
	case codeForeignKeyViolation:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, pgErr.ConstraintName)
	}
	return err
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeAchievementUnlocked: {
		Topic:         events.TopicAchievements,
		SchemaSubject: events.TopicAchievements + "-value",
	},
	events.TypeTeamActivityRecorded: {
		Topic:         events.TopicTeamActivity,
		SchemaSubject: events.TopicTeamActivity + "-value",
	},
	events.TypeNotificationDispatched: {
		Topic:         events.TopicNotifications,
		SchemaSubject: events.TopicNotifications + "-value",
	},
}
