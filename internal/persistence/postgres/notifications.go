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

// CreateNotification implements domain.NotificationStore. The partial unique
// index on unread rows turns a duplicate into a silent no-op.
func (r *Repository) CreateNotification(ctx context.Context, n domain.Notification) (bool, error) {
	if strings.TrimSpace(n.ID) == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Metadata == "" {
		n.Metadata = "{}"
	}

	tag, err := r.pool.Exec(ctx,
		`INSERT INTO notifications (notification_id, user_id, type, title, message, priority, metadata, is_read, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (user_id, type, metadata) WHERE NOT is_read DO NOTHING`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.Priority, n.Metadata, n.IsRead, n.CreatedAt,
	)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListNotifications implements domain.NotificationStore, newest first.
func (r *Repository) ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx,
		`SELECT notification_id, user_id, type, title, message, priority, metadata, is_read, created_at
        FROM notifications WHERE user_id=$1
        ORDER BY created_at DESC, notification_id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Notification, 0)
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Priority, &n.Metadata, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead implements domain.NotificationStore.
func (r *Repository) MarkRead(ctx context.Context, userID, notificationID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET is_read=TRUE WHERE notification_id=$1 AND user_id=$2`,
		notificationID, userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification %s: %w", notificationID, domain.ErrNotFound)
	}
	return nil
}

// MarkAllRead implements domain.NotificationStore.
func (r *Repository) MarkAllRead(ctx context.Context, userID string) (int, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET is_read=TRUE WHERE user_id=$1 AND NOT is_read`, userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// AppendAudit implements domain.NotificationStore and records a
// notification.dispatched outbox event with the row.
func (r *Repository) AppendAudit(ctx context.Context, audit domain.NotificationAudit) error {
	if strings.TrimSpace(audit.ID) == "" {
		audit.ID = uuid.NewString()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now().UTC()
	}

	return r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO notification_audit (audit_id, user_id, type, channel, reason, created_at)
            VALUES ($1,$2,$3,$4,$5,$6)`,
			audit.ID, audit.UserID, audit.Type, audit.Channel, audit.Reason, audit.CreatedAt,
		); err != nil {
			return mapError(err)
		}
		return insertOutbox(ctx, tx, outboxEvent{
			AggregateType: "notification_audit",
			AggregateID:   audit.ID,
			EventType:     events.TypeNotificationDispatched,
			PartitionKey:  audit.UserID,
			Payload: events.NotificationDispatched{
				AuditID:    audit.ID,
				UserID:     audit.UserID,
				Type:       string(audit.Type),
				Channel:    string(audit.Channel),
				Reason:     audit.Reason,
				OccurredAt: audit.CreatedAt,
			},
		})
	})
}

const auditColumns = `audit_id, user_id, type, channel, reason, created_at`

func scanAudit(row pgx.Row) (domain.NotificationAudit, error) {
	var a domain.NotificationAudit
	err := row.Scan(&a.ID, &a.UserID, &a.Type, &a.Channel, &a.Reason, &a.CreatedAt)
	return a, err
}

// LatestAudit implements domain.NotificationStore.
func (r *Repository) LatestAudit(ctx context.Context, userID string, t domain.NotificationType, since time.Time) (*domain.NotificationAudit, error) {
	a, err := scanAudit(r.pool.QueryRow(ctx,
		`SELECT `+auditColumns+` FROM notification_audit
        WHERE user_id=$1 AND type=$2 AND created_at >= $3
        ORDER BY created_at DESC, audit_id DESC LIMIT 1`,
		userID, t, since,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAudit implements domain.NotificationStore using keyset pagination on
// (created_at, audit_id) descending.
func (r *Repository) ListAudit(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.NotificationAudit, *domain.Cursor, error) {
	if limit <= 0 {
		limit = 50
	}

	args := []any{userID}
	query := `SELECT ` + auditColumns + ` FROM notification_audit WHERE user_id=$1`
	if cursor != nil {
		query += ` AND (created_at, audit_id) < ($2, $3)`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, audit_id DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.NotificationAudit, 0, limit)
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return results, next, nil
}
