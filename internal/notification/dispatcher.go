// Package notification detects notifiable conditions and routes them to the
// in-app inbox and email, honouring quiet hours, cooldowns and preferences.
package notification

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"example.com/engagement/internal/domain"
	"example.com/engagement/internal/mail"
	"example.com/engagement/internal/observability"
	"example.com/engagement/internal/quiethours"
)

const (
	// DefaultCooldown is the window in which a delivered type is not dispatched again.
	DefaultCooldown = 2 * time.Hour
	// DefaultNotificationLimit bounds GetNotifications.
	DefaultNotificationLimit = 20
	// DefaultAuditLimit bounds GetAudit.
	DefaultAuditLimit = 50

	dispatchStripes = 64
)

// Audit reasons.
const (
	ReasonDelivered       = "delivered"
	ReasonQuietHours      = "quiet_hours"
	ReasonDuplicateUnread = "duplicate_unread"
	ReasonNoEmail         = "no_email_address"
	ReasonDeliveryFailed  = "delivery_failed"
)

// Option configures optional behaviour for the Dispatcher.
type Option func(*Dispatcher)

// WithLogger overrides the dispatcher logger.
func WithLogger(logger *log.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// WithCooldown overrides the per-type cooldown window.
func WithCooldown(cooldown time.Duration) Option {
	return func(d *Dispatcher) {
		if cooldown > 0 {
			d.cooldown = cooldown
		}
	}
}

// WithLimits overrides the default page sizes of GetNotifications and GetAudit.
func WithLimits(notifications, audit int) Option {
	return func(d *Dispatcher) {
		if notifications > 0 {
			d.notificationLimit = notifications
		}
		if audit > 0 {
			d.auditLimit = audit
		}
	}
}

// Dispatcher runs detection and per-channel delivery.
type Dispatcher struct {
	users  domain.UserStore
	store  domain.NotificationStore
	mailer mail.Sender
	logger *log.Logger
	now    func() time.Time

	cooldown          time.Duration
	notificationLimit int
	auditLimit        int

	// stripes serialise the cooldown check and the audit writes of one
	// (user, type) pair within this process.
	stripes [dispatchStripes]sync.Mutex
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(users domain.UserStore, store domain.NotificationStore, mailer mail.Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		users:             users,
		store:             store,
		mailer:            mailer,
		logger:            log.Default(),
		now:               time.Now,
		cooldown:          DefaultCooldown,
		notificationLimit: DefaultNotificationLimit,
		auditLimit:        DefaultAuditLimit,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DetectAndDispatch scans the user's data and dispatches every candidate.
// Only the initial user read can fail the call.
func (d *Dispatcher) DetectAndDispatch(ctx context.Context, userID string) error {
	activity, err := d.users.GetUserActivity(ctx, userID)
	if err != nil {
		return err
	}
	if !activity.User.Settings.NotificationsEnabled {
		d.logger.Debug("notifications disabled, skipping detection", "user_id", userID)
		return nil
	}

	now := d.now().UTC()
	for _, candidate := range Detect(activity, now) {
		d.dispatch(ctx, activity.User, candidate, now)
	}
	return nil
}

// Notify dispatches an externally raised candidate, such as a system alert.
func (d *Dispatcher) Notify(ctx context.Context, userID string, candidate Candidate) error {
	if !candidate.Type.Valid() {
		return fmt.Errorf("%w: unknown notification type %q", domain.ErrInvalidArgument, candidate.Type)
	}
	if candidate.Metadata == "" {
		candidate.Metadata = "{}"
	}
	user, err := d.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.Settings.NotificationsEnabled {
		return nil
	}
	d.dispatch(ctx, user, candidate, d.now().UTC())
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, user domain.User, c Candidate, now time.Time) {
	mu := d.stripe(user.ID, c.Type)
	mu.Lock()
	defer mu.Unlock()

	recent, err := d.store.LatestAudit(ctx, user.ID, c.Type, now.Add(-d.cooldown))
	if err != nil {
		observability.RecordDropped(string(c.Type), "lookup_failed")
		d.logger.Warn("cooldown lookup failed, dropping candidate", "user_id", user.ID, "type", c.Type, "error", err)
		return
	}
	if recent != nil && recent.Channel != domain.ChannelSuppressed {
		observability.RecordDropped(string(c.Type), "cooldown")
		return
	}

	priority := c.Type.Priority()
	quiet := quiethours.IsQuiet(user.Settings.QuietHours, now)
	for _, channel := range user.Settings.ChannelsFor(c.Type) {
		audit := domain.NotificationAudit{
			UserID:    user.ID,
			Type:      c.Type,
			Channel:   channel,
			CreatedAt: now,
		}
		if quiet && priority != domain.PriorityUrgent {
			audit.Channel = domain.ChannelSuppressed
			audit.Reason = ReasonQuietHours
		} else {
			audit.Reason = d.deliver(ctx, user, c, channel, priority, now)
		}

		if err := d.store.AppendAudit(ctx, audit); err != nil {
			observability.RecordSecondaryFailure("notification_audit")
			d.logger.Warn("append audit failed", "user_id", user.ID, "type", c.Type, "channel", audit.Channel, "error", err)
			continue
		}
		observability.RecordDispatch(string(c.Type), string(audit.Channel))
	}
}

func (d *Dispatcher) stripe(userID string, typ domain.NotificationType) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(typ))
	return &d.stripes[h.Sum32()%dispatchStripes]
}

// deliver runs one channel and returns the audit reason.
func (d *Dispatcher) deliver(ctx context.Context, user domain.User, c Candidate, channel domain.Channel, priority domain.Priority, now time.Time) string {
	switch channel {
	case domain.ChannelInApp:
		created, err := d.store.CreateNotification(ctx, domain.Notification{
			UserID:    user.ID,
			Type:      c.Type,
			Title:     c.Title,
			Message:   c.Message,
			Priority:  priority,
			Metadata:  c.Metadata,
			CreatedAt: now,
		})
		switch {
		case errors.Is(err, domain.ErrConstraintViolation):
			return ReasonDuplicateUnread
		case err != nil:
			observability.RecordSecondaryFailure("notification_create")
			d.logger.Warn("create notification failed", "user_id", user.ID, "type", c.Type, "error", err)
			return ReasonDeliveryFailed
		case !created:
			return ReasonDuplicateUnread
		}
		return ReasonDelivered

	case domain.ChannelEmail:
		if user.Email == "" {
			return ReasonNoEmail
		}
		subject, body, err := mail.RenderAlert(c.Title, c.Message)
		if err == nil {
			err = d.mailer.Send(ctx, user.Email, subject, body)
		}
		if err != nil {
			observability.RecordMailFailure()
			d.logger.Warn("notification email failed", "user_id", user.ID, "type", c.Type, "error", fmt.Errorf("%w: %v", domain.ErrTransport, err))
			return ReasonDeliveryFailed
		}
		return ReasonDelivered
	}
	return ReasonDeliveryFailed
}

// GetNotifications runs detection and returns the newest in-app notifications.
func (d *Dispatcher) GetNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	if err := d.DetectAndDispatch(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		d.logger.Warn("notification detection failed", "user_id", userID, "error", err)
	}
	return d.store.ListNotifications(ctx, userID, d.notificationLimit)
}

// MarkRead marks one of the user's notifications as read.
func (d *Dispatcher) MarkRead(ctx context.Context, userID, notificationID string) error {
	return d.store.MarkRead(ctx, userID, notificationID)
}

// MarkAllRead marks every unread notification of the user as read.
func (d *Dispatcher) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return d.store.MarkAllRead(ctx, userID)
}

// GetAudit returns the newest audit rows of the user.
func (d *Dispatcher) GetAudit(ctx context.Context, userID string) ([]domain.NotificationAudit, error) {
	rows, _, err := d.store.ListAudit(ctx, userID, nil, d.auditLimit)
	return rows, err
}

// ListAudit pages through the user's audit rows, newest first.
func (d *Dispatcher) ListAudit(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.NotificationAudit, *domain.Cursor, error) {
	if limit <= 0 || limit > d.auditLimit {
		limit = d.auditLimit
	}
	return d.store.ListAudit(ctx, userID, cursor, limit)
}
