package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/engagement/db"
	"example.com/engagement/internal/auth"
	"example.com/engagement/internal/config"
	"example.com/engagement/internal/domain"
	"example.com/engagement/internal/engagement"
	"example.com/engagement/internal/mail"
	"example.com/engagement/internal/outbox"
	"example.com/engagement/internal/persistence/postgres"
)

// Context is shared by every command.
type Context struct {
	Config config.Config
	Logger *log.Logger
	Out    io.Writer
}

func (c *Context) openPool(ctx context.Context) (*pgxpool.Pool, error) {
	if c.Config.PostgresURL == "" {
		return nil, errors.New("POSTGRES_URL is required")
	}
	pool, err := pgxpool.New(ctx, c.Config.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func (c *Context) service(store domain.Store) (*engagement.Service, error) {
	cfg := c.Config.Mail
	mailer, err := mail.NewSender(cfg.Enabled, mail.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
	}, c.Logger.WithPrefix("mail"))
	if err != nil {
		return nil, err
	}
	return engagement.New(store, mailer,
		engagement.WithLogger(c.Logger),
		engagement.WithNotificationPolicy(c.Config.NotificationCooldown, c.Config.NotificationLimit, c.Config.AuditLimit),
	), nil
}

// MigrateCmd applies the embedded migrations.
type MigrateCmd struct {
	Status bool `help:"Print the applied schema version and exit."`
}

func (cmd *MigrateCmd) Run(c *Context) error {
	ctx := context.Background()
	pool, err := c.openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	migrator := postgres.NewMigrator(pool, db.PostgresMigrations(), c.Logger)
	if cmd.Status {
		version, err := migrator.CurrentVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.Out, "schema version %d\n", version)
		return nil
	}

	applied, err := migrator.Apply(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Out, "applied %d migration(s)\n", applied)
	return nil
}

// SeedCmd installs missing achievement definitions.
type SeedCmd struct {
	Demo  bool   `help:"Also create a demo user with a team, tasks and a habit."`
	Email string `help:"Email of the demo user." default:"operator@nexus.local"`
}

func (cmd *SeedCmd) Run(c *Context) error {
	ctx := context.Background()
	pool, err := c.openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := postgres.NewRepository(pool)
	svc, err := c.service(repo)
	if err != nil {
		return err
	}
	created, err := svc.SeedDefinitions(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Out, "installed %d achievement definition(s)\n", created)

	if !cmd.Demo {
		return nil
	}
	user, err := seedDemo(ctx, repo, cmd.Email, time.Now().UTC())
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Out, "demo user %s (%s)\n", user.ID, user.Email)
	return nil
}

// seedDemo creates a user on a team with one open critical task due soon,
// one routine task and a daily habit checked in yesterday.
func seedDemo(ctx context.Context, fx domain.Fixtures, email string, now time.Time) (domain.User, error) {
	user, err := fx.PutUser(ctx, domain.User{
		Email:    email,
		Name:     "Operator",
		Progress: domain.UserProgress{Level: 1},
		Settings: domain.DefaultSettings(),
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("demo user: %w", err)
	}
	if err := fx.AddTeamMember(ctx, "nexus-ops", user.ID); err != nil {
		return domain.User{}, fmt.Errorf("demo team: %w", err)
	}

	due := now.Add(6 * time.Hour)
	tasks := []domain.Task{
		{UserID: user.ID, Title: "Patch the uplink relay", Priority: domain.TaskPriorityCritical, Status: domain.TaskStatusTodo, DueDate: &due},
		{UserID: user.ID, Title: "Review sector logs", Priority: domain.TaskPriorityMedium, Status: domain.TaskStatusTodo},
	}
	for _, task := range tasks {
		if _, err := fx.PutTask(ctx, task); err != nil {
			return domain.User{}, fmt.Errorf("demo task: %w", err)
		}
	}

	yesterday := domain.UTCDay(now).AddDate(0, 0, -1)
	if _, err := fx.PutHabit(ctx, domain.Habit{
		UserID:    user.ID,
		Title:     "Neural calibration",
		Frequency: "daily",
		Logs:      []domain.HabitLog{{Date: yesterday, Completed: true}},
	}); err != nil {
		return domain.User{}, fmt.Errorf("demo habit: %w", err)
	}
	return user, nil
}

type DLQReplayCmd struct {
	Batch int `help:"Maximum entries to process." default:"50"`
}

func (cmd *DLQReplayCmd) Run(c *Context) error {
	ctx := context.Background()
	pool, err := c.openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, c.Config.DLQMaxRetries, c.Config.DLQBaseDelay, c.Logger.WithPrefix("dlq"))
	processed, err := manager.RunOnce(ctx, cmd.Batch)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Out, "processed %d dead-letter entr(ies)\n", processed)
	return nil
}

type NotifyCmd struct {
	User    string `help:"Recipient user id." required:""`
	Key     string `help:"Alert key; unread alerts with the same key collapse."`
	Title   string `help:"Alert title." required:""`
	Message string `help:"Alert body." required:""`
}

func (cmd *NotifyCmd) Run(c *Context) error {
	ctx := context.Background()
	pool, err := c.openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc, err := c.service(postgres.NewRepository(pool))
	if err != nil {
		return err
	}
	if err := svc.NotifySystem(ctx, cmd.User, cmd.Key, cmd.Title, cmd.Message); err != nil {
		return err
	}
	fmt.Fprintln(c.Out, "alert dispatched")
	return nil
}

// TokenCmd signs a token with the configured secret.
type TokenCmd struct {
	Subject string        `arg:"" help:"User id placed in the sub claim."`
	Scopes  []string      `help:"Scopes to grant." default:"engagement:read,engagement:write"`
	TTL     time.Duration `help:"Token lifetime." default:"1h"`
}

func (cmd *TokenCmd) Run(c *Context) error {
	if c.Config.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	token, err := auth.Issue(auth.Config{Secret: c.Config.JWTSecret, Issuer: c.Config.JWTIssuer},
		cmd.Subject, cmd.Scopes, cmd.TTL, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(c.Out, token)
	return nil
}
