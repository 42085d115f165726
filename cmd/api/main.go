package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/engagement/internal/api"
	"example.com/engagement/internal/auth"
	"example.com/engagement/internal/config"
	"example.com/engagement/internal/domain"
	"example.com/engagement/internal/engagement"
	"example.com/engagement/internal/logger"
	"example.com/engagement/internal/mail"
	"example.com/engagement/internal/outbox"
	"example.com/engagement/internal/persistence/memory"
	"example.com/engagement/internal/persistence/postgres"
	httptransport "example.com/engagement/internal/transport/http"
)

func main() {
	cfg := config.Load()

	lg, err := logger.New(logger.Config{Level: cfg.LogLevel, File: cfg.LogFile, Prefix: "api"})
	if err != nil {
		log.Fatal("failed to build logger", "err", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		store      domain.Store
		dispatcher *outbox.Dispatcher
	)
	if cfg.PostgresURL == "" {
		lg.Warn("POSTGRES_URL not set, running on the in-memory store")
		store = memory.NewStore()
	} else {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			lg.Fatal("failed to connect to postgres", "err", err)
		}
		defer pool.Close()
		store = postgres.NewRepository(pool)

		if len(cfg.KafkaBrokers) > 0 && cfg.SchemaRegistryURL != "" {
			producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, outbox.WithProducerLogger(lg.WithPrefix("kafka")))
			defer producer.Close()

			registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
			dispatcher = outbox.NewDispatcher(pool, producer, registry,
				outbox.WithLogger(lg.WithPrefix("outbox")),
				outbox.WithPolling(cfg.OutboxPollInterval, cfg.OutboxBatchSize),
			)
			go dispatcher.Start(ctx)
		} else {
			lg.Warn("kafka or schema registry not configured, outbox rows stay pending")
		}
	}

	mailer, err := mail.NewSender(cfg.Mail.Enabled, mail.Config{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
	}, lg.WithPrefix("mail"))
	if err != nil {
		lg.Fatal("failed to configure mail", "err", err)
	}

	service := engagement.New(store, mailer,
		engagement.WithLogger(lg),
		engagement.WithNotificationPolicy(cfg.NotificationCooldown, cfg.NotificationLimit, cfg.AuditLimit),
	)

	mux := http.NewServeMux()
	api.NewHandler(service).RegisterRoutes(mux)

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	handler := httptransport.RequestLogger(lg.WithPrefix("http"),
		httptransport.CORS(cfg.CORSOrigin, authMiddleware.Wrap(mux)))
	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), handler)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}
	go func() {
		lg.Info("metrics listening", "addr", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("metrics server error", "err", err)
		}
	}()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		lg.Info("engagement-service listening", "addr", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server error", "err", err)
		}
	}()

	<-shutdownCh
	lg.Info("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Error("graceful shutdown failed", "err", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		lg.Error("metrics server shutdown failed", "err", err)
	}
	if dispatcher != nil {
		dispatcher.Wait()
	}
}
