// Package config reads the engagement service configuration from the
// environment, optionally seeded from a .env file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures runtime configuration for every binary.
type Config struct {
	HTTPAddress    string
	MetricsAddress string
	CORSOrigin     string

	// PostgresURL selects the Postgres store; empty runs on the in-memory store.
	PostgresURL string

	KafkaBrokers       []string
	SchemaRegistryURL  string
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	ConsumerGroupID    string
	ConsumerTopics     []string

	DLQPollInterval time.Duration
	DLQMaxRetries   int
	DLQBaseDelay    time.Duration
	DLQBatchSize    int

	JWTSecret string
	JWTIssuer string

	LogLevel string
	LogFile  string

	Mail Mail

	NotificationCooldown time.Duration
	NotificationLimit    int
	AuditLimit           int
}

// Mail holds SMTP settings. Delivery is logged only unless Enabled is set.
type Mail struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Load reads .env from the working directory when present and then the
// environment. Variables already set in the environment win over the file.
func Load() Config {
	_ = godotenv.Load()
	return fromEnv()
}

// LoadFile is Load with an explicit env file. A missing file is an error.
func LoadFile(path string) (Config, error) {
	if err := godotenv.Load(path); err != nil {
		return Config{}, err
	}
	return fromEnv(), nil
}

func fromEnv() Config {
	return Config{
		HTTPAddress:    getEnv("HTTP_ADDRESS", ":8080"),
		MetricsAddress: getEnv("METRICS_ADDRESS", ":9090"),
		CORSOrigin:     getEnv("CORS_ORIGIN", "*"),

		PostgresURL: getEnv("POSTGRES_URL", ""),

		KafkaBrokers:       splitAndTrim(getEnv("KAFKA_BROKERS", "")),
		SchemaRegistryURL:  getEnv("SCHEMA_REGISTRY_URL", "http://schema-registry:8081"),
		OutboxPollInterval: getDurationEnv("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:    getIntEnv("OUTBOX_BATCH_SIZE", 25),
		ConsumerGroupID:    getEnv("CONSUMER_GROUP_ID", "engagement-event-log"),
		ConsumerTopics: splitAndTrim(getEnv("CONSUMER_TOPICS",
			"engagement_achievements,engagement_team_activity,engagement_notifications")),

		DLQPollInterval: getDurationEnv("DLQ_POLL_INTERVAL", 30*time.Second),
		DLQMaxRetries:   getIntEnv("DLQ_MAX_RETRIES", 5),
		DLQBaseDelay:    getDurationEnv("DLQ_BASE_DELAY", time.Minute),
		DLQBatchSize:    getIntEnv("DLQ_BATCH_SIZE", 50),

		JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),
		JWTIssuer: getEnv("JWT_ISSUER", "nexus.identity"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		Mail: Mail{
			Enabled:  getBoolEnv("MAIL_ENABLED", false),
			Host:     getEnv("MAIL_HOST", "localhost"),
			Port:     getIntEnv("MAIL_PORT", 587),
			Username: getEnv("MAIL_USER", ""),
			Password: getEnv("MAIL_PASS", ""),
			From:     getEnv("MAIL_FROM", "nexus@localhost"),
		},

		NotificationCooldown: getDurationEnv("NOTIFICATION_COOLDOWN", 2*time.Hour),
		NotificationLimit:    getIntEnv("NOTIFICATION_LIMIT", 20),
		AuditLimit:           getIntEnv("AUDIT_LIMIT", 50),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
