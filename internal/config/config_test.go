package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"POSTGRES_URL", "KAFKA_BROKERS", "MAIL_ENABLED", "NOTIFICATION_COOLDOWN", "CONSUMER_TOPICS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Empty(t, cfg.PostgresURL)
	require.Empty(t, cfg.KafkaBrokers)
	require.False(t, cfg.Mail.Enabled)
	require.Equal(t, 2*time.Hour, cfg.NotificationCooldown)
	require.Equal(t, 20, cfg.NotificationLimit)
	require.Equal(t, 50, cfg.AuditLimit)
	require.Len(t, cfg.ConsumerTopics, 3)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " kafka-1:9092, ,kafka-2:9092 ")
	t.Setenv("MAIL_ENABLED", "true")
	t.Setenv("MAIL_PORT", "2525")
	t.Setenv("NOTIFICATION_COOLDOWN", "30m")
	t.Setenv("OUTBOX_BATCH_SIZE", "not-a-number")
	t.Setenv("DLQ_BASE_DELAY", "-5s")

	cfg := Load()
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	require.True(t, cfg.Mail.Enabled)
	require.Equal(t, 2525, cfg.Mail.Port)
	require.Equal(t, 30*time.Minute, cfg.NotificationCooldown)
	require.Equal(t, 25, cfg.OutboxBatchSize)
	require.Equal(t, time.Minute, cfg.DLQBaseDelay)
}

func TestLoadFileDoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("JWT_ISSUER=from-file\nAUDIT_LIMIT=10\n"), 0o600))

	t.Setenv("JWT_ISSUER", "from-env")
	t.Setenv("AUDIT_LIMIT", "")
	require.NoError(t, os.Unsetenv("AUDIT_LIMIT"))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.JWTIssuer)
	require.Equal(t, 10, cfg.AuditLimit)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.env"))
	require.Error(t, err)
}
