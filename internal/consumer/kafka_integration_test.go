//go:build integration

package consumer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaContainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	"example.com/engagement/internal/events"
	"example.com/engagement/internal/logger"
	"example.com/engagement/internal/outbox"
)

func TestKafkaProcessorDeliversFramedEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	kafkaC, err := kafkaContainer.RunContainer(ctx, testcontainers.WithEnv(map[string]string{
		"KAFKA_AUTO_CREATE_TOPICS_ENABLE": "true",
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	broker := brokers[0]
	topic := events.TopicAchievements

	conn, err := kafka.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{broker},
		GroupID:     "engagement-integration",
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	var (
		mu       sync.Mutex
		received []Message
	)
	collect := HandlerFunc(func(_ context.Context, msg Message) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, msg)
		return nil
	})

	consumerCtx, stop := context.WithCancel(ctx)
	defer stop()
	proc := NewProcessor(reader, collect, WithLogger(logger.Discard()))
	go func() {
		_ = proc.Run(consumerCtx)
	}()

	producer := outbox.NewKafkaProducer([]string{broker})
	defer producer.Close()

	headers := []kafka.Header{
		{Key: outbox.HeaderEventType, Value: []byte(events.TypeAchievementUnlocked)},
		{Key: outbox.HeaderSchemaSubject, Value: []byte(topic + "-value")},
		{Key: outbox.HeaderAggregateType, Value: []byte("user_achievement")},
	}
	require.NoError(t, producer.WriteMessages(ctx, topic,
		kafka.Message{Key: []byte("user-1"), Value: []byte("not framed"), Headers: headers},
		kafka.Message{Key: []byte("user-1"), Value: framed(7, `{"user_id":"user-1","key":"first_strike"}`), Headers: headers},
	))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 60*time.Second, 500*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	msg := received[0]
	require.Equal(t, events.TypeAchievementUnlocked, msg.EventType)
	require.Equal(t, "user_achievement", msg.AggregateType)
	require.Equal(t, 7, msg.SchemaID)
	require.JSONEq(t, `{"user_id":"user-1","key":"first_strike"}`, string(msg.Payload))
}
