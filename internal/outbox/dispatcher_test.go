package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/engagement/internal/events"
	"example.com/engagement/internal/logger"
)

type stubProducer struct {
	mu     sync.Mutex
	err    error
	writes []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	copied := make([]kafka.Message, len(msgs))
	copy(copied, msgs)
	s.writes = append(s.writes, writtenBatch{topic: topic, messages: copied})
	return nil
}

type stubRegistry struct {
	mu    sync.Mutex
	id    int
	err   error
	calls []string
}

func (s *stubRegistry) EnsureSchema(_ context.Context, subject string, _ string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, subject)
	if s.err != nil {
		return 0, s.err
	}
	if s.id == 0 {
		s.id = 1
	}
	return s.id, nil
}

func testMessage(eventType, topic, key string) Message {
	return Message{
		EventID:       1,
		AggregateType: "user_achievement",
		AggregateID:   "ua-1",
		EventType:     eventType,
		Topic:         topic,
		SchemaSubject: topic + "-value",
		PartitionKey:  key,
		Payload:       json.RawMessage(`{"user_id":"u1"}`),
	}
}

func TestDeliverFramesPayloadAndSetsHeaders(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	d := NewDispatcher(nil, producer, registry, WithLogger(logger.Discard()))

	msg := testMessage(events.TypeAchievementUnlocked, events.TopicAchievements, "u1")
	require.NoError(t, d.deliver(context.Background(), []Message{msg}))

	require.Len(t, producer.writes, 1)
	require.Equal(t, events.TopicAchievements, producer.writes[0].topic)
	record := producer.writes[0].messages[0]
	require.Equal(t, []byte("u1"), record.Key)
	require.Equal(t, byte(0), record.Value[0])
	require.Equal(t, uint32(42), binary.BigEndian.Uint32(record.Value[1:5]))
	require.JSONEq(t, `{"user_id":"u1"}`, string(record.Value[5:]))

	headers := map[string]string{}
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, events.TypeAchievementUnlocked, headers[HeaderEventType])
	require.Equal(t, events.TopicAchievements+"-value", headers[HeaderSchemaSubject])
	require.Equal(t, "user_achievement", headers[HeaderAggregateType])
}

func TestDeliverCachesSchemaIDsAndGroupsByTopic(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 3}
	d := NewDispatcher(nil, producer, registry, WithLogger(logger.Discard()))

	batch := []Message{
		testMessage(events.TypeAchievementUnlocked, events.TopicAchievements, "u1"),
		testMessage(events.TypeNotificationDispatched, events.TopicNotifications, "u1"),
		testMessage(events.TypeAchievementUnlocked, events.TopicAchievements, "u2"),
	}
	require.NoError(t, d.deliver(context.Background(), batch))
	require.NoError(t, d.deliver(context.Background(), batch[:1]))

	require.Len(t, registry.calls, 2)
	require.Len(t, producer.writes, 3)
	require.Equal(t, events.TopicAchievements, producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 2)
	require.Equal(t, events.TopicNotifications, producer.writes[1].topic)
}

func TestDeliverRejectsUnknownEventType(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{}
	d := NewDispatcher(nil, producer, registry, WithLogger(logger.Discard()))

	err := d.deliver(context.Background(), []Message{testMessage("legacy.event", "legacy", "k")})
	require.ErrorContains(t, err, "no schema registered for event_type=legacy.event")
	require.Empty(t, producer.writes)
	require.Empty(t, registry.calls)
}

func TestDeliverPropagatesProducerAndRegistryErrors(t *testing.T) {
	msg := testMessage(events.TypeTeamActivityRecorded, events.TopicTeamActivity, "team-1")

	d := NewDispatcher(nil, &stubProducer{err: errors.New("broker down")}, &stubRegistry{}, WithLogger(logger.Discard()))
	require.ErrorContains(t, d.deliver(context.Background(), []Message{msg}), "broker down")

	d = NewDispatcher(nil, &stubProducer{}, &stubRegistry{err: errors.New("registry down")}, WithLogger(logger.Discard()))
	require.ErrorContains(t, d.deliver(context.Background(), []Message{msg}), "registry down")
}

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	m := NewDLQManager(nil, 0, 0, logger.Discard())
	require.Equal(t, 5, m.maxRetries)
	require.Equal(t, m.baseDelay, m.backoffDelay(1))
	require.Equal(t, 4*m.baseDelay, m.backoffDelay(3))
	require.Equal(t, m.baseDelay*32, m.backoffDelay(6))
	require.Equal(t, 60*m.baseDelay, m.backoffDelay(7))
	require.Equal(t, 60*m.baseDelay, m.backoffDelay(64))
}

func TestSchemaCatalogCoversEveryEvent(t *testing.T) {
	for _, eventType := range []string{events.TypeAchievementUnlocked, events.TypeTeamActivityRecorded, events.TypeNotificationDispatched} {
		schema, ok := schemaForEvent(eventType)
		require.True(t, ok, eventType)
		require.True(t, json.Valid([]byte(schema)), eventType)
	}
}

func TestKafkaProducerRejectsWritesAfterClose(t *testing.T) {
	producer := NewKafkaProducer([]string{"localhost:9092"}, WithBatchTimeout(time.Millisecond))
	require.NoError(t, producer.Close())

	err := producer.WriteMessages(context.Background(), "engagement_achievements", kafka.Message{Value: []byte("x")})
	require.ErrorIs(t, err, errProducerClosed)
}
