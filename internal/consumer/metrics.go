package consumer

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "engagement_service"

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "events_committed_total",
		Help:      "Engagement events handled and committed, by topic, event type and aggregate.",
	}, []string{"topic", "event_type", "aggregate_type"})

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "handler_errors_total",
		Help:      "Engagement events left uncommitted after a handler error.",
	}, []string{"topic", "event_type", "aggregate_type"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "undecodable_records_total",
		Help:      "Records skipped because they were not Confluent-framed engagement events.",
	}, []string{"topic", "reason"})

	deliveryLagHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "event_commit_lag_seconds",
		Help:      "Time between the record timestamp and its commit.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(processedCounter, handlerErrorCounter, decodeErrorCounter, deliveryLagHistogram)
}

// Decode failure reasons.
const (
	reasonShort            = "short_record"
	reasonMagic            = "unknown_magic"
	reasonMissingEventType = "missing_event_type"
	reasonInvalidJSON      = "invalid_json"
	reasonOther            = "other"
)

func decodeReason(err error) string {
	switch {
	case errors.Is(err, errShortRecord):
		return reasonShort
	case errors.Is(err, errUnknownMagic):
		return reasonMagic
	case errors.Is(err, errMissingEventType):
		return reasonMissingEventType
	case errors.Is(err, errInvalidPayload):
		return reasonInvalidJSON
	}
	return reasonOther
}

func recordProcessed(msg Message, now time.Time) {
	processedCounter.WithLabelValues(msg.Topic, msg.EventType, aggregateLabel(msg)).Inc()
	if !msg.Timestamp.IsZero() {
		deliveryLagHistogram.WithLabelValues(msg.Topic).Observe(max(now.Sub(msg.Timestamp).Seconds(), 0))
	}
}

func recordHandlerError(msg Message) {
	handlerErrorCounter.WithLabelValues(msg.Topic, msg.EventType, aggregateLabel(msg)).Inc()
}

func recordDecodeError(topic string, err error) {
	decodeErrorCounter.WithLabelValues(topic, decodeReason(err)).Inc()
}

func aggregateLabel(msg Message) string {
	if msg.AggregateType == "" {
		return "unknown"
	}
	return msg.AggregateType
}
