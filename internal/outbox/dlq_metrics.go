package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	dlqWrittenCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dlq",
		Name:      "events_parked_total",
		Help:      "Engagement events parked in the DLQ after a failed publish.",
	}, []string{"topic", "event_type", "aggregate_type"})

	dlqRequeuedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dlq",
		Name:      "events_requeued_total",
		Help:      "DLQ entries moved back into the outbox.",
	}, []string{"topic", "event_type"})

	dlqQuarantinedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dlq",
		Name:      "events_quarantined_total",
		Help:      "DLQ entries quarantined once their retries ran out.",
	}, []string{"topic", "event_type", "aggregate_type"})

	dlqRetryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dlq",
		Name:      "retries_scheduled_total",
		Help:      "DLQ entries pushed back for a later retry.",
	}, []string{"topic", "event_type"})

	dlqBacklogGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "dlq",
		Name:      "parked_events",
		Help:      "Parked engagement events that are not quarantined, by event type.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(dlqWrittenCounter, dlqRequeuedCounter, dlqQuarantinedCounter, dlqRetryCounter, dlqBacklogGauge)
}

func recordDLQWrite(msg Message) {
	dlqWrittenCounter.WithLabelValues(msg.Topic, msg.EventType, msg.AggregateType).Inc()
}

func recordDLQRequeued(entry dlqEntry) {
	dlqRequeuedCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
}

func recordDLQQuarantined(entry dlqEntry) {
	dlqQuarantinedCounter.WithLabelValues(entry.Topic, entry.EventType, entry.AggregateType).Inc()
}

func recordDLQRetry(entry dlqEntry) {
	dlqRetryCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
}

// updateBacklogGauge recounts the parked events per type and returns the total.
// Types that drained since the last pass drop out of the gauge.
func updateBacklogGauge(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	rows, err := pool.Query(ctx, `SELECT event_type, COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL GROUP BY event_type`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	total := 0
	for rows.Next() {
		var (
			eventType string
			count     int
		)
		if err := rows.Scan(&eventType, &count); err != nil {
			return 0, err
		}
		counts[eventType] = count
		total += count
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	dlqBacklogGauge.Reset()
	for eventType, count := range counts {
		dlqBacklogGauge.WithLabelValues(eventType).Set(float64(count))
	}
	return total, nil
}
