package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "engagement_service"

var (
	xpAwardedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "leveling",
		Name:      "xp_awarded_total",
		Help:      "Experience points awarded, labeled by completion source.",
	}, []string{"source"})

	levelUpCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "leveling",
		Name:      "level_ups_total",
		Help:      "Number of levels gained across all awards.",
	})

	progressConflictCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "leveling",
		Name:      "progress_conflicts_total",
		Help:      "Number of XP award attempts retried after a concurrent progress update.",
	})

	achievementUnlockedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "achievements",
		Name:      "unlocked_total",
		Help:      "Achievements unlocked, labeled by definition key.",
	}, []string{"key"})

	dispatchCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "dispatched_total",
		Help:      "Channel-level dispatch outcomes, labeled by type and audited channel.",
	}, []string{"type", "channel"})

	droppedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "candidates_dropped_total",
		Help:      "Detected candidates dropped before dispatch, labeled by type and reason.",
	}, []string{"type", "reason"})

	mailFailureCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "mail_failures_total",
		Help:      "Number of notification emails that failed to send.",
	})

	secondaryFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "secondary_write_failures_total",
		Help:      "Best-effort writes that failed without failing the enclosing operation.",
	}, []string{"effect"})

	lastEvaluationGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "achievements",
		Name:      "last_evaluation_timestamp_seconds",
		Help:      "Unix timestamp of the most recent achievement evaluation.",
	})
)

func init() {
	prometheus.MustRegister(
		xpAwardedCounter,
		levelUpCounter,
		progressConflictCounter,
		achievementUnlockedCounter,
		dispatchCounter,
		droppedCounter,
		mailFailureCounter,
		secondaryFailureCounter,
		lastEvaluationGauge,
	)
}

// RecordXPAwarded counts an applied award.
func RecordXPAwarded(source string, amount int64, levelsGained int) {
	xpAwardedCounter.WithLabelValues(source).Add(float64(amount))
	if levelsGained > 0 {
		levelUpCounter.Add(float64(levelsGained))
	}
}

// RecordProgressConflict counts a compare-and-swap retry.
func RecordProgressConflict() {
	progressConflictCounter.Inc()
}

// RecordAchievementUnlocked counts a newly persisted unlock.
func RecordAchievementUnlocked(key string) {
	achievementUnlockedCounter.WithLabelValues(key).Inc()
}

// RecordEvaluation updates the evaluation watermark gauge.
func RecordEvaluation(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastEvaluationGauge.Set(float64(ts.Unix()))
}

// RecordDispatch counts one audited channel outcome.
func RecordDispatch(notificationType, channel string) {
	dispatchCounter.WithLabelValues(notificationType, channel).Inc()
}

// RecordDropped counts a candidate dropped before any channel ran.
func RecordDropped(notificationType, reason string) {
	droppedCounter.WithLabelValues(notificationType, reason).Inc()
}

// RecordMailFailure counts a failed email send.
func RecordMailFailure() {
	mailFailureCounter.Inc()
}

// RecordSecondaryFailure counts a swallowed best-effort write failure.
func RecordSecondaryFailure(effect string) {
	secondaryFailureCounter.WithLabelValues(effect).Inc()
}
