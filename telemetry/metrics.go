// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesIngested prometheus.Counter
	MessagesDeduped  prometheus.Counter
	MentionsRecorded prometheus.Counter
	RepliesLinked    prometheus.Counter
	SnapshotsSaved   prometheus.Counter
	SnapshotsFailed  prometheus.Counter

	// Vectors
	ModerationAttempts *prometheus.CounterVec // labels: action, outcome
	ResolverRefreshes  *prometheus.CounterVec // labels: scope, result

	// Histograms (seconds)
	AnnotateDuration prometheus.Observer

	// Gauges
	ConnectedChannelsGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesIngested = promauto.NewCounter(prometheus.CounterOpts{Name: "moddeck_messages_ingested_total", Help: "Chat messages annotated and appended"})
		MessagesDeduped = promauto.NewCounter(prometheus.CounterOpts{Name: "moddeck_messages_deduped_total", Help: "Duplicate chat messages dropped"})
		MentionsRecorded = promauto.NewCounter(prometheus.CounterOpts{Name: "moddeck_mentions_total", Help: "Keyword mentions recorded"})
		RepliesLinked = promauto.NewCounter(prometheus.CounterOpts{Name: "moddeck_replies_linked_total", Help: "Messages annotated with reply context"})
		SnapshotsSaved = promauto.NewCounter(prometheus.CounterOpts{Name: "moddeck_snapshots_saved_total", Help: "Channel snapshots persisted"})
		SnapshotsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "moddeck_snapshots_failed_total", Help: "Channel snapshot attempts that failed"})
		ModerationAttempts = promauto.NewCounterVec(prometheus.CounterOpts{Name: "moddeck_moderation_attempts_total", Help: "Moderation actions by kind and outcome"}, []string{"action", "outcome"})
		ResolverRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{Name: "moddeck_resolver_refreshes_total", Help: "Badge/emote table refreshes by scope and result"}, []string{"scope", "result"})
		AnnotateDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "moddeck_annotate_duration_seconds", Help: "Per-message annotation duration seconds", Buckets: prometheus.DefBuckets})
		ConnectedChannelsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "moddeck_connected_channels", Help: "Channels currently in connected state"})
	})
}

// IncIngested bumps the ingested counter when metrics are initialized.
func IncIngested() {
	if MessagesIngested != nil {
		MessagesIngested.Inc()
	}
}

func IncDeduped() {
	if MessagesDeduped != nil {
		MessagesDeduped.Inc()
	}
}

func IncMention() {
	if MentionsRecorded != nil {
		MentionsRecorded.Inc()
	}
}

func IncReplyLinked() {
	if RepliesLinked != nil {
		RepliesLinked.Inc()
	}
}

func IncSnapshotSaved() {
	if SnapshotsSaved != nil {
		SnapshotsSaved.Inc()
	}
}

func IncSnapshotFailed() {
	if SnapshotsFailed != nil {
		SnapshotsFailed.Inc()
	}
}

// IncModeration records one moderation attempt outcome
// (helix/legacy/permission_denied/not_found/failed).
func IncModeration(action, outcome string) {
	if ModerationAttempts != nil {
		ModerationAttempts.WithLabelValues(action, outcome).Inc()
	}
}

// IncResolverRefresh records a badge/emote refresh by scope (global/channel).
func IncResolverRefresh(scope string, ok bool) {
	if ResolverRefreshes == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	ResolverRefreshes.WithLabelValues(scope, result).Inc()
}

// SetConnectedChannels records how many channels are currently connected.
func SetConnectedChannels(n int) {
	if ConnectedChannelsGauge != nil {
		ConnectedChannelsGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
