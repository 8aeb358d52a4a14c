package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	// Second call must not re-register (promauto panics on duplicates).
	Init()

	if MessagesIngested == nil || MessagesDeduped == nil {
		t.Error("message counters not initialized")
	}
	if ModerationAttempts == nil || ResolverRefreshes == nil {
		t.Error("labelled counters not initialized")
	}
	if AnnotateDuration == nil {
		t.Error("annotate histogram not initialized")
	}
	if ConnectedChannelsGauge == nil {
		t.Error("connected channels gauge not initialized")
	}
}

func TestHelpersDoNotPanic(t *testing.T) {
	Init()

	IncIngested()
	IncDeduped()
	IncMention()
	IncReplyLinked()
	IncSnapshotSaved()
	IncSnapshotFailed()
	IncModeration("timeout", "ok")
	IncModeration("ban", "permission_denied")
	IncResolverRefresh("global", true)
	IncResolverRefresh("channel", false)
	SetConnectedChannels(0)
	SetConnectedChannels(3)
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	testHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration",
		Buckets: prometheus.DefBuckets,
	})
	prometheus.MustRegister(testHistogram)
	defer prometheus.Unregister(testHistogram)

	executed := false
	duration := TimeFunc(testHistogram, func() {
		time.Sleep(10 * time.Millisecond)
		executed = true
	})
	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if duration < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", duration)
	}

	metric := &dto.Metric{}
	if err := testHistogram.Write(metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if metric.Histogram == nil || *metric.Histogram.SampleCount == 0 {
		t.Error("TimeFunc did not record observation in histogram")
	}
}

func TestTimeFuncNilObserver(t *testing.T) {
	d := TimeFunc(nil, func() {})
	if d < 0 {
		t.Errorf("duration = %v", d)
	}
}
