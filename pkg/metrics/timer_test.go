package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestNewTimer tests timer creation
func TestNewTimer(t *testing.T) {
	timer := NewTimer()

	if timer == nil {
		t.Fatal("NewTimer() returned nil")
	}

	if timer.start.IsZero() {
		t.Error("NewTimer() start time is zero")
	}

	// Verify start time is recent (within last second)
	if time.Since(timer.start) > time.Second {
		t.Error("NewTimer() start time is not recent")
	}
}

// TestTimerDuration tests duration measurement
func TestTimerDuration(t *testing.T) {
	timer := NewTimer()

	sleepDuration := 50 * time.Millisecond
	time.Sleep(sleepDuration)

	if duration := timer.Duration(); duration < sleepDuration {
		t.Errorf("Timer.Duration() = %v, want >= %v", duration, sleepDuration)
	}
}

// TestTimerObserveDuration tests histogram observation
func TestTimerObserveDuration(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_cycle_duration_seconds",
		Help:    "Test duration histogram",
		Buckets: prometheus.DefBuckets,
	})

	timer := NewTimer()
	timer.ObserveDuration(histogram)

	if n := testutil.CollectAndCount(histogram); n != 1 {
		t.Errorf("expected 1 histogram, got %d", n)
	}
}

// TestTimerObserveDurationVec tests histogram vec observation
func TestTimerObserveDurationVec(t *testing.T) {
	histogramVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_operation_duration_seconds",
			Help:    "Test duration histogram vec",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	timer := NewTimer()
	timer.ObserveDurationVec(histogramVec, "put")
	timer.ObserveDurationVec(histogramVec, "delete")

	if n := testutil.CollectAndCount(histogramVec); n != 2 {
		t.Errorf("expected 2 labeled histograms, got %d", n)
	}
}

// TestMultipleTimers tests that multiple timers work independently
func TestMultipleTimers(t *testing.T) {
	timer1 := NewTimer()
	time.Sleep(20 * time.Millisecond)

	timer2 := NewTimer()
	time.Sleep(20 * time.Millisecond)

	if timer1.Duration() <= timer2.Duration() {
		t.Error("timer1 should be running longer than timer2")
	}
}

func TestObserveOperation(t *testing.T) {
	before := testutil.ToFloat64(RegistryOperationsTotal.WithLabelValues("put", ResultFailure))

	ObserveOperation("put", errors.New("boom"))
	ObserveOperation("put", nil)

	after := testutil.ToFloat64(RegistryOperationsTotal.WithLabelValues("put", ResultFailure))
	if after-before != 1 {
		t.Errorf("expected one failure to be counted, got %v", after-before)
	}
}

func TestSetBool(t *testing.T) {
	SetBool(RegistryReachable, true)
	if v := testutil.ToFloat64(RegistryReachable); v != 1 {
		t.Errorf("expected 1, got %v", v)
	}

	SetBool(RegistryReachable, false)
	if v := testutil.ToFloat64(RegistryReachable); v != 0 {
		t.Errorf("expected 0, got %v", v)
	}
}

type fakeSource struct {
	keys int
	age  time.Duration
	has  bool
}

func (f fakeSource) KnownKeyCount() int                 { return f.keys }
func (f fakeSource) SnapshotAge() (time.Duration, bool) { return f.age, f.has }

func TestCollector(t *testing.T) {
	c := NewCollector(fakeSource{keys: 42, age: 3 * time.Second, has: true})
	c.collect()

	if v := testutil.ToFloat64(KnownKeys); v != 42 {
		t.Errorf("expected 42 known keys, got %v", v)
	}
	if v := testutil.ToFloat64(SnapshotAge); v != 3 {
		t.Errorf("expected snapshot age 3, got %v", v)
	}

	NewCollector(fakeSource{}).collect()
	if v := testutil.ToFloat64(SnapshotAge); v != 0 {
		t.Errorf("expected snapshot age 0 without a snapshot, got %v", v)
	}
}
