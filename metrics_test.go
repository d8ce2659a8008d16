package sessionkit

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledIsInert(t *testing.T) {
	m := NewMetrics(MetricsConfig{})
	m.Inc(MetricSessionCreated)
	m.Observe(MetricVerifyLatency, time.Millisecond)

	if m.Enabled() {
		t.Fatal("metrics should be disabled")
	}
	if m.Value(MetricSessionCreated) != 0 {
		t.Fatal("disabled metrics recorded a count")
	}

	var nilMetrics *Metrics
	nilMetrics.Inc(MetricSessionCreated)
	nilMetrics.Observe(MetricVerifyLatency, time.Millisecond)
	if nilMetrics.Value(MetricSessionCreated) != 0 || nilMetrics.Enabled() {
		t.Fatal("nil receiver should be inert")
	}
	snap := nilMetrics.Snapshot()
	if snap.Counters == nil || snap.Histograms == nil {
		t.Fatal("nil snapshot should return empty maps")
	}
}

func TestMetricsConcurrentIncrements(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 8
	const perGoroutine = 1000

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				m.Inc(MetricVerifySuccess)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricVerifySuccess); got != goroutines*perGoroutine {
		t.Fatalf("count = %d, want %d", got, goroutines*perGoroutine)
	}
}

func TestMetricsLatencyHistogram(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	samples := []time.Duration{
		500 * time.Microsecond,
		3 * time.Millisecond,
		40 * time.Millisecond,
		2 * time.Second,
	}
	for _, d := range samples {
		m.Observe(MetricVerifyLatency, d)
	}

	// Only the verification latency metric carries a histogram.
	m.Observe(MetricSessionCreated, time.Millisecond)

	snap := m.Snapshot()
	buckets, ok := snap.Histograms[MetricVerifyLatency]
	if !ok {
		t.Fatal("no latency histogram in snapshot")
	}
	var total uint64
	for _, b := range buckets {
		total += b
	}
	if total != uint64(len(samples)) {
		t.Fatalf("histogram total = %d, want %d", total, len(samples))
	}
	if _, found := snap.Histograms[MetricSessionCreated]; found {
		t.Fatal("unexpected histogram for a counter-only metric")
	}
}

func TestMetricsSnapshotIsCopy(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricRefreshSuccess)

	snap := m.Snapshot()
	m.Inc(MetricRefreshSuccess)

	if snap.Counters[MetricRefreshSuccess] != 1 {
		t.Fatalf("snapshot value = %d, want 1", snap.Counters[MetricRefreshSuccess])
	}
	if m.Value(MetricRefreshSuccess) != 2 {
		t.Fatalf("live value = %d, want 2", m.Value(MetricRefreshSuccess))
	}
}
