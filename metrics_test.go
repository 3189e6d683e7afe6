package authflow

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)

	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Fatalf("expected empty snapshot, got %v", snap.Counters)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricCodeSendSuccess)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricCodeSendSuccess); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
	m.Inc(MetricGatewayLatency)
	if got := m.Value(MetricGatewayLatency); got != 0 {
		t.Fatalf("histogram id must not count, got %d", got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		time.Second,
		2500 * time.Millisecond,
		5 * time.Second,
		8 * time.Second,
	}
	for _, d := range observations {
		m.Observe(MetricGatewayLatency, d)
	}
	// Counters are not histograms.
	m.Observe(MetricLoginSuccess, time.Millisecond)

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricGatewayLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
	if _, ok := snap.Histograms[MetricLoginSuccess]; ok {
		t.Fatal("counter must not appear as a histogram")
	}
	if want := 17400 * time.Millisecond; snap.LatencySum != want {
		t.Fatalf("LatencySum = %v, want %v", snap.LatencySum, want)
	}
}

func TestLatencyBucketEdges(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int
	}{
		{0, 0},
		{50*time.Millisecond + 1, 1},
		{999 * time.Millisecond, 4},
		{5*time.Second + 1, len(LatencyBounds)},
		{time.Hour, len(LatencyBounds)},
	}
	for _, tt := range tests {
		if got := latencyBucket(tt.d); got != tt.want {
			t.Errorf("latencyBucket(%v) = %d, want %d", tt.d, got, tt.want)
		}
	}
}

func TestNilMetricsIsInert(t *testing.T) {
	var m *Metrics
	m.Inc(MetricLoginSuccess)
	m.Observe(MetricGatewayLatency, time.Second)
	if m.Value(MetricLoginSuccess) != 0 || m.Enabled() || len(m.Snapshot().Counters) != 0 {
		t.Fatal("nil Metrics must read as zero")
	}
}

func TestMetricsSnapshotOmitsHistogramWhenLatencyDisabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricStepBack)
	m.Observe(MetricGatewayLatency, time.Millisecond)

	snap := m.Snapshot()
	if snap.Counters[MetricStepBack] != 1 {
		t.Fatalf("expected MetricStepBack=1, got %d", snap.Counters[MetricStepBack])
	}
	if len(snap.Histograms) != 0 {
		t.Fatalf("expected no histograms, got %v", snap.Histograms)
	}
	if _, ok := snap.Counters[MetricGatewayLatency]; ok {
		t.Fatal("latency must not be reported as a counter")
	}
}

func BenchmarkMetricsIncParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Inc(MetricLoginSuccess)
		}
	})
}
