package authflow

import (
	"sort"
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter or histogram.
type MetricID uint16

const (
	MetricRegisterSuccess MetricID = iota
	MetricRegisterFailure
	MetricRegisterFastPath
	MetricVerifySuccess
	MetricVerifyFailure
	MetricCodeSendSuccess
	MetricCodeSendFailure
	MetricResendThrottled
	MetricRecoveryIdentifySuccess
	MetricRecoveryIdentifyFailure
	MetricPasswordResetSuccess
	MetricPasswordResetFailure
	MetricLoginSuccess
	MetricLoginFailure
	MetricChallengeRequired
	MetricChallengeFetched
	MetricLocalValidationRejected
	MetricStepBack
	MetricStaleResponseDropped
	MetricUnmappedFailure
	// MetricGatewayLatency is the only histogram: wall time of one gateway call.
	MetricGatewayLatency
	metricIDCount
)

// LatencyBounds are the inclusive upper bounds of the gateway latency
// buckets. One more bucket holds everything slower.
var LatencyBounds = [...]time.Duration{
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	2500 * time.Millisecond,
	5 * time.Second,
}

const latencyBucketCount = len(LatencyBounds) + 1

// paddedCounter sits alone on its cache line so flows on different cores
// do not contend.
type paddedCounter struct {
	atomic.Uint64
	_ [56]byte
}

// Metrics is a fixed set of lock-free counters shared by every flow of a
// Client. A nil or disabled Metrics ignores every update.
type Metrics struct {
	enabled bool
	latency bool

	counters   [metricIDCount]paddedCounter
	buckets    [latencyBucketCount]atomic.Uint64
	latencySum atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of Metrics. Histograms holds
// per-bucket counts, not running totals, in LatencyBounds order.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
	// LatencySum is the total time of every observed gateway call.
	LatencySum time.Duration
}

func emptySnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.latency
}

func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount || id == MetricGatewayLatency {
		return
	}
	m.counters[id].Add(1)
}

// Observe records d in the histogram id. Only MetricGatewayLatency is a
// histogram; other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricGatewayLatency {
		return
	}
	m.buckets[latencyBucket(d)].Add(1)
	m.latencySum.Add(int64(d))
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].Load()
}

// Snapshot copies every counter, and the latency histogram when enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := emptySnapshot()
	if !m.Enabled() {
		return s
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if id != MetricGatewayLatency {
			s.Counters[id] = m.counters[id].Load()
		}
	}
	if m.latency {
		buckets := make([]uint64, latencyBucketCount)
		for i := range buckets {
			buckets[i] = m.buckets[i].Load()
		}
		s.Histograms[MetricGatewayLatency] = buckets
		s.LatencySum = time.Duration(m.latencySum.Load())
	}
	return s
}

func latencyBucket(d time.Duration) int {
	return sort.Search(len(LatencyBounds), func(i int) bool { return d <= LatencyBounds[i] })
}
