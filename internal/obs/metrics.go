package obs

import (
	"sync/atomic"
	"time"

	"main/internal/model/enum"
)

const maxOpKind = int(enum.OpKindChargeback)

// Metrics collects lightweight counters and latency stats for the engine.
type Metrics struct {
	appliedCounts  [maxOpKind + 1]uint64
	rejectedCounts [maxOpKind + 1]uint64
	duplicates     uint64
	parseSkipped   uint64
	logAppendDrops uint64

	applyLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	AppliedCounts  map[enum.OpKind]uint64
	RejectedCounts map[enum.OpKind]uint64
	Duplicates     uint64
	ParseSkipped   uint64
	LogAppendDrops uint64
	ApplyLatency   LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncApplied counts one successfully applied operation.
func (m *Metrics) IncApplied(kind enum.OpKind) {
	if m == nil {
		return
	}
	idx := int(kind)
	if idx >= 0 && idx < len(m.appliedCounts) {
		atomic.AddUint64(&m.appliedCounts[idx], 1)
	}
}

// IncRejected counts one operation the account actor refused.
func (m *Metrics) IncRejected(kind enum.OpKind) {
	if m == nil {
		return
	}
	idx := int(kind)
	if idx >= 0 && idx < len(m.rejectedCounts) {
		atomic.AddUint64(&m.rejectedCounts[idx], 1)
	}
}

// IncDuplicate counts a registry duplicate verdict.
func (m *Metrics) IncDuplicate() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.duplicates, 1)
}

// IncParseSkipped counts a malformed input record.
func (m *Metrics) IncParseSkipped() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.parseSkipped, 1)
}

// IncLogAppendDrop counts an event log row lost to backpressure or I/O.
func (m *Metrics) IncLogAppendDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.logAppendDrops, 1)
}

// ObserveApply measures one registry-check-to-actor-reply round trip.
func (m *Metrics) ObserveApply(d time.Duration) {
	if m == nil {
		return
	}
	m.applyLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	applied := make(map[enum.OpKind]uint64)
	for i := range m.appliedCounts {
		if v := atomic.LoadUint64(&m.appliedCounts[i]); v > 0 {
			applied[enum.OpKind(i)] = v
		}
	}
	rejected := make(map[enum.OpKind]uint64)
	for i := range m.rejectedCounts {
		if v := atomic.LoadUint64(&m.rejectedCounts[i]); v > 0 {
			rejected[enum.OpKind(i)] = v
		}
	}
	return Snapshot{
		AppliedCounts:  applied,
		RejectedCounts: rejected,
		Duplicates:     atomic.LoadUint64(&m.duplicates),
		ParseSkipped:   atomic.LoadUint64(&m.parseSkipped),
		LogAppendDrops: atomic.LoadUint64(&m.logAppendDrops),
		ApplyLatency:   m.applyLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
