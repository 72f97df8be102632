package foundation

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// SafetyMonitor holds process-wide counters: allocations, allocation
// failures, budget violations, capability violations, leaked guards, fatal
// errors, bytes released — and exposes a health score 0-100, per
// spec.md §3.1 and grounded on wrt-foundation/src/safety_monitor.rs.
//
// log defaults to zap.NewNop() so a monitor built without WithLogger
// never needs a nil check; metrics defaults to leaving currentBytesGauge/
// healthScoreGauge nil, in which case threshold crossings are only
// logged, never exported, matching inos_v1's mesh scheduler's own
// "metrics are an optional Registerer away" convention.
type SafetyMonitor struct {
	system *System
	log    *zap.Logger

	allocations          uint64
	allocationFailures   uint64
	budgetViolations     uint64
	capabilityViolations uint64
	leakedGuards         uint64
	fatalErrors          uint64
	bytesReleased        uint64

	currentBytesGauge prometheus.Gauge
	healthScoreGauge  prometheus.Gauge
}

// MonitorOption configures a SafetyMonitor at construction time.
type MonitorOption func(*SafetyMonitor)

// WithLogger attaches a structured logger; threshold crossings and fatal
// policy decisions are emitted through it at Warn/Error level.
func WithLogger(log *zap.Logger) MonitorOption {
	return func(m *SafetyMonitor) { m.log = log }
}

// WithMetrics registers current_bytes and health_score gauges against reg,
// mirroring inos_v1's mesh scheduler metrics naming.
func WithMetrics(reg prometheus.Registerer) MonitorOption {
	return func(m *SafetyMonitor) {
		m.currentBytesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wrt_current_bytes",
			Help: "Bytes currently allocated across all crates.",
		})
		m.healthScoreGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wrt_health_score",
			Help: "SafetyMonitor-derived health score, 0-100.",
		})
		if reg != nil {
			reg.MustRegister(m.currentBytesGauge, m.healthScoreGauge)
		}
	}
}

// MonitorPolicy is the action the monitor takes when a crate's
// current/limit ratio crosses a threshold, per spec.md §4.1.
type MonitorPolicy uint8

const (
	PolicyObserve MonitorPolicy = iota
	PolicyThrottle
	PolicyFatal
)

// Severity classifies a threshold crossing.
type Severity uint8

const (
	SeverityNone Severity = iota
	SeverityWarning
	SeverityCritical
)

// NewSafetyMonitor constructs a monitor bound to system.
func NewSafetyMonitor(system *System, opts ...MonitorOption) *SafetyMonitor {
	m := &SafetyMonitor{system: system, log: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *SafetyMonitor) recordAllocation(size uint64) { atomic.AddUint64(&m.allocations, 1) }
func (m *SafetyMonitor) recordAllocationFailure()      { atomic.AddUint64(&m.allocationFailures, 1) }
func (m *SafetyMonitor) recordBudgetViolation()        { atomic.AddUint64(&m.budgetViolations, 1) }
func (m *SafetyMonitor) recordCapabilityViolation()    { atomic.AddUint64(&m.capabilityViolations, 1) }
func (m *SafetyMonitor) recordLeakedGuard()            { atomic.AddUint64(&m.leakedGuards, 1) }
func (m *SafetyMonitor) recordFatalError()             { atomic.AddUint64(&m.fatalErrors, 1) }
func (m *SafetyMonitor) recordRelease(size uint64) {
	atomic.AddUint64(&m.bytesReleased, size)
}

// SafetyReport is the snapshot returned by safety_report(), per spec.md
// §4.1.
type SafetyReport struct {
	TotalAllocations     uint64
	Failed               uint64
	BudgetViolations     uint64
	CapabilityViolations uint64
	LeakedGuards         uint64
	FatalErrors          uint64
	CurrentBytes         uint64
	HealthScore          uint8
}

// Report builds a SafetyReport snapshot.
func (m *SafetyMonitor) Report() SafetyReport {
	current := m.system.totalCurrentBytes()
	r := SafetyReport{
		TotalAllocations:     atomic.LoadUint64(&m.allocations),
		Failed:               atomic.LoadUint64(&m.allocationFailures),
		BudgetViolations:     atomic.LoadUint64(&m.budgetViolations),
		CapabilityViolations: atomic.LoadUint64(&m.capabilityViolations),
		LeakedGuards:         atomic.LoadUint64(&m.leakedGuards),
		FatalErrors:          atomic.LoadUint64(&m.fatalErrors),
		CurrentBytes:         current,
	}
	r.HealthScore = healthScore(r)
	if m.currentBytesGauge != nil {
		m.currentBytesGauge.Set(float64(r.CurrentBytes))
		m.healthScoreGauge.Set(float64(r.HealthScore))
	}
	return r
}

// healthScore derives a 0-100 score from the accumulated counters: it
// starts at 100 and loses points for every kind of violation, weighted by
// severity, floored at zero.
func healthScore(r SafetyReport) uint8 {
	score := 100
	score -= int(r.Failed) * 1
	score -= int(r.BudgetViolations) * 5
	score -= int(r.CapabilityViolations) * 10
	score -= int(r.LeakedGuards) * 15
	score -= int(r.FatalErrors) * 25
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return uint8(score)
}

// CheckThreshold samples a crate's current/limit ratio and returns its
// Severity, per spec.md §4.1's 80%/95% thresholds. Under PolicyFatal a
// critical crossing also records a fatal error on the monitor.
func (m *SafetyMonitor) CheckThreshold(crate CrateId, policy MonitorPolicy) Severity {
	stats, ok := m.system.CrateStats(crate)
	if !ok || stats.Limit == 0 {
		return SeverityNone
	}
	ratio := stats.Current * 100 / stats.Limit
	switch {
	case ratio >= 95:
		if policy == PolicyFatal {
			m.recordFatalError()
			m.log.Error("crate budget critical, fatal policy triggered",
				zap.Stringer("crate", crate), zap.Uint64("ratio_pct", ratio))
		} else {
			m.log.Warn("crate budget critical",
				zap.Stringer("crate", crate), zap.Uint64("ratio_pct", ratio))
		}
		return SeverityCritical
	case ratio >= 80:
		m.log.Warn("crate budget approaching limit",
			zap.Stringer("crate", crate), zap.Uint64("ratio_pct", ratio))
		return SeverityWarning
	default:
		return SeverityNone
	}
}
