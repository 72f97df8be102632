package foundation

import (
	"sync"
	"sync/atomic"
)

// Budget tracks one crate's byte allowance. All counters are updated with
// atomic compare-and-swap so concurrent allocations never transiently
// overshoot limit, per spec.md §4.1 "Budget accounting uses a
// compare-and-swap loop on current_bytes."
//
// Grounded on wrt-foundation/src/crate_budgets.rs: the original fixes these
// exact fields and the 80%/95% threshold policy carried below.
type Budget struct {
	CrateId         CrateId
	LimitBytes      uint64
	SafetyLevel     SafetyLevel
	currentBytes    uint64
	peakBytes       uint64
	allocationCount uint64
}

// Stats is a point-in-time snapshot of a Budget, returned by crate_stats.
type Stats struct {
	Current uint64
	Peak    uint64
	Limit   uint64
	Count   uint64
}

func (b *Budget) stats() Stats {
	return Stats{
		Current: atomic.LoadUint64(&b.currentBytes),
		Peak:    atomic.LoadUint64(&b.peakBytes),
		Limit:   b.LimitBytes,
		Count:   atomic.LoadUint64(&b.allocationCount),
	}
}

// tryReserve attempts to atomically add size to currentBytes without
// exceeding LimitBytes. Returns the bytes still available on failure.
func (b *Budget) tryReserve(size uint64) (ok bool, available uint64) {
	for {
		cur := atomic.LoadUint64(&b.currentBytes)
		if cur+size > b.LimitBytes {
			return false, b.LimitBytes - cur
		}
		if atomic.CompareAndSwapUint64(&b.currentBytes, cur, cur+size) {
			atomic.AddUint64(&b.allocationCount, 1)
			b.bumpPeak(cur + size)
			return true, 0
		}
	}
}

func (b *Budget) bumpPeak(v uint64) {
	for {
		peak := atomic.LoadUint64(&b.peakBytes)
		if v <= peak {
			return
		}
		if atomic.CompareAndSwapUint64(&b.peakBytes, peak, v) {
			return
		}
	}
}

func (b *Budget) release(size uint64) {
	for {
		cur := atomic.LoadUint64(&b.currentBytes)
		next := cur - size // underflow here is a double-free, caller is responsible for balance.
		if atomic.CompareAndSwapUint64(&b.currentBytes, cur, next) {
			return
		}
	}
}

// EnforcementLevel governs how the runtime monitor reacts to budgets
// nearing their limit, per spec.md §4.1.
type EnforcementLevel uint8

const (
	Observe EnforcementLevel = iota
	Throttle
	Strict
	SafetyCritical
)

// BudgetProfile names one of the canned budget configurations spec.md §3.1
// references, or Custom for caller-supplied limits.
type BudgetProfile uint8

const (
	ProfileUltraEmbedded BudgetProfile = iota
	ProfileEmbedded
	ProfileDesktop
	ProfileCustom
)

// Config is the static configuration chosen once at process init, per
// spec.md §4.1 init_memory_system(config, enforcement_level).
type Config struct {
	Profile          BudgetProfile
	Enforcement      EnforcementLevel
	Limits           map[CrateId]uint64 // only consulted when Profile == ProfileCustom
	GlobalCapBytes   uint64
	ComponentTypeBudget
}

// ComponentTypeBudget bounds the component type registry's growth, per
// spec.md §4.2 "per-type budget; overflow yields CapacityExceeded."
// Defaults are deployment-dependent per spec.md §9's third Open Question;
// SPEC_FULL.md §5.3 fixes concrete numbers per profile.
type ComponentTypeBudget struct {
	TypeBudgetBytes uint64
	MaxTypes        uint32
}

func defaultLimits(profile BudgetProfile) map[CrateId]uint64 {
	switch profile {
	case ProfileUltraEmbedded:
		return map[CrateId]uint64{
			CrateFoundation: 64 * 1024,
			CrateRuntime:    256 * 1024,
			CrateComponent:  64 * 1024,
			CrateDecoder:    128 * 1024,
			CrateFormat:     64 * 1024,
			CrateDebug:      0,
			CrateHost:       32 * 1024,
			CrateWasi:       32 * 1024,
		}
	case ProfileEmbedded:
		return map[CrateId]uint64{
			CrateFoundation: 1 * 1024 * 1024,
			CrateRuntime:    4 * 1024 * 1024,
			CrateComponent:  1 * 1024 * 1024,
			CrateDecoder:    2 * 1024 * 1024,
			CrateFormat:     1 * 1024 * 1024,
			CrateDebug:      256 * 1024,
			CrateHost:       512 * 1024,
			CrateWasi:       512 * 1024,
		}
	case ProfileDesktop:
		return map[CrateId]uint64{
			CrateFoundation: 16 * 1024 * 1024,
			CrateRuntime:    128 * 1024 * 1024,
			CrateComponent:  32 * 1024 * 1024,
			CrateDecoder:    32 * 1024 * 1024,
			CrateFormat:     16 * 1024 * 1024,
			CrateDebug:      16 * 1024 * 1024,
			CrateHost:       16 * 1024 * 1024,
			CrateWasi:       16 * 1024 * 1024,
		}
	default:
		return nil
	}
}

// ComponentTypeBudgetFor returns the default component-type budget for a
// profile (spec.md §9's third Open Question, fixed by SPEC_FULL.md §5.3).
func ComponentTypeBudgetFor(profile BudgetProfile) ComponentTypeBudget {
	return componentTypeBudgetFor(profile)
}

func componentTypeBudgetFor(profile BudgetProfile) ComponentTypeBudget {
	switch profile {
	case ProfileUltraEmbedded:
		return ComponentTypeBudget{TypeBudgetBytes: 16 * 1024, MaxTypes: 64}
	case ProfileEmbedded:
		return ComponentTypeBudget{TypeBudgetBytes: 128 * 1024, MaxTypes: 512}
	case ProfileDesktop:
		return ComponentTypeBudget{TypeBudgetBytes: 4 * 1024 * 1024, MaxTypes: 16384}
	default:
		return ComponentTypeBudget{}
	}
}

// System is the process-wide budget registry. There is exactly one
// "global" structure in the whole core: the budget table, per spec.md §9
// "Global mutable state -> scoped config + per-crate budgets."
type System struct {
	mu          sync.RWMutex
	budgets     map[CrateId]*Budget
	enforcement EnforcementLevel
	monitor     *SafetyMonitor
}

// InitMemorySystem installs the CrateId -> Budget table. Fails if the sum
// of budgets exceeds the configured global cap, per spec.md §4.1.
func InitMemorySystem(cfg Config) (*System, error) {
	limits := cfg.Limits
	if cfg.Profile != ProfileCustom {
		limits = defaultLimits(cfg.Profile)
	}
	var total uint64
	for _, l := range limits {
		total += l
	}
	if cfg.GlobalCapBytes != 0 && total > cfg.GlobalCapBytes {
		return nil, NewError(CategoryResourceLimit, "global_cap_exceeded",
			"sum of per-crate budgets exceeds the configured global cap")
	}

	budgets := make(map[CrateId]*Budget, len(limits))
	for id, limit := range limits {
		budgets[id] = &Budget{CrateId: id, LimitBytes: limit, SafetyLevel: QM}
	}
	s := &System{
		budgets:     budgets,
		enforcement: cfg.Enforcement,
	}
	s.monitor = NewSafetyMonitor(s)
	return s, nil
}

// SafeAllocate is the sole primitive that reserves bytes against a crate's
// budget. On success it returns a Guard whose Release drops the charge;
// on failure it returns a *BudgetExceededError and mutates no state.
func (s *System) SafeAllocate(size uint64, crate CrateId) (*Guard, error) {
	s.mu.RLock()
	b, ok := s.budgets[crate]
	s.mu.RUnlock()
	if !ok {
		s.monitor.recordCapabilityViolation()
		return nil, &CapabilityError{CrateId: crate, Reason: "crate has no configured budget"}
	}

	if s.enforcement == Throttle && b.stats().Current*100 >= b.LimitBytes*95 {
		s.monitor.recordBudgetViolation()
		return nil, &BudgetExceededError{CrateId: crate, Requested: size, Available: 0}
	}

	ok2, available := b.tryReserve(size)
	if !ok2 {
		s.monitor.recordAllocationFailure()
		s.monitor.recordBudgetViolation()
		return nil, &BudgetExceededError{CrateId: crate, Requested: size, Available: available}
	}
	s.monitor.recordAllocation(size)
	return &Guard{budget: b, size: size, monitor: s.monitor}, nil
}

// WithCapability wraps SafeAllocate and a container constructor in one
// scope, per spec.md §4.1's with_capability convenience.
func WithCapability[R any](s *System, crate CrateId, size uint64, fn func(*Guard) R) (R, error) {
	var zero R
	g, err := s.SafeAllocate(size, crate)
	if err != nil {
		return zero, err
	}
	return fn(g), nil
}

// CrateStats returns the current/peak/limit/count snapshot for a crate.
func (s *System) CrateStats(crate CrateId) (Stats, bool) {
	s.mu.RLock()
	b, ok := s.budgets[crate]
	s.mu.RUnlock()
	if !ok {
		return Stats{}, false
	}
	return b.stats(), true
}

// Monitor returns the system's SafetyMonitor.
func (s *System) Monitor() *SafetyMonitor { return s.monitor }

// totalCurrentBytes sums current_bytes across all crates, used to verify
// the invariant Σcurrent ≤ Σlimit and for leak detection in tests.
func (s *System) totalCurrentBytes() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total uint64
	for _, b := range s.budgets {
		total += b.stats().Current
	}
	return total
}
