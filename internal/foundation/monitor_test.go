package foundation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSafetyReport_HealthScoreDegradesWithViolations(t *testing.T) {
	sys := newTestSystem(t)
	report := sys.Monitor().Report()
	require.EqualValues(t, 100, report.HealthScore)

	// Exhaust the budget to trigger a budget violation.
	_, err := sys.SafeAllocate(1<<21, CrateFoundation)
	require.Error(t, err)

	report = sys.Monitor().Report()
	require.EqualValues(t, 1, report.BudgetViolations)
	require.Less(t, report.HealthScore, uint8(100))
}

func TestSafetyMonitor_ThresholdSeverity(t *testing.T) {
	sys, err := InitMemorySystem(Config{
		Profile: ProfileCustom,
		Limits:  map[CrateId]uint64{CrateFoundation: 100},
	})
	require.NoError(t, err)

	require.Equal(t, SeverityNone, sys.Monitor().CheckThreshold(CrateFoundation, PolicyObserve))

	_, err = sys.SafeAllocate(85, CrateFoundation)
	require.NoError(t, err)
	require.Equal(t, SeverityWarning, sys.Monitor().CheckThreshold(CrateFoundation, PolicyObserve))

	_, err = sys.SafeAllocate(11, CrateFoundation)
	require.NoError(t, err)
	require.Equal(t, SeverityCritical, sys.Monitor().CheckThreshold(CrateFoundation, PolicyObserve))
}

func TestSafetyMonitor_LeakedGuardDetected(t *testing.T) {
	sys := newTestSystem(t)
	g, err := sys.SafeAllocate(10, CrateFoundation)
	require.NoError(t, err)
	_ = g // intentionally never released; a SafeAllocate guard has no finalizer, so its charge stays outstanding.

	stats, _ := sys.CrateStats(CrateFoundation)
	require.EqualValues(t, 10, stats.Current, "a leaked guard keeps its charge outstanding")
}
