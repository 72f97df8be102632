package foundation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitMemorySystem_GlobalCapExceeded(t *testing.T) {
	_, err := InitMemorySystem(Config{
		Profile:        ProfileCustom,
		Limits:         map[CrateId]uint64{CrateFoundation: 100, CrateRuntime: 100},
		GlobalCapBytes: 150,
	})
	require.Error(t, err)
}

func TestSafeAllocate_SuccessAndRelease(t *testing.T) {
	sys, err := InitMemorySystem(Config{
		Profile: ProfileCustom,
		Limits:  map[CrateId]uint64{CrateFoundation: 1024},
	})
	require.NoError(t, err)

	g, err := sys.SafeAllocate(512, CrateFoundation)
	require.NoError(t, err)
	stats, _ := sys.CrateStats(CrateFoundation)
	require.EqualValues(t, 512, stats.Current)
	require.EqualValues(t, 512, stats.Peak)

	g.Release()
	stats, _ = sys.CrateStats(CrateFoundation)
	require.EqualValues(t, 0, stats.Current)
	require.EqualValues(t, 512, stats.Peak, "peak must survive release")
}

func TestSafeAllocate_ReleaseIsIdempotent(t *testing.T) {
	sys, _ := InitMemorySystem(Config{Profile: ProfileCustom, Limits: map[CrateId]uint64{CrateFoundation: 1024}})
	g, err := sys.SafeAllocate(100, CrateFoundation)
	require.NoError(t, err)
	g.Release()
	g.Release() // must not double-release the charge
	stats, _ := sys.CrateStats(CrateFoundation)
	require.EqualValues(t, 0, stats.Current)
}

// TestBudgetExhaustion implements scenario S3 from spec.md §8: with
// Foundation.limit = 1 MiB, repeatedly safe_allocate(64 KiB, Foundation)
// until failure. The first 16 succeed, the 17th fails with
// BudgetExceeded{requested:65536, available:0}; after dropping all
// guards, current_bytes(Foundation) = 0.
func TestBudgetExhaustion_S3(t *testing.T) {
	const oneMiB = 1024 * 1024
	const chunk = 64 * 1024

	sys, err := InitMemorySystem(Config{
		Profile: ProfileCustom,
		Limits:  map[CrateId]uint64{CrateFoundation: oneMiB},
	})
	require.NoError(t, err)

	var guards []*Guard
	for i := 0; i < 16; i++ {
		g, err := sys.SafeAllocate(chunk, CrateFoundation)
		require.NoError(t, err, "allocation %d should succeed", i)
		guards = append(guards, g)
	}

	_, err = sys.SafeAllocate(chunk, CrateFoundation)
	require.Error(t, err)
	var budgetErr *BudgetExceededError
	require.ErrorAs(t, err, &budgetErr)
	require.EqualValues(t, chunk, budgetErr.Requested)
	require.EqualValues(t, 0, budgetErr.Available)

	for _, g := range guards {
		g.Release()
	}
	stats, _ := sys.CrateStats(CrateFoundation)
	require.EqualValues(t, 0, stats.Current)
}

func TestSafeAllocate_UnknownCrate(t *testing.T) {
	sys, _ := InitMemorySystem(Config{Profile: ProfileCustom, Limits: map[CrateId]uint64{CrateFoundation: 1024}})
	_, err := sys.SafeAllocate(10, CrateRuntime)
	require.Error(t, err)
	var capErr *CapabilityError
	require.ErrorAs(t, err, &capErr)
}

func TestBudgetProfiles_HaveAllCrates(t *testing.T) {
	for _, profile := range []BudgetProfile{ProfileUltraEmbedded, ProfileEmbedded, ProfileDesktop} {
		limits := defaultLimits(profile)
		require.NotEmpty(t, limits)
		require.Contains(t, limits, CrateFoundation)
		require.Contains(t, limits, CrateRuntime)
	}
}
