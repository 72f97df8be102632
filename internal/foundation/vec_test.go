package foundation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSystem(t *testing.T) *System {
	sys, err := InitMemorySystem(Config{
		Profile: ProfileCustom,
		Limits:  map[CrateId]uint64{CrateFoundation: 1 << 20},
	})
	require.NoError(t, err)
	return sys
}

func TestVec_PushGetPop(t *testing.T) {
	sys := newTestSystem(t)
	capb := sys.Authorize(CrateFoundation, 1<<16)
	v, err := NewVec[int32](capb, 4)
	require.NoError(t, err)
	defer v.Close()

	require.Equal(t, 0, v.Len())
	require.Equal(t, 4, v.Cap())

	for i := int32(0); i < 4; i++ {
		require.NoError(t, v.Push(i))
	}

	got, ok := v.Get(2)
	require.True(t, ok)
	require.EqualValues(t, 2, got)

	last, ok := v.Pop()
	require.True(t, ok)
	require.EqualValues(t, 3, last)
	require.Equal(t, 3, v.Len())
}

// TestVec_PushOnFull verifies the boundary behaviour from spec.md §8:
// push on full returns CapacityExceeded, leaves length and contents
// unchanged.
func TestVec_PushOnFull(t *testing.T) {
	sys := newTestSystem(t)
	capb := sys.Authorize(CrateFoundation, 1<<16)
	v, err := NewVec[byte](capb, 2)
	require.NoError(t, err)
	defer v.Close()

	require.NoError(t, v.Push(1))
	require.NoError(t, v.Push(2))

	before := append([]byte{}, v.Slice()...)
	err = v.Push(3)
	require.ErrorIs(t, err, ErrCapacityExceeded)
	require.Equal(t, before, v.Slice())
	require.Equal(t, 2, v.Len())
}

func TestVec_ReleaseReturnsBudget(t *testing.T) {
	sys := newTestSystem(t)
	capb := sys.Authorize(CrateFoundation, 1<<16)
	v, err := NewVec[int64](capb, 100)
	require.NoError(t, err)

	stats, _ := sys.CrateStats(CrateFoundation)
	require.Greater(t, stats.Current, uint64(0))

	v.Close()
	stats, _ = sys.CrateStats(CrateFoundation)
	require.EqualValues(t, 0, stats.Current)
}

func TestCapability_CannotBeSpentTwice(t *testing.T) {
	sys := newTestSystem(t)
	capb := sys.Authorize(CrateFoundation, 1024)
	_, err := capb.Allocate(8)
	require.NoError(t, err)
	_, err = capb.Allocate(8)
	require.Error(t, err)
}
