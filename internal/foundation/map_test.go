package foundation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMap_InsertGetOverwrite(t *testing.T) {
	sys := newTestSystem(t)
	capb := sys.Authorize(CrateFoundation, 1<<16)
	m, err := NewMap[string, int](capb, 4)
	require.NoError(t, err)
	defer m.Close()

	_, existed, err := m.Insert("a", 1)
	require.NoError(t, err)
	require.False(t, existed)

	old, existed, err := m.Insert("a", 2)
	require.NoError(t, err)
	require.True(t, existed)
	require.Equal(t, 1, old)

	v, ok := m.Get("a")
	require.True(t, ok)
	require.Equal(t, 2, v)
}

func TestMap_InsertOnFull(t *testing.T) {
	sys := newTestSystem(t)
	capb := sys.Authorize(CrateFoundation, 1<<16)
	m, err := NewMap[int, int](capb, 2)
	require.NoError(t, err)
	defer m.Close()

	_, _, err = m.Insert(1, 1)
	require.NoError(t, err)
	_, _, err = m.Insert(2, 2)
	require.NoError(t, err)

	_, _, err = m.Insert(3, 3)
	require.ErrorIs(t, err, ErrCapacityExceeded)
	require.Equal(t, 2, m.Len())
}

func TestString_FromStr(t *testing.T) {
	sys := newTestSystem(t)
	capb := sys.Authorize(CrateFoundation, 1<<16)
	s, err := NewString(capb, 8)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.FromStr("hello"))
	require.Equal(t, "hello", s.String())

	err = s.FromStr("too long for this string")
	require.ErrorIs(t, err, ErrCapacityExceeded)
}
