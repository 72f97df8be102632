package wasmbin

import (
	"testing"

	"github.com/pulseengine/wrt-go/api"
	"github.com/pulseengine/wrt-go/internal/foundation"
	"github.com/stretchr/testify/require"
)

func TestDecode_ComponentAwareMode_RecognizesComponentSections(t *testing.T) {
	sys := newDecodeTestSystem(t)
	mode := ComponentAwareMode(foundation.ComponentTypeBudget{TypeBudgetBytes: 1 << 16, MaxTypes: 8})

	raw := append(magic[:], 0x01, 0x00, 0x00, 0x00)
	// one component type entry: a single opaque 2-byte payload.
	raw = append(raw, SectionIDComponentType, 0x04, 0x01, 0x02, 0xaa, 0xbb)

	m, err := Decode(sys, raw, mode, api.CoreFeaturesV2)
	require.NoError(t, err)
	defer m.Close()

	require.NotNil(t, m.Component)
	require.Equal(t, 1, len(m.Component.Types))
	require.Equal(t, []byte{0xaa, 0xbb}, m.Component.Types[0].Raw)
}

func TestDecode_ComponentSectionRejectedOutsideComponentAwareMode(t *testing.T) {
	sys := newDecodeTestSystem(t)
	raw := append(magic[:], 0x01, 0x00, 0x00, 0x00)
	raw = append(raw, SectionIDComponentType, 0x01, 0x00)

	_, err := Decode(sys, raw, CoreOnly, api.CoreFeaturesV2)
	require.Error(t, err)
}

func TestDecode_ComponentTypeCountExceedsBudget(t *testing.T) {
	sys := newDecodeTestSystem(t)
	mode := ComponentAwareMode(foundation.ComponentTypeBudget{TypeBudgetBytes: 1 << 16, MaxTypes: 1})

	raw := append(magic[:], 0x01, 0x00, 0x00, 0x00)
	// declares 2 type entries against a budget of 1.
	raw = append(raw, SectionIDComponentType, 0x05, 0x02, 0x01, 0xaa, 0x01, 0xbb)

	_, err := Decode(sys, raw, mode, api.CoreFeaturesV2)
	require.Error(t, err)
}
