package wasmbin

import (
	"testing"

	"github.com/pulseengine/wrt-go/api"
	"github.com/stretchr/testify/require"
)

func TestIncrementalDecoder_ZeroDiffReusesModule(t *testing.T) {
	sys := newDecodeTestSystem(t)
	data := Encode(addOneModule())
	d := NewIncrementalDecoder(sys, CoreOnly, api.CoreFeaturesV2)

	m1, err := d.Reparse(data)
	require.NoError(t, err)
	m2, err := d.Reparse(append([]byte(nil), data...))
	require.NoError(t, err)

	require.Same(t, m1, m2, "byte-identical reparse must return the cached Module")
	stats := d.Stats()
	require.Equal(t, uint32(2), stats.TotalReparses)
	require.Equal(t, uint32(1), stats.FullReparses)
	require.Equal(t, uint32(1), stats.IncrementalReparses)
}

func TestIncrementalDecoder_ChangedInputReportsReusedSections(t *testing.T) {
	sys := newDecodeTestSystem(t)
	d := NewIncrementalDecoder(sys, CoreOnly, api.CoreFeaturesV2)

	first := addOneModule()
	_, err := d.Reparse(Encode(first))
	require.NoError(t, err)

	second := addOneModule()
	second.ExportSection[0].Name = "addition" // changes the export section only
	m2, err := d.Reparse(Encode(second))
	require.NoError(t, err)
	require.Equal(t, "addition", m2.ExportSection[0].Name)

	stats := d.Stats()
	require.Equal(t, uint32(2), stats.TotalReparses)
	require.Equal(t, uint32(2), stats.FullReparses)
	require.Greater(t, stats.NodesReused, uint32(0), "type/function/code sections were untouched")
}
