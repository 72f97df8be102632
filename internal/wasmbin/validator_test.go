package wasmbin

import (
	"testing"

	"github.com/pulseengine/wrt-go/api"
	"github.com/stretchr/testify/require"
)

func TestValidate_ComputesMaxStackHeight(t *testing.T) {
	sys := newDecodeTestSystem(t)
	m, err := Decode(sys, Encode(addOneModule()), CoreOnly, api.CoreFeaturesV2)
	require.NoError(t, err)
	defer m.Close()

	require.Equal(t, 2, m.CodeSection[0].MaxStackHeight)
}

func TestValidate_UnbalancedBlockNestingFails(t *testing.T) {
	sys := newDecodeTestSystem(t)
	m := &Module{
		TypeSection:     []*FuncType{{}},
		FunctionSection: []Index{0},
		CodeSection: []*FunctionBody{{Body: []byte{
			OpcodeBlock, 0x40, // block with empty type, never closed with `end`
		}}},
	}
	_, err := Decode(sys, Encode(m), CoreOnly, api.CoreFeaturesV2)
	require.Error(t, err)
}

func TestValidate_ExportReferencingMissingFunctionFails(t *testing.T) {
	sys := newDecodeTestSystem(t)
	m := &Module{
		ExportSection: []*Export{{Type: api.ExternTypeFunc, Name: "missing", Index: 0}},
	}
	_, err := Decode(sys, Encode(m), CoreOnly, api.CoreFeaturesV2)
	require.Error(t, err)
}

func TestValidate_AsyncOpcodeRejectedWithoutComponentModelFeature(t *testing.T) {
	sys := newDecodeTestSystem(t)
	m := &Module{
		TypeSection:     []*FuncType{{}},
		FunctionSection: []Index{0},
		CodeSection: []*FunctionBody{{Body: []byte{
			OpcodeTaskYield,
			OpcodeEnd,
		}}},
	}
	features := api.CoreFeaturesV2.SetEnabled(api.CoreFeatureComponentModel, false)
	_, err := Decode(sys, Encode(m), CoreOnly, features)
	require.Error(t, err)
}
