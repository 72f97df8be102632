package exec

import (
	"context"
	"testing"

	"github.com/pulseengine/wrt-go/api"
	"github.com/pulseengine/wrt-go/internal/foundation"
	"github.com/pulseengine/wrt-go/internal/leb128"
	"github.com/pulseengine/wrt-go/internal/wasmbin"
	"github.com/pulseengine/wrt-go/internal/wasmruntime"
	"github.com/stretchr/testify/require"
)

func newTestSystem(t *testing.T) *foundation.System {
	t.Helper()
	sys, err := foundation.InitMemorySystem(foundation.Config{
		Profile:        foundation.ProfileEmbedded,
		Enforcement:    foundation.Strict,
		GlobalCapBytes: 256 << 20,
	})
	require.NoError(t, err)
	return sys
}

// TestMemory_GrowLimits exercises Memory.Grow's declared-max failure mode:
// a grow that would exceed the module's declared max returns -1 without
// mutating the memory, per spec.md §4.3.
func TestMemory_GrowLimits(t *testing.T) {
	sys := newTestSystem(t)
	m, err := NewMemory(sys, 1, 2, true)
	require.NoError(t, err)
	defer m.Close()

	require.Equal(t, uint32(1), m.PageCount())
	require.EqualValues(t, 1, m.Grow(1))
	require.Equal(t, uint32(2), m.PageCount())

	// Growing past the declared max fails closed with no side effects.
	require.EqualValues(t, -1, m.Grow(1))
	require.Equal(t, uint32(2), m.PageCount())
}

func TestMemory_LoadStoreBoundsCheck(t *testing.T) {
	sys := newTestSystem(t)
	m, err := NewMemory(sys, 1, 1, true)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.StoreI32(0, 42))
	v, err := m.LoadI32(0)
	require.NoError(t, err)
	require.EqualValues(t, 42, v)

	_, err = m.LoadI32(PageSize - 1)
	require.ErrorIs(t, err, wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
}

func TestTable_FillCopyBounds(t *testing.T) {
	sys := newTestSystem(t)
	t1, err := NewTable(sys, wasmbin.RefTypeFunc, 4, 4, true)
	require.NoError(t, err)
	defer t1.Close()

	require.NoError(t, t1.Fill(0, 4, 7))
	for i := uint32(0); i < 4; i++ {
		v, err := t1.Get(i)
		require.NoError(t, err)
		require.EqualValues(t, 7, v)
	}

	t2, err := NewTable(sys, wasmbin.RefTypeFunc, 4, 4, true)
	require.NoError(t, err)
	defer t2.Close()
	require.NoError(t, t2.Copy(t1, 0, 0, 4))

	require.ErrorIs(t, t1.Fill(0, 5, 0), wasmruntime.ErrRuntimeOutOfBoundsTableAccess)
}

// i32ConstExpr builds an i32.const ConstantExpression for a global
// initializer.
func i32ConstExpr(v int32) *wasmbin.ConstantExpression {
	return &wasmbin.ConstantExpression{Opcode: wasmbin.OpcodeI32Const, Data: leb128.EncodeInt64(int64(v))}
}

// addOneModule builds a module exporting addOne(i32) -> i32, computed as
// local.get 0 + an immutable global initialized to 1.
func addOneModule() *wasmbin.Module {
	i32 := api.ValueTypeI32
	return &wasmbin.Module{
		TypeSection:     []*wasmbin.FuncType{{Params: []wasmbin.ValueType{i32}, Results: []wasmbin.ValueType{i32}}},
		FunctionSection: []wasmbin.Index{0},
		GlobalSection:   []*wasmbin.Global{{Type: &wasmbin.GlobalType{ValType: i32, Mutable: false}, Init: i32ConstExpr(1)}},
		ExportSection:   []*wasmbin.Export{{Type: api.ExternTypeFunc, Name: "addOne", Index: 0}},
		CodeSection: []*wasmbin.FunctionBody{{Body: []byte{
			wasmbin.OpcodeLocalGet, 0x00,
			wasmbin.OpcodeGlobalGet, 0x00,
			wasmbin.OpcodeI32Add,
			wasmbin.OpcodeEnd,
		}}},
	}
}

func TestInstantiate_GlobalInitAndInvoke(t *testing.T) {
	sys := newTestSystem(t)
	inst, err := Instantiate(sys, addOneModule(), &Imports{}, api.CoreFeaturesV2, nil)
	require.NoError(t, err)
	defer inst.Close()

	require.Len(t, inst.Globals, 1)
	require.EqualValues(t, 1, inst.Globals[0].Value)

	results, err := Invoke(inst, 0, []uint64{41}, 1_000_000)
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, results)
}

// doublerModule imports "env"."double" and exports "run" which calls it.
func doublerModule() *wasmbin.Module {
	i32 := api.ValueTypeI32
	return &wasmbin.Module{
		TypeSection:     []*wasmbin.FuncType{{Params: []wasmbin.ValueType{i32}, Results: []wasmbin.ValueType{i32}}},
		ImportSection:   []*wasmbin.Import{{Type: api.ExternTypeFunc, Module: "env", Name: "double", DescFunc: 0}},
		FunctionSection: []wasmbin.Index{0},
		ExportSection:   []*wasmbin.Export{{Type: api.ExternTypeFunc, Name: "run", Index: 1}},
		CodeSection: []*wasmbin.FunctionBody{{Body: []byte{
			wasmbin.OpcodeLocalGet, 0x00,
			wasmbin.OpcodeCall, 0x00,
			wasmbin.OpcodeEnd,
		}}},
	}
}

func TestInstantiate_HostFunctionImport(t *testing.T) {
	sys := newTestSystem(t)
	imports := &Imports{Functions: map[string]map[string]HostFunction{
		"env": {
			"double": func(_ context.Context, args []uint64) ([]uint64, error) {
				return []uint64{args[0] * 2}, nil
			},
		},
	}}

	inst, err := Instantiate(sys, doublerModule(), imports, api.CoreFeaturesV2, nil)
	require.NoError(t, err)
	defer inst.Close()

	run, ok := exportedFuncIdx(inst, "run")
	require.True(t, ok)
	results, err := Invoke(inst, run, []uint64{21}, 1_000_000)
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, results)
}

func TestInstantiate_UnresolvedImportFails(t *testing.T) {
	sys := newTestSystem(t)
	_, err := Instantiate(sys, doublerModule(), &Imports{}, api.CoreFeaturesV2, nil)
	require.Error(t, err)
}

func TestInvoke_OutOfFuelYieldsAsError(t *testing.T) {
	sys := newTestSystem(t)
	inst, err := Instantiate(sys, addOneModule(), &Imports{}, api.CoreFeaturesV2, nil)
	require.NoError(t, err)
	defer inst.Close()

	_, err = Invoke(inst, 0, []uint64{41}, 0)
	require.ErrorIs(t, err, wasmruntime.ErrRuntimeOutOfFuel)
}

func exportedFuncIdx(inst *Instance, name string) (wasmbin.Index, bool) {
	for _, exp := range inst.Module.ExportSection {
		if exp.Type == api.ExternTypeFunc && exp.Name == name {
			return exp.Index, true
		}
	}
	return 0, false
}
