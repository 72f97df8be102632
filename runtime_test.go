package wrtgo_test

import (
	"testing"

	"github.com/pulseengine/wrt-go/api"
	"github.com/pulseengine/wrt-go/internal/foundation"
	"github.com/pulseengine/wrt-go/internal/wasmbin"
	"github.com/pulseengine/wrt-go/internal/wasmruntime"
	"github.com/stretchr/testify/require"
	wrtgo "github.com/pulseengine/wrt-go"
)

// addModuleBytes encodes the module graph for a single exported function
// `add(i32, i32) -> i32` with body `local.get 0; local.get 1; i32.add`,
// per spec.md §8 scenario S1.
func addModuleBytes() []byte {
	i32 := api.ValueTypeI32
	m := &wasmbin.Module{
		TypeSection:     []*wasmbin.FuncType{{Params: []wasmbin.ValueType{i32, i32}, Results: []wasmbin.ValueType{i32}}},
		FunctionSection: []wasmbin.Index{0},
		ExportSection:   []*wasmbin.Export{{Type: api.ExternTypeFunc, Name: "add", Index: 0}},
		CodeSection: []*wasmbin.FunctionBody{{Body: []byte{
			wasmbin.OpcodeLocalGet, 0x00,
			wasmbin.OpcodeLocalGet, 0x01,
			wasmbin.OpcodeI32Add,
			wasmbin.OpcodeEnd,
		}}},
	}
	return wasmbin.Encode(m)
}

// divModuleBytes encodes `div(i32, i32) -> i32` with body
// `local.get 0; local.get 1; i32.div_s`, per spec.md §8 scenario S2.
func divModuleBytes() []byte {
	i32 := api.ValueTypeI32
	m := &wasmbin.Module{
		TypeSection:     []*wasmbin.FuncType{{Params: []wasmbin.ValueType{i32, i32}, Results: []wasmbin.ValueType{i32}}},
		FunctionSection: []wasmbin.Index{0},
		ExportSection:   []*wasmbin.Export{{Type: api.ExternTypeFunc, Name: "div", Index: 0}},
		CodeSection: []*wasmbin.FunctionBody{{Body: []byte{
			wasmbin.OpcodeLocalGet, 0x00,
			wasmbin.OpcodeLocalGet, 0x01,
			wasmbin.OpcodeI32DivS,
			wasmbin.OpcodeEnd,
		}}},
	}
	return wasmbin.Encode(m)
}

// TestScenarioS1_AddModule is spec.md §8's S1: invoke add(2,3), expect
// [i32 5], no trap.
func TestScenarioS1_AddModule(t *testing.T) {
	rt, err := wrtgo.NewRuntime(wrtgo.NewRuntimeConfig())
	require.NoError(t, err)

	compiled, err := rt.CompileModule(addModuleBytes())
	require.NoError(t, err)
	defer compiled.Close()

	mod, err := rt.Instantiate(compiled)
	require.NoError(t, err)
	defer mod.Close()

	add, ok := mod.ExportedFunction("add")
	require.True(t, ok)

	results, err := add.Call(2, 3)
	require.NoError(t, err)
	require.Equal(t, []uint64{5}, results)
}

// TestScenarioS2_DivisionTrap is spec.md §8's S2: invoke div(10,0),
// expect Trapped(IntegerDivisionByZero); instance state unchanged
// (the instance stays usable for a subsequent valid call).
func TestScenarioS2_DivisionTrap(t *testing.T) {
	rt, err := wrtgo.NewRuntime(wrtgo.NewRuntimeConfig())
	require.NoError(t, err)

	compiled, err := rt.CompileModule(divModuleBytes())
	require.NoError(t, err)
	defer compiled.Close()

	mod, err := rt.Instantiate(compiled)
	require.NoError(t, err)
	defer mod.Close()

	div, ok := mod.ExportedFunction("div")
	require.True(t, ok)

	_, err = div.Call(10, 0)
	require.ErrorIs(t, err, wasmruntime.ErrRuntimeIntegerDivideByZero)

	// The instance is unperturbed: a second, well-formed call still works.
	results, err := div.Call(10, 2)
	require.NoError(t, err)
	require.Equal(t, []uint64{5}, results)
}

// TestDetectFormat exercises the root-level DetectFormat re-export.
func TestDetectFormat(t *testing.T) {
	require.Equal(t, wasmbin.FormatCore, wrtgo.DetectFormat(addModuleBytes()))
	require.Equal(t, wasmbin.FormatInvalid, wrtgo.DetectFormat([]byte("not wasm")))
}

// TestRuntimeConfig_BudgetProfiles exercises the chained RuntimeConfig
// builder and confirms a too-small global cap fails NewRuntime closed,
// per spec.md §4.1 "Fails if sum of budgets exceeds the configured global
// cap."
func TestRuntimeConfig_BudgetProfiles(t *testing.T) {
	cfg := wrtgo.NewRuntimeConfig().
		WithBudgetProfile(foundation.ProfileUltraEmbedded).
		WithEnforcementLevel(foundation.Strict)
	rt, err := wrtgo.NewRuntime(cfg)
	require.NoError(t, err)
	require.NotNil(t, rt.Monitor())

	_, err = wrtgo.NewRuntime(wrtgo.NewRuntimeConfig().
		WithBudgetProfile(foundation.ProfileDesktop).
		WithGlobalCapBytes(1))
	require.Error(t, err)
}
