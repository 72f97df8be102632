package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pulseengine/wrt-go/api"
	"github.com/pulseengine/wrt-go/internal/wasmbin"
	"github.com/stretchr/testify/require"
)

func writeAddModule(t *testing.T) string {
	t.Helper()
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
	path := filepath.Join(t.TempDir(), "add.wasm")
	require.NoError(t, os.WriteFile(path, wasmbin.Encode(m), 0o644))
	return path
}

func TestRun_InvokesExportedFunction(t *testing.T) {
	path := writeAddModule(t)
	var stdout, stderr bytes.Buffer

	code := run([]string{"-func=add", path, "2", "3"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	require.Contains(t, stdout.String(), "[5]")
}

func TestRun_MissingArgsUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(nil, &stdout, &stderr)
	require.Equal(t, 2, code)
	require.Contains(t, stderr.String(), "usage:")
}

func TestRun_UnknownFunction(t *testing.T) {
	path := writeAddModule(t)
	var stdout, stderr bytes.Buffer
	code := run([]string{"-func=missing", path}, &stdout, &stderr)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "no such exported function")
}
