package wasmdebug

import (
	"errors"
	"runtime"
	"testing"

	"github.com/pulseengine/wrt-go/api"
	"github.com/pulseengine/wrt-go/internal/wasmruntime"
	"github.com/stretchr/testify/require"
)

func TestFuncName(t *testing.T) {
	tests := []struct {
		name, moduleName, funcName string
		funcIdx                    uint32
		expected                   string
	}{
		{name: "empty", expected: ".$0"},
		{name: "empty module", funcName: "y", expected: ".y"},
		{name: "empty function", moduleName: "x", funcIdx: 255, expected: "x.$255"},
		{name: "no special characters", moduleName: "x", funcName: "y", expected: "x.y"},
		{name: "dots in module", moduleName: "w.x", funcName: "y", expected: "w.x.y"},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, FuncName(tc.moduleName, tc.funcName, tc.funcIdx))
		})
	}
}

func TestSignature(t *testing.T) {
	i32, i64, f32, f64 := api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF32, api.ValueTypeF64
	tests := []struct {
		name                    string
		paramTypes, resultTypes []api.ValueType
		expected                string
	}{
		{name: "v_v", expected: "x.y()"},
		{name: "i32_v", paramTypes: []api.ValueType{i32}, expected: "x.y(i32)"},
		{name: "i32f64_v", paramTypes: []api.ValueType{i32, f64}, expected: "x.y(i32,f64)"},
		{name: "v_i64", resultTypes: []api.ValueType{i64}, expected: "x.y() i64"},
		{name: "v_i64f32", resultTypes: []api.ValueType{i64, f32}, expected: "x.y() (i64,f32)"},
		{name: "i32_i64", paramTypes: []api.ValueType{i32}, resultTypes: []api.ValueType{i64}, expected: "x.y(i32) i64"},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, signature("x.y", tc.paramTypes, tc.resultTypes))
		})
	}
}

func TestErrorBuilder(t *testing.T) {
	argErr := errors.New("invalid argument")
	rteErr := testRuntimeErr("index out of bounds")
	i32 := api.ValueTypeI32
	i32i32i32i32 := []api.ValueType{i32, i32, i32, i32}

	tests := []struct {
		name         string
		build        func(ErrorBuilder) error
		expectedErr  string
		expectUnwrap error
	}{
		{
			name: "one frame",
			build: func(b ErrorBuilder) error {
				b.AddFrame("x.y", nil, nil)
				return b.FromRecovered(argErr)
			},
			expectedErr: "invalid argument (recovered by wrt-go)\nwasm stack trace:\n\tx.y()",
			expectUnwrap: argErr,
		},
		{
			name: "two frames",
			build: func(b ErrorBuilder) error {
				b.AddFrame("host.fd_write", i32i32i32i32, []api.ValueType{i32})
				b.AddFrame("x.y", nil, nil)
				return b.FromRecovered(argErr)
			},
			expectedErr: "invalid argument (recovered by wrt-go)\nwasm stack trace:\n\thost.fd_write(i32,i32,i32,i32) i32\n\tx.y()",
			expectUnwrap: argErr,
		},
		{
			name: "runtime.Error",
			build: func(b ErrorBuilder) error {
				b.AddFrame("x.y", nil, nil)
				return b.FromRecovered(rteErr)
			},
			expectedErr: "index out of bounds (recovered by wrt-go)\nwasm stack trace:\n\tx.y()",
			expectUnwrap: rteErr,
		},
		{
			name: "wasmruntime trap",
			build: func(b ErrorBuilder) error {
				b.AddFrame("x.y", nil, nil)
				return b.FromRecovered(wasmruntime.ErrRuntimeCallStackOverflow)
			},
			expectedErr: "wasm error: callstack overflow (recovered by wrt-go)\nwasm stack trace:\n\tx.y()",
			expectUnwrap: wasmruntime.ErrRuntimeCallStackOverflow,
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			err := tc.build(NewErrorBuilder())
			require.Equal(t, tc.expectUnwrap, errors.Unwrap(err))
			require.EqualError(t, err, tc.expectedErr)
		})
	}
}

var _ runtime.Error = testRuntimeErr("")

type testRuntimeErr string

func (e testRuntimeErr) RuntimeError() {}
func (e testRuntimeErr) Error() string { return string(e) }
