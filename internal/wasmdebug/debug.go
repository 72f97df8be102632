// Package wasmdebug builds human-readable wasm stack traces: function
// names, parameter/result signatures, and a chain of frames attached to a
// recovered panic or trap, so an embedder sees a wasm-native stack trace
// rather than a Go one (spec.md §7's "caller-facing error must carry
// enough context to debug without a host debugger" intent).
package wasmdebug

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/pulseengine/wrt-go/api"
)

// FuncName formats "moduleName.funcName", falling back to "$funcIdx" when
// funcName is empty.
func FuncName(moduleName, funcName string, funcIdx uint32) string {
	if funcName == "" {
		funcName = "$" + strconv.FormatUint(uint64(funcIdx), 10)
	}
	if moduleName == "" {
		return "." + funcName
	}
	return moduleName + "." + funcName
}

// signature appends a Go-like parameter/result signature to name, e.g.
// "x.y(i32,f64) i64".
func signature(name string, paramTypes, resultTypes []api.ValueType) string {
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte('(')
	for i, t := range paramTypes {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(api.ValueTypeName(t))
	}
	sb.WriteByte(')')
	switch len(resultTypes) {
	case 0:
	case 1:
		sb.WriteByte(' ')
		sb.WriteString(api.ValueTypeName(resultTypes[0]))
	default:
		sb.WriteString(" (")
		for i, t := range resultTypes {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(api.ValueTypeName(t))
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

// frame is one call-stack entry, innermost first, captured the moment a
// panic or trap is recovered — the interpreter's explicit CallStack (L3)
// walks itself to build these rather than relying on Go's runtime stack,
// since a stackless interpreter's Go call stack does not mirror the wasm
// one (spec.md §6 "explicit call-frame stack").
type frame struct {
	funcNameWithSignature string
}

// ErrorBuilder accumulates wasm call frames (deepest call first) and
// renders them alongside a recovered cause into one error, preserving
// the cause via Unwrap.
type ErrorBuilder interface {
	// AddFrame records one call frame. paramTypes/resultTypes may be nil
	// for frames whose signature is irrelevant (e.g. the outermost host
	// call).
	AddFrame(funcName string, paramTypes, resultTypes []api.ValueType)
	// FromRecovered builds the final error from a recover()'d value or a
	// propagated trap error, appending every AddFrame call so far as a
	// wasm stack trace.
	FromRecovered(recovered any) error
}

type errorBuilder struct {
	frames []frame
}

// NewErrorBuilder returns an ErrorBuilder ready to accumulate frames.
func NewErrorBuilder() ErrorBuilder { return &errorBuilder{} }

func (b *errorBuilder) AddFrame(funcName string, paramTypes, resultTypes []api.ValueType) {
	b.frames = append(b.frames, frame{funcNameWithSignature: signature(funcName, paramTypes, resultTypes)})
}

func (b *errorBuilder) FromRecovered(recovered any) error {
	var cause error
	switch v := recovered.(type) {
	case error:
		cause = v
	case runtime.Error:
		cause = v
	default:
		cause = fmt.Errorf("%v", v)
	}

	var sb strings.Builder
	sb.WriteString(cause.Error())
	sb.WriteString(" (recovered by wrt-go)\nwasm stack trace:")
	for _, f := range b.frames {
		sb.WriteString("\n\t")
		sb.WriteString(f.funcNameWithSignature)
	}
	return &recoveredError{msg: sb.String(), cause: cause}
}

// recoveredError carries the rendered stack trace as its message while
// exposing the original recovered value through Unwrap, so callers can
// still errors.Is/As against e.g. wasmruntime's trap sentinels.
type recoveredError struct {
	msg   string
	cause error
}

func (e *recoveredError) Error() string { return e.msg }
func (e *recoveredError) Unwrap() error { return e.cause }
