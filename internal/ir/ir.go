// Package ir holds the decoded-instruction intermediate form the
// execution layer's compiler produces from an internal/wasmbin.FunctionBody
// and the stackless interpreter consumes one instruction at a time. It
// also encodes the async builtin opcodes (task.wait/yield/poll) L4
// resumes on, per spec.md's design note "Dynamic dispatch over
// instructions -> decoded form": function bodies are decoded once into a
// flat, indexable instruction list with precomputed branch targets, so the
// interpreter never re-decodes LEB128 bytes on a hot loop and dispatch is a
// single switch over a closed set of tags known at build time.
package ir

import "github.com/pulseengine/wrt-go/internal/wasmbin"

// Op is a decoded instruction tag. Most values are wasmbin.Opcode values
// carried through unchanged; a small range above the core opcode space
// (OpJump, OpJumpIfZero) is synthetic, standing in for the control-flow
// bookkeeping `block`/`loop`/`if`/`else`/`end` perform at decode time and
// which the interpreter no longer needs to see as distinct instructions.
type Op = wasmbin.Opcode

const (
	// OpJump is an unconditional jump to Instr.Target, used to skip an
	// `if`'s else-branch when the then-branch falls through to `end`.
	OpJump Op = 0xf5
	// OpJumpIfZero pops one i32; if it is zero, jumps to Instr.Target
	// (the matching `else`, or `end` if there is none); otherwise falls
	// through into the then-branch. Compiled from `if`.
	OpJumpIfZero Op = 0xf6
)

// Instr is one decoded instruction. Not every field is meaningful for
// every Op; see compile.go for which fields each opcode populates.
type Instr struct {
	Op Op

	// Index is a generic index immediate: local/global/function/type/
	// table/memory index, depending on Op.
	Index uint32
	// Index2 is a second index immediate, used by call_indirect (table
	// index) and table.copy/init-style instructions.
	Index2 uint32

	// ConstI32/ConstI64 hold *.const immediates. Floats are carried in
	// ConstI64 as their raw bit pattern (math.Float32bits zero-extended /
	// math.Float64bits) so Instr stays a plain value type.
	ConstI32 int32
	ConstI64 int64

	// MemArg carries a load/store's byte offset immediate (the align
	// hint is advisory per spec.md §4.3 and is not retained).
	MemArg uint32

	// Target is the absolute instruction index a branch/jump transfers
	// control to.
	Target int32
	// StackAdjust is the number of result values (0 or 1, per this
	// compiler's void/single-value blocktype scope, see compile.go) kept
	// on top of the operand stack when this branch is taken; everything
	// below the branch's target height is discarded.
	StackAdjust int32
	// TargetHeight is the operand-stack height to truncate to (before
	// re-pushing StackAdjust values) when this branch is taken.
	TargetHeight int32

	// Table holds br_table's resolved absolute targets, last element is
	// the default target.
	Table []int32
	// TableHeights/TableAdjust mirror Target/StackAdjust per br_table
	// entry, index-aligned with Table.
	TableHeights []int32
	TableAdjust  []int32
}

// CompiledFunction is one function body lowered to a flat instruction
// list, produced once at instantiation time per spec.md §4.3 "a tagged
// decoded form produced once per function body at instantiation time (not
// re-decoded on every hit)".
type CompiledFunction struct {
	Type           *wasmbin.FuncType
	NumLocals      int // params + declared locals
	LocalTypes     []byte
	Instrs         []Instr
	MaxStackHeight int
}
