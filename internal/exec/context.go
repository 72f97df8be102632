// Package exec implements the Execution Layer (L3): a stackless
// instruction interpreter with an explicit operand stack, call frames,
// linear-memory pages, tables, globals, and a fuel counter, per spec.md
// §3.3/§4.3. All execution state lives in ExecutionContext, never on the
// host call stack, so a run can be suspended at any instruction boundary
// and resumed later bit-for-bit — spec.md §9's "the execution context *is*
// the continuation." Step is a flat opcode-dispatch loop generalized to
// return after exactly one instruction rather than running a function
// call to completion on the Go stack.
package exec

import (
	"github.com/pulseengine/wrt-go/internal/buildoptions"
	"github.com/pulseengine/wrt-go/internal/ir"
)

// CallStackCeiling bounds call-frame depth, per spec.md §3.3 "depth limit
// is a configuration constant."
var CallStackCeiling = buildoptions.CallStackCeiling

// Frame is one function activation: locals, its own operand stack, and a
// program counter into its CompiledFunction's flat instruction list, per
// spec.md §3.3.
type Frame struct {
	Func    *FunctionInstance
	Locals  []uint64
	Operand []uint64
	PC      int32
}

func (f *Frame) push(v uint64) { f.Operand = append(f.Operand, v) }

func (f *Frame) pop() uint64 {
	v := f.Operand[len(f.Operand)-1]
	f.Operand = f.Operand[:len(f.Operand)-1]
	return v
}

func (f *Frame) truncate(height int32, keep int32) {
	saved := make([]uint64, keep)
	copy(saved, f.Operand[len(f.Operand)-int(keep):])
	f.Operand = append(f.Operand[:height], saved...)
}

// StepResultKind is the ExecutionStepResult tag spec.md §4.3 names:
// Continued, Yielded(reason), Completed(values), Trapped(kind).
type StepResultKind uint8

const (
	Continued StepResultKind = iota
	Yielded
	Completed
	Trapped
)

// YieldReason distinguishes why Step suspended, per spec.md §4.3's
// enumerated yield conditions.
type YieldReason uint8

const (
	// YieldOutOfFuel fires when FuelRemaining reaches zero.
	YieldOutOfFuel YieldReason = iota
	// YieldCooperative fires on the (core-level) cooperative yield point;
	// L3 itself has no such opcode, but embedding layers may synthesize
	// one via ExecutionContext.RequestYield.
	YieldCooperative
	// YieldBuiltin fires when the interpreter hits a Component-Model
	// async builtin opcode (task.wait/task.yield/task.poll). L3 does not
	// interpret the builtin itself — spec.md §2's strict layering keeps
	// L3 ignorant of tasks — it only reports which named builtin was
	// invoked and the arguments already popped off the operand stack;
	// internal/async supplies the semantics and feeds the result back via
	// PushBuiltinResult before resuming Step.
	YieldBuiltin
)

// BuiltinCall names an async builtin invocation site: the opcode's mapped
// name and its already-popped arguments, per SPEC_FULL.md §4's
// "canonical ABI builtin operations as a small registry of named
// operations... keeps internal/exec decoupled from internal/async."
type BuiltinCall struct {
	Name string
	Args []uint64
}

// ExecutionStepResult is Step's return value, the concrete instantiation
// of spec.md §3.3's InstructionOutcome for the Step/Invoke public
// contract (§4.3): Continued, Yielded(reason), Completed(values), or
// Trapped(kind).
type ExecutionStepResult struct {
	Kind    StepResultKind
	Reason  YieldReason
	Builtin *BuiltinCall
	Values  []uint64
	Trap    error
}

// ExecutionContext is the full, heap-resident state of one in-flight
// call: frames, the instance it is calling into, and a fuel counter, per
// spec.md §3.3. It is the continuation Step advances one instruction at a
// time; storing it in a Task (internal/async) is what makes suspension
// and resumption across cooperative scheduler ticks possible.
type ExecutionContext struct {
	Instance           *Instance
	Frames             []*Frame
	FuelRemaining      uint64
	VerificationLevel  VerificationLevel
	yieldRequested     bool
	pendingBuiltinArgs int // number of result values PushBuiltinResult expects; nothing assigns it, so it stays 0
}

// RequestYield marks a cooperative yield to be honored at the next
// instruction boundary. L4's task.yield builtin does not go through it:
// that builtin reaches the scheduler as a YieldBuiltin yield.
func (ctx *ExecutionContext) RequestYield() { ctx.yieldRequested = true }

func (ctx *ExecutionContext) currentFrame() *Frame {
	return ctx.Frames[len(ctx.Frames)-1]
}

// PushBuiltinResult feeds the async layer's computed result values back
// into the suspended call after a YieldBuiltin, to be consumed by the
// instruction that triggered it when Step is next called.
func (ctx *ExecutionContext) PushBuiltinResult(vals []uint64) {
	f := ctx.currentFrame()
	f.Operand = append(f.Operand, vals...)
}

// fuelCostOf returns the scaled fuel cost of executing in, per
// VerificationLevel's multiplier (spec.md §4.4).
func (ctx *ExecutionContext) fuelCostOf(in *ir.Instr) uint64 {
	return baseFuelCost(instrLike{op: in.Op, table: in.Table}) * ctx.VerificationLevel.Multiplier()
}
