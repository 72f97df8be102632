package exec

import (
	"context"
	"math"

	"github.com/pulseengine/wrt-go/internal/ir"
	"github.com/pulseengine/wrt-go/internal/moremath"
	"github.com/pulseengine/wrt-go/internal/wasmbin"
	"github.com/pulseengine/wrt-go/internal/wasmruntime"
)

// builtinName maps the async opcode range to the small named-registry
// contract internal/async's builtins.go consumes, per SPEC_FULL.md §4.
func builtinName(op wasmbin.Opcode) string {
	switch op {
	case wasmbin.OpcodeTaskWait:
		return "task.wait"
	case wasmbin.OpcodeTaskYield:
		return "task.yield"
	case wasmbin.OpcodeTaskPoll:
		return "task.poll"
	default:
		return ""
	}
}

// Invoke pushes a frame for funcIdx and drives Step until the call
// returns, traps, or exhausts fuel, per spec.md §4.3's invoke contract —
// the fixed point of Step for direct (non-task-scheduled) calls.
func Invoke(inst *Instance, funcIdx wasmbin.Index, args []uint64, fuel uint64) ([]uint64, error) {
	if int(funcIdx) >= len(inst.Functions) {
		return nil, wasmruntime.ErrRuntimeInvalidTableAccess
	}
	fn := inst.Functions[funcIdx]
	if fn.Host != nil {
		return fn.Host(context.Background(), args)
	}
	ctx := &ExecutionContext{Instance: inst, FuelRemaining: fuel, VerificationLevel: VerificationStandard}
	if err := pushCall(ctx, fn, args); err != nil {
		return nil, err
	}
	for {
		res := Step(ctx)
		switch res.Kind {
		case Continued:
			continue
		case Completed:
			return res.Values, nil
		case Trapped:
			return nil, res.Trap
		case Yielded:
			switch res.Reason {
			case YieldOutOfFuel:
				return nil, wasmruntime.ErrRuntimeOutOfFuel
			case YieldBuiltin:
				return nil, ErrBuiltinOutsideScheduler
			default:
				return nil, ErrCooperativeYieldOutsideScheduler
			}
		}
	}
}

func pushCall(ctx *ExecutionContext, fn *FunctionInstance, args []uint64) error {
	if len(ctx.Frames) >= CallStackCeiling {
		return wasmruntime.ErrRuntimeCallStackOverflow
	}
	cf := fn.Compiled
	locals := make([]uint64, cf.NumLocals)
	copy(locals, args)
	f := &Frame{
		Func:    fn,
		Locals:  locals,
		Operand: make([]uint64, 0, cf.MaxStackHeight+1),
	}
	ctx.Frames = append(ctx.Frames, f)
	return nil
}

// Step advances the topmost frame's program counter by exactly one
// instruction, per spec.md §4.3: deduct its fuel cost, perform the
// operation, then check for a yield/trap/completion condition.
func Step(ctx *ExecutionContext) ExecutionStepResult {
	if len(ctx.Frames) == 0 {
		return ExecutionStepResult{Kind: Completed}
	}
	f := ctx.currentFrame()
	cf := f.Func.Compiled
	if int(f.PC) >= len(cf.Instrs) {
		// fell off the end of the function: implicit return of whatever
		// values remain on top of this frame's operand stack.
		return popFrameAsCompletion(ctx, f)
	}
	in := &cf.Instrs[f.PC]

	cost := ctx.fuelCostOf(in)
	if ctx.FuelRemaining < cost {
		return ExecutionStepResult{Kind: Yielded, Reason: YieldOutOfFuel}
	}
	ctx.FuelRemaining -= cost

	if name := builtinName(in.Op); name != "" {
		nargs := builtinArgCount(in.Op)
		args := make([]uint64, nargs)
		for i := nargs - 1; i >= 0; i-- {
			args[i] = f.pop()
		}
		f.PC++
		return ExecutionStepResult{Kind: Yielded, Reason: YieldBuiltin, Builtin: &BuiltinCall{Name: name, Args: args}}
	}

	if ctx.yieldRequested {
		ctx.yieldRequested = false
		return ExecutionStepResult{Kind: Yielded, Reason: YieldCooperative}
	}

	if in.Op == wasmbin.OpcodeReturn {
		return popFrameAsCompletion(ctx, f)
	}

	trap := execOne(ctx, f, in)
	if trap != nil {
		return ExecutionStepResult{Kind: Trapped, Trap: trap}
	}
	return ExecutionStepResult{Kind: Continued}
}

func builtinArgCount(op wasmbin.Opcode) int {
	switch op {
	case wasmbin.OpcodeTaskWait:
		// packed WaitableSet handle, packed deadline (or the all-ones
		// no-timeout sentinel).
		return 2
	case wasmbin.OpcodeTaskPoll:
		// packed WaitableSet handle only.
		return 1
	default:
		return 0
	}
}

func popFrameAsCompletion(ctx *ExecutionContext, f *Frame) ExecutionStepResult {
	results := f.Func.Type.Results
	vals := make([]uint64, len(results))
	copy(vals, f.Operand[len(f.Operand)-len(results):])
	return returnFrom(ctx, vals)
}

// returnFrom pops the current frame, delivering vals to the caller's
// operand stack (or, for the outermost frame, to the Invoke caller as the
// call's Completed result).
func returnFrom(ctx *ExecutionContext, vals []uint64) ExecutionStepResult {
	ctx.Frames = ctx.Frames[:len(ctx.Frames)-1]
	if len(ctx.Frames) == 0 {
		return ExecutionStepResult{Kind: Completed, Values: vals}
	}
	caller := ctx.currentFrame()
	caller.Operand = append(caller.Operand, vals...)
	return ExecutionStepResult{Kind: Continued}
}

// execOne performs the side effect of a single non-builtin instruction,
// advancing f.PC, and returns a non-nil trap error if the instruction
// traps (spec.md §6's trap predicate).
func execOne(ctx *ExecutionContext, f *Frame, in *ir.Instr) error {
	switch in.Op {
	case ir.OpJump:
		f.PC = in.Target
		return nil
	case ir.OpJumpIfZero:
		cond := int32(f.pop())
		if cond == 0 {
			f.PC = in.Target
		} else {
			f.PC++
		}
		return nil
	case wasmbin.OpcodeUnreachable:
		return wasmruntime.ErrRuntimeUnreachable
	case wasmbin.OpcodeNop:
		f.PC++
		return nil
	case wasmbin.OpcodeDrop:
		f.pop()
		f.PC++
		return nil
	case wasmbin.OpcodeSelect:
		cond := int32(f.pop())
		v2 := f.pop()
		v1 := f.pop()
		if cond != 0 {
			f.push(v1)
		} else {
			f.push(v2)
		}
		f.PC++
		return nil

	case wasmbin.OpcodeBr:
		branch(f, in)
		return nil
	case wasmbin.OpcodeBrIf:
		cond := int32(f.pop())
		if cond != 0 {
			branch(f, in)
		} else {
			f.PC++
		}
		return nil
	case wasmbin.OpcodeBrTable:
		idx := int32(f.pop())
		n := len(in.Table)
		if idx < 0 || int(idx) >= n-1 {
			idx = int32(n - 1) // default target
		}
		f.truncate(in.TableHeights[idx], in.TableAdjust[idx])
		f.PC = in.Table[idx]
		return nil

	case wasmbin.OpcodeCall:
		return execCall(ctx, f, in.Index)
	case wasmbin.OpcodeCallIndirect:
		return execCallIndirect(ctx, f, in)

	case wasmbin.OpcodeLocalGet:
		f.push(f.Locals[in.Index])
		f.PC++
		return nil
	case wasmbin.OpcodeLocalSet:
		f.Locals[in.Index] = f.pop()
		f.PC++
		return nil
	case wasmbin.OpcodeLocalTee:
		f.Locals[in.Index] = f.Operand[len(f.Operand)-1]
		f.PC++
		return nil
	case wasmbin.OpcodeGlobalGet:
		f.push(ctx.Instance.Globals[in.Index].Value)
		f.PC++
		return nil
	case wasmbin.OpcodeGlobalSet:
		ctx.Instance.Globals[in.Index].Value = f.pop()
		f.PC++
		return nil

	case wasmbin.OpcodeTableGet:
		v, err := ctx.Instance.Tables[in.Index].Get(uint32(f.pop()))
		if err != nil {
			return err
		}
		f.push(uint64(v))
		f.PC++
		return nil
	case wasmbin.OpcodeTableSet:
		v := int64(f.pop())
		idx := uint32(f.pop())
		if err := ctx.Instance.Tables[in.Index].Set(idx, v); err != nil {
			return err
		}
		f.PC++
		return nil

	case wasmbin.OpcodeMemorySize:
		f.push(uint64(ctx.Instance.Memories[0].PageCount()))
		f.PC++
		return nil
	case wasmbin.OpcodeMemoryGrow:
		delta := uint32(f.pop())
		f.push(uint64(uint32(ctx.Instance.Memories[0].Grow(delta))))
		f.PC++
		return nil

	case wasmbin.OpcodeI32Load:
		v, err := ctx.Instance.Memories[0].LoadI32(uint32(f.pop()) + in.MemArg)
		if err != nil {
			return err
		}
		f.push(uint64(uint32(v)))
		f.PC++
		return nil
	case wasmbin.OpcodeI64Load:
		v, err := ctx.Instance.Memories[0].LoadI64(uint32(f.pop()) + in.MemArg)
		if err != nil {
			return err
		}
		f.push(uint64(v))
		f.PC++
		return nil
	case wasmbin.OpcodeF32Load:
		v, err := ctx.Instance.Memories[0].LoadI32(uint32(f.pop()) + in.MemArg)
		if err != nil {
			return err
		}
		f.push(uint64(uint32(v)))
		f.PC++
		return nil
	case wasmbin.OpcodeF64Load:
		v, err := ctx.Instance.Memories[0].LoadI64(uint32(f.pop()) + in.MemArg)
		if err != nil {
			return err
		}
		f.push(uint64(v))
		f.PC++
		return nil
	case wasmbin.OpcodeI32Store:
		v := int32(f.pop())
		addr := uint32(f.pop()) + in.MemArg
		if err := ctx.Instance.Memories[0].StoreI32(addr, v); err != nil {
			return err
		}
		f.PC++
		return nil
	case wasmbin.OpcodeI64Store:
		v := int64(f.pop())
		addr := uint32(f.pop()) + in.MemArg
		if err := ctx.Instance.Memories[0].StoreI64(addr, v); err != nil {
			return err
		}
		f.PC++
		return nil
	case wasmbin.OpcodeF32Store:
		v := int32(f.pop())
		addr := uint32(f.pop()) + in.MemArg
		if err := ctx.Instance.Memories[0].StoreI32(addr, v); err != nil {
			return err
		}
		f.PC++
		return nil
	case wasmbin.OpcodeF64Store:
		v := int64(f.pop())
		addr := uint32(f.pop()) + in.MemArg
		if err := ctx.Instance.Memories[0].StoreI64(addr, v); err != nil {
			return err
		}
		f.PC++
		return nil

	case wasmbin.OpcodeI32Const:
		f.push(uint64(uint32(in.ConstI32)))
		f.PC++
		return nil
	case wasmbin.OpcodeI64Const, wasmbin.OpcodeF32Const, wasmbin.OpcodeF64Const:
		f.push(uint64(in.ConstI64))
		f.PC++
		return nil

	case wasmbin.OpcodeRefNull:
		f.push(uint64(nullRef))
		f.PC++
		return nil
	case wasmbin.OpcodeRefIsNull:
		v := int64(f.pop())
		if v == nullRef {
			f.push(1)
		} else {
			f.push(0)
		}
		f.PC++
		return nil
	case wasmbin.OpcodeRefFunc:
		f.push(uint64(in.Index))
		f.PC++
		return nil

	case wasmbin.OpcodeI32Eqz:
		v := int32(f.pop())
		f.push(b2u(v == 0))
		f.PC++
		return nil
	case wasmbin.OpcodeI32Eq, wasmbin.OpcodeI32Ne, wasmbin.OpcodeI32LtS, wasmbin.OpcodeI32GtS:
		b := int32(f.pop())
		a := int32(f.pop())
		f.push(i32Compare(in.Op, a, b))
		f.PC++
		return nil
	case wasmbin.OpcodeI32Add:
		b := int32(f.pop())
		a := int32(f.pop())
		f.push(uint64(uint32(a + b)))
		f.PC++
		return nil
	case wasmbin.OpcodeI32Sub:
		b := int32(f.pop())
		a := int32(f.pop())
		f.push(uint64(uint32(a - b)))
		f.PC++
		return nil
	case wasmbin.OpcodeI32Mul:
		b := int32(f.pop())
		a := int32(f.pop())
		f.push(uint64(uint32(a * b)))
		f.PC++
		return nil
	case wasmbin.OpcodeI32DivS:
		b := int32(f.pop())
		a := int32(f.pop())
		if b == 0 {
			return wasmruntime.ErrRuntimeIntegerDivideByZero
		}
		if a == math.MinInt32 && b == -1 {
			return wasmruntime.ErrRuntimeIntegerOverflow
		}
		f.push(uint64(uint32(a / b)))
		f.PC++
		return nil
	case wasmbin.OpcodeI32DivU:
		b := uint32(f.pop())
		a := uint32(f.pop())
		if b == 0 {
			return wasmruntime.ErrRuntimeIntegerDivideByZero
		}
		f.push(uint64(a / b))
		f.PC++
		return nil
	case wasmbin.OpcodeI32RemS:
		b := int32(f.pop())
		a := int32(f.pop())
		if b == 0 {
			return wasmruntime.ErrRuntimeIntegerDivideByZero
		}
		if b == -1 {
			f.push(0)
		} else {
			f.push(uint64(uint32(a % b)))
		}
		f.PC++
		return nil
	case wasmbin.OpcodeI32RemU:
		b := uint32(f.pop())
		a := uint32(f.pop())
		if b == 0 {
			return wasmruntime.ErrRuntimeIntegerDivideByZero
		}
		f.push(uint64(a % b))
		f.PC++
		return nil
	case wasmbin.OpcodeI32And:
		b := f.pop()
		a := f.pop()
		f.push(a & b)
		f.PC++
		return nil
	case wasmbin.OpcodeI32Or:
		b := f.pop()
		a := f.pop()
		f.push(a | b)
		f.PC++
		return nil
	case wasmbin.OpcodeI32Xor:
		b := f.pop()
		a := f.pop()
		f.push(a ^ b)
		f.PC++
		return nil
	case wasmbin.OpcodeI32Shl:
		b := uint32(f.pop())
		a := uint32(f.pop())
		f.push(uint64(a << (b & 31)))
		f.PC++
		return nil
	case wasmbin.OpcodeI32ShrS:
		b := uint32(f.pop())
		a := int32(f.pop())
		f.push(uint64(uint32(a >> (b & 31))))
		f.PC++
		return nil
	case wasmbin.OpcodeI32ShrU:
		b := uint32(f.pop())
		a := uint32(f.pop())
		f.push(uint64(a >> (b & 31)))
		f.PC++
		return nil

	case wasmbin.OpcodeI64Add:
		b := int64(f.pop())
		a := int64(f.pop())
		f.push(uint64(a + b))
		f.PC++
		return nil
	case wasmbin.OpcodeI64Sub:
		b := int64(f.pop())
		a := int64(f.pop())
		f.push(uint64(a - b))
		f.PC++
		return nil
	case wasmbin.OpcodeI64Mul:
		b := int64(f.pop())
		a := int64(f.pop())
		f.push(uint64(a * b))
		f.PC++
		return nil
	case wasmbin.OpcodeI64DivS:
		b := int64(f.pop())
		a := int64(f.pop())
		if b == 0 {
			return wasmruntime.ErrRuntimeIntegerDivideByZero
		}
		if a == math.MinInt64 && b == -1 {
			return wasmruntime.ErrRuntimeIntegerOverflow
		}
		f.push(uint64(a / b))
		f.PC++
		return nil
	case wasmbin.OpcodeI64DivU:
		b := f.pop()
		a := f.pop()
		if b == 0 {
			return wasmruntime.ErrRuntimeIntegerDivideByZero
		}
		f.push(a / b)
		f.PC++
		return nil

	case wasmbin.OpcodeF32Add:
		b := math.Float32frombits(uint32(f.pop()))
		a := math.Float32frombits(uint32(f.pop()))
		f.push(uint64(math.Float32bits(a + b)))
		f.PC++
		return nil
	case wasmbin.OpcodeF64Add:
		b := math.Float64frombits(f.pop())
		a := math.Float64frombits(f.pop())
		f.push(math.Float64bits(a + b))
		f.PC++
		return nil

	case wasmbin.OpcodeF32Sub:
		b := math.Float32frombits(uint32(f.pop()))
		a := math.Float32frombits(uint32(f.pop()))
		f.push(uint64(math.Float32bits(a - b)))
		f.PC++
		return nil
	case wasmbin.OpcodeF32Mul:
		b := math.Float32frombits(uint32(f.pop()))
		a := math.Float32frombits(uint32(f.pop()))
		f.push(uint64(math.Float32bits(a * b)))
		f.PC++
		return nil
	case wasmbin.OpcodeF32Min:
		b := float64(math.Float32frombits(uint32(f.pop())))
		a := float64(math.Float32frombits(uint32(f.pop())))
		f.push(uint64(math.Float32bits(float32(moremath.WasmCompatMin(a, b)))))
		f.PC++
		return nil
	case wasmbin.OpcodeF32Max:
		b := float64(math.Float32frombits(uint32(f.pop())))
		a := float64(math.Float32frombits(uint32(f.pop())))
		f.push(uint64(math.Float32bits(float32(moremath.WasmCompatMax(a, b)))))
		f.PC++
		return nil

	case wasmbin.OpcodeF64Sub:
		b := math.Float64frombits(f.pop())
		a := math.Float64frombits(f.pop())
		f.push(math.Float64bits(a - b))
		f.PC++
		return nil
	case wasmbin.OpcodeF64Mul:
		b := math.Float64frombits(f.pop())
		a := math.Float64frombits(f.pop())
		f.push(math.Float64bits(a * b))
		f.PC++
		return nil
	case wasmbin.OpcodeF64Min:
		b := math.Float64frombits(f.pop())
		a := math.Float64frombits(f.pop())
		f.push(math.Float64bits(moremath.WasmCompatMin(a, b)))
		f.PC++
		return nil
	case wasmbin.OpcodeF64Max:
		b := math.Float64frombits(f.pop())
		a := math.Float64frombits(f.pop())
		f.push(math.Float64bits(moremath.WasmCompatMax(a, b)))
		f.PC++
		return nil

	case wasmbin.OpcodeF32Nearest:
		v := math.Float32frombits(uint32(f.pop()))
		f.push(uint64(math.Float32bits(moremath.WasmCompatNearestF32(v))))
		f.PC++
		return nil
	case wasmbin.OpcodeF64Nearest:
		v := math.Float64frombits(f.pop())
		f.push(math.Float64bits(moremath.WasmCompatNearestF64(v)))
		f.PC++
		return nil

	default:
		return wasmruntime.ErrRuntimeUnreachable
	}
}

func b2u(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}

func i32Compare(op wasmbin.Opcode, a, b int32) uint64 {
	switch op {
	case wasmbin.OpcodeI32Eq:
		return b2u(a == b)
	case wasmbin.OpcodeI32Ne:
		return b2u(a != b)
	case wasmbin.OpcodeI32LtS:
		return b2u(a < b)
	case wasmbin.OpcodeI32GtS:
		return b2u(a > b)
	default:
		return 0
	}
}

func branch(f *Frame, in *ir.Instr) {
	f.truncate(in.TargetHeight, in.StackAdjust)
	f.PC = in.Target
}

func execCall(ctx *ExecutionContext, f *Frame, funcIdx uint32) error {
	inst := ctx.Instance
	if int(funcIdx) >= len(inst.Functions) {
		return wasmruntime.ErrRuntimeInvalidTableAccess
	}
	callee := inst.Functions[funcIdx]
	args := popArgs(f, calleeParamCount(callee))
	if callee.Host != nil {
		results, err := callee.Host(context.Background(), args)
		if err != nil {
			return err
		}
		f.Operand = append(f.Operand, results...)
		f.PC++
		return nil
	}
	if err := pushCall(ctx, callee, args); err != nil {
		return err
	}
	f.PC++ // the caller resumes here once the callee returns
	return nil
}

func execCallIndirect(ctx *ExecutionContext, f *Frame, in *ir.Instr) error {
	inst := ctx.Instance
	if int(in.Index2) >= len(inst.Tables) {
		return wasmruntime.ErrRuntimeInvalidTableAccess
	}
	elemIdx := uint32(f.pop())
	ref, err := inst.Tables[in.Index2].Get(elemIdx)
	if err != nil {
		return err
	}
	if ref == nullRef {
		return wasmruntime.ErrRuntimeInvalidTableAccess
	}
	funcIdx := uint32(ref)
	if int(funcIdx) >= len(inst.Functions) {
		return wasmruntime.ErrRuntimeInvalidTableAccess
	}
	callee := inst.Functions[funcIdx]
	if int(in.Index) >= len(inst.Module.TypeSection) {
		return wasmruntime.ErrRuntimeIndirectCallTypeMismatch
	}
	want := inst.Module.TypeSection[in.Index]
	if callee.Type == nil || callee.Type.Key() != want.Key() {
		return wasmruntime.ErrRuntimeIndirectCallTypeMismatch
	}
	args := popArgs(f, len(want.Params))
	if callee.Host != nil {
		results, err := callee.Host(context.Background(), args)
		if err != nil {
			return err
		}
		f.Operand = append(f.Operand, results...)
		f.PC++
		return nil
	}
	if err := pushCall(ctx, callee, args); err != nil {
		return err
	}
	f.PC++
	return nil
}

func calleeParamCount(fn *FunctionInstance) int {
	if fn.Type == nil {
		return 0
	}
	return len(fn.Type.Params)
}

func popArgs(f *Frame, n int) []uint64 {
	args := make([]uint64, n)
	copy(args, f.Operand[len(f.Operand)-n:])
	f.Operand = f.Operand[:len(f.Operand)-n]
	return args
}
