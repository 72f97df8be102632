package exec

import (
	"context"
	"fmt"

	"github.com/pulseengine/wrt-go/api"
	"github.com/pulseengine/wrt-go/internal/foundation"
	"github.com/pulseengine/wrt-go/internal/ir"
	"github.com/pulseengine/wrt-go/internal/wasmbin"
)

// HostFunction is the Go-level shape of an imported function: the means
// by which the ExecutorCallback host-integration surface (spec.md §6)
// executes, specialized to in-process Go calls rather than a serialized
// cross-boundary callback.
type HostFunction func(ctx context.Context, args []uint64) ([]uint64, error)

// FunctionInstance is one entry of the function index space: either an
// imported host function or a module-defined, already-compiled one.
type FunctionInstance struct {
	ModuleName, Name string
	Type             *wasmbin.FuncType
	Compiled         *ir.CompiledFunction
	Host             HostFunction
}

// Imports resolves a module's import section to concrete host-provided
// values. Only function imports are supported in this scope; memory,
// table, and global imports are rejected with a clear error rather than
// silently ignored.
type Imports struct {
	Functions map[string]map[string]HostFunction
}

func (im *Imports) lookupFunction(moduleName, name string) (HostFunction, bool) {
	if im == nil || im.Functions == nil {
		return nil, false
	}
	ns, ok := im.Functions[moduleName]
	if !ok {
		return nil, false
	}
	f, ok := ns[name]
	return f, ok
}

// Instance is an instantiated module: its function index space, memories,
// tables, and globals, all allocated within their declared limits, per
// spec.md §4.3 "instantiate(module, imports)".
type Instance struct {
	Module    *wasmbin.Module
	Sys       *foundation.System
	Functions []*FunctionInstance
	Memories  []*Memory
	Tables    []*Table
	Globals   []*Global
}

// Close releases every memory/table allocation this instance holds.
func (i *Instance) Close() {
	for _, m := range i.Memories {
		m.Close()
	}
	for _, t := range i.Tables {
		t.Close()
	}
}

// Instantiate allocates memories/tables/globals within their declared
// limits, resolves imports, compiles every module-defined function body,
// and runs the start function if any, per spec.md §4.3. simd may be nil,
// in which case DisabledSIMD is used: a module compiled with
// CoreFeatureSIMD enabled but no working vector backend fails here,
// before any function executes, rather than trapping on its first v128
// opcode.
func Instantiate(sys *foundation.System, module *wasmbin.Module, imports *Imports, features api.CoreFeatures, simd SIMDProvider) (*Instance, error) {
	if simd == nil {
		simd = DisabledSIMD{}
	}
	if err := checkSIMDSupport(features, simd); err != nil {
		return nil, err
	}
	inst := &Instance{Module: module, Sys: sys}

	for _, imp := range module.ImportSection {
		switch imp.Type {
		case api.ExternTypeFunc:
			hf, ok := imports.lookupFunction(imp.Module, imp.Name)
			if !ok {
				return nil, fmt.Errorf("exec: unresolved function import %s.%s", imp.Module, imp.Name)
			}
			var ft *wasmbin.FuncType
			if int(imp.DescFunc) < len(module.TypeSection) {
				ft = module.TypeSection[imp.DescFunc]
			}
			inst.Functions = append(inst.Functions, &FunctionInstance{ModuleName: imp.Module, Name: imp.Name, Type: ft, Host: hf})
		default:
			return nil, fmt.Errorf("exec: %s.%s: memory/table/global imports are not supported in this scope", imp.Module, imp.Name)
		}
	}

	for i, typeIdx := range module.FunctionSection {
		ft := module.TypeSection[typeIdx]
		body := module.CodeSection[i]
		funcIdx := wasmbin.Index(len(inst.Functions))
		cf, err := ir.Compile(module, funcIdx, ft, body)
		if err != nil {
			return nil, fmt.Errorf("exec: compiling function %d: %w", funcIdx, err)
		}
		inst.Functions = append(inst.Functions, &FunctionInstance{Type: ft, Compiled: cf})
	}

	for _, mem := range module.MemorySection {
		m, err := NewMemory(sys, mem.Min, mem.Max, mem.HasMax)
		if err != nil {
			return nil, err
		}
		inst.Memories = append(inst.Memories, m)
	}

	for _, tbl := range module.TableSection {
		t, err := NewTable(sys, tbl.ElemType, tbl.Limits.Min, tbl.Limits.Max, tbl.Limits.HasMax)
		if err != nil {
			return nil, err
		}
		inst.Tables = append(inst.Tables, t)
	}

	for _, g := range module.GlobalSection {
		v, err := evalConstExpr(inst, g.Init)
		if err != nil {
			return nil, err
		}
		inst.Globals = append(inst.Globals, &Global{Type: g.Type.ValType, Mutable: g.Type.Mutable, Value: v})
	}

	for _, el := range module.ElementSection {
		if el.Mode != wasmbin.ElementModeActive || int(el.TableIndex) >= len(inst.Tables) {
			continue
		}
		off, err := evalConstExpr(inst, el.OffsetExpression)
		if err != nil {
			return nil, err
		}
		t := inst.Tables[el.TableIndex]
		for i, fn := range el.Init {
			if err := t.Set(uint32(off)+uint32(i), int64(fn)); err != nil {
				return nil, err
			}
		}
	}

	for _, d := range module.DataSection {
		if d.IsPassive() || len(inst.Memories) == 0 {
			continue
		}
		off, err := evalConstExpr(inst, d.OffsetExpression)
		if err != nil {
			return nil, err
		}
		m := inst.Memories[0]
		if uint64(off)+uint64(len(d.Init)) > uint64(len(m.buf)) {
			return nil, fmt.Errorf("exec: data segment out of bounds")
		}
		copy(m.buf[off:], d.Init)
	}

	if module.StartSection != nil {
		if _, err := Invoke(inst, *module.StartSection, nil, defaultStartFuel); err != nil {
			return nil, fmt.Errorf("exec: start function: %w", err)
		}
	}
	return inst, nil
}

// defaultStartFuel bounds the start function's own execution; it is not
// exposed as a knob because spec.md gives the start function no
// parameters/results and no reason to run indefinitely.
const defaultStartFuel = 10_000_000

// evalConstExpr evaluates a ConstantExpression at instantiation time.
// Supported forms are i32/i64/f32/f64 const, ref.null, and global.get of
// an already-initialized (necessarily earlier) global, matching spec.md
// §3.2's "non-constant initialisers" rejection scope; global.get of a
// later or imported global, and extended-const arithmetic, are rejected.
func evalConstExpr(inst *Instance, ce *wasmbin.ConstantExpression) (uint64, error) {
	if ce == nil {
		return 0, nil
	}
	switch ce.Opcode {
	case wasmbin.OpcodeI32Const, wasmbin.OpcodeI64Const, wasmbin.OpcodeF32Const, wasmbin.OpcodeF64Const:
		return decodeConstImmediate(ce)
	case wasmbin.OpcodeRefNull:
		return uint64(nullRef), nil
	case wasmbin.OpcodeRefFunc:
		idx, _, err := decodeU32(ce.Data)
		if err != nil {
			return 0, err
		}
		return uint64(idx), nil
	case wasmbin.OpcodeGlobalGet:
		idx, _, err := decodeU32(ce.Data)
		if err != nil {
			return 0, err
		}
		if int(idx) >= len(inst.Globals) {
			return 0, fmt.Errorf("exec: global.get in const expr references out-of-range or later global %d", idx)
		}
		return inst.Globals[idx].Value, nil
	default:
		return 0, fmt.Errorf("exec: unsupported constant expression opcode %#x", ce.Opcode)
	}
}
