package wrtgo

import (
	"context"

	"github.com/pulseengine/wrt-go/api"
	"github.com/pulseengine/wrt-go/internal/async"
	"github.com/pulseengine/wrt-go/internal/exec"
	"github.com/pulseengine/wrt-go/internal/foundation"
	"github.com/pulseengine/wrt-go/internal/wasmbin"
)

// Runtime owns one foundation.System (and therefore one set of per-crate
// budgets) plus the cooperative scheduler every spawned task runs under.
// An embedder normally holds exactly one Runtime per process, per spec.md
// §9's "exactly one process-wide structure... all other global behavior...
// is an instance the embedder holds."
type Runtime struct {
	config    RuntimeConfig
	sys       *foundation.System
	scheduler *async.Scheduler
}

// NewRuntime installs the budget table for cfg and returns a Runtime ready
// to compile and instantiate modules, per spec.md §4.1's
// init_memory_system entry point.
func NewRuntime(cfg RuntimeConfig) (*Runtime, error) {
	sys, err := foundation.InitMemorySystem(cfg.memoryConfig)
	if err != nil {
		return nil, err
	}
	return &Runtime{
		config:    cfg,
		sys:       sys,
		scheduler: async.NewScheduler(),
	}, nil
}

// Close releases the Runtime's SafetyMonitor-observable state. There is
// nothing to unwind beyond what already-released guards have freed; Close
// exists so embedders have a `Close(context.Context) error` shape to hold
// onto regardless of which resources a future release adds here.
func (r *Runtime) Close(context.Context) error { return nil }

// Monitor exposes the process-wide SafetyMonitor for health/budget
// reporting (spec.md §4.1 safety_report).
func (r *Runtime) Monitor() *foundation.SafetyMonitor { return r.sys.Monitor() }

// Scheduler exposes the cooperative task scheduler (L4) so an embedder can
// Spawn tasks across component instances sharing this Runtime's budgets.
func (r *Runtime) Scheduler() *async.Scheduler { return r.scheduler }

// DetectFormat inspects a bounded prefix of data without a full decode,
// per spec.md §4.2's detect_format.
func DetectFormat(data []byte) wasmbin.Format { return wasmbin.DetectFormat(data) }

// CompiledModule is a decoded, fully validated Module graph ready to be
// instantiated any number of times, per spec.md §3.2 "immutable after
// validation."
type CompiledModule struct {
	module *wasmbin.Module
}

// Close releases the bounded containers the decoder charged while
// building this module graph.
func (c *CompiledModule) Close() { c.module.Close() }

// CompileModule decodes and validates a WebAssembly binary, per spec.md
// §4.2's decode(bytes, mode) contract. Every bounded container built
// during decode is charged against r's foundation.System.
func (r *Runtime) CompileModule(binary []byte) (*CompiledModule, error) {
	m, err := wasmbin.Decode(r.sys, binary, r.config.decodeMode(), r.config.enabledFeatures)
	if err != nil {
		return nil, err
	}
	return &CompiledModule{module: m}, nil
}

// ParseNameSection decodes a "name" custom section independently of a
// full module decode, per spec.md §4.2's optional parse_name_section.
func ParseNameSection(data []byte) (*wasmbin.NameSection, error) {
	return wasmbin.DecodeStandaloneNameSection(data)
}

// HostModuleBuilder accumulates host functions under one import-module
// namespace via a chained builder.
type HostModuleBuilder struct {
	moduleName string
	imports    *exec.Imports
}

// NewHostModuleBuilder starts a host module named moduleName.
func (r *Runtime) NewHostModuleBuilder(moduleName string) *HostModuleBuilder {
	return &HostModuleBuilder{moduleName: moduleName, imports: &exec.Imports{Functions: map[string]map[string]exec.HostFunction{}}}
}

// Export registers fn under name in this host module.
func (b *HostModuleBuilder) Export(name string, fn exec.HostFunction) *HostModuleBuilder {
	ns, ok := b.imports.Functions[b.moduleName]
	if !ok {
		ns = map[string]exec.HostFunction{}
		b.imports.Functions[b.moduleName] = ns
	}
	ns[name] = fn
	return b
}

// Instantiate allocates memories/tables/globals within their declared
// limits and runs the start function if any, per spec.md §4.3's
// instantiate(module, imports) contract.
func (r *Runtime) Instantiate(compiled *CompiledModule, hostImports ...*HostModuleBuilder) (*Module, error) {
	merged := &exec.Imports{Functions: map[string]map[string]exec.HostFunction{}}
	for _, h := range hostImports {
		for ns, fns := range h.imports.Functions {
			dst, ok := merged.Functions[ns]
			if !ok {
				dst = map[string]exec.HostFunction{}
				merged.Functions[ns] = dst
			}
			for name, fn := range fns {
				dst[name] = fn
			}
		}
	}
	inst, err := exec.Instantiate(r.sys, compiled.module, merged, r.config.enabledFeatures, nil)
	if err != nil {
		return nil, err
	}
	return &Module{runtime: r, instance: inst}, nil
}

// Module is one instantiated module: its function index space, memories,
// tables, and globals, per spec.md §3.3.
type Module struct {
	runtime  *Runtime
	instance *exec.Instance
}

// Close releases this instance's memory/table allocations.
func (m *Module) Close() { m.instance.Close() }

// ExportedFunction looks up an exported function by name and returns a
// callable bound to this instance, or ok=false if no such function export
// exists.
func (m *Module) ExportedFunction(name string) (fn ExportedFunction, ok bool) {
	for _, exp := range m.instance.Module.ExportSection {
		if exp.Type == api.ExternTypeFunc && exp.Name == name {
			return ExportedFunction{module: m, funcIdx: exp.Index}, true
		}
	}
	return ExportedFunction{}, false
}

// ExportedFunction is a callable bound to one function index of an
// instantiated Module.
type ExportedFunction struct {
	module  *Module
	funcIdx wasmbin.Index
}

// DefaultInvokeFuel bounds a direct Call with no explicit fuel budget.
// Invoke via the Scheduler instead of Call when the caller wants
// cooperative suspension rather than a synchronous fuel-exhausted error.
const DefaultInvokeFuel = 1_000_000

// Call drives the function to completion synchronously, per spec.md
// §4.3's invoke(instance, func_idx, args) contract. fuel bounds the
// run; Call returns wasmruntime.ErrRuntimeOutOfFuel if it is exhausted
// before the call completes — use Spawn on the Runtime's Scheduler for
// a call that should yield cooperatively instead.
func (f ExportedFunction) Call(args ...uint64) ([]uint64, error) {
	return exec.Invoke(f.module.instance, f.funcIdx, args, DefaultInvokeFuel)
}

// CallWithFuel is Call with an explicit fuel budget, per spec.md §8's S1/S2
// scenarios, which both assert fuel_consumed/trap behavior directly.
func (f ExportedFunction) CallWithFuel(fuel uint64, args ...uint64) ([]uint64, error) {
	return exec.Invoke(f.module.instance, f.funcIdx, args, fuel)
}

// Spawn hands the function off to the Runtime's cooperative Scheduler as a
// new Task rather than running it synchronously, per spec.md §4.4.
func (f ExportedFunction) Spawn(args ...uint64) (async.TaskId, error) {
	return f.module.runtime.scheduler.Spawn(f.module.instance, f.funcIdx, args)
}
