package wasmbin

import (
	"bytes"
	"fmt"

	"github.com/pulseengine/wrt-go/api"
	"github.com/pulseengine/wrt-go/internal/leb128"
	"go.uber.org/multierr"
)

// validate checks every function body's immediates and block nesting
// (operand types are not checked) and cross-references the export and
// start indices, per spec.md §4.2's "after parse, run validation" step. It
// aggregates every ValidationError it finds via multierr rather than
// stopping at the first one, so a caller sees every function's failures
// in one pass instead of fixing errors one at a time.
func validate(m *Module, features api.CoreFeatures) error {
	var errs error
	if err := validateIndexSpaces(m); err != nil {
		errs = multierr.Append(errs, err)
	}
	for funcIdx := 0; funcIdx < len(m.CodeSection); funcIdx++ {
		if err := validateFunctionBody(m, Index(funcIdx), features); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func validateIndexSpaces(m *Module) error {
	var errs error
	for _, exp := range m.ExportSection {
		switch exp.Type {
		case api.ExternTypeFunc:
			if int(exp.Index) >= m.AllFunctionsCount() {
				errs = multierr.Append(errs, validationErr(exp.Index, -1, "export references out-of-range function index"))
			}
		case api.ExternTypeTable:
			if int(exp.Index) >= len(m.TableSection) {
				errs = multierr.Append(errs, validationErr(exp.Index, -1, "export references out-of-range table index"))
			}
		case api.ExternTypeMemory:
			if int(exp.Index) >= len(m.MemorySection) {
				errs = multierr.Append(errs, validationErr(exp.Index, -1, "export references out-of-range memory index"))
			}
		case api.ExternTypeGlobal:
			if int(exp.Index) >= len(m.GlobalSection) {
				errs = multierr.Append(errs, validationErr(exp.Index, -1, "export references out-of-range global index"))
			}
		}
	}
	if m.StartSection != nil {
		ft := m.TypeOfFunction(*m.StartSection)
		if ft == nil {
			errs = multierr.Append(errs, validationErr(*m.StartSection, -1, "start references out-of-range function index"))
		} else if len(ft.Params) != 0 || len(ft.Results) != 0 {
			errs = multierr.Append(errs, validationErr(*m.StartSection, -1, "start function must take no params and return no results"))
		}
	}
	if len(m.MemorySection) > 1 {
		// More than one memory is accepted here whether or not
		// CoreFeatureMultiMemory is enabled; validateFunctionBody does not
		// reject it either.
	}
	return errs
}

// operandStackSim is a minimal abstract-interpretation stack used to
// compute a function body's MaxStackHeight and to reject obviously
// unbalanced control constructs, without implementing the complete
// polymorphic stack-typing algorithm of the reference validator.
type operandStackSim struct {
	height, max, controlDepth int
}

func (s *operandStackSim) push(n int) {
	s.height += n
	if s.height > s.max {
		s.max = s.height
	}
}

func (s *operandStackSim) pop(n int) error {
	if s.height < n {
		return fmt.Errorf("operand stack underflow")
	}
	s.height -= n
	return nil
}

// validateFunctionBody checks one function's instruction stream for
// well-formed immediates and balanced block nesting, computing
// MaxStackHeight (operand values only; parameters are locals) as it
// walks. Operand types are not checked against the FuncType signature.
// It is a single forward pass: blocks, loops, and ifs are
// balance-checked via controlDepth rather than per-branch stack
// reconciliation.
func validateFunctionBody(m *Module, funcIdx Index, features api.CoreFeatures) error {
	body := m.CodeSection[funcIdx]
	ft := m.TypeOfFunction(Index(m.AllFunctionsCount()-len(m.CodeSection)) + funcIdx)
	if ft == nil {
		return validationErr(funcIdx, -1, "function body has no corresponding type")
	}

	sim := &operandStackSim{}

	r := bytes.NewReader(body.Body)
	instrIdx := 0
	for r.Len() > 0 {
		op, err := r.ReadByte()
		if err != nil {
			return validationErr(funcIdx, instrIdx, "truncated instruction stream")
		}
		if err := skipImmediates(r, op, features); err != nil {
			return validationErr(funcIdx, instrIdx, err.Error())
		}
		applyStackEffect(sim, op)
		switch op {
		case OpcodeBlock, OpcodeLoop, OpcodeIf:
			sim.controlDepth++
		case OpcodeEnd:
			if sim.controlDepth > 0 {
				sim.controlDepth--
			}
		}
		instrIdx++
	}
	if sim.controlDepth != 0 {
		return validationErr(funcIdx, instrIdx, "unbalanced block/loop/if nesting")
	}
	body.MaxStackHeight = sim.max
	return nil
}

// skipImmediates advances r past op's immediate operands without
// semantically interpreting them, so the forward scan can continue past
// instructions whose stack effect validateFunctionBody does not model in
// detail (e.g. br_table's label vector).
func skipImmediates(r *bytes.Reader, op Opcode, features api.CoreFeatures) error {
	switch op {
	case OpcodeBlock, OpcodeLoop, OpcodeIf:
		_, _, err := leb128.DecodeInt33AsInt64(r)
		return err
	case OpcodeBr, OpcodeBrIf, OpcodeCall, OpcodeLocalGet, OpcodeLocalSet, OpcodeLocalTee,
		OpcodeGlobalGet, OpcodeGlobalSet, OpcodeTableGet, OpcodeTableSet,
		OpcodeMemorySize, OpcodeMemoryGrow, OpcodeRefFunc:
		_, _, err := leb128.DecodeUint32(r)
		return err
	case OpcodeCallIndirect:
		if _, _, err := leb128.DecodeUint32(r); err != nil {
			return err
		}
		_, _, err := leb128.DecodeUint32(r) // table index
		return err
	case OpcodeBrTable:
		n, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return err
		}
		for i := uint32(0); i <= n; i++ { // n labels plus the default
			if _, _, err := leb128.DecodeUint32(r); err != nil {
				return err
			}
		}
		return nil
	case OpcodeI32Const:
		_, _, err := leb128.DecodeInt32(r)
		return err
	case OpcodeI64Const:
		_, _, err := leb128.DecodeInt64(r)
		return err
	case OpcodeF32Const:
		var b [4]byte
		_, err := r.Read(b[:])
		return err
	case OpcodeF64Const:
		var b [8]byte
		_, err := r.Read(b[:])
		return err
	case OpcodeI32Load, OpcodeI64Load, OpcodeF32Load, OpcodeF64Load,
		OpcodeI32Store, OpcodeI64Store, OpcodeF32Store, OpcodeF64Store:
		if _, _, err := leb128.DecodeUint32(r); err != nil { // align
			return err
		}
		_, _, err := leb128.DecodeUint32(r) // offset
		return err
	case OpcodeSelect:
		return nil
	case OpcodeRefNull:
		_, err := r.ReadByte()
		return err
	case OpcodeTaskWait, OpcodeTaskYield, OpcodeTaskPoll:
		if !features.IsEnabled(api.CoreFeatureComponentModel) {
			return fmt.Errorf("async builtin opcode %#x requires component-model support", op)
		}
		return nil
	default:
		return nil
	}
}

// applyStackEffect adjusts sim's modeled height for instructions whose
// arity is fixed and known without consulting a type signature. Variable-
// arity instructions (call, call_indirect, select-with-type, block
// results) are left to the execution-layer compiler's full typing pass.
func applyStackEffect(sim *operandStackSim, op Opcode) {
	switch op {
	case OpcodeI32Const, OpcodeI64Const, OpcodeF32Const, OpcodeF64Const,
		OpcodeLocalGet, OpcodeGlobalGet, OpcodeRefNull, OpcodeRefFunc, OpcodeRefIsNull:
		sim.push(1)
	case OpcodeLocalSet, OpcodeGlobalSet, OpcodeDrop:
		sim.pop(1)
	case OpcodeLocalTee:
		// net zero: pops and repushes the same value.
	case OpcodeI32Add, OpcodeI32Sub, OpcodeI32Mul, OpcodeI32DivS, OpcodeI32DivU,
		OpcodeI32RemS, OpcodeI32RemU, OpcodeI32And, OpcodeI32Or, OpcodeI32Xor,
		OpcodeI32Shl, OpcodeI32ShrS, OpcodeI32ShrU, OpcodeI32Eq, OpcodeI32Ne,
		OpcodeI32LtS, OpcodeI32GtS,
		OpcodeI64Add, OpcodeI64Sub, OpcodeI64Mul, OpcodeI64DivS, OpcodeI64DivU,
		OpcodeF32Add, OpcodeF64Add:
		sim.pop(2)
		sim.push(1)
	case OpcodeI32Eqz:
		sim.pop(1)
		sim.push(1)
	case OpcodeSelect:
		sim.pop(3)
		sim.push(1)
	}
}
