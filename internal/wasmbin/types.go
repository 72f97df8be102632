// Package wasmbin implements the Binary Layer (L2): a streaming decoder
// and validator for core WebAssembly modules and Component-Model
// components, producing a fully type-checked in-memory module graph built
// entirely from L1's bounded containers (spec.md §3.2, §4.2), decoded and
// re-encoded section by section in ascending section-id order.
package wasmbin

import (
	"github.com/pulseengine/wrt-go/api"
)

// closer matches the Close() method every foundation bounded container
// exposes, without importing foundation's generic types into this file's
// field declarations.
type closer interface {
	Close()
}

// Index is a position into one of a Module's index spaces.
type Index = uint32

// ValueType is re-exported from api for convenience within this package.
type ValueType = api.ValueType

// FuncType is a possibly-empty function signature, interned per module.
type FuncType struct {
	Params  []ValueType
	Results []ValueType

	key string
}

// Key returns (and memoizes) a canonical string key for this signature,
// e.g. "i32_v" for one i32 parameter and no result — used by the
// interpreter's indirect-call signature check.
func (f *FuncType) Key() string {
	if f.key != "" {
		return f.key
	}
	k := ""
	for _, p := range f.Params {
		k += api.ValueTypeName(p)
	}
	if len(f.Params) == 0 {
		k += "v_"
	} else {
		k += "_"
	}
	for _, r := range f.Results {
		k += api.ValueTypeName(r)
	}
	if len(f.Results) == 0 {
		k += "v"
	}
	f.key = k
	return k
}

// EqualsSignature reports whether f has exactly params/results.
func (f *FuncType) EqualsSignature(params, results []ValueType) bool {
	if len(f.Params) != len(params) || len(f.Results) != len(results) {
		return false
	}
	for i := range params {
		if f.Params[i] != params[i] {
			return false
		}
	}
	for i := range results {
		if f.Results[i] != results[i] {
			return false
		}
	}
	return true
}

// Limits describes a min/max pair shared by memory and table declarations.
type Limits struct {
	Min uint32
	Max uint32
	HasMax bool
}

// Memory describes one linear memory's declared limits, in 64KiB pages.
type Memory struct {
	Min, Max uint32
	HasMax   bool
}

// RefType distinguishes funcref from externref table element types.
type RefType byte

const (
	RefTypeFunc RefType = 0x70
	RefTypeExtern RefType = 0x6f
)

// Table describes one table's declared element type and limits.
type Table struct {
	ElemType RefType
	Limits   Limits
}

// GlobalType describes a global's value type and mutability.
type GlobalType struct {
	ValType ValueType
	Mutable bool
}

// ConstantExpression is a constant initializer: a single constant
// instruction (i32.const, i64.const, f32.const, f64.const, global.get,
// ref.null, ref.func) followed by `end`, per the WebAssembly spec.
// Extended-const arithmetic is not decoded: any other opcode in an
// initializer is rejected, whether or not CoreFeatureExtendedConst is
// enabled.
type ConstantExpression struct {
	Opcode Opcode
	Data   []byte
}

// Import is the binary representation of one import.
type Import struct {
	Type       api.ExternType
	Module     string
	Name       string
	DescFunc   Index
	DescTable  *Table
	DescMem    *Memory
	DescGlobal *GlobalType
}

// Export is the binary representation of one export.
type Export struct {
	Type  api.ExternType
	Name  string
	Index Index
}

// Global is a module-defined global: its type and constant initializer.
type Global struct {
	Type *GlobalType
	Init *ConstantExpression
}

// FunctionBody is the decoded locals and code bytes for one function,
// plus the validator's computed maximum operand-stack depth, per spec.md
// §3.2.
type FunctionBody struct {
	LocalTypes       []ValueType
	Body             []byte
	MaxStackHeight   int
	BodyOffset       uint64 // byte offset into the code section, for error reporting
}

// ElementSegment initializes a table range with function or reference
// indices, either actively (OffsetExpression set) or passively.
type ElementSegment struct {
	TableIndex       Index
	OffsetExpression *ConstantExpression
	Type             RefType
	Init             []Index
	Mode             ElementMode
}

// ElementMode distinguishes active, passive, and declarative segments.
type ElementMode byte

const (
	ElementModeActive ElementMode = iota
	ElementModePassive
	ElementModeDeclarative
)

// DataSegment initializes a memory range, either actively or passively.
type DataSegment struct {
	OffsetExpression *ConstantExpression
	Init             []byte
}

// IsPassive reports whether this is a passive (bulk-memory) data segment.
func (d *DataSegment) IsPassive() bool { return d.OffsetExpression == nil }

// NameAssoc pairs an index with a name.
type NameAssoc struct {
	Index Index
	Name  string
}

// NameMap is an index-ordered association of indices to names.
type NameMap []NameAssoc

// NameSection holds the decoded custom "name" subsections, round-trippable
// with the corresponding emitter (spec.md §8's name-section identity
// property).
type NameSection struct {
	ModuleName    string
	FunctionNames NameMap
	LocalNames    map[Index]NameMap
}

// CustomSection is a preserved, unrecognized custom section.
type CustomSection struct {
	Name string
	Data []byte
}

// Module is the fully decoded, validated in-memory module graph, per
// spec.md §3.2. It is created once by the decoder, immutable after
// validation, and dropped together with the foundation.Guard charges its
// bounded containers hold.
type Module struct {
	TypeSection   []*FuncType
	ImportSection []*Import
	FunctionSection []Index // index into TypeSection, one per module-defined function
	TableSection  []*Table
	MemorySection []*Memory
	GlobalSection []*Global
	ExportSection []*Export
	StartSection  *Index
	ElementSection []*ElementSegment
	CodeSection   []*FunctionBody
	DataSection   []*DataSegment
	DataCountSection *uint32

	NameSection    *NameSection
	CustomSections []*CustomSection

	// Component is non-nil only when this binary was decoded in
	// ComponentAware mode and the section ids indicated a component.
	Component *ComponentModule

	// charges holds the L1 budget charges taken while decoding this
	// module's sections; every section's element count is charged and
	// capacity-checked before a single element is appended, while Module
	// itself exposes plain slices for idiomatic traversal once decode
	// completes. Close releases every one of them together.
	charges []closer
}

// Close releases every budget charge this module's containers hold,
// including its Component sub-graph's if this binary was a component.
func (m *Module) Close() {
	for _, g := range m.charges {
		g.Close()
	}
	m.charges = nil
	if m.Component != nil {
		m.Component.Close()
	}
}

// AllFunctionsCount returns the number of functions in the function index
// space, imported functions first.
func (m *Module) AllFunctionsCount() int {
	imported := 0
	for _, imp := range m.ImportSection {
		if imp.Type == api.ExternTypeFunc {
			imported++
		}
	}
	return imported + len(m.FunctionSection)
}

// TypeOfFunction returns the FuncType for the given function-space index,
// or nil if out of range.
func (m *Module) TypeOfFunction(funcIdx Index) *FuncType {
	imported := Index(0)
	for _, imp := range m.ImportSection {
		if imp.Type == api.ExternTypeFunc {
			if funcIdx == imported {
				if int(imp.DescFunc) >= len(m.TypeSection) {
					return nil
				}
				return m.TypeSection[imp.DescFunc]
			}
			imported++
		}
	}
	idx := funcIdx - imported
	if int(idx) >= len(m.FunctionSection) {
		return nil
	}
	typeIdx := m.FunctionSection[idx]
	if int(typeIdx) >= len(m.TypeSection) {
		return nil
	}
	return m.TypeSection[typeIdx]
}
