package wasmbin

import (
	"bytes"
	"fmt"

	"github.com/pulseengine/wrt-go/api"
	"github.com/pulseengine/wrt-go/internal/foundation"
	"github.com/pulseengine/wrt-go/internal/leb128"
)

var magic = [4]byte{0x00, 0x61, 0x73, 0x6d} // "\0asm"

const version1 = uint32(1)

// DecodeMode selects whether the decoder recognizes only core sections or
// also Component-Model ones, per spec.md §4.2.
type DecodeMode struct {
	ComponentAware bool
	TypeBudget     foundation.ComponentTypeBudget
}

// CoreOnly is the default decode mode.
var CoreOnly = DecodeMode{}

// ComponentAwareMode builds a DecodeMode that additionally recognizes
// Component-Model section ids, bounded by budget.
func ComponentAwareMode(budget foundation.ComponentTypeBudget) DecodeMode {
	return DecodeMode{ComponentAware: true, TypeBudget: budget}
}

// decodeState threads the decode crate's capability system and the
// Module being built through every section decoder.
type decodeState struct {
	sys      *foundation.System
	features api.CoreFeatures
	mode     DecodeMode
	module   *Module
}

// Decode transforms bytes into a fully validated Module, per spec.md
// §4.2's public contract `decode(bytes, mode) -> Result<Module>`. Every
// bounded container constructed during decode is charged to
// foundation.CrateFormat.
func Decode(sys *foundation.System, bytes_ []byte, mode DecodeMode, features api.CoreFeatures) (*Module, error) {
	r := bytes.NewReader(bytes_)

	var hdr [8]byte
	if n, err := r.Read(hdr[:]); err != nil || n != 8 {
		return nil, parseErr(0, 0, "truncated header")
	}
	if !bytes.Equal(hdr[0:4], magic[:]) {
		return nil, parseErr(0, 0, "invalid magic number")
	}
	gotVersion := uint32(hdr[4]) | uint32(hdr[5])<<8 | uint32(hdr[6])<<16 | uint32(hdr[7])<<24
	if gotVersion != version1 {
		return nil, parseErr(4, 0, fmt.Sprintf("unsupported version %d", gotVersion))
	}

	st := &decodeState{sys: sys, features: features, mode: mode, module: &Module{}}

	lastOrder := -1
	offset := uint64(8)
	for {
		idByte, err := r.ReadByte()
		if err != nil {
			break // EOF: clean end of stream.
		}
		offset++
		id := SectionID(idByte)

		size, n, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, wrapParseErr(offset, id, "malformed section size", err)
		}
		offset += n

		if uint64(size) > uint64(r.Len()) {
			return nil, parseErr(offset, id, "section size exceeds remaining input")
		}

		payload := make([]byte, size)
		if _, err := r.Read(payload); err != nil && size > 0 {
			return nil, wrapParseErr(offset, id, "truncated section payload", err)
		}

		if id != SectionIDCustom {
			orderIdx, known := sectionOrderIndex(id)
			if known {
				if orderIdx <= lastOrder {
					return nil, parseErr(offset, id, "out-of-order section")
				}
				lastOrder = orderIdx
			} else if !(mode.ComponentAware && isComponentSectionID(id)) {
				return nil, parseErr(offset, id, "unknown section id")
			}
		}

		if err := st.decodeSection(id, payload, offset); err != nil {
			return nil, err
		}
		offset += uint64(size)
	}

	if err := validate(st.module, features); err != nil {
		st.module.Close()
		return nil, err
	}
	return st.module, nil
}

func isComponentSectionID(id SectionID) bool {
	return id >= SectionIDComponentType && id <= SectionIDComponentNested
}

func (st *decodeState) decodeSection(id SectionID, payload []byte, offset uint64) error {
	r := bytes.NewReader(payload)
	m := st.module
	switch id {
	case SectionIDCustom:
		return st.decodeCustomSection(r, offset)
	case SectionIDType:
		types, err := decodeVector(st, r, offset, id, decodeFuncType)
		if err != nil {
			return err
		}
		m.TypeSection = types
	case SectionIDImport:
		imports, err := decodeVector(st, r, offset, id, decodeImport)
		if err != nil {
			return err
		}
		m.ImportSection = imports
	case SectionIDFunction:
		idxs, err := decodeVector(st, r, offset, id, decodeIndex)
		if err != nil {
			return err
		}
		m.FunctionSection = idxs
	case SectionIDTable:
		tables, err := decodeVector(st, r, offset, id, decodeTable)
		if err != nil {
			return err
		}
		m.TableSection = tables
	case SectionIDMemory:
		mems, err := decodeVector(st, r, offset, id, decodeMemory)
		if err != nil {
			return err
		}
		m.MemorySection = mems
	case SectionIDGlobal:
		globals, err := decodeVector(st, r, offset, id, decodeGlobal)
		if err != nil {
			return err
		}
		m.GlobalSection = globals
	case SectionIDExport:
		exports, err := decodeVector(st, r, offset, id, decodeExport)
		if err != nil {
			return err
		}
		m.ExportSection = exports
	case SectionIDStart:
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wrapParseErr(offset, id, "malformed start index", err)
		}
		m.StartSection = &idx
	case SectionIDElement:
		elems, err := decodeVector(st, r, offset, id, decodeElementSegment)
		if err != nil {
			return err
		}
		m.ElementSection = elems
	case SectionIDCode:
		bodies, err := decodeVector(st, r, offset, id, decodeFunctionBody)
		if err != nil {
			return err
		}
		m.CodeSection = bodies
	case SectionIDData:
		data, err := decodeVector(st, r, offset, id, decodeDataSegment)
		if err != nil {
			return err
		}
		m.DataSection = data
	case SectionIDDataCount:
		n, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wrapParseErr(offset, id, "malformed data count", err)
		}
		m.DataCountSection = &n
	default:
		if st.mode.ComponentAware && isComponentSectionID(id) {
			return st.decodeComponentSection(id, r, offset)
		}
		return parseErr(offset, id, "unsupported section")
	}
	return nil
}

// guardCloser adapts a foundation.Guard's Release method to the closer
// interface Module.charges and ComponentModule.charges expect.
type guardCloser struct{ g *foundation.Guard }

func (c guardCloser) Close() { c.g.Release() }

// bytesPerVectorElement is a flat per-entry bookkeeping charge levied
// against CrateFormat for every decoded vector, standing in for the
// element's exact in-memory size (which a generic decodeVector cannot
// compute without reflection): it bounds a hostile element count to the
// Format crate's budget before a single element is appended, so an
// oversized count fails as BudgetExceededError rather than driving an
// unbounded []T grow.
const bytesPerVectorElement = 32

// decodeVector reads a canonical LEB128 count followed by that many
// elements, per spec.md §4.2 step 3. The count is charged against the
// decode crate's budget before any element is appended, so a malicious or
// truncated count fails fast rather than driving an unbounded allocation;
// the charge's Guard is kept on the owning Module until Close.
func decodeVector[T any](st *decodeState, r *bytes.Reader, offset uint64, id SectionID, decodeOne func(*bytes.Reader, uint64) (T, error)) ([]T, error) {
	count, n, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, wrapParseErr(offset, id, "malformed vector count", err)
	}
	offset += n

	g, err := st.sys.SafeAllocate(uint64(count)*bytesPerVectorElement, foundation.CrateFormat)
	if err != nil {
		return nil, wrapParseErr(offset, id, "vector count exceeds decode budget", err)
	}
	st.module.charges = append(st.module.charges, guardCloser{g})

	out := make([]T, 0, count)
	for i := uint32(0); i < count; i++ {
		v, err := decodeOne(r, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeIndex(r *bytes.Reader, offset uint64) (Index, error) {
	v, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return 0, wrapParseErr(offset, SectionIDFunction, "malformed index", err)
	}
	return v, nil
}

func decodeValueType(r *bytes.Reader) (ValueType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch b {
	case api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF32, api.ValueTypeF64, api.ValueTypeExternref, byte(RefTypeFunc):
		return b, nil
	default:
		return 0, fmt.Errorf("invalid value type byte %#x", b)
	}
}

func decodeFuncType(r *bytes.Reader, offset uint64) (*FuncType, error) {
	form, err := r.ReadByte()
	if err != nil || form != 0x60 {
		return nil, parseErr(offset, SectionIDType, "expected func type form 0x60")
	}
	paramCount, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, wrapParseErr(offset, SectionIDType, "malformed param count", err)
	}
	params := make([]ValueType, paramCount)
	for i := range params {
		vt, err := decodeValueType(r)
		if err != nil {
			return nil, wrapParseErr(offset, SectionIDType, "malformed param type", err)
		}
		params[i] = vt
	}
	resultCount, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, wrapParseErr(offset, SectionIDType, "malformed result count", err)
	}
	results := make([]ValueType, resultCount)
	for i := range results {
		vt, err := decodeValueType(r)
		if err != nil {
			return nil, wrapParseErr(offset, SectionIDType, "malformed result type", err)
		}
		results[i] = vt
	}
	return &FuncType{Params: params, Results: results}, nil
}

func decodeLimits(r *bytes.Reader) (Limits, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	min, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return Limits{}, err
	}
	lim := Limits{Min: min}
	if flag == 1 {
		max, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return Limits{}, err
		}
		lim.Max, lim.HasMax = max, true
	}
	return lim, nil
}

func decodeTable(r *bytes.Reader, offset uint64) (*Table, error) {
	elemByte, err := r.ReadByte()
	if err != nil {
		return nil, wrapParseErr(offset, SectionIDTable, "malformed elem type", err)
	}
	if elemByte != byte(RefTypeFunc) && elemByte != byte(RefTypeExtern) {
		return nil, parseErr(offset, SectionIDTable, "invalid table element type")
	}
	lim, err := decodeLimits(r)
	if err != nil {
		return nil, wrapParseErr(offset, SectionIDTable, "malformed table limits", err)
	}
	return &Table{ElemType: RefType(elemByte), Limits: lim}, nil
}

func decodeMemory(r *bytes.Reader, offset uint64) (*Memory, error) {
	lim, err := decodeLimits(r)
	if err != nil {
		return nil, wrapParseErr(offset, SectionIDMemory, "malformed memory limits", err)
	}
	return &Memory{Min: lim.Min, Max: lim.Max, HasMax: lim.HasMax}, nil
}

func decodeImport(r *bytes.Reader, offset uint64) (*Import, error) {
	mod, err := decodeName(r)
	if err != nil {
		return nil, wrapParseErr(offset, SectionIDImport, "malformed import module name", err)
	}
	name, err := decodeName(r)
	if err != nil {
		return nil, wrapParseErr(offset, SectionIDImport, "malformed import name", err)
	}
	kind, err := r.ReadByte()
	if err != nil {
		return nil, wrapParseErr(offset, SectionIDImport, "malformed import kind", err)
	}
	imp := &Import{Type: kind, Module: mod, Name: name}
	switch kind {
	case api.ExternTypeFunc:
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, wrapParseErr(offset, SectionIDImport, "malformed import func type index", err)
		}
		imp.DescFunc = idx
	case api.ExternTypeTable:
		t, err := decodeTable(r, offset)
		if err != nil {
			return nil, err
		}
		imp.DescTable = t
	case api.ExternTypeMemory:
		mem, err := decodeMemory(r, offset)
		if err != nil {
			return nil, err
		}
		imp.DescMem = mem
	case api.ExternTypeGlobal:
		gt, err := decodeGlobalType(r)
		if err != nil {
			return nil, wrapParseErr(offset, SectionIDImport, "malformed import global type", err)
		}
		imp.DescGlobal = gt
	default:
		return nil, parseErr(offset, SectionIDImport, "invalid import kind")
	}
	return imp, nil
}

func decodeGlobalType(r *bytes.Reader) (*GlobalType, error) {
	vt, err := decodeValueType(r)
	if err != nil {
		return nil, err
	}
	m, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	return &GlobalType{ValType: vt, Mutable: m == 1}, nil
}

func decodeConstExpr(r *bytes.Reader) (*ConstantExpression, error) {
	op, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	var data []byte
	switch op {
	case OpcodeI32Const, OpcodeI64Const:
		v, n, err := leb128.DecodeInt64(r)
		if err != nil {
			return nil, err
		}
		data = leb128.EncodeInt64(v)
		_ = n
	case OpcodeF32Const:
		var b [4]byte
		if _, err := r.Read(b[:]); err != nil {
			return nil, err
		}
		data = b[:]
	case OpcodeF64Const:
		var b [8]byte
		if _, err := r.Read(b[:]); err != nil {
			return nil, err
		}
		data = b[:]
	case OpcodeGlobalGet:
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, err
		}
		data = leb128.EncodeUint32(idx)
	case OpcodeRefNull:
		rt, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		data = []byte{rt}
	case OpcodeRefFunc:
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, err
		}
		data = leb128.EncodeUint32(idx)
	default:
		return nil, fmt.Errorf("non-constant initializer opcode %#x", op)
	}
	end, err := r.ReadByte()
	if err != nil || end != OpcodeEnd {
		return nil, fmt.Errorf("constant expression missing end opcode")
	}
	return &ConstantExpression{Opcode: op, Data: data}, nil
}

func decodeGlobal(r *bytes.Reader, offset uint64) (*Global, error) {
	gt, err := decodeGlobalType(r)
	if err != nil {
		return nil, wrapParseErr(offset, SectionIDGlobal, "malformed global type", err)
	}
	init, err := decodeConstExpr(r)
	if err != nil {
		return nil, wrapParseErr(offset, SectionIDGlobal, "malformed global initializer", err)
	}
	return &Global{Type: gt, Init: init}, nil
}

func decodeExport(r *bytes.Reader, offset uint64) (*Export, error) {
	name, err := decodeName(r)
	if err != nil {
		return nil, wrapParseErr(offset, SectionIDExport, "malformed export name", err)
	}
	kind, err := r.ReadByte()
	if err != nil {
		return nil, wrapParseErr(offset, SectionIDExport, "malformed export kind", err)
	}
	idx, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, wrapParseErr(offset, SectionIDExport, "malformed export index", err)
	}
	return &Export{Type: kind, Name: name, Index: idx}, nil
}

func decodeElementSegment(r *bytes.Reader, offset uint64) (*ElementSegment, error) {
	flag, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, wrapParseErr(offset, SectionIDElement, "malformed element flag", err)
	}
	seg := &ElementSegment{Type: RefTypeFunc}
	active := flag&1 == 0
	if active {
		if flag&2 != 0 {
			tidx, _, err := leb128.DecodeUint32(r)
			if err != nil {
				return nil, err
			}
			seg.TableIndex = tidx
		}
		off, err := decodeConstExpr(r)
		if err != nil {
			return nil, wrapParseErr(offset, SectionIDElement, "malformed element offset", err)
		}
		seg.OffsetExpression = off
	} else if flag&2 != 0 {
		seg.Mode = ElementModeDeclarative
	} else {
		seg.Mode = ElementModePassive
	}

	if flag&4 == 0 {
		n, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < n; i++ {
			idx, _, err := leb128.DecodeUint32(r)
			if err != nil {
				return nil, err
			}
			seg.Init = append(seg.Init, idx)
		}
	}
	return seg, nil
}

func decodeFunctionBody(r *bytes.Reader, offset uint64) (*FunctionBody, error) {
	size, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, wrapParseErr(offset, SectionIDCode, "malformed body size", err)
	}
	bodyBytes := make([]byte, size)
	if _, err := r.Read(bodyBytes); err != nil && size > 0 {
		return nil, wrapParseErr(offset, SectionIDCode, "truncated function body", err)
	}
	br := bytes.NewReader(bodyBytes)

	localGroupCount, _, err := leb128.DecodeUint32(br)
	if err != nil {
		return nil, wrapParseErr(offset, SectionIDCode, "malformed local group count", err)
	}
	var locals []ValueType
	for i := uint32(0); i < localGroupCount; i++ {
		n, _, err := leb128.DecodeUint32(br)
		if err != nil {
			return nil, err
		}
		vt, err := decodeValueType(br)
		if err != nil {
			return nil, err
		}
		for j := uint32(0); j < n; j++ {
			locals = append(locals, vt)
		}
	}
	code := bodyBytes[len(bodyBytes)-br.Len():]
	return &FunctionBody{LocalTypes: locals, Body: code, BodyOffset: offset}, nil
}

func decodeDataSegment(r *bytes.Reader, offset uint64) (*DataSegment, error) {
	flag, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, wrapParseErr(offset, SectionIDData, "malformed data flag", err)
	}
	seg := &DataSegment{}
	if flag == 0 || flag == 2 {
		if flag == 2 {
			if _, _, err := leb128.DecodeUint32(r); err != nil { // memory index, must be 0 without multi-memory
				return nil, err
			}
		}
		off, err := decodeConstExpr(r)
		if err != nil {
			return nil, wrapParseErr(offset, SectionIDData, "malformed data offset", err)
		}
		seg.OffsetExpression = off
	}
	n, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	init := make([]byte, n)
	if _, err := r.Read(init); err != nil && n > 0 {
		return nil, err
	}
	seg.Init = init
	return seg, nil
}

func decodeName(r *bytes.Reader) (string, error) {
	n, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := r.Read(buf); err != nil && n > 0 {
		return "", err
	}
	return string(buf), nil
}
