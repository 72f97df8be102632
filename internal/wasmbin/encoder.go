package wasmbin

import (
	"bytes"

	"github.com/pulseengine/wrt-go/api"
	"github.com/pulseengine/wrt-go/internal/leb128"
)

// Encode serializes m back into the core WebAssembly binary format: one
// helper per section, each skipped entirely when its slice is empty, in
// the binary format's section order (ascending id, except that DataCount
// precedes Code and Data), matching spec.md §8's decode(encode(M))=M
// identity scenario.
func Encode(m *Module) []byte {
	var out bytes.Buffer
	out.Write(magic[:])
	out.Write([]byte{byte(version1), 0x00, 0x00, 0x00})

	writeSection(&out, SectionIDType, encodeTypeSection(m))
	writeSection(&out, SectionIDImport, encodeImportSection(m))
	writeSection(&out, SectionIDFunction, encodeFunctionSection(m))
	writeSection(&out, SectionIDTable, encodeTableSection(m))
	writeSection(&out, SectionIDMemory, encodeMemorySection(m))
	writeSection(&out, SectionIDGlobal, encodeGlobalSection(m))
	writeSection(&out, SectionIDExport, encodeExportSection(m))
	if m.StartSection != nil {
		writeSection(&out, SectionIDStart, leb128.EncodeUint32(*m.StartSection))
	}
	writeSection(&out, SectionIDElement, encodeElementSection(m))
	if m.DataCountSection != nil {
		writeSection(&out, SectionIDDataCount, leb128.EncodeUint32(*m.DataCountSection))
	}
	writeSection(&out, SectionIDCode, encodeCodeSection(m))
	writeSection(&out, SectionIDData, encodeDataSection(m))

	if m.NameSection != nil {
		var nb bytes.Buffer
		nb.Write(encodeName("name"))
		nb.Write(EncodeNameSection(m.NameSection))
		writeSection(&out, SectionIDCustom, nb.Bytes())
	}
	for _, cs := range m.CustomSections {
		var cb bytes.Buffer
		cb.Write(encodeName(cs.Name))
		cb.Write(cs.Data)
		writeSection(&out, SectionIDCustom, cb.Bytes())
	}
	return out.Bytes()
}

func writeSection(out *bytes.Buffer, id SectionID, payload []byte) {
	if len(payload) == 0 {
		return
	}
	out.WriteByte(id)
	out.Write(leb128.EncodeUint32(uint32(len(payload))))
	out.Write(payload)
}

func encodeVector(count int, each func(i int) []byte) []byte {
	if count == 0 {
		return nil
	}
	var buf bytes.Buffer
	buf.Write(leb128.EncodeUint32(uint32(count)))
	for i := 0; i < count; i++ {
		buf.Write(each(i))
	}
	return buf.Bytes()
}

func encodeTypeSection(m *Module) []byte {
	return encodeVector(len(m.TypeSection), func(i int) []byte {
		t := m.TypeSection[i]
		var buf bytes.Buffer
		buf.WriteByte(0x60)
		buf.Write(leb128.EncodeUint32(uint32(len(t.Params))))
		buf.Write(t.Params)
		buf.Write(leb128.EncodeUint32(uint32(len(t.Results))))
		buf.Write(t.Results)
		return buf.Bytes()
	})
}

func encodeLimits(l Limits) []byte {
	var buf bytes.Buffer
	if l.HasMax {
		buf.WriteByte(1)
		buf.Write(leb128.EncodeUint32(l.Min))
		buf.Write(leb128.EncodeUint32(l.Max))
	} else {
		buf.WriteByte(0)
		buf.Write(leb128.EncodeUint32(l.Min))
	}
	return buf.Bytes()
}

func encodeImportSection(m *Module) []byte {
	return encodeVector(len(m.ImportSection), func(i int) []byte {
		imp := m.ImportSection[i]
		var buf bytes.Buffer
		buf.Write(encodeName(imp.Module))
		buf.Write(encodeName(imp.Name))
		buf.WriteByte(imp.Type)
		switch imp.Type {
		case api.ExternTypeFunc:
			buf.Write(leb128.EncodeUint32(imp.DescFunc))
		case api.ExternTypeTable:
			buf.WriteByte(byte(imp.DescTable.ElemType))
			buf.Write(encodeLimits(imp.DescTable.Limits))
		case api.ExternTypeMemory:
			buf.Write(encodeLimits(Limits{Min: imp.DescMem.Min, Max: imp.DescMem.Max, HasMax: imp.DescMem.HasMax}))
		case api.ExternTypeGlobal:
			buf.WriteByte(imp.DescGlobal.ValType)
			if imp.DescGlobal.Mutable {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		}
		return buf.Bytes()
	})
}

func encodeFunctionSection(m *Module) []byte {
	return encodeVector(len(m.FunctionSection), func(i int) []byte {
		return leb128.EncodeUint32(m.FunctionSection[i])
	})
}

func encodeTableSection(m *Module) []byte {
	return encodeVector(len(m.TableSection), func(i int) []byte {
		t := m.TableSection[i]
		var buf bytes.Buffer
		buf.WriteByte(byte(t.ElemType))
		buf.Write(encodeLimits(t.Limits))
		return buf.Bytes()
	})
}

func encodeMemorySection(m *Module) []byte {
	return encodeVector(len(m.MemorySection), func(i int) []byte {
		mem := m.MemorySection[i]
		return encodeLimits(Limits{Min: mem.Min, Max: mem.Max, HasMax: mem.HasMax})
	})
}

func encodeConstExpr(c *ConstantExpression) []byte {
	var buf bytes.Buffer
	buf.WriteByte(c.Opcode)
	buf.Write(c.Data)
	buf.WriteByte(OpcodeEnd)
	return buf.Bytes()
}

func encodeGlobalSection(m *Module) []byte {
	return encodeVector(len(m.GlobalSection), func(i int) []byte {
		g := m.GlobalSection[i]
		var buf bytes.Buffer
		buf.WriteByte(g.Type.ValType)
		if g.Type.Mutable {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		buf.Write(encodeConstExpr(g.Init))
		return buf.Bytes()
	})
}

func encodeExportSection(m *Module) []byte {
	return encodeVector(len(m.ExportSection), func(i int) []byte {
		e := m.ExportSection[i]
		var buf bytes.Buffer
		buf.Write(encodeName(e.Name))
		buf.WriteByte(e.Type)
		buf.Write(leb128.EncodeUint32(e.Index))
		return buf.Bytes()
	})
}

func encodeElementSection(m *Module) []byte {
	return encodeVector(len(m.ElementSection), func(i int) []byte {
		seg := m.ElementSection[i]
		var buf bytes.Buffer
		switch {
		case seg.Mode == ElementModeDeclarative:
			buf.Write(leb128.EncodeUint32(3))
		case seg.Mode == ElementModePassive:
			buf.Write(leb128.EncodeUint32(1))
		default:
			if seg.TableIndex == 0 {
				buf.Write(leb128.EncodeUint32(0))
			} else {
				buf.Write(leb128.EncodeUint32(2))
				buf.Write(leb128.EncodeUint32(seg.TableIndex))
			}
			buf.Write(encodeConstExpr(seg.OffsetExpression))
		}
		buf.Write(leb128.EncodeUint32(uint32(len(seg.Init))))
		for _, idx := range seg.Init {
			buf.Write(leb128.EncodeUint32(idx))
		}
		return buf.Bytes()
	})
}

func encodeCodeSection(m *Module) []byte {
	return encodeVector(len(m.CodeSection), func(i int) []byte {
		body := m.CodeSection[i]
		var lb bytes.Buffer
		groups := groupLocals(body.LocalTypes)
		lb.Write(leb128.EncodeUint32(uint32(len(groups))))
		for _, grp := range groups {
			lb.Write(leb128.EncodeUint32(grp.count))
			lb.WriteByte(grp.valType)
		}
		lb.Write(body.Body)

		var buf bytes.Buffer
		buf.Write(leb128.EncodeUint32(uint32(lb.Len())))
		buf.Write(lb.Bytes())
		return buf.Bytes()
	})
}

type localGroup struct {
	count   uint32
	valType ValueType
}

func groupLocals(locals []ValueType) []localGroup {
	var groups []localGroup
	for _, vt := range locals {
		if len(groups) > 0 && groups[len(groups)-1].valType == vt {
			groups[len(groups)-1].count++
		} else {
			groups = append(groups, localGroup{count: 1, valType: vt})
		}
	}
	return groups
}

func encodeDataSection(m *Module) []byte {
	return encodeVector(len(m.DataSection), func(i int) []byte {
		seg := m.DataSection[i]
		var buf bytes.Buffer
		if seg.IsPassive() {
			buf.Write(leb128.EncodeUint32(1))
		} else {
			buf.Write(leb128.EncodeUint32(0))
			buf.Write(encodeConstExpr(seg.OffsetExpression))
		}
		buf.Write(leb128.EncodeUint32(uint32(len(seg.Init))))
		buf.Write(seg.Init)
		return buf.Bytes()
	})
}
