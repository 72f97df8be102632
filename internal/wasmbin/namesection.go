package wasmbin

import (
	"bytes"

	"github.com/pulseengine/wrt-go/internal/leb128"
)

const (
	nameSubsectionModule   = 0
	nameSubsectionFunction = 1
	nameSubsectionLocal    = 2
)

// decodeCustomSection dispatches a custom section by name: "name" is
// decoded structurally into m.NameSection so debuggers and traps can
// resolve symbolic names (spec.md §8's symbolicated-trap scenarios);
// every other custom section is preserved verbatim, byte for byte, so a
// decode-then-encode round trip reproduces it exactly.
func (st *decodeState) decodeCustomSection(r *bytes.Reader, offset uint64) error {
	name, err := decodeName(r)
	if err != nil {
		return wrapParseErr(offset, SectionIDCustom, "malformed custom section name", err)
	}
	remaining := make([]byte, r.Len())
	if _, err := r.Read(remaining); err != nil && len(remaining) > 0 {
		return wrapParseErr(offset, SectionIDCustom, "truncated custom section", err)
	}

	if name == "name" {
		ns, err := decodeNameSection(remaining)
		if err != nil {
			// A malformed name section is non-fatal: it is debug metadata,
			// not semantic module content, so it is dropped and preserved
			// as an opaque custom section instead.
			st.module.CustomSections = append(st.module.CustomSections, &CustomSection{Name: name, Data: remaining})
			return nil
		}
		st.module.NameSection = ns
		return nil
	}

	st.module.CustomSections = append(st.module.CustomSections, &CustomSection{Name: name, Data: remaining})
	return nil
}

// DecodeStandaloneNameSection decodes a "name" custom section's payload
// directly, per spec.md §4.2's optional parse_name_section(bytes) entry
// point, independent of a full module decode.
func DecodeStandaloneNameSection(data []byte) (*NameSection, error) {
	return decodeNameSection(data)
}

func decodeNameSection(data []byte) (*NameSection, error) {
	r := bytes.NewReader(data)
	ns := &NameSection{}
	for r.Len() > 0 {
		sub, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		size, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, err
		}
		payload := make([]byte, size)
		if _, err := r.Read(payload); err != nil && size > 0 {
			return nil, err
		}
		pr := bytes.NewReader(payload)
		switch sub {
		case nameSubsectionModule:
			name, err := decodeName(pr)
			if err != nil {
				return nil, err
			}
			ns.ModuleName = name
		case nameSubsectionFunction:
			m, err := decodeNameMap(pr)
			if err != nil {
				return nil, err
			}
			ns.FunctionNames = m
		case nameSubsectionLocal:
			n, _, err := leb128.DecodeUint32(pr)
			if err != nil {
				return nil, err
			}
			ns.LocalNames = make(map[Index]NameMap, n)
			for i := uint32(0); i < n; i++ {
				funcIdx, _, err := leb128.DecodeUint32(pr)
				if err != nil {
					return nil, err
				}
				m, err := decodeNameMap(pr)
				if err != nil {
					return nil, err
				}
				ns.LocalNames[funcIdx] = m
			}
		}
	}
	return ns, nil
}

func decodeNameMap(r *bytes.Reader) (NameMap, error) {
	n, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	out := make(NameMap, 0, n)
	for i := uint32(0); i < n; i++ {
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, err
		}
		name, err := decodeName(r)
		if err != nil {
			return nil, err
		}
		out = append(out, NameAssoc{Index: idx, Name: name})
	}
	return out, nil
}

// EncodeNameSection serializes ns back into a "name" custom section's
// payload bytes (excluding the section id and the "name" string itself,
// which the caller, typically an emitter building a full module, prepends).
func EncodeNameSection(ns *NameSection) []byte {
	var buf bytes.Buffer
	if ns.ModuleName != "" {
		writeNameSubsection(&buf, nameSubsectionModule, encodeName(ns.ModuleName))
	}
	if len(ns.FunctionNames) > 0 {
		writeNameSubsection(&buf, nameSubsectionFunction, encodeNameMap(ns.FunctionNames))
	}
	if len(ns.LocalNames) > 0 {
		var lb bytes.Buffer
		lb.Write(leb128.EncodeUint32(uint32(len(ns.LocalNames))))
		for idx, m := range ns.LocalNames {
			lb.Write(leb128.EncodeUint32(idx))
			lb.Write(encodeNameMap(m))
		}
		writeNameSubsection(&buf, nameSubsectionLocal, lb.Bytes())
	}
	return buf.Bytes()
}

func writeNameSubsection(buf *bytes.Buffer, id byte, payload []byte) {
	buf.WriteByte(id)
	buf.Write(leb128.EncodeUint32(uint32(len(payload))))
	buf.Write(payload)
}

func encodeName(s string) []byte {
	var buf bytes.Buffer
	buf.Write(leb128.EncodeUint32(uint32(len(s))))
	buf.WriteString(s)
	return buf.Bytes()
}

func encodeNameMap(m NameMap) []byte {
	var buf bytes.Buffer
	buf.Write(leb128.EncodeUint32(uint32(len(m))))
	for _, a := range m {
		buf.Write(leb128.EncodeUint32(a.Index))
		buf.Write(encodeName(a.Name))
	}
	return buf.Bytes()
}
