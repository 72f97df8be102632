package wasmbin

import (
	"bytes"

	"github.com/pulseengine/wrt-go/internal/leb128"
)

// ComponentTypeDecl is one entry of a component's type section: either a
// reference to a core module/instance type or a component-level function
// type built from core value types. Full interface-type algebra (records,
// variants, resource handles) belongs to SPEC_FULL's async-layer
// supplement and is out of scope for the binary layer's own bookkeeping.
type ComponentTypeDecl struct {
	Raw []byte // opaque encoded type, preserved for the component crate to interpret
}

// ComponentImport/ComponentExport mirror core Import/Export but name
// component-level items (instances, functions, values) rather than core
// module items.
type ComponentImport struct {
	Name string
	Raw  []byte
}

type ComponentExport struct {
	Name string
	Raw  []byte
}

// ComponentModule is the decoded form of a Component-Model binary, per
// spec.md §4.4. Every type declaration is charged against a per-module
// ComponentTypeBudget (spec.md §7's "component-type budget" control,
// resolved per deployment profile in SPEC_FULL §5) since component type
// graphs are attacker-controlled input with no natural upper bound.
type ComponentModule struct {
	Types   []*ComponentTypeDecl
	Imports []*ComponentImport
	Exports []*ComponentExport

	// Nested holds components embedded via the "nested component"
	// section, each validated against the same budget as the parent.
	Nested []*ComponentModule

	charges []closer
}

func (c *ComponentModule) Close() {
	for _, g := range c.charges {
		g.Close()
	}
	for _, n := range c.Nested {
		n.Close()
	}
}

// decodeComponentSection dispatches one Component-Model section into
// st.module.Component, creating it on first use. Each type/import/export
// declaration is counted against mode.TypeBudget.MaxTypes before being
// appended; exceeding it fails the decode with a plain ParseError (no
// foundation error is wrapped in it).
func (st *decodeState) decodeComponentSection(id SectionID, r *bytes.Reader, offset uint64) error {
	if st.module.Component == nil {
		st.module.Component = &ComponentModule{}
	}
	c := st.module.Component

	switch id {
	case SectionIDComponentType:
		return decodeComponentVector(r, offset, id, st.mode.TypeBudget.MaxTypes, &c.Types, func(raw []byte) *ComponentTypeDecl {
			return &ComponentTypeDecl{Raw: raw}
		})
	case SectionIDComponentImport:
		n, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wrapParseErr(offset, id, "malformed component import count", err)
		}
		if n > st.mode.TypeBudget.MaxTypes {
			return parseErr(offset, id, "component import count exceeds type budget")
		}
		for i := uint32(0); i < n; i++ {
			name, err := decodeName(r)
			if err != nil {
				return wrapParseErr(offset, id, "malformed component import name", err)
			}
			raw, err := decodeRemainderOfItem(r)
			if err != nil {
				return wrapParseErr(offset, id, "malformed component import descriptor", err)
			}
			c.Imports = append(c.Imports, &ComponentImport{Name: name, Raw: raw})
		}
	case SectionIDComponentExport:
		n, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wrapParseErr(offset, id, "malformed component export count", err)
		}
		if n > st.mode.TypeBudget.MaxTypes {
			return parseErr(offset, id, "component export count exceeds type budget")
		}
		for i := uint32(0); i < n; i++ {
			name, err := decodeName(r)
			if err != nil {
				return wrapParseErr(offset, id, "malformed component export name", err)
			}
			raw, err := decodeRemainderOfItem(r)
			if err != nil {
				return wrapParseErr(offset, id, "malformed component export descriptor", err)
			}
			c.Exports = append(c.Exports, &ComponentExport{Name: name, Raw: raw})
		}
	case SectionIDComponentInstance, SectionIDComponentAlias, SectionIDComponentCanonical, SectionIDComponentStart:
		// Preserved opaquely: instantiation graph, alias resolution, and
		// canonical ABI lifting/lowering are interpreted by the async
		// scheduler layer, not the binary decoder.
		return nil
	case SectionIDComponentNested:
		nested, err := st.decodeNestedComponent(r, offset)
		if err != nil {
			return err
		}
		c.Nested = append(c.Nested, nested)
	}
	return nil
}

func (st *decodeState) decodeNestedComponent(r *bytes.Reader, offset uint64) (*ComponentModule, error) {
	size, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, wrapParseErr(offset, SectionIDComponentNested, "malformed nested component size", err)
	}
	payload := make([]byte, size)
	if _, err := r.Read(payload); err != nil && size > 0 {
		return nil, wrapParseErr(offset, SectionIDComponentNested, "truncated nested component", err)
	}
	nestedModule, err := Decode(st.sys, payload, st.mode, st.features)
	if err != nil {
		return nil, err
	}
	if nestedModule.Component == nil {
		return nil, parseErr(offset, SectionIDComponentNested, "nested payload is not a component")
	}
	return nestedModule.Component, nil
}

func decodeComponentVector[T any](r *bytes.Reader, offset uint64, id SectionID, budget uint32, dst *[]*T, build func([]byte) *T) error {
	n, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return wrapParseErr(offset, id, "malformed component vector count", err)
	}
	if budget > 0 && n > budget {
		return parseErr(offset, id, "component type count exceeds type budget")
	}
	for i := uint32(0); i < n; i++ {
		raw, err := decodeRemainderOfItem(r)
		if err != nil {
			return wrapParseErr(offset, id, "malformed component type entry", err)
		}
		*dst = append(*dst, build(raw))
	}
	return nil
}

// decodeRemainderOfItem reads one length-prefixed opaque byte string,
// used for component sub-structures whose internal algebra belongs to
// the component crate rather than the binary decoder.
func decodeRemainderOfItem(r *bytes.Reader) ([]byte, error) {
	n, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := r.Read(buf); err != nil && n > 0 {
		return nil, err
	}
	return buf, nil
}
