package exec

import (
	"github.com/pulseengine/wrt-go/internal/foundation"
	"github.com/pulseengine/wrt-go/internal/wasmbin"
	"github.com/pulseengine/wrt-go/internal/wasmruntime"
)

// nullRef is the table-slot sentinel for a null funcref/externref.
const nullRef int64 = -1

// Table is an indexed typed-reference vector, per spec.md §3.3. Elements
// are stored as a function index (funcref) or an opaque pointer-sized
// value (externref); nullRef marks an unset slot. Growth obeys the same
// budget-backed failure model as Memory.Grow.
type Table struct {
	sys     *foundation.System
	elemTy  wasmbin.RefType
	elems   []int64
	maxLen  uint32
	hasMax  bool
	guards  []*foundation.Guard
}

// NewTable allocates a table pre-grown to minLen null elements, charged to
// CrateRuntime.
func NewTable(sys *foundation.System, elemTy wasmbin.RefType, minLen, maxLen uint32, hasMax bool) (*Table, error) {
	const elemSize = 8
	g, err := sys.SafeAllocate(uint64(minLen)*elemSize, foundation.CrateRuntime)
	if err != nil {
		return nil, err
	}
	elems := make([]int64, minLen)
	for i := range elems {
		elems[i] = nullRef
	}
	return &Table{sys: sys, elemTy: elemTy, elems: elems, maxLen: maxLen, hasMax: hasMax, guards: []*foundation.Guard{g}}, nil
}

// Close releases every budget charge this table holds.
func (t *Table) Close() {
	for _, g := range t.guards {
		g.Release()
	}
	t.guards = nil
}

// Len returns the table's current element count.
func (t *Table) Len() uint32 { return uint32(len(t.elems)) }

// Grow extends the table by delta elements initialized to init, returning
// the previous length, or -1 without side effects if the declared max or
// crate budget would be exceeded.
func (t *Table) Grow(delta uint32, init int64) int32 {
	old := t.Len()
	if delta == 0 {
		return int32(old)
	}
	if t.hasMax && uint64(old)+uint64(delta) > uint64(t.maxLen) {
		return -1
	}
	const elemSize = 8
	g, err := t.sys.SafeAllocate(uint64(delta)*elemSize, foundation.CrateRuntime)
	if err != nil {
		return -1
	}
	for i := uint32(0); i < delta; i++ {
		t.elems = append(t.elems, init)
	}
	t.guards = append(t.guards, g)
	return int32(old)
}

// Get returns the reference stored at i, or a trap if out of bounds.
func (t *Table) Get(i uint32) (int64, error) {
	if i >= t.Len() {
		return 0, wasmruntime.ErrRuntimeOutOfBoundsTableAccess
	}
	return t.elems[i], nil
}

// Set overwrites the reference stored at i.
func (t *Table) Set(i uint32, v int64) error {
	if i >= t.Len() {
		return wasmruntime.ErrRuntimeOutOfBoundsTableAccess
	}
	t.elems[i] = v
	return nil
}

// Fill sets count entries starting at offset to v, trapping on overflow
// without mutating state, matching memory.fill's failure symmetry
// (spec.md §4.3 "table.grow, table.fill, table.copy, table.init behave
// symmetrically to memory ops").
func (t *Table) Fill(offset, count uint32, v int64) error {
	if uint64(offset)+uint64(count) > uint64(t.Len()) {
		return wasmruntime.ErrRuntimeOutOfBoundsTableAccess
	}
	for i := uint32(0); i < count; i++ {
		t.elems[offset+i] = v
	}
	return nil
}

// Copy copies count entries from src[srcOffset:] to t[dstOffset:],
// trapping on overflow without mutating state.
func (t *Table) Copy(src *Table, dstOffset, srcOffset, count uint32) error {
	if uint64(dstOffset)+uint64(count) > uint64(t.Len()) || uint64(srcOffset)+uint64(count) > uint64(src.Len()) {
		return wasmruntime.ErrRuntimeOutOfBoundsTableAccess
	}
	copy(t.elems[dstOffset:dstOffset+count], src.elems[srcOffset:srcOffset+count])
	return nil
}
