package exec

import (
	"encoding/binary"

	"github.com/pulseengine/wrt-go/internal/foundation"
	"github.com/pulseengine/wrt-go/internal/wasmruntime"
)

// PageSize is the fixed 64KiB WebAssembly linear-memory page size, per
// spec.md §3.3 "bounded sequence of 64 KiB pages."
const PageSize = 65536

// Memory is one linear memory: a bounded sequence of 64KiB pages drawn
// from L1, per spec.md §4.3. Every grow is charged through the owning
// instance's foundation.System against CrateRuntime; a grow that would
// breach the module's declared max or the crate budget returns -1 without
// side effects, matching memory.grow's documented failure mode.
type Memory struct {
	sys     *foundation.System
	buf     []byte
	maxPage uint32
	hasMax  bool
	guards  []*foundation.Guard
}

// NewMemory allocates a memory pre-grown to minPages, charged to
// CrateRuntime.
func NewMemory(sys *foundation.System, minPages, maxPages uint32, hasMax bool) (*Memory, error) {
	initial := uint64(minPages) * PageSize
	g, err := sys.SafeAllocate(initial, foundation.CrateRuntime)
	if err != nil {
		return nil, err
	}
	return &Memory{sys: sys, buf: make([]byte, initial), maxPage: maxPages, hasMax: hasMax, guards: []*foundation.Guard{g}}, nil
}

// Close releases every budget charge this memory holds, across its
// initial allocation and every subsequent Grow.
func (m *Memory) Close() {
	for _, g := range m.guards {
		g.Release()
	}
	m.guards = nil
}

// PageCount returns the current number of 64KiB pages.
func (m *Memory) PageCount() uint32 { return uint32(len(m.buf) / PageSize) }

// Grow extends the memory by delta pages and returns the previous page
// count, or -1 (with no side effects) if the module's declared max or the
// crate budget would be exceeded, per spec.md §4.3.
func (m *Memory) Grow(delta uint32) int32 {
	if delta == 0 {
		return int32(m.PageCount())
	}
	old := m.PageCount()
	if m.hasMax && uint64(old)+uint64(delta) > uint64(m.maxPage) {
		return -1
	}
	addBytes := uint64(delta) * PageSize
	g, err := m.sys.SafeAllocate(addBytes, foundation.CrateRuntime)
	if err != nil {
		return -1
	}
	m.buf = append(m.buf, make([]byte, addBytes)...)
	m.guards = append(m.guards, g)
	return int32(old)
}

func boundsCheck(m *Memory, offset uint32, size int) (int, error) {
	end := uint64(offset) + uint64(size)
	if end > uint64(len(m.buf)) {
		return 0, wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess
	}
	return int(offset), nil
}

func (m *Memory) LoadI32(offset uint32) (int32, error) {
	off, err := boundsCheck(m, offset, 4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(m.buf[off:])), nil
}

func (m *Memory) LoadI64(offset uint32) (int64, error) {
	off, err := boundsCheck(m, offset, 8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(m.buf[off:])), nil
}

func (m *Memory) StoreI32(offset uint32, v int32) error {
	off, err := boundsCheck(m, offset, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.buf[off:], uint32(v))
	return nil
}

func (m *Memory) StoreI64(offset uint32, v int64) error {
	off, err := boundsCheck(m, offset, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.buf[off:], uint64(v))
	return nil
}
