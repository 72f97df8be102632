//go:build !linux && !darwin

package platform

// HeapPageAllocator is the fallback PageAllocator for hosts without a
// unix mmap (e.g. Windows, wasm/js): ordinary Go-heap byte slices. It
// gives up the "never move, fixed address" property mmap provides, which
// this runtime does not otherwise rely on — memories already never
// reallocate past Grow's bounds check, so a heap-backed slice is
// observationally equivalent to an mmap'd one here.
type HeapPageAllocator struct{}

// NewPageAllocator returns the default PageAllocator for the current
// platform.
func NewPageAllocator() PageAllocator { return HeapPageAllocator{} }

func (HeapPageAllocator) Allocate(n int) ([]byte, error) {
	return make([]byte, n), nil
}

func (HeapPageAllocator) Free([]byte) error { return nil }
