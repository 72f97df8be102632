//go:build linux || darwin

package platform

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// UnixPageAllocator is the general-purpose PageAllocator for unix hosts:
// anonymous, private mmap regions released with munmap, backing guest
// linear memory and table storage with zeroed, readable/writable pages.
type UnixPageAllocator struct{}

// NewPageAllocator returns the default PageAllocator for the current
// platform.
func NewPageAllocator() PageAllocator { return UnixPageAllocator{} }

func (UnixPageAllocator) Allocate(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	b, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("platform: mmap %d bytes: %w", n, err)
	}
	return b, nil
}

func (UnixPageAllocator) Free(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if err := unix.Munmap(b); err != nil {
		return fmt.Errorf("platform: munmap %d bytes: %w", len(b), err)
	}
	return nil
}
