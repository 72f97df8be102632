//go:build linux

package platform

import (
	"context"
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

// LinuxFutex wraps the kernel futex(2) syscall's FUTEX_WAIT/FUTEX_WAKE
// pair, the same primitive Go's own runtime uses internally to park and
// wake goroutines, reused here at the application level so the
// scheduler can block a task.wait without spinning fuel away in a
// polling loop.
type LinuxFutex struct{}

// NewFutex returns the default Futex for the current platform.
func NewFutex() Futex { return LinuxFutex{} }

func (LinuxFutex) Wait(ctx context.Context, addr *uint32, expected uint32) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, _, errno := unix.Syscall6(
			unix.SYS_FUTEX,
			uintptr(unsafe.Pointer(addr)),
			uintptr(unix.FUTEX_WAIT),
			uintptr(expected),
			0, 0, 0,
		)
		switch errno {
		case 0, unix.EAGAIN:
			return nil
		case unix.EINTR:
			continue
		default:
			return errors.New("platform: futex wait: " + errno.Error())
		}
	}
}

func (LinuxFutex) Wake(addr *uint32) {
	unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(unix.FUTEX_WAKE),
		uintptr(1<<30), // wake every waiter
		0, 0, 0,
	)
}
