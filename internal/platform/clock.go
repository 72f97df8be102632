package platform

import "time"

// SystemClock is the default Clock: Go's own monotonic time source.
// time.Now's returned Time carries a monotonic reading on every
// platform Go supports, so subtracting two SystemClock.Now results is
// immune to wall-clock adjustment, matching spec.md §4.4's requirement
// that a task's wait deadline cannot be fooled by the system clock being
// stepped backward or forward.
type SystemClock struct{ epoch time.Time }

// NewClock returns the default Clock for the current platform.
func NewClock() Clock { return SystemClock{epoch: time.Now()} }

func (c SystemClock) Now() int64 { return int64(time.Since(c.epoch)) }
