package exec

import "github.com/pulseengine/wrt-go/api"

// Global is a typed cell, mutable or const per its declaration, per
// spec.md §3.3. Values are stored as raw uint64 bit patterns, matching
// api.EncodeF32/EncodeF64's convention so a Global's Value is directly
// usable as an operand-stack word.
type Global struct {
	Type    api.ValueType
	Mutable bool
	Value   uint64
}
