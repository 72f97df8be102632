package exec

import (
	"github.com/pulseengine/wrt-go/api"
	"github.com/pulseengine/wrt-go/internal/foundation"
)

// SIMDProvider is the seam a platform-specific vector backend would
// implement to execute v128 instructions. No lane operations are
// implemented in this scope (SPEC_FULL.md lists SIMD lane arithmetic as
// out of scope); DisabledSIMD reports a clear
// CoreError instead of miscompiling or panicking on v128 opcodes.
type SIMDProvider interface {
	// Supported reports whether this provider can execute v128 opcodes at
	// all, independent of the module's own CoreFeatureSIMD gate.
	Supported() bool
}

// DisabledSIMD is the default SIMDProvider: every module compiled with
// CoreFeatureSIMD enabled but no real provider wired in fails fast at
// instantiation rather than at the first v128 instruction encountered.
type DisabledSIMD struct{}

func (DisabledSIMD) Supported() bool { return false }

// ErrSIMDUnsupported is returned when a module requires CoreFeatureSIMD
// but the configured SIMDProvider cannot execute vector instructions.
var ErrSIMDUnsupported = foundation.NewError(foundation.CategoryRuntime, "simd_unsupported",
	"module requires the simd proposal but no vector execution backend is configured")

// checkSIMDSupport is called once at instantiation time so a module
// requiring the simd proposal fails predictably instead of trapping
// partway through a function body on its first v128 opcode.
func checkSIMDSupport(features api.CoreFeatures, provider SIMDProvider) error {
	if !features.IsEnabled(api.CoreFeatureSIMD) {
		return nil
	}
	if provider != nil && provider.Supported() {
		return nil
	}
	return ErrSIMDUnsupported
}
