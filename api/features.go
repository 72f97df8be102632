package api

import (
	"fmt"
	"sort"
	"strings"
)

// CoreFeatures is a bit flag of WebAssembly core spec proposals implemented
// by the runtime. Flag values never start at zero so that the zero value of
// CoreFeatures is always "no features enabled," never an accidental
// feature.
//
// See spec.md §6 "Binary format consumed" for the proposal list this type
// must be able to express.
type CoreFeatures uint64

const (
	// CoreFeatureMutableGlobal allows globals to be mutable, required by
	// WebAssembly 1.0 (20191205).
	CoreFeatureMutableGlobal CoreFeatures = 1 << iota
	// CoreFeatureSignExtensionOps adds sign-extension instructions.
	CoreFeatureSignExtensionOps
	// CoreFeatureMultiValue allows function types and blocks to have more
	// than one result.
	CoreFeatureMultiValue
	// CoreFeatureNonTrappingFloatToIntConversion adds saturating
	// float-to-int conversions instead of trapping ones.
	CoreFeatureNonTrappingFloatToIntConversion
	// CoreFeatureBulkMemoryOperations adds memory.copy, memory.fill,
	// table.copy and friends.
	CoreFeatureBulkMemoryOperations
	// CoreFeatureReferenceTypes adds externref and funcref as value types.
	CoreFeatureReferenceTypes
	// CoreFeatureSIMD adds the v128 type and vector instructions; lane
	// arithmetic itself is delegated to a SIMDProvider façade per
	// spec.md §1.
	CoreFeatureSIMD
	// CoreFeatureMultiMemory allows more than one memory per module.
	CoreFeatureMultiMemory
	// CoreFeatureTailCall adds return_call and return_call_indirect.
	CoreFeatureTailCall
	// CoreFeatureExceptionHandling adds try/catch/throw instructions.
	CoreFeatureExceptionHandling
	// CoreFeatureFunctionReferences adds typed function references.
	CoreFeatureFunctionReferences
	// CoreFeatureGC adds struct/array heap types.
	CoreFeatureGC
	// CoreFeatureRelaxedSIMD adds platform-defined-precision vector ops.
	CoreFeatureRelaxedSIMD
	// CoreFeatureExtendedConst allows arithmetic in constant expressions.
	CoreFeatureExtendedConst
	// CoreFeatureThreads adds shared memories and atomic instructions,
	// without requiring host-level threading (spec.md §1 scope note).
	CoreFeatureThreads
	// CoreFeatureCustomPageSizes allows a memory's page size to be
	// declared rather than fixed at 64KiB.
	CoreFeatureCustomPageSizes
	// CoreFeatureWideArithmetic adds 128-bit integer arithmetic helpers.
	CoreFeatureWideArithmetic
	// CoreFeatureComponentModel enables Component-Model section
	// recognition in the decoder (spec.md §4.2 "ComponentAware" mode).
	CoreFeatureComponentModel
)

// CoreFeaturesV1 are features included in the WebAssembly Core Specification 1.0.
const CoreFeaturesV1 = CoreFeatureMutableGlobal

// CoreFeaturesV2 are features included in the WebAssembly Core Specification 2.0.
const CoreFeaturesV2 = CoreFeaturesV1 |
	CoreFeatureSignExtensionOps |
	CoreFeatureMultiValue |
	CoreFeatureNonTrappingFloatToIntConversion |
	CoreFeatureBulkMemoryOperations |
	CoreFeatureReferenceTypes |
	CoreFeatureSIMD

var allCoreFeatures = []struct {
	name string
	flag CoreFeatures
}{
	{"bulk-memory-operations", CoreFeatureBulkMemoryOperations},
	{"component-model", CoreFeatureComponentModel},
	{"custom-page-sizes", CoreFeatureCustomPageSizes},
	{"exception-handling", CoreFeatureExceptionHandling},
	{"extended-const", CoreFeatureExtendedConst},
	{"function-references", CoreFeatureFunctionReferences},
	{"gc", CoreFeatureGC},
	{"multi-memory", CoreFeatureMultiMemory},
	{"multi-value", CoreFeatureMultiValue},
	{"mutable-global", CoreFeatureMutableGlobal},
	{"nontrapping-float-to-int-conversion", CoreFeatureNonTrappingFloatToIntConversion},
	{"reference-types", CoreFeatureReferenceTypes},
	{"relaxed-simd", CoreFeatureRelaxedSIMD},
	{"sign-extension-ops", CoreFeatureSignExtensionOps},
	{"simd", CoreFeatureSIMD},
	{"tail-call", CoreFeatureTailCall},
	{"threads", CoreFeatureThreads},
	{"wide-arithmetic", CoreFeatureWideArithmetic},
}

// IsEnabled returns true if the flag is enabled.
func (f CoreFeatures) IsEnabled(flag CoreFeatures) bool {
	return f&flag != 0
}

// SetEnabled sets or clears the given flag and returns the result.
func (f CoreFeatures) SetEnabled(flag CoreFeatures, enabled bool) CoreFeatures {
	if enabled {
		return f | flag
	}
	return f &^ flag
}

// RequireEnabled returns an error if the given flag is not enabled.
func (f CoreFeatures) RequireEnabled(flag CoreFeatures) error {
	if f&flag == 0 {
		for _, c := range allCoreFeatures {
			if c.flag == flag {
				return fmt.Errorf("feature %q is disabled", c.name)
			}
		}
		return fmt.Errorf("feature %#x is disabled", uint64(flag))
	}
	return nil
}

// String implements fmt.Stringer by listing enabled feature names, sorted,
// joined with "|".
func (f CoreFeatures) String() string {
	var names []string
	for _, c := range allCoreFeatures {
		if f.IsEnabled(c.flag) {
			names = append(names, c.name)
		}
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}
