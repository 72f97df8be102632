// Package wrtgo is the embedder-facing facade over the four-layer runtime
// core: it assembles internal/foundation (L1), internal/wasmbin (L2),
// internal/exec (L3), and internal/async (L4) behind a chained
// RuntimeConfig / NewRuntime surface. Nothing in this package allocates
// bytes directly; every allocation still flows through
// foundation.System.
package wrtgo

import (
	"github.com/pulseengine/wrt-go/api"
	"github.com/pulseengine/wrt-go/internal/foundation"
	"github.com/pulseengine/wrt-go/internal/wasmbin"
)

// RuntimeConfig controls Runtime behavior, built with chained With...
// methods and cloned before each mutation so a shared base config is
// never surprised by a later caller's change.
type RuntimeConfig struct {
	memoryConfig    foundation.Config
	enabledFeatures api.CoreFeatures
	componentAware  bool
}

// NewRuntimeConfig returns the default configuration: the Embedded budget
// profile, Strict enforcement, and the WebAssembly 2.0 core feature set
// (spec.md §6's baseline), Component-Model decoding off.
func NewRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		memoryConfig: foundation.Config{
			Profile:        foundation.ProfileEmbedded,
			Enforcement:    foundation.Strict,
			GlobalCapBytes: 256 << 20,
		},
		enabledFeatures: api.CoreFeaturesV2,
	}
}

func (c RuntimeConfig) clone() RuntimeConfig { return c }

// WithBudgetProfile selects one of the canned per-crate budget profiles,
// per spec.md §3.1.
func (c RuntimeConfig) WithBudgetProfile(profile foundation.BudgetProfile) RuntimeConfig {
	ret := c.clone()
	ret.memoryConfig.Profile = profile
	return ret
}

// WithCustomLimits switches to ProfileCustom and installs a caller-supplied
// per-crate byte table.
func (c RuntimeConfig) WithCustomLimits(limits map[foundation.CrateId]uint64) RuntimeConfig {
	ret := c.clone()
	ret.memoryConfig.Profile = foundation.ProfileCustom
	ret.memoryConfig.Limits = limits
	return ret
}

// WithEnforcementLevel selects how the SafetyMonitor reacts to a crate
// nearing its budget, per spec.md §4.1.
func (c RuntimeConfig) WithEnforcementLevel(level foundation.EnforcementLevel) RuntimeConfig {
	ret := c.clone()
	ret.memoryConfig.Enforcement = level
	return ret
}

// WithGlobalCapBytes bounds the sum of every crate's budget; InitMemorySystem
// fails if the chosen profile's limits would exceed it.
func (c RuntimeConfig) WithGlobalCapBytes(capBytes uint64) RuntimeConfig {
	ret := c.clone()
	ret.memoryConfig.GlobalCapBytes = capBytes
	return ret
}

// WithCoreFeatures overrides the enabled core feature set (spec.md §6).
func (c RuntimeConfig) WithCoreFeatures(features api.CoreFeatures) RuntimeConfig {
	ret := c.clone()
	ret.enabledFeatures = features
	return ret
}

// WithComponentModel enables Component-Model section recognition in the
// decoder, per spec.md §4.2's ComponentAware mode, sized by the budget
// profile's component type budget.
func (c RuntimeConfig) WithComponentModel(enabled bool) RuntimeConfig {
	ret := c.clone()
	ret.componentAware = enabled
	ret.enabledFeatures = ret.enabledFeatures.SetEnabled(api.CoreFeatureComponentModel, enabled)
	return ret
}

func (c RuntimeConfig) decodeMode() wasmbin.DecodeMode {
	if !c.componentAware {
		return wasmbin.CoreOnly
	}
	profile := c.memoryConfig.Profile
	return wasmbin.ComponentAwareMode(foundation.ComponentTypeBudgetFor(profile))
}
