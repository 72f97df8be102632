package foundation

// Capability is an unforgeable token granting the right to perform one
// allocation of a bounded kind. The only way to obtain one is
// System.Authorize; the only way to spend one is Capability.Allocate,
// which consumes it. Bounded containers (Vec, Map, String) can only be
// constructed from a Capability's resulting Guard, per spec.md §4.1.
type Capability struct {
	system  *System
	crate   CrateId
	maxSize uint64
	used    bool
}

// Authorize mints a Capability scoped to at most maxSize bytes against
// crate. Minting never allocates; it only proves the caller may attempt an
// allocation of that size class.
func (s *System) Authorize(crate CrateId, maxSize uint64) *Capability {
	return &Capability{system: s, crate: crate, maxSize: maxSize}
}

// Allocate spends the capability, performing the actual SafeAllocate call.
// A Capability may be spent exactly once; reuse returns a CapabilityError.
func (c *Capability) Allocate(size uint64) (*Guard, error) {
	if c.used {
		return nil, &CapabilityError{CrateId: c.crate, Reason: "capability already spent"}
	}
	if size > c.maxSize {
		return nil, &CapabilityError{CrateId: c.crate, Reason: "requested size exceeds authorized maximum"}
	}
	g, err := c.system.SafeAllocate(size, c.crate)
	if err != nil {
		return nil, err
	}
	c.used = true
	return g, nil
}

// CrateId reports which crate this capability, if spent, would charge.
func (c *Capability) CrateId() CrateId { return c.crate }
