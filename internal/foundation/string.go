package foundation

// String is a bounded, fixed-capacity (in bytes) UTF-8 string, per
// spec.md §3.1.
type String struct {
	guard *Guard
	buf   []byte
}

// NewString spends cap to charge capacityBytes and returns an empty bounded
// String able to grow up to that many bytes.
func NewString(cap *Capability, capacityBytes int) (*String, error) {
	g, err := cap.Allocate(uint64(capacityBytes))
	if err != nil {
		return nil, err
	}
	g = newGuardWithFinalizer(g)
	return &String{guard: g, buf: make([]byte, 0, capacityBytes)}, nil
}

// FromStr initializes the String with the contents of s, failing with
// ErrCapacityExceeded if s does not fit.
func (str *String) FromStr(s string) error {
	if len(s) > cap(str.buf) {
		return ErrCapacityExceeded
	}
	str.buf = append(str.buf[:0], s...)
	return nil
}

// String implements fmt.Stringer.
func (str *String) String() string { return string(str.buf) }

// Len returns the current byte length.
func (str *String) Len() int { return len(str.buf) }

// Cap returns the fixed byte capacity.
func (str *String) Cap() int { return cap(str.buf) }

// Close releases the String's budget charge. Idempotent.
func (str *String) Close() { str.guard.Release() }
