package wasmbin

import "fmt"

// ParseError reports a malformed binary, per spec.md §4.2's failure
// semantics: every parse/validation error carries byte offset, section
// id, and a free-form reason.
type ParseError struct {
	Offset    uint64
	SectionID SectionID
	Reason    string
	Wrapped   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %#x (section %#x): %s", e.Offset, e.SectionID, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Wrapped }

func parseErr(offset uint64, section SectionID, reason string) error {
	return &ParseError{Offset: offset, SectionID: section, Reason: reason}
}

func wrapParseErr(offset uint64, section SectionID, reason string, cause error) error {
	return &ParseError{Offset: offset, SectionID: section, Reason: reason, Wrapped: cause}
}

// ValidationError reports a well-formed but ill-typed module, including
// the function and instruction index at fault, per spec.md §7.
type ValidationError struct {
	FuncIndex  Index
	InstrIndex int
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error in function %d at instruction %d: %s", e.FuncIndex, e.InstrIndex, e.Reason)
}

func validationErr(funcIdx Index, instrIdx int, reason string) error {
	return &ValidationError{FuncIndex: funcIdx, InstrIndex: instrIdx, Reason: reason}
}
