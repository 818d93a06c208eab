package reassembly

// Error is a sentinel error value, mirroring the reference network stack's
// types.Error: a dedicated type so these errors are never confused with
// ad-hoc errors.New calls elsewhere in the module.
type Error struct{ s string }

func (e *Error) Error() string { return e.s }

// ErrBadPop is returned by Pop when called with a seqNo past the buffer's
// smallest buffered key — a caller-bug invariant violation, not a
// recoverable protocol condition.
var ErrBadPop = &Error{"reassembly: pop seqNo is past the buffer's smallest key"}
