package primitives

import "sync/atomic"

// HandleAlignment is the guaranteed alignment of every allocated Handle.
// Three clear low bits leave room for the lock-state tag and the bias bit
// when a handle is embedded in a header word.
const HandleAlignment = 8

var handleCounter uint64

// Handle is an opaque, aligned stand-in for a machine address. Lock records
// and heavyweight monitors are addressed by handle rather than by raw
// pointer, so their identity can be packed into a header word without ever
// disguising a real pointer from the garbage collector.
type Handle uint64

// NewHandle allocates the next handle. Handles are never zero and never
// reused within a process lifetime.
func NewHandle() Handle {
	return Handle(atomic.AddUint64(&handleCounter, 1) * HandleAlignment)
}

// Aligned reports whether h has the alignment every allocated handle carries.
func (h Handle) Aligned() bool {
	return h%HandleAlignment == 0
}
