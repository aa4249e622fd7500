package monitor

import (
	"sync/atomic"

	"tierlock/pkg/lockword"
	"tierlock/pkg/primitives"
)

// LockRecord is the thread-private scratch slot for one lightweight
// acquisition. While the object is light-locked, the object's logical header
// lives in the record's displaced slot and the object's word holds only the
// record handle plus the state tag.
//
// A record belongs to exactly one critical section on one thread. Its handle
// is published in the object header as an opaque comparand; no other thread
// ever dereferences it.
type LockRecord struct {
	handle    primitives.Handle
	owner     *primitives.ThreadID
	obj       *Object
	displaced atomic.Uint64
}

func newLockRecord(owner *primitives.ThreadID, obj *Object) *LockRecord {
	return &LockRecord{
		handle: primitives.NewHandle(),
		owner:  owner,
		obj:    obj,
	}
}

func (r *LockRecord) Handle() primitives.Handle {
	return r.handle
}

func (r *LockRecord) Owner() *primitives.ThreadID {
	return r.owner
}

// Object returns the object this record was opened for.
func (r *LockRecord) Object() *Object {
	return r.obj
}

// Displaced returns the displaced header held by this record. Zero is the
// recursion sentinel: the enclosing acquisition, not this one, holds the
// real header.
func (r *LockRecord) Displaced() lockword.Word {
	return lockword.Word(r.displaced.Load())
}

// SetDisplaced stores into the displaced slot. The store is atomic so that
// it is ordered before the compare-and-swap that publishes the record
// handle; the displaced word must be visible before the handle is.
func (r *LockRecord) SetDisplaced(w lockword.Word) {
	r.displaced.Store(uint64(w))
}
