package primitives

import (
	"fmt"
	"sync/atomic"
)

var threadCounter uint64

// ThreadID is a process-unique identity for a locking thread. Identities are
// always odd so they can never collide with a Handle, which is always a
// multiple of eight; the two share the owner field of a heavyweight monitor.
type ThreadID struct {
	id uint64
}

func NewThreadID() *ThreadID {
	return &ThreadID{
		id: atomic.AddUint64(&threadCounter, 1)<<1 | 1,
	}
}

// NewThreadIDFromValue creates a ThreadID with a specific identity value.
// This is primarily used by tests that need deterministic identities.
func NewThreadIDFromValue(id uint64) *ThreadID {
	return &ThreadID{
		id: id,
	}
}

func (t *ThreadID) ID() uint64 {
	return t.id
}

func (t *ThreadID) String() string {
	return fmt.Sprintf("thread-%d", t.id)
}

func (t *ThreadID) Equals(other *ThreadID) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.id == other.id
}

// TypeID identifies a lockable type. Objects of the same type share one
// prototype header and therefore one bias epoch.
type TypeID uint64

func (t TypeID) String() string {
	return fmt.Sprintf("type-%d", uint64(t))
}
