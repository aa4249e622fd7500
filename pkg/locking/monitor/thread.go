package monitor

import (
	"fmt"

	"tierlock/pkg/primitives"
)

// Thread is the per-thread locking context. It owns the LIFO stack of
// in-flight lock records for critical sections the thread has entered and
// answers the recursion question "is this header payload one of my own
// records". Runtimes with fixed stacks derive that answer from stack-address
// arithmetic; explicit membership is the portable equivalent.
//
// A Thread is confined to a single goroutine and is never shared.
type Thread struct {
	id     *primitives.ThreadID
	scopes []*LockRecord
	owned  map[primitives.Handle]*LockRecord

	balance      int64
	checkBalance bool
}

func NewThread() *Thread {
	return &Thread{
		id:    primitives.NewThreadID(),
		owned: make(map[primitives.Handle]*LockRecord),
	}
}

func (t *Thread) ID() *primitives.ThreadID {
	return t.id
}

// Owns reports whether h is the handle of one of this thread's in-flight
// lock records.
func (t *Thread) Owns(h primitives.Handle) bool {
	_, ok := t.owned[h]
	return ok
}

// OwnsIdentity reports whether v, read from a monitor's owner field, denotes
// this thread: either the thread identity itself or the handle of one of its
// records (a monitor inflated underneath a stack lock adopts the record
// handle as an anonymous owner).
func (t *Thread) OwnsIdentity(v uint64) bool {
	return v == t.id.ID() || t.Owns(primitives.Handle(v))
}

// Depth returns the number of open lock scopes.
func (t *Thread) Depth() int {
	return len(t.scopes)
}

// EnableBalanceChecking turns on the enter/exit imbalance diagnostic for
// this thread. Off by default; a detected imbalance is fatal.
func (t *Thread) EnableBalanceChecking() {
	t.checkBalance = true
}

// VerifyBalanced aborts if balance checking is enabled and the thread still
// holds open lock scopes. Called at points where the program asserts all
// critical sections are closed. Must never fire under correct usage.
func (t *Thread) VerifyBalanced() {
	if t.checkBalance && t.balance != 0 {
		panic(fmt.Sprintf("unbalanced monitors on %s: count = %d", t.id, t.balance))
	}
}

func (t *Thread) beginLockScope(obj *Object) *LockRecord {
	rec := newLockRecord(t.id, obj)
	t.scopes = append(t.scopes, rec)
	t.owned[rec.handle] = rec
	t.balance++
	return rec
}

func (t *Thread) currentLockScope() *LockRecord {
	if len(t.scopes) == 0 {
		return nil
	}
	return t.scopes[len(t.scopes)-1]
}

func (t *Thread) endLockScope() {
	rec := t.currentLockScope()
	if rec == nil {
		return
	}
	t.scopes = t.scopes[:len(t.scopes)-1]
	delete(t.owned, rec.handle)
	t.balance--
}
