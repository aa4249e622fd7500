package monitor

import "tierlock/pkg/lockword"

// LightVerdict is the tri-state result of a lightweight-tier attempt.
type LightVerdict int

const (
	// LightAcquired means the thread stack-locked the object, either by
	// publishing its record or by detecting its own recursion.
	LightAcquired LightVerdict = iota
	// LightEscalate means another thread holds the object or the word was
	// inflated; the attempt must move to the next tier.
	LightEscalate
)

// LightweightProtocol implements the CAS tier: one compare-and-swap that
// displaces the unlocked header into a thread-scoped lock record and
// publishes the record handle in its place.
type LightweightProtocol struct {
	sink DiagnosticSink
}

func NewLightweightProtocol(sink DiagnosticSink) *LightweightProtocol {
	return &LightweightProtocol{sink: sink}
}

// Enter attempts to stack-lock the object into rec.
//
// The displaced slot is written before the publishing CAS; the atomic store
// orders the two so no thread can observe the record handle without the
// displaced header behind it.
func (l *LightweightProtocol) Enter(obj *Object, rec *LockRecord, t *Thread) LightVerdict {
	mark := obj.Header()
	unlocked := lockword.WithState(mark, lockword.Unlocked)
	rec.SetDisplaced(unlocked)

	if obj.CompareAndSwapHeader(unlocked, lockword.WithRecord(rec.Handle())) {
		l.sink.Inc(PathLockCas)
		return LightAcquired
	}

	// The word was not the presumed unlocked header. If it now holds one
	// of this thread's own record handles, this is a recursive re-entry:
	// the zero sentinel marks rec as a nested acquisition whose exit must
	// not restore anything.
	current := obj.Header()
	if lockword.StateOf(current) == lockword.LightLocked && t.Owns(lockword.RecordOf(current)) {
		rec.SetDisplaced(0)
		l.sink.Inc(PathLockCasRecursive)
		return LightAcquired
	}

	l.sink.Inc(PathLockStubFailedCas)
	return LightEscalate
}

// Exit releases a stack lock taken through rec.
//
// A zero displaced slot is the recursion sentinel: the nested exit is a
// no-op. Otherwise the restoring CAS must find the object's word still
// pointing at rec; if it does not, the lock was inflated while held and
// the release belongs to the inflated tier's slow path.
func (l *LightweightProtocol) Exit(obj *Object, rec *LockRecord) LightVerdict {
	displaced := rec.Displaced()
	if displaced == 0 {
		l.sink.Inc(PathUnlockCasRecursive)
		return LightAcquired
	}

	if obj.CompareAndSwapHeader(lockword.WithRecord(rec.Handle()), displaced) {
		l.sink.Inc(PathUnlockCas)
		return LightAcquired
	}

	l.sink.Inc(PathUnlockStub)
	return LightEscalate
}
