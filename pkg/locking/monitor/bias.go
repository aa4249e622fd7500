package monitor

import "tierlock/pkg/lockword"

// BiasVerdict is the tri-state result of a bias-tier attempt.
type BiasVerdict int

const (
	// BiasAcquired means the thread owns the object via its bias; no
	// further locking is needed.
	BiasAcquired BiasVerdict = iota
	// BiasFallthrough means biasing does not apply (never enabled, or
	// revoked at the type level); continue with the thin tiers.
	BiasFallthrough
	// BiasEscalate means a contended bias transition lost its race; the
	// slow path must coordinate revocation.
	BiasEscalate
)

// BiasProtocol implements the biased tier: re-entry by the bias owner with
// no atomic operation, anonymous-bias acquisition, epoch-expired bias
// transfer, and type-level revocation fallthrough.
type BiasProtocol struct {
	sink DiagnosticSink
}

func NewBiasProtocol(sink DiagnosticSink) *BiasProtocol {
	return &BiasProtocol{sink: sink}
}

// AttemptEnter tries to take the object through its bias. proto must be the
// type's current prototype header, freshly read for this operation.
//
// The single XOR folds the three fast checks into one comparison: with the
// age bits masked out, (proto | thread) ^ header is zero exactly when the
// header carries the bias pattern, the prototype's epoch, and this thread's
// identity.
func (b *BiasProtocol) AttemptEnter(obj *Object, t *Thread, proto lockword.Word) BiasVerdict {
	mark := obj.Header()
	threadBits := lockword.WithBiasOwner(0, t.ID().ID())
	tmp := ((proto | threadBits) ^ mark) &^ lockword.AgeMask

	if tmp == 0 {
		// Already biased to this thread in the current epoch.
		b.sink.Inc(PathLockBiasExisting)
		return BiasAcquired
	}

	if !lockword.IsBiased(mark) {
		// Biasing never took hold for this object.
		b.sink.Inc(PathUnbiasable)
		return BiasFallthrough
	}

	if tmp&lockword.BiasMask != 0 {
		// The prototype no longer carries the bias pattern: biasing was
		// revoked for the whole type. Reset this header to the unbiased
		// prototype. Losing the race is fine; some thread has removed the
		// bias either way, so fall through to the thin tiers.
		obj.CompareAndSwapHeader(mark, lockword.WithAge(proto, lockword.AgeOf(mark)))
		b.sink.Inc(PathRevokeBias)
		return BiasFallthrough
	}

	if tmp&lockword.EpochMask != 0 {
		// The epoch expired, so whatever owner the header names is known
		// invalid. Only here may the observed header itself serve as the
		// comparand: bias transfers directly to this thread.
		biased := lockword.WithAge(proto|threadBits, lockword.AgeOf(mark))
		if obj.CompareAndSwapHeader(mark, biased) {
			b.sink.Inc(PathLockBiasTransfer)
			return BiasAcquired
		}
		b.sink.Inc(PathLockStubEpoch)
		return BiasEscalate
	}

	// Epoch is current but the owner is absent or foreign. Build the
	// presumed-unowned header and try to claim it; the comparand keeps the
	// observed age and epoch so a valid concurrent bias is never clobbered.
	unbiased := mark & (lockword.BiasMask | lockword.AgeMask | lockword.EpochMask)
	if obj.CompareAndSwapHeader(unbiased, unbiased|threadBits) {
		b.sink.Inc(PathLockBiasAcquired)
		return BiasAcquired
	}
	b.sink.Inc(PathLockStubRevoke)
	return BiasEscalate
}

// AttemptExit completes a bias-tier exit. If the header still carries the
// bias pattern the exit is a no-op beyond the read: ownership bookkeeping
// was never materialized on enter, so there is nothing to undo. The owner
// is not rechecked; had the bias been revoked while held, the pattern would
// be gone, and the object cannot have been rebiased elsewhere meanwhile.
func (b *BiasProtocol) AttemptExit(obj *Object) bool {
	if lockword.IsBiased(obj.Header()) {
		b.sink.Inc(PathUnlockBias)
		return true
	}
	return false
}
