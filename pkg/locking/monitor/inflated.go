package monitor

import "tierlock/pkg/primitives"

// HeavyMonitor is the view of an externally managed heavyweight monitor
// needed by the fast paths. The core never allocates, frees, or blocks on a
// monitor; it only reads the owner, CASes it from absent, compares the
// recursion count with zero, tests waiter emptiness, and clears the owner
// with release ordering.
type HeavyMonitor interface {
	// Owner returns the current owner: a thread identity, a lock-record
	// handle adopted during inflation, or zero when unowned.
	Owner() uint64

	// CompareAndSwapOwner publishes an ownership transition.
	CompareAndSwapOwner(old, new uint64) bool

	// Recursions returns the recursive hold count of the current owner.
	Recursions() int64

	// HasWaiters reports whether any thread is queued on the monitor,
	// across both the arrival and entry queues.
	HasWaiters() bool

	// ClearOwner releases ownership with release ordering. Only called
	// after the fast-exit preconditions have been established.
	ClearOwner()
}

// MonitorTable resolves monitor handles published in header words. Owned by
// the heavyweight runtime; the core only resolves.
type MonitorTable interface {
	Resolve(h primitives.Handle) HeavyMonitor
}

// InflatedVerdict is the tri-state result of an inflated-tier attempt.
type InflatedVerdict int

const (
	// InflatedAcquired means the owner field transition succeeded with no
	// queuing.
	InflatedAcquired InflatedVerdict = iota
	// InflatedEscalate means the monitor is owned, recursive, or has
	// waiters; the external slow path must block or wake.
	InflatedEscalate
)

// InflatedProtocol implements the heavyweight fast paths: an uncontended
// owner CAS on enter and an uncontended owner clear on exit. Everything
// else escalates to the external runtime.
type InflatedProtocol struct {
	sink DiagnosticSink
}

func NewInflatedProtocol(sink DiagnosticSink) *InflatedProtocol {
	return &InflatedProtocol{sink: sink}
}

// Enter attempts to take an apparently unowned monitor.
func (p *InflatedProtocol) Enter(mon HeavyMonitor, t *Thread) InflatedVerdict {
	if owner := mon.Owner(); owner != 0 {
		p.sink.Inc(PathLockInflatedOwned)
		return InflatedEscalate
	}

	if mon.CompareAndSwapOwner(0, t.ID().ID()) {
		p.sink.Inc(PathLockInflatedCas)
		return InflatedAcquired
	}

	p.sink.Inc(PathLockInflatedFailed)
	return InflatedEscalate
}

// Exit releases the monitor only in the simple case: this thread owns it
// directly, holds it exactly once, and nobody is waiting. Recursion
// decrements and waiter wake-ups belong to the external slow path.
func (p *InflatedProtocol) Exit(mon HeavyMonitor, t *Thread) InflatedVerdict {
	if mon.Owner() != t.ID().ID() || mon.Recursions() != 0 {
		p.sink.Inc(PathUnlockStubInflated)
		return InflatedEscalate
	}

	if mon.HasWaiters() {
		p.sink.Inc(PathUnlockStubInflated)
		return InflatedEscalate
	}

	mon.ClearOwner()
	p.sink.Inc(PathUnlockInflated)
	return InflatedAcquired
}
