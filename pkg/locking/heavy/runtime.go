package heavy

import (
	"runtime"

	"tierlock/pkg/locking/monitor"
	"tierlock/pkg/lockword"
)

// Runtime is the blocking slow path behind the fast tiers. One Runtime
// serves every object whose monitors live in its Table.
type Runtime struct {
	types *monitor.TypeRegistry
	table *Table
	sink  monitor.DiagnosticSink
}

func NewRuntime(types *monitor.TypeRegistry) *Runtime {
	return &Runtime{
		types: types,
		table: NewTable(),
		sink:  monitor.NopSink{},
	}
}

// Table exposes the monitor table for wiring into a monitor.Manager.
func (r *Runtime) Table() *Table {
	return r.table
}

// SetDiagnostics replaces the counter sink. Observational only.
func (r *Runtime) SetDiagnostics(sink monitor.DiagnosticSink) {
	r.sink = sink
}

// EnterSlow acquires the object's lock for thread th, blocking if needed.
// Called by the orchestrator after every fast tier has failed; it always
// succeeds eventually, so it reports nothing.
func (r *Runtime) EnterSlow(obj *monitor.Object, rec *monitor.LockRecord, th *monitor.Thread) {
	for {
		mark := obj.Header()
		switch {
		case lockword.IsBiased(mark):
			r.revokeBias(obj, mark)

		case lockword.StateOf(mark) == lockword.Unlocked:
			rec.SetDisplaced(mark)
			if obj.CompareAndSwapHeader(mark, lockword.WithRecord(rec.Handle())) {
				return
			}

		case lockword.StateOf(mark) == lockword.LightLocked:
			if th.Owns(lockword.RecordOf(mark)) {
				rec.SetDisplaced(0)
				return
			}
			r.inflate(obj, mark)

		case lockword.StateOf(mark) == lockword.Inflated:
			mon := r.table.lookup(lockword.MonitorOf(mark))
			if mon == nil {
				// Deflated between the header read and the lookup.
				runtime.Gosched()
				continue
			}
			rec.SetDisplaced(lockword.WithRecord(rec.Handle()))
			if mon.enter(th.OwnsIdentity, th.ID().ID()) {
				return
			}

		default:
			// Marked: the collector owns the word; wait it out.
			runtime.Gosched()
		}
	}
}

// ExitSlow releases a lock whose fast exit failed: an inflated release with
// recursion or waiters, or a stack lock that was inflated while held.
func (r *Runtime) ExitSlow(obj *monitor.Object, rec *monitor.LockRecord, th *monitor.Thread) {
	for {
		mark := obj.Header()

		if lockword.StateOf(mark) == lockword.LightLocked && lockword.RecordOf(mark) == rec.Handle() {
			// The fast exit lost a transient race but nothing actually
			// changed hands; restore the displaced header ourselves.
			if obj.CompareAndSwapHeader(mark, rec.Displaced()) {
				return
			}
			continue
		}

		if lockword.StateOf(mark) != lockword.Inflated {
			// Nothing of ours is left in the word.
			return
		}

		mon := r.table.lookup(lockword.MonitorOf(mark))
		if mon == nil {
			runtime.Gosched()
			continue
		}
		if !th.OwnsIdentity(mon.Owner()) {
			return
		}

		if mon.Recursions() > 0 {
			mon.recursions.Dec()
			return
		}

		// Outermost release. If this scope still holds a displaced header
		// (the monitor was inflated underneath our stack lock), hand it to
		// the monitor so deflation can restore it later.
		if d := rec.Displaced(); d != 0 && d != lockword.WithRecord(rec.Handle()) {
			mon.displaced.CompareAndSwap(0, uint64(d))
		}
		mon.exitWake()
		return
	}
}

// DeflateIdle retires the object's monitor if it has no owner, no
// recursion and no waiters, restoring the header word the monitor
// displaced. Returns true if the object left the inflated state. Safe to
// call at any time; a racing acquisition simply defeats the deflation.
func (r *Runtime) DeflateIdle(obj *monitor.Object) bool {
	mark := obj.Header()
	if lockword.StateOf(mark) != lockword.Inflated {
		return false
	}
	mon := r.table.lookup(lockword.MonitorOf(mark))
	if mon == nil {
		return false
	}

	mon.mu.Lock()
	defer mon.mu.Unlock()

	if mon.waiters.Load() > 0 || mon.Recursions() > 0 {
		return false
	}
	displaced := mon.Displaced()
	if displaced == 0 {
		return false
	}
	// The tombstone blocks acquisitions while the header swings back.
	if !mon.owner.CompareAndSwap(0, ownerDeflating) {
		return false
	}

	if !obj.CompareAndSwapHeader(mark, displaced) {
		mon.owner.Store(0)
		return false
	}
	mon.dead.Store(true)
	r.table.remove(mon)
	return true
}

// revokeBias drops a biased header back to a plain unlocked word,
// preserving the age bits. Losing the race to another revoker is fine;
// some thread removed the bias either way.
//
// Revocation here is a direct CAS rather than a stop-the-world
// rendezvous: it assumes the bias owner is not inside a critical section
// at revocation time. Contended workloads should disable biasing for the
// affected types (TypeRegistry.DisableBiasing or Manager.DisableBiasing).
func (r *Runtime) revokeBias(obj *monitor.Object, mark lockword.Word) {
	revoked := lockword.WithAge(lockword.Word(lockword.Unlocked), lockword.AgeOf(mark))
	obj.CompareAndSwapHeader(mark, revoked)
	r.sink.Inc(monitor.PathRevokeBias)
}

// inflate swaps a foreign stack lock for a fresh monitor. The monitor
// adopts the published record handle as its anonymous owner; the real
// owner identifies itself by that handle on its (necessarily slow) exit.
func (r *Runtime) inflate(obj *monitor.Object, mark lockword.Word) {
	mon := newMonitor()
	mon.owner.Store(uint64(lockword.RecordOf(mark)))
	r.table.register(mon)

	if !obj.CompareAndSwapHeader(mark, lockword.WithMonitor(mon.Handle())) {
		// Lost the inflation race; retire the orphan.
		mon.dead.Store(true)
		r.table.remove(mon)
	}
}
