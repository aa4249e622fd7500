package monitor

import (
	"errors"
	"fmt"

	"tierlock/pkg/lockword"
)

// ErrNilTarget is returned when an enter or exit is attempted against a nil
// object. This is the one caller-visible misuse the fast tiers distinguish;
// it is surfaced upward, never retried.
var ErrNilTarget = errors.New("lock target is nil")

// SlowPath is the external runtime invoked when every fast tier has failed.
// Calls are infallible from the core's point of view: the runtime blocks,
// revokes, inflates, or wakes as needed and always leaves the object in a
// consistent owned-or-unlocked state.
type SlowPath interface {
	EnterSlow(obj *Object, rec *LockRecord, t *Thread)
	ExitSlow(obj *Object, rec *LockRecord, t *Thread)
}

// Manager composes the three locking tiers into the full adaptive protocol.
// Enter tries bias, then the tier selected by the header's monitor bit, and
// finally hands the attempt to the slow path; Exit mirrors the order by
// reading the recorded state. Every fast-tier failure is expected and safe:
// it never corrupts the header word, it only moves the attempt down a tier.
type Manager struct {
	types    *TypeRegistry
	monitors MonitorTable
	slow     SlowPath
	sink     DiagnosticSink

	bias     *BiasProtocol
	light    *LightweightProtocol
	inflated *InflatedProtocol

	biasing bool
}

func NewManager(types *TypeRegistry, monitors MonitorTable, slow SlowPath) *Manager {
	m := &Manager{
		types:    types,
		monitors: monitors,
		slow:     slow,
		biasing:  true,
	}
	m.SetDiagnostics(NopSink{})
	return m
}

// SetDiagnostics replaces the counter sink for the manager and its
// protocols. Observational only.
func (m *Manager) SetDiagnostics(sink DiagnosticSink) {
	m.sink = sink
	m.bias = NewBiasProtocol(sink)
	m.light = NewLightweightProtocol(sink)
	m.inflated = NewInflatedProtocol(sink)
}

// DisableBiasing turns off the biased tier for every enter through this
// manager. Objects whose headers already carry a bias still fall through
// correctly via the slow path's revocation.
func (m *Manager) DisableBiasing() {
	m.biasing = false
}

// Enter acquires the object's lock for thread t, blocking in the external
// slow path under genuine contention.
func (m *Manager) Enter(obj *Object, t *Thread) error {
	if obj == nil {
		m.sink.Inc(PathNullTarget)
		return ErrNilTarget
	}

	rec := t.beginLockScope(obj)

	if m.biasing {
		switch m.bias.AttemptEnter(obj, t, m.types.PrototypeHeader(obj.Type())) {
		case BiasAcquired:
			return nil
		case BiasEscalate:
			m.enterSlow(obj, rec, t)
			return nil
		}
		// BiasFallthrough: continue with the thin tiers.
	}

	if mark := obj.Header(); lockword.HasMonitor(mark) {
		// A non-zero displaced slot tells the exit path this scope did not
		// stack-lock anything.
		rec.SetDisplaced(lockword.WithRecord(rec.Handle()))
		if mon := m.monitors.Resolve(lockword.MonitorOf(mark)); mon != nil {
			if m.inflated.Enter(mon, t) == InflatedAcquired {
				return nil
			}
		}
		m.enterSlow(obj, rec, t)
		return nil
	}

	if m.light.Enter(obj, rec, t) == LightAcquired {
		return nil
	}
	m.enterSlow(obj, rec, t)
	return nil
}

// Exit releases the lock most recently entered by t on obj. Enter and exit
// must nest: the exit always closes the thread's innermost open scope.
func (m *Manager) Exit(obj *Object, t *Thread) error {
	if obj == nil {
		m.sink.Inc(PathNullTarget)
		return ErrNilTarget
	}

	rec := t.currentLockScope()
	if rec == nil {
		return fmt.Errorf("exit on %s without a matching enter", t.ID())
	}
	if rec.Object() != obj {
		return fmt.Errorf("%s exits out of order: innermost lock is on a different object", t.ID())
	}

	if m.biasing && m.bias.AttemptExit(obj) {
		t.endLockScope()
		return nil
	}

	if rec.Displaced() != 0 {
		if mark := obj.Header(); lockword.HasMonitor(mark) {
			if mon := m.monitors.Resolve(lockword.MonitorOf(mark)); mon != nil {
				if m.inflated.Exit(mon, t) == InflatedAcquired {
					t.endLockScope()
					return nil
				}
			}
			m.slow.ExitSlow(obj, rec, t)
			t.endLockScope()
			return nil
		}
	}

	if m.light.Exit(obj, rec) == LightEscalate {
		// The word no longer points at rec: the lock was inflated while
		// held. The slow path releases through the monitor.
		m.slow.ExitSlow(obj, rec, t)
	}
	t.endLockScope()
	return nil
}

func (m *Manager) enterSlow(obj *Object, rec *LockRecord, t *Thread) {
	m.sink.Inc(PathLockStub)
	m.slow.EnterSlow(obj, rec, t)
}
