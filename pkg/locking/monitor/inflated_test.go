package monitor

import (
	"sync/atomic"
	"testing"

	"tierlock/pkg/primitives"
)

// stubMonitor is a minimal HeavyMonitor for exercising the fast paths in
// isolation from the real heavyweight runtime.
type stubMonitor struct {
	owner      atomic.Uint64
	recursions atomic.Int64
	waiters    atomic.Int64
	failCAS    atomic.Bool
}

func (m *stubMonitor) Owner() uint64     { return m.owner.Load() }
func (m *stubMonitor) Recursions() int64 { return m.recursions.Load() }
func (m *stubMonitor) HasWaiters() bool  { return m.waiters.Load() > 0 }
func (m *stubMonitor) ClearOwner()       { m.owner.Store(0) }

func (m *stubMonitor) CompareAndSwapOwner(old, new uint64) bool {
	if m.failCAS.Swap(false) {
		return false
	}
	return m.owner.CompareAndSwap(old, new)
}

type stubTable map[primitives.Handle]HeavyMonitor

func (t stubTable) Resolve(h primitives.Handle) HeavyMonitor { return t[h] }

func TestInflatedEnterUnowned(t *testing.T) {
	mon := &stubMonitor{}
	th := NewThread()
	p := NewInflatedProtocol(NopSink{})

	if v := p.Enter(mon, th); v != InflatedAcquired {
		t.Fatalf("expected acquisition of an unowned monitor, got %v", v)
	}
	if mon.Owner() != th.ID().ID() {
		t.Errorf("owner is %d, want %d", mon.Owner(), th.ID().ID())
	}
}

func TestInflatedEnterOwnedEscalates(t *testing.T) {
	mon := &stubMonitor{}
	holder := NewThread()
	mon.owner.Store(holder.ID().ID())

	sink := NewCounterGroup("enters")
	p := NewInflatedProtocol(sink)

	if v := p.Enter(mon, NewThread()); v != InflatedEscalate {
		t.Fatalf("expected escalation against an owned monitor, got %v", v)
	}
	if mon.Owner() != holder.ID().ID() {
		t.Error("failed enter must not disturb the owner")
	}
	if sink.Value(PathLockInflatedOwned) != 1 {
		t.Errorf("expected one %s, got %d", PathLockInflatedOwned, sink.Value(PathLockInflatedOwned))
	}
}

func TestInflatedEnterLostRaceEscalates(t *testing.T) {
	mon := &stubMonitor{}
	mon.failCAS.Store(true)

	sink := NewCounterGroup("enters")
	p := NewInflatedProtocol(sink)

	if v := p.Enter(mon, NewThread()); v != InflatedEscalate {
		t.Fatalf("expected escalation on a lost owner CAS, got %v", v)
	}
	if sink.Value(PathLockInflatedFailed) != 1 {
		t.Errorf("expected one %s, got %d", PathLockInflatedFailed, sink.Value(PathLockInflatedFailed))
	}
}

func TestInflatedExitSimple(t *testing.T) {
	mon := &stubMonitor{}
	th := NewThread()
	mon.owner.Store(th.ID().ID())
	p := NewInflatedProtocol(NopSink{})

	if v := p.Exit(mon, th); v != InflatedAcquired {
		t.Fatalf("expected the simple exit to succeed, got %v", v)
	}
	if mon.Owner() != 0 {
		t.Error("owner must be cleared by the simple exit")
	}
}

func TestInflatedExitEscalations(t *testing.T) {
	th := NewThread()

	tests := []struct {
		name  string
		setup func(*stubMonitor)
	}{
		{"foreign owner", func(m *stubMonitor) {
			m.owner.Store(NewThread().ID().ID())
		}},
		{"recursive hold", func(m *stubMonitor) {
			m.owner.Store(th.ID().ID())
			m.recursions.Store(2)
		}},
		{"queued waiters", func(m *stubMonitor) {
			m.owner.Store(th.ID().ID())
			m.waiters.Store(1)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mon := &stubMonitor{}
			tt.setup(mon)
			ownerBefore := mon.Owner()

			p := NewInflatedProtocol(NopSink{})
			if v := p.Exit(mon, th); v != InflatedEscalate {
				t.Fatalf("expected escalation, got %v", v)
			}
			if mon.Owner() != ownerBefore {
				t.Error("escalating exit must not touch the owner")
			}
		})
	}
}
