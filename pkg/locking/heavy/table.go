package heavy

import (
	"sync"

	"tierlock/pkg/locking/monitor"
	"tierlock/pkg/primitives"
)

// Table maps monitor handles published in header words to their monitors.
// It implements monitor.MonitorTable for the fast tiers; registration and
// removal belong to the runtime alone.
type Table struct {
	mu       sync.RWMutex
	monitors map[primitives.Handle]*Monitor
}

func NewTable() *Table {
	return &Table{
		monitors: make(map[primitives.Handle]*Monitor),
	}
}

// Resolve implements monitor.MonitorTable. An untracked handle resolves to
// nil, which callers treat as "escalate and re-read".
func (t *Table) Resolve(h primitives.Handle) monitor.HeavyMonitor {
	if m := t.lookup(h); m != nil {
		return m
	}
	return nil
}

// Len returns the number of live monitors.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.monitors)
}

func (t *Table) lookup(h primitives.Handle) *Monitor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.monitors[h]
}

func (t *Table) register(m *Monitor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.monitors[m.handle] = m
}

func (t *Table) remove(m *Monitor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.monitors, m.handle)
}
