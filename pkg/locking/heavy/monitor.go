package heavy

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"tierlock/pkg/lockword"
	"tierlock/pkg/primitives"
)

// ownerDeflating is a tombstone written into the owner field while a
// monitor is being deflated. It matches no thread identity and no record
// handle, so every racing acquisition fails its CAS and re-reads the
// header, which by then no longer points here.
const ownerDeflating = ^uint64(0)

// entryRequest is one thread queued on a monitor, signalled over its
// private channel when ownership is handed off.
type entryRequest struct {
	threadID uint64
	ch       chan struct{}
}

func newEntryRequest(threadID uint64) *entryRequest {
	return &entryRequest{
		threadID: threadID,
		ch:       make(chan struct{}, 1),
	}
}

// Monitor is a heavyweight monitor record. The owner, recursion and waiter
// fields are read by the lock-free fast paths; the queues are touched only
// under the internal mutex, which only the blocking slow path takes.
//
// The owner field holds a thread identity, or a lock-record handle adopted
// during inflation (the stack lock's owner expressed anonymously), or zero.
// The displaced field preserves the header word the monitor replaced, so
// deflation can restore it bit for bit.
type Monitor struct {
	handle primitives.Handle

	owner      atomic.Uint64
	recursions atomic.Int64
	displaced  atomic.Uint64
	waiters    atomic.Int64
	dead       atomic.Bool

	mu        sync.Mutex
	cxq       []*entryRequest // arrivals, newest last
	entryList []*entryRequest // wake candidates, FIFO
}

func newMonitor() *Monitor {
	return &Monitor{handle: primitives.NewHandle()}
}

func (m *Monitor) Handle() primitives.Handle {
	return m.handle
}

// Owner implements monitor.HeavyMonitor.
func (m *Monitor) Owner() uint64 {
	return m.owner.Load()
}

// CompareAndSwapOwner implements monitor.HeavyMonitor.
func (m *Monitor) CompareAndSwapOwner(old, new uint64) bool {
	return m.owner.CompareAndSwap(old, new)
}

// Recursions implements monitor.HeavyMonitor.
func (m *Monitor) Recursions() int64 {
	return m.recursions.Load()
}

// HasWaiters implements monitor.HeavyMonitor. It covers both queues.
func (m *Monitor) HasWaiters() bool {
	return m.waiters.Load() > 0
}

// ClearOwner implements monitor.HeavyMonitor.
func (m *Monitor) ClearOwner() {
	m.owner.Store(0)
}

// Displaced returns the header word this monitor displaced, zero until the
// inflating owner's first slow exit records it.
func (m *Monitor) Displaced() lockword.Word {
	return lockword.Word(m.displaced.Load())
}

// enter blocks until this thread owns the monitor. Returns false if the
// monitor was deflated out from under the caller, who must then re-read
// the header word.
func (m *Monitor) enter(owns func(uint64) bool, threadID uint64) bool {
	const maxDelay = 2 * time.Millisecond
	delay := 50 * time.Microsecond

	var req *entryRequest
	defer func() {
		if req != nil {
			m.dequeue(req)
		}
	}()

	for {
		if m.dead.Load() {
			return false
		}
		if m.owner.CompareAndSwap(0, threadID) {
			return true
		}
		if o := m.owner.Load(); o != 0 && o != ownerDeflating && owns(o) {
			m.recursions.Inc()
			return true
		}

		if req == nil {
			req = newEntryRequest(threadID)
			if !m.enqueue(req) {
				req = nil
				return false
			}
		}

		// Wait for a hand-off signal, but re-poll on a capped backoff:
		// a fast-path release tests waiter emptiness and clears the
		// owner without signalling, and that race must only cost time.
		select {
		case <-req.ch:
		case <-time.After(delay):
			if delay *= 2; delay > maxDelay {
				delay = maxDelay
			}
		}
	}
}

// exitWake clears ownership and hands off to the longest-waiting thread.
// Caller must own the monitor.
func (m *Monitor) exitWake() {
	m.mu.Lock()
	m.owner.Store(0)
	next := m.nextWaiter()
	m.mu.Unlock()

	if next != nil {
		select {
		case next.ch <- struct{}{}:
		default:
		}
	}
}

func (m *Monitor) enqueue(req *entryRequest) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dead.Load() {
		return false
	}
	m.cxq = append(m.cxq, req)
	m.waiters.Inc()
	return true
}

func (m *Monitor) dequeue(req *entryRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removeRequest(&m.cxq, req) || m.removeRequest(&m.entryList, req) {
		m.waiters.Dec()
	}
}

// nextWaiter returns the thread to hand off to without removing it; the
// woken thread dequeues itself once it wins the owner CAS. Candidates move
// from the arrival queue to the entry list in batches, preserving arrival
// order. Caller holds mu.
func (m *Monitor) nextWaiter() *entryRequest {
	if len(m.entryList) == 0 && len(m.cxq) > 0 {
		m.entryList = append(m.entryList, m.cxq...)
		m.cxq = m.cxq[:0]
	}
	if len(m.entryList) == 0 {
		return nil
	}
	return m.entryList[0]
}

func (m *Monitor) removeRequest(queue *[]*entryRequest, req *entryRequest) bool {
	for i, q := range *queue {
		if q == req {
			*queue = append((*queue)[:i], (*queue)[i+1:]...)
			return true
		}
	}
	return false
}
