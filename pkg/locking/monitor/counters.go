package monitor

import (
	"sort"
	"sync"

	"go.uber.org/atomic"
)

// Path tags for the mutually exclusive ways an enter or exit can complete.
// Tags beginning with "lock" (respectively "unlock") cover every enter
// (exit); the remaining tags count shared sub-paths.
const (
	PathLockBiasExisting    = "lock{bias:existing}"
	PathLockBiasAcquired    = "lock{bias:acquired}"
	PathLockBiasTransfer    = "lock{bias:transfer}"
	PathLockCas             = "lock{cas}"
	PathLockCasRecursive    = "lock{cas:recursive}"
	PathLockStubRevoke      = "lock{stub:revoke}"
	PathLockStubEpoch       = "lock{stub:epoch-expired}"
	PathLockStubFailedCas   = "lock{stub:failed-cas}"
	PathLockInflatedCas     = "lock{inflated:cas}"
	PathLockInflatedFailed  = "lock{inflated:failed-cas}"
	PathLockInflatedOwned   = "lock{inflated:owned}"
	PathLockStub            = "lock{stub}"
	PathUnbiasable          = "unbiasable"
	PathRevokeBias          = "revoke-bias"
	PathUnlockBias          = "unlock{bias}"
	PathUnlockCas           = "unlock{cas}"
	PathUnlockCasRecursive  = "unlock{cas:recursive}"
	PathUnlockInflated      = "unlock{inflated}"
	PathUnlockStub          = "unlock{stub}"
	PathUnlockStubInflated  = "unlock{stub:inflated}"
	PathNullTarget          = "null-target"
)

// AllPaths returns the canonical path tags in declaration order. Sinks
// may see tags outside this list; these are just the ones the built-in
// protocols emit.
func AllPaths() []string {
	return []string{
		PathLockBiasExisting,
		PathLockBiasAcquired,
		PathLockBiasTransfer,
		PathLockCas,
		PathLockCasRecursive,
		PathLockStubRevoke,
		PathLockStubEpoch,
		PathLockStubFailedCas,
		PathLockInflatedCas,
		PathLockInflatedFailed,
		PathLockInflatedOwned,
		PathLockStub,
		PathUnbiasable,
		PathRevokeBias,
		PathUnlockBias,
		PathUnlockCas,
		PathUnlockCasRecursive,
		PathUnlockInflated,
		PathUnlockStub,
		PathUnlockStubInflated,
		PathNullTarget,
	}
}

// DiagnosticSink receives one increment per taken path. Purely
// observational: sinks must not affect control flow and may drop counts.
type DiagnosticSink interface {
	Inc(path string)
}

// NopSink discards every increment.
type NopSink struct{}

func (NopSink) Inc(string) {}

// CounterSample is one named counter value in a snapshot.
type CounterSample struct {
	Path  string
	Value int64
}

// CounterGroup is a DiagnosticSink backed by named atomic counters.
// Safe for concurrent use from any number of threads.
type CounterGroup struct {
	name string

	mu       sync.RWMutex
	counters map[string]*atomic.Int64
}

func NewCounterGroup(name string) *CounterGroup {
	return &CounterGroup{
		name:     name,
		counters: make(map[string]*atomic.Int64),
	}
}

func (g *CounterGroup) Name() string {
	return g.name
}

func (g *CounterGroup) Inc(path string) {
	g.counter(path).Inc()
}

// Value returns the current count for a path, zero if never taken.
func (g *CounterGroup) Value(path string) int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if c, ok := g.counters[path]; ok {
		return c.Load()
	}
	return 0
}

// Snapshot returns all counters sorted by path name.
func (g *CounterGroup) Snapshot() []CounterSample {
	g.mu.RLock()
	samples := make([]CounterSample, 0, len(g.counters))
	for path, c := range g.counters {
		samples = append(samples, CounterSample{Path: path, Value: c.Load()})
	}
	g.mu.RUnlock()

	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Path < samples[j].Path
	})
	return samples
}

func (g *CounterGroup) counter(path string) *atomic.Int64 {
	g.mu.RLock()
	c, ok := g.counters[path]
	g.mu.RUnlock()
	if ok {
		return c
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok = g.counters[path]; ok {
		return c
	}
	c = atomic.NewInt64(0)
	g.counters[path] = c
	return c
}
