package monitor

import (
	"sync"

	"go.uber.org/atomic"

	"tierlock/pkg/lockword"
	"tierlock/pkg/primitives"
)

// TypeRegistry holds the per-type prototype headers that govern biasing.
// A biasable type's prototype carries the bias pattern and the current
// epoch; bumping the epoch invalidates every outstanding bias of that type
// at once, and clearing the pattern revokes biasing for the type entirely.
//
// The registry is the authority on bias validity. Protocols re-read the
// prototype on every operation and never cache it across an operation,
// because epoch bumps and bias disables arrive asynchronously.
type TypeRegistry struct {
	mu     sync.RWMutex
	protos map[primitives.TypeID]*atomic.Uint64
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		protos: make(map[primitives.TypeID]*atomic.Uint64),
	}
}

// Register installs a type. Biasable types start in epoch zero with an
// anonymously biased prototype; others start with a plain unlocked header.
func (tr *TypeRegistry) Register(typeID primitives.TypeID, biasable bool) {
	proto := lockword.Word(lockword.Unlocked)
	if biasable {
		proto = lockword.BiasPattern
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.protos[typeID] = atomic.NewUint64(uint64(proto))
}

// PrototypeHeader returns the type's current prototype word. Unregistered
// types read as plain unlocked, so they simply never bias.
func (tr *TypeRegistry) PrototypeHeader(typeID primitives.TypeID) lockword.Word {
	if p := tr.proto(typeID); p != nil {
		return lockword.Word(p.Load())
	}
	return lockword.Word(lockword.Unlocked)
}

// BiasingEnabled reports whether the type's prototype still carries the
// bias pattern.
func (tr *TypeRegistry) BiasingEnabled(typeID primitives.TypeID) bool {
	return lockword.IsBiased(tr.PrototypeHeader(typeID))
}

// BulkRebias advances the type's epoch, invalidating every bias of this
// type currently held in the old epoch. Objects re-bias lazily on their
// next enter.
func (tr *TypeRegistry) BulkRebias(typeID primitives.TypeID) {
	p := tr.proto(typeID)
	if p == nil {
		return
	}
	for {
		old := lockword.Word(p.Load())
		if !lockword.IsBiased(old) {
			return
		}
		next := lockword.WithEpoch(old, lockword.EpochOf(old)+1)
		if p.CompareAndSwap(uint64(old), uint64(next)) {
			return
		}
	}
}

// DisableBiasing revokes biasing for the whole type. Existing biased
// headers fall through to the lightweight tier on their next enter.
func (tr *TypeRegistry) DisableBiasing(typeID primitives.TypeID) {
	p := tr.proto(typeID)
	if p == nil {
		return
	}
	for {
		old := lockword.Word(p.Load())
		if !lockword.IsBiased(old) {
			return
		}
		next := old &^ (lockword.BiasedBit | lockword.EpochMask)
		if p.CompareAndSwap(uint64(old), uint64(next)) {
			return
		}
	}
}

func (tr *TypeRegistry) proto(typeID primitives.TypeID) *atomic.Uint64 {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return tr.protos[typeID]
}
