// Package lockword implements the bit-field codec for the header word of a
// lockable object.
//
// The word is a tagged union keyed by the two-bit lock state:
//
//	[ owner:54 | epoch:2 | unused:1 | age:4 | biased:1 | 01 ]  biased toward owner
//	[ 0        | epoch:2 | unused:1 | age:4 | biased:1 | 01 ]  anonymously biased
//	[ header bits                   | age:4 | 0        | 01 ]  unlocked
//	[ record handle                                    | 00 ]  lightweight locked
//	[ monitor handle                                   | 10 ]  inflated
//	[ reserved for the collector                       | 11 ]  marked
//
// Lock-record and monitor handles are aligned to eight bytes, so the three
// low bits of a handle payload are always clear and the tag can be ORed in
// without loss. The age field belongs to the garbage collector and must
// round-trip unchanged through every transition; no accessor here disturbs
// bits outside its own field.
package lockword

import "tierlock/pkg/primitives"

// Word is one header word. All lock-state transitions are expressed as pure
// functions over Word values; the atomic load/CAS lives with the object.
type Word uint64

// State is the two-bit lock-state tag in the lowest bits of a Word.
type State uint8

const (
	// LightLocked means the word holds a handle to a lock record on the
	// owning thread's scope stack.
	LightLocked State = 0b00
	// Unlocked is a regular header; the biased bit may additionally be set.
	Unlocked State = 0b01
	// Inflated means the word holds a handle to a heavyweight monitor.
	Inflated State = 0b10
	// Marked is reserved for the collector and never produced here.
	Marked State = 0b11
)

const (
	// TagMask covers the two lock-state bits.
	TagMask Word = 0b11
	// MonitorBit is set for both Inflated and Marked words; a single test
	// against it distinguishes "points at a monitor or is GC-claimed" from
	// the two thin states.
	MonitorBit Word = 0b10
	// BiasedBit marks an Unlocked word as biased.
	BiasedBit Word = 0b100
	// BiasMask covers the tag and the biased bit together.
	BiasMask Word = TagMask | BiasedBit
	// BiasPattern is the value of the masked low bits on every biased word.
	BiasPattern Word = BiasedBit | Word(Unlocked)

	AgeShift      = 3
	AgeMask  Word = 0xF << AgeShift

	EpochShift      = 8
	EpochMask  Word = 0b11 << EpochShift

	// OwnerShift positions a thread identity above the epoch field. The
	// identity field reaches to the top of the word.
	OwnerShift = 10
)

// StateOf decodes the lock-state tag.
func StateOf(w Word) State {
	return State(w & TagMask)
}

// WithState replaces the lock-state tag, leaving every other bit intact.
func WithState(w Word, s State) Word {
	return w&^TagMask | Word(s)
}

// IsBiased reports whether the full bias pattern is present. The pattern can
// never appear on a truly unlocked object because the biased bit is stolen
// from outside the age field.
func IsBiased(w Word) bool {
	return w&BiasMask == BiasPattern
}

// HasMonitor reports whether the word is in one of the two states that carry
// the monitor bit (Inflated or Marked).
func HasMonitor(w Word) bool {
	return w&MonitorBit != 0
}

// AgeOf decodes the collector-owned age field.
func AgeOf(w Word) uint8 {
	return uint8((w & AgeMask) >> AgeShift)
}

// WithAge replaces the age field only.
func WithAge(w Word, age uint8) Word {
	return w&^AgeMask | Word(age)<<AgeShift&AgeMask
}

// EpochOf decodes the bias epoch.
func EpochOf(w Word) uint8 {
	return uint8((w & EpochMask) >> EpochShift)
}

// WithEpoch replaces the bias epoch only.
func WithEpoch(w Word, epoch uint8) Word {
	return w&^EpochMask | Word(epoch)<<EpochShift&EpochMask
}

// BiasOwnerOf decodes the owning thread identity of a biased word. Zero
// means the bias is anonymous: the object is biasable but unowned.
func BiasOwnerOf(w Word) uint64 {
	return uint64(w >> OwnerShift)
}

// WithBiasOwner replaces the thread-identity field only.
func WithBiasOwner(w Word, owner uint64) Word {
	return w&(1<<OwnerShift-1) | Word(owner)<<OwnerShift
}

// RecordOf decodes the lock-record handle of a LightLocked word.
func RecordOf(w Word) primitives.Handle {
	return primitives.Handle(w &^ TagMask)
}

// WithRecord builds a LightLocked word publishing the given record handle.
// The handle's alignment leaves the tag bits clear.
func WithRecord(h primitives.Handle) Word {
	return WithState(Word(h), LightLocked)
}

// MonitorOf decodes the monitor handle of an Inflated word.
func MonitorOf(w Word) primitives.Handle {
	return primitives.Handle(w &^ TagMask)
}

// WithMonitor builds an Inflated word publishing the given monitor handle.
func WithMonitor(h primitives.Handle) Word {
	return WithState(Word(h), Inflated)
}

func (s State) String() string {
	switch s {
	case LightLocked:
		return "light-locked"
	case Unlocked:
		return "unlocked"
	case Inflated:
		return "inflated"
	case Marked:
		return "marked"
	}
	return "invalid"
}
