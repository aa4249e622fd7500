package monitor

import (
	"sync/atomic"

	"tierlock/pkg/lockword"
	"tierlock/pkg/primitives"
)

// Object is a lockable object. Its only shared state is the header word,
// which every protocol mutates in place through compare-and-swap; the word
// is never reallocated for the lifetime of the object.
type Object struct {
	typeID primitives.TypeID
	header atomic.Uint64
}

// NewObject creates an object of the given type with the type's current
// prototype header, mirroring allocation in a managed heap.
func NewObject(typeID primitives.TypeID, types *TypeRegistry) *Object {
	o := &Object{typeID: typeID}
	o.header.Store(uint64(types.PrototypeHeader(typeID)))
	return o
}

// NewObjectWithHeader creates an object with an explicit initial header.
// Used by tests and by collectors that stamp age bits at allocation.
func NewObjectWithHeader(typeID primitives.TypeID, header lockword.Word) *Object {
	o := &Object{typeID: typeID}
	o.header.Store(uint64(header))
	return o
}

func (o *Object) Type() primitives.TypeID {
	return o.typeID
}

// Header loads the current header word.
func (o *Object) Header() lockword.Word {
	return lockword.Word(o.header.Load())
}

// CompareAndSwapHeader publishes a header transition. The comparand must be
// the exact previously observed word; reconstructed approximations lose
// concurrent bias and revoke updates.
func (o *Object) CompareAndSwapHeader(old, new lockword.Word) bool {
	return o.header.CompareAndSwap(uint64(old), uint64(new))
}

// StoreHeader overwrites the header unconditionally. Reserved for external
// owners of the word (the collector and test setup); protocols only CAS.
func (o *Object) StoreHeader(w lockword.Word) {
	o.header.Store(uint64(w))
}
