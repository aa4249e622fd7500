package monitor

import (
	"sync"
	"testing"

	"tierlock/pkg/lockword"
	"tierlock/pkg/primitives"
)

const biasedType primitives.TypeID = 1

func newBiasedObject(t *testing.T) (*TypeRegistry, *Object) {
	t.Helper()
	types := NewTypeRegistry()
	types.Register(biasedType, true)
	return types, NewObject(biasedType, types)
}

func TestBiasFreshAcquire(t *testing.T) {
	types, obj := newBiasedObject(t)
	th := NewThread()
	bias := NewBiasProtocol(NopSink{})

	v := bias.AttemptEnter(obj, th, types.PrototypeHeader(biasedType))
	if v != BiasAcquired {
		t.Fatalf("expected BiasAcquired on anonymous bias, got %v", v)
	}

	mark := obj.Header()
	if !lockword.IsBiased(mark) {
		t.Error("header lost the bias pattern")
	}
	if lockword.BiasOwnerOf(mark) != th.ID().ID() {
		t.Errorf("bias owner is %d, want %d", lockword.BiasOwnerOf(mark), th.ID().ID())
	}
}

func TestBiasExistingHitLeavesHeaderUntouched(t *testing.T) {
	types, obj := newBiasedObject(t)
	th := NewThread()
	sink := NewCounterGroup("enters")
	bias := NewBiasProtocol(sink)

	if v := bias.AttemptEnter(obj, th, types.PrototypeHeader(biasedType)); v != BiasAcquired {
		t.Fatalf("setup acquire failed: %v", v)
	}
	before := obj.Header()

	if v := bias.AttemptEnter(obj, th, types.PrototypeHeader(biasedType)); v != BiasAcquired {
		t.Fatalf("expected re-enter hit, got %v", v)
	}

	if obj.Header() != before {
		t.Error("re-enter by the bias owner must not modify the header")
	}
	if sink.Value(PathLockBiasExisting) != 1 {
		t.Errorf("expected one %s, got %d", PathLockBiasExisting, sink.Value(PathLockBiasExisting))
	}
}

func TestBiasForeignOwnerEscalates(t *testing.T) {
	types, obj := newBiasedObject(t)
	owner := NewThread()
	intruder := NewThread()
	bias := NewBiasProtocol(NopSink{})

	bias.AttemptEnter(obj, owner, types.PrototypeHeader(biasedType))
	before := obj.Header()

	v := bias.AttemptEnter(obj, intruder, types.PrototypeHeader(biasedType))
	if v != BiasEscalate {
		t.Fatalf("expected BiasEscalate against a live foreign bias, got %v", v)
	}
	if obj.Header() != before {
		t.Error("a failed bias attempt must not corrupt the header")
	}
}

func TestBiasEpochExpiredTransfers(t *testing.T) {
	types, obj := newBiasedObject(t)
	owner := NewThread()
	next := NewThread()
	bias := NewBiasProtocol(NopSink{})

	bias.AttemptEnter(obj, owner, types.PrototypeHeader(biasedType))
	obj.StoreHeader(lockword.WithAge(obj.Header(), 5))

	types.BulkRebias(biasedType)

	v := bias.AttemptEnter(obj, next, types.PrototypeHeader(biasedType))
	if v != BiasAcquired {
		t.Fatalf("expected bias transfer after epoch bump, got %v", v)
	}

	mark := obj.Header()
	if lockword.BiasOwnerOf(mark) != next.ID().ID() {
		t.Errorf("bias did not transfer: owner is %d", lockword.BiasOwnerOf(mark))
	}
	if lockword.EpochOf(mark) != lockword.EpochOf(types.PrototypeHeader(biasedType)) {
		t.Error("transferred bias must carry the new epoch")
	}
	if lockword.AgeOf(mark) != 5 {
		t.Errorf("age must survive bias transfer, got %d", lockword.AgeOf(mark))
	}
}

func TestBiasTypeRevocationFallsThrough(t *testing.T) {
	types, obj := newBiasedObject(t)
	owner := NewThread()
	next := NewThread()
	bias := NewBiasProtocol(NopSink{})

	bias.AttemptEnter(obj, owner, types.PrototypeHeader(biasedType))
	obj.StoreHeader(lockword.WithAge(obj.Header(), 9))

	types.DisableBiasing(biasedType)

	v := bias.AttemptEnter(obj, next, types.PrototypeHeader(biasedType))
	if v != BiasFallthrough {
		t.Fatalf("expected fallthrough after type-level revoke, got %v", v)
	}

	mark := obj.Header()
	if lockword.IsBiased(mark) {
		t.Error("header should have been reset to the unbiased prototype")
	}
	if lockword.StateOf(mark) != lockword.Unlocked {
		t.Errorf("reset header has state %v", lockword.StateOf(mark))
	}
	if lockword.AgeOf(mark) != 9 {
		t.Errorf("age must survive the revocation reset, got %d", lockword.AgeOf(mark))
	}
}

func TestBiasRevocationResetIsIdempotent(t *testing.T) {
	types, obj := newBiasedObject(t)
	owner := NewThread()
	bias := NewBiasProtocol(NopSink{})
	bias.AttemptEnter(obj, owner, types.PrototypeHeader(biasedType))
	types.DisableBiasing(biasedType)

	// Two threads racing the reset must both fall through; whichever CAS
	// loses, some thread removed the bias bit.
	for i := 0; i < 2; i++ {
		v := bias.AttemptEnter(obj, NewThread(), types.PrototypeHeader(biasedType))
		if v != BiasFallthrough {
			t.Fatalf("attempt %d: expected fallthrough, got %v", i, v)
		}
	}
}

func TestBiasNonBiasableFallsThrough(t *testing.T) {
	types := NewTypeRegistry()
	types.Register(2, false)
	obj := NewObject(2, types)
	bias := NewBiasProtocol(NopSink{})

	v := bias.AttemptEnter(obj, NewThread(), types.PrototypeHeader(2))
	if v != BiasFallthrough {
		t.Fatalf("expected fallthrough for a non-biasable type, got %v", v)
	}
	if obj.Header() != lockword.Word(lockword.Unlocked) {
		t.Error("fallthrough must not touch a plain unlocked header")
	}
}

func TestBiasFreshRaceHasExactlyOneWinner(t *testing.T) {
	for round := 0; round < 50; round++ {
		types, obj := newBiasedObject(t)
		bias := NewBiasProtocol(NopSink{})

		var wg sync.WaitGroup
		results := make([]BiasVerdict, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(slot int) {
				defer wg.Done()
				results[slot] = bias.AttemptEnter(obj, NewThread(), types.PrototypeHeader(biasedType))
			}(i)
		}
		wg.Wait()

		acquired := 0
		for _, v := range results {
			switch v {
			case BiasAcquired:
				acquired++
			case BiasEscalate:
				// The loser must escalate, never fall through.
			default:
				t.Fatalf("round %d: unexpected verdict %v", round, v)
			}
		}
		if acquired != 1 {
			t.Fatalf("round %d: %d threads acquired the fresh bias", round, acquired)
		}
		if !lockword.IsBiased(obj.Header()) {
			t.Fatalf("round %d: header corrupted by the race", round)
		}
	}
}

func TestBiasExit(t *testing.T) {
	types, obj := newBiasedObject(t)
	th := NewThread()
	bias := NewBiasProtocol(NopSink{})
	bias.AttemptEnter(obj, th, types.PrototypeHeader(biasedType))

	before := obj.Header()
	if !bias.AttemptExit(obj) {
		t.Fatal("exit of a biased object must succeed as a no-op")
	}
	if obj.Header() != before {
		t.Error("bias exit must not modify the header")
	}

	obj.StoreHeader(lockword.Word(lockword.Unlocked))
	if bias.AttemptExit(obj) {
		t.Error("exit of an unbiased object is not the bias tier's to handle")
	}
}
