package monitor

import (
	"testing"

	"tierlock/pkg/lockword"
)

func TestTypeRegistryDefaults(t *testing.T) {
	types := NewTypeRegistry()

	// Unregistered types read as plain unlocked and never bias.
	if types.BiasingEnabled(99) {
		t.Error("unregistered type must not be biasable")
	}
	if got := types.PrototypeHeader(99); got != lockword.Word(lockword.Unlocked) {
		t.Errorf("unregistered prototype is %#x", got)
	}
}

func TestTypeRegistryBiasablePrototype(t *testing.T) {
	types := NewTypeRegistry()
	types.Register(1, true)

	proto := types.PrototypeHeader(1)
	if !lockword.IsBiased(proto) {
		t.Error("biasable prototype must carry the bias pattern")
	}
	if lockword.EpochOf(proto) != 0 {
		t.Errorf("fresh prototype epoch is %d, want 0", lockword.EpochOf(proto))
	}
	if lockword.BiasOwnerOf(proto) != 0 {
		t.Error("prototype must be anonymously biased")
	}
}

func TestBulkRebiasAdvancesEpoch(t *testing.T) {
	types := NewTypeRegistry()
	types.Register(1, true)

	for want := uint8(1); want < 4; want++ {
		types.BulkRebias(1)
		if got := lockword.EpochOf(types.PrototypeHeader(1)); got != want {
			t.Fatalf("after %d bumps epoch is %d", want, got)
		}
	}

	// The two-bit epoch wraps.
	types.BulkRebias(1)
	if got := lockword.EpochOf(types.PrototypeHeader(1)); got != 0 {
		t.Errorf("epoch should wrap to 0, got %d", got)
	}
}

func TestDisableBiasing(t *testing.T) {
	types := NewTypeRegistry()
	types.Register(1, true)
	types.BulkRebias(1)

	types.DisableBiasing(1)

	proto := types.PrototypeHeader(1)
	if lockword.IsBiased(proto) {
		t.Error("disabled type must lose the bias pattern")
	}
	if lockword.StateOf(proto) != lockword.Unlocked {
		t.Errorf("disabled prototype has state %v", lockword.StateOf(proto))
	}
	if types.BiasingEnabled(1) {
		t.Error("BiasingEnabled must report false after disable")
	}

	// Both operations are no-ops on an already-unbiased prototype.
	types.BulkRebias(1)
	types.DisableBiasing(1)
	if types.PrototypeHeader(1) != proto {
		t.Error("operations on a revoked type must be no-ops")
	}
}
