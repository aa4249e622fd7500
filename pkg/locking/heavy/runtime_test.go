package heavy

import (
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"tierlock/pkg/locking/monitor"
	"tierlock/pkg/lockword"
	"tierlock/pkg/primitives"
)

const testType primitives.TypeID = 1

func newHarness(biasable bool) (*monitor.Manager, *monitor.TypeRegistry, *Runtime) {
	types := monitor.NewTypeRegistry()
	types.Register(testType, biasable)
	rt := NewRuntime(types)
	mgr := monitor.NewManager(types, rt.Table(), rt)
	return mgr, types, rt
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestContendedMutualExclusion(t *testing.T) {
	const (
		workers    = 8
		iterations = 500
	)
	mgr, _, _ := newHarness(false)
	obj := monitor.NewObjectWithHeader(testType, lockword.WithAge(lockword.Word(lockword.Unlocked), 4))

	// The counter is deliberately unsynchronized: only the object lock
	// protects it. Any mutual-exclusion failure shows up as a lost update.
	counter := 0

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			th := monitor.NewThread()
			for i := 0; i < iterations; i++ {
				if err := mgr.Enter(obj, th); err != nil {
					return err
				}
				counter++
				if err := mgr.Exit(obj, th); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("worker failed: %v", err)
	}

	if counter != workers*iterations {
		t.Errorf("lost updates: counter is %d, want %d", counter, workers*iterations)
	}
	if lockword.AgeOf(obj.Header()) != 4 {
		t.Errorf("age corrupted under contention: %d", lockword.AgeOf(obj.Header()))
	}
}

func TestInflationWhileStackLocked(t *testing.T) {
	mgr, _, rt := newHarness(false)
	obj := monitor.NewObjectWithHeader(testType, lockword.WithAge(lockword.Word(lockword.Unlocked), 7))
	original := obj.Header()

	holder := monitor.NewThread()
	if err := mgr.Enter(obj, holder); err != nil {
		t.Fatalf("holder enter failed: %v", err)
	}
	if lockword.StateOf(obj.Header()) != lockword.LightLocked {
		t.Fatal("holder should have stack-locked the object")
	}

	acquired := make(chan error, 1)
	go func() {
		th := monitor.NewThread()
		if err := mgr.Enter(obj, th); err != nil {
			acquired <- err
			return
		}
		acquired <- mgr.Exit(obj, th)
	}()

	// The contender inflates the stack lock and blocks on the monitor.
	waitFor(t, "inflation", func() bool {
		return lockword.StateOf(obj.Header()) == lockword.Inflated
	})
	select {
	case err := <-acquired:
		t.Fatalf("contender got the lock while it was held: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	// The holder's lightweight exit must escalate and hand off.
	if err := mgr.Exit(obj, holder); err != nil {
		t.Fatalf("holder exit failed: %v", err)
	}
	if err := <-acquired; err != nil {
		t.Fatalf("contender failed: %v", err)
	}

	// With the monitor idle again, deflation restores the original word.
	waitFor(t, "deflation", func() bool { return rt.DeflateIdle(obj) })
	if obj.Header() != original {
		t.Errorf("deflated header is %#x, want %#x", obj.Header(), original)
	}
	if rt.Table().Len() != 0 {
		t.Errorf("monitor table still holds %d monitors", rt.Table().Len())
	}
}

func TestRecursionAcrossInflation(t *testing.T) {
	mgr, _, _ := newHarness(false)
	obj := monitor.NewObjectWithHeader(testType, lockword.Word(lockword.Unlocked))

	holder := monitor.NewThread()
	if err := mgr.Enter(obj, holder); err != nil {
		t.Fatalf("outer enter failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		th := monitor.NewThread()
		if err := mgr.Enter(obj, th); err != nil {
			done <- err
			return
		}
		done <- mgr.Exit(obj, th)
	}()
	waitFor(t, "inflation", func() bool {
		return lockword.StateOf(obj.Header()) == lockword.Inflated
	})

	// Re-enter while the word points at a monitor that knows this thread
	// only by its stack record.
	if err := mgr.Enter(obj, holder); err != nil {
		t.Fatalf("recursive enter failed: %v", err)
	}
	if err := mgr.Exit(obj, holder); err != nil {
		t.Fatalf("recursive exit failed: %v", err)
	}

	select {
	case err := <-done:
		t.Fatalf("contender got the lock during recursion: %v", err)
	default:
	}

	if err := mgr.Exit(obj, holder); err != nil {
		t.Fatalf("outer exit failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("contender failed: %v", err)
	}
}

func TestQueuedWaitersAllFinish(t *testing.T) {
	const contenders = 6
	mgr, _, _ := newHarness(false)
	obj := monitor.NewObjectWithHeader(testType, lockword.Word(lockword.Unlocked))

	holder := monitor.NewThread()
	if err := mgr.Enter(obj, holder); err != nil {
		t.Fatalf("holder enter failed: %v", err)
	}

	var g errgroup.Group
	started := make(chan struct{}, contenders)
	for i := 0; i < contenders; i++ {
		g.Go(func() error {
			th := monitor.NewThread()
			started <- struct{}{}
			if err := mgr.Enter(obj, th); err != nil {
				return err
			}
			time.Sleep(time.Millisecond)
			return mgr.Exit(obj, th)
		})
	}
	for i := 0; i < contenders; i++ {
		<-started
	}
	time.Sleep(10 * time.Millisecond)

	if err := mgr.Exit(obj, holder); err != nil {
		t.Fatalf("holder exit failed: %v", err)
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("a queued contender failed: %v", err)
	}
}

func TestEnterSlowRevokesStaleBias(t *testing.T) {
	mgr, types, rt := newHarness(true)
	sink := monitor.NewCounterGroup("slow")
	rt.SetDiagnostics(sink)

	obj := monitor.NewObject(testType, types)
	obj.StoreHeader(lockword.WithAge(obj.Header(), 5))

	// Bias the object to a thread that never enters again.
	absentee := monitor.NewThread()
	if err := mgr.Enter(obj, absentee); err != nil {
		t.Fatalf("bias enter failed: %v", err)
	}
	if err := mgr.Exit(obj, absentee); err != nil {
		t.Fatalf("bias exit failed: %v", err)
	}

	// A foreign thread's enter escalates and revokes the stale bias.
	th := monitor.NewThread()
	if err := mgr.Enter(obj, th); err != nil {
		t.Fatalf("revoking enter failed: %v", err)
	}
	if lockword.StateOf(obj.Header()) != lockword.LightLocked {
		t.Errorf("expected a stack lock after revocation, header is %v", lockword.StateOf(obj.Header()))
	}
	if sink.Value(monitor.PathRevokeBias) == 0 {
		t.Error("revocation was not counted")
	}

	if err := mgr.Exit(obj, th); err != nil {
		t.Fatalf("exit failed: %v", err)
	}
	got := obj.Header()
	if lockword.IsBiased(got) {
		t.Error("bias must not survive revocation")
	}
	if lockword.AgeOf(got) != 5 {
		t.Errorf("age must survive revocation, got %d", lockword.AgeOf(got))
	}
}

func TestDeflateIdlePreconditions(t *testing.T) {
	mgr, _, rt := newHarness(false)
	obj := monitor.NewObjectWithHeader(testType, lockword.Word(lockword.Unlocked))

	// Not inflated.
	if rt.DeflateIdle(obj) {
		t.Error("deflation of a thin lock must fail")
	}

	// Inflate by contending, then hold through the monitor.
	holder := monitor.NewThread()
	if err := mgr.Enter(obj, holder); err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() {
		th := monitor.NewThread()
		if err := mgr.Enter(obj, th); err != nil {
			done <- err
			return
		}
		done <- mgr.Exit(obj, th)
	}()
	waitFor(t, "inflation", func() bool {
		return lockword.StateOf(obj.Header()) == lockword.Inflated
	})

	if rt.DeflateIdle(obj) {
		t.Error("deflation must fail while the monitor is owned")
	}

	if err := mgr.Exit(obj, holder); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	waitFor(t, "deflation", func() bool { return rt.DeflateIdle(obj) })
	if lockword.StateOf(obj.Header()) != lockword.Unlocked {
		t.Errorf("deflated object has state %v", lockword.StateOf(obj.Header()))
	}
}
