package ksync

import (
	"errors"
	"sync"
	"testing"

	"github.com/tephra-os/tephra/internal/kerror"
)

func TestSpinLock_Basic(t *testing.T) {
	l := NewSpinLock(NewLockClass("test.basic"), 0)
	xc := NewExecContext("boot")

	if l.IsLocked() {
		t.Fatal("new lock reported locked")
	}

	g := l.Acquire(xc)
	if !l.IsLocked() {
		t.Fatal("acquired lock reported unlocked")
	}
	*g.Value() = 41
	g.Release()

	if l.IsLocked() {
		t.Fatal("released lock reported locked")
	}

	l.With(xc, func(v *int) { *v++ })
	g = l.Acquire(xc)
	if got := *g.Value(); got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
	g.Release()
}

func TestSpinLock_MutualExclusion(t *testing.T) {
	l := NewSpinLock(NewLockClass("test.mutex"), 0)

	workers := 8
	iters := 2000
	wg := sync.WaitGroup{}
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			xc := NewExecContext("worker")
			for i := 0; i < iters; i++ {
				l.With(xc, func(v *int) { *v++ })
			}
		}(w)
	}
	wg.Wait()

	g := l.Acquire(NewExecContext("check"))
	defer g.Release()
	if got := *g.Value(); got != workers*iters {
		t.Fatalf("lost updates: got %d, want %d", got, workers*iters)
	}
}

func TestSpinLock_TryAcquire(t *testing.T) {
	l := NewSpinLock(NewLockClass("test.try"), struct{}{})
	xc := NewExecContext("boot")
	irq := NewInterruptContext("irq")

	g, ok := l.TryAcquire(xc)
	if !ok {
		t.Fatal("try on free lock failed")
	}

	// Another context must fail immediately while the lock is held.
	if _, ok := l.TryAcquire(irq); ok {
		t.Fatal("try on held lock succeeded")
	}

	// The holding context must fail too, not deadlock or panic.
	if _, ok := l.TryAcquire(xc); ok {
		t.Fatal("re-entrant try succeeded")
	}

	g.Release()
	g, ok = l.TryAcquire(irq)
	if !ok {
		t.Fatal("try after release failed")
	}
	g.Release()
}

func TestSpinLock_SelfDeadlock(t *testing.T) {
	l := NewSpinLock(NewLockClass("test.self"), struct{}{})
	xc := NewExecContext("boot")

	var seen []*Violation
	prev := SetViolationHandler(func(v *Violation) { seen = append(seen, v) })
	defer SetViolationHandler(prev)

	g := l.Acquire(xc)
	defer g.Release()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("re-acquisition did not panic")
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, kerror.ErrLockOrderViolation) {
			t.Fatalf("unexpected panic value: %v", r)
		}
		if len(seen) != 1 || seen[0].Kind != ViolationSelfDeadlock {
			t.Fatalf("expected one self-deadlock violation, got %v", seen)
		}
	}()
	l.Acquire(xc)
}

func TestSpinLock_OutOfOrderRelease(t *testing.T) {
	a := NewSpinLock(NewLockClass("test.rel.a"), struct{}{})
	b := NewSpinLock(NewLockClass("test.rel.b"), struct{}{})
	xc := NewExecContext("boot")

	var seen []*Violation
	prev := SetViolationHandler(func(v *Violation) { seen = append(seen, v) })
	defer SetViolationHandler(prev)

	ga := a.Acquire(xc)
	gb := b.Acquire(xc)

	ga.Release()
	if len(seen) != 1 || seen[0].Kind != ViolationBadRelease {
		t.Fatalf("expected out-of-order release violation, got %v", seen)
	}

	gb.Release()
	if xc.HeldCount() != 0 {
		t.Fatalf("held stack not empty: %d", xc.HeldCount())
	}
}

type fakeIntControl struct {
	enabled bool
}

func (f *fakeIntControl) SetInterruptsEnabled(enabled bool) bool {
	prev := f.enabled
	f.enabled = enabled
	return prev
}

func TestIRQLock_RestoresInterruptState(t *testing.T) {
	intc := &fakeIntControl{enabled: true}
	l := NewIRQLock(NewLockClass("test.irq"), intc, 0)
	xc := NewExecContext("boot")

	g := l.Acquire(xc)
	if intc.enabled {
		t.Fatal("interrupts enabled while IRQ lock held")
	}
	*g.Value() = 7
	g.Release()
	if !intc.enabled {
		t.Fatal("interrupt state not restored after release")
	}

	// When interrupts were already off, release must keep them off.
	intc.SetInterruptsEnabled(false)
	g = l.Acquire(xc)
	g.Release()
	if intc.enabled {
		t.Fatal("release enabled interrupts that were off before acquire")
	}
}

func TestIRQLock_TryAcquireRestoresOnFailure(t *testing.T) {
	intc := &fakeIntControl{enabled: true}
	l := NewIRQLock(NewLockClass("test.irqtry"), intc, 0)
	boot := NewExecContext("boot")
	irq := NewInterruptContext("irq")

	g := l.Acquire(boot)
	if _, ok := l.TryAcquire(irq); ok {
		t.Fatal("try on held IRQ lock succeeded")
	}
	if intc.enabled {
		t.Fatal("failed try left interrupts enabled inside critical section")
	}
	g.Release()
	if !intc.enabled {
		t.Fatal("interrupt state not restored")
	}
}
