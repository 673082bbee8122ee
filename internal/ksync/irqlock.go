package ksync

// IntControl is the interrupt-masking surface an IRQLock needs from the
// active architecture backend. SetInterruptsEnabled returns the previous
// state so it can be restored on release.
type IntControl interface {
	SetInterruptsEnabled(enabled bool) (prev bool)
}

// IRQLock is a spinlock that keeps interrupts disabled on the local core for
// the full duration of the hold. It is required for any lock that may be
// needed both outside and inside an interrupt handler: without masking, a
// handler could interrupt its own core mid-critical-section and spin forever
// on a lock the interrupted flow already holds.
type IRQLock[T any] struct {
	lock SpinLock[T]
	intc IntControl
}

// NewIRQLock creates an interrupt-disabling spinlock protecting val.
func NewIRQLock[T any](class *LockClass, intc IntControl, val T) *IRQLock[T] {
	return &IRQLock[T]{
		lock: SpinLock[T]{class: class, val: val},
		intc: intc,
	}
}

// Acquire disables interrupts, then takes the lock. The prior interrupt
// state is restored when the guard is released.
func (l *IRQLock[T]) Acquire(xc *ExecContext) *IRQGuard[T] {
	prev := l.intc.SetInterruptsEnabled(false)
	g := l.lock.Acquire(xc)
	return &IRQGuard[T]{guard: g, intc: l.intc, prev: prev}
}

// TryAcquire disables interrupts and attempts to take the lock without
// spinning. On failure the prior interrupt state is restored before
// returning.
func (l *IRQLock[T]) TryAcquire(xc *ExecContext) (*IRQGuard[T], bool) {
	prev := l.intc.SetInterruptsEnabled(false)
	g, ok := l.lock.TryAcquire(xc)
	if !ok {
		l.intc.SetInterruptsEnabled(prev)
		return nil, false
	}
	return &IRQGuard[T]{guard: g, intc: l.intc, prev: prev}, true
}

// With acquires the lock with interrupts disabled, calls fn, and releases on
// every exit path.
func (l *IRQLock[T]) With(xc *ExecContext, fn func(*T)) {
	g := l.Acquire(xc)
	defer g.Release()
	fn(g.Value())
}

// IsLocked reports whether the lock is currently held; diagnostics only.
func (l *IRQLock[T]) IsLocked() bool {
	return l.lock.IsLocked()
}

// IRQGuard is a held IRQLock. Releasing it unlocks and restores the
// interrupt state that was in effect before acquisition.
type IRQGuard[T any] struct {
	guard *Guard[T]
	intc  IntControl
	prev  bool
}

// Value returns the protected value.
func (g *IRQGuard[T]) Value() *T {
	return g.guard.Value()
}

// Release unlocks and restores the prior interrupt state.
func (g *IRQGuard[T]) Release() {
	g.guard.Release()
	g.intc.SetInterruptsEnabled(g.prev)
}
