// Package ksync provides the busy-wait mutual exclusion primitives used to
// protect shared kernel state before any scheduler exists, together with an
// always-on lock dependency tracker that reports inconsistent acquisition
// orders the first time they are exercised instead of waiting for an actual
// deadlock to freeze the system.
//
// There is no blocking primitive beneath this layer, so acquisition never
// suspends: contended acquires spin with a CPU-yield hint. Correctness
// depends on callers keeping critical sections short. Locks that may be
// taken from both regular and interrupt contexts on the same core must use
// IRQLock so the interrupt cannot re-enter a lock its interrupted flow
// already holds.
package ksync

import (
	"runtime"
	"sync/atomic"
)

// yieldInterval controls how often a spinning acquirer yields the CPU.
const yieldInterval = 64

// SpinLock owns a protected value of type T and guarantees at most one
// holder at a time across all cores. Access to the value is only possible
// through a Guard obtained from Acquire or TryAcquire.
type SpinLock[T any] struct {
	state uint32
	class *LockClass
	val   T
}

// NewSpinLock creates a spinlock protecting val. The class is the lock's
// identity for dependency tracking; a nil class makes the lock untracked.
func NewSpinLock[T any](class *LockClass, val T) *SpinLock[T] {
	return &SpinLock[T]{class: class, val: val}
}

// Class returns the lock's tracking identity.
func (l *SpinLock[T]) Class() *LockClass {
	return l.class
}

// Acquire busy-waits until exclusive ownership is obtained and returns a
// guard bound to the calling context. If tracking is enabled the acquisition
// is checked against the dependency graph before it completes; re-acquiring
// a lock the context already holds is reported as a self deadlock and then
// panics, since spinning on it could never make progress.
func (l *SpinLock[T]) Acquire(xc *ExecContext) *Guard[T] {
	l.beforeAcquire(xc)

	spins := 0
	for !atomic.CompareAndSwapUint32(&l.state, 0, 1) {
		spins++
		if spins%yieldInterval == 0 {
			runtime.Gosched()
		}
	}

	l.afterAcquire(xc)
	return &Guard[T]{lock: l, xc: xc}
}

// TryAcquire attempts to take the lock without spinning. It fails
// immediately if the lock is held, including when the calling context itself
// holds it, which is what makes it safe inside interrupt handlers.
func (l *SpinLock[T]) TryAcquire(xc *ExecContext) (*Guard[T], bool) {
	if trackingCompiled && xc != nil && xc.holds(l) {
		return nil, false
	}
	if !atomic.CompareAndSwapUint32(&l.state, 0, 1) {
		return nil, false
	}

	if trackingCompiled && xc != nil {
		if v := globalGraph.recordAcquire(xc, l.class); v != nil {
			reportViolation(v)
		}
		xc.push(l.class, l)
	}
	return &Guard[T]{lock: l, xc: xc}, true
}

// With acquires the lock, calls fn with the protected value, and releases on
// every exit path.
func (l *SpinLock[T]) With(xc *ExecContext, fn func(*T)) {
	g := l.Acquire(xc)
	defer g.Release()
	fn(g.Value())
}

// IsLocked reports whether the lock is currently held. The result is
// immediately stale and must only be used for diagnostics.
func (l *SpinLock[T]) IsLocked() bool {
	return atomic.LoadUint32(&l.state) != 0
}

func (l *SpinLock[T]) beforeAcquire(xc *ExecContext) {
	if !trackingCompiled || xc == nil {
		return
	}
	if xc.holds(l) {
		v := &Violation{
			Kind:    ViolationSelfDeadlock,
			Context: xc.name,
			Class:   l.class,
			Held:    xc.heldClasses(),
		}
		reportViolation(v)
		// Spinning here could never complete. Even an advisory handler
		// gets no say: there is nothing left to proceed into.
		panic(v.Err())
	}
	if v := globalGraph.recordAcquire(xc, l.class); v != nil {
		reportViolation(v)
	}
}

func (l *SpinLock[T]) afterAcquire(xc *ExecContext) {
	if !trackingCompiled || xc == nil {
		return
	}
	xc.push(l.class, l)
}

// Guard is a held lock bound to the acquiring context. Release must be
// called exactly once, in reverse order of acquisition within the context.
type Guard[T any] struct {
	lock     *SpinLock[T]
	xc       *ExecContext
	released bool
}

// Value returns the protected value. It must not be retained past Release.
func (g *Guard[T]) Value() *T {
	if g.released {
		panic("ksync: use of released guard")
	}
	return &g.lock.val
}

// Release unlocks the guard. Out-of-order release within a context is
// reported to the violation handler; the lock is released regardless.
func (g *Guard[T]) Release() {
	if g.released {
		panic("ksync: double release")
	}
	g.released = true

	if trackingCompiled && g.xc != nil {
		if !g.xc.pop(g.lock) {
			reportViolation(&Violation{
				Kind:    ViolationBadRelease,
				Context: g.xc.name,
				Class:   g.lock.class,
				Held:    g.xc.heldClasses(),
			})
		}
	}
	atomic.StoreUint32(&g.lock.state, 0)
}
