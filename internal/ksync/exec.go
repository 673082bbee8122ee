package ksync

// ContextKind distinguishes the execution contexts that exist at this layer.
// There is no scheduler beneath the lock layer, so the only flows of control
// are the boot path and interrupt handlers.
type ContextKind uint8

const (
	ContextBoot ContextKind = iota
	ContextInterrupt
)

// ExecContext identifies one flow of control for the lock dependency
// tracker. It carries the ordered stack of locks currently held by that
// flow. A context must only ever be used by the single flow it was created
// for; it performs no internal synchronization.
type ExecContext struct {
	name string
	kind ContextKind
	held []heldLock
}

type heldLock struct {
	class *LockClass
	lock  any
}

// NewExecContext creates a context for a boot-path flow of control.
func NewExecContext(name string) *ExecContext {
	return &ExecContext{name: name, kind: ContextBoot}
}

// NewInterruptContext creates a context for an interrupt handler.
func NewInterruptContext(name string) *ExecContext {
	return &ExecContext{name: name, kind: ContextInterrupt}
}

// Name returns the context's diagnostic name.
func (xc *ExecContext) Name() string {
	return xc.name
}

// Kind returns the kind of flow this context represents.
func (xc *ExecContext) Kind() ContextKind {
	return xc.kind
}

// HeldCount returns the number of locks currently held by this context.
func (xc *ExecContext) HeldCount() int {
	return len(xc.held)
}

// heldClasses returns the distinct classes on the held stack, oldest first.
func (xc *ExecContext) heldClasses() []*LockClass {
	classes := make([]*LockClass, 0, len(xc.held))
	for _, h := range xc.held {
		if h.class == nil {
			continue
		}
		dup := false
		for _, c := range classes {
			if c == h.class {
				dup = true
				break
			}
		}
		if !dup {
			classes = append(classes, h.class)
		}
	}
	return classes
}

func (xc *ExecContext) holds(lock any) bool {
	for _, h := range xc.held {
		if h.lock == lock {
			return true
		}
	}
	return false
}

func (xc *ExecContext) push(class *LockClass, lock any) {
	xc.held = append(xc.held, heldLock{class: class, lock: lock})
}

// pop removes the topmost held lock. It reports whether the popped entry
// matches the lock being released; a mismatch is an out-of-order release.
func (xc *ExecContext) pop(lock any) bool {
	if len(xc.held) == 0 {
		return false
	}
	top := xc.held[len(xc.held)-1]
	if top.lock != lock {
		// Remove the entry wherever it is so advisory handlers can keep
		// the stack usable after reporting.
		for i := len(xc.held) - 1; i >= 0; i-- {
			if xc.held[i].lock == lock {
				xc.held = append(xc.held[:i], xc.held[i+1:]...)
				break
			}
		}
		return false
	}
	xc.held = xc.held[:len(xc.held)-1]
	return true
}
