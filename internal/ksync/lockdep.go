package ksync

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/tephra-os/tephra/internal/kerror"
)

// ============================================================================
// Lock dependency graph
// ============================================================================

// Graph is the process-wide record of observed lock-acquisition orders. It
// stores directed edges "class A was held while class B was acquired".
// Edges are only ever added, never removed, so any previously seen ordering
// remains checkable for the life of the process.
type Graph struct {
	mu   rawMutex
	succ map[*LockClass]map[*LockClass]struct{}
}

// globalGraph accumulates orderings for the life of the process.
var globalGraph = &Graph{succ: make(map[*LockClass]map[*LockClass]struct{})}

// TrackingEnabled reports whether lock dependency tracking was compiled in.
func TrackingEnabled() bool {
	return trackingCompiled
}

// recordAcquire checks and records the orderings implied by ctx acquiring a
// lock of the given class while its current held stack is in place. It
// returns a violation if some new edge runs opposite to an existing
// reachable path. The check is incremental: only edges not already present
// trigger a reachability walk, and the walk starts from the new edge's
// target rather than re-scanning the whole graph.
func (g *Graph) recordAcquire(xc *ExecContext, class *LockClass) *Violation {
	if class == nil {
		return nil
	}

	held := xc.heldClasses()
	if len(held) == 0 {
		return nil
	}

	g.mu.lock()
	defer g.mu.unlock()

	for _, hc := range held {
		if hc == class {
			// Nesting two locks of the same class carries no ordering
			// information the graph can represent.
			continue
		}
		if g.hasEdge(hc, class) {
			continue
		}
		if g.reachable(class, hc) {
			return &Violation{
				Kind:     ViolationOrder,
				Context:  xc.name,
				Class:    class,
				Conflict: hc,
				Held:     held,
			}
		}
		g.addEdge(hc, class)
	}

	return nil
}

func (g *Graph) hasEdge(from, to *LockClass) bool {
	next, ok := g.succ[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

func (g *Graph) addEdge(from, to *LockClass) {
	next, ok := g.succ[from]
	if !ok {
		next = make(map[*LockClass]struct{})
		g.succ[from] = next
	}
	next[to] = struct{}{}
}

// reachable walks successor sets depth-first looking for a path from one
// class to another. Caller must hold g.mu.
func (g *Graph) reachable(from, to *LockClass) bool {
	if from == to {
		return true
	}
	visited := map[*LockClass]struct{}{from: {}}
	stack := []*LockClass{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for next := range g.succ[cur] {
			if next == to {
				return true
			}
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			stack = append(stack, next)
		}
	}
	return false
}

// ============================================================================
// Violations
// ============================================================================

// ViolationKind classifies what the tracker observed.
type ViolationKind uint8

const (
	// ViolationOrder is an acquisition running opposite to a previously
	// recorded ordering.
	ViolationOrder ViolationKind = iota
	// ViolationSelfDeadlock is a context re-acquiring a lock it already
	// holds.
	ViolationSelfDeadlock
	// ViolationBadRelease is a release out of LIFO order within a context.
	ViolationBadRelease
)

func (k ViolationKind) String() string {
	switch k {
	case ViolationOrder:
		return "inconsistent lock order"
	case ViolationSelfDeadlock:
		return "self deadlock"
	case ViolationBadRelease:
		return "out-of-order release"
	default:
		return "unknown violation"
	}
}

// Violation describes a lock discipline error detected by the tracker.
type Violation struct {
	Kind     ViolationKind
	Context  string
	Class    *LockClass
	Conflict *LockClass
	Held     []*LockClass
}

func (v *Violation) String() string {
	switch v.Kind {
	case ViolationOrder:
		return fmt.Sprintf("%s: context %q acquired %s while holding %s, but %s is already ordered before %s",
			v.Kind, v.Context, v.Class.Name(), v.Conflict.Name(), v.Class.Name(), v.Conflict.Name())
	case ViolationSelfDeadlock:
		return fmt.Sprintf("%s: context %q re-acquired %s without releasing it", v.Kind, v.Context, v.Class.Name())
	default:
		return fmt.Sprintf("%s: context %q released %s out of acquisition order", v.Kind, v.Context, v.Class.Name())
	}
}

// Err returns the violation as a fatal kernel error.
func (v *Violation) Err() *kerror.Error {
	return kerror.LockOrderViolation(v.String())
}

// ============================================================================
// Violation reporting
// ============================================================================

// ViolationHandler receives detected violations. The handler decides whether
// a violation is advisory or fatal; the default handler panics, since there
// is no lower-level system to recover into.
type ViolationHandler func(*Violation)

var violationHandler atomic.Value // ViolationHandler

// SetViolationHandler installs the process-wide violation handler and
// returns the previous one.
func SetViolationHandler(fn ViolationHandler) ViolationHandler {
	prev := currentViolationHandler()
	violationHandler.Store(fn)
	return prev
}

func currentViolationHandler() ViolationHandler {
	if fn, ok := violationHandler.Load().(ViolationHandler); ok && fn != nil {
		return fn
	}
	return defaultViolationHandler
}

func defaultViolationHandler(v *Violation) {
	panic(v.Err())
}

func reportViolation(v *Violation) {
	currentViolationHandler()(v)
}

// ============================================================================
// Raw mutex
// ============================================================================

// rawMutex is a minimal test-and-set lock used by the tracker itself. It is
// deliberately outside dependency tracking.
type rawMutex struct {
	state uint32
}

func (m *rawMutex) lock() {
	spins := 0
	for !atomic.CompareAndSwapUint32(&m.state, 0, 1) {
		spins++
		if spins%yieldInterval == 0 {
			runtime.Gosched()
		}
	}
}

func (m *rawMutex) unlock() {
	atomic.StoreUint32(&m.state, 0)
}
