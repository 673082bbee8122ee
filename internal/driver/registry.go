package driver

import (
	"fmt"
	"iter"
	"sort"

	"github.com/tephra-os/tephra/internal/kerror"
	"github.com/tephra-os/tephra/internal/ksync"
)

type registryState struct {
	byCap map[Capability][]Driver
	names map[string]struct{}
}

// Registry maps capabilities to the registered drivers implementing them,
// in registration order. Mutation is rare (boot, occasional hot-plug) and
// correctness beats read throughput, so every access, read or write,
// serializes through one spinlock.
type Registry struct {
	lock *ksync.SpinLock[registryState]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		lock: ksync.NewSpinLock(ksync.NewLockClass("driver.registry"), registryState{
			byCap: make(map[Capability][]Driver),
			names: make(map[string]struct{}),
		}),
	}
}

// Register inserts drv under each listed capability tag. The same driver
// identity may be registered only once; a duplicate fails with
// AlreadyRegistered and leaves the registry untouched.
func (r *Registry) Register(xc *ksync.ExecContext, drv Driver, caps ...Capability) error {
	name := drv.DriverName()
	if name == "" {
		return fmt.Errorf("driver: register: empty driver name")
	}
	if len(caps) == 0 {
		return fmt.Errorf("driver: register %q: no capabilities declared", name)
	}

	g := r.lock.Acquire(xc)
	defer g.Release()
	st := g.Value()

	if _, dup := st.names[name]; dup {
		return kerror.AlreadyRegistered(name)
	}

	st.names[name] = struct{}{}
	seen := make(map[Capability]struct{}, len(caps))
	for _, c := range caps {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		st.byCap[c] = append(st.byCap[c], drv)
	}
	return nil
}

// Lookup returns a lazy, finite, restartable sequence of the drivers
// implementing the capability, in registration order. The sequence iterates
// a snapshot taken at call time, so it stays identical however often it is
// restarted; a new Lookup after a mutation observes the mutation.
func (r *Registry) Lookup(xc *ksync.ExecContext, c Capability) iter.Seq[Driver] {
	g := r.lock.Acquire(xc)
	drivers := g.Value().byCap[c]
	snapshot := make([]Driver, len(drivers))
	copy(snapshot, drivers)
	g.Release()

	return func(yield func(Driver) bool) {
		for _, d := range snapshot {
			if !yield(d) {
				return
			}
		}
	}
}

// LookupOne returns the first driver registered under the capability, or
// CapabilityNotFound.
func (r *Registry) LookupOne(xc *ksync.ExecContext, c Capability) (Driver, error) {
	g := r.lock.Acquire(xc)
	defer g.Release()

	drivers := g.Value().byCap[c]
	if len(drivers) == 0 {
		return nil, kerror.CapabilityNotFound(string(c))
	}
	return drivers[0], nil
}

// Count returns the number of distinct registered drivers.
func (r *Registry) Count(xc *ksync.ExecContext) int {
	g := r.lock.Acquire(xc)
	defer g.Release()
	return len(g.Value().names)
}

// Capabilities returns the capabilities that currently have at least one
// driver, sorted for stable diagnostics.
func (r *Registry) Capabilities(xc *ksync.ExecContext) []Capability {
	g := r.lock.Acquire(xc)
	caps := make([]Capability, 0, len(g.Value().byCap))
	for c := range g.Value().byCap {
		caps = append(caps, c)
	}
	g.Release()

	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}
