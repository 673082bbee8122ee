package ksync

// LockClass is the identity a lock carries for dependency tracking. Locks
// created with a nil class are invisible to the tracker. Distinct lock
// instances protecting the same kind of state should share one class so
// that orderings observed on one instance constrain all of them.
type LockClass struct {
	name string
}

// NewLockClass creates a lock class with a diagnostic name.
func NewLockClass(name string) *LockClass {
	return &LockClass{name: name}
}

// Name returns the class's diagnostic name.
func (c *LockClass) Name() string {
	if c == nil {
		return "<untracked>"
	}
	return c.name
}
