//go:build !notrack

package ksync

// Lock dependency tracking is compiled in by default and removed with the
// "notrack" build tag.
const trackingCompiled = true
