//go:build notrack

package ksync

const trackingCompiled = false
