//go:build !linux

package x86real

import "github.com/tephra-os/tephra/internal/kerror"

func openPorts() (portIO, error) {
	return nil, kerror.Unsupported("port io on this platform")
}

func openPhysMapper() (physMapper, error) {
	return nil, kerror.Unsupported("phys window on this platform")
}
