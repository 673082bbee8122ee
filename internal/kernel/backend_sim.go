//go:build hwsim

package kernel

import (
	"github.com/tephra-os/tephra/internal/arch"
	"github.com/tephra-os/tephra/internal/arch/sim"
)

// SelectBackend returns the backend this image was built for. Under the
// hwsim tag that is the deterministic verification backend.
func SelectBackend() (arch.Backend, error) {
	return sim.New(), nil
}
