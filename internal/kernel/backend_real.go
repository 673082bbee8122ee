//go:build !hwsim

package kernel

import (
	"github.com/tephra-os/tephra/internal/arch"
	"github.com/tephra-os/tephra/internal/arch/x86real"
)

// SelectBackend returns the backend this image was built for. The real
// backend drives physical hardware; build with the hwsim tag to get the
// deterministic verification backend instead.
func SelectBackend() (arch.Backend, error) {
	return x86real.New()
}
