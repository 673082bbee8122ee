// Package kernel wires the foundational subsystems together: it validates
// the boot hand-over, brings up logging over the serial channel, owns the
// capability registry, and installs the lock violation handler that turns
// ordering bugs into a halt with diagnostics.
package kernel

import (
	"fmt"

	semver "github.com/Masterminds/semver/v3"

	"github.com/tephra-os/tephra/internal/arch"
	"github.com/tephra-os/tephra/internal/driver"
	"github.com/tephra-os/tephra/internal/kerror"
	"github.com/tephra-os/tephra/internal/klog"
	"github.com/tephra-os/tephra/internal/kopts"
	"github.com/tephra-os/tephra/internal/ksync"
)

// Version is the kernel ABI version that driver manifests constrain
// against.
var Version = semver.MustParse("1.0.0")

const defaultTimerHz = 100

// Kernel is the foundational layer instance. Exactly one exists per boot.
type Kernel struct {
	backend arch.Backend
	boot    *arch.BootInfo
	opts    *kopts.Options
	console *serialWriter
	log     *klog.Logger
	reg     *driver.Registry
	bootCtx *ksync.ExecContext

	prevViolation ksync.ViolationHandler
}

// New validates the boot hand-over and builds the kernel instance. The
// boot info is consumed here, exactly once; a rejected layout means the
// machine cannot be trusted and the caller must not continue.
func New(bi *arch.BootInfo, backend arch.Backend) (*Kernel, error) {
	if err := bi.Validate(); err != nil {
		return nil, kerror.UnrecoverableFault(fmt.Sprintf("boot hand-over rejected: %v", err))
	}

	k := &Kernel{
		backend: backend,
		boot:    bi,
		opts:    kopts.Parse(bi.Options),
		reg:     driver.NewRegistry(),
		bootCtx: ksync.NewExecContext("boot"),
	}
	k.console = &serialWriter{backend: backend}
	k.log = klog.New(k.console)
	k.log.ConfigureFromOptions(k.opts)
	k.opts.SetWarnFunc(func(format string, args ...interface{}) {
		k.log.Warnf("opts", format, args...)
	})

	k.prevViolation = ksync.SetViolationHandler(k.onLockViolation)
	return k, nil
}

// Boot runs the startup sequence: banner, memory map summary, core driver
// registration, and the periodic timer. The `hz` boot option overrides the
// default tick rate.
func (k *Kernel) Boot() error {
	k.log.Noticef("boot", "tephra %s on %s", Version, k.backend.Name())
	k.logMemoryMap()

	if err := k.RegisterCoreDrivers(); err != nil {
		return err
	}

	hz := uint64(defaultTimerHz)
	if v, ok := k.opts.Uint("hz"); ok {
		hz = v
	}
	timer, err := k.Timer()
	if err != nil {
		return err
	}
	if err := timer.Start(uint32(hz), nil); err != nil {
		return err
	}
	k.log.Infof("boot", "timer at %d Hz", hz)

	k.backend.SetInterruptsEnabled(true)
	return nil
}

func (k *Kernel) logMemoryMap() {
	for i, r := range k.boot.MemoryMap {
		k.log.Debugf("boot", "mem[%d] %#012x-%#012x %s",
			i, uint64(r.Base), uint64(r.End()), r.Kind)
	}
	k.log.Infof("boot", "%d KiB usable", k.boot.TotalUsable()/1024)
}

// Registry returns the capability registry.
func (k *Kernel) Registry() *driver.Registry {
	return k.reg
}

// Backend returns the active architecture backend.
func (k *Kernel) Backend() arch.Backend {
	return k.backend
}

// Log returns the kernel logger.
func (k *Kernel) Log() *klog.Logger {
	return k.log
}

// Options returns the parsed boot options.
func (k *Kernel) Options() *kopts.Options {
	return k.opts
}

// BootContext returns the execution context of the boot flow of control.
func (k *Kernel) BootContext() *ksync.ExecContext {
	return k.bootCtx
}

func (k *Kernel) onLockViolation(v *ksync.Violation) {
	k.Fatal("%s", v.String())
}

// Close restores the process-wide lock violation handler. It exists for
// harnesses that build and tear down kernels repeatedly; a booted kernel
// never calls it.
func (k *Kernel) Close() {
	ksync.SetViolationHandler(k.prevViolation)
}
