package kernel

import (
	"fmt"
	"io"

	semver "github.com/Masterminds/semver/v3"

	"github.com/tephra-os/tephra/internal/arch"
	"github.com/tephra-os/tephra/internal/driver"
)

// The core drivers are thin capability-scoped views of the active backend.
// Registering them through the registry keeps the rest of the kernel on the
// same lookup path that hot-plugged drivers use.

// SerialConsole exposes the serial capability.
type SerialConsole struct {
	b arch.Backend
}

func (d *SerialConsole) DriverName() string             { return "serial-console" }
func (d *SerialConsole) DriverVersion() *semver.Version { return semver.MustParse("1.0.0") }

func (d *SerialConsole) DriverInit(w io.Writer) error {
	fmt.Fprintf(w, "serial console on %s\n", d.b.Name())
	return nil
}

// WriteString transmits s byte by byte.
func (d *SerialConsole) WriteString(s string) error {
	for i := 0; i < len(s); i++ {
		if err := d.b.SerialWriteByte(s[i]); err != nil {
			return err
		}
	}
	return nil
}

// ReadByte returns the next received byte, or HardwareNotReady.
func (d *SerialConsole) ReadByte() (byte, error) {
	return d.b.SerialReadByte()
}

// PS2Keyboard exposes the keyboard capability.
type PS2Keyboard struct {
	b arch.Backend
}

func (d *PS2Keyboard) DriverName() string             { return "ps2-keyboard" }
func (d *PS2Keyboard) DriverVersion() *semver.Version { return semver.MustParse("1.0.0") }
func (d *PS2Keyboard) DriverInit(io.Writer) error     { return nil }

// Poll returns the next pending scancode, or HardwareNotReady.
func (d *PS2Keyboard) Poll() (arch.Scancode, error) {
	return d.b.KeyboardPoll()
}

// PlatformTimer exposes the timer and interrupt capabilities.
type PlatformTimer struct {
	b arch.Backend
}

func (d *PlatformTimer) DriverName() string             { return "platform-timer" }
func (d *PlatformTimer) DriverVersion() *semver.Version { return semver.MustParse("1.0.0") }
func (d *PlatformTimer) DriverInit(io.Writer) error     { return nil }

// Start programs the periodic tick at hz with the given handler. A nil
// handler counts ticks without running kernel code.
func (d *PlatformTimer) Start(hz uint32, handler arch.TimerHandler) error {
	return d.b.ConfigureTimer(hz, handler)
}

// Ticks returns the tick count since boot.
func (d *PlatformTimer) Ticks() uint64 {
	return d.b.TimerTicks()
}

// Pager exposes the paging capability.
type Pager struct {
	b arch.Backend
}

func (d *Pager) DriverName() string             { return "pager" }
func (d *Pager) DriverVersion() *semver.Version { return semver.MustParse("1.0.0") }
func (d *Pager) DriverInit(io.Writer) error     { return nil }

func (d *Pager) Map(v arch.VirtAddr, p arch.PhysAddr, flags arch.PageFlags) error {
	return d.b.MapPage(v, p, flags)
}

func (d *Pager) Unmap(v arch.VirtAddr) error {
	return d.b.UnmapPage(v)
}

func (d *Pager) Translate(v arch.VirtAddr) (arch.PhysAddr, arch.PageFlags, error) {
	return d.b.TranslatePage(v)
}

// DebugPort exposes the debug-exit capability where the backend has one.
type DebugPort struct {
	b arch.Backend
}

func (d *DebugPort) DriverName() string             { return "debug-exit" }
func (d *DebugPort) DriverVersion() *semver.Version { return semver.MustParse("1.0.0") }
func (d *DebugPort) DriverInit(io.Writer) error     { return nil }

// Exit reports a harness outcome through the debug-exit mechanism.
func (d *DebugPort) Exit(code uint32) error {
	return d.b.DebugExit(code)
}

// RegisterCoreDrivers registers the backend-backed drivers under their
// capabilities.
func (k *Kernel) RegisterCoreDrivers() error {
	regs := []struct {
		d    driver.Driver
		caps []driver.Capability
	}{
		{&SerialConsole{b: k.backend}, []driver.Capability{driver.CapSerial}},
		{&PS2Keyboard{b: k.backend}, []driver.Capability{driver.CapKeyboard}},
		{&PlatformTimer{b: k.backend}, []driver.Capability{driver.CapTimer, driver.CapInterrupt}},
		{&Pager{b: k.backend}, []driver.Capability{driver.CapPaging}},
		{&DebugPort{b: k.backend}, []driver.Capability{driver.CapDebugExit}},
	}
	for _, r := range regs {
		if err := r.d.DriverInit(k.console); err != nil {
			return fmt.Errorf("core driver %s: %w", r.d.DriverName(), err)
		}
		if err := k.reg.Register(k.bootCtx, r.d, r.caps...); err != nil {
			return err
		}
		k.log.Debugf("driver", "%s %s: %v", r.d.DriverName(), r.d.DriverVersion(), r.caps)
	}
	return nil
}

// Console returns the registered serial console driver.
func (k *Kernel) Console() (*SerialConsole, error) {
	d, err := k.reg.LookupOne(k.bootCtx, driver.CapSerial)
	if err != nil {
		return nil, err
	}
	c, ok := d.(*SerialConsole)
	if !ok {
		return nil, fmt.Errorf("serial capability held by %s", d.DriverName())
	}
	return c, nil
}

// Keyboard returns the registered keyboard driver.
func (k *Kernel) Keyboard() (*PS2Keyboard, error) {
	d, err := k.reg.LookupOne(k.bootCtx, driver.CapKeyboard)
	if err != nil {
		return nil, err
	}
	kb, ok := d.(*PS2Keyboard)
	if !ok {
		return nil, fmt.Errorf("keyboard capability held by %s", d.DriverName())
	}
	return kb, nil
}

// Timer returns the registered platform timer driver.
func (k *Kernel) Timer() (*PlatformTimer, error) {
	d, err := k.reg.LookupOne(k.bootCtx, driver.CapTimer)
	if err != nil {
		return nil, err
	}
	tm, ok := d.(*PlatformTimer)
	if !ok {
		return nil, fmt.Errorf("timer capability held by %s", d.DriverName())
	}
	return tm, nil
}
