// Package arch defines the hardware abstraction boundary of the Tephra
// kernel: the contract every architecture backend must satisfy, the
// address and page types shared by all of them, and the boot-time memory
// layout handed over by the boot collaborator.
//
// Exactly one backend is active per built kernel image. The choice is a
// build-time decision; kernel code above this package must never branch on
// which backend is running.
package arch

import "errors"

// PhysAddr is a physical memory address.
type PhysAddr uint64

// VirtAddr is a virtual memory address.
type VirtAddr uint64

// PageSize is the only page granularity supported at this layer.
const PageSize = 4096

// PageFlags describe the access rights of a mapped page.
type PageFlags uint16

const (
	PageWritable PageFlags = 1 << iota
	PageExecutable
	PageUser
)

// Scancode is one raw byte from the keyboard controller. Multi-byte
// sequences are delivered one byte per poll.
type Scancode uint8

// ErrPageNotMapped is returned by page operations on an unmapped virtual
// address.
var ErrPageNotMapped = errors.New("arch: page not mapped")

// ErrUnalignedAddress is returned by page operations on addresses that are
// not page aligned.
var ErrUnalignedAddress = errors.New("arch: address not page aligned")

// TimerHandler is invoked on each periodic timer tick while interrupts are
// enabled. Handlers run in interrupt context and must not block.
type TimerHandler func()

// Backend is the contract between the kernel and the hardware, satisfied by
// exactly two closed implementations: the real backend driving physical
// devices and the verification backend simulating them deterministically.
//
// Every operation must be callable with interrupts enabled or disabled,
// perform no dynamic allocation on its hot path, and complete in bounded
// time. Failures are typed (kerror taxonomy); no operation may abort the
// system except Halt, which is reserved for truly unrecoverable states.
type Backend interface {
	// Name identifies the backend in diagnostics only. Kernel logic must
	// not branch on it.
	Name() string

	// SerialWriteByte writes one byte to the diagnostic serial channel.
	// Returns HardwareTimeout if the transmitter does not drain within
	// the backend's bounded wait.
	SerialWriteByte(b byte) error

	// SerialReadByte reads one byte from the serial channel without
	// blocking. Returns HardwareNotReady if no byte is available.
	SerialReadByte() (byte, error)

	// KeyboardPoll returns the next pending scancode without blocking.
	// Returns HardwareNotReady if none is pending.
	KeyboardPoll() (Scancode, error)

	// SetInterruptsEnabled enables or disables interrupt delivery on the
	// current core, returning the prior state so it can be restored.
	SetInterruptsEnabled(enabled bool) (prev bool)

	// InterruptsEnabled reports the current interrupt delivery state.
	InterruptsEnabled() bool

	// ConfigureTimer programs the periodic timer to hz ticks per second
	// and installs the handler run on each tick.
	ConfigureTimer(hz uint32, handler TimerHandler) error

	// TimerTicks returns the number of timer ticks since boot.
	TimerTicks() uint64

	// MapPage maps one virtual page to one physical page. Both addresses
	// must be page-aligned.
	MapPage(v VirtAddr, p PhysAddr, flags PageFlags) error

	// UnmapPage removes the mapping for one virtual page. Returns
	// ErrPageNotMapped if none exists.
	UnmapPage(v VirtAddr) error

	// TranslatePage returns the mapping for one virtual page. Returns
	// ErrPageNotMapped if none exists.
	TranslatePage(v VirtAddr) (PhysAddr, PageFlags, error)

	// DebugExit reports a test-harness outcome through the external
	// debug-exit mechanism. Unsupported on real hardware.
	DebugExit(code uint32) error

	// Halt stops execution deterministically. It is the explicit fatal
	// path and does not return control to the caller's logic.
	Halt()
}
