// Package x86real implements the real architecture backend: port and
// memory-mapped I/O against the 16550 UART, the PS/2 keyboard controller,
// the 8259 interrupt controller pair and the 8254 interval timer, plus a
// physical-memory page window.
//
// The backend satisfies the identical contract as the verification backend;
// nothing above this package may depend on which of the two is active.
package x86real

import (
	"runtime"
	"sync"

	"github.com/tephra-os/tephra/internal/arch"
	"github.com/tephra-os/tephra/internal/kerror"
)

// 16550 UART on COM1.
const (
	uartBase    = 0x3F8
	uartData    = uartBase + 0 // THR on write, RBR on read
	uartIER     = uartBase + 1
	uartFCR     = uartBase + 2
	uartLCR     = uartBase + 3
	uartMCR     = uartBase + 4
	uartLSR     = uartBase + 5
	lsrDataRead = 0x01
	lsrTxEmpty  = 0x20
)

// PS/2 keyboard controller.
const (
	ps2Data      = 0x60
	ps2Status    = 0x64
	ps2OutFull   = 0x01
	ps2MouseData = 0x20
)

// 8259 PIC pair.
const (
	pic1Cmd  = 0x20
	pic1Data = 0x21
	pic2Cmd  = 0xA0
	pic2Data = 0xA1
	icw1Init = 0x11
	icw48086 = 0x01
	picEOI   = 0x20
)

// 8254 PIT.
const (
	pitChannel0 = 0x40
	pitCommand  = 0x43
	pitBaseHz   = 1193182
)

// txWaitSpins bounds the transmitter-empty wait so serial writes complete
// in bounded time even against a wedged UART.
const txWaitSpins = 100000

// portIO abstracts raw port access so the register sequences can be
// exercised against a fake controller in tests.
type portIO interface {
	outb(port uint16, v uint8) error
	inb(port uint16) (uint8, error)
	close() error
}

// physMapper maps single physical pages into the address space.
type physMapper interface {
	mapPage(p arch.PhysAddr, flags arch.PageFlags) ([]byte, error)
	unmapPage(mem []byte) error
	close() error
}

type pageMapping struct {
	phys  arch.PhysAddr
	flags arch.PageFlags
	mem   []byte
}

// Backend drives the physical hardware. It satisfies arch.Backend.
type Backend struct {
	mu    sync.Mutex
	ports portIO
	phys  physMapper

	intEnabled bool
	picMasks   [2]uint8

	timerHz      uint32
	timerHandler arch.TimerHandler
	ticks        uint64

	pages map[arch.VirtAddr]pageMapping
}

// New opens the platform port-I/O and physical-memory facilities and brings
// the UART and interrupt controller to a known state. It fails with a typed
// error on platforms without raw hardware access.
func New() (*Backend, error) {
	ports, err := openPorts()
	if err != nil {
		return nil, err
	}
	phys, err := openPhysMapper()
	if err != nil {
		ports.close()
		return nil, err
	}
	b := newBackend(ports, phys)
	if err := b.initHardware(); err != nil {
		ports.close()
		phys.close()
		return nil, err
	}
	return b, nil
}

func newBackend(ports portIO, phys physMapper) *Backend {
	return &Backend{
		ports: ports,
		phys:  phys,
		pages: make(map[arch.VirtAddr]pageMapping),
	}
}

// initHardware programs the UART for 115200 8N1 with FIFOs, remaps the PIC
// vectors clear of the CPU exception range, and masks every IRQ line so the
// kernel starts with interrupts disabled.
func (b *Backend) initHardware() error {
	seq := []struct {
		port uint16
		val  uint8
	}{
		{uartIER, 0x00}, // no UART interrupts; the serial channel is polled
		{uartLCR, 0x80}, // DLAB on
		{uartData, 0x01}, // divisor low: 115200 baud
		{uartIER, 0x00}, // divisor high
		{uartLCR, 0x03}, // 8N1, DLAB off
		{uartFCR, 0xC7}, // FIFO on, clear, 14-byte threshold
		{uartMCR, 0x0B}, // DTR, RTS, OUT2

		{pic1Cmd, icw1Init},
		{pic2Cmd, icw1Init},
		{pic1Data, 0x20}, // master vectors at 0x20
		{pic2Data, 0x28}, // slave vectors at 0x28
		{pic1Data, 0x04}, // slave on IRQ2
		{pic2Data, 0x02},
		{pic1Data, icw48086},
		{pic2Data, icw48086},
		{pic1Data, 0xFF}, // mask everything
		{pic2Data, 0xFF},
	}
	for _, s := range seq {
		if err := b.ports.outb(s.port, s.val); err != nil {
			return kerror.UnrecoverableFault("hardware init: " + err.Error())
		}
	}
	b.picMasks = [2]uint8{0xFB, 0xFF} // IRQ2 cascade open once enabled
	return nil
}

// Name implements arch.Backend.
func (b *Backend) Name() string {
	return "x86real"
}

// ============================================================================
// Serial channel
// ============================================================================

// SerialWriteByte waits, bounded, for the transmitter to drain and writes
// one byte.
func (b *Backend) SerialWriteByte(by byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := 0; i < txWaitSpins; i++ {
		lsr, err := b.ports.inb(uartLSR)
		if err != nil {
			return kerror.UnrecoverableFault("uart lsr read: " + err.Error())
		}
		if lsr&lsrTxEmpty != 0 {
			if err := b.ports.outb(uartData, by); err != nil {
				return kerror.UnrecoverableFault("uart write: " + err.Error())
			}
			return nil
		}
	}
	return kerror.Timeout("serial write")
}

// SerialReadByte returns a received byte, or HardwareNotReady when the
// receive FIFO is empty.
func (b *Backend) SerialReadByte() (byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	lsr, err := b.ports.inb(uartLSR)
	if err != nil {
		return 0, kerror.UnrecoverableFault("uart lsr read: " + err.Error())
	}
	if lsr&lsrDataRead == 0 {
		return 0, kerror.NotReady("serial read")
	}
	v, err := b.ports.inb(uartData)
	if err != nil {
		return 0, kerror.UnrecoverableFault("uart read: " + err.Error())
	}
	return v, nil
}

// ============================================================================
// Keyboard
// ============================================================================

// KeyboardPoll checks the PS/2 status register and pops one scancode if the
// output buffer holds keyboard data.
func (b *Backend) KeyboardPoll() (arch.Scancode, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	status, err := b.ports.inb(ps2Status)
	if err != nil {
		return 0, kerror.UnrecoverableFault("ps2 status read: " + err.Error())
	}
	if status&ps2OutFull == 0 || status&ps2MouseData != 0 {
		return 0, kerror.NotReady("keyboard poll")
	}
	v, err := b.ports.inb(ps2Data)
	if err != nil {
		return 0, kerror.UnrecoverableFault("ps2 data read: " + err.Error())
	}
	return arch.Scancode(v), nil
}

// ============================================================================
// Interrupts and timer
// ============================================================================

// SetInterruptsEnabled opens or masks the PIC IRQ lines, returning the
// prior state. Port failures leave the recorded state untouched.
func (b *Backend) SetInterruptsEnabled(enabled bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.intEnabled
	if enabled == prev {
		return prev
	}

	masks := [2]uint8{0xFF, 0xFF}
	if enabled {
		masks = b.picMasks
	}
	if err := b.ports.outb(pic1Data, masks[0]); err != nil {
		return prev
	}
	if err := b.ports.outb(pic2Data, masks[1]); err != nil {
		return prev
	}
	b.intEnabled = enabled
	return prev
}

// InterruptsEnabled implements arch.Backend.
func (b *Backend) InterruptsEnabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.intEnabled
}

// ConfigureTimer programs PIT channel 0 as a rate generator at hz ticks per
// second and unmasks IRQ 0.
func (b *Backend) ConfigureTimer(hz uint32, handler arch.TimerHandler) error {
	if hz == 0 || hz > pitBaseHz {
		return kerror.Unsupported("timer rate")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	divisor := uint16(pitBaseHz / hz)
	seq := []struct {
		port uint16
		val  uint8
	}{
		{pitCommand, 0x36}, // channel 0, lo/hi, rate generator
		{pitChannel0, uint8(divisor & 0xFF)},
		{pitChannel0, uint8(divisor >> 8)},
	}
	for _, s := range seq {
		if err := b.ports.outb(s.port, s.val); err != nil {
			return kerror.UnrecoverableFault("pit program: " + err.Error())
		}
	}

	b.timerHz = hz
	b.timerHandler = handler
	b.picMasks[0] &^= 0x01 // unmask IRQ 0
	if b.intEnabled {
		if err := b.ports.outb(pic1Data, b.picMasks[0]); err != nil {
			return kerror.UnrecoverableFault("pic unmask: " + err.Error())
		}
	}
	return nil
}

// TimerTicks implements arch.Backend.
func (b *Backend) TimerTicks() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ticks
}

// TickInterrupt is the entry point wired to the platform's timer interrupt
// vector. It counts the tick, acknowledges IRQ 0 and runs the installed
// handler.
func (b *Backend) TickInterrupt() {
	b.mu.Lock()
	b.ticks++
	handler := b.timerHandler
	_ = b.ports.outb(pic1Cmd, picEOI)
	b.mu.Unlock()

	if handler != nil {
		handler()
	}
}

// ============================================================================
// Paging
// ============================================================================

// MapPage maps one physical page through the platform physical-memory
// window and records the mapping.
func (b *Backend) MapPage(v arch.VirtAddr, p arch.PhysAddr, flags arch.PageFlags) error {
	if uint64(v)%arch.PageSize != 0 || uint64(p)%arch.PageSize != 0 {
		return arch.ErrUnalignedAddress
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	mem, err := b.phys.mapPage(p, flags)
	if err != nil {
		return err
	}
	if old, ok := b.pages[v]; ok {
		_ = b.phys.unmapPage(old.mem)
	}
	b.pages[v] = pageMapping{phys: p, flags: flags, mem: mem}
	return nil
}

// UnmapPage implements arch.Backend.
func (b *Backend) UnmapPage(v arch.VirtAddr) error {
	if uint64(v)%arch.PageSize != 0 {
		return arch.ErrUnalignedAddress
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.pages[v]
	if !ok {
		return arch.ErrPageNotMapped
	}
	delete(b.pages, v)
	return b.phys.unmapPage(m.mem)
}

// TranslatePage implements arch.Backend.
func (b *Backend) TranslatePage(v arch.VirtAddr) (arch.PhysAddr, arch.PageFlags, error) {
	if uint64(v)%arch.PageSize != 0 {
		return 0, 0, arch.ErrUnalignedAddress
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.pages[v]
	if !ok {
		return 0, 0, arch.ErrPageNotMapped
	}
	return m.phys, m.flags, nil
}

// ============================================================================
// Halt and debug exit
// ============================================================================

// DebugExit is the emulator-only outcome channel; real hardware has no
// debug-exit device.
func (b *Backend) DebugExit(code uint32) error {
	return kerror.Unsupported("debug exit")
}

// Halt masks every interrupt line and spins forever.
func (b *Backend) Halt() {
	b.mu.Lock()
	_ = b.ports.outb(pic1Data, 0xFF)
	_ = b.ports.outb(pic2Data, 0xFF)
	b.intEnabled = false
	b.mu.Unlock()

	for {
		runtime.Gosched()
	}
}

// Close releases the platform I/O handles. Only harness code tearing a
// backend down uses this; a booted kernel never destroys its backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for v, m := range b.pages {
		_ = b.phys.unmapPage(m.mem)
		delete(b.pages, v)
	}
	if err := b.phys.close(); err != nil {
		_ = b.ports.close()
		return err
	}
	return b.ports.close()
}
