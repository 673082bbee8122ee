// Package sim implements the verification backend: an in-memory
// deterministic state machine that mimics the documented behavior of the
// serial controller, keyboard controller, interrupt masking, periodic timer
// and page map, so kernel logic can be exercised by an automated harness
// with no physical peripherals attached.
//
// Determinism is the whole point: the machine never reads the wall clock,
// never uses randomness, and advances time only through explicit
// AdvanceTicks calls. Identical inputs produce byte-identical traces on
// every run.
package sim

import (
	"sync"

	"github.com/tephra-os/tephra/internal/arch"
	"github.com/tephra-os/tephra/internal/kerror"
)

type mapping struct {
	phys  arch.PhysAddr
	flags arch.PageFlags
}

// Machine is the simulated hardware state. It satisfies arch.Backend.
type Machine struct {
	mu sync.Mutex

	serialTX []byte
	serialRX []byte
	kbd      []arch.Scancode

	intEnabled   bool
	pendingTicks uint64

	timerHz      uint32
	timerHandler arch.TimerHandler
	ticks        uint64

	pages map[arch.VirtAddr]mapping

	exitCode uint32
	exited   bool
	halted   bool
}

// New creates a simulated machine with interrupts disabled, matching the
// state real hardware is in when the boot collaborator hands control over.
func New() *Machine {
	return &Machine{
		pages: make(map[arch.VirtAddr]mapping),
	}
}

// Name implements arch.Backend.
func (m *Machine) Name() string {
	return "sim"
}

// ============================================================================
// Serial channel
// ============================================================================

// SerialWriteByte appends the byte to the transmit trace and echoes it into
// the receive queue. The echo is the simulated read-back: writing a byte
// and then reading produces that same byte, on every run.
func (m *Machine) SerialWriteByte(b byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.serialTX = append(m.serialTX, b)
	m.serialRX = append(m.serialRX, b)
	return nil
}

// SerialReadByte pops the next byte of the receive queue.
func (m *Machine) SerialReadByte() (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.serialRX) == 0 {
		return 0, kerror.NotReady("sim: serial read")
	}
	b := m.serialRX[0]
	m.serialRX = m.serialRX[1:]
	return b, nil
}

// ============================================================================
// Keyboard
// ============================================================================

// KeyboardPoll pops the next injected scancode.
func (m *Machine) KeyboardPoll() (arch.Scancode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.kbd) == 0 {
		return 0, kerror.NotReady("sim: keyboard poll")
	}
	sc := m.kbd[0]
	m.kbd = m.kbd[1:]
	return sc, nil
}

// ============================================================================
// Interrupts and timer
// ============================================================================

// SetInterruptsEnabled flips the simulated interrupt flag. Timer ticks that
// arrived while interrupts were disabled are delivered, in order, at the
// moment they are re-enabled, which is how real hardware drains a pending
// line.
func (m *Machine) SetInterruptsEnabled(enabled bool) bool {
	m.mu.Lock()
	prev := m.intEnabled
	m.intEnabled = enabled

	var deliver uint64
	var handler arch.TimerHandler
	if enabled && !prev {
		deliver = m.pendingTicks
		m.pendingTicks = 0
		handler = m.timerHandler
	}
	m.mu.Unlock()

	// Handlers run outside the machine lock so they may call back into
	// the backend.
	for i := uint64(0); i < deliver; i++ {
		if handler != nil {
			handler()
		}
	}
	return prev
}

// InterruptsEnabled implements arch.Backend.
func (m *Machine) InterruptsEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.intEnabled
}

// ConfigureTimer programs the simulated periodic timer. The rate only
// affects diagnostics; ticks advance solely through AdvanceTicks.
func (m *Machine) ConfigureTimer(hz uint32, handler arch.TimerHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timerHz = hz
	m.timerHandler = handler
	return nil
}

// TimerTicks implements arch.Backend.
func (m *Machine) TimerTicks() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ticks
}

// ============================================================================
// Paging
// ============================================================================

// MapPage implements arch.Backend. Remapping an already-mapped page
// replaces the mapping, matching what a real page-table write does.
func (m *Machine) MapPage(v arch.VirtAddr, p arch.PhysAddr, flags arch.PageFlags) error {
	if uint64(v)%arch.PageSize != 0 || uint64(p)%arch.PageSize != 0 {
		return arch.ErrUnalignedAddress
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[v] = mapping{phys: p, flags: flags}
	return nil
}

// UnmapPage implements arch.Backend.
func (m *Machine) UnmapPage(v arch.VirtAddr) error {
	if uint64(v)%arch.PageSize != 0 {
		return arch.ErrUnalignedAddress
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pages[v]; !ok {
		return arch.ErrPageNotMapped
	}
	delete(m.pages, v)
	return nil
}

// TranslatePage implements arch.Backend.
func (m *Machine) TranslatePage(v arch.VirtAddr) (arch.PhysAddr, arch.PageFlags, error) {
	if uint64(v)%arch.PageSize != 0 {
		return 0, 0, arch.ErrUnalignedAddress
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	mp, ok := m.pages[v]
	if !ok {
		return 0, 0, arch.ErrPageNotMapped
	}
	return mp.phys, mp.flags, nil
}

// ============================================================================
// Halt and debug exit
// ============================================================================

// DebugExit records the harness outcome and stops the machine.
func (m *Machine) DebugExit(code uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.exited {
		m.exitCode = code
		m.exited = true
	}
	m.halted = true
	return nil
}

// Halt marks the machine halted. Unlike real hardware the simulation
// returns to its caller, so harness code can inspect the final state.
func (m *Machine) Halt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.halted = true
}

// ============================================================================
// Harness controls
// ============================================================================

// AdvanceTicks advances simulated time by n timer periods. Ticks fire the
// installed handler immediately while interrupts are enabled and are held
// pending otherwise.
func (m *Machine) AdvanceTicks(n uint64) {
	for i := uint64(0); i < n; i++ {
		m.mu.Lock()
		m.ticks++
		fire := m.intEnabled && m.timerHandler != nil
		if !fire && m.timerHandler != nil {
			m.pendingTicks++
		}
		handler := m.timerHandler
		m.mu.Unlock()

		if fire {
			handler()
		}
	}
}

// InjectScancodes queues raw scancodes for KeyboardPoll.
func (m *Machine) InjectScancodes(codes ...arch.Scancode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kbd = append(m.kbd, codes...)
}

// InjectSerial queues received bytes ahead of any echoed output.
func (m *Machine) InjectSerial(data ...byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.serialRX = append(m.serialRX, data...)
}

// Output returns a copy of every byte transmitted on the serial channel
// since boot.
func (m *Machine) Output() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, len(m.serialTX))
	copy(out, m.serialTX)
	return out
}

// ExitStatus returns the recorded debug-exit code, if any.
func (m *Machine) ExitStatus() (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exitCode, m.exited
}

// Halted reports whether the machine has stopped.
func (m *Machine) Halted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted
}

// MappedPages returns the number of live page mappings; diagnostics only.
func (m *Machine) MappedPages() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pages)
}
