package x86real

import (
	"errors"
	"testing"

	"github.com/tephra-os/tephra/internal/arch"
	"github.com/tephra-os/tephra/internal/kerror"
)

var _ arch.Backend = (*Backend)(nil)

// fakePorts models just enough 16550/PS2/PIC/PIT register behavior to
// exercise the backend's port sequences deterministically.
type fakePorts struct {
	tx        []byte
	rx        []byte
	kbd       []byte
	lsrStuck  bool // transmitter never drains
	picWrites []uint8
	pitWrites []uint8
	writes    map[uint16][]uint8
}

func newFakePorts() *fakePorts {
	return &fakePorts{writes: make(map[uint16][]uint8)}
}

func (f *fakePorts) outb(port uint16, v uint8) error {
	f.writes[port] = append(f.writes[port], v)
	switch port {
	case uartData:
		f.tx = append(f.tx, v)
	case pic1Data, pic2Data:
		f.picWrites = append(f.picWrites, v)
	case pitChannel0, pitCommand:
		f.pitWrites = append(f.pitWrites, v)
	}
	return nil
}

func (f *fakePorts) inb(port uint16) (uint8, error) {
	switch port {
	case uartLSR:
		var lsr uint8
		if !f.lsrStuck {
			lsr |= lsrTxEmpty
		}
		if len(f.rx) > 0 {
			lsr |= lsrDataRead
		}
		return lsr, nil
	case uartData:
		if len(f.rx) == 0 {
			return 0, nil
		}
		v := f.rx[0]
		f.rx = f.rx[1:]
		return v, nil
	case ps2Status:
		if len(f.kbd) > 0 {
			return ps2OutFull, nil
		}
		return 0, nil
	case ps2Data:
		if len(f.kbd) == 0 {
			return 0, nil
		}
		v := f.kbd[0]
		f.kbd = f.kbd[1:]
		return v, nil
	}
	return 0, nil
}

func (f *fakePorts) close() error { return nil }

type fakePhys struct {
	live int
}

func (f *fakePhys) mapPage(p arch.PhysAddr, flags arch.PageFlags) ([]byte, error) {
	f.live++
	return make([]byte, arch.PageSize), nil
}

func (f *fakePhys) unmapPage(mem []byte) error {
	f.live--
	return nil
}

func (f *fakePhys) close() error { return nil }

func newTestBackend(t *testing.T) (*Backend, *fakePorts, *fakePhys) {
	t.Helper()
	ports := newFakePorts()
	phys := &fakePhys{}
	b := newBackend(ports, phys)
	if err := b.initHardware(); err != nil {
		t.Fatalf("init: %v", err)
	}
	// Drop the programming traffic so tests observe only their own I/O.
	ports.tx = nil
	ports.picWrites = nil
	ports.pitWrites = nil
	return b, ports, phys
}

func TestSerialWriteByte(t *testing.T) {
	b, ports, _ := newTestBackend(t)

	if err := b.SerialWriteByte('A'); err != nil {
		t.Fatal(err)
	}
	if len(ports.tx) != 1 || ports.tx[0] != 'A' {
		t.Fatalf("transmitted %v", ports.tx)
	}
}

func TestSerialWriteByte_Timeout(t *testing.T) {
	b, ports, _ := newTestBackend(t)
	ports.lsrStuck = true

	err := b.SerialWriteByte('A')
	if !errors.Is(err, kerror.ErrHardwareTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if len(ports.tx) != 0 {
		t.Fatal("byte transmitted despite wedged UART")
	}
}

func TestSerialReadByte(t *testing.T) {
	b, ports, _ := newTestBackend(t)

	if _, err := b.SerialReadByte(); !errors.Is(err, kerror.ErrHardwareNotReady) {
		t.Fatalf("empty read: %v", err)
	}

	ports.rx = []byte{'z'}
	v, err := b.SerialReadByte()
	if err != nil || v != 'z' {
		t.Fatalf("read %q, %v", v, err)
	}
}

func TestKeyboardPoll(t *testing.T) {
	b, ports, _ := newTestBackend(t)

	if _, err := b.KeyboardPoll(); !errors.Is(err, kerror.ErrHardwareNotReady) {
		t.Fatalf("empty poll: %v", err)
	}

	ports.kbd = []byte{0x1E}
	sc, err := b.KeyboardPoll()
	if err != nil || sc != 0x1E {
		t.Fatalf("poll %#x, %v", sc, err)
	}
}

func TestSetInterruptsEnabled_MasksPIC(t *testing.T) {
	b, ports, _ := newTestBackend(t)

	if b.InterruptsEnabled() {
		t.Fatal("interrupts enabled after init")
	}

	ports.picWrites = nil
	if prev := b.SetInterruptsEnabled(true); prev {
		t.Fatal("prior state wrong")
	}
	if len(ports.picWrites) != 2 {
		t.Fatalf("pic writes %v", ports.picWrites)
	}
	if ports.picWrites[0] == 0xFF && ports.picWrites[1] == 0xFF {
		t.Fatal("enable left all lines masked")
	}

	ports.picWrites = nil
	if prev := b.SetInterruptsEnabled(false); !prev {
		t.Fatal("prior state wrong")
	}
	if len(ports.picWrites) != 2 || ports.picWrites[0] != 0xFF || ports.picWrites[1] != 0xFF {
		t.Fatalf("disable wrote %v, want full masks", ports.picWrites)
	}

	// Idempotent: disabling again touches nothing.
	ports.picWrites = nil
	b.SetInterruptsEnabled(false)
	if len(ports.picWrites) != 0 {
		t.Fatalf("redundant disable wrote %v", ports.picWrites)
	}
}

func TestConfigureTimer_ProgramsPIT(t *testing.T) {
	b, ports, _ := newTestBackend(t)

	fired := 0
	if err := b.ConfigureTimer(100, func() { fired++ }); err != nil {
		t.Fatal(err)
	}

	// 1193182 / 100 = 11931 = 0x2E9B, written command first then lo/hi.
	want := []uint8{0x36, 0x9B, 0x2E}
	if len(ports.pitWrites) != 3 {
		t.Fatalf("pit writes %v", ports.pitWrites)
	}
	for i, w := range want {
		if ports.pitWrites[i] != w {
			t.Fatalf("pit write %d = %#x, want %#x", i, ports.pitWrites[i], w)
		}
	}

	b.TickInterrupt()
	b.TickInterrupt()
	if fired != 2 || b.TimerTicks() != 2 {
		t.Fatalf("fired=%d ticks=%d", fired, b.TimerTicks())
	}
}

func TestConfigureTimer_RejectsBadRate(t *testing.T) {
	b, _, _ := newTestBackend(t)
	if err := b.ConfigureTimer(0, nil); !errors.Is(err, kerror.ErrUnsupported) {
		t.Fatalf("zero rate: %v", err)
	}
}

func TestPaging(t *testing.T) {
	b, _, phys := newTestBackend(t)
	v := arch.VirtAddr(0x4000_0000)
	p := arch.PhysAddr(0x10_0000)

	if err := b.MapPage(v, p, arch.PageWritable); err != nil {
		t.Fatal(err)
	}
	if phys.live != 1 {
		t.Fatalf("live mappings %d", phys.live)
	}

	gotP, gotF, err := b.TranslatePage(v)
	if err != nil || gotP != p || gotF != arch.PageWritable {
		t.Fatalf("translate %#x %v %v", uint64(gotP), gotF, err)
	}

	// Remap replaces the old window.
	if err := b.MapPage(v, p+arch.PageSize, 0); err != nil {
		t.Fatal(err)
	}
	if phys.live != 1 {
		t.Fatalf("remap leaked: live=%d", phys.live)
	}

	if err := b.UnmapPage(v); err != nil {
		t.Fatal(err)
	}
	if err := b.UnmapPage(v); !errors.Is(err, arch.ErrPageNotMapped) {
		t.Fatalf("double unmap: %v", err)
	}
	if phys.live != 0 {
		t.Fatalf("unmap leaked: live=%d", phys.live)
	}
}

func TestDebugExit_Unsupported(t *testing.T) {
	b, _, _ := newTestBackend(t)
	if err := b.DebugExit(0); !errors.Is(err, kerror.ErrUnsupported) {
		t.Fatalf("debug exit: %v", err)
	}
}
