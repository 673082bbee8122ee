package ktest

import (
	"errors"

	"github.com/tephra-os/tephra/internal/arch"
	"github.com/tephra-os/tephra/internal/driver"
	"github.com/tephra-os/tephra/internal/kernel"
	"github.com/tephra-os/tephra/internal/ksync"
)

// SelfTests returns the built-in suite run under the -selftest boot mode.
// Every test here must hold on both backends, so nothing below depends on
// simulated echo or injected input.
func SelfTests(k *kernel.Kernel) []Test {
	b := k.Backend()
	return []Test{
		{"serial_write", func(t *T) {
			con, err := k.Console()
			if err != nil {
				t.Fatalf("console: %v", err)
			}
			if err := con.WriteString("."); err != nil {
				t.Errorf("write: %v", err)
			}
		}},

		{"interrupt_mask_restore", func(t *T) {
			prev := b.SetInterruptsEnabled(false)
			if b.InterruptsEnabled() {
				t.Errorf("interrupts enabled while masked")
			}
			b.SetInterruptsEnabled(prev)
			if b.InterruptsEnabled() != prev {
				t.Errorf("prior interrupt state not restored")
			}
		}},

		{"paging_map_translate_unmap", func(t *T) {
			const v = arch.VirtAddr(0xFFFF900000000000)
			const p = arch.PhysAddr(0x200000)
			if err := b.MapPage(v, p, arch.PageWritable); err != nil {
				t.Fatalf("map: %v", err)
			}
			got, flags, err := b.TranslatePage(v)
			if err != nil || got != p || flags != arch.PageWritable {
				t.Errorf("translate = %#x, %#x, %v", uint64(got), flags, err)
			}
			if err := b.UnmapPage(v); err != nil {
				t.Errorf("unmap: %v", err)
			}
			if _, _, err := b.TranslatePage(v); !errors.Is(err, arch.ErrPageNotMapped) {
				t.Errorf("translate after unmap: %v", err)
			}
		}},

		{"paging_rejects_unaligned", func(t *T) {
			if err := b.MapPage(1, 0, 0); !errors.Is(err, arch.ErrUnalignedAddress) {
				t.Errorf("unaligned map: %v", err)
			}
		}},

		{"registry_lookup_order", func(t *T) {
			xc := k.BootContext()
			var names []string
			for d := range k.Registry().Lookup(xc, driver.CapSerial) {
				names = append(names, d.DriverName())
			}
			if len(names) == 0 || names[0] != "serial-console" {
				t.Errorf("serial drivers = %v", names)
			}
		}},

		{"spinlock_guard", func(t *T) {
			xc := ksync.NewExecContext("selftest")
			l := ksync.NewSpinLock(ksync.NewLockClass("selftest.counter"), 0)
			g := l.Acquire(xc)
			*g.Value() = 7
			g.Release()
			if l.IsLocked() {
				t.Errorf("lock still held after release")
			}
			l.With(xc, func(n *int) {
				if *n != 7 {
					t.Errorf("protected value = %d", *n)
				}
			})
		}},
	}
}
