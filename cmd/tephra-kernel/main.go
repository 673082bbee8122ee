// Tephra kernel entry point. Runs the foundational layer on the backend
// the image was built for: the real backend by default, the deterministic
// verification backend under the hwsim build tag.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tephra-os/tephra/internal/arch"
	"github.com/tephra-os/tephra/internal/driver"
	"github.com/tephra-os/tephra/internal/kernel"
	"github.com/tephra-os/tephra/internal/ktest"
)

var (
	flagOptions   = flag.String("options", "", "kernel options string (key, key=value)")
	flagManifests = flag.String("manifests", "", "directory of driver manifests to load at boot")
	flagWatch     = flag.Bool("watch", false, "keep watching the manifest directory for new drivers")
	flagSelftest  = flag.Bool("selftest", false, "run the built-in self tests and exit")
)

func main() {
	flag.Parse()

	backend, err := kernel.SelectBackend()
	if err != nil {
		fmt.Fprintf(os.Stderr, "tephra: backend unavailable: %v\n", err)
		os.Exit(1)
	}

	k, err := kernel.New(bootHandOver(*flagOptions), backend)
	if err != nil {
		// The hand-over is untrustworthy; print through the host since
		// the kernel never came up.
		fmt.Fprintf(os.Stderr, "tephra: %v\n", err)
		backend.Halt()
		os.Exit(1)
	}

	if err := k.Boot(); err != nil {
		k.Fatal("boot: %v", err)
	}

	if *flagManifests != "" {
		hp := driver.NewHotplug(k.Registry(), kernel.Version, k.Log().Writer())
		if err := hp.LoadDir(k.BootContext(), *flagManifests); err != nil {
			k.Fatal("manifests: %v", err)
		}
		if *flagWatch {
			if err := hp.Watch(*flagManifests); err != nil {
				k.Fatal("manifest watch: %v", err)
			}
			defer hp.Close()
		}
	}

	if *flagSelftest {
		con, err := k.Console()
		if err != nil {
			k.Fatal("selftest: %v", err)
		}
		r := ktest.NewRunner(consoleWriter{con}, k.Backend().DebugExit)
		r.AddSuite(ktest.SelfTests(k))
		failed := r.Run()
		if failed > 0 {
			os.Exit(1)
		}
		return
	}

	eventLoop(k)
}

// bootHandOver builds the boot information block. Hosted builds synthesize
// the layout the boot collaborator would hand a bare-metal image.
func bootHandOver(options string) *arch.BootInfo {
	return &arch.BootInfo{
		MemoryMap: []arch.MemoryRegion{
			{Base: 0x0, Length: 0x9F000, Kind: arch.RegionUsable},
			{Base: 0x9F000, Length: 0x61000, Kind: arch.RegionReserved},
			{Base: 0x100000, Length: 0x700000, Kind: arch.RegionKernel},
			{Base: 0x800000, Length: 0x7800000, Kind: arch.RegionUsable},
		},
		KernelStackTop:  0xFFFFFF8000100000,
		KernelStackSize: 8 * arch.PageSize,
		PhysWindowBase:  0xFFFF800000000000,
		BootInfoAddr:    0xFFFFFF8000200000,
		Options:         options,
	}
}

// eventLoop polls the keyboard and echoes scancodes until the backend
// stops delivering.
func eventLoop(k *kernel.Kernel) {
	kb, err := k.Keyboard()
	if err != nil {
		k.Fatal("event loop: %v", err)
	}

	for {
		sc, err := kb.Poll()
		if err == nil {
			k.Log().Debugf("kbd", "scancode %#02x", uint8(sc))
			continue
		}
		time.Sleep(time.Millisecond)
	}
}

// consoleWriter adapts the serial console driver to io.Writer for the test
// runner.
type consoleWriter struct {
	con *kernel.SerialConsole
}

func (w consoleWriter) Write(p []byte) (int, error) {
	if err := w.con.WriteString(string(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}
