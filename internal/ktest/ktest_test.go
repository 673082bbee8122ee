package ktest

import (
	"bytes"
	"strings"
	"testing"

	"github.com/tephra-os/tephra/internal/arch"
	"github.com/tephra-os/tephra/internal/arch/sim"
	"github.com/tephra-os/tephra/internal/kernel"
)

func TestRunner_StreamsAndExitsClean(t *testing.T) {
	out := &bytes.Buffer{}
	var exitCode *uint32
	r := NewRunner(out, func(code uint32) error {
		exitCode = &code
		return nil
	})
	r.Add("alpha", func(*T) {})
	r.Add("beta", func(*T) {})

	if failed := r.Run(); failed != 0 {
		t.Fatalf("failed = %d", failed)
	}

	s := out.String()
	for _, want := range []string{
		"running 2 tests",
		"test alpha ... ok",
		"test beta ... ok",
		"result: ok. 2 passed; 0 failed",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
	if exitCode == nil || *exitCode != 0 {
		t.Fatalf("exit code = %v", exitCode)
	}
}

func TestRunner_FailureAndPanicKeepRunGoing(t *testing.T) {
	out := &bytes.Buffer{}
	var exitCode *uint32
	r := NewRunner(out, func(code uint32) error {
		exitCode = &code
		return nil
	})
	r.Add("bad", func(t *T) { t.Errorf("value = %d", 3) })
	r.Add("explodes", func(*T) { panic("boom") })
	r.Add("good", func(*T) {})

	if failed := r.Run(); failed != 2 {
		t.Fatalf("failed = %d", failed)
	}

	s := out.String()
	for _, want := range []string{
		"test bad ... ",
		"bad: value = 3",
		"FAILED",
		"explodes: panic: boom",
		"test good ... ok",
		"result: FAILED. 1 passed; 2 failed",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
	if exitCode == nil || *exitCode != 1 {
		t.Fatalf("exit code = %v", exitCode)
	}
}

func TestRunner_FatalfAbortsTestBody(t *testing.T) {
	out := &bytes.Buffer{}
	r := NewRunner(out, nil)

	reached := false
	r.Add("aborts", func(t *T) {
		t.Fatalf("stop here")
		reached = true
	})

	if failed := r.Run(); failed != 1 {
		t.Fatalf("failed = %d", failed)
	}
	if reached {
		t.Fatal("test body continued past Fatalf")
	}
}

func TestSelfTests_PassOnVerificationBackend(t *testing.T) {
	m := sim.New()
	bi := &arch.BootInfo{
		MemoryMap: []arch.MemoryRegion{
			{Base: 0, Length: 64 * arch.PageSize, Kind: arch.RegionUsable},
		},
		KernelStackTop:  0xFFFFFF8000100000,
		KernelStackSize: 4 * arch.PageSize,
	}
	k, err := kernel.New(bi, m)
	if err != nil {
		t.Fatal(err)
	}
	defer k.Close()
	if err := k.RegisterCoreDrivers(); err != nil {
		t.Fatal(err)
	}

	out := &bytes.Buffer{}
	r := NewRunner(out, m.DebugExit)
	r.AddSuite(SelfTests(k))

	if failed := r.Run(); failed != 0 {
		t.Fatalf("self tests failed:\n%s", out.String())
	}
	code, exited := m.ExitStatus()
	if !exited || code != 0 {
		t.Fatalf("debug exit = %d, %v", code, exited)
	}
}
