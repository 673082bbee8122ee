// Package ktest runs in-kernel self tests, streaming one line per test
// over the serial channel and reporting the aggregate outcome through the
// debug-exit mechanism so an external harness can score the run.
package ktest

import (
	"fmt"
	"io"
)

// T collects the outcome of one running test.
type T struct {
	name   string
	out    io.Writer
	failed bool
}

type failNow struct{}

// Errorf records a failure and keeps the test running.
func (t *T) Errorf(format string, args ...interface{}) {
	t.failed = true
	fmt.Fprintf(t.out, "    %s: %s\n", t.name, fmt.Sprintf(format, args...))
}

// Fatalf records a failure and aborts the test body.
func (t *T) Fatalf(format string, args ...interface{}) {
	t.Errorf(format, args...)
	panic(failNow{})
}

// Failed reports whether the test has recorded a failure.
func (t *T) Failed() bool {
	return t.failed
}

// Test is one named self test.
type Test struct {
	Name string
	Fn   func(*T)
}

// Runner executes a suite and reports through a byte sink and an exit
// mechanism, normally the serial console and the debug-exit port.
type Runner struct {
	out   io.Writer
	exit  func(code uint32) error
	tests []Test
}

// NewRunner creates a runner writing to out and signalling the aggregate
// result through exit. A nil exit only streams.
func NewRunner(out io.Writer, exit func(code uint32) error) *Runner {
	return &Runner{out: out, exit: exit}
}

// Add appends one test to the suite.
func (r *Runner) Add(name string, fn func(*T)) {
	r.tests = append(r.tests, Test{Name: name, Fn: fn})
}

// AddSuite appends a prepared suite.
func (r *Runner) AddSuite(tests []Test) {
	r.tests = append(r.tests, tests...)
}

// Run executes every test in order. A panic inside a test body fails that
// test and the run continues. Returns the number of failed tests after
// signalling exit code 0 or 1.
func (r *Runner) Run() int {
	fmt.Fprintf(r.out, "running %d tests\n", len(r.tests))

	failed := 0
	for _, tt := range r.tests {
		fmt.Fprintf(r.out, "test %s ... ", tt.Name)
		t := &T{name: tt.Name, out: r.out}
		r.runOne(t, tt.Fn)
		if t.failed {
			failed++
			fmt.Fprintf(r.out, "FAILED\n")
		} else {
			fmt.Fprintf(r.out, "ok\n")
		}
	}

	fmt.Fprintf(r.out, "result: %s. %d passed; %d failed\n",
		verdict(failed), len(r.tests)-failed, failed)

	if r.exit != nil {
		code := uint32(0)
		if failed > 0 {
			code = 1
		}
		if err := r.exit(code); err != nil {
			fmt.Fprintf(r.out, "debug exit unavailable: %v\n", err)
		}
	}
	return failed
}

func (r *Runner) runOne(t *T, fn func(*T)) {
	defer func() {
		switch v := recover().(type) {
		case nil, failNow:
		default:
			t.failed = true
			fmt.Fprintf(t.out, "    %s: panic: %v\n", t.name, v)
		}
	}()
	fn(t)
}

func verdict(failed int) string {
	if failed > 0 {
		return "FAILED"
	}
	return "ok"
}
