package kernel

import "fmt"

// Fatal reports an unrecoverable fault over the serial channel and halts.
// Interrupts are disabled first so the diagnostic cannot be interleaved
// with handler output. Fatal does not return.
func (k *Kernel) Fatal(format string, args ...interface{}) {
	k.backend.SetInterruptsEnabled(false)

	// Bypass the logger; its level filter must not be able to swallow
	// the last words.
	fmt.Fprintf(k.console, "\n*** FATAL: %s\n", fmt.Sprintf(format, args...))
	fmt.Fprintf(k.console, "*** halting %s\n", k.backend.Name())

	k.backend.Halt()
}
