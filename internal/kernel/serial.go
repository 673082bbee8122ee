package kernel

import "github.com/tephra-os/tephra/internal/arch"

// serialWriter adapts the backend's byte-oriented serial channel to
// io.Writer so the logger and the fatal path can print through it.
// Line feeds are expanded to CRLF for terminal emulators on the far end.
type serialWriter struct {
	backend arch.Backend
}

func (w *serialWriter) Write(p []byte) (int, error) {
	for i, b := range p {
		if b == '\n' {
			if err := w.backend.SerialWriteByte('\r'); err != nil {
				return i, err
			}
		}
		if err := w.backend.SerialWriteByte(b); err != nil {
			return i, err
		}
	}
	return len(p), nil
}
