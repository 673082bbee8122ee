package kerror

import (
	"errors"
	"fmt"
	"testing"
)

func TestConstructorsMatchSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		sentinel *Error
	}{
		{"not ready", NotReady("serial read"), ErrHardwareNotReady},
		{"timeout", Timeout("serial write"), ErrHardwareTimeout},
		{"unsupported", Unsupported("debug exit"), ErrUnsupported},
		{"capability", CapabilityNotFound("timer"), ErrCapabilityNotFound},
		{"duplicate", AlreadyRegistered("uart0"), ErrAlreadyRegistered},
		{"lock order", LockOrderViolation("a after b"), ErrLockOrderViolation},
		{"fault", UnrecoverableFault("triple fault"), ErrUnrecoverableFault},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.sentinel) {
			t.Errorf("%s: %v does not match its sentinel", tt.name, tt.err)
		}
	}
}

func TestMatchSurvivesFurtherWrapping(t *testing.T) {
	err := fmt.Errorf("poll: %w", NotReady("keyboard"))
	if !errors.Is(err, ErrHardwareNotReady) {
		t.Fatalf("wrapped error lost its class: %v", err)
	}
	var ke *Error
	if !errors.As(err, &ke) || ke.Category != CategoryHardware {
		t.Fatalf("errors.As = %v", ke)
	}
}

func TestIsFatal(t *testing.T) {
	if NotReady("x").IsFatal() {
		t.Error("not-ready marked fatal")
	}
	if !UnrecoverableFault("x").IsFatal() {
		t.Error("fault not marked fatal")
	}
	if !LockOrderViolation("x").IsFatal() {
		t.Error("lock order violation not marked fatal")
	}
}

func TestErrorFormat(t *testing.T) {
	got := Timeout("serial write").Error()
	want := "[HARDWARE:HW_TIMEOUT] serial write: timed out waiting for hardware"
	if got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}
