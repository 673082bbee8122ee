// Package kerror provides standardized error classification for Tephra
// kernel subsystems.
package kerror

import "fmt"

// Category represents different categories of kernel errors.
type Category string

const (
	CategoryHardware Category = "HARDWARE"
	CategoryRegistry Category = "REGISTRY"
	CategoryLocking  Category = "LOCKING"
	CategoryFatal    Category = "FATAL"
)

// Error provides a consistent error format across kernel subsystems.
// Errors constructed by the helper functions below wrap one of the sentinel
// values, so callers can classify them with errors.Is.
type Error struct {
	Category Category
	Code     string
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("[%s:%s]", e.Category, e.Code)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsFatal reports whether an error class has no recovery path. The kernel
// glue routes fatal errors to the serial diagnostic channel and halts.
func (e *Error) IsFatal() bool {
	return e.Category == CategoryFatal
}

// Sentinel errors making up the kernel error taxonomy.
var (
	ErrHardwareNotReady   = &Error{Category: CategoryHardware, Code: "HW_NOT_READY", Message: "hardware not ready"}
	ErrHardwareTimeout    = &Error{Category: CategoryHardware, Code: "HW_TIMEOUT", Message: "hardware timeout"}
	ErrUnsupported        = &Error{Category: CategoryHardware, Code: "HW_UNSUPPORTED", Message: "unsupported on this backend"}
	ErrCapabilityNotFound = &Error{Category: CategoryRegistry, Code: "CAP_NOT_FOUND", Message: "capability not found"}
	ErrAlreadyRegistered  = &Error{Category: CategoryRegistry, Code: "ALREADY_REGISTERED", Message: "driver already registered"}
	ErrLockOrderViolation = &Error{Category: CategoryFatal, Code: "LOCK_ORDER_VIOLATION", Message: "lock order violation"}
	ErrUnrecoverableFault = &Error{Category: CategoryFatal, Code: "HW_FAULT", Message: "unrecoverable hardware fault"}
)

// NotReady returns a HardwareNotReady error describing the operation that
// could not proceed.
func NotReady(op string) *Error {
	return wrap(ErrHardwareNotReady, "%s: hardware not ready", op)
}

// Timeout returns a HardwareTimeout error for an operation that exceeded its
// bounded wait.
func Timeout(op string) *Error {
	return wrap(ErrHardwareTimeout, "%s: timed out waiting for hardware", op)
}

// Unsupported returns an error for an operation the active backend cannot
// perform.
func Unsupported(op string) *Error {
	return wrap(ErrUnsupported, "%s: unsupported on this backend", op)
}

// CapabilityNotFound returns a registry lookup failure for the named
// capability.
func CapabilityNotFound(capability string) *Error {
	return wrap(ErrCapabilityNotFound, "no driver registered for capability %q", capability)
}

// AlreadyRegistered returns a registration failure for a duplicate driver
// identity.
func AlreadyRegistered(name string) *Error {
	return wrap(ErrAlreadyRegistered, "driver %q already registered", name)
}

// LockOrderViolation returns the fatal error raised by the lock dependency
// tracker.
func LockOrderViolation(detail string) *Error {
	return wrap(ErrLockOrderViolation, "lock order violation: %s", detail)
}

// UnrecoverableFault returns the fatal error for hardware states with no
// recovery path.
func UnrecoverableFault(detail string) *Error {
	return wrap(ErrUnrecoverableFault, "unrecoverable hardware fault: %s", detail)
}

func wrap(sentinel *Error, format string, args ...interface{}) *Error {
	return &Error{
		Category: sentinel.Category,
		Code:     sentinel.Code,
		Message:  fmt.Sprintf(format, args...),
		Cause:    sentinel,
	}
}
