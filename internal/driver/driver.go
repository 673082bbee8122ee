// Package driver provides the capability registry: the process-wide lookup
// structure mapping capability identifiers to the driver objects that
// implement them. Drivers are registered once, live until halt, and may
// implement any number of capabilities; kernel subsystems discover them at
// runtime without static knowledge of every driver type.
package driver

import (
	"io"

	semver "github.com/Masterminds/semver/v3"
)

// Capability identifies a behavioral contract a driver may implement. The
// set is open; drivers can introduce their own tags.
type Capability string

// Core capabilities wired at boot.
const (
	CapSerial    Capability = "serial"
	CapKeyboard  Capability = "keyboard"
	CapInterrupt Capability = "interrupt"
	CapTimer     Capability = "timer"
	CapPaging    Capability = "paging"
	CapDebugExit Capability = "debug-exit"
)

// Driver is the contract every registered driver object satisfies. The
// driver name is its registry identity: registering the same name twice is
// rejected.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() *semver.Version

	// DriverInit initializes the driver. Init-time diagnostics go to the
	// supplied writer.
	DriverInit(io.Writer) error
}
