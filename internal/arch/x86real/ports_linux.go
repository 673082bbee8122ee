//go:build linux

package x86real

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/tephra-os/tephra/internal/arch"
	"github.com/tephra-os/tephra/internal/kerror"
)

// devPorts performs port I/O through /dev/port, where the file offset is
// the port number. Requires CAP_SYS_RAWIO.
type devPorts struct {
	fd int
}

func openPorts() (portIO, error) {
	fd, err := unix.Open("/dev/port", unix.O_RDWR, 0)
	if err != nil {
		return nil, kerror.Unsupported(fmt.Sprintf("port io: open /dev/port: %v", err))
	}
	return &devPorts{fd: fd}, nil
}

func (p *devPorts) outb(port uint16, v uint8) error {
	buf := [1]byte{v}
	_, err := unix.Pwrite(p.fd, buf[:], int64(port))
	return err
}

func (p *devPorts) inb(port uint16) (uint8, error) {
	var buf [1]byte
	n, err := unix.Pread(p.fd, buf[:], int64(port))
	if err != nil {
		return 0, err
	}
	if n != 1 {
		return 0, fmt.Errorf("port io: short read on port %#x", port)
	}
	return buf[0], nil
}

func (p *devPorts) close() error {
	return unix.Close(p.fd)
}

// devMem maps physical pages through /dev/mem.
type devMem struct {
	fd int
}

func openPhysMapper() (physMapper, error) {
	fd, err := unix.Open("/dev/mem", unix.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return nil, kerror.Unsupported(fmt.Sprintf("phys window: open /dev/mem: %v", err))
	}
	return &devMem{fd: fd}, nil
}

func (m *devMem) mapPage(p arch.PhysAddr, flags arch.PageFlags) ([]byte, error) {
	prot := unix.PROT_READ
	if flags&arch.PageWritable != 0 {
		prot |= unix.PROT_WRITE
	}
	if flags&arch.PageExecutable != 0 {
		prot |= unix.PROT_EXEC
	}
	mem, err := unix.Mmap(m.fd, int64(p), arch.PageSize, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, kerror.UnrecoverableFault(fmt.Sprintf("phys map %#x: %v", uint64(p), err))
	}
	return mem, nil
}

func (m *devMem) unmapPage(mem []byte) error {
	return unix.Munmap(mem)
}

func (m *devMem) close() error {
	return unix.Close(m.fd)
}
