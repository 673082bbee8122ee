package arch

import "fmt"

// RegionKind classifies a memory map region.
type RegionKind uint32

const (
	RegionUsable RegionKind = iota
	RegionReserved
	RegionKernel
	RegionBootInfo
)

func (k RegionKind) String() string {
	switch k {
	case RegionUsable:
		return "usable"
	case RegionReserved:
		return "reserved"
	case RegionKernel:
		return "kernel"
	case RegionBootInfo:
		return "bootinfo"
	default:
		return "unknown"
	}
}

// MemoryRegion is one entry of the physical memory map.
type MemoryRegion struct {
	Base   PhysAddr
	Length uint64
	Kind   RegionKind
}

// End returns the first address past the region.
func (r MemoryRegion) End() PhysAddr {
	return r.Base + PhysAddr(r.Length)
}

// BootInfo is the fixed memory layout the boot collaborator hands the
// kernel exactly once. It is consumed at startup and never re-delivered.
type BootInfo struct {
	// MemoryMap lists physical memory regions in ascending base order.
	MemoryMap []MemoryRegion

	// KernelStackTop is the fixed virtual address of the top of the boot
	// stack; the stack grows downward for KernelStackSize bytes.
	KernelStackTop  VirtAddr
	KernelStackSize uint64

	// PhysWindowBase is the fixed virtual base of the physical-memory
	// access window.
	PhysWindowBase VirtAddr

	// BootInfoAddr is the fixed virtual address the boot information
	// itself was placed at.
	BootInfoAddr VirtAddr

	// Options is the raw kernel options string passed by the boot
	// collaborator.
	Options string
}

// Validate checks the handed-over layout before any subsystem consumes it:
// regions must be non-empty, sorted, and non-overlapping, and at least one
// usable region must exist.
func (bi *BootInfo) Validate() error {
	if len(bi.MemoryMap) == 0 {
		return fmt.Errorf("boot info: empty memory map")
	}

	usable := false
	for i, r := range bi.MemoryMap {
		if r.Length == 0 {
			return fmt.Errorf("boot info: region %d has zero length", i)
		}
		if r.Base%PageSize != 0 {
			return fmt.Errorf("boot info: region %d base %#x not page aligned", i, uint64(r.Base))
		}
		if i > 0 && r.Base < bi.MemoryMap[i-1].End() {
			return fmt.Errorf("boot info: region %d overlaps region %d", i, i-1)
		}
		if r.Kind == RegionUsable {
			usable = true
		}
	}
	if !usable {
		return fmt.Errorf("boot info: no usable memory")
	}

	if bi.KernelStackSize == 0 || bi.KernelStackSize%PageSize != 0 {
		return fmt.Errorf("boot info: bad kernel stack size %#x", bi.KernelStackSize)
	}
	return nil
}

// TotalUsable returns the number of usable bytes in the memory map.
func (bi *BootInfo) TotalUsable() uint64 {
	var total uint64
	for _, r := range bi.MemoryMap {
		if r.Kind == RegionUsable {
			total += r.Length
		}
	}
	return total
}
