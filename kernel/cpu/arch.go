package cpu

const (
	// ASIDHighBits and ASIDLowBits control how an ASID value decomposes
	// into a directory index and a pool index. The directory holds
	// 2^ASIDHighBits pools of 2^ASIDLowBits mappings each. Both supported
	// architectures share the same split, so the widths are package
	// constants and kernel tables can be dimensioned with them at compile
	// time.
	ASIDHighBits = 7
	ASIDLowBits  = 9
)

// ArchParams captures the architecture-dependent widths used by the kernel
// object layouts. Kernel objects are plain structs on every architecture; the
// parameter tables only dictate how wide the packed hardware fields would be
// and which power-of-two size class the object allocator reserves for each
// object, so a single set of struct definitions serves all supported targets.
type ArchParams struct {
	// Name identifies the architecture ("aarch64", "riscv64").
	Name string

	// PointerBits is the number of significant bits in a canonical kernel
	// virtual address.
	PointerBits uint8

	// ASIDHighBits and ASIDLowBits mirror the package constants of the
	// same names for parameter table consumers.
	ASIDHighBits uint8
	ASIDLowBits  uint8

	// NotificationBits is the size class (log2 bytes) the kernel object
	// allocator reserves for one notification object.
	NotificationBits uint8
}

var (
	// AArch64 describes an ARMv8-A core with 48-bit virtual addressing.
	AArch64 = ArchParams{
		Name:             "aarch64",
		PointerBits:      48,
		ASIDHighBits:     7,
		ASIDLowBits:      9,
		NotificationBits: 6,
	}

	// RISCV64 describes an RV64 Sv39 core with 39-bit virtual addressing.
	RISCV64 = ArchParams{
		Name:             "riscv64",
		PointerBits:      39,
		ASIDHighBits:     7,
		ASIDLowBits:      9,
		NotificationBits: 6,
	}

	// Arch selects the parameter table for the modelled target.
	Arch = AArch64
)

// CanonicalAddressMask returns a mask covering the significant bits of a
// kernel virtual address on this architecture.
func (p ArchParams) CanonicalAddressMask() uintptr {
	return (uintptr(1) << p.PointerBits) - 1
}

// ASIDBits returns the total width of an ASID value.
func (p ArchParams) ASIDBits() uint8 {
	return p.ASIDHighBits + p.ASIDLowBits
}
