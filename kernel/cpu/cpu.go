// Package cpu models the privileged machine state that the kernel manipulates
// through raw instructions on real hardware: the fault syndrome registers, the
// active translation root and the TLB. The kernel proper never touches this
// state directly; it goes through function values that tests can swap out, so
// the package doubles as the default collaborator implementation for the
// hosted build.
package cpu

const (
	// InvalidASID is never produced by the ASID allocation path and tags
	// machine state that does not belong to any address space.
	InvalidASID = uint32(0xffffffff)
)

var (
	// faultAddressReg mirrors FAR_EL1 (aarch64) / stval (riscv64): the
	// virtual address that triggered the most recent data abort.
	faultAddressReg uintptr

	// faultStatusReg mirrors ESR_EL1 / scause: the syndrome describing the
	// most recent fault.
	faultStatusReg uint64

	// activeRoot/activeASID mirror TTBR0_EL1 / satp: the translation root
	// the MMU currently walks and the ASID its entries are tagged with.
	activeRoot uintptr
	activeASID = InvalidASID

	// tlbTags is the set of ASIDs for which the model assumes cached
	// translations exist. Installing a translation root tags its ASID;
	// TLBInvalidateASID removes the tag.
	tlbTags = make(map[uint32]struct{})

	interruptsEnabled bool
)

// FaultAddress returns the faulting virtual address recorded by the MMU for
// the most recent data abort.
func FaultAddress() uintptr {
	return faultAddressReg
}

// FaultStatus returns the fault syndrome recorded for the most recent abort.
func FaultStatus() uint64 {
	return faultStatusReg
}

// SetFaultRegisters loads the simulated syndrome registers. The embedder calls
// this immediately before raising a VM-fault trap, the same way hardware
// latches FAR/ESR before vectoring to the kernel.
func SetFaultRegisters(addr uintptr, status uint64) {
	faultAddressReg = addr
	faultStatusReg = status
}

// SetTranslationRoot points the MMU at a new top-level translation table and
// tags future walks with the supplied ASID. The model assumes translations
// become cached as soon as the root is active, so the ASID is tagged into the
// TLB here.
func SetTranslationRoot(root uintptr, asid uint32) {
	activeRoot = root
	activeASID = asid
	if asid != InvalidASID {
		tlbTags[asid] = struct{}{}
	}
}

// ActiveTranslationRoot returns the currently installed translation root and
// the ASID its translations are tagged with.
func ActiveTranslationRoot() (uintptr, uint32) {
	return activeRoot, activeASID
}

// TagTLB records that the running address space pulled a translation for asid
// into the TLB. Tests use it to model cached entries for address spaces other
// than the active one.
func TagTLB(asid uint32) {
	tlbTags[asid] = struct{}{}
}

// TLBInvalidateASID drops every cached translation tagged with asid from the
// local TLB.
func TLBInvalidateASID(asid uint32) {
	delete(tlbTags, asid)
}

// TLBTagged reports whether the TLB still holds translations tagged with asid.
func TLBTagged(asid uint32) bool {
	_, ok := tlbTags[asid]
	return ok
}

// EnableInterrupts enables interrupt delivery to the simulated core.
func EnableInterrupts() {
	interruptsEnabled = true
}

// DisableInterrupts masks interrupt delivery to the simulated core.
func DisableInterrupts() {
	interruptsEnabled = false
}

// InterruptsEnabled reports whether the simulated core accepts interrupts.
func InterruptsEnabled() bool {
	return interruptsEnabled
}

// Reset returns the simulated machine to its power-on state. Tests and the
// monitor call it between scenarios.
func Reset() {
	faultAddressReg = 0
	faultStatusReg = 0
	activeRoot = 0
	activeASID = InvalidASID
	tlbTags = make(map[uint32]struct{})
	interruptsEnabled = false
}

// Halt stops instruction execution. It never returns.
func Halt() {
	select {}
}
