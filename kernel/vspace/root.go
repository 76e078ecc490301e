package vspace

import (
	"kestrel/kernel/cpu"
	"kestrel/kernel/fault"
	"kestrel/kernel/mm"
)

// Cap is the vspace capability surface this core consumes: the translation
// root frame the capability grants access to and the ASID it is mapped
// under. A capability with ASID 0 is unmapped and never derives a user
// translation root.
type Cap struct {
	Root mm.Frame
	ASID ASID
}

// Mapped reports whether the capability names a live ASID binding.
func (c Cap) Mapped() bool {
	return c.ASID != 0
}

// SetVMRoot derives the hardware translation root from cap and installs it.
// The capability is only honored when the directory still maps its ASID to
// the exact root it names; otherwise the global kernel root is installed so
// the core never runs under a freed translation root, and the lookup fault
// is reported to the caller.
func (d *Directory) SetVMRoot(cap Cap) *fault.Lookup {
	if !cap.Mapped() {
		d.InstallKernelRoot()
		return fault.InvalidRoot()
	}

	root, lf := d.FindVSpaceForASID(cap.ASID)
	if lf != nil || root != cap.Root {
		d.InstallKernelRoot()
		if lf == nil {
			lf = fault.InvalidRoot()
		}
		return lf
	}

	cpu.SetTranslationRoot(root.Address(), uint32(cap.ASID))
	return nil
}

// InstallKernelRoot points the MMU at the translation root holding only the
// global kernel window. No user ASID is tagged.
func (d *Directory) InstallKernelRoot() {
	cpu.SetTranslationRoot(d.kernelRoot.Address(), cpu.InvalidASID)
}
