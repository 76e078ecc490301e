package task

import (
	"io"

	"kestrel/kernel/kfmt"
)

// Regs is the slice of the user-level register file the kernel reads and
// writes on a thread's behalf: the badge register that receives delivered
// signal words and the two instruction pointers involved in fault handling.
type Regs struct {
	// Badge receives the accumulated badge word when a signal is
	// delivered to the thread.
	Badge uint64

	// FaultIP is the address of the instruction the thread trapped on.
	FaultIP uintptr

	// NextIP is the address where the thread resumes execution.
	NextIP uintptr
}

// DumpTo pretty-prints the register contents to w.
func (r *Regs) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "badge    : %16x\n", r.Badge)
	kfmt.Fprintf(w, "fault ip : %16x\n", uint64(r.FaultIP))
	kfmt.Fprintf(w, "next ip  : %16x\n", uint64(r.NextIP))
}
