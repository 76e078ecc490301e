// Package trap implements the pipeline between the hardware trap vector and
// the scheduler: trap events are classified into fault records, the records
// are delivered against the faulting thread and a schedule-and-activate pass
// selects what runs next.
//
// A pending fault lives in a single-slot mailbox on the dispatcher. Trap
// entry fills the slot and delivery consumes it; the kernel's single
// execution flow guarantees at most one fault is in flight.
package trap

import (
	"kestrel/kernel"
	"kestrel/kernel/cpu"
	"kestrel/kernel/fault"
	"kestrel/kernel/task"
)

var errUnknownVMFaultType = &kernel.Error{Module: "trap", Message: "trap vector delivered an unknown vm fault type"}

// VMFaultType selects the flavor of a VM fault at the trap vector boundary.
type VMFaultType uint8

const (
	// DataAbort reports a failed data access.
	DataAbort VMFaultType = 0

	// InstructionFault reports a failed instruction fetch.
	InstructionFault VMFaultType = 1
)

// String implements fmt.Stringer for VMFaultType.
func (t VMFaultType) String() string {
	switch t {
	case DataAbort:
		return "data abort"
	case InstructionFault:
		return "instruction fault"
	}

	return "invalid vm fault type"
}

// Dispatcher owns the fault mailbox and the delivery path for one core.
type Dispatcher struct {
	sched *task.Scheduler

	currentFault fault.Fault

	faultAddressFn func() uintptr
	faultStatusFn  func() uint64
	deliverFaultFn func(d *Dispatcher, t *task.TCB)
}

// NewDispatcher returns a dispatcher feeding trap events raised against
// sched's current thread into the default fault delivery path.
func NewDispatcher(sched *task.Scheduler) *Dispatcher {
	return &Dispatcher{
		sched:          sched,
		faultAddressFn: cpu.FaultAddress,
		faultStatusFn:  cpu.FaultStatus,
		deliverFaultFn: recordFault,
	}
}

// CurrentFault returns the fault awaiting delivery, or nil outside a trap.
func (d *Dispatcher) CurrentFault() fault.Fault {
	return d.currentFault
}

// HandleUserLevelFault services the user exception trap. The two words come
// straight from the architecture trap frame and are passed through into the
// fault record untouched.
func (d *Dispatcher) HandleUserLevelFault(wordA, wordB uint64) {
	d.currentFault = fault.UserException{Number: wordA, Code: wordB}

	d.deliver()
	d.sched.Schedule()
	d.sched.ActivateCurrentThread()
}

// HandleVMFaultEvent services the VM fault trap. Data aborts read their
// faulting address from the fault-address register; instruction faults report
// the thread's saved instruction pointer instead, which is the only address
// source the hardware keeps valid for a failed fetch.
func (d *Dispatcher) HandleVMFaultEvent(kind VMFaultType) {
	switch kind {
	case DataAbort:
		d.currentFault = fault.VMFault{
			Address: d.faultAddressFn(),
			FSR:     d.faultStatusFn(),
		}
	case InstructionFault:
		d.currentFault = fault.VMFault{
			Address:  d.sched.Current().Regs.FaultIP,
			FSR:      d.faultStatusFn(),
			Prefetch: true,
		}
	default:
		panic(errUnknownVMFaultType)
	}

	d.deliver()
	d.sched.Schedule()
	d.sched.ActivateCurrentThread()
}

// HandleUnknownSyscall services a syscall trap whose number the kernel does
// not implement.
func (d *Dispatcher) HandleUnknownSyscall(syscall uint64) {
	d.currentFault = fault.UnknownSyscall{Syscall: syscall}

	d.deliver()
	d.sched.Schedule()
	d.sched.ActivateCurrentThread()
}

// deliver hands the pending fault to the delivery path on behalf of the
// current thread and empties the mailbox.
func (d *Dispatcher) deliver() {
	d.deliverFaultFn(d, d.sched.Current())
	d.currentFault = nil
}

// recordFault is the default fault delivery: the record parks on the TCB and
// the thread stays suspended until a handler restarts it.
func recordFault(d *Dispatcher, t *task.TCB) {
	t.Fault = d.currentFault
	d.sched.SetThreadState(t, task.Inactive)
}
