package task

import (
	"kestrel/kernel/fault"
	"kestrel/kernel/vspace"
)

// ThreadID names a thread tracked by a Registry. The zero value names no
// thread; wait queue links use it as their nil.
type ThreadID uint32

// ObjRef names a kernel object that threads block on or get bound to. The
// zero value names no object.
type ObjRef uint32

// TCB is the thread control block: the kernel-side record of one thread. All
// blocking and binding relations are expressed through IDs and references so
// a TCB never outlives or dangles into another object.
type TCB struct {
	id ThreadID

	// Name identifies the thread in monitor output.
	Name string

	// State is the thread's lifecycle state.
	State State

	// Priority orders the thread relative to other runnable threads.
	// Higher values run first.
	Priority uint8

	// Domain is the scheduling domain the thread belongs to.
	Domain uint8

	// TimeSlice is the number of timer ticks left before the thread yields
	// the core to its priority peers.
	TimeSlice uint8

	// Regs holds the thread's saved user-level registers.
	Regs Regs

	// EPPrev and EPNext link the thread into the wait queue of the object
	// named by BlockingObject.
	EPPrev, EPNext ThreadID

	// BlockingObject names the object the thread is blocked on while in
	// one of the blocked states.
	BlockingObject ObjRef

	// BoundNotification names the notification bound to the thread, if
	// any.
	BoundNotification ObjRef

	// Fault is the pending fault recorded against the thread, if any. It
	// stays set until a handler responds or the thread is restarted.
	Fault fault.Fault

	// VSpace is the address space the thread executes in.
	VSpace vspace.Cap

	// Queued is set while the thread sits in a scheduler ready queue.
	Queued bool

	schedNode *ThreadIDNodeDL
}

// ID returns the thread's identifier.
func (t *TCB) ID() ThreadID {
	return t.id
}

// CancelPendingReceive aborts the receive t is blocked on, detaching it from
// the object it waits on and leaving it suspended for the caller to resume.
func CancelPendingReceive(t *TCB) {
	t.BlockingObject = 0
	t.EPPrev = 0
	t.EPNext = 0
	t.State = Inactive
}
