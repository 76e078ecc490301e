// Package ntfn implements notification objects: word-sized signal
// accumulators that threads signal, poll and wait on.
//
// A notification is always in one of three states. Idle notifications carry
// nothing. Active notifications hold the badges of the signals delivered
// since the last receive, merged into a single word. Waiting notifications
// have a FIFO of threads blocked until the next signal arrives. Signaling and
// receiving move the object between these states; a thread bound to the
// notification additionally has signals pushed straight into its badge
// register while it waits for messages elsewhere.
package ntfn

import (
	"io"

	"kestrel/kernel"
	"kestrel/kernel/kfmt"
	"kestrel/kernel/task"
)

var errEmptyWaitQueue = &kernel.Error{Module: "ntfn", Message: "waiting notification has an empty queue"}

// State describes what a notification currently carries.
type State uint8

const (
	// StateIdle notifications hold no signals and no waiters.
	StateIdle State = iota

	// StateWaiting notifications have threads queued for the next signal.
	StateWaiting

	// StateActive notifications hold accumulated signal badges.
	StateActive
)

// String implements fmt.Stringer for State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateActive:
		return "active"
	}

	return "invalid notification state"
}

// Notification is a single notification object. Its method set mutates only
// the object and the TCBs handed to it; callers route scheduler effects
// through the supplied scheduler.
type Notification struct {
	state   State
	msgWord uint64

	boundThread task.ThreadID
	queue       task.WaitQueue

	ref task.ObjRef
}

// New returns an idle notification that identifies itself as ref in thread
// blocking relations.
func New(ref task.ObjRef) *Notification {
	return &Notification{ref: ref}
}

// State returns the notification's current state.
func (n *Notification) State() State {
	return n.state
}

// Word returns the accumulated badge word. Its value is only meaningful
// while the notification is active.
func (n *Notification) Word() uint64 {
	return n.msgWord
}

// BoundThread returns the ID of the thread bound to this notification, or
// zero if it is unbound.
func (n *Notification) BoundThread() task.ThreadID {
	return n.boundThread
}

// Ref returns the reference threads use to name this notification.
func (n *Notification) Ref() task.ObjRef {
	return n.ref
}

// SetActive loads badge as the accumulated word and marks the notification
// active.
func (n *Notification) SetActive(badge uint64) {
	n.state = StateActive
	n.msgWord = badge
}

// SendSignal delivers a signal with the supplied badge. A queued waiter or a
// bound thread that is blocked receiving consumes the signal immediately and
// becomes a candidate for dispatch; otherwise the badge accumulates in the
// notification word.
func (n *Notification) SendSignal(sched *task.Scheduler, badge uint64) {
	switch n.state {
	case StateIdle:
		// A bound thread blocked in a receive gets the signal pushed
		// through directly: its receive is cancelled and the badge
		// lands in its badge register.
		if t := sched.Registry().Resolve(n.boundThread); t != nil && t.State == task.BlockedOnReceive {
			task.CancelPendingReceive(t)
			sched.SetThreadState(t, task.Running)
			t.Regs.Badge = badge
			sched.PossibleSwitchTo(t)
			return
		}

		n.SetActive(badge)

	case StateWaiting:
		t := n.queue.Dequeue(sched.Registry())
		if t == nil {
			panic(errEmptyWaitQueue)
		}
		if n.queue.Empty() {
			n.state = StateIdle
		}

		t.BlockingObject = 0
		sched.SetThreadState(t, task.Running)
		t.Regs.Badge = badge
		sched.PossibleSwitchTo(t)

	case StateActive:
		n.msgWord |= badge
	}
}

// ReceiveSignal consumes a pending signal on behalf of t, delivering the
// accumulated word into the thread's badge register. With no signal pending
// a blocking receive parks t on the wait queue; a non-blocking one delivers
// a zero badge instead.
func (n *Notification) ReceiveSignal(sched *task.Scheduler, t *task.TCB, isBlocking bool) {
	switch n.state {
	case StateIdle, StateWaiting:
		if !isBlocking {
			t.Regs.Badge = 0
			return
		}

		t.BlockingObject = n.ref
		sched.SetThreadState(t, task.BlockedOnNotification)
		n.queue.Append(sched.Registry(), t)
		n.state = StateWaiting

	case StateActive:
		t.Regs.Badge = n.msgWord
		n.state = StateIdle
	}
}

// CancelSignal aborts the blocking receive that parked t on this
// notification. The thread leaves the queue suspended; resuming it is the
// caller's business.
func (n *Notification) CancelSignal(sched *task.Scheduler, t *task.TCB) {
	n.queue.Remove(sched.Registry(), t)
	if n.queue.Empty() {
		n.state = StateIdle
	}

	t.BlockingObject = 0
	sched.SetThreadState(t, task.Inactive)
}

// CancelAllSignals empties the wait queue, restarting every queued thread
// and forcing a queue scan at the next schedule point.
func (n *Notification) CancelAllSignals(sched *task.Scheduler) {
	if n.state != StateWaiting {
		return
	}

	reg := sched.Registry()
	head := n.queue.Head
	n.state = StateIdle
	n.queue = task.WaitQueue{}

	for id := head; id != 0; {
		t := reg.Resolve(id)
		id = t.EPNext

		t.EPPrev = 0
		t.EPNext = 0
		t.BlockingObject = 0
		sched.SetThreadState(t, task.Restart)
		sched.Enqueue(t)
	}

	sched.RescheduleRequired()
}

// BindThread records t as the thread bound to this notification. The caller
// owns the thread-side half of the binding.
func (n *Notification) BindThread(t *task.TCB) {
	n.boundThread = t.ID()
}

// UnbindThread drops the notification's half of a thread binding.
func (n *Notification) UnbindThread() {
	n.boundThread = 0
}

// SafeUnbindThread drops both halves of a thread binding.
func (n *Notification) SafeUnbindThread(reg *task.Registry) {
	bound := n.boundThread
	n.boundThread = 0

	if t := reg.Resolve(bound); t != nil {
		t.BoundNotification = 0
	}
}

// DumpTo pretty-prints the notification to w, resolving thread names through
// reg.
func (n *Notification) DumpTo(w io.Writer, reg *task.Registry) {
	kfmt.Fprintf(w, "state : %s\n", n.state.String())
	kfmt.Fprintf(w, "word  : %16x\n", n.msgWord)

	bound := "-"
	if t := reg.Resolve(n.boundThread); t != nil {
		bound = t.Name
	}
	kfmt.Fprintf(w, "bound : %s\n", bound)

	kfmt.Fprintf(w, "queue :")
	for id := n.queue.Head; id != 0; id = reg.Resolve(id).EPNext {
		kfmt.Fprintf(w, " %s", reg.Resolve(id).Name)
	}
	kfmt.Fprintf(w, "\n")
}
