package ntfn

import (
	"testing"
	"unsafe"

	"kestrel/kernel/cpu"
	"kestrel/kernel/mm"
	"kestrel/kernel/task"
	"kestrel/kernel/vspace"
)

func newTestScheduler(t *testing.T) *task.Scheduler {
	t.Helper()

	sched, err := task.NewScheduler(&task.Registry{}, vspace.NewDirectory(mm.FrameFromAddress(0x80000000)))
	if err != nil {
		t.Fatal(err)
	}
	return sched
}

func spawnThread(t *testing.T, sched *task.Scheduler, name string, prio uint8, state task.State) *task.TCB {
	t.Helper()

	tcb, err := sched.Registry().Alloc(name, prio)
	if err != nil {
		t.Fatal(err)
	}
	tcb.State = state
	return tcb
}

func TestSignalAccumulatesBadges(t *testing.T) {
	sched := newTestScheduler(t)
	receiver := spawnThread(t, sched, "receiver", 10, task.Running)
	n := New(1)

	for _, badge := range []uint64{0x1, 0x2, 0x4} {
		n.SendSignal(sched, badge)
	}

	if n.State() != StateActive || n.Word() != 0x7 {
		t.Fatalf("expected an active notification with word 7; got %s with word %x", n.State().String(), n.Word())
	}

	n.ReceiveSignal(sched, receiver, true)

	if receiver.Regs.Badge != 0x7 {
		t.Fatalf("expected the receiver badge to hold the merged word 7; got %x", receiver.Regs.Badge)
	}
	if n.State() != StateIdle {
		t.Fatalf("expected the notification to go idle once consumed; got %s", n.State().String())
	}
	if receiver.State != task.Running {
		t.Fatal("expected the receiver to keep running when a signal is pending")
	}
}

func TestNonBlockingReceiveDeliversZeroBadge(t *testing.T) {
	sched := newTestScheduler(t)
	receiver := spawnThread(t, sched, "receiver", 10, task.Running)
	receiver.Regs.Badge = 0xdead
	n := New(1)

	n.ReceiveSignal(sched, receiver, false)

	if receiver.Regs.Badge != 0 {
		t.Fatalf("expected a zero badge from an empty poll; got %x", receiver.Regs.Badge)
	}
	if receiver.State != task.Running || n.State() != StateIdle {
		t.Fatal("expected an empty poll to change neither the thread nor the notification")
	}
}

func TestBlockingReceiversQueueFIFO(t *testing.T) {
	sched := newTestScheduler(t)
	n := New(7)

	waiters := make([]*task.TCB, 3)
	for i, name := range []string{"first", "second", "third"} {
		waiters[i] = spawnThread(t, sched, name, 10, task.Running)
		n.ReceiveSignal(sched, waiters[i], true)
	}

	if n.State() != StateWaiting {
		t.Fatalf("expected a waiting notification; got %s", n.State().String())
	}
	for i, w := range waiters {
		if w.State != task.BlockedOnNotification || w.BlockingObject != n.Ref() {
			t.Fatalf("[waiter %d] expected the thread to block on the notification", i)
		}
	}

	badges := []uint64{0xa0, 0xb0, 0xc0}
	for _, badge := range badges {
		n.SendSignal(sched, badge)
	}

	for i, w := range waiters {
		if w.Regs.Badge != badges[i] {
			t.Fatalf("[waiter %d] expected badge %x delivered in FIFO order; got %x", i, badges[i], w.Regs.Badge)
		}
		if w.State != task.Running || w.BlockingObject != 0 {
			t.Fatalf("[waiter %d] expected the woken thread to be runnable and detached", i)
		}
	}

	if n.State() != StateIdle {
		t.Fatalf("expected the notification to go idle once the queue drains; got %s", n.State().String())
	}
}

func TestSignalPushedToBoundReceiver(t *testing.T) {
	sched := newTestScheduler(t)
	bound := spawnThread(t, sched, "bound", 10, task.BlockedOnReceive)
	bound.BlockingObject = 42
	n := New(1)

	n.BindThread(bound)
	bound.BoundNotification = n.Ref()

	n.SendSignal(sched, 0x55)

	if bound.State != task.Running || bound.Regs.Badge != 0x55 {
		t.Fatalf("expected the bound receiver to wake with badge 55; got %s with %x", bound.State.String(), bound.Regs.Badge)
	}
	if bound.BlockingObject != 0 || bound.EPPrev != 0 || bound.EPNext != 0 {
		t.Fatal("expected the cancelled receive to detach the thread")
	}
	if n.State() != StateIdle || n.Word() != 0 {
		t.Fatal("expected the direct delivery to bypass the notification word")
	}

	sched.Schedule()
	if sched.Current() != bound {
		t.Fatal("expected the woken receiver to become a dispatch candidate")
	}
}

func TestSignalIgnoresBoundThreadNotInReceive(t *testing.T) {
	specs := []task.State{
		task.Running,
		task.BlockedOnNotification,
		task.Inactive,
	}

	for specIndex, state := range specs {
		sched := newTestScheduler(t)
		bound := spawnThread(t, sched, "bound", 10, state)
		n := New(1)
		n.BindThread(bound)

		n.SendSignal(sched, 0x55)

		if n.State() != StateActive || n.Word() != 0x55 {
			t.Errorf("[spec %d] expected the badge to accumulate in the notification; got %s with %x",
				specIndex, n.State().String(), n.Word())
		}
		if bound.State != state {
			t.Errorf("[spec %d] expected the bound thread state to stay %s; got %s",
				specIndex, state.String(), bound.State.String())
		}
	}
}

func TestSignalOnWaitingEmptyQueuePanics(t *testing.T) {
	defer func() {
		if err := recover(); err != errEmptyWaitQueue {
			t.Fatalf("expected errEmptyWaitQueue; got %v", err)
		}
	}()

	sched := newTestScheduler(t)
	n := New(1)
	n.state = StateWaiting

	n.SendSignal(sched, 0x1)
}

func TestCancelSignal(t *testing.T) {
	sched := newTestScheduler(t)
	n := New(3)

	w1 := spawnThread(t, sched, "first", 10, task.Running)
	w2 := spawnThread(t, sched, "second", 10, task.Running)
	n.ReceiveSignal(sched, w1, true)
	n.ReceiveSignal(sched, w2, true)

	n.CancelSignal(sched, w1)

	if w1.State != task.Inactive || w1.BlockingObject != 0 {
		t.Fatal("expected the cancelled thread to be suspended and detached")
	}
	if n.State() != StateWaiting {
		t.Fatal("expected the notification to keep waiting for the remaining thread")
	}

	n.CancelSignal(sched, w2)

	if n.State() != StateIdle {
		t.Fatal("expected the notification to go idle once the queue empties")
	}
}

func TestCancelAllSignals(t *testing.T) {
	sched := newTestScheduler(t)
	n := New(3)

	waiters := []*task.TCB{
		spawnThread(t, sched, "low", 10, task.Running),
		spawnThread(t, sched, "high", 50, task.Running),
		spawnThread(t, sched, "mid", 30, task.Running),
	}
	for _, w := range waiters {
		n.ReceiveSignal(sched, w, true)
	}

	n.CancelAllSignals(sched)

	if n.State() != StateIdle || !n.queue.Empty() {
		t.Fatal("expected the notification to reset to idle with an empty queue")
	}
	for i, w := range waiters {
		if w.State != task.Restart {
			t.Errorf("[waiter %d] expected the thread to restart; got %s", i, w.State.String())
		}
		if !w.Queued {
			t.Errorf("[waiter %d] expected the thread to wait in its ready queue", i)
		}
		if w.EPPrev != 0 || w.EPNext != 0 || w.BlockingObject != 0 {
			t.Errorf("[waiter %d] expected the thread to be detached from the notification", i)
		}
	}

	// The bulk cancel forces a queue scan, so the highest-priority waiter
	// wins the next schedule point.
	sched.Schedule()
	if sched.Current() != waiters[1] {
		t.Fatalf("expected the highest-priority waiter to run; got %s", sched.Current().Name)
	}

	// Cancelling an idle notification is a no-op.
	n.CancelAllSignals(sched)
	if n.State() != StateIdle {
		t.Fatal("expected a second cancel to change nothing")
	}
}

func TestBindUnbind(t *testing.T) {
	sched := newTestScheduler(t)
	bound := spawnThread(t, sched, "bound", 10, task.Running)
	n := New(9)

	n.BindThread(bound)
	if n.BoundThread() != bound.ID() {
		t.Fatal("expected the notification to record the bound thread")
	}
	if bound.BoundNotification != 0 {
		t.Fatal("expected the thread-side half of the binding to stay with the caller")
	}

	n.UnbindThread()
	if n.BoundThread() != 0 {
		t.Fatal("expected the notification side of the binding to clear")
	}

	n.BindThread(bound)
	bound.BoundNotification = n.Ref()
	n.SafeUnbindThread(sched.Registry())

	if n.BoundThread() != 0 || bound.BoundNotification != 0 {
		t.Fatal("expected both halves of the binding to clear")
	}
}

func TestNotificationFitsObjectFootprint(t *testing.T) {
	footprint := uintptr(1) << cpu.Arch.NotificationBits
	if size := unsafe.Sizeof(Notification{}); size > footprint {
		t.Fatalf("notification occupies %d bytes; the object size class allows %d", size, footprint)
	}
}
