// Package task implements thread control blocks and the priority scheduler
// that selects which thread the core runs next.
//
// Scheduling decisions are deferred: kernel operations that change thread
// runnability record an action (resume the interrupted thread, switch to a
// designated thread, or scan the ready queues) and the action is committed by
// a single Schedule call on the way back to user code. Ready threads wait in
// one FIFO per priority; a two-level bitmap over the queues makes finding the
// highest occupied priority two word scans.
package task

//go:generate genny -in=../../gen/doubly_linked.go -out=threadid_dl.go -pkg=task gen "Generic=ThreadID"

import (
	"io"
	"math/bits"

	"kestrel/kernel"
	"kestrel/kernel/kfmt"
	"kestrel/kernel/vspace"
)

// NumPriorities is the number of distinct thread priorities. Higher values
// run first.
const NumPriorities = 256

// timeSlice is the number of timer ticks a thread owns the core before its
// priority peers get a turn.
const timeSlice = 5

var (
	errSchedNodeExhausted = &kernel.Error{Module: "task", Message: "ready queue node pool exhausted"}
	errActivateBlocked    = &kernel.Error{Module: "task", Message: "attempt to activate a non-runnable thread"}
)

type actionKind uint8

const (
	// actionResumeCurrent resumes the interrupted thread without touching
	// the ready queues.
	actionResumeCurrent actionKind = iota

	// actionChooseNew scans the ready queues for the highest-priority
	// thread at the next schedule point.
	actionChooseNew

	// actionSwitchTo dispatches a designated thread at the next schedule
	// point unless a higher-priority thread is ready.
	actionSwitchTo
)

// Scheduler tracks the runnable threads of one core and decides which of
// them to dispatch. It is driven from a single kernel flow and performs no
// locking.
type Scheduler struct {
	registry *Registry
	dir      *vspace.Directory

	current ThreadID
	idle    ThreadID

	actionKind   actionKind
	actionTarget ThreadID

	currentDomain uint8

	queues   [NumPriorities]ThreadIDListDL
	nodePool *ThreadIDNodePool

	// l1Bitmap has one bit per l2Bitmap word that contains set bits;
	// l2Bitmap has one bit per priority with a non-empty ready queue.
	l1Bitmap uint64
	l2Bitmap [NumPriorities / 64]uint64
}

// NewScheduler returns a scheduler dispatching threads from registry into the
// address spaces tracked by dir. It allocates the idle thread as the first
// registry entry and selects it as the current thread.
func NewScheduler(registry *Registry, dir *vspace.Directory) (*Scheduler, *kernel.Error) {
	idle, err := registry.Alloc("idle", 0)
	if err != nil {
		return nil, err
	}
	idle.State = IdleThreadState

	return &Scheduler{
		registry: registry,
		dir:      dir,
		current:  idle.id,
		idle:     idle.id,
		nodePool: NewThreadIDNodePool(MaxThreads),
	}, nil
}

// Registry returns the registry the scheduler dispatches threads from.
func (s *Scheduler) Registry() *Registry {
	return s.registry
}

// Current returns the TCB of the thread selected to run.
func (s *Scheduler) Current() *TCB {
	return s.registry.Resolve(s.current)
}

// Idle returns the ID of the idle thread.
func (s *Scheduler) Idle() ThreadID {
	return s.idle
}

// SetCurrentDomain switches the scheduling domain whose threads are eligible
// for direct dispatch.
func (s *Scheduler) SetCurrentDomain(domain uint8) {
	s.currentDomain = domain
}

// Enqueue inserts t at the head of the ready queue for its priority. Queued
// threads stay where they are.
func (s *Scheduler) Enqueue(t *TCB) {
	if t.Queued {
		return
	}

	n := s.nodePool.Get()
	if n == nil {
		panic(errSchedNodeExhausted)
	}
	n.Value = t.id

	s.queues[t.Priority].PushNode(n)
	s.markQueued(t.Priority)
	t.schedNode = n
	t.Queued = true
}

// Append inserts t at the tail of the ready queue for its priority. Queued
// threads stay where they are.
func (s *Scheduler) Append(t *TCB) {
	if t.Queued {
		return
	}

	n := s.nodePool.Get()
	if n == nil {
		panic(errSchedNodeExhausted)
	}
	n.Value = t.id

	s.queues[t.Priority].AppendNode(n)
	s.markQueued(t.Priority)
	t.schedNode = n
	t.Queued = true
}

// Dequeue removes t from the ready queue for its priority. Threads that are
// not queued are left alone.
func (s *Scheduler) Dequeue(t *TCB) {
	if !t.Queued {
		return
	}

	s.queues[t.Priority].RemoveNode(t.schedNode)
	s.nodePool.Put(t.schedNode)
	if s.queues[t.Priority].Empty() {
		s.markEmpty(t.Priority)
	}
	t.schedNode = nil
	t.Queued = false
}

// SetThreadState transitions t to state. If the transition stalls the thread
// selected to run, the pending resume is demoted to a full queue scan.
func (s *Scheduler) SetThreadState(t *TCB, state State) {
	t.State = state
	s.scheduleTCB(t)
}

func (s *Scheduler) scheduleTCB(t *TCB) {
	if t.id == s.current && s.actionKind == actionResumeCurrent && !t.State.Runnable() {
		s.RescheduleRequired()
	}
}

// PossibleSwitchTo offers t as the thread to dispatch at the next schedule
// point. Threads outside the current domain only become ready; a second
// candidate before the schedule point demotes the action to a full queue
// scan so neither candidate jumps the queues.
func (s *Scheduler) PossibleSwitchTo(t *TCB) {
	if t.Domain != s.currentDomain {
		s.Enqueue(t)
		return
	}

	if s.actionKind != actionResumeCurrent {
		s.RescheduleRequired()
		s.Enqueue(t)
		return
	}

	s.actionKind = actionSwitchTo
	s.actionTarget = t.id
}

// RescheduleRequired forces a full queue scan at the next schedule point. A
// previously designated switch target is preserved in its ready queue.
func (s *Scheduler) RescheduleRequired() {
	if s.actionKind == actionSwitchTo {
		s.Enqueue(s.registry.Resolve(s.actionTarget))
	}
	s.actionKind = actionChooseNew
	s.actionTarget = 0
}

// Schedule commits the pending scheduler action. It returns with a thread
// selected as current, its address space installed and the action reset to
// resume.
func (s *Scheduler) Schedule() {
	if s.actionKind != actionResumeCurrent {
		cur := s.Current()
		wasRunnable := cur.State.Runnable()
		if wasRunnable {
			s.Enqueue(cur)
		}

		if s.actionKind == actionChooseNew {
			s.chooseNewThread()
		} else {
			candidate := s.registry.Resolve(s.actionTarget)

			// Switching is pointless when the candidate loses
			// against the ready queues: verify it beats them
			// before bypassing the scan.
			fastfail := s.current == s.idle || candidate.Priority < cur.Priority
			switch {
			case fastfail && !s.isHighestPrio(candidate.Priority):
				s.Enqueue(candidate)
				s.chooseNewThread()
			case wasRunnable && candidate.Priority == cur.Priority:
				// Round-robin between peers: the interrupted
				// thread keeps the head slot it just got.
				s.Append(candidate)
				s.chooseNewThread()
			default:
				s.switchToThread(candidate)
			}
		}
	}

	s.actionKind = actionResumeCurrent
	s.actionTarget = 0
}

// TimerTick charges the running thread for one elapsed timer interrupt. A
// thread that exhausts its timeslice moves to the back of the queue for its
// priority and a queue scan is forced.
func (s *Scheduler) TimerTick() {
	cur := s.Current()
	if !cur.State.Runnable() {
		return
	}

	if cur.TimeSlice > 1 {
		cur.TimeSlice--
		return
	}

	cur.TimeSlice = timeSlice
	s.Append(cur)
	s.RescheduleRequired()
}

// ActivateCurrentThread prepares the selected thread to re-enter user code.
// A restarted thread re-executes the instruction it faulted on.
func (s *Scheduler) ActivateCurrentThread() {
	cur := s.Current()
	switch cur.State {
	case Running, IdleThreadState:
	case Restart:
		cur.Regs.NextIP = cur.Regs.FaultIP
		s.SetThreadState(cur, Running)
	default:
		panic(errActivateBlocked)
	}
}

func (s *Scheduler) chooseNewThread() {
	if s.l1Bitmap == 0 {
		s.switchToIdleThread()
		return
	}

	n := s.queues[s.highestPrio()].First()
	s.switchToThread(s.registry.Resolve(n.Value))
}

func (s *Scheduler) switchToThread(t *TCB) {
	s.dir.SetVMRoot(t.VSpace)
	s.Dequeue(t)
	s.current = t.id
}

func (s *Scheduler) switchToIdleThread() {
	s.dir.InstallKernelRoot()
	s.current = s.idle
}

func (s *Scheduler) markQueued(prio uint8) {
	s.l2Bitmap[prio>>6] |= 1 << (prio & 63)
	s.l1Bitmap |= 1 << (prio >> 6)
}

func (s *Scheduler) markEmpty(prio uint8) {
	s.l2Bitmap[prio>>6] &^= 1 << (prio & 63)
	if s.l2Bitmap[prio>>6] == 0 {
		s.l1Bitmap &^= 1 << (prio >> 6)
	}
}

// highestPrio returns the highest priority with a queued thread. At least one
// thread must be queued.
func (s *Scheduler) highestPrio() uint8 {
	l1 := uint(bits.Len64(s.l1Bitmap)) - 1
	l2 := uint(bits.Len64(s.l2Bitmap[l1])) - 1
	return uint8(l1<<6 | l2)
}

func (s *Scheduler) isHighestPrio(prio uint8) bool {
	return s.l1Bitmap == 0 || prio >= s.highestPrio()
}

// DumpTo writes a table of every allocated thread and its scheduler state to
// w. The thread selected to run is marked with a star.
func (s *Scheduler) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "  id | prio | queued | state                   | name\n")
	kfmt.Fprintf(w, "-----+------+--------+-------------------------+---------------\n")
	s.registry.ForEach(func(t *TCB) {
		marker, queued := " ", "false"
		if t.id == s.current {
			marker = "*"
		}
		if t.Queued {
			queued = "true"
		}
		kfmt.Fprintf(w, "%s%3d | %4d | %6s | %23s | %s\n",
			marker, uint32(t.id), t.Priority, queued, t.State.String(), t.Name)
	})
}
