package main

import (
	"kestrel/kernel"
	"kestrel/kernel/cpu"
	"kestrel/kernel/fault"
	"kestrel/kernel/kfmt"
	"kestrel/kernel/mm"
	"kestrel/kernel/mm/pmm"
	"kestrel/kernel/ntfn"
	"kestrel/kernel/sync"
	"kestrel/kernel/task"
	"kestrel/kernel/trap"
	"kestrel/kernel/vspace"
)

// simMemoryBase is where the simulated physical memory region begins. The
// first megabyte stays reserved the way it would on a real board.
const simMemoryBase = uintptr(0x100000)

// machine aggregates the kernel core objects into one simulated board: a
// frame allocator, an ASID directory with the boot address space installed,
// a scheduler running the init thread and a trap dispatcher.
type machine struct {
	// lock is the kernel entry lock; kernel objects are only mutated
	// while it is held.
	lock sync.Spinlock

	sched *task.Scheduler
	dir   *vspace.Directory
	disp  *trap.Dispatcher

	ntfns   map[task.ObjRef]*ntfn.Notification
	nextRef task.ObjRef
}

func newMachine(regionStart, regionEnd uintptr) (*machine, *kernel.Error) {
	if err := pmm.Init(regionStart, regionEnd); err != nil {
		return nil, err
	}

	kernelRoot, err := mm.AllocFrame()
	if err != nil {
		return nil, err
	}
	dir := vspace.NewDirectory(kernelRoot)

	poolFrame, err := mm.AllocFrame()
	if err != nil {
		return nil, err
	}
	initRoot, err := mm.AllocFrame()
	if err != nil {
		return nil, err
	}
	dir.InstallInitialPool(vspace.NewPool(poolFrame), initRoot)

	sched, err := task.NewScheduler(&task.Registry{}, dir)
	if err != nil {
		return nil, err
	}

	// The init thread owns the initial task address space and takes the
	// core as soon as the first schedule pass commits.
	initThread, err := sched.Registry().Alloc("init", 100)
	if err != nil {
		return nil, err
	}
	initThread.VSpace = vspace.Cap{Root: initRoot, ASID: vspace.InitialTaskASID}
	sched.SetThreadState(initThread, task.Running)
	sched.PossibleSwitchTo(initThread)
	sched.Schedule()
	sched.ActivateCurrentThread()
	cpu.EnableInterrupts()

	return &machine{
		sched:   sched,
		dir:     dir,
		disp:    trap.NewDispatcher(sched),
		ntfns:   make(map[task.ObjRef]*ntfn.Notification),
		nextRef: 1,
	}, nil
}

func (m *machine) printBoot() {
	alloc := pmm.Allocator()
	kfmt.Printf("cpu    : %s\n", cpu.Arch.Name)
	kfmt.Printf("memory : %d/%d frames free\n", alloc.FreeFrames(), alloc.TotalFrames())
	kfmt.Printf("running: %s (asid %d)\n", m.sched.Current().Name, uint32(vspace.InitialTaskASID))
	kfmt.Printf("type 'help' for the command list\n")
}

// commit runs the kernel exit path after a monitor-injected operation: the
// pending scheduler action is committed and the selected thread activated.
func (m *machine) commit() {
	m.sched.Schedule()
	m.sched.ActivateCurrentThread()
}

// reportFault prints the record that was just delivered against t and what
// the schedule pass picked instead.
func (m *machine) reportFault(t *task.TCB) {
	w := &kfmt.PrefixWriter{Sink: kfmt.GetOutputSink(), Prefix: []byte("[fault] ")}

	switch f := t.Fault.(type) {
	case fault.VMFault:
		kind := "data abort"
		if f.Prefetch {
			kind = "instruction fault"
		}
		kfmt.Fprintf(w, "%s at %16x status %x\n", kind, uint64(f.Address), f.FSR)
	case fault.UserException:
		kfmt.Fprintf(w, "user exception %d code %x\n", f.Number, f.Code)
	case fault.UnknownSyscall:
		kfmt.Fprintf(w, "unknown syscall %d\n", f.Syscall)
	}

	kfmt.Fprintf(w, "thread %s suspended; now running %s\n", t.Name, m.sched.Current().Name)
}
