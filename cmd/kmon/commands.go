package main

import (
	"strconv"
	"strings"

	"kestrel/kernel/cpu"
	"kestrel/kernel/kfmt"
	"kestrel/kernel/mm"
	"kestrel/kernel/mm/pmm"
	"kestrel/kernel/ntfn"
	"kestrel/kernel/task"
	"kestrel/kernel/trap"
	"kestrel/kernel/vspace"
)

const helpText = `commands:
  threads                    list all threads
  spawn <name> <prio>        create a runnable thread
  regs [thread]              dump thread registers
  run                        commit the pending schedule and activate
  tick                       deliver a timer tick, then run

  mkntfn                     create a notification object
  ntfn <ref>                 dump a notification object
  signal <ref> <badge>       signal a notification
  wait <thread> <ref>        blocking receive on a notification
  poll <thread> <ref>        non-blocking receive on a notification
  cancel <ref>               restart every thread waiting on a notification
  bind <thread> <ref>        bind a notification to a thread
  unbind <ref>               unbind a notification from its thread

  asid pool <base>           install a pool covering base..base+poolsize
  asid bind <asid>           bind a fresh translation root to an asid
  asid find <asid>           look up the translation root for an asid
  asid attach <thread> <asid> give a thread the address space of an asid
  asid delete <asid>         delete an asid binding
  asid delpool <base>        delete the pool covering base

  fault data <addr> <status>  raise a data abort against the running thread
  fault fetch <ip> <status>   raise an instruction fault at ip
  fault user <num> <code>     raise a user exception
  fault syscall <num>         raise an unknown syscall trap

  mmu                        show the active translation root
  tlb <asid>                 show whether the TLB holds entries for asid
  mem                        show frame allocator statistics
  quit                       leave the monitor
`

// dispatchLine executes one monitor command. Each command models one kernel
// entry and runs with the kernel lock held. It reports whether the monitor
// should exit.
func (m *machine) dispatchLine(line string) bool {
	if line == "" {
		return false
	}

	m.lock.Acquire()
	cpu.DisableInterrupts()
	defer func() {
		cpu.EnableInterrupts()
		m.lock.Release()
	}()

	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help":
		kfmt.Printf("%s", helpText)
	case "quit", "exit":
		return true
	case "threads":
		m.sched.DumpTo(kfmt.GetOutputSink())
	case "spawn":
		m.spawnCmd(args)
	case "regs":
		m.regsCmd(args)
	case "run":
		m.commit()
		kfmt.Printf("running: %s\n", m.sched.Current().Name)
	case "tick":
		m.sched.TimerTick()
		m.commit()
		kfmt.Printf("running: %s\n", m.sched.Current().Name)
	case "mkntfn":
		ref := m.nextRef
		m.nextRef++
		m.ntfns[ref] = ntfn.New(ref)
		kfmt.Printf("notification %d created\n", uint32(ref))
	case "ntfn":
		if n := m.ntfnArg(args, 0); n != nil {
			n.DumpTo(kfmt.GetOutputSink(), m.sched.Registry())
		}
	case "signal":
		m.signalCmd(args)
	case "wait":
		m.receiveCmd(args, true)
	case "poll":
		m.receiveCmd(args, false)
	case "cancel":
		if n := m.ntfnArg(args, 0); n != nil {
			n.CancelAllSignals(m.sched)
			m.commit()
			kfmt.Printf("running: %s\n", m.sched.Current().Name)
		}
	case "bind":
		m.bindCmd(args)
	case "unbind":
		if n := m.ntfnArg(args, 0); n != nil {
			n.SafeUnbindThread(m.sched.Registry())
		}
	case "asid":
		m.asidCmd(args)
	case "fault":
		m.faultCmd(args)
	case "mmu":
		root, asid := cpu.ActiveTranslationRoot()
		kfmt.Printf("root %16x asid %8x (kernel root %16x)\n",
			uint64(root), asid, uint64(m.dir.KernelRoot().Address()))
	case "tlb":
		if v, ok := numArg(args, 0); ok {
			kfmt.Printf("tlb tagged for asid %d: %t\n", uint32(v), cpu.TLBTagged(uint32(v)))
		}
	case "mem":
		alloc := pmm.Allocator()
		kfmt.Printf("%d/%d frames free\n", alloc.FreeFrames(), alloc.TotalFrames())
	default:
		kfmt.Printf("unknown command %s; try 'help'\n", cmd)
	}

	return false
}

func (m *machine) spawnCmd(args []string) {
	if len(args) != 2 {
		kfmt.Printf("usage: spawn <name> <prio>\n")
		return
	}
	prio, ok := numArg(args, 1)
	if !ok || prio > 255 {
		kfmt.Printf("spawn: priority must be 0..255\n")
		return
	}

	t, err := m.sched.Registry().Alloc(args[0], uint8(prio))
	if err != nil {
		kfmt.Printf("spawn: %s\n", err.Message)
		return
	}

	m.sched.SetThreadState(t, task.Running)
	m.sched.PossibleSwitchTo(t)
	kfmt.Printf("thread %d (%s) ready; 'run' to commit\n", uint32(t.ID()), t.Name)
}

func (m *machine) regsCmd(args []string) {
	t := m.sched.Current()
	if len(args) > 0 {
		if t = m.threadArg(args, 0); t == nil {
			return
		}
	}

	kfmt.Printf("%s:\n", t.Name)
	t.Regs.DumpTo(kfmt.GetOutputSink())
}

func (m *machine) signalCmd(args []string) {
	n := m.ntfnArg(args, 0)
	badge, ok := numArg(args, 1)
	if n == nil || !ok {
		return
	}

	n.SendSignal(m.sched, badge)
	m.commit()
	kfmt.Printf("running: %s\n", m.sched.Current().Name)
}

func (m *machine) receiveCmd(args []string, isBlocking bool) {
	t := m.threadArg(args, 0)
	n := m.ntfnArg(args, 1)
	if t == nil || n == nil {
		return
	}

	n.ReceiveSignal(m.sched, t, isBlocking)
	m.commit()

	if t.State == task.BlockedOnNotification {
		kfmt.Printf("%s blocked waiting for a signal\n", t.Name)
	} else {
		kfmt.Printf("%s received badge %x\n", t.Name, t.Regs.Badge)
	}
	kfmt.Printf("running: %s\n", m.sched.Current().Name)
}

func (m *machine) bindCmd(args []string) {
	t := m.threadArg(args, 0)
	n := m.ntfnArg(args, 1)
	if t == nil || n == nil {
		return
	}

	if t.BoundNotification != 0 || n.BoundThread() != 0 {
		kfmt.Printf("bind: thread or notification is already bound\n")
		return
	}
	if n.State() != ntfn.StateIdle {
		kfmt.Printf("bind: notification must be idle\n")
		return
	}

	n.BindThread(t)
	t.BoundNotification = n.Ref()
}

func (m *machine) asidCmd(args []string) {
	if len(args) == 0 {
		kfmt.Printf("usage: asid pool|bind|find|attach|delete|delpool ...\n")
		return
	}

	switch args[0] {
	case "pool":
		base, ok := numArg(args, 1)
		if !ok {
			return
		}
		frame, err := mm.AllocFrame()
		if err != nil {
			kfmt.Printf("asid pool: %s\n", err.Message)
			return
		}
		if err := m.dir.AssignPool(vspace.ASID(base), vspace.NewPool(frame)); err != nil {
			kfmt.Printf("asid pool: %s\n", err.Message)
			return
		}
		kfmt.Printf("pool installed for asids %d..%d\n", uint32(base), uint32(base)+vspace.PoolSize-1)
	case "bind":
		asid, ok := numArg(args, 1)
		if !ok {
			return
		}
		root, err := mm.AllocFrame()
		if err != nil {
			kfmt.Printf("asid bind: %s\n", err.Message)
			return
		}
		if err := m.dir.BindVSpace(vspace.ASID(asid), root); err != nil {
			kfmt.Printf("asid bind: %s\n", err.Message)
			return
		}
		kfmt.Printf("asid %d -> root %16x\n", uint32(asid), uint64(root.Address()))
	case "find":
		asid, ok := numArg(args, 1)
		if !ok {
			return
		}
		root, lf := m.dir.FindVSpaceForASID(vspace.ASID(asid))
		if lf != nil {
			kfmt.Printf("asid %d: lookup fault: %s\n", uint32(asid), lf.String())
			return
		}
		kfmt.Printf("asid %d -> root %16x\n", uint32(asid), uint64(root.Address()))
	case "attach":
		t := m.threadArg(args, 1)
		asid, ok := numArg(args, 2)
		if t == nil || !ok {
			return
		}
		root, lf := m.dir.FindVSpaceForASID(vspace.ASID(asid))
		if lf != nil {
			kfmt.Printf("asid attach: lookup fault: %s\n", lf.String())
			return
		}
		t.VSpace = vspace.Cap{Root: root, ASID: vspace.ASID(asid)}
	case "delete":
		asid, ok := numArg(args, 1)
		if !ok {
			return
		}
		root, lf := m.dir.FindVSpaceForASID(vspace.ASID(asid))
		if lf != nil {
			kfmt.Printf("asid delete: lookup fault: %s\n", lf.String())
			return
		}
		if lf := m.dir.DeleteASID(vspace.ASID(asid), root, m.sched.Current().VSpace); lf != nil {
			kfmt.Printf("root re-derivation fell back to the kernel root: %s\n", lf.String())
		}
	case "delpool":
		base, ok := numArg(args, 1)
		if !ok {
			return
		}
		base &^= uint64(vspace.PoolSize - 1)
		pool := m.dir.FindPoolForASID(vspace.ASID(base))
		if pool == nil {
			kfmt.Printf("asid delpool: no pool covers asid %d\n", uint32(base))
			return
		}
		if lf := m.dir.DeleteASIDPool(vspace.ASID(base), pool, m.sched.Current().VSpace); lf != nil {
			kfmt.Printf("root re-derivation fell back to the kernel root: %s\n", lf.String())
		}
	default:
		kfmt.Printf("unknown asid subcommand %s\n", args[0])
	}
}

func (m *machine) faultCmd(args []string) {
	if len(args) == 0 {
		kfmt.Printf("usage: fault data|fetch|user|syscall ...\n")
		return
	}

	victim := m.sched.Current()
	if victim.ID() == m.sched.Idle() {
		kfmt.Printf("fault: the idle thread cannot fault\n")
		return
	}

	switch args[0] {
	case "data":
		addr, okA := numArg(args, 1)
		status, okB := numArg(args, 2)
		if !okA || !okB {
			return
		}
		cpu.SetFaultRegisters(uintptr(addr), status)
		m.disp.HandleVMFaultEvent(trap.DataAbort)
	case "fetch":
		ip, okA := numArg(args, 1)
		status, okB := numArg(args, 2)
		if !okA || !okB {
			return
		}
		victim.Regs.FaultIP = uintptr(ip)
		cpu.SetFaultRegisters(0, status)
		m.disp.HandleVMFaultEvent(trap.InstructionFault)
	case "user":
		num, okA := numArg(args, 1)
		code, okB := numArg(args, 2)
		if !okA || !okB {
			return
		}
		m.disp.HandleUserLevelFault(num, code)
	case "syscall":
		num, ok := numArg(args, 1)
		if !ok {
			return
		}
		m.disp.HandleUnknownSyscall(num)
	default:
		kfmt.Printf("unknown fault subcommand %s\n", args[0])
		return
	}

	m.reportFault(victim)
}

// threadArg resolves a positional argument naming a thread by ID or name.
func (m *machine) threadArg(args []string, index int) *task.TCB {
	if index >= len(args) {
		kfmt.Printf("missing thread argument\n")
		return nil
	}

	if v, err := strconv.ParseUint(args[index], 0, 32); err == nil {
		if t := m.sched.Registry().Resolve(task.ThreadID(v)); t != nil {
			return t
		}
	}

	var match *task.TCB
	m.sched.Registry().ForEach(func(t *task.TCB) {
		if t.Name == args[index] {
			match = t
		}
	})
	if match == nil {
		kfmt.Printf("no thread named %s\n", args[index])
	}
	return match
}

// ntfnArg resolves a positional argument naming a notification by reference.
func (m *machine) ntfnArg(args []string, index int) *ntfn.Notification {
	v, ok := numArg(args, index)
	if !ok {
		return nil
	}

	n := m.ntfns[task.ObjRef(v)]
	if n == nil {
		kfmt.Printf("no notification with reference %d\n", uint32(v))
	}
	return n
}

// numArg parses a positional numeric argument, accepting 0x prefixes.
func numArg(args []string, index int) (uint64, bool) {
	if index >= len(args) {
		kfmt.Printf("missing numeric argument\n")
		return 0, false
	}

	v, err := strconv.ParseUint(args[index], 0, 64)
	if err != nil {
		kfmt.Printf("bad numeric argument %s\n", args[index])
		return 0, false
	}
	return v, true
}
