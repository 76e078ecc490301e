// Package fault defines the fault records that the kernel attaches to a
// thread when it traps. A record captures everything the fault handler needs
// to service or report the fault; it carries no behavior of its own.
package fault

// Kind describes the class of a fault record.
type Kind uint8

// The full set of fault classes threads can incur. The trap dispatcher in
// this kernel raises KindUserException and KindVMFault; the remaining classes
// are raised by the capability and syscall layers.
const (
	KindNull Kind = iota
	KindCapability
	KindUnknownSyscall
	KindUserException
	KindVMFault
)

// String returns the human-readable name for the fault kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null fault"
	case KindCapability:
		return "capability fault"
	case KindUnknownSyscall:
		return "unknown syscall"
	case KindUserException:
		return "user exception"
	case KindVMFault:
		return "vm fault"
	default:
		return "invalid fault kind"
	}
}

// Fault is implemented by all fault records.
type Fault interface {
	Kind() Kind
}

// Null is the absence of a fault. A thread whose fault slot holds a Null
// record has not faulted.
type Null struct{}

// Kind returns KindNull.
func (Null) Kind() Kind { return KindNull }

// Capability records a failed capability lookup performed on behalf of a
// thread.
type Capability struct {
	// Address is the capability pointer whose resolution failed.
	Address uintptr

	// InReceivePhase is true when the lookup happened while resolving the
	// receive slot of an IPC.
	InReceivePhase bool

	// Failure describes why the lookup failed.
	Failure Lookup
}

// Kind returns KindCapability.
func (Capability) Kind() Kind { return KindCapability }

// UnknownSyscall records an invocation of a syscall number the kernel does
// not implement.
type UnknownSyscall struct {
	Syscall uint64
}

// Kind returns KindUnknownSyscall.
func (UnknownSyscall) Kind() Kind { return KindUnknownSyscall }

// UserException records a user-level architectural exception that is not a
// memory fault, for example an undefined instruction or a misaligned access.
type UserException struct {
	// Number identifies the exception the hardware reported.
	Number uint64

	// Code carries the auxiliary status word associated with the exception.
	Code uint64
}

// Kind returns KindUserException.
func (UserException) Kind() Kind { return KindUserException }

// VMFault records a virtual-memory fault.
type VMFault struct {
	// Address is the faulting data address, or the faulting instruction
	// address for prefetch faults.
	Address uintptr

	// FSR is the fault status register value captured at trap time.
	FSR uint64

	// Prefetch is true for instruction-fetch faults and false for data
	// faults.
	Prefetch bool
}

// Kind returns KindVMFault.
func (VMFault) Kind() Kind { return KindVMFault }
