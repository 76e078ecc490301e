package task

// State tracks where a thread sits in its lifecycle. The zero value is
// Inactive so freshly allocated TCBs start out suspended.
type State uint8

const (
	// Inactive threads are suspended; the scheduler never selects them.
	Inactive State = iota

	// Running threads resume at NextIP when dispatched.
	Running

	// Restart threads re-execute the instruction at FaultIP the next time
	// they are activated.
	Restart

	// BlockedOnReceive threads wait for a message delivery.
	BlockedOnReceive

	// BlockedOnSend threads wait for a receiver to pick up their message.
	BlockedOnSend

	// BlockedOnReply threads wait for the reply to a call.
	BlockedOnReply

	// BlockedOnNotification threads wait on a notification word.
	BlockedOnNotification

	// IdleThreadState marks the idle thread that runs when nothing else is
	// runnable.
	IdleThreadState
)

// Runnable returns true for the states the scheduler may dispatch.
func (s State) Runnable() bool {
	return s == Running || s == Restart
}

// String implements fmt.Stringer for State.
func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Running:
		return "running"
	case Restart:
		return "restart"
	case BlockedOnReceive:
		return "blocked on receive"
	case BlockedOnSend:
		return "blocked on send"
	case BlockedOnReply:
		return "blocked on reply"
	case BlockedOnNotification:
		return "blocked on notification"
	case IdleThreadState:
		return "idle"
	}

	return "invalid thread state"
}
