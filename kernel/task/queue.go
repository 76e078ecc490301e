package task

// WaitQueue is a FIFO of blocked threads linked through the EPPrev and EPNext
// fields of their TCBs, so queue membership costs no allocation. The zero
// value is an empty queue. Callers of Remove must guarantee that the thread
// is a member.
type WaitQueue struct {
	// Head and Tail name the first and last queued threads.
	Head, Tail ThreadID
}

// Empty returns true if no thread is queued.
func (q *WaitQueue) Empty() bool {
	return q.Head == 0
}

// Append adds t to the back of the queue.
func (q *WaitQueue) Append(reg *Registry, t *TCB) {
	t.EPPrev = q.Tail
	t.EPNext = 0

	if q.Tail != 0 {
		reg.Resolve(q.Tail).EPNext = t.id
	} else {
		q.Head = t.id
	}
	q.Tail = t.id
}

// Remove unlinks t from wherever it sits in the queue and clears its links.
func (q *WaitQueue) Remove(reg *Registry, t *TCB) {
	if t.EPPrev != 0 {
		reg.Resolve(t.EPPrev).EPNext = t.EPNext
	} else {
		q.Head = t.EPNext
	}

	if t.EPNext != 0 {
		reg.Resolve(t.EPNext).EPPrev = t.EPPrev
	} else {
		q.Tail = t.EPPrev
	}

	t.EPPrev = 0
	t.EPNext = 0
}

// Dequeue removes and returns the thread at the head of the queue, or nil if
// the queue is empty.
func (q *WaitQueue) Dequeue(reg *Registry) *TCB {
	if q.Head == 0 {
		return nil
	}

	t := reg.Resolve(q.Head)
	q.Remove(reg, t)
	return t
}
