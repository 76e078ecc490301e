package task

import "kestrel/kernel"

// MaxThreads bounds the number of TCBs a Registry hands out.
const MaxThreads = 64

var errThreadLimit = &kernel.Error{Module: "task", Message: "thread limit reached"}

// Registry owns the storage for every TCB in the system. TCBs live in a fixed
// arena and are never freed; threads retire by entering the Inactive state.
type Registry struct {
	tcbs      [MaxThreads]TCB
	allocated int
}

// Alloc reserves a TCB, assigns it the next free thread ID and returns it in
// the Inactive state.
func (r *Registry) Alloc(name string, prio uint8) (*TCB, *kernel.Error) {
	if r.allocated == MaxThreads {
		return nil, errThreadLimit
	}

	t := &r.tcbs[r.allocated]
	r.allocated++

	t.id = ThreadID(r.allocated)
	t.Name = name
	t.Priority = prio
	t.State = Inactive
	t.TimeSlice = timeSlice
	return t, nil
}

// Resolve returns the TCB for id, or nil when id names no allocated thread.
func (r *Registry) Resolve(id ThreadID) *TCB {
	if id == 0 || int(id) > r.allocated {
		return nil
	}

	return &r.tcbs[id-1]
}

// Len returns the number of allocated threads.
func (r *Registry) Len() int {
	return r.allocated
}

// ForEach invokes fn for every allocated TCB in allocation order.
func (r *Registry) ForEach(fn func(t *TCB)) {
	for i := 0; i < r.allocated; i++ {
		fn(&r.tcbs[i])
	}
}
