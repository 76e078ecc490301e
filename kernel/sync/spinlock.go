// Package sync provides synchronization primitive implementations for
// spinlocks.
package sync

import "sync/atomic"

// spinAttempts defines the number of failed acquisition attempts after which
// Acquire invokes yieldFn to give the lock holder a chance to run.
const spinAttempts = 100

var (
	// yieldFn is invoked by Acquire after repeated failed attempts to
	// acquire the lock. Tests swap it with runtime.Gosched.
	yieldFn func()
)

// Spinlock implements a lock where each task trying to acquire it busy-waits
// till the lock becomes available.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active task.
// Any attempt to re-acquire a lock already held by the current task will cause
// a deadlock.
func (l *Spinlock) Acquire() {
	var attempt uint32
	for !atomic.CompareAndSwapUint32(&l.state, 0, 1) {
		if attempt++; attempt == spinAttempts {
			attempt = 0
			if yieldFn != nil {
				yieldFn()
			}
		}
	}
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock allowing other tasks to acquire it. Calling
// Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}
