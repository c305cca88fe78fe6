package refresh

import "sync"

// LockRegistry is a keyed mutex registry. Table refreshes hold a
// non-blocking exclusive lock per table name, and partition-function DDL
// holds a blocking lock per function name, so unrelated tables still run
// in parallel.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockRegistry creates an empty lock registry
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[string]*sync.Mutex)}
}

func (r *LockRegistry) lock(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	return l
}

// TryAcquire attempts to take the lock for key without blocking. On
// success it returns a release function and true; if the lock is already
// held it returns false.
func (r *LockRegistry) TryAcquire(key string) (func(), bool) {
	l := r.lock(key)
	if !l.TryLock() {
		return nil, false
	}
	return l.Unlock, true
}

// Acquire blocks until the lock for key is held, then returns the
// release function.
func (r *LockRegistry) Acquire(key string) func() {
	l := r.lock(key)
	l.Lock()
	return l.Unlock
}
