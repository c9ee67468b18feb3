package service

import "sync"

// CancelFlag is the per-job interrupt request. The HTTP goroutine sets it
// and the render goroutine consumes it.
type CancelFlag struct {
	mu  sync.Mutex
	set bool
}

func (f *CancelFlag) Set() {
	f.mu.Lock()
	f.set = true
	f.mu.Unlock()
}

// Consume reports whether the flag was set and clears it.
func (f *CancelFlag) Consume() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	was := f.set
	f.set = false
	return was
}

func (f *CancelFlag) IsSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set
}

// Checkpoint returns ErrCancelled exactly once per Set.
func (f *CancelFlag) Checkpoint() error {
	if f.Consume() {
		return ErrCancelled
	}
	return nil
}
