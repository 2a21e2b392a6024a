package monitor

import "sync"

// CancelFlag is the cooperative cancellation signal. An out-of-band key
// listener (or signal handler) sets it asynchronously; the scheduler polls it
// at every sleep and cycle boundary, never preempting an in-flight call.
type CancelFlag struct {
	mu     sync.Mutex
	reason string
	done   chan struct{}
	once   sync.Once
}

// NewCancelFlag creates an unset flag.
func NewCancelFlag() *CancelFlag {
	return &CancelFlag{done: make(chan struct{})}
}

// Cancel sets the flag with a reason. Only the first reason is kept.
func (f *CancelFlag) Cancel(reason string) {
	f.once.Do(func() {
		f.mu.Lock()
		f.reason = reason
		f.mu.Unlock()
		close(f.done)
	})
}

// Cancelled reports whether the flag is set.
func (f *CancelFlag) Cancelled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Reason returns the recorded cancellation reason, if any.
func (f *CancelFlag) Reason() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reason
}

// Done returns a channel closed on cancellation, for use in selects.
func (f *CancelFlag) Done() <-chan struct{} {
	return f.done
}
