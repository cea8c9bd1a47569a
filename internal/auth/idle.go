package auth

import (
	"sync"
	"time"
)

// IdleTimer fires a callback after a period with no activity. The gateway
// uses it for inactivity auto-logout: any authenticated operation touches
// the timer, and expiry logs the session out unconditionally.
type IdleTimer struct {
	mu       sync.Mutex
	timeout  time.Duration
	onExpire func()
	timer    *time.Timer
	stopped  bool
}

func NewIdleTimer(timeout time.Duration, onExpire func()) *IdleTimer {
	return &IdleTimer{
		timeout:  timeout,
		onExpire: onExpire,
		stopped:  true,
	}
}

// Start arms the timer. A running timer is reset.
func (it *IdleTimer) Start() {
	it.mu.Lock()
	defer it.mu.Unlock()

	it.stopped = false
	it.reset()
}

// Touch registers activity, pushing expiry out by the full timeout.
// A stopped timer stays stopped.
func (it *IdleTimer) Touch() {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.stopped {
		return
	}
	it.reset()
}

// Stop disarms the timer without firing.
func (it *IdleTimer) Stop() {
	it.mu.Lock()
	defer it.mu.Unlock()

	it.stopped = true
	if it.timer != nil {
		it.timer.Stop()
		it.timer = nil
	}
}

func (it *IdleTimer) reset() {
	if it.timer != nil {
		it.timer.Stop()
	}
	it.timer = time.AfterFunc(it.timeout, func() {
		it.mu.Lock()
		if it.stopped {
			it.mu.Unlock()
			return
		}
		it.stopped = true
		it.mu.Unlock()

		it.onExpire()
	})
}
