package auth

import (
	"sync"
	"time"
)

// LoginThrottle is a process-local attempt counter with a time-boxed
// lockout. It is a deterrent for fast user feedback, not a security
// boundary: state resets on restart, and the HTTP layer carries its own
// per-IP limiter. The map lives for the process and is never reset on
// logout.
type LoginThrottle struct {
	mu            sync.Mutex
	attempts      map[string]*attemptRecord
	maxAttempts   int
	lockoutWindow time.Duration
	now           func() time.Time
}

type attemptRecord struct {
	count       int
	lastAttempt time.Time
}

func NewLoginThrottle(maxAttempts int, lockoutWindow time.Duration) *LoginThrottle {
	return &LoginThrottle{
		attempts:      make(map[string]*attemptRecord),
		maxAttempts:   maxAttempts,
		lockoutWindow: lockoutWindow,
		now:           time.Now,
	}
}

// Check reports whether an attempt is allowed for the identifier and how
// much of the budget remains. A record older than the lockout window is
// evicted and treated as absent.
func (lt *LoginThrottle) Check(identifier string) (allowed bool, remaining int) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	record, ok := lt.attempts[identifier]
	if !ok {
		return true, lt.maxAttempts
	}

	if lt.now().Sub(record.lastAttempt) > lt.lockoutWindow {
		delete(lt.attempts, identifier)
		return true, lt.maxAttempts
	}

	remaining = lt.maxAttempts - record.count
	if remaining < 0 {
		remaining = 0
	}
	return remaining > 0, remaining
}

// Record notes the outcome of an attempt. Success clears the record
// entirely; failure increments the count and refreshes the timestamp.
func (lt *LoginThrottle) Record(identifier string, success bool) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if success {
		delete(lt.attempts, identifier)
		return
	}

	record, ok := lt.attempts[identifier]
	if !ok {
		record = &attemptRecord{}
		lt.attempts[identifier] = record
	}
	record.count++
	record.lastAttempt = lt.now()
}
