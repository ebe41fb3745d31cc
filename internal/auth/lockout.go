package auth

import (
	"strings"
	"sync"
	"time"
)

// Lockout tracks failed logins per username and client IP. After attempts
// failures inside window the pair is locked for lockFor.
type Lockout struct {
	mu       sync.Mutex
	records  map[string]*lockoutRecord
	attempts int
	window   time.Duration
	lockFor  time.Duration
	now      func() time.Time

	lastSweep time.Time
}

type lockoutRecord struct {
	failures    int
	windowStart time.Time
	lockedUntil time.Time
}

// NewLockout returns a tracker. attempts <= 0 disables locking.
func NewLockout(attempts int, window, lockFor time.Duration) *Lockout {
	return &Lockout{
		records:  make(map[string]*lockoutRecord),
		attempts: attempts,
		window:   window,
		lockFor:  lockFor,
		now:      time.Now,
	}
}

func lockoutKey(username, ip string) string {
	return strings.ToLower(strings.TrimSpace(username)) + "|" + ip
}

// LockedUntil reports whether the pair is locked and until when.
func (l *Lockout) LockedUntil(username, ip string) (time.Time, bool) {
	if l == nil || l.attempts <= 0 {
		return time.Time{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.records[lockoutKey(username, ip)]
	if !ok || !l.now().Before(r.lockedUntil) {
		return time.Time{}, false
	}
	return r.lockedUntil, true
}

// RecordFailure counts one failure. triggered is true only for the failure
// that starts a new lock.
func (l *Lockout) RecordFailure(username, ip string) (failures int, until time.Time, triggered bool) {
	if l == nil || l.attempts <= 0 {
		return 0, time.Time{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.window {
		l.sweepLocked(now)
	}
	key := lockoutKey(username, ip)
	r, ok := l.records[key]
	if !ok || now.Sub(r.windowStart) > l.window {
		r = &lockoutRecord{windowStart: now}
		l.records[key] = r
	}
	r.failures++
	if r.failures >= l.attempts && !now.Before(r.lockedUntil) {
		r.lockedUntil = now.Add(l.lockFor)
		return r.failures, r.lockedUntil, true
	}
	return r.failures, r.lockedUntil, false
}

// Clear forgets the pair after a successful login.
func (l *Lockout) Clear(username, ip string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, lockoutKey(username, ip))
}

// Sweep drops records whose window and lock have both lapsed and returns how
// many were removed. RecordFailure runs it at most once per window.
func (l *Lockout) Sweep() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweepLocked(l.now())
}

func (l *Lockout) sweepLocked(now time.Time) int {
	l.lastSweep = now
	removed := 0
	for key, r := range l.records {
		if now.Sub(r.windowStart) > l.window && !now.Before(r.lockedUntil) {
			delete(l.records, key)
			removed++
		}
	}
	return removed
}

// Len reports how many username/IP pairs are tracked.
func (l *Lockout) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
