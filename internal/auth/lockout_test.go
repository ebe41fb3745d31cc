package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "clinicaudit/pkg/platform/audit"
	auditlogger "clinicaudit/pkg/platform/audit/logger"
	"clinicaudit/pkg/platform/audit/store/memory"
	"clinicaudit/pkg/platform/sentinel"
)

func TestLockout(t *testing.T) {
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	l := NewLockout(3, 15*time.Minute, 10*time.Minute)
	l.now = func() time.Time { return now }

	for i := 1; i <= 2; i++ {
		n, _, triggered := l.RecordFailure("Alice", "10.0.0.1")
		assert.Equal(t, i, n)
		assert.False(t, triggered)
	}
	_, until, triggered := l.RecordFailure("alice", "10.0.0.1")
	require.True(t, triggered, "third failure locks, username is case-insensitive")
	assert.Equal(t, now.Add(10*time.Minute), until)

	_, locked := l.LockedUntil("alice", "10.0.0.1")
	assert.True(t, locked)
	_, locked = l.LockedUntil("alice", "10.0.0.2")
	assert.False(t, locked, "other IPs are unaffected")

	_, _, triggered = l.RecordFailure("alice", "10.0.0.1")
	assert.False(t, triggered, "already locked")

	now = now.Add(11 * time.Minute)
	_, locked = l.LockedUntil("alice", "10.0.0.1")
	assert.False(t, locked, "lock expires")

	l.Clear("alice", "10.0.0.1")
	n, _, _ := l.RecordFailure("alice", "10.0.0.1")
	assert.Equal(t, 1, n)
}

func TestLockout_WindowResets(t *testing.T) {
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	l := NewLockout(2, time.Minute, time.Minute)
	l.now = func() time.Time { return now }

	l.RecordFailure("bob", "ip")
	now = now.Add(2 * time.Minute)
	n, _, triggered := l.RecordFailure("bob", "ip")
	assert.Equal(t, 1, n)
	assert.False(t, triggered)
}

func TestLockout_EvictsStaleRecords(t *testing.T) {
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	l := NewLockout(2, time.Minute, 5*time.Minute)
	l.now = func() time.Time { return now }

	l.RecordFailure("carol", "203.0.113.1")
	l.RecordFailure("dave", "203.0.113.2")
	l.RecordFailure("dave", "203.0.113.2")
	require.Equal(t, 2, l.Len())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, l.Sweep(), "carol's window lapsed; dave is still locked")
	_, locked := l.LockedUntil("dave", "203.0.113.2")
	assert.True(t, locked)

	now = now.Add(10 * time.Minute)
	l.RecordFailure("erin", "203.0.113.3")
	assert.Equal(t, 1, l.Len(), "a failure after a full window sweeps lapsed records first")
}

func TestLockout_Disabled(t *testing.T) {
	var nilLockout *Lockout
	_, locked := nilLockout.LockedUntil("a", "b")
	assert.False(t, locked)

	l := NewLockout(0, time.Minute, time.Minute)
	for range 10 {
		_, _, triggered := l.RecordFailure("a", "b")
		assert.False(t, triggered)
	}
}

func TestLogin_LockoutRaisesSecurityEvent(t *testing.T) {
	hash, err := HashPassword("pw")
	require.NoError(t, err)
	store := memory.NewInMemoryStore()
	svc := NewService(
		NewInMemoryUserStore(User{ID: "u1", Username: "alice", PasswordHash: hash, Role: RoleClinician}),
		failingIssuer{}, auditlogger.New(store),
		WithLockout(NewLockout(2, time.Minute, time.Minute)),
	)
	ctx := context.Background()

	for range 2 {
		_, err := svc.Login(ctx, LoginRequest{Username: "alice", Password: "nope"}, "10.9.9.9")
		require.ErrorIs(t, err, sentinel.ErrUnauthorized)
	}
	_, err = svc.Login(ctx, LoginRequest{Username: "alice", Password: "pw"}, "10.9.9.9")
	require.ErrorIs(t, err, sentinel.ErrRateLimited, "correct password is refused while locked")

	security, err := store.Query(ctx, audit.Filter{EventTypes: []audit.EventType{audit.EventSecurity}})
	require.NoError(t, err)
	require.Len(t, security, 1)
	assert.Equal(t, audit.SeverityWarning, security[0].Severity)
	assert.Equal(t, "10.9.9.9", security[0].Actor.IPAddress)

	logins, err := store.Query(ctx, audit.Filter{EventTypes: []audit.EventType{audit.EventUserLogin}})
	require.NoError(t, err)
	assert.Len(t, logins, 3, "the refused attempt is still audited")
}
