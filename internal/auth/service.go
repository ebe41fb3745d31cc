// Package auth authenticates clinic staff and records every login attempt in
// the audit trail.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	audit "clinicaudit/pkg/platform/audit"
	"clinicaudit/pkg/platform/sentinel"
)

var errBadPassword = errors.New("bad password")

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	GenerateAccessToken(userID, username, role string, expiresIn time.Duration) (string, error)
}

// Service verifies credentials and issues tokens. Audit writes go through a
// Recorder; their failure never changes the login outcome.
type Service struct {
	users    UserStore
	tokens   TokenIssuer
	recorder audit.Recorder
	tokenTTL time.Duration
	logger   *slog.Logger
	lockout  *Lockout

	dummyOnce sync.Once
	dummyHash string
}

type Option func(*Service)

func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

// WithLockout enables temporary lockout after repeated failed logins.
func WithLockout(l *Lockout) Option {
	return func(s *Service) {
		s.lockout = l
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(users UserStore, tokens TokenIssuer, recorder audit.Recorder, opts ...Option) *Service {
	s := &Service{
		users:    users,
		tokens:   tokens,
		recorder: recorder,
		tokenTTL: 15 * time.Minute,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login checks the password and returns an access token. Successful and
// failed attempts are both audited as USER_LOGIN. Callers only ever see
// sentinel.ErrUnauthorized for bad credentials; the audit record keeps the
// specific reason.
func (s *Service) Login(ctx context.Context, req LoginRequest, clientIP string) (LoginResult, error) {
	if until, locked := s.lockout.LockedUntil(req.Username, clientIP); locked {
		s.recordLogin(ctx, req.Username, false, audit.Actor{Username: req.Username, IPAddress: clientIP}, "temporarily locked")
		return LoginResult{}, fmt.Errorf("login locked until %s: %w", until.UTC().Format(time.RFC3339), sentinel.ErrRateLimited)
	}

	user, err := s.users.FindByUsername(ctx, req.Username)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			return LoginResult{}, fmt.Errorf("lookup user: %w", err)
		}
		// Spend the same bcrypt time as a real check.
		_ = verifyPassword(req.Password, s.dummy())
		actor := audit.Actor{Username: req.Username, IPAddress: clientIP}
		s.recordLogin(ctx, req.Username, false, actor, "unknown user")
		s.recordFailure(ctx, req.Username, actor)
		return LoginResult{}, fmt.Errorf("invalid credentials: %w", sentinel.ErrUnauthorized)
	}

	actor := audit.Actor{UserID: user.ID, Username: user.Username, IPAddress: clientIP}
	if err := verifyPassword(req.Password, user.PasswordHash); err != nil {
		reason := err.Error()
		if !errors.Is(err, errBadPassword) {
			s.logger.ErrorContext(ctx, "password verification failed", "username", user.Username, "error", err)
		}
		s.recordLogin(ctx, user.Username, false, actor, reason)
		s.recordFailure(ctx, user.Username, actor)
		return LoginResult{}, fmt.Errorf("invalid credentials: %w", sentinel.ErrUnauthorized)
	}
	if user.Disabled {
		s.recordLogin(ctx, user.Username, false, actor, "account disabled")
		return LoginResult{}, fmt.Errorf("account disabled: %w", sentinel.ErrUnauthorized)
	}

	token, err := s.tokens.GenerateAccessToken(user.ID, user.Username, user.Role, s.tokenTTL)
	if err != nil {
		s.recordLogin(ctx, user.Username, false, actor, "token issuance failed")
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}

	s.lockout.Clear(user.Username, clientIP)
	s.recordLogin(ctx, user.Username, true, actor, "")
	return LoginResult{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   time.Now().Add(s.tokenTTL).UTC(),
		UserID:      user.ID,
		Role:        user.Role,
	}, nil
}

// Logout records the end of a session. Tokens are stateless, so there is
// nothing else to revoke.
func (s *Service) Logout(ctx context.Context, actor audit.Actor) {
	if _, err := s.recorder.Record(ctx, audit.UserLogout(actor.Username, actor)); err != nil {
		s.logger.WarnContext(ctx, "logout not audited", "username", actor.Username, "error", err)
	}
}

func (s *Service) recordLogin(ctx context.Context, username string, success bool, actor audit.Actor, reason string) {
	if _, err := s.recorder.Record(ctx, audit.UserLogin(username, success, actor, reason)); err != nil {
		s.logger.WarnContext(ctx, "login attempt not audited",
			"username", username,
			"success", success,
			"error", err,
		)
	}
}

// recordFailure counts a failed attempt and raises a security event when it
// locks the username/IP pair.
func (s *Service) recordFailure(ctx context.Context, username string, actor audit.Actor) {
	failures, until, triggered := s.lockout.RecordFailure(username, actor.IPAddress)
	if !triggered {
		return
	}
	entry := audit.SecurityIncident(
		fmt.Sprintf("Login for %s locked after %d failed attempts", username, failures),
		audit.SeverityWarning, actor, "repeated_login_failures",
		map[string]any{
			"username":     username,
			"attempts":     failures,
			"locked_until": audit.FormatTimestamp(until),
		})
	if _, err := s.recorder.Record(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "login lockout not audited", "username", username, "error", err)
	}
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = HashPassword("not-a-real-password")
	})
	return s.dummyHash
}
