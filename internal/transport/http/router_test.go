package httptransport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicaudit/internal/auth"
	jwttoken "clinicaudit/internal/jwt_token"
	"clinicaudit/internal/platform/metrics"
	audit "clinicaudit/pkg/platform/audit"
	auditlogger "clinicaudit/pkg/platform/audit/logger"
	"clinicaudit/pkg/platform/audit/store/memory"
	tu "clinicaudit/pkg/testutil"
)

type downPinger struct{}

func (downPinger) PingContext(context.Context) error { return errors.New("down") }

func TestRouter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	store := memory.NewInMemoryStore()
	audits := auditlogger.New(store, auditlogger.WithLogger(logger))
	jwt := jwttoken.NewJWTService("test-signing-key-0123456789", "clinicaudit", "clinicaudit-api")
	validator := jwttoken.NewJWTServiceAdapter(jwt)

	hash, err := auth.HashPassword("s3cret-pass")
	require.NoError(t, err)
	authService := auth.NewService(
		auth.NewInMemoryUserStore(
			auth.User{ID: "u1", Username: "alice", PasswordHash: hash, Role: auth.RoleClinician},
			auth.User{ID: "u2", Username: "bob", PasswordHash: hash, Role: auth.RoleClinician},
		),
		jwt, audits,
		auth.WithLogger(logger),
		auth.WithLockout(auth.NewLockout(2, time.Minute, time.Minute)),
	)

	router := NewRouter(RouterDeps{
		Logger:   logger,
		Metrics:  metrics.New(reg),
		Gatherer: reg,
		Auth:     NewAuthHandler(authService, logger, metrics.New(prometheus.NewRegistry()), validator),
		Audit:    NewAuditHandler(audits, audits, t.TempDir(), logger, validator),
	})

	tu.Given(t, "the assembled router", func(t *testing.T) {
		tu.When(t, "no store probe is configured", func(t *testing.T) {
			rr := tu.DoRequest(router, tu.NewRequest(t, http.MethodGet, "/healthz"))

			tu.Then(t, "health reports ok with security headers", func(t *testing.T) {
				tu.AssertStatusOK(t, rr)
				assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
			})
		})

		tu.When(t, "the store is down", func(t *testing.T) {
			down := NewRouter(RouterDeps{Logger: logger, Health: downPinger{}})
			rr := tu.DoRequest(down, tu.NewRequest(t, http.MethodGet, "/healthz"))

			tu.Then(t, "health reports unavailable", func(t *testing.T) {
				tu.AssertStatus(t, rr, http.StatusServiceUnavailable)
			})
		})

		tu.When(t, "audit events are read without a token", func(t *testing.T) {
			rr := tu.DoRequest(router, tu.NewRequest(t, http.MethodGet, "/v1/audit/events"))

			tu.Then(t, "the request is rejected", func(t *testing.T) {
				tu.AssertStatus(t, rr, http.StatusUnauthorized)
			})
		})

		tu.When(t, "a body is posted with the wrong content type", func(t *testing.T) {
			req := tu.NewRawRequest(t, http.MethodPost, "/v1/auth/login", "application/x-www-form-urlencoded", "username=alice")
			rr := tu.DoRequest(router, req)

			tu.Then(t, "it is refused as unsupported", func(t *testing.T) {
				tu.AssertStatus(t, rr, http.StatusUnsupportedMediaType)
			})
		})

		tu.When(t, "a user keeps guessing the password", func(t *testing.T) {
			bad := map[string]string{"username": "alice", "password": "wrong"}
			for range 2 {
				rr := tu.DoRequest(router, tu.NewJSONRequest(t, http.MethodPost, "/v1/auth/login", bad))
				tu.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
			}
			good := map[string]string{"username": "alice", "password": "s3cret-pass"}
			rr := tu.DoRequest(router, tu.NewJSONRequest(t, http.MethodPost, "/v1/auth/login", good))

			tu.Then(t, "further logins are rate limited and a security event is recorded", func(t *testing.T) {
				tu.AssertStatusAndError(t, rr, http.StatusTooManyRequests, "rate_limited")
				events, err := store.Query(t.Context(), audit.Filter{EventTypes: []audit.EventType{audit.EventSecurity}, Username: "alice"})
				require.NoError(t, err)
				assert.Len(t, events, 1)
			})
		})

		tu.When(t, "the caller rotates X-Forwarded-For between guesses", func(t *testing.T) {
			bad := map[string]string{"username": "bob", "password": "wrong"}
			var statuses []int
			for i := range 3 {
				req := tu.NewJSONRequest(t, http.MethodPost, "/v1/auth/login", bad)
				req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
				statuses = append(statuses, tu.DoRequest(router, req).Code)
			}

			tu.Then(t, "the forged header is ignored and the peer address is locked", func(t *testing.T) {
				assert.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, statuses)
				events, err := store.Query(t.Context(), audit.Filter{EventTypes: []audit.EventType{audit.EventSecurity}, Username: "bob"})
				require.NoError(t, err)
				require.Len(t, events, 1)
				assert.Equal(t, "192.0.2.1", events[0].Actor.IPAddress)
			})
		})
	})
}
