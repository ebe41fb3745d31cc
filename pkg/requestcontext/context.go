// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets the values; handlers read them once and build an explicit
// audit.Actor that is passed down. Nothing below the handler reads identity
// from the context.
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithPrincipal(ctx, principal)
//	ctx = requestcontext.WithRequestID(ctx, requestID)
//
// Usage in handlers (build the audit context):
//
//	actor := requestcontext.Actor(ctx)
package requestcontext

import (
	"context"
	"time"

	audit "clinicaudit/pkg/platform/audit"
)

// Context key types (unexported for encapsulation).
type (
	principalKey   struct{}
	clientIPKey    struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Principal is the authenticated caller.
type Principal struct {
	UserID   string
	Username string
	Role     string
}

// -----------------------------------------------------------------------------
// Auth context
// -----------------------------------------------------------------------------

// PrincipalFrom retrieves the authenticated caller. ok is false for
// anonymous requests.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// WithPrincipal injects the authenticated caller into the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// -----------------------------------------------------------------------------
// Client address
// -----------------------------------------------------------------------------

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// WithClientIP injects the client address resolved by the metadata
// middleware.
func WithClientIP(ctx context.Context, clientIP string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, clientIP)
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// -----------------------------------------------------------------------------
// Audit context
// -----------------------------------------------------------------------------

// Actor builds the audit context for the current request: the principal if
// authenticated, plus the client IP.
func Actor(ctx context.Context) audit.Actor {
	p, _ := PrincipalFrom(ctx)
	return audit.Actor{
		UserID:    p.UserID,
		Username:  p.Username,
		IPAddress: ClientIP(ctx),
	}
}
