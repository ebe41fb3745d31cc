package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"clinicaudit/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator
type JWTClaims struct {
	UserID   string
	Username string
	Role     string
	JTI      string
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAuth validates the bearer token and stores the principal in the
// request context.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			ctx = requestcontext.WithPrincipal(ctx, requestcontext.Principal{
				UserID:   claims.UserID,
				Username: claims.Username,
				Role:     claims.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole lets the request through only if the principal has one of
// roles. It must run after RequireAuth.
func RequireRole(logger *slog.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			p, ok := requestcontext.PrincipalFrom(ctx)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
				return
			}
			if !slices.Contains(roles, p.Role) {
				logger.WarnContext(ctx, "forbidden - role not allowed",
					"user_id", p.UserID,
					"role", p.Role,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusForbidden, "forbidden", "Insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
