// Package admin guards operator endpoints with a shared token.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"clinicaudit/pkg/platform/httputil"
	"clinicaudit/pkg/requestcontext"
)

// TokenHeader carries the operator token.
const TokenHeader = "X-Admin-Token"

// RequireAdminToken rejects requests whose TokenHeader does not match
// expected. An empty expected token disables the guarded routes entirely.
func RequireAdminToken(expected string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !tokenMatches(expected, r.Header.Get(TokenHeader)) {
				ctx := r.Context()
				logger.WarnContext(ctx, "operator token rejected",
					"request_id", requestcontext.RequestID(ctx),
					"client_ip", requestcontext.ClientIP(ctx),
					"path", r.URL.Path,
				)
				httputil.WriteJSON(w, http.StatusUnauthorized, map[string]string{
					"error":             "unauthorized",
					"error_description": "admin token required",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func tokenMatches(expected, got string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}
