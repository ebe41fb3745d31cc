package testutil

import (
	"context"
	"net/http"

	"clinicaudit/pkg/requestcontext"
)

// WithPrincipal adds an authenticated caller to the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithPrincipal(req *http.Request, userID, username, role string) *http.Request {
	ctx := requestcontext.WithPrincipal(req.Context(), requestcontext.Principal{
		UserID:   userID,
		Username: username,
		Role:     role,
	})
	return req.WithContext(ctx)
}

// WithClientIP adds the client address the metadata middleware would extract.
func WithClientIP(req *http.Request, ip string) *http.Request {
	ctx := requestcontext.WithClientIP(req.Context(), ip)
	return req.WithContext(ctx)
}

// WithBearer sets the Authorization header.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
