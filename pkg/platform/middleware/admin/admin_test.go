package admin

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequireAdminToken(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name     string
		expected string
		sent     string
		want     int
	}{
		{"matching token", "op-token", "op-token", http.StatusNoContent},
		{"wrong token", "op-token", "nope", http.StatusUnauthorized},
		{"missing token", "op-token", "", http.StatusUnauthorized},
		{"unconfigured token rejects all", "", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin/retention/run", nil)
			if tt.sent != "" {
				req.Header.Set(TokenHeader, tt.sent)
			}
			rr := httptest.NewRecorder()
			RequireAdminToken(tt.expected, logger)(ok).ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}
