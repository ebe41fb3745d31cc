package httptransport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"clinicaudit/internal/auth"
	"clinicaudit/internal/platform/metrics"
	audit "clinicaudit/pkg/platform/audit"
	"clinicaudit/pkg/platform/httputil"
	authmw "clinicaudit/pkg/platform/middleware/auth"
	"clinicaudit/pkg/platform/sentinel"
	"clinicaudit/pkg/requestcontext"
)

//go:generate mockgen -source=handlers_auth.go -destination=mocks/auth_mocks.go -package=mocks AuthService

// AuthService logs staff in and out.
type AuthService interface {
	Login(ctx context.Context, req auth.LoginRequest, clientIP string) (auth.LoginResult, error)
	Logout(ctx context.Context, actor audit.Actor)
}

// AuthHandler serves the login and logout endpoints.
type AuthHandler struct {
	auth         AuthService
	logger       *slog.Logger
	metrics      *metrics.Metrics
	jwtValidator authmw.JWTValidator
}

func NewAuthHandler(auth AuthService, logger *slog.Logger, metrics *metrics.Metrics, jwtValidator authmw.JWTValidator) *AuthHandler {
	return &AuthHandler{
		auth:         auth,
		logger:       logger,
		metrics:      metrics,
		jwtValidator: jwtValidator,
	}
}

func (h *AuthHandler) Register(r chi.Router) {
	r.Post("/v1/auth/login", h.handleLogin)
	r.With(authmw.RequireAuth(h.jwtValidator, h.logger)).Post("/v1/auth/logout", h.handleLogout)
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[auth.LoginRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.auth.Login(ctx, *req, requestcontext.ClientIP(ctx))
	h.metrics.IncrementLogin(err == nil)
	if err != nil {
		if errors.Is(err, sentinel.ErrUnauthorized) {
			h.logger.WarnContext(ctx, "login rejected",
				"request_id", requestID,
				"username", req.Username,
			)
		} else {
			h.logger.ErrorContext(ctx, "login failed",
				"request_id", requestID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "login succeeded",
		"request_id", requestID,
		"user_id", res.UserID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.auth.Logout(ctx, requestcontext.Actor(ctx))
	w.WriteHeader(http.StatusNoContent)
}
