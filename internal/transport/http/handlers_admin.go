package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	audit "clinicaudit/pkg/platform/audit"
	"clinicaudit/pkg/platform/audit/logger"
	"clinicaudit/pkg/platform/httputil"
	"clinicaudit/pkg/platform/middleware/admin"
	"clinicaudit/pkg/requestcontext"
)

// RetentionRunner performs one archive-and-purge pass.
type RetentionRunner interface {
	Enabled() bool
	RunOnce(ctx context.Context, actor audit.Actor) (logger.PurgeResult, error)
}

// AdminHandler serves operator endpoints behind the admin token.
type AdminHandler struct {
	retention  RetentionRunner
	adminToken string
	logger     *slog.Logger
}

func NewAdminHandler(retention RetentionRunner, adminToken string, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{retention: retention, adminToken: adminToken, logger: logger}
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(admin.RequireAdminToken(h.adminToken, h.logger))
		r.Post("/retention/run", h.handleRetentionRun)
	})
}

func (h *AdminHandler) handleRetentionRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if h.retention == nil || !h.retention.Enabled() {
		httputil.WriteJSON(w, http.StatusConflict, map[string]string{
			"error":             "retention_disabled",
			"error_description": "AUDIT_RETENTION_DAYS is 0; events are kept indefinitely",
		})
		return
	}

	// The operator is identified only by IP; the purge event records it.
	res, err := h.retention.RunOnce(ctx, audit.Actor{
		Username:  "admin-token",
		IPAddress: requestcontext.ClientIP(ctx),
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "manual retention run failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "manual retention run complete",
		"request_id", requestID,
		"archived", res.Archived,
		"purged", res.Purged,
	)
	httputil.WriteJSON(w, http.StatusOK, res)
}
