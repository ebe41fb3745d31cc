package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"clinicaudit/internal/auth"
	audit "clinicaudit/pkg/platform/audit"
	"clinicaudit/pkg/platform/audit/export"
	"clinicaudit/pkg/platform/audit/logger"
	"clinicaudit/pkg/platform/httputil"
	authmw "clinicaudit/pkg/platform/middleware/auth"
	"clinicaudit/pkg/requestcontext"
)

// AuditReader serves the read side of the audit trail.
type AuditReader interface {
	Query(ctx context.Context, filter audit.Filter) ([]audit.Event, error)
	Statistics(ctx context.Context, from, to time.Time) (audit.Statistics, error)
	Export(ctx context.Context, path string, format export.Format, filter audit.Filter, actor audit.Actor) (logger.ExportResult, error)
}

// AuditHandler serves /v1/audit. Writes go through recorder, which may be the
// synchronous logger or the async worker.
type AuditHandler struct {
	reader       AuditReader
	recorder     audit.Recorder
	exportDir    string
	logger       *slog.Logger
	jwtValidator authmw.JWTValidator
}

func NewAuditHandler(reader AuditReader, recorder audit.Recorder, exportDir string, logger *slog.Logger, jwtValidator authmw.JWTValidator) *AuditHandler {
	return &AuditHandler{
		reader:       reader,
		recorder:     recorder,
		exportDir:    exportDir,
		logger:       logger,
		jwtValidator: jwtValidator,
	}
}

func (h *AuditHandler) Register(r chi.Router) {
	r.Route("/v1/audit", func(r chi.Router) {
		r.Use(authmw.RequireAuth(h.jwtValidator, h.logger))
		r.Post("/events", h.handleRecord)

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireRole(h.logger, auth.RoleAuditor, auth.RoleAdmin))
			r.Get("/events", h.handleQuery)
			r.Get("/stats", h.handleStats)
			r.Post("/exports", h.handleExport)
		})
	})
}

func (h *AuditHandler) handleRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RecordEventRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	id, err := h.recorder.Record(ctx, req.entry(requestcontext.Actor(ctx)))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to record audit event",
			"request_id", requestID,
			"event_type", req.EventType,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, RecordEventResponse{EventID: id})
}

func (h *AuditHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	filter, err := parseQueryFilter(r.URL.Query())
	if err != nil {
		h.logger.WarnContext(ctx, "invalid audit query",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	events, err := h.reader.Query(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit query failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "audit query served",
		"request_id", requestID,
		"count", len(events),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, newQueryResponse(events, filter))
}

func (h *AuditHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	q := r.URL.Query()
	from, err := parseTime(q.Get("from"), false)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	to, err := parseTime(q.Get("to"), true)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	stats, err := h.reader.Statistics(ctx, from, to)
	if err != nil {
		h.logger.WarnContext(ctx, "audit statistics failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *AuditHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ExportRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := os.MkdirAll(h.exportDir, 0o750); err != nil {
		h.logger.ErrorContext(ctx, "export directory unavailable",
			"request_id", requestID,
			"error", err,
		)
	}

	path := filepath.Join(h.exportDir, req.fileName(requestcontext.Now(ctx)))
	res, err := h.reader.Export(ctx, path, req.format, req.filter, requestcontext.Actor(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "audit export failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "audit export written",
		"request_id", requestID,
		"path", res.Path,
		"records", res.RecordCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, res)
}
