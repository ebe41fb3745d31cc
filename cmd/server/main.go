package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"clinicaudit/internal/auth"
	jwttoken "clinicaudit/internal/jwt_token"
	"clinicaudit/internal/platform/config"
	"clinicaudit/internal/platform/httpserver"
	"clinicaudit/internal/platform/logger"
	"clinicaudit/internal/platform/metrics"
	"clinicaudit/internal/retention"
	httptransport "clinicaudit/internal/transport/http"
	audit "clinicaudit/pkg/platform/audit"
	auditlogger "clinicaudit/pkg/platform/audit/logger"
	"clinicaudit/pkg/platform/audit/store/memory"
	"clinicaudit/pkg/platform/audit/store/sqlstore"
	"clinicaudit/pkg/platform/audit/worker"
	"clinicaudit/pkg/platform/middleware/metadata"
)

const jwtAudience = "clinicaudit-api"

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the audit and auth packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, logCloser := logger.New(logger.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.OpsLogFile,
		MaxSizeMB:  cfg.Logging.OpsMaxSizeMB,
		MaxAgeDays: cfg.Logging.OpsMaxAgeDays,
		MaxBackups: cfg.Logging.OpsMaxBackups,
	})
	defer logCloser.Close()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, health, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := metrics.New(reg)

	audits := auditlogger.New(store,
		auditlogger.WithLogger(log.With("component", "audit")),
		auditlogger.WithMetrics(auditlogger.NewMetrics(reg)),
	)
	queue := worker.NewWorker(audits, cfg.Store.AsyncBuffer,
		worker.WithLogger(log.With("component", "audit_worker")),
		worker.WithMetrics(worker.NewMetrics(reg)),
	)

	users, err := auth.LoadUsersFile(cfg.Server.UsersFile)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	jwt := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, jwtAudience)
	validator := jwttoken.NewJWTServiceAdapter(jwt)

	// Login auditing is queued so a slow store never delays sign-in.
	authService := auth.NewService(users, jwt, queue,
		auth.WithTokenTTL(cfg.Server.TokenTTL),
		auth.WithLockout(auth.NewLockout(cfg.Server.LoginMaxAttempts, cfg.Server.LoginWindow, cfg.Server.LoginLockout)),
		auth.WithLogger(log.With("component", "auth")),
	)
	retainer := retention.New(audits, cfg.Retention.Days, cfg.Retention.ArchiveDir,
		retention.WithLogger(log.With("component", "retention")),
	)

	proxies, err := metadata.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Logger:         log,
		Metrics:        httpMetrics,
		Gatherer:       reg,
		Health:         health,
		TrustedProxies: proxies,
		Auth:           httptransport.NewAuthHandler(authService, log, httpMetrics, validator),
		Audit:          httptransport.NewAuditHandler(audits, audits, cfg.Retention.ExportDir, log, validator),
		Admin:          httptransport.NewAdminHandler(retainer, cfg.Server.AdminToken, log),
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	if _, err := audits.LogEvent(ctx, audit.EventSystem, "Audit service started", audit.SeverityInfo, audit.Actor{}, map[string]any{
		"store":          cfg.Store.Driver,
		"retention_days": cfg.Retention.Days,
	}); err != nil {
		log.Warn("startup event not recorded", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting clinicaudit", "addr", cfg.Server.Addr, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return queue.Run(gctx)
	})
	if cfg.RetentionEnabled() {
		log.Info("retention enabled", "days", cfg.Retention.Days, "interval", cfg.Retention.Interval)
		g.Go(func() error {
			return retainer.Run(gctx, cfg.Retention.Interval)
		})
	}

	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config) (audit.Store, httptransport.Pinger, error) {
	if cfg.Store.Driver == "memory" {
		return memory.NewInMemoryStore(), nil, nil
	}

	dialect, err := sqlstore.ParseDialect(cfg.Store.Driver)
	if err != nil {
		return nil, nil, err
	}
	dsn := cfg.Store.DBPath
	if dialect == sqlstore.DialectPostgres {
		dsn = cfg.Store.DatabaseURL
	}
	store, err := sqlstore.Open(ctx, sqlstore.Config{
		Dialect:         dialect,
		DSN:             dsn,
		MaxWriteRetries: cfg.Store.MaxWriteRetries,
		BusyTimeout:     cfg.Store.BusyTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	return store, store, nil
}
