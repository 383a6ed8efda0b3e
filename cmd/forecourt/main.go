package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/forecourt/forecourt/internal/app"
	"github.com/forecourt/forecourt/internal/audit"
	audithttp "github.com/forecourt/forecourt/internal/audit/http"
	"github.com/forecourt/forecourt/internal/auth"
	"github.com/forecourt/forecourt/internal/customers"
	"github.com/forecourt/forecourt/internal/dealers"
	"github.com/forecourt/forecourt/internal/invoices"
	"github.com/forecourt/forecourt/internal/observability"
	"github.com/forecourt/forecourt/internal/platform/cache"
	"github.com/forecourt/forecourt/internal/platform/db"
	"github.com/forecourt/forecourt/internal/rbac"
	"github.com/forecourt/forecourt/internal/shared"
	"github.com/forecourt/forecourt/internal/stock"
	"github.com/forecourt/forecourt/internal/taxonomy"
	"github.com/forecourt/forecourt/internal/uploads"
	"github.com/forecourt/forecourt/internal/view"
	"github.com/forecourt/forecourt/jobs"
	"github.com/forecourt/forecourt/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	services, err := app.NewServices(ctx, cfg, dbpool, jobClient, logger)
	if err != nil {
		logger.Error("init services", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := services.Close(); err != nil {
			logger.Warn("services close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "forecourt_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	authService := auth.NewService(auth.NewRepository(dbpool), tokens)
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager)
	authenticator := auth.Authenticator{Tokens: tokens, Logger: logger}

	rbacService := rbac.NewService(rbac.NewPGRoleLookup(dbpool))
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	uploadService := uploads.NewService(uploads.NewRepository(dbpool), services.Dealers, services.Store, cfg.UploadMaxBytes, metrics, logger)

	taxonomyClient := taxonomy.NewClient(cfg.TaxonomyBaseURL, cfg.TaxonomyAPIKey, cfg.TaxonomyRPS, &http.Client{Timeout: 15 * time.Second})
	catalog := taxonomy.NewCachedCatalog(taxonomyClient, taxonomy.NewCache(redisClient, cfg.TaxonomyCacheTTL), metrics, logger)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Templates:          templates,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		Authenticator:      authenticator,
		AuthHandler:        authHandler,
		StockHandler:       stock.NewHandler(logger, services.Stock, templates, csrfManager, rbacMiddleware, cfg.UploadMaxBytes),
		InvoiceHandler:     invoices.NewHandler(logger, services.Invoices, templates, csrfManager, rbacMiddleware),
		CustomerHandler:    customers.NewHandler(logger, services.Customers, templates, csrfManager, rbacMiddleware),
		DealerHandler:      dealers.NewHandler(logger, services.Dealers, templates, csrfManager, rbacMiddleware),
		UploadHandler:      uploads.NewHandler(logger, uploadService, rbacMiddleware),
		TaxonomyHandler:    taxonomy.NewHandler(logger, catalog, rbacMiddleware),
		ReportHandler:      report.NewHandler(services.PDF, logger),
		AuditHandler:       audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), templates, csrfManager, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, jobClient, rbacMiddleware, logger),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, rbacService),
		Dashboard: &app.Dashboard{
			Dealers:   services.Dealers,
			Stock:     services.Stock,
			Invoices:  services.Invoices,
			Templates: templates,
			CSRF:      csrfManager,
			Logger:    logger,
			AppEnv:    cfg.AppEnv,
		},
		Metrics: metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
