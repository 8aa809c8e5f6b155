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

	"github.com/stafflane/stafflane/internal/accounts"
	"github.com/stafflane/stafflane/internal/app"
	"github.com/stafflane/stafflane/internal/audit"
	"github.com/stafflane/stafflane/internal/auth"
	"github.com/stafflane/stafflane/internal/notify"
	"github.com/stafflane/stafflane/internal/observability"
	"github.com/stafflane/stafflane/internal/permissions"
	"github.com/stafflane/stafflane/internal/platform/cache"
	"github.com/stafflane/stafflane/internal/platform/db"
	"github.com/stafflane/stafflane/internal/roles"
	"github.com/stafflane/stafflane/internal/shared"
	"github.com/stafflane/stafflane/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = cache.DefaultTTL
	}
	store := cache.NewStore(redisClient, cacheTTL)
	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())

	accountsRepo := accounts.NewRepository(pool)
	accountsService := accounts.NewService(accountsRepo, store, logger)

	rolesRepo := roles.NewRepository(pool)
	rolesService := roles.NewService(rolesRepo, store, logger)

	resolver := permissions.NewResolver(rolesService, accountsService, store, logger)
	protection := accounts.NewSelfProtectionPolicy(accountsRepo)
	guard := permissions.NewGuard(resolver, protection, logger)

	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo)
	recorder := audit.NewRecorder(auditRepo)

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	notifier := notify.NewNotifier(jobClient, logger)

	metrics := observability.NewMetrics()

	permissionsService := permissions.NewService(
		accountsRepo,
		rolesService,
		guard,
		resolver,
		recorder,
		notifier,
		store,
		metrics,
		logger,
	)

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		Actors:             accountsService,
		AuthHandler:        auth.NewHandler(logger, authService, sessionManager),
		AccountsHandler:    accounts.NewHandler(logger, accountsService, resolver),
		RolesHandler:       roles.NewHandler(logger, rolesService, resolver),
		PermissionsHandler: permissions.NewHandler(logger, permissionsService, resolver),
		AuditHandler:       audit.NewHandler(logger, auditService, resolver),
		Metrics:            metrics,
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
