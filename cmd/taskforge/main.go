package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/taskforge/taskforge/internal/app"
	"github.com/taskforge/taskforge/internal/auth"
	"github.com/taskforge/taskforge/internal/dashboard"
	"github.com/taskforge/taskforge/internal/logs"
	"github.com/taskforge/taskforge/internal/platform/cache"
	"github.com/taskforge/taskforge/internal/platform/db"
	"github.com/taskforge/taskforge/internal/rbac"
	"github.com/taskforge/taskforge/internal/tasks"
	"github.com/taskforge/taskforge/internal/users"
	"github.com/taskforge/taskforge/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
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

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, redisClient, cfg.AuthTokenTTL)
	authHandler := auth.NewHandler(logger, authService)
	authMiddleware := auth.Middleware{Service: authService, Logger: logger}

	rbacStore := rbac.NewStore(pool)
	resolver := rbac.NewResolver(redisClient, rbacStore, cfg.PermCacheTTL, cfg.StoreAcquireTimeout, logger)
	gate := rbac.Gate{Resolver: resolver, Logger: logger}

	usersRepo := users.NewRepository(pool)
	directory := users.NewDirectory(usersRepo, cfg.DirectoryCacheTTL)
	usersService := users.NewService(usersRepo, directory)

	coordinator := rbac.NewCoordinator(rbacStore, resolver, directory, logger)
	rbacService := rbac.NewService(rbacStore)
	rbacHandler := rbac.NewHandler(logger, rbacService, coordinator, resolver, gate)
	usersHandler := users.NewHandler(logger, usersService, coordinator, authService, gate)

	taskService := tasks.NewService(tasks.NewRepository(pool))
	taskHandler := tasks.NewHandler(logger, taskService, gate)

	logService := logs.NewService(logs.NewRepository(pool))
	logHandler := logs.NewHandler(logger, logService, gate)

	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	seeder := dashboard.NewSeeder(dashboard.NewRepository(pool), cfg.DashboardSeedLimit, logger)
	dashboardHandler := dashboard.NewHandler(logger, seeder, func(ctx context.Context, userID int64, kind string) error {
		_, err := jobsClient.EnqueueDashboardReseed(ctx, jobs.DashboardReseedPayload{UserID: userID, Kind: kind})
		return err
	})

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		AuthHandler:      authHandler,
		AuthMiddleware:   authMiddleware,
		UsersHandler:     usersHandler,
		RBACHandler:      rbacHandler,
		TasksHandler:     taskHandler,
		LogsHandler:      logHandler,
		DashboardHandler: dashboardHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
