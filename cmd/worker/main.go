package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/taskforge/taskforge/internal/app"
	"github.com/taskforge/taskforge/internal/dashboard"
	"github.com/taskforge/taskforge/internal/platform/db"
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

	directory := users.NewDirectory(users.NewRepository(pool), cfg.DirectoryCacheTTL)
	seeder := dashboard.NewSeeder(dashboard.NewRepository(pool), cfg.DashboardSeedLimit, logger)

	warmup := &jobs.DirectoryWarmupJob{Directory: directory, Logger: logger}
	reseed := &jobs.DashboardReseedJob{Seeder: seeder, Logger: logger}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskDirectoryWarmup, Handler: warmup.Handle},
			{Type: jobs.TaskDashboardReseed, Handler: reseed.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/5 * * * *", Task: jobs.NewDirectoryWarmupTask()},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
