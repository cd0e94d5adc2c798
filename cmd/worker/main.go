// Package main runs the background cleanup worker. It consumes cleanup tasks
// from Redis and also schedules them periodically, so a single worker process
// keeps expired images reaped without any external cron.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/img10/internal/config"
	"github.com/dharsanguruparan/img10/internal/database"
	"github.com/dharsanguruparan/img10/internal/lifecycle"
	"github.com/dharsanguruparan/img10/internal/logging"
	"github.com/dharsanguruparan/img10/internal/queue"
	"github.com/dharsanguruparan/img10/internal/repository"
	"github.com/dharsanguruparan/img10/internal/storage"
	"github.com/dharsanguruparan/img10/internal/thumbnail"
	"github.com/dharsanguruparan/img10/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.DB != "postgres" {
		log.Fatalf("worker requires IMG10_DB=postgres, got %q", cfg.DB)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Path: cfg.LogPath})
	if err != nil {
		log.Fatalf("init logging: %v", err)
	}
	defer logger.Sync()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal("ensure schema", zap.Error(err))
	}
	meta := repository.NewImageRepository(pool)

	var blobs lifecycle.BlobStore
	switch cfg.StorageBackend {
	case "s3":
		s3, err := storage.NewS3(cfg)
		if err != nil {
			logger.Fatal("init s3 storage", zap.Error(err))
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			logger.Fatal("ensure bucket", zap.Error(err))
		}
		blobs = s3
	case "disk":
		disk, err := storage.NewDisk(cfg.DataDir)
		if err != nil {
			logger.Fatal("init disk storage", zap.Error(err))
		}
		blobs = disk
	}

	manager := lifecycle.New(lifecycle.Config{
		ExpiryWindow:   cfg.ExpiryWindow,
		MaxUploadBytes: cfg.MaxUploadBytes,
		UploadDir:      cfg.UploadDir,
		ThumbnailDir:   cfg.ThumbnailDir,
	}, meta, blobs, thumbnail.New(cfg.ThumbnailWidth, cfg.ThumbnailHeight, cfg.ThumbnailQuality), logger)

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{})
	task, err := queue.NewCleanupTask()
	if err != nil {
		logger.Fatal("build cleanup task", zap.Error(err))
	}
	if _, err := scheduler.Register(cfg.CleanupSpec, task); err != nil {
		logger.Fatal("register cleanup schedule", zap.Error(err))
	}
	if err := scheduler.Start(); err != nil {
		logger.Fatal("start scheduler", zap.Error(err))
	}
	defer scheduler.Shutdown()

	server := asynq.NewServer(redisOpt, asynq.Config{Concurrency: 1})
	processor := worker.NewProcessor(manager, logger)

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	logger.Info("worker running", zap.String("schedule", cfg.CleanupSpec))
	if err := server.Run(processor.Handler()); err != nil {
		logger.Error("worker stopped", zap.Error(err))
		os.Exit(1)
	}
}
