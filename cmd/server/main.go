// Package main is the entry point for the img10 HTTP server.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/img10/internal/api"
	"github.com/dharsanguruparan/img10/internal/config"
	"github.com/dharsanguruparan/img10/internal/database"
	"github.com/dharsanguruparan/img10/internal/lifecycle"
	"github.com/dharsanguruparan/img10/internal/logging"
	"github.com/dharsanguruparan/img10/internal/repository"
	"github.com/dharsanguruparan/img10/internal/storage"
	"github.com/dharsanguruparan/img10/internal/thumbnail"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Path: cfg.LogPath})
	if err != nil {
		log.Fatalf("init logging: %v", err)
	}
	defer logger.Sync()

	var meta lifecycle.MetadataStore
	switch cfg.DB {
	case "postgres":
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("connect database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.EnsureSchema(ctx, pool); err != nil {
			logger.Fatal("ensure schema", zap.Error(err))
		}
		meta = repository.NewImageRepository(pool)
	case "memory":
		logger.Warn("using in-memory metadata store, records are lost on restart")
		meta = repository.NewMemoryStore()
	}

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

	srv := api.New(cfg, manager, logger)
	logger.Info("img10 listening", zap.String("address", cfg.Address))
	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}
