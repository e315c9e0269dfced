package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"handsign/internal/blobstore"
	"handsign/internal/logging"
	"handsign/internal/models"
	"handsign/internal/service"
	"handsign/internal/storage"
)

type repository interface {
	service.Repository
	service.Lister
	Ping(ctx context.Context) error
	Close()
}

func loadConfig(path string) (*models.Config, *slog.Logger, error) {
	cfg, err := models.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func openRepository(ctx context.Context, cfg models.DatabaseConfig, logger *slog.Logger) (repository, error) {
	if cfg.URL == storage.MemoryURL {
		logger.Warn("using the in-memory repository, translations are lost on exit")
		return storage.NewMemory(), nil
	}
	db, err := storage.NewStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func openBlobStore(ctx context.Context, cfg models.StorageConfig) (blobstore.Store, error) {
	switch cfg.Backend {
	case "local":
		return blobstore.NewLocal(cfg.Root, cfg.PublicPrefix), nil
	case "s3":
		store, err := blobstore.NewS3(ctx, cfg.S3, cfg.PublicPrefix)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
