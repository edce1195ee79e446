package config

import (
	"context"
	"fmt"

	"github.com/duskline/duskline/internal/metastore"
	"github.com/duskline/duskline/internal/metastore/filestore"
	"github.com/duskline/duskline/internal/metastore/postgres"
	"github.com/duskline/duskline/internal/metastore/retrying"
	"github.com/duskline/duskline/internal/splitstore"
	"github.com/duskline/duskline/internal/splitstore/fsbackend"
	"github.com/duskline/duskline/internal/splitstore/s3backend"
)

// BuildMetastore resolves cfg.Backend to a concrete metastore.Metastore
// and wraps it with retrying.Metastore so every caller gets the
// bounded-backoff Connection-error retry policy of §7 for free,
// without each daemon's main() re-wiring it.
func BuildMetastore(ctx context.Context, cfg MetastoreConfig) (metastore.Metastore, error) {
	var inner metastore.Metastore
	switch cfg.Backend {
	case "postgres":
		pg, err := postgres.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("config: building postgres metastore: %w", err)
		}
		inner = pg
	case "file", "":
		fs, err := filestore.New(cfg.FileRoot)
		if err != nil {
			return nil, fmt.Errorf("config: building file metastore: %w", err)
		}
		inner = fs
	default:
		return nil, fmt.Errorf("config: unknown metastore backend %q", cfg.Backend)
	}
	return retrying.New(inner), nil
}

// BuildStorageBackend resolves cfg.Backend to a concrete
// splitstore.Backend.
func BuildStorageBackend(ctx context.Context, cfg StorageConfig) (splitstore.Backend, error) {
	switch cfg.Backend {
	case "s3":
		return s3backend.New(ctx, s3backend.Config{
			Bucket: cfg.S3.Bucket,
			Region: cfg.S3.Region,
			Endpoint: cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKeyID,
			SecretKey: cfg.S3.SecretAccessKey,
			UsePathStyle: cfg.S3.UsePathStyle,
		})
	case "fs", "":
		return fsbackend.New(cfg.FS.Root)
	default:
		return nil, fmt.Errorf("config: unknown storage backend %q", cfg.Backend)
	}
}
