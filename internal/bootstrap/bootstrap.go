// Package bootstrap provides dependency initialization for clipkit.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maauso/clipkit/internal/config"
	"github.com/maauso/clipkit/internal/job"
	"github.com/maauso/clipkit/internal/media"
	"github.com/maauso/clipkit/internal/pipeline"
	"github.com/maauso/clipkit/internal/storage"
)

// Dependencies holds the initialized render stack.
type Dependencies struct {
	Store     *storage.LocalStorage
	Prober    *media.Prober
	Executor  *pipeline.Executor
	Publisher *storage.S3Publisher // nil when S3 is not configured
	Service   *job.Service
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := storage.NewLocalStorage(cfg.TempDir, cfg.TrashDir, storage.WithFallbackRetention(cfg.TrashRetention))
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", store.Root()),
		slog.String("trash_dir", store.Trash().Dir()),
		slog.Duration("trash_retention", cfg.TrashRetention),
	)
	if cfg.TrashRetention > 0 {
		n, err := store.Trash().PurgeFallback(cfg.TrashRetention)
		if err != nil {
			logger.Warn("failed to purge fallback trash", slog.String("error", err.Error()))
		} else if n > 0 {
			logger.Info("purged fallback trash", slog.Int("entries", n))
		}
	}

	deps := &Dependencies{
		Store:    store,
		Prober:   media.NewProber(cfg.FFprobePath, logger),
		Executor: NewExecutor(cfg, store, logger),
	}

	opts := []job.ServiceOption{
		job.WithMaxConcurrent(cfg.MaxConcurrentRenders),
		job.WithLogger(logger),
	}
	if cfg.S3Enabled() {
		publisher, err := storage.NewS3Publisher(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 publisher: %w", err)
		}
		logger.Info("S3 publishing configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		deps.Publisher = publisher
		opts = append(opts, job.WithPublisher(publisher))
	}

	deps.Service = job.NewService(job.NewMemoryRepository(job.WithHistory(cfg.RenderHistory)), deps.Prober, deps.Executor, opts...)
	return deps, nil
}

// NewExecutor builds the pipeline executor for cfg over store.
func NewExecutor(cfg *config.Config, store pipeline.Store, logger *slog.Logger) *pipeline.Executor {
	planner := pipeline.NewPlanner(cfg.FFmpegPath, pipeline.WithCRF(cfg.CRF))
	return pipeline.NewExecutor(planner, store, logger)
}
