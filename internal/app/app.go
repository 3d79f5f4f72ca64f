// Package app assembles the pipeline and its stores from configuration.
// Each binary under cmd/ calls into it once at startup.
package app

import (
	"context"
	"fmt"

	"github.com/dunamismax/derivatives/internal/aspect"
	"github.com/dunamismax/derivatives/internal/config"
	"github.com/dunamismax/derivatives/internal/pipeline"
	"github.com/dunamismax/derivatives/internal/raster"
	"github.com/dunamismax/derivatives/internal/storage"
	"github.com/dunamismax/derivatives/internal/store"
	"github.com/dunamismax/derivatives/internal/webhook"
	"github.com/rs/zerolog"
)

func StorageConfig(cfg config.StorageConfig) storage.Config {
	return storage.Config{
		Backend:   cfg.Backend,
		Region:    cfg.Region,
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
		PathStyle: cfg.PathStyle,
	}
}

func RasterConfig(cfg config.RasterConfig) raster.Config {
	return raster.Config{
		Backend: cfg.Backend,
		Binary:  cfg.Binary,
		Timeout: cfg.Timeout,
	}
}

// NewProcessor validates cfg and builds a processor with real clients. The
// returned func releases process-wide raster resources.
func NewProcessor(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*pipeline.Processor, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	objects, err := storage.New(ctx, StorageConfig(cfg.Storage))
	if err != nil {
		return nil, nil, fmt.Errorf("initialize storage: %w", err)
	}
	if mc, ok := objects.(*storage.Minio); ok && cfg.Storage.EnsureBucket {
		if err := mc.EnsureBucket(ctx, cfg.Storage.DestinationBucket); err != nil {
			return nil, nil, fmt.Errorf("ensure destination bucket: %w", err)
		}
	}

	tool, err := raster.New(RasterConfig(cfg.Raster))
	if err != nil {
		return nil, nil, fmt.Errorf("initialize raster backend: %w", err)
	}

	notifier := webhook.NewClient(webhook.Config{
		URL:           cfg.Notify.URL,
		APIKey:        cfg.Notify.APIKey,
		SigningSecret: cfg.Notify.SigningSecret,
		Timeout:       cfg.Notify.Timeout,
	})
	if !notifier.Enabled() {
		logger.Info().Msg("webhook url not set; notifications disabled")
	}

	proc, err := pipeline.NewProcessor(pipeline.Config{
		WorkDir:            cfg.Pipeline.WorkDir,
		DestinationBucket:  cfg.Storage.DestinationBucket,
		Versions:           cfg.Pipeline.Versions,
		UnclassifiedPolicy: cfg.Pipeline.UnclassifiedPolicy,
	}, pipeline.Deps{
		Storage:    objects,
		Prober:     tool,
		Resizer:    tool,
		Classifier: aspect.NewClassifier(nil),
		Notifier:   notifier,
		Logger:     logger,
	})
	if err != nil {
		raster.Shutdown()
		return nil, nil, fmt.Errorf("initialize pipeline: %w", err)
	}

	logger.Info().
		Str("storage_backend", cfg.Storage.Backend).
		Str("raster_backend", cfg.Raster.Backend).
		Str("destination_bucket", cfg.Storage.DestinationBucket).
		Int("versions", len(cfg.Pipeline.Versions)).
		Msg("pipeline ready")
	return proc, raster.Shutdown, nil
}

// NewOutcomeStore uses Postgres when a DSN is configured and an in-process
// store otherwise.
func NewOutcomeStore(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (store.OutcomeStore, func(), error) {
	if cfg.DSN == "" {
		logger.Info().Msg("POSTGRES_DSN not set; keeping invocation records in memory")
		return store.NewMemoryOutcomeStore(), func() {}, nil
	}
	pg, err := store.NewPostgresOutcomeStore(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	return pg, func() {
		if err := pg.Close(); err != nil {
			logger.Error().Err(err).Msg("close postgres")
		}
	}, nil
}
