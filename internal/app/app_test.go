package app

import (
	"context"
	"testing"
	"time"

	"github.com/dunamismax/derivatives/internal/config"
	"github.com/dunamismax/derivatives/internal/domain"
	"github.com/dunamismax/derivatives/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProcessorRejectsInvalidConfig(t *testing.T) {
	_, _, err := NewProcessor(context.Background(), config.Config{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewProcessorWithMinioAndNative(t *testing.T) {
	cfg := config.Config{
		Storage: config.StorageConfig{
			Backend:           "minio",
			Endpoint:          "localhost:9000",
			AccessKey:         "minioadmin",
			SecretKey:         "minioadmin",
			DestinationBucket: "public-photos",
		},
		Raster:   config.RasterConfig{Backend: "native", Timeout: time.Second},
		Pipeline: config.PipelineConfig{WorkDir: t.TempDir(), UnclassifiedPolicy: "label", Versions: []domain.VersionSpec{{Name: "thumbnail", TargetWidth: 400}}},
	}

	proc, shutdown, err := NewProcessor(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, proc)
	shutdown()
}

func TestNewOutcomeStoreDefaultsToMemory(t *testing.T) {
	s, closeFn, err := NewOutcomeStore(context.Background(), config.DatabaseConfig{}, zerolog.Nop())
	require.NoError(t, err)
	defer closeFn()
	_, ok := s.(*store.MemoryOutcomeStore)
	assert.True(t, ok)
}
