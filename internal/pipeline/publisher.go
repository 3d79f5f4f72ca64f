package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dunamismax/derivatives/internal/domain"
	"github.com/dunamismax/derivatives/internal/storage"
	"github.com/rs/zerolog"
)

// Publisher uploads rendered artifacts and confirms them by reading the
// object back. The local artifact is removed on every return path.
type Publisher struct {
	storage storage.Client
	bucket  string
	logger  zerolog.Logger
}

func NewPublisher(store storage.Client, bucket string, logger zerolog.Logger) *Publisher {
	return &Publisher{storage: store, bucket: bucket, logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, artifact domain.DerivedArtifact) (res domain.PublishResult, err error) {
	key := artifact.Filename()
	res = domain.PublishResult{Artifact: artifact, DestinationKey: key}

	defer func() {
		if rmErr := os.Remove(artifact.LocalPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			p.logger.Error().Err(rmErr).Str("path", artifact.LocalPath).Msg("remove local artifact")
		}
	}()

	info, err := os.Stat(artifact.LocalPath)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrPublish, err)
	}

	if err := p.storage.Upload(ctx, p.bucket, key, artifact.LocalPath, storage.ContentTypeFor(key)); err != nil {
		return res, fmt.Errorf("%w: %w", ErrPublish, err)
	}

	remote, ok, err := p.storage.Stat(ctx, p.bucket, key)
	switch {
	case err != nil:
		return res, fmt.Errorf("%w: %s/%s: %w", ErrPublishVerify, p.bucket, key, err)
	case !ok:
		return res, fmt.Errorf("%w: %s/%s not found after upload", ErrPublishVerify, p.bucket, key)
	case remote.Size != info.Size():
		return res, fmt.Errorf("%w: %s/%s size=%d want=%d", ErrPublishVerify, p.bucket, key, remote.Size, info.Size())
	}

	p.logger.Info().Str("bucket", p.bucket).Str("key", key).Int64("bytes", remote.Size).Msg("published")
	res.Succeeded = true
	return res, nil
}
