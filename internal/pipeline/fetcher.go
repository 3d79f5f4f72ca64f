package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dunamismax/derivatives/internal/domain"
	"github.com/dunamismax/derivatives/internal/storage"
)

// ObjectStoreFetcher streams the source object into dir under its original
// filename.
type ObjectStoreFetcher struct {
	Storage storage.Client
}

func (f ObjectStoreFetcher) Fetch(ctx context.Context, ref domain.SourceObjectRef, dir string) (string, error) {
	if f.Storage == nil {
		return "", fmt.Errorf("%w: storage client is required", ErrFetch)
	}
	if err := ref.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}

	localPath := filepath.Join(dir, ref.Filename())
	if err := f.Storage.Download(ctx, ref.Bucket, ref.Key, localPath); err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetch, err)
	}

	if _, err := os.Stat(localPath); err != nil {
		return "", fmt.Errorf("%w: source not materialized at %s: %v", ErrFetch, localPath, err)
	}
	return localPath, nil
}
