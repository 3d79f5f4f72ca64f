package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dunamismax/derivatives/internal/domain"
	"github.com/dunamismax/derivatives/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lossyStore accepts uploads and then loses them.
type lossyStore struct {
	*storage.Memory
}

func (lossyStore) Stat(ctx context.Context, bucket, key string) (storage.ObjectInfo, bool, error) {
	return storage.ObjectInfo{}, false, nil
}

func writeArtifact(t *testing.T, name string) domain.DerivedArtifact {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("derived"), 0o644))
	return domain.DerivedArtifact{VersionName: "thumbnail", LocalPath: path, AspectGroup: "portrait"}
}

func TestPublisherUploadsAndRemovesLocalFile(t *testing.T) {
	store := storage.NewMemory()
	pub := NewPublisher(store, "public", zerolog.Nop())
	artifact := writeArtifact(t, "photo-portrait-thumbnail.jpg")

	res, err := pub.Publish(context.Background(), artifact)
	require.NoError(t, err)
	assert.True(t, res.Succeeded)
	assert.Equal(t, "photo-portrait-thumbnail.jpg", res.DestinationKey)

	info, ok, err := store.Stat(context.Background(), "public", res.DestinationKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", info.ContentType)

	_, err = os.Stat(artifact.LocalPath)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPublisherVerifyFailureStillRemovesLocalFile(t *testing.T) {
	pub := NewPublisher(lossyStore{storage.NewMemory()}, "public", zerolog.Nop())
	artifact := writeArtifact(t, "photo-square-medium.jpg")

	res, err := pub.Publish(context.Background(), artifact)
	assert.ErrorIs(t, err, ErrPublishVerify)
	assert.False(t, res.Succeeded)

	_, statErr := os.Stat(artifact.LocalPath)
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestPublisherMissingArtifact(t *testing.T) {
	pub := NewPublisher(storage.NewMemory(), "public", zerolog.Nop())
	_, err := pub.Publish(context.Background(), domain.DerivedArtifact{LocalPath: filepath.Join(t.TempDir(), "gone.jpg")})
	assert.ErrorIs(t, err, ErrPublish)
}
