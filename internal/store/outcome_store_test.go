package store

import (
	"context"
	"testing"
	"time"

	"github.com/dunamismax/derivatives/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryOutcomeStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryOutcomeStore()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"inv-1", "inv-2", "inv-3"} {
		require.NoError(t, s.Save(ctx, domain.InvocationRecord{
			ID:        id,
			Bucket:    "private-photos",
			Key:       "photo.jpg",
			Status:    domain.InvocationStatusSucceeded,
			Versions:  []domain.VersionOutcome{{Version: "thumbnail", Status: domain.VersionStatusSucceeded}},
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.Save(ctx, domain.InvocationRecord{ID: "other", Bucket: "private-photos", Key: "other.jpg"}))

	rec, ok, err := s.Get(ctx, "inv-2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "thumbnail", rec.Versions[0].Version)

	_, ok, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	recent, err := s.ListBySource(ctx, "private-photos", "photo.jpg", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "inv-3", recent[0].ID)
	assert.Equal(t, "inv-2", recent[1].ID)

	assert.ErrorIs(t, s.Save(ctx, domain.InvocationRecord{}), ErrMissingID)
}

func TestMarshalVersionsNeverNull(t *testing.T) {
	b, err := marshalVersions(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))
}
