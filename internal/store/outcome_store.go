package store

import (
	"context"

	"github.com/dunamismax/derivatives/internal/domain"
)

// OutcomeStore keeps finished invocation records for later inspection.
type OutcomeStore interface {
	Save(ctx context.Context, rec domain.InvocationRecord) error
	Get(ctx context.Context, id string) (domain.InvocationRecord, bool, error)
	// ListBySource returns the most recent records for an object, newest
	// first, at most limit entries.
	ListBySource(ctx context.Context, bucket, key string, limit int) ([]domain.InvocationRecord, error)
}
