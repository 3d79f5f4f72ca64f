package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dunamismax/derivatives/internal/domain"
	_ "github.com/lib/pq"
)

const outcomeSchemaSQL = `
CREATE TABLE IF NOT EXISTS invocations (
	id TEXT PRIMARY KEY,
	bucket TEXT NOT NULL,
	object_key TEXT NOT NULL,
	status TEXT NOT NULL,
	aspect_group TEXT NOT NULL DEFAULT '',
	width DOUBLE PRECISION NOT NULL DEFAULT 0,
	height DOUBLE PRECISION NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	versions JSONB NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS invocations_source_idx ON invocations (bucket, object_key, started_at DESC);
`

const selectInvocationSQL = `SELECT id, bucket, object_key, status, aspect_group, width, height, error, versions, started_at, finished_at
 FROM invocations`

type PostgresOutcomeStore struct {
	db *sql.DB
}

func NewPostgresOutcomeStore(ctx context.Context, dsn string) (*PostgresOutcomeStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresOutcomeStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresOutcomeStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, outcomeSchemaSQL); err != nil {
		return fmt.Errorf("ensure invocations schema: %w", err)
	}
	return nil
}

func (s *PostgresOutcomeStore) Close() error {
	return s.db.Close()
}

// Save upserts by id so a redelivered record replaces the earlier row.
func (s *PostgresOutcomeStore) Save(ctx context.Context, rec domain.InvocationRecord) error {
	if rec.ID == "" {
		return ErrMissingID
	}
	versionsJSON, err := marshalVersions(rec.Versions)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO invocations (id, bucket, object_key, status, aspect_group, width, height, error, versions, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
		   status = EXCLUDED.status,
		   aspect_group = EXCLUDED.aspect_group,
		   width = EXCLUDED.width,
		   height = EXCLUDED.height,
		   error = EXCLUDED.error,
		   versions = EXCLUDED.versions,
		   finished_at = EXCLUDED.finished_at`,
		rec.ID,
		rec.Bucket,
		rec.Key,
		rec.Status,
		rec.AspectGroup,
		rec.Width,
		rec.Height,
		rec.Error,
		versionsJSON,
		rec.StartedAt,
		rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert invocation: %w", err)
	}
	return nil
}

func (s *PostgresOutcomeStore) Get(ctx context.Context, id string) (domain.InvocationRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, selectInvocationSQL+` WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.InvocationRecord{}, false, nil
		}
		return domain.InvocationRecord{}, false, fmt.Errorf("query invocation: %w", err)
	}
	return rec, true, nil
}

func (s *PostgresOutcomeStore) ListBySource(ctx context.Context, bucket, key string, limit int) ([]domain.InvocationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		selectInvocationSQL+` WHERE bucket = $1 AND object_key = $2 ORDER BY started_at DESC LIMIT $3`,
		bucket,
		key,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	defer rows.Close()

	var out []domain.InvocationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (domain.InvocationRecord, error) {
	var (
		rec          domain.InvocationRecord
		versionsJSON []byte
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Bucket,
		&rec.Key,
		&rec.Status,
		&rec.AspectGroup,
		&rec.Width,
		&rec.Height,
		&rec.Error,
		&versionsJSON,
		&rec.StartedAt,
		&rec.FinishedAt,
	); err != nil {
		return domain.InvocationRecord{}, err
	}
	if err := json.Unmarshal(versionsJSON, &rec.Versions); err != nil {
		return domain.InvocationRecord{}, fmt.Errorf("unmarshal versions: %w", err)
	}
	return rec, nil
}

func marshalVersions(versions []domain.VersionOutcome) ([]byte, error) {
	if versions == nil {
		versions = []domain.VersionOutcome{}
	}
	b, err := json.Marshal(versions)
	if err != nil {
		return nil, fmt.Errorf("marshal versions: %w", err)
	}
	return b, nil
}
