// Package storage moves files between local disk and object stores.
package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

const (
	BackendMinio = "minio"
	BackendS3    = "s3"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
}

// Client is the object-store surface the pipeline needs: fetch the source,
// put a derivative, and read back its metadata to confirm the write.
type Client interface {
	Download(ctx context.Context, bucket, key, localPath string) error
	Upload(ctx context.Context, bucket, key, localPath, contentType string) error
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, bool, error)
}

type Config struct {
	Backend   string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	PathStyle bool
}

// New builds the configured backend.
func New(ctx context.Context, cfg Config) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendS3:
		return NewS3(ctx, cfg)
	case BackendMinio:
		return NewMinio(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}

// ContentTypeFor guesses the MIME type from the file extension.
func ContentTypeFor(filename string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
