package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Minio struct {
	minio *minio.Client
}

func NewMinio(cfg Config) (*Minio, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Minio{minio: mc}, nil
}

func (c *Minio) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := c.minio.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if exists {
		return nil
	}

	if err := c.minio.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		exists, checkErr := c.minio.BucketExists(ctx, bucket)
		if checkErr == nil && exists {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}

	return nil
}

func (c *Minio) Download(ctx context.Context, bucket, key, localPath string) error {
	if err := c.minio.FGetObject(ctx, bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		if isMinioNotFound(err) {
			return fmt.Errorf("get object %s/%s: %w", bucket, key, ErrObjectNotFound)
		}
		return fmt.Errorf("get object %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (c *Minio) Upload(ctx context.Context, bucket, key, localPath, contentType string) error {
	_, err := c.minio.FPutObject(ctx, bucket, key, localPath, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (c *Minio) Stat(ctx context.Context, bucket, key string) (ObjectInfo, bool, error) {
	info, err := c.minio.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return ObjectInfo{Key: info.Key, Size: info.Size, ContentType: info.ContentType}, true, nil
	}
	if isMinioNotFound(err) {
		return ObjectInfo{}, false, nil
	}
	return ObjectInfo{}, false, fmt.Errorf("stat object %s/%s: %w", bucket, key, err)
}

func isMinioNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchObject"
}
