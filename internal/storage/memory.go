package storage

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// Memory is an in-process object store. Puts overwrite.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	puts    int
}

type memoryObject struct {
	data        []byte
	contentType string
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memoryObject)}
}

func memoryKey(bucket, key string) string {
	return bucket + "/" + key
}

// Seed stores data directly, bypassing Upload.
func (m *Memory) Seed(bucket, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[memoryKey(bucket, key)] = memoryObject{data: append([]byte(nil), data...)}
}

func (m *Memory) Download(ctx context.Context, bucket, key, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	obj, ok := m.objects[memoryKey(bucket, key)]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("get object %s/%s: %w", bucket, key, ErrObjectNotFound)
	}
	if err := os.WriteFile(localPath, obj.data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", localPath, err)
	}
	return nil
}

func (m *Memory) Upload(ctx context.Context, bucket, key, localPath, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", localPath, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[memoryKey(bucket, key)] = memoryObject{data: data, contentType: contentType}
	m.puts++
	return nil
}

func (m *Memory) Stat(ctx context.Context, bucket, key string) (ObjectInfo, bool, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[memoryKey(bucket, key)]
	if !ok {
		return ObjectInfo{}, false, nil
	}
	return ObjectInfo{Key: key, Size: int64(len(obj.data)), ContentType: obj.contentType}, true, nil
}

// Keys lists stored objects in bucket.
func (m *Memory) Keys(bucket string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefix := bucket + "/"
	var keys []string
	for k := range m.objects {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k[len(prefix):])
		}
	}
	return keys
}

// Puts counts successful uploads.
func (m *Memory) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}
