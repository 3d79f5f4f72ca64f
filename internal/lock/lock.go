// Package lock keeps two invocations for the same source object from
// running at once. Different objects never contend.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dunamismax/derivatives/internal/id"
	"github.com/redis/go-redis/v9"
)

var ErrHeld = errors.New("lock held by another invocation")

// Release gives the lock back. It is safe to call after expiry.
type Release func(ctx context.Context) error

type Locker interface {
	Acquire(ctx context.Context, name string) (Release, error)
}

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-acquired elsewhere is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLock struct {
	client    redis.UniversalClient
	ttl       time.Duration
	keyPrefix string
	newToken  func() string
}

func NewRedisLock(client redis.UniversalClient, ttl time.Duration, keyPrefix string) (*RedisLock, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be positive")
	}
	if strings.TrimSpace(keyPrefix) == "" {
		keyPrefix = "derivatives:lock"
	}
	return &RedisLock{
		client:    client,
		ttl:       ttl,
		keyPrefix: keyPrefix,
		newToken:  id.New,
	}, nil
}

func (l *RedisLock) Acquire(ctx context.Context, name string) (Release, error) {
	key := fmt.Sprintf("%s:%s", l.keyPrefix, name)
	token := l.newToken()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHeld, name)
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		return nil
	}, nil
}

// Memory is an in-process Locker for single-process deployments and tests.
type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{held: make(map[string]struct{})}
}

func (m *Memory) Acquire(ctx context.Context, name string) (Release, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.held[name]; busy {
		return nil, fmt.Errorf("%w: %s", ErrHeld, name)
	}
	m.held[name] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, name)
			m.mu.Unlock()
		})
		return nil
	}, nil
}
