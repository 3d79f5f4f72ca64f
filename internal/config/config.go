package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/derivatives/internal/domain"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
)

type Config struct {
	API      APIConfig
	Queue    QueueConfig
	Worker   WorkerConfig
	Storage  StorageConfig
	Raster   RasterConfig
	Notify   NotifyConfig
	Pipeline PipelineConfig
	Database DatabaseConfig
	Tracing  TracingConfig
	Log      LogConfig
}

type APIConfig struct {
	Addr      string
	AuthToken string
}

type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Name          string
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency int
	// LockTTL is a floor. The worker holds the object lock for at least
	// EffectiveLockTTL, which covers the slowest possible invocation.
	LockTTL     time.Duration
	MetricsAddr string
}

type StorageConfig struct {
	Backend           string
	Region            string
	Endpoint          string
	AccessKey         string
	SecretKey         string
	UseSSL            bool
	PathStyle         bool
	DestinationBucket string
	// EnsureBucket creates the destination bucket at startup (MinIO only).
	EnsureBucket bool
}

type RasterConfig struct {
	Backend string
	Binary  string
	Timeout time.Duration
}

type NotifyConfig struct {
	URL           string
	APIKey        string
	SigningSecret string
	Timeout       time.Duration
}

type PipelineConfig struct {
	WorkDir            string
	UnclassifiedPolicy string
	Versions           []domain.VersionSpec
}

type DatabaseConfig struct {
	DSN string
}

type TracingConfig struct {
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment once at process start. A
// .env file in the working directory is applied first when present; real
// environment variables win over it.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	versions, err := loadVersions()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		API: APIConfig{
			Addr:      env("DERIVATIVES_API_ADDR", ":8080"),
			AuthToken: env("INGEST_AUTH_TOKEN", ""),
		},
		Queue: QueueConfig{
			RedisAddr:     env("REDIS_ADDR", "localhost:6379"),
			RedisPassword: env("REDIS_PASSWORD", ""),
			RedisDB:       envInt("REDIS_DB", 0),
			Name:          env("ASYNC_QUEUE", "default"),
		},
		Worker: WorkerConfig{
			Concurrency: envInt("WORKER_CONCURRENCY", max(2, runtime.NumCPU())),
			LockTTL:     envDuration("WORKER_LOCK_TTL", 5*time.Minute),
			MetricsAddr: env("WORKER_METRICS_ADDR", ":9091"),
		},
		Storage: StorageConfig{
			Backend:           env("STORAGE_BACKEND", "s3"),
			Region:            env("AWS_REGION", "us-east-1"),
			Endpoint:          env("STORAGE_ENDPOINT", ""),
			AccessKey:         env("STORAGE_ACCESS_KEY", ""),
			SecretKey:         env("STORAGE_SECRET_KEY", ""),
			UseSSL:            envBool("STORAGE_USE_SSL", true),
			PathStyle:         envBool("STORAGE_PATH_STYLE", false),
			DestinationBucket: env("DESTINATION_BUCKET", ""),
			EnsureBucket:      envBool("STORAGE_ENSURE_BUCKET", false),
		},
		Raster: RasterConfig{
			Backend: env("RASTER_BACKEND", "magick"),
			Binary:  env("MAGICK_BINARY", "magick"),
			Timeout: envDuration("RASTER_TIMEOUT", 60*time.Second),
		},
		Notify: NotifyConfig{
			URL:           env("WEBHOOK_URL", ""),
			APIKey:        env("WEBHOOK_API_KEY", ""),
			SigningSecret: env("WEBHOOK_SIGNING_SECRET", ""),
			Timeout:       envDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		},
		Pipeline: PipelineConfig{
			WorkDir:            env("WORK_DIR", os.TempDir()),
			UnclassifiedPolicy: strings.ToLower(env("UNCLASSIFIED_POLICY", "label")),
			Versions:           versions,
		},
		Database: DatabaseConfig{
			DSN: env("POSTGRES_DSN", ""),
		},
		Tracing: TracingConfig{
			Exporter:     env("OTEL_TRACES_EXPORTER", "none"),
			OTLPEndpoint: env("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			OTLPInsecure: envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		},
		Log: LogConfig{
			Level:  env("LOG_LEVEL", "info"),
			Format: env("LOG_FORMAT", "json"),
		},
	}
	return cfg, nil
}

// Validate checks what the pipeline itself needs. Entry points that only
// enqueue work do not call it.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Storage.DestinationBucket) == "" {
		return errors.New("DESTINATION_BUCKET is required")
	}
	switch c.Pipeline.UnclassifiedPolicy {
	case "label", "skip":
	default:
		return fmt.Errorf("UNCLASSIFIED_POLICY must be label or skip, got %q", c.Pipeline.UnclassifiedPolicy)
	}
	if c.Notify.URL != "" && c.Notify.APIKey == "" {
		return errors.New("WEBHOOK_API_KEY is required when WEBHOOK_URL is set")
	}
	return domain.ValidateVersions(c.Pipeline.Versions)
}

// lockMargin covers fetch and publish, which have no configured timeout.
const lockMargin = time.Minute

// EffectiveLockTTL is the object lock lifetime: the configured LockTTL or
// the worst-case invocation time, whichever is longer. The worst case is one
// probe plus one resize per version at the raster timeout, and one webhook
// call per version at the notify timeout.
func (c Config) EffectiveLockTTL() time.Duration {
	versions := time.Duration(len(c.Pipeline.Versions))
	bound := (versions+1)*c.Raster.Timeout + lockMargin
	if c.Notify.URL != "" {
		bound += versions * c.Notify.Timeout
	}
	return max(c.Worker.LockTTL, bound)
}

func env(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
