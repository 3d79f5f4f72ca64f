package worker

import (
	"context"
	"net/http"

	"github.com/dunamismax/derivatives/internal/config"
	"github.com/dunamismax/derivatives/internal/queue"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

type Server struct {
	logger  zerolog.Logger
	server  *asynq.Server
	handler *Handler
}

func NewServer(logger zerolog.Logger, queueCfg config.QueueConfig, workerCfg config.WorkerConfig, handler *Handler) *Server {
	return &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: max(1, workerCfg.Concurrency),
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.WarnLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Error().
						Err(err).
						Str("type", task.Type()).
						Int("retry", retried).
						Int("max_retry", maxRetry).
						Msg("task failed")
				}),
			},
		),
		handler: handler,
	}
}

// Run blocks until the process receives SIGTERM or SIGINT.
func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeGenerateDerivatives, s.handler.ProcessTask)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.handler.metrics.Handler()
}
