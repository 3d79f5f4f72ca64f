package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/dunamismax/derivatives/internal/domain"
	"github.com/dunamismax/derivatives/internal/lock"
	"github.com/dunamismax/derivatives/internal/pipeline"
	"github.com/dunamismax/derivatives/internal/queue"
	"github.com/dunamismax/derivatives/internal/store"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Invoker runs one pipeline invocation. *pipeline.Processor implements it.
type Invoker interface {
	Process(ctx context.Context, ref domain.SourceObjectRef) pipeline.Result
}

// Handler turns queue tasks into pipeline invocations.
type Handler struct {
	invoker  Invoker
	locker   lock.Locker
	outcomes store.OutcomeStore
	metrics  *metrics
	logger   zerolog.Logger
	tracer   trace.Tracer
}

func NewHandler(invoker Invoker, locker lock.Locker, outcomes store.OutcomeStore, logger zerolog.Logger) *Handler {
	if locker == nil {
		locker = lock.NewMemory()
	}
	if outcomes == nil {
		outcomes = store.NewMemoryOutcomeStore()
	}
	return &Handler{
		invoker:  invoker,
		locker:   locker,
		outcomes: outcomes,
		metrics:  newMetrics(),
		logger:   logger,
		tracer:   otel.Tracer("derivatives/worker"),
	}
}

func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseGeneratePayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}
	ref := payload.Ref()
	logger := h.logger.With().Str("event_id", payload.EventID).Str("bucket", ref.Bucket).Str("key", ref.Key).Logger()

	ctx, span := h.tracer.Start(ctx, "worker.generate", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("event.id", payload.EventID),
		attribute.String("source.bucket", ref.Bucket),
		attribute.String("source.key", ref.Key),
	)
	defer span.End()

	release, err := h.locker.Acquire(ctx, ref.String())
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			h.metrics.duplicatesTotal.Inc()
			logger.Warn().Msg("object already being processed; dropping duplicate task")
			span.SetStatus(codes.Ok, "duplicate")
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "lock failed")
		return fmt.Errorf("acquire object lock: %v: %w", err, asynq.SkipRetry)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			logger.Error().Err(err).Msg("release object lock")
		}
	}()

	h.metrics.activeInvocations.Inc()
	result := h.invoker.Process(ctx, ref)
	h.metrics.activeInvocations.Dec()

	status := result.Status()
	h.metrics.invocationsTotal.WithLabelValues(status).Inc()
	h.metrics.invocationDuration.WithLabelValues(status).Observe(result.FinishedAt.Sub(result.StartedAt).Seconds())
	for _, v := range result.Versions {
		h.metrics.versionsTotal.WithLabelValues(v.Version, v.AspectGroup, v.Status).Inc()
	}

	if err := h.outcomes.Save(context.WithoutCancel(ctx), result.Record()); err != nil {
		h.metrics.outcomeWriteFailure.Inc()
		logger.Error().Err(err).Str("invocation_id", result.InvocationID).Msg("save invocation record")
	}

	span.SetAttributes(
		attribute.String("invocation.id", result.InvocationID),
		attribute.String("invocation.status", status),
	)

	switch status {
	case domain.InvocationStatusAborted:
		span.SetStatus(codes.Error, "aborted")
		return fmt.Errorf("invocation %s aborted: %v: %w", result.InvocationID, result.Err, asynq.SkipRetry)
	case domain.InvocationStatusFailed:
		span.SetStatus(codes.Error, "no version published")
		return fmt.Errorf("invocation %s published no versions: %w", result.InvocationID, asynq.SkipRetry)
	}

	span.SetStatus(codes.Ok, status)
	logger.Info().
		Str("invocation_id", result.InvocationID).
		Str("status", status).
		Dur("elapsed", result.FinishedAt.Sub(result.StartedAt)).
		Msg("task handled")
	return nil
}
