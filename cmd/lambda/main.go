// Command lambda runs one pipeline invocation per S3 event delivered to an
// AWS Lambda function.
package main

import (
	"context"
	"errors"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/dunamismax/derivatives/internal/app"
	"github.com/dunamismax/derivatives/internal/config"
	"github.com/dunamismax/derivatives/internal/domain"
	"github.com/dunamismax/derivatives/internal/logging"
	"github.com/dunamismax/derivatives/internal/pipeline"
	"github.com/dunamismax/derivatives/internal/store"
	"github.com/rs/zerolog"
)

type invoker interface {
	Process(ctx context.Context, ref domain.SourceObjectRef) pipeline.Result
}

type eventHandler struct {
	invoker  invoker
	outcomes store.OutcomeStore
	logger   zerolog.Logger
}

// handle processes the first record only. Any further records are logged
// and dropped; S3 delivers one record per event in practice. Errors are not
// returned for failed invocations so Lambda does not retry them.
func (h *eventHandler) handle(ctx context.Context, event events.S3Event) (domain.InvocationRecord, error) {
	if len(event.Records) == 0 {
		return domain.InvocationRecord{}, domain.ErrNoRecords
	}
	if extra := len(event.Records) - 1; extra > 0 {
		h.logger.Warn().Int("ignored_records", extra).Msg("event carries more than one record; processing the first")
	}

	ref, err := recordRef(event.Records[0])
	if err != nil {
		return domain.InvocationRecord{}, err
	}

	result := h.invoker.Process(ctx, ref)
	rec := result.Record()
	if err := h.outcomes.Save(context.WithoutCancel(ctx), rec); err != nil {
		h.logger.Error().Err(err).Str("invocation_id", rec.ID).Msg("save invocation record")
	}
	return rec, nil
}

func recordRef(r events.S3EventRecord) (domain.SourceObjectRef, error) {
	var rec domain.NotificationRecord
	rec.EventName = r.EventName
	rec.S3.Bucket.Name = r.S3.Bucket.Name
	rec.S3.Object.Key = r.S3.Object.Key
	rec.S3.Object.Size = r.S3.Object.Size
	return rec.Ref()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootstrap := logging.New("info", "json", "lambda")
		bootstrap.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, "lambda")
	ctx := context.Background()

	proc, shutdownRaster, err := app.NewProcessor(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build pipeline")
	}
	defer shutdownRaster()

	outcomes, closeOutcomes, err := app.NewOutcomeStore(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open outcome store")
	}
	defer closeOutcomes()

	h := &eventHandler{invoker: proc, outcomes: outcomes, logger: logger}
	lambda.Start(func(ctx context.Context, event events.S3Event) (domain.InvocationRecord, error) {
		rec, err := h.handle(ctx, event)
		if errors.Is(err, domain.ErrNoRecords) {
			logger.Warn().Msg("empty event")
			return rec, nil
		}
		return rec, err
	})
}
