package main

import (
	"context"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/dunamismax/derivatives/internal/domain"
	"github.com/dunamismax/derivatives/internal/pipeline"
	"github.com/dunamismax/derivatives/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingInvoker struct {
	refs []domain.SourceObjectRef
}

func (r *recordingInvoker) Process(_ context.Context, ref domain.SourceObjectRef) pipeline.Result {
	r.refs = append(r.refs, ref)
	return pipeline.Result{
		InvocationID: "inv-1",
		Source:       ref,
		Versions:     []domain.VersionOutcome{{Version: "thumbnail", Status: domain.VersionStatusSucceeded}},
	}
}

func s3Record(bucket, key string) events.S3EventRecord {
	var r events.S3EventRecord
	r.EventName = "ObjectCreated:Put"
	r.S3.Bucket.Name = bucket
	r.S3.Object.Key = key
	return r
}

func TestHandleProcessesFirstRecordOnly(t *testing.T) {
	inv := &recordingInvoker{}
	outcomes := store.NewMemoryOutcomeStore()
	h := &eventHandler{invoker: inv, outcomes: outcomes, logger: zerolog.Nop()}

	rec, err := h.handle(context.Background(), events.S3Event{Records: []events.S3EventRecord{
		s3Record("private-photos", "trips/my+photo.jpg"),
		s3Record("private-photos", "second.jpg"),
	}})
	require.NoError(t, err)

	require.Len(t, inv.refs, 1)
	assert.Equal(t, "trips/my photo.jpg", inv.refs[0].Key)
	assert.Equal(t, domain.InvocationStatusSucceeded, rec.Status)

	_, ok, err := outcomes.Get(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHandleRejectsEmptyAndInvalidEvents(t *testing.T) {
	h := &eventHandler{invoker: &recordingInvoker{}, outcomes: store.NewMemoryOutcomeStore(), logger: zerolog.Nop()}

	_, err := h.handle(context.Background(), events.S3Event{})
	assert.ErrorIs(t, err, domain.ErrNoRecords)

	_, err = h.handle(context.Background(), events.S3Event{Records: []events.S3EventRecord{s3Record("", "a.jpg")}})
	assert.Error(t, err)
}
