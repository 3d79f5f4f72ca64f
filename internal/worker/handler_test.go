package worker

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/dunamismax/derivatives/internal/domain"
	"github.com/dunamismax/derivatives/internal/lock"
	"github.com/dunamismax/derivatives/internal/pipeline"
	"github.com/dunamismax/derivatives/internal/queue"
	"github.com/dunamismax/derivatives/internal/raster"
	"github.com/dunamismax/derivatives/internal/storage"
	"github.com/dunamismax/derivatives/internal/store"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cannedInvoker struct {
	result pipeline.Result
	calls  int
}

func (c *cannedInvoker) Process(_ context.Context, ref domain.SourceObjectRef) pipeline.Result {
	c.calls++
	res := c.result
	res.Source = ref
	return res
}

func generateTask(t *testing.T, bucket, key string) *asynq.Task {
	t.Helper()
	task, err := queue.NewGenerateTask(queue.GeneratePayload{
		EventID:    "evt-1",
		Bucket:     bucket,
		Key:        key,
		ReceivedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return task
}

func TestProcessTaskRecordsOutcome(t *testing.T) {
	started := time.Now().UTC()
	invoker := &cannedInvoker{result: pipeline.Result{
		InvocationID: "inv-1",
		State:        pipeline.StateDone,
		AspectGroup:  "portrait",
		Versions: []domain.VersionOutcome{
			{Version: "thumbnail", AspectGroup: "portrait", Status: domain.VersionStatusSucceeded},
			{Version: "medium", AspectGroup: "portrait", Status: domain.VersionStatusFailed},
		},
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
	}}
	outcomes := store.NewMemoryOutcomeStore()
	h := NewHandler(invoker, lock.NewMemory(), outcomes, zerolog.Nop())

	err := h.ProcessTask(context.Background(), generateTask(t, "private-photos", "photo.jpg"))
	require.NoError(t, err, "partial invocations are not task failures")

	rec, ok, err := outcomes.Get(context.Background(), "inv-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.InvocationStatusPartial, rec.Status)
	assert.Equal(t, "photo.jpg", rec.Key)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.invocationsTotal.WithLabelValues(domain.InvocationStatusPartial)))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.versionsTotal.WithLabelValues("thumbnail", "portrait", domain.VersionStatusSucceeded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.versionsTotal.WithLabelValues("medium", "portrait", domain.VersionStatusFailed)))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.activeInvocations))
}

func TestProcessTaskAbortedSkipsRetry(t *testing.T) {
	invoker := &cannedInvoker{result: pipeline.Result{
		InvocationID: "inv-2",
		Aborted:      true,
		Err:          pipeline.ErrFetch,
	}}
	h := NewHandler(invoker, nil, nil, zerolog.Nop())

	err := h.ProcessTask(context.Background(), generateTask(t, "private-photos", "missing.jpg"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.invocationsTotal.WithLabelValues(domain.InvocationStatusAborted)))
}

func TestProcessTaskDropsDuplicates(t *testing.T) {
	locker := lock.NewMemory()
	release, err := locker.Acquire(context.Background(), "private-photos/photo.jpg")
	require.NoError(t, err)
	defer release(context.Background())

	invoker := &cannedInvoker{}
	h := NewHandler(invoker, locker, nil, zerolog.Nop())

	require.NoError(t, h.ProcessTask(context.Background(), generateTask(t, "private-photos", "photo.jpg")))
	assert.Zero(t, invoker.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.duplicatesTotal))
}

func TestProcessTaskRejectsBadPayload(t *testing.T) {
	h := NewHandler(&cannedInvoker{}, nil, nil, zerolog.Nop())
	err := h.ProcessTask(context.Background(), asynq.NewTask(queue.TypeGenerateDerivatives, []byte(`{"bucket":"b"}`)))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestProcessTaskWithNativeRaster(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 160))
	for y := 0; y < 160; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	objects := storage.NewMemory()
	objects.Seed("private-photos", "uploads/photo.png", buf.Bytes())

	proc, err := pipeline.NewProcessor(pipeline.Config{
		WorkDir:           t.TempDir(),
		DestinationBucket: "public-photos",
		Versions:          []domain.VersionSpec{{Name: "thumbnail", TargetWidth: 100}},
	}, pipeline.Deps{
		Storage: objects,
		Prober:  raster.NativeTool{},
		Resizer: raster.NativeTool{},
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)

	outcomes := store.NewMemoryOutcomeStore()
	h := NewHandler(proc, lock.NewMemory(), outcomes, zerolog.Nop())
	require.NoError(t, h.ProcessTask(context.Background(), generateTask(t, "private-photos", "uploads/photo.png")))

	assert.Equal(t, []string{"photo-landscape-thumbnail.png"}, objects.Keys("public-photos"))
	recs, err := outcomes.ListBySource(context.Background(), "private-photos", "uploads/photo.png", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.InvocationStatusSucceeded, recs[0].Status)
	assert.Equal(t, "50%", recs[0].Versions[0].ScalePercent)
}
