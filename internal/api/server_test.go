package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dunamismax/derivatives/internal/domain"
	"github.com/dunamismax/derivatives/internal/queue"
	"github.com/dunamismax/derivatives/internal/store"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	payloads []queue.GeneratePayload
	err      error
}

func (f *fakeQueue) EnqueueGenerate(_ context.Context, payload queue.GeneratePayload) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, payload)
	return &asynq.TaskInfo{ID: "task-" + payload.Key, Queue: "default"}, nil
}

const twoRecordEvent = `{"EventName":"s3:ObjectCreated:Put","Key":"private-photos/trips/a.jpg","Records":[
	{"eventName":"s3:ObjectCreated:Put","s3":{"bucket":{"name":"private-photos"},"object":{"key":"trips/my+photo.jpg"}}},
	{"eventName":"s3:ObjectRemoved:Delete","s3":{"bucket":{"name":"private-photos"},"object":{"key":"old.jpg"}}},
	{"eventName":"s3:ObjectCreated:Put","s3":{"bucket":{"name":"private-photos"},"object":{"key":"folder/"}}},
	{"eventName":"s3:ObjectCreated:Copy","s3":{"bucket":{"name":"private-photos"},"object":{"key":"b.jpg"}}}
]}`

func post(t *testing.T, h http.Handler, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleEventsEnqueuesPerRecord(t *testing.T) {
	q := &fakeQueue{}
	srv := NewServer(zerolog.Nop(), q, nil, "")

	rec := post(t, srv.Handler(), twoRecordEvent, "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	require.Len(t, q.payloads, 2)
	assert.Equal(t, "trips/my photo.jpg", q.payloads[0].Key)
	assert.Equal(t, "b.jpg", q.payloads[1].Key)
	assert.Equal(t, q.payloads[0].EventID, q.payloads[1].EventID)

	var resp struct {
		Enqueued []enqueuedRecord `json:"enqueued"`
		Skipped  []skippedRecord  `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Enqueued, 2)
	require.Len(t, resp.Skipped, 2)
	assert.Equal(t, 1, resp.Skipped[0].Index)
	assert.Equal(t, 2, resp.Skipped[1].Index)
}

func TestHandleEventsTestEventAndBadBody(t *testing.T) {
	q := &fakeQueue{}
	h := NewServer(zerolog.Nop(), q, nil, "").Handler()

	assert.Equal(t, http.StatusOK, post(t, h, `{"Event":"s3:TestEvent"}`, "").Code)
	assert.Equal(t, http.StatusBadRequest, post(t, h, `{"Records":`, "").Code)
	assert.Empty(t, q.payloads)
}

func TestHandleEventsAuth(t *testing.T) {
	q := &fakeQueue{}
	h := NewServer(zerolog.Nop(), q, nil, "s3cret").Handler()

	assert.Equal(t, http.StatusUnauthorized, post(t, h, twoRecordEvent, "").Code)
	assert.Equal(t, http.StatusUnauthorized, post(t, h, twoRecordEvent, "wrong").Code)
	assert.Equal(t, http.StatusAccepted, post(t, h, twoRecordEvent, "s3cret").Code)
}

func TestHandleEventsEnqueueFailure(t *testing.T) {
	q := &fakeQueue{err: errors.New("redis down")}
	rec := post(t, NewServer(zerolog.Nop(), q, nil, "").Handler(), twoRecordEvent, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestInvocationLookup(t *testing.T) {
	outcomes := store.NewMemoryOutcomeStore()
	require.NoError(t, outcomes.Save(context.Background(), domain.InvocationRecord{
		ID:        "inv-1",
		Bucket:    "private-photos",
		Key:       "photo.jpg",
		Status:    domain.InvocationStatusSucceeded,
		StartedAt: time.Now().UTC(),
	}))
	h := NewServer(zerolog.Nop(), &fakeQueue{}, outcomes, "").Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/invocations/inv-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.InvocationRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "photo.jpg", got.Key)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/invocations/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/invocations?bucket=private-photos&key=photo.jpg", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"inv-1"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/invocations?bucket=private-photos", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthzAndMetrics(t *testing.T) {
	h := NewServer(zerolog.Nop(), &fakeQueue{}, nil, "").Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "derivatives_api_requests_total")
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "/v1/invocations/{id}", routeLabel("/v1/invocations/abc"))
	assert.Equal(t, "/v1/events", routeLabel("/v1/events"))
	assert.Equal(t, "other", routeLabel("/wp-admin"))
}
