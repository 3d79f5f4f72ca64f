package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/derivatives/internal/domain"
	"github.com/dunamismax/derivatives/internal/id"
	"github.com/dunamismax/derivatives/internal/queue"
	"github.com/dunamismax/derivatives/internal/store"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const maxBodyBytes = 1 << 20

type Server struct {
	logger      zerolog.Logger
	queueClient queueEnqueuer
	outcomes    store.OutcomeStore
	authToken   string
	metrics     *metrics
	tracer      trace.Tracer
	mux         *http.ServeMux
}

type queueEnqueuer interface {
	EnqueueGenerate(ctx context.Context, payload queue.GeneratePayload) (*asynq.TaskInfo, error)
}

// NewServer wires the ingress routes. When authToken is set, event
// deliveries must carry it as a bearer token (the MinIO webhook target's
// auth_token setting).
func NewServer(logger zerolog.Logger, queueClient queueEnqueuer, outcomes store.OutcomeStore, authToken string) *Server {
	if outcomes == nil {
		outcomes = store.NewMemoryOutcomeStore()
	}
	s := &Server{
		logger:      logger,
		queueClient: queueClient,
		outcomes:    outcomes,
		authToken:   strings.TrimSpace(authToken),
		metrics:     newMetrics(),
		tracer:      otel.Tracer("derivatives/api"),
		mux:         http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.withTracing(s.metrics.withHTTPMetrics(s.mux))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("POST /v1/events", s.handleEvents)
	s.mux.HandleFunc("GET /v1/invocations/{id}", s.handleGetInvocation)
	s.mux.HandleFunc("GET /v1/invocations", s.handleListInvocations)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type enqueuedRecord struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	TaskID string `json:"task_id"`
}

type skippedRecord struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// handleEvents accepts an S3-style bucket notification and enqueues one
// task per object-created record. Records that cannot name an object are
// reported as skipped and do not fail the delivery.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or missing token"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read body"})
		return
	}

	notification, err := domain.ParseBucketNotification(body)
	if errors.Is(err, domain.ErrNoRecords) {
		// S3 sends a record-less s3:TestEvent when a notification is configured.
		writeJSON(w, http.StatusOK, map[string]any{"enqueued": []enqueuedRecord{}, "skipped": []skippedRecord{}})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	eventID := id.New()
	receivedAt := time.Now().UTC()
	enqueued := make([]enqueuedRecord, 0, len(notification.Records))
	skipped := make([]skippedRecord, 0)

	for i, rec := range notification.Records {
		if rec.EventName != "" && !strings.Contains(rec.EventName, "ObjectCreated") {
			skipped = append(skipped, skippedRecord{Index: i, Reason: "not an object-created event: " + rec.EventName})
			continue
		}
		ref, err := rec.Ref()
		if err != nil {
			skipped = append(skipped, skippedRecord{Index: i, Reason: err.Error()})
			continue
		}

		info, err := s.queueClient.EnqueueGenerate(r.Context(), queue.GeneratePayload{
			EventID:    eventID,
			Bucket:     ref.Bucket,
			Key:        ref.Key,
			ReceivedAt: receivedAt,
		})
		if err != nil {
			s.logger.Error().Err(err).Str("event_id", eventID).Str("bucket", ref.Bucket).Str("key", ref.Key).Msg("enqueue failed")
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":    "failed to enqueue record " + strconv.Itoa(i),
				"enqueued": enqueued,
			})
			return
		}
		s.metrics.queueEnqueued.WithLabelValues(info.Queue).Inc()
		enqueued = append(enqueued, enqueuedRecord{Bucket: ref.Bucket, Key: ref.Key, TaskID: info.ID})
	}

	s.logger.Info().
		Str("event_id", eventID).
		Int("enqueued", len(enqueued)).
		Int("skipped", len(skipped)).
		Msg("bucket notification accepted")

	writeJSON(w, http.StatusAccepted, map[string]any{
		"event_id": eventID,
		"enqueued": enqueued,
		"skipped":  skipped,
	})
}

func (s *Server) handleGetInvocation(w http.ResponseWriter, r *http.Request) {
	rec, ok, err := s.outcomes.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Error().Err(err).Msg("load invocation")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load invocation"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "invocation not found"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListInvocations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ref := domain.SourceObjectRef{Bucket: q.Get("bucket"), Key: q.Get("key")}
	if err := ref.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	limit := 20
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	recs, err := s.outcomes.ListBySource(r.Context(), ref.Bucket, ref.Key, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list invocations")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list invocations"})
		return
	}
	if recs == nil {
		recs = []domain.InvocationRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"invocations": recs})
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(s.authToken)) == 1
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
