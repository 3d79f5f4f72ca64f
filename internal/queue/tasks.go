package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dunamismax/derivatives/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeGenerateDerivatives = "derivatives:generate"

// GeneratePayload carries one source object. A bucket notification with
// several records becomes several independent tasks.
type GeneratePayload struct {
	EventID    string    `json:"event_id"`
	Bucket     string    `json:"bucket"`
	Key        string    `json:"key"`
	ReceivedAt time.Time `json:"received_at"`
}

func (p GeneratePayload) Ref() domain.SourceObjectRef {
	return domain.SourceObjectRef{Bucket: p.Bucket, Key: p.Key}
}

func NewGenerateTask(payload GeneratePayload) (*asynq.Task, error) {
	if err := payload.Ref().Validate(); err != nil {
		return nil, fmt.Errorf("invalid generate payload: %w", err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal generate payload: %w", err)
	}
	return asynq.NewTask(TypeGenerateDerivatives, body), nil
}

func ParseGeneratePayload(task *asynq.Task) (GeneratePayload, error) {
	var payload GeneratePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return GeneratePayload{}, fmt.Errorf("unmarshal generate payload: %w", err)
	}
	if err := payload.Ref().Validate(); err != nil {
		return GeneratePayload{}, fmt.Errorf("invalid generate payload: %w", err)
	}
	return payload, nil
}
