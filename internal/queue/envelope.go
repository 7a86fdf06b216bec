package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuongbtq/cashback-jobs/internal/worker/domain"
)

// Envelope is the serialized unit of queued work
type Envelope struct {
	ID         string                 `json:"id"`
	Type       domain.Kind            `json:"type"`
	Target     string                 `json:"target"`
	Data       map[string]interface{} `json:"data"`
	EnqueuedAt time.Time              `json:"enqueued_at"`
	Attempts   int                    `json:"attempts"`

	// set only on dead-letter entries
	FailedAt *time.Time `json:"failed_at,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// Field returns a data value as a string, or def when absent
func (e *Envelope) Field(key, def string) string {
	v, ok := e.Data[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func encode(env *Envelope) (string, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to encode envelope: %w", err)
	}
	return string(b), nil
}

func decode(raw string) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if env.Data == nil {
		env.Data = map[string]interface{}{}
	}
	return &env, nil
}
