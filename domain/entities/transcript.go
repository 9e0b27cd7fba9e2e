package entities

import (
	"errors"
	"time"

	"github.com/giziai/digital-human/domain"
)

// Exchange records one request to the backend and what came back
type Exchange struct {
	ID          string             `json:"id" bson:"_id"`
	SessionID   string             `json:"session_id" bson:"session_id"`
	Kind        domain.RequestType `json:"kind" bson:"kind"`
	Input       string             `json:"input,omitempty" bson:"input,omitempty"`
	AudioBytes  int                `json:"audio_bytes,omitempty" bson:"audio_bytes,omitempty"`
	Replies     []string           `json:"replies" bson:"replies"`
	Failed      bool               `json:"failed" bson:"failed"`
	StartedAt   time.Time          `json:"started_at" bson:"started_at"`
	CompletedAt time.Time          `json:"completed_at" bson:"completed_at"`
}

// Latency is how long the backend took to answer
func (e *Exchange) Latency() time.Duration {
	return e.CompletedAt.Sub(e.StartedAt)
}

// Validate validates the exchange data
func (e *Exchange) Validate() error {
	if e.SessionID == "" {
		return errors.New("session_id is required")
	}
	if e.Kind != domain.RequestTypeText && e.Kind != domain.RequestTypeAudio {
		return errors.New("invalid exchange kind")
	}
	if e.CompletedAt.Before(e.StartedAt) {
		return errors.New("exchange completes before it starts")
	}
	return nil
}
