// Package notify delivers registration lifecycle events to downstream systems.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"onboarding/internal/registration/models"
	id "onboarding/pkg/domain"
)

// EventType doubles as the broker routing key.
type EventType string

const (
	EventCompleted EventType = "registration.completed"
	EventAbandoned EventType = "registration.abandoned"
	EventExpired   EventType = "registration.expired"
)

// Event is the message body published for a finished session.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	SessionID  string         `json:"session_id"`
	Step       string         `json:"step"`
	Device     string         `json:"device,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Record     *models.Record `json:"record,omitempty"`
}

// NewEvent stamps a fresh event ID.
func NewEvent(eventType EventType, sessionID id.SessionID, step models.Step, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		SessionID:  sessionID.String(),
		Step:       step.String(),
		OccurredAt: at.UTC(),
	}
}

// Publisher sends events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
