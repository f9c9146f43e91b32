package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the auth service.
const (
	TypeUserRegistered         = "auth.user.registered"
	TypePasswordResetRequested = "auth.password_reset.requested"
	TypePasswordChanged        = "auth.password.changed"
	TypeReplayDetected         = "auth.refresh.replay_detected"
	TypeUserBanned             = "auth.user.banned"
)

const source = "tippster-auth"

// Event is the envelope written to the broker. Payload values must be JSON serialisable.
type Event struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	AggregateID string         `json:"aggregate_id"`
	Source      string         `json:"source"`
	OccurredAt  time.Time      `json:"occurred_at"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// New builds an event for the supplied aggregate (normally a user id).
func New(eventType, aggregateID string, payload map[string]any) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		AggregateID: aggregateID,
		Source:      source,
		OccurredAt:  time.Now().UTC(),
		Payload:     payload,
	}
}

// Marshal encodes the event envelope.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers domain events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher discards events. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

func (NopPublisher) Close() error { return nil }

// OrNop returns p, or a NopPublisher when p is nil.
func OrNop(p Publisher) Publisher {
	if p == nil {
		return NopPublisher{}
	}
	return p
}
