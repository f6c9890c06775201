package patient

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Routing keys for record lifecycle events.
const (
	EventRegistered    = "patient.registered"
	EventUpdated       = "patient.updated"
	EventStatusChanged = "patient.status_changed"
)

// EventPublisher delivers lifecycle events after the write has committed.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event interface{}) error
}

// Event carries identifiers and state only, never PHI.
type Event struct {
	ID         uuid.UUID `json:"eventId"`
	Type       string    `json:"type"`
	PatientID  PatientID `json:"patientId"`
	Status     Status    `json:"status"`
	Version    int       `json:"version"`
	ActorID    string    `json:"actorId"`
	OccurredAt time.Time `json:"occurredAt"`
}

func newEvent(typ string, p *Patient, actorID string, at time.Time) Event {
	return Event{
		ID:         uuid.New(),
		Type:       typ,
		PatientID:  p.ID,
		Status:     p.Status,
		Version:    p.Version,
		ActorID:    actorID,
		OccurredAt: at,
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, interface{}) error { return nil }
