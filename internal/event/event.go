package event

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeServiceRequestCreated       Type = "service_request.created"
	TypeServiceRequestUpdated       Type = "service_request.updated"
	TypeServiceRequestStatusChanged Type = "service_request.status_changed"
	TypeServiceRequestDeleted       Type = "service_request.deleted"
	TypeApiqueCreated               Type = "apique.created"
	TypeApiqueUpdated               Type = "apique.updated"
	TypeApiqueDeleted               Type = "apique.deleted"
	TypeProfileCreated              Type = "profile.created"
	TypeProfileUpdated              Type = "profile.updated"
	TypeProfileDeleted              Type = "profile.deleted"
	TypeProjectCreated              Type = "project.created"
	TypeProjectUpdated              Type = "project.updated"
	TypeProjectDeleted              Type = "project.deleted"
)

type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	Payload   any    `json:"payload"`
	Timestamp string `json:"timestamp"`
	ActorID   int64  `json:"actorId,omitempty"` // Who triggered the event
}

func New(t Type, payload any, actorID int64) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		ActorID:   actorID,
	}
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}
