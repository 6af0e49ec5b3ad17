package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is the current payload envelope schema version. Consumers
// key deserialization off this field, so bump it on breaking changes only.
const EnvelopeVersion = 1

// Actor kinds recorded in event envelopes.
const (
	ActorKindCustomer = "customer"
	ActorKindStaff    = "staff"
	ActorKindSystem   = "system"
)

// ActorRef records who triggered the event, when that is known.
type ActorRef struct {
	Kind       string     `json:"kind"`
	CustomerID *uuid.UUID `json:"customerId,omitempty"`
	StoreID    *uuid.UUID `json:"storeId,omitempty"`
}

// PayloadEnvelope is the wire shape written into outbox_events.payload.
// Consumers depend on these field names; treat them as frozen.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
