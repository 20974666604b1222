package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DeviceRef identifies the terminal whose upload produced the event.
type DeviceRef struct {
	DeviceID string     `json:"deviceId"`
	BranchID *uuid.UUID `json:"branchId,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Device     *DeviceRef      `json:"device,omitempty"`
	Data       json.RawMessage `json:"data"`
}
