package engine

import (
	"encoding/json"
	"time"
)

// Snapshot is the serializable envelope the host receives after every
// lifecycle call. Data is module-private: the host persists it verbatim and
// hands it back to the owning module's decode hook on resume.
type Snapshot struct {
	Turn  int             `json:"turn"`
	Phase string          `json:"phase"`
	Data  json.RawMessage `json:"data"`
}

// Action is the immutable input forwarded by the host. Payload shape is
// module-specific and validated by the module itself.
type Action struct {
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Event describes something that happened while an action resolved. Events
// are returned to the host, never retained by the engine.
type Event struct {
	Type      string         `json:"type"`
	PlayerID  string         `json:"playerId,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Result reports the outcome of a single action. Exactly one of the two
// outcomes holds: on success State and Events are populated and Error is
// empty; on failure Error/Code are populated and the match state is
// unchanged.
type Result struct {
	Success bool      `json:"success"`
	State   *Snapshot `json:"newState,omitempty"`
	Events  []Event   `json:"events,omitempty"`
	Error   string    `json:"error,omitempty"`
	Code    string    `json:"code,omitempty"`
}

// Participant identifies one registered actor. Synthetic participants are
// injected at initialize when fewer humans than the module minimum join and
// are driven by module autoplay.
type Participant struct {
	ID        string `json:"id"`
	Synthetic bool   `json:"synthetic,omitempty"`
}

// NewEvent builds an event stamped with the provided wall-clock time.
func NewEvent(eventType, playerID string, data map[string]any, now time.Time) Event {
	return Event{Type: eventType, PlayerID: playerID, Data: data, Timestamp: now}
}
