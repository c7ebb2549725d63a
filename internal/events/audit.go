// Package events defines shared cross-service event payloads.
package events

import (
	"encoding/json"
	"time"
)

// AuditRecorded is the message emitted whenever the engine appends an audit
// entry: evidence views and exports, review writes and locks, cycle changes,
// and role changes.
type AuditRecorded struct {
	EntryID     string          `json:"entry_id"`
	WorkspaceID string          `json:"workspace_id"`
	ActorUserID string          `json:"actor_user_id"`
	Action      string          `json:"action"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}
