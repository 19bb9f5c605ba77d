// Package events defines the account-event payloads published to the
// message broker after successful account mutations.
package events

import "time"

// Channel is the broker channel account events are published to.
const Channel = "account-events"

// Event types.
const (
	TypeUserCreated     = "user.created"
	TypePasswordChanged = "password.changed"
)

// AccountEvent is the JSON payload for a single account mutation.
type AccountEvent struct {
	Type   string    `json:"type"`
	UserID int       `json:"user_id"`
	Email  string    `json:"email,omitempty"`
	At     time.Time `json:"at"`
}
