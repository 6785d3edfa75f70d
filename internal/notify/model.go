// Package notify records and serves the internal staff notifications raised
// by quote lifecycle events.
package notify

import "time"

// Type classifies a notification.
type Type string

const (
	// TypeDevisAccepted is raised by the acceptance transition.
	TypeDevisAccepted Type = "devis_accepted"
	// TypeDevisSent is raised when a quote email is dispatched.
	TypeDevisSent Type = "devis_sent"
)

// Notification is one staff-facing event record.
type Notification struct {
	ID       string         `json:"id"`
	Type     Type           `json:"type"`
	DevisID  string         `json:"devis_id,omitempty"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`

	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
