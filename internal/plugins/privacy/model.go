// Package privacy records members' personal-data requests (export or
// erase). Requests are queued for an operator; submitting one from the
// profile page only creates the pending record and confirms receipt.
package privacy

import "time"

// Request types.
const (
	TypeExport = "export"
	TypeErase  = "erase"
)

// Request statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
)

// Request is one personal-data request. Token is the opaque reference
// included in the confirmation email.
type Request struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Email     string     `json:"email"`
	Type      string     `json:"type"`
	Status    string     `json:"status"`
	Token     string     `json:"token"`
	CreatedAt time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
