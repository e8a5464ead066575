// Package session implements bearer-session issuance, validation, and
// revocation on Redis. A session is minted after a successful passkey
// authentication and is the single gate every protected endpoint checks
// before acting.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package session

import (
	"time"
)

// Session is an authenticated user session stored in Redis. The token is
// the key (prefixed), and this struct is the JSON-encoded value. It carries
// a snapshot of the user's identity plus client metadata captured at
// issuance for auditing. The metadata is never used for validation.
type Session struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	IPAddress   string    `json:"ip_address,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
}

// IsAdmin returns true if the session belongs to an admin user.
func (s *Session) IsAdmin() bool {
	return s.Role == "admin"
}

// MintInput is the validated input for creating a new session.
type MintInput struct {
	UserID      string
	Username    string
	DisplayName string
	Role        string

	// Client metadata captured for audit only.
	IPAddress string
	UserAgent string
}
