// Package auth manages user accounts for the question-bank platform:
// registration, profile updates, the current-user endpoint, and the
// admin-only inquiry-number lookup. Passkey ceremonies live in the passkey
// plugin; this package owns the users table they both read.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package auth

import (
	"strings"
	"time"
)

// User roles. Every account starts as a regular user; admins are promoted
// out of band.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// StatusActive is the status assigned to newly registered accounts.
const StatusActive = "active"

// User represents a registered account. JSON field names follow the wire
// format the platform's front ends already speak: the external username is
// serialized as "userId", the internal row id as "id".
type User struct {
	ID            string     `json:"id"`
	Username      string     `json:"userId"`
	DisplayName   string     `json:"displayName"`
	Email         *string    `json:"email,omitempty"`
	InquiryNumber string     `json:"inquiryNumber"`
	Role          string     `json:"role"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"registeredAt"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
}

// --- Request DTOs (bound from HTTP requests) ---

// RegisterRequest holds the data submitted to POST /api/auth/register.
type RegisterRequest struct {
	Username      string `json:"userId"`
	DisplayName   string `json:"displayName"`
	Email         string `json:"email"`
	InquiryNumber string `json:"inquiryNumber"`
}

// Validate returns an error message for missing required fields, or "".
func (r *RegisterRequest) Validate() string {
	if strings.TrimSpace(r.Username) == "" ||
		strings.TrimSpace(r.DisplayName) == "" ||
		strings.TrimSpace(r.InquiryNumber) == "" {
		return "missing required fields: userId, displayName, inquiryNumber"
	}
	return ""
}

// UpdateProfileRequest holds the data submitted to PUT /api/auth/profile.
// Only non-nil fields are applied.
type UpdateProfileRequest struct {
	DisplayName *string `json:"displayName"`
	Email       *string `json:"email"`
}

// --- Service Input DTOs (passed from handler to service) ---

// RegisterInput is the validated input for creating a new account.
type RegisterInput struct {
	Username      string
	DisplayName   string
	Email         string
	InquiryNumber string
}
