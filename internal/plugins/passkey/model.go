// Package passkey implements the WebAuthn-style passkey ceremonies:
// challenge issuance, credential registration, and authentication. The
// cryptographic verification step is isolated behind the Verifier interface
// so a production deployment can swap in real attestation/assertion
// checking without touching the flow logic.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package passkey

import (
	"time"
)

// ChallengeKind tags a challenge with the ceremony it belongs to. A
// registration challenge can never complete an authentication, and vice
// versa.
type ChallengeKind string

const (
	KindRegistration   ChallengeKind = "registration"
	KindAuthentication ChallengeKind = "authentication"
)

// Credential is a registered authenticator public key bound to exactly one
// user. The credential id is unique across ALL users: an id resolving to
// two accounts would let one user authenticate as another.
type Credential struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	CredentialID string     `json:"credentialId"`
	PublicKey    string     `json:"-"` // Opaque key material. Never exposed.
	Counter      uint32     `json:"counter"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastUsedAt   *time.Time `json:"lastUsedAt,omitempty"`
}

// Challenge is a short-lived, single-use anti-replay token. The random
// value doubles as the lookup key; consumption is an atomic test-and-set
// on consumed_at so a challenge can complete a ceremony at most once.
type Challenge struct {
	ID         string
	Value      string
	UserID     string
	Kind       ChallengeKind
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// Expired reports whether the challenge is past its expiry at the given time.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// --- Client assertion payloads ---

// CredentialAssertion is the credential the client asserts when completing
// a ceremony. The response blobs are opaque to the flows; only the Verifier
// interprets them.
type CredentialAssertion struct {
	ID       string            `json:"id"`
	RawID    string            `json:"rawId,omitempty"`
	Type     string            `json:"type"`
	Response AssertionResponse `json:"response"`
}

// AssertionResponse carries the base64url-encoded authenticator outputs.
// Registration responses populate AttestationObject; authentication
// responses populate AuthenticatorData and Signature.
type AssertionResponse struct {
	ClientDataJSON    string `json:"clientDataJSON,omitempty"`
	AttestationObject string `json:"attestationObject,omitempty"`
	AuthenticatorData string `json:"authenticatorData,omitempty"`
	Signature         string `json:"signature,omitempty"`
	UserHandle        string `json:"userHandle,omitempty"`
}

// --- Ceremony options payloads (returned by the begin endpoints) ---

// RelyingParty identifies the service the ceremony is scoped to. The id is
// derived from the request's Origin header, not hardcoded, so one backend
// can serve several front-end origins.
type RelyingParty struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// UserEntity is the user block of registration options.
type UserEntity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// CredParam names an accepted public-key algorithm (COSE identifier).
type CredParam struct {
	Alg  int    `json:"alg"`
	Type string `json:"type"`
}

// AuthenticatorSelection is the client policy block of registration options.
type AuthenticatorSelection struct {
	UserVerification string `json:"userVerification"`
	ResidentKey      string `json:"residentKey"`
}

// AllowedCredential names a credential the client's authenticator may use
// to answer an authentication challenge.
type AllowedCredential struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// RegistrationOptions is the payload returned by register/begin.
type RegistrationOptions struct {
	Challenge              string                 `json:"challenge"`
	RP                     RelyingParty           `json:"rp"`
	User                   UserEntity             `json:"user"`
	PubKeyCredParams       []CredParam            `json:"pubKeyCredParams"`
	AuthenticatorSelection AuthenticatorSelection `json:"authenticatorSelection"`
	Timeout                int64                  `json:"timeout"`
	Attestation            string                 `json:"attestation"`
}

// AuthenticationOptions is the payload returned by login/begin.
type AuthenticationOptions struct {
	Challenge        string              `json:"challenge"`
	RPID             string              `json:"rpId"`
	AllowCredentials []AllowedCredential `json:"allowCredentials"`
	UserVerification string              `json:"userVerification"`
	Timeout          int64               `json:"timeout"`
}

// --- Request DTOs ---

// BeginRegistrationRequest starts a registration ceremony for an account.
type BeginRegistrationRequest struct {
	UserID string `json:"userId"`
}

// CompleteRegistrationRequest finishes a registration ceremony.
type CompleteRegistrationRequest struct {
	UserID     string              `json:"userId"`
	Credential CredentialAssertion `json:"credential"`
}

// BeginLoginRequest starts an authentication ceremony for a username.
type BeginLoginRequest struct {
	Username string `json:"username"`
}

// CompleteLoginRequest finishes an authentication ceremony.
type CompleteLoginRequest struct {
	Username   string              `json:"username"`
	Credential CredentialAssertion `json:"credential"`
}
