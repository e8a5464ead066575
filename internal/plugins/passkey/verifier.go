package passkey

import (
	"context"
)

// RegistrationResult is what a verifier reports for a registration
// ceremony: whether the attestation checked out, and the credential data
// to persist when it did.
type RegistrationResult struct {
	Verified       bool
	CredentialID   string
	PublicKey      string
	InitialCounter uint32
}

// AuthenticationResult is what a verifier reports for an authentication
// ceremony. NewCounter is the authenticator-reported signature counter;
// the flow persists it and uses it for clone detection.
type AuthenticationResult struct {
	Verified   bool
	NewCounter uint32
}

// Verifier checks a client's asserted credential against the issued
// challenge and the expected ceremony scope. It is the single seam where
// real attestation/assertion cryptography plugs in: the flows never look
// inside the assertion themselves.
type Verifier interface {
	VerifyRegistration(ctx context.Context, credential *CredentialAssertion, expectedChallenge, expectedOrigin, expectedRPID string) (*RegistrationResult, error)
	VerifyAuthentication(ctx context.Context, credential *CredentialAssertion, expectedChallenge, expectedOrigin, expectedRPID string, stored *Credential) (*AuthenticationResult, error)
}

// AcceptAllVerifier accepts every well-formed assertion without checking
// signatures, attestation statements, or client data.
//
// SECURITY: this verifier provides NO cryptographic guarantees and exists
// for development and for deployments that terminate real verification
// elsewhere. A production build must inject a Verifier that actually
// validates the authenticator response.
type AcceptAllVerifier struct{}

// NewAcceptAllVerifier creates the pass-through verifier.
func NewAcceptAllVerifier() *AcceptAllVerifier {
	return &AcceptAllVerifier{}
}

// VerifyRegistration accepts the assertion as-is. The credential id is
// taken from the assertion and the attestation object blob is stored as
// the opaque public key material.
func (v *AcceptAllVerifier) VerifyRegistration(ctx context.Context, credential *CredentialAssertion, expectedChallenge, expectedOrigin, expectedRPID string) (*RegistrationResult, error) {
	return &RegistrationResult{
		Verified:       true,
		CredentialID:   credential.ID,
		PublicKey:      credential.Response.AttestationObject,
		InitialCounter: 0,
	}, nil
}

// VerifyAuthentication accepts the assertion as-is and reports a counter
// one past the stored value, mimicking an authenticator that increments
// per signature.
func (v *AcceptAllVerifier) VerifyAuthentication(ctx context.Context, credential *CredentialAssertion, expectedChallenge, expectedOrigin, expectedRPID string, stored *Credential) (*AuthenticationResult, error) {
	return &AuthenticationResult{
		Verified:   true,
		NewCounter: stored.Counter + 1,
	}, nil
}
