package passkey

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/questa-app/questa/internal/apperror"
	"github.com/questa-app/questa/internal/plugins/auth"
	"github.com/questa-app/questa/internal/plugins/session"
)

// --- Mock user repository ---

// mockUsers implements auth.UserRepository. Only the lookup methods matter
// to the ceremony flows.
type mockUsers struct {
	findByIDFn       func(ctx context.Context, id string) (*auth.User, error)
	findByUsernameFn func(ctx context.Context, username string) (*auth.User, error)
}

func (m *mockUsers) Create(ctx context.Context, user *auth.User) error { return nil }

func (m *mockUsers) FindByID(ctx context.Context, id string) (*auth.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUsers) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	if m.findByUsernameFn != nil {
		return m.findByUsernameFn(ctx, username)
	}
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUsers) FindByInquiryNumber(ctx context.Context, inquiryNumber string) (*auth.User, error) {
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUsers) Exists(ctx context.Context, username, inquiryNumber string) (bool, error) {
	return false, nil
}

func (m *mockUsers) UpdateProfile(ctx context.Context, id string, displayName, email *string) error {
	return nil
}

// --- Mock passkey repository ---

// mockRepo implements Repository with function fields plus a tiny bit of
// shared state for single-use tests.
type mockRepo struct {
	createChallengeFn        func(ctx context.Context, ch *Challenge) error
	latestPendingFn          func(ctx context.Context, userID string, kind ChallengeKind) (*Challenge, error)
	consumeFn                func(ctx context.Context, value string) (bool, error)
	findCredentialFn         func(ctx context.Context, credentialID string) (*Credential, error)
	credentialIDsFn          func(ctx context.Context, userID string) ([]string, error)
	registerCredentialFn     func(ctx context.Context, cred *Credential, challengeValue string) error
	completeAuthenticationFn func(ctx context.Context, credRowID string, newCounter uint32, challengeValue, userID string) (bool, error)
}

func (m *mockRepo) CreateChallenge(ctx context.Context, ch *Challenge) error {
	if m.createChallengeFn != nil {
		return m.createChallengeFn(ctx, ch)
	}
	return nil
}

func (m *mockRepo) LatestPendingChallenge(ctx context.Context, userID string, kind ChallengeKind) (*Challenge, error) {
	if m.latestPendingFn != nil {
		return m.latestPendingFn(ctx, userID, kind)
	}
	return nil, apperror.NewNotFound("no pending challenge")
}

func (m *mockRepo) ConsumeChallenge(ctx context.Context, value string) (bool, error) {
	if m.consumeFn != nil {
		return m.consumeFn(ctx, value)
	}
	return true, nil
}

func (m *mockRepo) FindCredentialByID(ctx context.Context, credentialID string) (*Credential, error) {
	if m.findCredentialFn != nil {
		return m.findCredentialFn(ctx, credentialID)
	}
	return nil, apperror.NewNotFound("credential not found")
}

func (m *mockRepo) CredentialIDsByUser(ctx context.Context, userID string) ([]string, error) {
	if m.credentialIDsFn != nil {
		return m.credentialIDsFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockRepo) RegisterCredential(ctx context.Context, cred *Credential, challengeValue string) error {
	if m.registerCredentialFn != nil {
		return m.registerCredentialFn(ctx, cred, challengeValue)
	}
	return nil
}

func (m *mockRepo) CompleteAuthentication(ctx context.Context, credRowID string, newCounter uint32, challengeValue, userID string) (bool, error) {
	if m.completeAuthenticationFn != nil {
		return m.completeAuthenticationFn(ctx, credRowID, newCounter, challengeValue, userID)
	}
	return true, nil
}

// --- Mock verifier ---

type mockVerifier struct {
	registrationFn   func(ctx context.Context, credential *CredentialAssertion, expectedChallenge, expectedOrigin, expectedRPID string) (*RegistrationResult, error)
	authenticationFn func(ctx context.Context, credential *CredentialAssertion, expectedChallenge, expectedOrigin, expectedRPID string, stored *Credential) (*AuthenticationResult, error)
}

func (m *mockVerifier) VerifyRegistration(ctx context.Context, credential *CredentialAssertion, expectedChallenge, expectedOrigin, expectedRPID string) (*RegistrationResult, error) {
	if m.registrationFn != nil {
		return m.registrationFn(ctx, credential, expectedChallenge, expectedOrigin, expectedRPID)
	}
	return &RegistrationResult{Verified: true, CredentialID: credential.ID, PublicKey: "key"}, nil
}

func (m *mockVerifier) VerifyAuthentication(ctx context.Context, credential *CredentialAssertion, expectedChallenge, expectedOrigin, expectedRPID string, stored *Credential) (*AuthenticationResult, error) {
	if m.authenticationFn != nil {
		return m.authenticationFn(ctx, credential, expectedChallenge, expectedOrigin, expectedRPID, stored)
	}
	return &AuthenticationResult{Verified: true, NewCounter: stored.Counter + 1}, nil
}

// --- Mock session service ---

type mockSessions struct {
	mintFn    func(ctx context.Context, input session.MintInput) (string, *session.Session, error)
	mintCount int
}

func (m *mockSessions) Mint(ctx context.Context, input session.MintInput) (string, *session.Session, error) {
	m.mintCount++
	if m.mintFn != nil {
		return m.mintFn(ctx, input)
	}
	now := time.Now().UTC()
	return "tok-1", &session.Session{
		UserID:    input.UserID,
		Username:  input.Username,
		IssuedAt:  now,
		ExpiresAt: now.Add(24 * time.Hour),
	}, nil
}

func (m *mockSessions) Validate(ctx context.Context, token string) (*session.Session, error) {
	return nil, apperror.NewUnauthorized("session expired or invalid")
}

func (m *mockSessions) Revoke(ctx context.Context, token string) error { return nil }

// --- Test helpers ---

var testCeremony = CeremonyContext{Origin: "https://quiz.example.com", RPID: "quiz.example.com"}

func testUser() *auth.User {
	return &auth.User{
		ID:          "user-1",
		Username:    "student42",
		DisplayName: "Student",
		Role:        auth.RoleUser,
		Status:      auth.StatusActive,
		CreatedAt:   time.Now().UTC(),
	}
}

func usersWith(u *auth.User) *mockUsers {
	return &mockUsers{
		findByIDFn: func(ctx context.Context, id string) (*auth.User, error) {
			if id == u.ID {
				return u, nil
			}
			return nil, apperror.NewNotFound("user not found")
		},
		findByUsernameFn: func(ctx context.Context, username string) (*auth.User, error) {
			if username == u.Username {
				return u, nil
			}
			return nil, apperror.NewNotFound("user not found")
		},
	}
}

func pendingChallenge(kind ChallengeKind) *Challenge {
	now := time.Now().UTC()
	return &Challenge{
		ID:        "ch-1",
		Value:     "challenge-value",
		UserID:    "user-1",
		Kind:      kind,
		CreatedAt: now,
		ExpiresAt: now.Add(5 * time.Minute),
	}
}

func newTestService(users auth.UserRepository, repo Repository, verifier Verifier, sessions session.Service) Service {
	return NewService(users, repo, NewChallengeIssuer(repo, 5*time.Minute), verifier, sessions, nil, "Questa")
}

// assertAppError checks that err is an *apperror.AppError with the expected code.
func assertAppError(t *testing.T, err error, expectedCode int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status %d, got %d (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

// --- BeginRegistration Tests ---

func TestBeginRegistration_Success(t *testing.T) {
	var issued *Challenge
	repo := &mockRepo{
		createChallengeFn: func(ctx context.Context, ch *Challenge) error {
			issued = ch
			return nil
		},
	}

	svc := newTestService(usersWith(testUser()), repo, &mockVerifier{}, &mockSessions{})
	opts, err := svc.BeginRegistration(context.Background(), "user-1", testCeremony)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if issued == nil {
		t.Fatal("expected a challenge to be persisted")
	}
	if issued.Kind != KindRegistration {
		t.Errorf("expected registration challenge, got %s", issued.Kind)
	}
	if issued.UserID != "user-1" {
		t.Errorf("expected challenge bound to user-1, got %s", issued.UserID)
	}
	if len(issued.Value) < 43 {
		t.Errorf("challenge value too short for 256 bits: %q", issued.Value)
	}
	if strings.ContainsAny(issued.Value, "+/=") {
		t.Errorf("challenge value is not base64url: %q", issued.Value)
	}

	if opts.Challenge != issued.Value {
		t.Error("options must echo the persisted challenge value")
	}
	if opts.RP.ID != "quiz.example.com" || opts.RP.Name != "Questa" {
		t.Errorf("unexpected rp block: %+v", opts.RP)
	}
	if opts.User.ID != "user-1" || opts.User.Name != "student42" {
		t.Errorf("unexpected user block: %+v", opts.User)
	}
	if len(opts.PubKeyCredParams) != 2 || opts.PubKeyCredParams[0].Alg != -7 || opts.PubKeyCredParams[1].Alg != -257 {
		t.Errorf("unexpected algorithms: %+v", opts.PubKeyCredParams)
	}
	if opts.Attestation != "none" {
		t.Errorf("expected attestation none, got %s", opts.Attestation)
	}
	if opts.Timeout != (5 * time.Minute).Milliseconds() {
		t.Errorf("expected timeout %d, got %d", (5 * time.Minute).Milliseconds(), opts.Timeout)
	}
}

func TestBeginRegistration_UnknownUser(t *testing.T) {
	svc := newTestService(&mockUsers{}, &mockRepo{}, &mockVerifier{}, &mockSessions{})
	_, err := svc.BeginRegistration(context.Background(), "ghost", testCeremony)
	assertAppError(t, err, 404)
}

// --- CompleteRegistration Tests ---

func TestCompleteRegistration_Success(t *testing.T) {
	var stored *Credential
	repo := &mockRepo{
		latestPendingFn: func(ctx context.Context, userID string, kind ChallengeKind) (*Challenge, error) {
			if kind != KindRegistration {
				t.Errorf("expected registration kind lookup, got %s", kind)
			}
			return pendingChallenge(KindRegistration), nil
		},
		registerCredentialFn: func(ctx context.Context, cred *Credential, challengeValue string) error {
			stored = cred
			if challengeValue != "challenge-value" {
				t.Errorf("expected the pending challenge to be consumed, got %s", challengeValue)
			}
			return nil
		},
	}

	svc := newTestService(usersWith(testUser()), repo, &mockVerifier{}, &mockSessions{})
	err := svc.CompleteRegistration(context.Background(), "user-1", CredentialAssertion{
		ID:   "cred-abc",
		Type: "public-key",
	}, testCeremony)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stored == nil {
		t.Fatal("expected credential to be persisted")
	}
	if stored.UserID != "user-1" || stored.CredentialID != "cred-abc" {
		t.Errorf("unexpected credential: %+v", stored)
	}
	if stored.ID == "" {
		t.Error("expected row id to be generated")
	}
}

func TestCompleteRegistration_NoPendingChallenge(t *testing.T) {
	svc := newTestService(usersWith(testUser()), &mockRepo{}, &mockVerifier{}, &mockSessions{})
	err := svc.CompleteRegistration(context.Background(), "user-1", CredentialAssertion{ID: "cred-abc"}, testCeremony)
	assertAppError(t, err, 400)
}

func TestCompleteRegistration_ExpiredChallenge(t *testing.T) {
	repo := &mockRepo{
		latestPendingFn: func(ctx context.Context, userID string, kind ChallengeKind) (*Challenge, error) {
			ch := pendingChallenge(KindRegistration)
			ch.ExpiresAt = time.Now().Add(-time.Minute)
			return ch, nil
		},
		registerCredentialFn: func(ctx context.Context, cred *Credential, challengeValue string) error {
			t.Error("expired challenge must not reach the commit")
			return nil
		},
	}

	svc := newTestService(usersWith(testUser()), repo, &mockVerifier{}, &mockSessions{})
	err := svc.CompleteRegistration(context.Background(), "user-1", CredentialAssertion{ID: "cred-abc"}, testCeremony)
	assertAppError(t, err, 400)
}

func TestCompleteRegistration_VerificationFailureLeavesChallengePending(t *testing.T) {
	commits := 0
	repo := &mockRepo{
		latestPendingFn: func(ctx context.Context, userID string, kind ChallengeKind) (*Challenge, error) {
			return pendingChallenge(KindRegistration), nil
		},
		registerCredentialFn: func(ctx context.Context, cred *Credential, challengeValue string) error {
			commits++
			return nil
		},
	}
	verifier := &mockVerifier{
		registrationFn: func(ctx context.Context, credential *CredentialAssertion, expectedChallenge, expectedOrigin, expectedRPID string) (*RegistrationResult, error) {
			return &RegistrationResult{Verified: false}, nil
		},
	}

	svc := newTestService(usersWith(testUser()), repo, verifier, &mockSessions{})
	err := svc.CompleteRegistration(context.Background(), "user-1", CredentialAssertion{ID: "cred-abc"}, testCeremony)
	assertAppError(t, err, 400)
	if commits != 0 {
		t.Error("failed verification must not consume the challenge or store the credential")
	}
}

func TestCompleteRegistration_DuplicateCredential(t *testing.T) {
	repo := &mockRepo{
		latestPendingFn: func(ctx context.Context, userID string, kind ChallengeKind) (*Challenge, error) {
			return pendingChallenge(KindRegistration), nil
		},
		registerCredentialFn: func(ctx context.Context, cred *Credential, challengeValue string) error {
			return apperror.NewConflict("credential already registered")
		},
	}

	svc := newTestService(usersWith(testUser()), repo, &mockVerifier{}, &mockSessions{})
	err := svc.CompleteRegistration(context.Background(), "user-1", CredentialAssertion{ID: "cred-abc"}, testCeremony)
	assertAppError(t, err, 409)
}

func TestCompleteRegistration_ChallengeIsSingleUse(t *testing.T) {
	// The repository's transactional commit reports the challenge already
	// claimed on the second completion.
	consumed := false
	repo := &mockRepo{
		latestPendingFn: func(ctx context.Context, userID string, kind ChallengeKind) (*Challenge, error) {
			if consumed {
				return nil, apperror.NewNotFound("no pending challenge")
			}
			return pendingChallenge(KindRegistration), nil
		},
		registerCredentialFn: func(ctx context.Context, cred *Credential, challengeValue string) error {
			if consumed {
				return apperror.NewBadRequest("invalid or expired challenge")
			}
			consumed = true
			return nil
		},
	}

	svc := newTestService(usersWith(testUser()), repo, &mockVerifier{}, &mockSessions{})
	ctx := context.Background()

	if err := svc.CompleteRegistration(ctx, "user-1", CredentialAssertion{ID: "cred-abc"}, testCeremony); err != nil {
		t.Fatalf("first completion should succeed: %v", err)
	}

	err := svc.CompleteRegistration(ctx, "user-1", CredentialAssertion{ID: "cred-abc"}, testCeremony)
	assertAppError(t, err, 400)
}

// --- BeginLogin Tests ---

func TestBeginLogin_Success(t *testing.T) {
	var issued *Challenge
	repo := &mockRepo{
		credentialIDsFn: func(ctx context.Context, userID string) ([]string, error) {
			return []string{"cred-a", "cred-b"}, nil
		},
		createChallengeFn: func(ctx context.Context, ch *Challenge) error {
			issued = ch
			return nil
		},
	}

	svc := newTestService(usersWith(testUser()), repo, &mockVerifier{}, &mockSessions{})
	opts, err := svc.BeginLogin(context.Background(), "student42", testCeremony)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if issued == nil || issued.Kind != KindAuthentication {
		t.Fatalf("expected an authentication challenge, got %+v", issued)
	}
	if opts.Challenge != issued.Value {
		t.Error("options must echo the persisted challenge value")
	}
	if opts.RPID != "quiz.example.com" {
		t.Errorf("unexpected rpId: %s", opts.RPID)
	}
	if len(opts.AllowCredentials) != 2 || opts.AllowCredentials[0].ID != "cred-a" {
		t.Errorf("unexpected allowCredentials: %+v", opts.AllowCredentials)
	}
}

func TestBeginLogin_UnknownUser(t *testing.T) {
	created := 0
	repo := &mockRepo{
		createChallengeFn: func(ctx context.Context, ch *Challenge) error {
			created++
			return nil
		},
	}

	svc := newTestService(&mockUsers{}, repo, &mockVerifier{}, &mockSessions{})
	_, err := svc.BeginLogin(context.Background(), "ghost", testCeremony)
	assertAppError(t, err, 404)
	if created != 0 {
		t.Error("no challenge may be issued for an unknown user")
	}
}

func TestBeginLogin_UserWithoutCredentials(t *testing.T) {
	// Indistinguishable from an unknown user: same code, same message.
	svc := newTestService(usersWith(testUser()), &mockRepo{}, &mockVerifier{}, &mockSessions{})
	_, err := svc.BeginLogin(context.Background(), "student42", testCeremony)
	assertAppError(t, err, 404)

	var appErr *apperror.AppError
	errors.As(err, &appErr)
	if appErr.Message != "user not found" {
		t.Errorf("expected the unknown-user message, got %q", appErr.Message)
	}
}

// --- CompleteLogin Tests ---

func storedCredential(counter uint32) *Credential {
	return &Credential{
		ID:           "row-1",
		UserID:       "user-1",
		CredentialID: "cred-abc",
		PublicKey:    "key",
		Counter:      counter,
		CreatedAt:    time.Now().UTC().Add(-time.Hour),
	}
}

func loginInput() CompleteLoginInput {
	return CompleteLoginInput{
		Username:   "student42",
		Credential: CredentialAssertion{ID: "cred-abc", Type: "public-key"},
		Ceremony:   testCeremony,
		IPAddress:  "203.0.113.7",
		UserAgent:  "test-agent",
	}
}

func TestCompleteLogin_Success(t *testing.T) {
	var committedCounter uint32
	repo := &mockRepo{
		latestPendingFn: func(ctx context.Context, userID string, kind ChallengeKind) (*Challenge, error) {
			if kind != KindAuthentication {
				t.Errorf("expected authentication kind lookup, got %s", kind)
			}
			return pendingChallenge(KindAuthentication), nil
		},
		findCredentialFn: func(ctx context.Context, credentialID string) (*Credential, error) {
			return storedCredential(7), nil
		},
		completeAuthenticationFn: func(ctx context.Context, credRowID string, newCounter uint32, challengeValue, userID string) (bool, error) {
			committedCounter = newCounter
			if credRowID != "row-1" || userID != "user-1" {
				t.Errorf("unexpected commit args: %s %s", credRowID, userID)
			}
			return true, nil
		},
	}
	sessions := &mockSessions{
		mintFn: func(ctx context.Context, input session.MintInput) (string, *session.Session, error) {
			if input.UserID != "user-1" || input.IPAddress != "203.0.113.7" || input.UserAgent != "test-agent" {
				t.Errorf("unexpected mint input: %+v", input)
			}
			now := time.Now().UTC()
			return "tok-1", &session.Session{
				UserID:    input.UserID,
				IssuedAt:  now,
				ExpiresAt: now.Add(24 * time.Hour),
			}, nil
		},
	}

	svc := newTestService(usersWith(testUser()), repo, &mockVerifier{}, sessions)
	result, err := svc.CompleteLogin(context.Background(), loginInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Token != "tok-1" {
		t.Errorf("expected session token, got %q", result.Token)
	}
	if result.ExpiresIn != int64((24 * time.Hour).Seconds()) {
		t.Errorf("expected 86400 seconds, got %d", result.ExpiresIn)
	}
	if result.User.ID != "user-1" {
		t.Errorf("expected the authenticated user, got %+v", result.User)
	}
	if committedCounter != 8 {
		t.Errorf("expected counter committed as 8, got %d", committedCounter)
	}
}

func TestCompleteLogin_UnknownUser(t *testing.T) {
	svc := newTestService(&mockUsers{}, &mockRepo{}, &mockVerifier{}, &mockSessions{})
	_, err := svc.CompleteLogin(context.Background(), loginInput())
	assertAppError(t, err, 404)
}

func TestCompleteLogin_NoPendingChallenge(t *testing.T) {
	repo := &mockRepo{
		findCredentialFn: func(ctx context.Context, credentialID string) (*Credential, error) {
			return storedCredential(0), nil
		},
	}

	svc := newTestService(usersWith(testUser()), repo, &mockVerifier{}, &mockSessions{})
	_, err := svc.CompleteLogin(context.Background(), loginInput())
	assertAppError(t, err, 400)
}

func TestCompleteLogin_KindIsolation(t *testing.T) {
	// A pending registration challenge must not satisfy an authentication
	// completion: the lookup is scoped by kind and finds nothing.
	repo := &mockRepo{
		latestPendingFn: func(ctx context.Context, userID string, kind ChallengeKind) (*Challenge, error) {
			if kind == KindRegistration {
				return pendingChallenge(KindRegistration), nil
			}
			return nil, apperror.NewNotFound("no pending challenge")
		},
		findCredentialFn: func(ctx context.Context, credentialID string) (*Credential, error) {
			return storedCredential(0), nil
		},
	}

	svc := newTestService(usersWith(testUser()), repo, &mockVerifier{}, &mockSessions{})
	_, err := svc.CompleteLogin(context.Background(), loginInput())
	assertAppError(t, err, 400)
}

func TestCompleteLogin_CredentialOfAnotherUser(t *testing.T) {
	repo := &mockRepo{
		latestPendingFn: func(ctx context.Context, userID string, kind ChallengeKind) (*Challenge, error) {
			return pendingChallenge(KindAuthentication), nil
		},
		findCredentialFn: func(ctx context.Context, credentialID string) (*Credential, error) {
			cred := storedCredential(0)
			cred.UserID = "someone-else"
			return cred, nil
		},
	}

	svc := newTestService(usersWith(testUser()), repo, &mockVerifier{}, &mockSessions{})
	_, err := svc.CompleteLogin(context.Background(), loginInput())
	assertAppError(t, err, 404)
}

func TestCompleteLogin_CounterRegression(t *testing.T) {
	commits := 0
	repo := &mockRepo{
		latestPendingFn: func(ctx context.Context, userID string, kind ChallengeKind) (*Challenge, error) {
			return pendingChallenge(KindAuthentication), nil
		},
		findCredentialFn: func(ctx context.Context, credentialID string) (*Credential, error) {
			return storedCredential(10), nil
		},
		completeAuthenticationFn: func(ctx context.Context, credRowID string, newCounter uint32, challengeValue, userID string) (bool, error) {
			commits++
			return true, nil
		},
	}
	verifier := &mockVerifier{
		authenticationFn: func(ctx context.Context, credential *CredentialAssertion, expectedChallenge, expectedOrigin, expectedRPID string, stored *Credential) (*AuthenticationResult, error) {
			// Replayed or cloned authenticator: counter does not advance.
			return &AuthenticationResult{Verified: true, NewCounter: 10}, nil
		},
	}
	sessions := &mockSessions{}

	svc := newTestService(usersWith(testUser()), repo, verifier, sessions)
	_, err := svc.CompleteLogin(context.Background(), loginInput())
	assertAppError(t, err, 400)
	if commits != 0 {
		t.Error("counter regression must not commit the ceremony")
	}
	if sessions.mintCount != 0 {
		t.Error("counter regression must not mint a session")
	}
}

func TestCompleteLogin_ZeroCounterAuthenticatorAccepted(t *testing.T) {
	// Authenticators without a counter always report zero; that is not a
	// regression.
	repo := &mockRepo{
		latestPendingFn: func(ctx context.Context, userID string, kind ChallengeKind) (*Challenge, error) {
			return pendingChallenge(KindAuthentication), nil
		},
		findCredentialFn: func(ctx context.Context, credentialID string) (*Credential, error) {
			return storedCredential(0), nil
		},
	}
	verifier := &mockVerifier{
		authenticationFn: func(ctx context.Context, credential *CredentialAssertion, expectedChallenge, expectedOrigin, expectedRPID string, stored *Credential) (*AuthenticationResult, error) {
			return &AuthenticationResult{Verified: true, NewCounter: 0}, nil
		},
	}

	svc := newTestService(usersWith(testUser()), repo, verifier, &mockSessions{})
	if _, err := svc.CompleteLogin(context.Background(), loginInput()); err != nil {
		t.Fatalf("zero counters on both sides must be accepted: %v", err)
	}
}

func TestCompleteLogin_VerificationFailure(t *testing.T) {
	repo := &mockRepo{
		latestPendingFn: func(ctx context.Context, userID string, kind ChallengeKind) (*Challenge, error) {
			return pendingChallenge(KindAuthentication), nil
		},
		findCredentialFn: func(ctx context.Context, credentialID string) (*Credential, error) {
			return storedCredential(3), nil
		},
	}
	verifier := &mockVerifier{
		authenticationFn: func(ctx context.Context, credential *CredentialAssertion, expectedChallenge, expectedOrigin, expectedRPID string, stored *Credential) (*AuthenticationResult, error) {
			return &AuthenticationResult{Verified: false}, nil
		},
	}

	svc := newTestService(usersWith(testUser()), repo, verifier, &mockSessions{})
	_, err := svc.CompleteLogin(context.Background(), loginInput())
	assertAppError(t, err, 400)
}

func TestCompleteLogin_LostConsumeRace(t *testing.T) {
	sessions := &mockSessions{}
	repo := &mockRepo{
		latestPendingFn: func(ctx context.Context, userID string, kind ChallengeKind) (*Challenge, error) {
			return pendingChallenge(KindAuthentication), nil
		},
		findCredentialFn: func(ctx context.Context, credentialID string) (*Credential, error) {
			return storedCredential(3), nil
		},
		completeAuthenticationFn: func(ctx context.Context, credRowID string, newCounter uint32, challengeValue, userID string) (bool, error) {
			// A concurrent completion consumed the challenge first.
			return false, nil
		},
	}

	svc := newTestService(usersWith(testUser()), repo, &mockVerifier{}, sessions)
	_, err := svc.CompleteLogin(context.Background(), loginInput())
	assertAppError(t, err, 400)
	if sessions.mintCount != 0 {
		t.Error("a lost consume race must not mint a session")
	}
}
