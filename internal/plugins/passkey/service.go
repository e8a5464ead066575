package passkey

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/questa-app/questa/internal/apperror"
	"github.com/questa-app/questa/internal/metrics"
	"github.com/questa-app/questa/internal/plugins/auth"
	"github.com/questa-app/questa/internal/plugins/session"
)

// Client policy constants embedded in ceremony options.
const (
	userVerificationPreferred = "preferred"
	residentKeyPreferred      = "preferred"
	attestationNone           = "none"
	credentialType            = "public-key"
)

// COSE algorithm identifiers accepted for new credentials.
const (
	algES256 = -7
	algRS256 = -257
)

// CeremonyContext carries the request-derived scope a ceremony is bound
// to. Handlers compute it from the Origin header; the service passes it
// through to the verifier untouched.
type CeremonyContext struct {
	Origin string
	RPID   string
}

// CompleteLoginInput is the validated input for finishing authentication.
type CompleteLoginInput struct {
	Username   string
	Credential CredentialAssertion
	Ceremony   CeremonyContext

	// Client metadata forwarded into the minted session for audit.
	IPAddress string
	UserAgent string
}

// LoginResult is returned by a successful authentication: the
// authenticated user, the bearer token, and its remaining lifetime in
// seconds.
type LoginResult struct {
	User      *auth.User
	Token     string
	ExpiresIn int64
}

// Service defines the passkey ceremony contract. Begin methods issue a
// challenge and return client-facing options; Complete methods consume the
// challenge exactly once and commit the ceremony's writes atomically.
type Service interface {
	BeginRegistration(ctx context.Context, userID string, ceremony CeremonyContext) (*RegistrationOptions, error)
	CompleteRegistration(ctx context.Context, userID string, credential CredentialAssertion, ceremony CeremonyContext) error
	BeginLogin(ctx context.Context, username string, ceremony CeremonyContext) (*AuthenticationOptions, error)
	CompleteLogin(ctx context.Context, input CompleteLoginInput) (*LoginResult, error)
}

// service implements Service with injected stores, verifier, and session
// minting. No handler-level or package-level mutable state: every ceremony
// reads its world from the repositories.
type service struct {
	users    auth.UserRepository
	repo     Repository
	issuer   *ChallengeIssuer
	verifier Verifier
	sessions session.Service
	metrics  *metrics.Collector
	rpName   string
}

// NewService creates a passkey service with the given dependencies.
func NewService(
	users auth.UserRepository,
	repo Repository,
	issuer *ChallengeIssuer,
	verifier Verifier,
	sessions session.Service,
	collector *metrics.Collector,
	rpName string,
) Service {
	return &service{
		users:    users,
		repo:     repo,
		issuer:   issuer,
		verifier: verifier,
		sessions: sessions,
		metrics:  collector,
		rpName:   rpName,
	}
}

// BeginRegistration issues a registration challenge for the user and
// returns the options payload the client feeds to its authenticator.
func (s *service) BeginRegistration(ctx context.Context, userID string, ceremony CeremonyContext) (*RegistrationOptions, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	ch, err := s.issuer.Issue(ctx, KindRegistration, user.ID)
	if err != nil {
		return nil, err
	}

	return &RegistrationOptions{
		Challenge: ch.Value,
		RP: RelyingParty{
			Name: s.rpName,
			ID:   ceremony.RPID,
		},
		User: UserEntity{
			ID:          user.ID,
			Name:        user.Username,
			DisplayName: user.DisplayName,
		},
		PubKeyCredParams: []CredParam{
			{Alg: algES256, Type: credentialType},
			{Alg: algRS256, Type: credentialType},
		},
		AuthenticatorSelection: AuthenticatorSelection{
			UserVerification: userVerificationPreferred,
			ResidentKey:      residentKeyPreferred,
		},
		Timeout:     s.issuer.TTL().Milliseconds(),
		Attestation: attestationNone,
	}, nil
}

// CompleteRegistration validates the pending registration challenge,
// verifies the asserted credential, and persists it. The challenge is
// consumed only after verification succeeds, so a rejected assertion can
// be retried within the TTL.
func (s *service) CompleteRegistration(ctx context.Context, userID string, credential CredentialAssertion, ceremony CeremonyContext) error {
	err := s.completeRegistration(ctx, userID, credential, ceremony)
	if err != nil {
		s.metrics.RecordCeremony(metrics.FlowRegistration, metrics.OutcomeFailure)
		return err
	}
	s.metrics.RecordCeremony(metrics.FlowRegistration, metrics.OutcomeSuccess)
	return nil
}

func (s *service) completeRegistration(ctx context.Context, userID string, credential CredentialAssertion, ceremony CeremonyContext) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	ch, err := s.pendingChallenge(ctx, user.ID, KindRegistration)
	if err != nil {
		return err
	}

	result, err := s.verifier.VerifyRegistration(ctx, &credential, ch.Value, ceremony.Origin, ceremony.RPID)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("verifying registration: %w", err))
	}
	if !result.Verified {
		// Challenge stays unconsumed: the client may retry within the TTL.
		return apperror.NewBadRequest("passkey verification failed")
	}

	cred := &Credential{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		CredentialID: result.CredentialID,
		PublicKey:    result.PublicKey,
		Counter:      result.InitialCounter,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.RegisterCredential(ctx, cred, ch.Value); err != nil {
		if appErr, ok := err.(*apperror.AppError); ok {
			return appErr
		}
		return apperror.NewInternal(fmt.Errorf("registering credential: %w", err))
	}

	slog.Info("credential registered",
		slog.String("user_id", user.ID),
		slog.String("credential_id", cred.CredentialID),
	)

	return nil
}

// BeginLogin issues an authentication challenge for the username and
// returns the options payload, including the allowed-credential list.
//
// "No such user" and "user has no credentials" are deliberately
// indistinguishable to the caller: both answer 404 "user not found" so
// login-begin can't be used to enumerate accounts. The distinction is
// logged server-side.
func (s *service) BeginLogin(ctx context.Context, username string, ceremony CeremonyContext) (*AuthenticationOptions, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	ids, err := s.repo.CredentialIDsByUser(ctx, user.ID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing credentials: %w", err))
	}
	if len(ids) == 0 {
		slog.Warn("login begin for user without credentials",
			slog.String("user_id", user.ID),
		)
		return nil, apperror.NewNotFound("user not found")
	}

	ch, err := s.issuer.Issue(ctx, KindAuthentication, user.ID)
	if err != nil {
		return nil, err
	}

	allowed := make([]AllowedCredential, 0, len(ids))
	for _, id := range ids {
		allowed = append(allowed, AllowedCredential{ID: id, Type: credentialType})
	}

	return &AuthenticationOptions{
		Challenge:        ch.Value,
		RPID:             ceremony.RPID,
		AllowCredentials: allowed,
		UserVerification: userVerificationPreferred,
		Timeout:          s.issuer.TTL().Milliseconds(),
	}, nil
}

// CompleteLogin validates the pending authentication challenge and the
// asserted credential, then commits the ceremony: challenge consumed,
// counter advanced, last-login stamped, session minted. The database
// writes happen in one transaction; the session is minted only after the
// transaction commits.
func (s *service) CompleteLogin(ctx context.Context, input CompleteLoginInput) (*LoginResult, error) {
	result, err := s.completeLogin(ctx, input)
	if err != nil {
		s.metrics.RecordCeremony(metrics.FlowAuthentication, metrics.OutcomeFailure)
		return nil, err
	}
	s.metrics.RecordCeremony(metrics.FlowAuthentication, metrics.OutcomeSuccess)
	return result, nil
}

func (s *service) completeLogin(ctx context.Context, input CompleteLoginInput) (*LoginResult, error) {
	user, err := s.users.FindByUsername(ctx, input.Username)
	if err != nil {
		return nil, err
	}

	ch, err := s.pendingChallenge(ctx, user.ID, KindAuthentication)
	if err != nil {
		return nil, err
	}

	cred, err := s.repo.FindCredentialByID(ctx, input.Credential.ID)
	if err != nil {
		return nil, err
	}
	if cred.UserID != user.ID {
		// The credential exists but belongs to someone else. Don't
		// acknowledge its existence.
		return nil, apperror.NewNotFound("credential not found")
	}

	result, err := s.verifier.VerifyAuthentication(ctx, &input.Credential, ch.Value, input.Ceremony.Origin, input.Ceremony.RPID, cred)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("verifying authentication: %w", err))
	}
	if !result.Verified {
		return nil, apperror.NewBadRequest("passkey verification failed")
	}

	// Clone detection: an authenticator that reports counters must report
	// strictly increasing values. A regressed or repeated counter means
	// the credential was cloned, or the response was replayed.
	if (cred.Counter != 0 || result.NewCounter != 0) && result.NewCounter <= cred.Counter {
		slog.Warn("signature counter regression",
			slog.String("credential_id", cred.CredentialID),
			slog.Uint64("stored", uint64(cred.Counter)),
			slog.Uint64("reported", uint64(result.NewCounter)),
		)
		return nil, apperror.NewBadRequest("passkey verification failed")
	}

	committed, err := s.repo.CompleteAuthentication(ctx, cred.ID, result.NewCounter, ch.Value, user.ID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("committing authentication: %w", err))
	}
	if !committed {
		// A concurrent completion claimed the challenge first.
		return nil, apperror.NewBadRequest("invalid or expired challenge")
	}

	token, sess, err := s.sessions.Mint(ctx, session.MintInput{
		UserID:      user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Role:        user.Role,
		IPAddress:   input.IPAddress,
		UserAgent:   input.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return &LoginResult{
		User:      user,
		Token:     token,
		ExpiresIn: int64(sess.ExpiresAt.Sub(sess.IssuedAt).Seconds()),
	}, nil
}

// pendingChallenge finds the newest unconsumed challenge of the given kind
// for the user and rejects it when expired. Expiry beats everything else:
// an expired challenge is useless no matter what else is true about it.
func (s *service) pendingChallenge(ctx context.Context, userID string, kind ChallengeKind) (*Challenge, error) {
	ch, err := s.repo.LatestPendingChallenge(ctx, userID, kind)
	if err != nil {
		if _, ok := err.(*apperror.AppError); ok {
			return nil, apperror.NewBadRequest("invalid or expired challenge")
		}
		return nil, apperror.NewInternal(fmt.Errorf("loading challenge: %w", err))
	}

	if ch.Expired(time.Now()) {
		return nil, apperror.NewBadRequest("challenge has expired")
	}

	return ch, nil
}
