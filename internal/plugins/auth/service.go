package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/questa-app/questa/internal/apperror"
)

// AccountService defines the business logic contract for user accounts.
// Handlers call these methods -- they never touch the repository directly.
type AccountService interface {
	Register(ctx context.Context, input RegisterInput) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByInquiryNumber(ctx context.Context, inquiryNumber string) (*User, error)
	UpdateProfile(ctx context.Context, userID string, req UpdateProfileRequest) (*User, error)
}

// accountService implements AccountService on top of the user repository.
type accountService struct {
	repo UserRepository
}

// NewAccountService creates a new account service with the given repository.
func NewAccountService(repo UserRepository) AccountService {
	return &accountService{repo: repo}
}

// Register creates a new user account. The username and inquiry number must
// both be unused. New accounts get the user role and active status.
func (s *accountService) Register(ctx context.Context, input RegisterInput) (*User, error) {
	username := strings.TrimSpace(input.Username)
	inquiry := strings.TrimSpace(input.InquiryNumber)

	exists, err := s.repo.Exists(ctx, username, inquiry)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("checking user existence: %w", err))
	}
	if exists {
		return nil, apperror.NewConflict("user ID or inquiry number already exists")
	}

	user := &User{
		ID:            uuid.NewString(),
		Username:      username,
		DisplayName:   strings.TrimSpace(input.DisplayName),
		InquiryNumber: inquiry,
		Role:          RoleUser,
		Status:        StatusActive,
		CreatedAt:     time.Now().UTC(),
	}
	if email := strings.TrimSpace(input.Email); email != "" {
		user.Email = &email
	}

	if err := s.repo.Create(ctx, user); err != nil {
		// The unique indexes are the authority; a concurrent insert can
		// still surface a conflict after the existence check passed.
		if appErr, ok := err.(*apperror.AppError); ok {
			return nil, appErr
		}
		return nil, apperror.NewInternal(fmt.Errorf("creating user: %w", err))
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return user, nil
}

// GetByID returns the account with the given internal id.
func (s *accountService) GetByID(ctx context.Context, id string) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

// GetByInquiryNumber returns the account with the given inquiry number.
// Callers are responsible for admin gating.
func (s *accountService) GetByInquiryNumber(ctx context.Context, inquiryNumber string) (*User, error) {
	return s.repo.FindByInquiryNumber(ctx, inquiryNumber)
}

// UpdateProfile applies the allowed field updates to the caller's account
// and returns the fresh profile. At least one updatable field must be set.
func (s *accountService) UpdateProfile(ctx context.Context, userID string, req UpdateProfileRequest) (*User, error) {
	if req.DisplayName == nil && req.Email == nil {
		return nil, apperror.NewBadRequest("no valid fields to update")
	}
	if req.DisplayName != nil && strings.TrimSpace(*req.DisplayName) == "" {
		return nil, apperror.NewBadRequest("display name must not be empty")
	}

	if err := s.repo.UpdateProfile(ctx, userID, req.DisplayName, req.Email); err != nil {
		if appErr, ok := err.(*apperror.AppError); ok {
			return nil, appErr
		}
		return nil, apperror.NewInternal(fmt.Errorf("updating profile: %w", err))
	}

	return s.repo.FindByID(ctx, userID)
}
