package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/questa-app/questa/internal/apperror"
	"github.com/questa-app/questa/internal/plugins/session"
)

// Handler handles HTTP requests for account management. Handlers are thin:
// they bind the request, call the service, and render JSON. No business
// logic lives here.
type Handler struct {
	service  AccountService
	sessions session.Service
}

// NewHandler creates a new account handler with the given services.
func NewHandler(service AccountService, sessions session.Service) *Handler {
	return &Handler{service: service, sessions: sessions}
}

// Register creates a new user account (POST /api/auth/register).
func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if msg := req.Validate(); msg != "" {
		return apperror.NewBadRequest(msg)
	}

	user, err := h.service.Register(c.Request().Context(), RegisterInput{
		Username:      req.Username,
		DisplayName:   req.DisplayName,
		Email:         req.Email,
		InquiryNumber: req.InquiryNumber,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"success": true,
		"user":    user,
	})
}

// Me returns the authenticated user's profile (GET /api/auth/me).
// The session snapshot may be stale after a profile update, so the profile
// is re-read from the users table.
func (h *Handler) Me(c echo.Context) error {
	sess := session.Get(c)
	if sess == nil {
		return apperror.NewUnauthorized("authentication required")
	}

	user, err := h.service.GetByID(c.Request().Context(), sess.UserID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, user)
}

// Logout revokes the caller's session (POST /api/auth/logout). Revocation
// is idempotent: an absent or already-revoked token still yields success.
func (h *Handler) Logout(c echo.Context) error {
	token := session.TokenFromRequest(c)
	if token != "" {
		if err := h.sessions.Revoke(c.Request().Context(), token); err != nil {
			return err
		}
	}

	session.ClearCookie(c)

	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// UpdateProfile updates the caller's display name and/or email
// (PUT /api/auth/profile).
func (h *Handler) UpdateProfile(c echo.Context) error {
	sess := session.Get(c)
	if sess == nil {
		return apperror.NewUnauthorized("authentication required")
	}

	var req UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	user, err := h.service.UpdateProfile(c.Request().Context(), sess.UserID, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, user)
}

// InquiryLookup returns the account matching an inquiry number
// (GET /api/auth/user/inquiry/:number). Admin only; the route group
// applies session and role middleware.
func (h *Handler) InquiryLookup(c echo.Context) error {
	number := c.Param("number")
	if number == "" {
		return apperror.NewBadRequest("inquiry number is required")
	}

	user, err := h.service.GetByInquiryNumber(c.Request().Context(), number)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, user)
}
