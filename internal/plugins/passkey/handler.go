package passkey

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/questa-app/questa/internal/apperror"
	"github.com/questa-app/questa/internal/plugins/session"
)

// Handler exposes the passkey ceremony endpoints.
type Handler struct {
	service      Service
	fallbackHost string
}

// NewHandler creates a passkey handler. fallbackHost names the relying
// party when a request carries no usable Origin header.
func NewHandler(service Service, fallbackHost string) *Handler {
	return &Handler{service: service, fallbackHost: fallbackHost}
}

// ceremonyContext derives the relying-party scope from the request's
// Origin header. Requests without one (curl, tests) fall back to the
// configured host.
func (h *Handler) ceremonyContext(c echo.Context) CeremonyContext {
	origin := c.Request().Header.Get(echo.HeaderOrigin)
	if origin == "" {
		return CeremonyContext{
			Origin: "https://" + h.fallbackHost,
			RPID:   h.fallbackHost,
		}
	}
	u, err := url.Parse(origin)
	if err != nil || u.Hostname() == "" {
		return CeremonyContext{Origin: origin, RPID: h.fallbackHost}
	}
	return CeremonyContext{Origin: origin, RPID: u.Hostname()}
}

// BeginRegistration handles POST /api/auth/passkey/register/begin.
func (h *Handler) BeginRegistration(c echo.Context) error {
	var req BeginRegistrationRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if req.UserID == "" {
		return apperror.NewBadRequest("userId is required")
	}

	opts, err := h.service.BeginRegistration(c.Request().Context(), req.UserID, h.ceremonyContext(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, opts)
}

// CompleteRegistration handles POST /api/auth/passkey/register/complete.
func (h *Handler) CompleteRegistration(c echo.Context) error {
	var req CompleteRegistrationRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if req.UserID == "" || req.Credential.ID == "" {
		return apperror.NewBadRequest("userId and credential are required")
	}

	if err := h.service.CompleteRegistration(c.Request().Context(), req.UserID, req.Credential, h.ceremonyContext(c)); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":  true,
		"verified": true,
	})
}

// BeginLogin handles POST /api/auth/passkey/login/begin.
func (h *Handler) BeginLogin(c echo.Context) error {
	var req BeginLoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if req.Username == "" {
		return apperror.NewBadRequest("username is required")
	}

	opts, err := h.service.BeginLogin(c.Request().Context(), req.Username, h.ceremonyContext(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, opts)
}

// CompleteLogin handles POST /api/auth/passkey/login/complete. On success the
// session token is returned in the body and mirrored into an HttpOnly
// cookie so both SPA and same-site clients can hold the session.
func (h *Handler) CompleteLogin(c echo.Context) error {
	var req CompleteLoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if req.Username == "" || req.Credential.ID == "" {
		return apperror.NewBadRequest("username and credential are required")
	}

	result, err := h.service.CompleteLogin(c.Request().Context(), CompleteLoginInput{
		Username:   req.Username,
		Credential: req.Credential,
		Ceremony:   h.ceremonyContext(c),
		IPAddress:  c.RealIP(),
		UserAgent:  c.Request().UserAgent(),
	})
	if err != nil {
		return err
	}

	session.SetCookie(c, result.Token, int(result.ExpiresIn))

	return c.JSON(http.StatusOK, map[string]any{
		"success":      true,
		"sessionToken": result.Token,
		"expiresIn":    result.ExpiresIn,
		"user":         result.User,
	})
}
