package session

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/questa-app/questa/internal/apperror"
)

// CookieName is the HTTP cookie carrying the session token for browser
// clients. Programmatic clients send the token as a bearer header instead.
const CookieName = "session"

// Context keys for storing session data in Echo context. Other plugins
// use these keys (via the exported getter functions below) to access
// the authenticated user's information.
const (
	contextKeySession = "session"
	contextKeyUserID  = "session_user_id"
)

// RequireSession returns middleware that validates the request's session
// token and injects the session into the request context. The token is read
// from the Authorization header (Bearer scheme) first, falling back to the
// session cookie. Requests without a valid session get a 401 JSON response.
func RequireSession(service Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := TokenFromRequest(c)
			if token == "" {
				return apperror.NewUnauthorized("authentication required")
			}

			sess, err := service.Validate(c.Request().Context(), token)
			if err != nil {
				// Invalid or expired session -- clear any stale cookie.
				ClearCookie(c)
				return err
			}

			c.Set(contextKeySession, sess)
			c.Set(contextKeyUserID, sess.UserID)

			return next(c)
		}
	}
}

// RequireAdmin returns middleware that rejects non-admin sessions with 403.
// Must run after RequireSession.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess := Get(c)
			if sess == nil {
				return apperror.NewUnauthorized("authentication required")
			}
			if !sess.IsAdmin() {
				return apperror.NewForbidden("admin role required")
			}
			return next(c)
		}
	}
}

// --- Exported getters for other plugins ---

// Get retrieves the authenticated session from the Echo context.
// Returns nil if the request is not authenticated (middleware not applied).
func Get(c echo.Context) *Session {
	sess, _ := c.Get(contextKeySession).(*Session)
	return sess
}

// GetUserID retrieves the authenticated user's ID from the Echo context.
// Returns empty string if the request is not authenticated.
func GetUserID(c echo.Context) string {
	id, _ := c.Get(contextKeyUserID).(string)
	return id
}

// --- Token transport helpers ---

// TokenFromRequest extracts the session token from the Authorization header
// (Bearer scheme) or, failing that, from the session cookie.
func TokenFromRequest(c echo.Context) string {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader != "" {
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token != authHeader && token != "" {
			return token
		}
	}

	cookie, err := c.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	return cookie.Value
}

// SetCookie sets the session cookie on the response. The cookie is HttpOnly
// (JS can't read it), Secure, and SameSite=Strict; maxAge is the session
// TTL in seconds.
func SetCookie(c echo.Context, token string, maxAge int) {
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   maxAge,
	})
}

// ClearCookie removes the session cookie by setting MaxAge to -1.
func ClearCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
}
