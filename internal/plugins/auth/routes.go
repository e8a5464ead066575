package auth

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/questa-app/questa/internal/middleware"
	"github.com/questa-app/questa/internal/plugins/session"
)

// RegisterRoutes sets up all account routes on the given Echo instance.
// Registration is public and rate-limited; everything else requires a
// valid session, and the inquiry lookup additionally requires admin.
func RegisterRoutes(e *echo.Echo, h *Handler, sessions session.Service) {
	g := e.Group("/api/auth")

	g.POST("/register", h.Register, middleware.RateLimit(5, time.Minute))

	// Logout is deliberately outside the session group: revoking an
	// already-dead token must still answer {success:true}.
	g.POST("/logout", h.Logout)

	authed := g.Group("", session.RequireSession(sessions))
	authed.GET("/me", h.Me)
	authed.PUT("/profile", h.UpdateProfile)

	admin := authed.Group("", session.RequireAdmin())
	admin.GET("/user/inquiry/:number", h.InquiryLookup)
}
