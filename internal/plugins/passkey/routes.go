package passkey

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/questa-app/questa/internal/middleware"
)

// RegisterRoutes sets up the ceremony endpoints. All four are public by
// nature (a user authenticating has no session yet) and rate-limited per
// client IP to slow down challenge farming and brute-force attempts.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	g := e.Group("/api/auth/passkey")

	g.POST("/register/begin", h.BeginRegistration, middleware.RateLimit(5, time.Minute))
	g.POST("/register/complete", h.CompleteRegistration, middleware.RateLimit(5, time.Minute))
	g.POST("/login/begin", h.BeginLogin, middleware.RateLimit(10, time.Minute))
	g.POST("/login/complete", h.CompleteLogin, middleware.RateLimit(10, time.Minute))
}
