package app

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/questa-app/questa/internal/metrics"
	"github.com/questa-app/questa/internal/plugins/auth"
	"github.com/questa-app/questa/internal/plugins/passkey"
	"github.com/questa-app/questa/internal/plugins/session"
)

// RegisterRoutes wires the plugins together and sets up all application
// routes. This is the single place where dependencies are assembled: the
// session service feeds the auth and passkey plugins, and the passkey
// service is built on the injected verifier.
func (a *App) RegisterRoutes(verifier passkey.Verifier, gatherer prometheus.Gatherer) {
	e := a.Echo

	// --- Infrastructure Routes ---

	// Health check endpoint for container orchestration. Reports degraded
	// backends with 503 so load balancers stop routing here.
	e.GET("/healthz", a.healthz)

	// Prometheus scrape endpoint.
	e.GET("/metrics", echo.WrapHandler(metrics.Handler(gatherer)))

	// --- Plugin Wiring ---

	sessions := session.NewService(a.Redis, a.Config.Auth.SessionTTL, a.Metrics)

	users := auth.NewUserRepository(a.DB)
	accounts := auth.NewAccountService(users)
	authHandler := auth.NewHandler(accounts, sessions)

	passkeys := passkey.NewRepository(a.DB)
	issuer := passkey.NewChallengeIssuer(passkeys, a.Config.Auth.ChallengeTTL)
	passkeyService := passkey.NewService(
		users,
		passkeys,
		issuer,
		verifier,
		sessions,
		a.Metrics,
		a.Config.Auth.RPName,
	)
	passkeyHandler := passkey.NewHandler(passkeyService, a.Config.Auth.RPFallbackHost)

	// --- Plugin Routes ---

	auth.RegisterRoutes(e, authHandler, sessions)
	passkey.RegisterRoutes(e, passkeyHandler)
}

// healthz verifies both backing stores are reachable.
func (a *App) healthz(c echo.Context) error {
	ctx := c.Request().Context()

	if err := a.DB.PingContext(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"reason": "database unreachable",
		})
	}
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"reason": "redis unreachable",
		})
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
