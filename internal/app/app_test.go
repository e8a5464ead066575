package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/questa-app/questa/internal/apperror"
	"github.com/questa-app/questa/internal/config"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := &config.Config{
		Env:  "test",
		Port: 0,
		Auth: config.AuthConfig{
			AllowedOrigins: []string{"https://quiz.example.com"},
		},
	}
	return New(cfg, nil, nil, nil)
}

func doRequest(t *testing.T, a *App, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	return rec
}

func TestErrorHandler_AppError(t *testing.T) {
	a := newTestApp(t)
	a.Echo.GET("/api/boom", func(c echo.Context) error {
		return apperror.NewConflict("user ID or inquiry number already exists")
	})

	rec := doRequest(t, a, http.MethodGet, "/api/boom")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON error body: %v", err)
	}
	if body["message"] != "user ID or inquiry number already exists" {
		t.Errorf("unexpected message: %q", body["message"])
	}
	if body["error"] != http.StatusText(http.StatusConflict) {
		t.Errorf("unexpected error field: %q", body["error"])
	}
}

func TestErrorHandler_WrappedAppError(t *testing.T) {
	a := newTestApp(t)
	a.Echo.GET("/api/boom", func(c echo.Context) error {
		return fmt.Errorf("looking up account: %w", apperror.NewNotFound("user not found"))
	})

	rec := doRequest(t, a, http.MethodGet, "/api/boom")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for wrapped AppError, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON error body: %v", err)
	}
	if body["message"] != "user not found" {
		t.Errorf("unexpected message: %q", body["message"])
	}
}

func TestErrorHandler_InternalHidesCause(t *testing.T) {
	a := newTestApp(t)
	a.Echo.GET("/api/boom", func(c echo.Context) error {
		return apperror.NewInternal(errDatabaseDown)
	})

	rec := doRequest(t, a, http.MethodGet, "/api/boom")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON error body: %v", err)
	}
	// The underlying cause must never leak to the client.
	if body["message"] == errDatabaseDown.Error() {
		t.Error("internal error detail leaked to the response")
	}
}

func TestErrorHandler_RouterNotFound(t *testing.T) {
	a := newTestApp(t)

	rec := doRequest(t, a, http.MethodGet, "/api/no-such-route")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body for router 404: %v", err)
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	a := newTestApp(t)
	a.Echo.GET("/api/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, "pong")
	})

	rec := doRequest(t, a, http.MethodGet, "/api/ping")
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected nosniff header")
	}
	if rec.Header().Get("X-Frame-Options") == "" {
		t.Error("expected frame options header")
	}
}

var errDatabaseDown = errTest("database down")

type errTest string

func (e errTest) Error() string { return string(e) }
