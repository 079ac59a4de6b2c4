package app

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/solhem/memberpages/internal/apperror"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestErrorHandler_LogsInternalErrorsWithUser(t *testing.T) {
	buf := captureLogs(t)

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	c.Set("auth_user_id", int64(7))

	app := &App{}
	app.errorHandler(apperror.NewInternal(errors.New("connection refused")), c)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Error("internal error detail must not reach the client")
	}
	if !strings.Contains(buf.String(), "user_id=7") {
		t.Errorf("expected the authenticated member in the log line, got:\n%s", buf.String())
	}
}

func TestErrorHandler_JSONForAPIRequests(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin/api/settings", nil)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)

	app := &App{}
	app.errorHandler(apperror.NewTooManyRequests("rate limit exceeded, please try again later"), c)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.Contains(ct, "application/json") {
		t.Errorf("expected a JSON response on the API surface, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "rate limit exceeded") {
		t.Error("expected the limiter message in the response body")
	}
}
