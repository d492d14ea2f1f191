package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sicklecare/sicklecare/internal/platform/fhir"
)

// runTimeout drives one request for path through RequestTimeout.
func runTimeout(path string, timeout time.Duration, skip []string, handler echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, path, nil), rec)
	return rec, RequestTimeout(timeout, skip...)(handler)(c)
}

// waitForCancel blocks until the request context ends or a minute passes.
func waitForCancel(c echo.Context) error {
	select {
	case <-time.After(time.Minute):
		return c.NoContent(http.StatusOK)
	case <-c.Request().Context().Done():
		return c.Request().Context().Err()
	}
}

func TestRequestTimeout_FastHandlerPassesThrough(t *testing.T) {
	rec, err := runTimeout("/api/v1/risk-today", 5*time.Second, nil, func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); !ok {
			t.Error("expected a deadline on the request context")
		}
		return c.String(http.StatusOK, "ok")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("expected the handler's response, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestRequestTimeout_SlowHandlerGetsOutcome(t *testing.T) {
	rec, err := runTimeout("/api/v1/pain-events", 30*time.Millisecond, nil, waitForCancel)
	if err != nil {
		t.Fatalf("expected the middleware to write the response, got %v", err)
	}
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rec.Code)
	}

	var outcome fhir.OperationOutcome
	if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if outcome.ResourceType != "OperationOutcome" || len(outcome.Issue) != 1 {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if outcome.Issue[0].Code != fhir.IssueTypeTimeout {
		t.Errorf("expected issue code %q, got %q", fhir.IssueTypeTimeout, outcome.Issue[0].Code)
	}
}

func TestRequestTimeout_SkipPrefixes(t *testing.T) {
	skip := []string{"/api/v1/risk-sweep", "/metrics"}

	tests := []struct {
		path         string
		wantDeadline bool
	}{
		{"/api/v1/risk-sweep", false},
		{"/api/v1/risk-sweep/run", false},
		{"/metrics", false},
		{"/api/v1/risk-today", true},
		{"/api/v1/insights", true},
		{"/health", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var hasDeadline bool
			_, err := runTimeout(tt.path, time.Second, skip, func(c echo.Context) error {
				_, hasDeadline = c.Request().Context().Deadline()
				return c.NoContent(http.StatusNoContent)
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if hasDeadline != tt.wantDeadline {
				t.Errorf("deadline set = %v, want %v", hasDeadline, tt.wantDeadline)
			}
		})
	}
}

func TestRequestTimeout_UnskippedPathStillTimesOut(t *testing.T) {
	skip := []string{"/api/v1/risk-sweep", "/metrics"}

	rec, err := runTimeout("/api/v1/risk-today", 30*time.Millisecond, skip, waitForCancel)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504 for a path outside the skip list, got %d", rec.Code)
	}
}

func TestRequestTimeout_SkippedPathOutlivesTimeout(t *testing.T) {
	rec, err := runTimeout("/api/v1/risk-sweep", 10*time.Millisecond, []string{"/metrics", "/api/v1/risk-sweep"}, func(c echo.Context) error {
		time.Sleep(40 * time.Millisecond)
		return c.String(http.StatusOK, "sweep done")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected the sweep to finish, got %d", rec.Code)
	}
}

func TestRequestTimeout_HandlerErrorReturned(t *testing.T) {
	_, err := runTimeout("/api/v1/labs/123", 5*time.Second, nil, func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	})

	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", httpErr.Code)
	}
}
