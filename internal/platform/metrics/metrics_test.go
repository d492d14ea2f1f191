package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sicklecare/sicklecare/internal/domain/risk"
)

func TestObserveRisk(t *testing.T) {
	r := New()
	r.ObserveRisk(82, risk.TierHigh)
	r.ObserveRisk(75, risk.TierHigh)
	r.ObserveRisk(20, risk.TierLow)

	if got := testutil.ToFloat64(r.riskTier.WithLabelValues("high")); got != 2 {
		t.Errorf("expected 2 high tiers, got %v", got)
	}
	if got := testutil.ToFloat64(r.riskTier.WithLabelValues("low")); got != 1 {
		t.Errorf("expected 1 low tier, got %v", got)
	}
	if n := testutil.CollectAndCount(r.riskScore); n != 1 {
		t.Errorf("expected one risk_score series, got %d", n)
	}
}

func TestObserveInsightAndSweep(t *testing.T) {
	r := New()
	r.ObserveInsight(risk.InsightHydrationPain, risk.StrengthStrong)
	r.ObserveInsight(risk.InsightLabDrift, "flagged")
	r.ObserveInsight(risk.InsightLabDrift, "flagged")
	r.ObserveSweep("ok")

	if got := testutil.ToFloat64(r.insights.WithLabelValues(risk.InsightLabDrift, "flagged")); got != 2 {
		t.Errorf("expected 2 flagged drifts, got %v", got)
	}
	if got := testutil.ToFloat64(r.sweeps.WithLabelValues("ok")); got != 1 {
		t.Errorf("expected 1 sweep, got %v", got)
	}
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	r := New()
	e := echo.New()
	e.Use(r.Middleware())
	e.GET("/api/v1/labs/:id", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "lab result not found")
	})
	e.GET("/api/v1/risk-today", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]int{"score": 50})
	})

	for _, target := range []string{"/api/v1/labs/a", "/api/v1/labs/b", "/api/v1/risk-today", "/nowhere"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}

	if got := testutil.ToFloat64(r.httpRequests.WithLabelValues("GET", "/api/v1/labs/:id", "404")); got != 2 {
		t.Errorf("expected 2 requests for the lab route, got %v", got)
	}
	if got := testutil.ToFloat64(r.httpRequests.WithLabelValues("GET", "/api/v1/risk-today", "200")); got != 1 {
		t.Errorf("expected 1 risk-today request, got %v", got)
	}
	if got := testutil.ToFloat64(r.httpRequests.WithLabelValues("GET", unmatchedRoute, "404")); got != 1 {
		t.Errorf("expected unmatched path to be folded, got %v", got)
	}
	if got := testutil.ToFloat64(r.httpActive); got != 0 {
		t.Errorf("expected no in-flight requests, got %v", got)
	}
}

func TestHandler_ExposesMetrics(t *testing.T) {
	r := New()
	r.ObserveRisk(50, risk.TierModerate)

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/metrics", nil), rec)
	if err := r.Handler()(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`risk_tier_total{tier="moderate"} 1`, "risk_score_count 1", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in exposition", want)
		}
	}
}
