package risk

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sicklecare/sicklecare/internal/platform/auth"
	"github.com/sicklecare/sicklecare/internal/platform/fhir"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, fhirGroup *echo.Group) {
	read := api.Group("", auth.RequireSubject())
	read.GET("/risk-today", h.RiskToday)
	read.GET("/insights", h.Insights)

	fhirRead := fhirGroup.Group("", auth.RequireSubject())
	fhirRead.GET("/RiskAssessment", h.RiskAssessmentFHIR)
}

func (h *Handler) RiskToday(c echo.Context) error {
	day, err := h.dayParam(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
	}
	ctx := c.Request().Context()
	result, err := h.svc.ComputeDailyRisk(ctx, auth.UserIDFromContext(ctx), day)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Insights(c echo.Context) error {
	days := 0
	if v := c.QueryParam("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "days must be a positive integer")
		}
		days = n
	}
	ctx := c.Request().Context()
	subject := auth.UserIDFromContext(ctx)

	kind := c.QueryParam("kind")
	if kind == "" {
		findings, err := h.svc.ComputeInsights(ctx, subject, days)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"insights": findings})
	}

	finding, err := h.svc.ComputeInsight(ctx, subject, kind, days)
	if err != nil {
		if errors.Is(err, ErrUnknownInsight) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, finding)
}

func (h *Handler) RiskAssessmentFHIR(c echo.Context) error {
	day, err := h.dayParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.NewOperationOutcome(
			fhir.IssueSeverityError, fhir.IssueTypeValue, "invalid date, expected YYYY-MM-DD"))
	}
	ctx := c.Request().Context()
	result, err := h.svc.ComputeDailyRisk(ctx, auth.UserIDFromContext(ctx), day)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, result.ToFHIR())
}

func (h *Handler) dayParam(c echo.Context) (time.Time, error) {
	v := c.QueryParam("date")
	if v == "" {
		return h.svc.Today(), nil
	}
	return ParseDay(v)
}
