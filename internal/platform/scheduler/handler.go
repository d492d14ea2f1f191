package scheduler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sicklecare/sicklecare/internal/platform/auth"
)

// RoleOperator may trigger sweeps on demand.
const RoleOperator = "operator"

type Handler struct {
	sweeper *Sweeper
}

func NewHandler(sweeper *Sweeper) *Handler {
	return &Handler{sweeper: sweeper}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/risk-sweep", h.RunSweep, auth.RequireRole(RoleOperator))
}

// RunSweep runs one sweep synchronously and returns its summary.
func (h *Handler) RunSweep(c echo.Context) error {
	sum, err := h.sweeper.RunOnce(c.Request().Context())
	if errors.Is(err, ErrSweepRunning) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, sum)
}
