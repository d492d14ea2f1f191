package tracking

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sicklecare/sicklecare/internal/platform/auth"
	"github.com/sicklecare/sicklecare/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the subject-owned tracking resources. Every record is
// read and written on behalf of the authenticated subject.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireSubject())

	g.POST("/pain-events", h.CreatePainEvent)
	g.GET("/pain-events", h.ListPainEvents)
	g.GET("/pain-events/:id", h.GetPainEvent)
	g.PUT("/pain-events/:id", h.UpdatePainEvent)
	g.DELETE("/pain-events/:id", h.DeletePainEvent)

	g.POST("/hydrations", h.LogHydration)
	g.GET("/hydrations", h.ListHydration)
	g.GET("/hydrations/:id", h.GetHydration)
	g.DELETE("/hydrations/:id", h.DeleteHydration)

	g.POST("/labs", h.CreateLabResult)
	g.GET("/labs", h.ListLabResults)
	g.GET("/labs/:id", h.GetLabResult)
	g.PUT("/labs/:id", h.UpdateLabResult)
	g.DELETE("/labs/:id", h.DeleteLabResult)
}

func subjectOf(c echo.Context) string {
	return auth.UserIDFromContext(c.Request().Context())
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// storeError maps repository failures onto HTTP errors.
func storeError(err error, what string) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, what+" not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// -- Pain Event Handlers --

func (h *Handler) CreatePainEvent(c echo.Context) error {
	var e PainEvent
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e.SubjectID = subjectOf(c)
	if err := h.svc.CreatePainEvent(c.Request().Context(), &e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) GetPainEvent(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	e, err := h.svc.GetPainEvent(c.Request().Context(), subjectOf(c), id)
	if err != nil {
		return storeError(err, "pain event")
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) ListPainEvents(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPainEvents(c.Request().Context(), subjectOf(c), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pg.Page(items, total))
}

func (h *Handler) UpdatePainEvent(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var e PainEvent
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e.ID = id
	e.SubjectID = subjectOf(c)
	if err := h.svc.UpdatePainEvent(c.Request().Context(), &e); err != nil {
		if errors.Is(err, ErrNotFound) {
			return storeError(err, "pain event")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) DeletePainEvent(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePainEvent(c.Request().Context(), subjectOf(c), id); err != nil {
		return storeError(err, "pain event")
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Hydration Handlers --

// LogHydration upserts by date and always answers 200 with the stored log.
func (h *Handler) LogHydration(c echo.Context) error {
	var l HydrationLog
	if err := c.Bind(&l); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	l.SubjectID = subjectOf(c)
	if err := h.svc.LogHydration(c.Request().Context(), &l); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) GetHydration(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	l, err := h.svc.GetHydration(c.Request().Context(), subjectOf(c), id)
	if err != nil {
		return storeError(err, "hydration log")
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) ListHydration(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListHydration(c.Request().Context(), subjectOf(c), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pg.Page(items, total))
}

func (h *Handler) DeleteHydration(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteHydration(c.Request().Context(), subjectOf(c), id); err != nil {
		return storeError(err, "hydration log")
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Lab Result Handlers --

func (h *Handler) CreateLabResult(c echo.Context) error {
	var l LabResult
	if err := c.Bind(&l); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	l.SubjectID = subjectOf(c)
	l.Source = SourceManual
	if err := h.svc.CreateLabResult(c.Request().Context(), &l); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *Handler) GetLabResult(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	l, err := h.svc.GetLabResult(c.Request().Context(), subjectOf(c), id)
	if err != nil {
		return storeError(err, "lab result")
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) ListLabResults(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListLabResults(c.Request().Context(), subjectOf(c), c.QueryParam("code"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pg.Page(items, total))
}

func (h *Handler) UpdateLabResult(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var l LabResult
	if err := c.Bind(&l); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	l.ID = id
	l.SubjectID = subjectOf(c)
	if err := h.svc.UpdateLabResult(c.Request().Context(), &l); err != nil {
		if errors.Is(err, ErrNotFound) {
			return storeError(err, "lab result")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) DeleteLabResult(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteLabResult(c.Request().Context(), subjectOf(c), id); err != nil {
		return storeError(err, "lab result")
	}
	return c.NoContent(http.StatusNoContent)
}
