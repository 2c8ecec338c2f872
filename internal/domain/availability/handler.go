package availability

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medsched/medsched/internal/platform/auth"
	"github.com/medsched/medsched/pkg/apperr"
	"github.com/medsched/medsched/pkg/pagination"
)

// defaultRangeDays bounds unqualified range queries.
const defaultRangeDays = 14

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "doctor", "patient"))
	readGroup.GET("/doctors/:id/availability", h.ListWindows)
	readGroup.GET("/doctors/:id/availability/slots", h.DaySlots)
	readGroup.GET("/doctors/:id/availability/summary", h.Summarize)

	manageGroup := api.Group("", auth.RequireRole("admin", "doctor"))
	manageGroup.POST("/availability", h.CreateWindow)
	manageGroup.PUT("/availability/:id", h.UpdateWindow)
	manageGroup.DELETE("/availability/:id", h.DeleteWindow)
}

func httpError(err error) error {
	return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.MessageOf(err))
}

// rangeParams reads from/to query params, defaulting to the next
// defaultRangeDays days starting at today UTC.
func rangeParams(c echo.Context) (time.Time, time.Time, error) {
	from := time.Now().UTC().Truncate(24 * time.Hour)
	to := from.AddDate(0, 0, defaultRangeDays)
	if v := c.QueryParam("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid from, expected RFC3339")
		}
		from = t
		to = from.AddDate(0, 0, defaultRangeDays)
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid to, expected RFC3339")
		}
		to = t
	}
	return from, to, nil
}

func (h *Handler) CreateWindow(c echo.Context) error {
	var w AvailabilityWindow
	if err := c.Bind(&w); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	if err := h.svc.CreateWindow(ctx, auth.RoleFromContext(ctx), auth.ActorIDFromContext(ctx), &w); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, w)
}

func (h *Handler) UpdateWindow(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		StartTime time.Time `json:"start_time"`
		EndTime   time.Time `json:"end_time"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	w, err := h.svc.UpdateWindow(ctx, auth.RoleFromContext(ctx), auth.ActorIDFromContext(ctx), id, body.StartTime, body.EndTime)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, w)
}

func (h *Handler) DeleteWindow(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	if err := h.svc.DeleteWindow(ctx, auth.RoleFromContext(ctx), auth.ActorIDFromContext(ctx), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListWindows(c echo.Context) error {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	from, to, err := rangeParams(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListWindows(c.Request().Context(), doctorID, from, to, pg.Limit(), pg.Offset())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) DaySlots(c echo.Context) error {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	date := time.Now().UTC()
	if v := c.QueryParam("date"); v != "" {
		date, err = time.Parse("2006-01-02", v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		}
	}
	slots, err := h.svc.DaySlots(c.Request().Context(), doctorID, date)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, slots)
}

func (h *Handler) Summarize(c echo.Context) error {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	from, to, err := rangeParams(c)
	if err != nil {
		return err
	}
	sum, err := h.svc.Summarize(c.Request().Context(), doctorID, from, to)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sum)
}
