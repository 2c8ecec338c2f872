package booking

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medsched/medsched/internal/platform/auth"
	"github.com/medsched/medsched/pkg/apperr"
	"github.com/medsched/medsched/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "doctor", "patient"))
	g.POST("/appointments", h.Book)
	g.GET("/appointments", h.List)
	g.GET("/appointments/statistics", h.Statistics)
	g.GET("/appointments/:id", h.Get)
	g.PUT("/appointments/:id", h.Update)
	g.POST("/appointments/:id/cancel", h.Cancel)
	g.POST("/appointments/:id/complete", h.Complete)

	staff := api.Group("", auth.RequireRole("admin", "doctor"))
	staff.POST("/appointments/:id/no-show", h.MarkNoShow)
}

func httpError(err error) error {
	return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.MessageOf(err))
}

// actor resolves the authenticated caller. The role string was set by
// the auth middleware, so an unparseable role means a token minted for
// a role this API does not serve.
func actor(c echo.Context) (uuid.UUID, Role, error) {
	ctx := c.Request().Context()
	role, err := ParseRole(auth.RoleFromContext(ctx))
	if err != nil {
		return uuid.Nil, "", echo.NewHTTPError(http.StatusForbidden, "unrecognized role")
	}
	return auth.ActorIDFromContext(ctx), role, nil
}

func (h *Handler) Book(c echo.Context) error {
	var a Appointment
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Book(c.Request().Context(), &a); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actorID, role, err := actor(c)
	if err != nil {
		return err
	}
	var patch UpdatePatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Update(c.Request().Context(), id, actorID, role, patch)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actorID, role, err := actor(c)
	if err != nil {
		return err
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Cancel(c.Request().Context(), id, actorID, role, body.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Complete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actorID, role, err := actor(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Complete(c.Request().Context(), id, actorID, role)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) MarkNoShow(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actorID, role, err := actor(c)
	if err != nil {
		return err
	}
	a, err := h.svc.MarkNoShow(c.Request().Context(), id, actorID, role)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) List(c echo.Context) error {
	params := map[string]string{}
	for _, key := range []string{"doctor_id", "patient_id"} {
		if v := c.QueryParam(key); v != "" {
			if _, err := uuid.Parse(v); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid "+key)
			}
			params[key] = v
		}
	}
	if v := c.QueryParam("status"); v != "" {
		params["status"] = v
	}
	for _, key := range []string{"from", "to"} {
		if v := c.QueryParam(key); v != "" {
			if _, err := time.Parse(time.RFC3339, v); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid "+key+", expected RFC3339")
			}
			params[key] = v
		}
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), params, pg.Limit(), pg.Offset())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Statistics(c echo.Context) error {
	params := map[string]string{}
	if v := c.QueryParam("doctor_id"); v != "" {
		if _, err := uuid.Parse(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
		}
		params["doctor_id"] = v
	}
	for _, key := range []string{"from", "to"} {
		if v := c.QueryParam(key); v != "" {
			if _, err := time.Parse(time.RFC3339, v); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid "+key+", expected RFC3339")
			}
			params[key] = v
		}
	}
	stats, err := h.svc.Statistics(c.Request().Context(), params)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, stats)
}
