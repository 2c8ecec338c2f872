package directory

import (
	"net/http"

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
	// Doctors are browsable by every authenticated role so patients can
	// pick a provider. Patient records stay staff-only.
	doctorRead := api.Group("", auth.RequireRole("admin", "doctor", "patient"))
	doctorRead.GET("/doctors", h.ListDoctors)
	doctorRead.GET("/doctors/:id", h.GetDoctor)

	patientRead := api.Group("", auth.RequireRole("admin", "doctor"))
	patientRead.GET("/patients", h.ListPatients)
	patientRead.GET("/patients/:id", h.GetPatient)

	adminGroup := api.Group("", auth.RequireRole("admin"))
	adminGroup.POST("/doctors", h.CreateDoctor)
	adminGroup.POST("/doctors/:id/deactivate", h.DeactivateDoctor)
	adminGroup.POST("/doctors/:id/reactivate", h.ReactivateDoctor)
	adminGroup.POST("/patients", h.CreatePatient)
	adminGroup.POST("/patients/:id/deactivate", h.DeactivatePatient)
	adminGroup.POST("/patients/:id/reactivate", h.ReactivatePatient)
}

func httpError(err error) error {
	return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.MessageOf(err))
}

// -- Doctor Handlers --

func (h *Handler) CreateDoctor(c echo.Context) error {
	var d Doctor
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateDoctor(c.Request().Context(), &d); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{}
	for _, k := range []string{"specialty", "active"} {
		if v := c.QueryParam(k); v != "" {
			params[k] = v
		}
	}
	items, total, err := h.svc.ListDoctors(c.Request().Context(), params, pg.Limit(), pg.Offset())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) DeactivateDoctor(c echo.Context) error {
	return h.setDoctorActive(c, false)
}

func (h *Handler) ReactivateDoctor(c echo.Context) error {
	return h.setDoctorActive(c, true)
}

func (h *Handler) setDoctorActive(c echo.Context, active bool) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.SetDoctorActive(c.Request().Context(), id, active)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

// -- Patient Handlers --

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreatePatient(c.Request().Context(), &p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{}
	if v := c.QueryParam("active"); v != "" {
		params["active"] = v
	}
	items, total, err := h.svc.ListPatients(c.Request().Context(), params, pg.Limit(), pg.Offset())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) DeactivatePatient(c echo.Context) error {
	return h.setPatientActive(c, false)
}

func (h *Handler) ReactivatePatient(c echo.Context) error {
	return h.setPatientActive(c, true)
}

func (h *Handler) setPatientActive(c echo.Context, active bool) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.SetPatientActive(c.Request().Context(), id, active)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}
