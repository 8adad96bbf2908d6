package patient

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ehr/neonatal/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients", h.ListPatients)
	api.GET("/patients/:id", h.GetPatient)
	api.GET("/patients/:id/summary", h.GetSummary)

	api.POST("/patients", h.CreatePatient)
	api.PUT("/patients/:id", h.UpdatePatient)
	api.DELETE("/patients/:id", h.DeletePatient)
}

// CreatePatient binds the body over a freshly seeded draft, so omitted birth
// and screening dates default to the current instant.
func (h *Handler) CreatePatient(c echo.Context) error {
	d := h.svc.NewDraft()
	if err := c.Bind(&d); err != nil {
		return err
	}
	res, err := h.svc.Intake(c.Request().Context(), d)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) GetSummary(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	view, err := h.svc.Detail(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, err := h.svc.ListView(c.Request().Context(), c.QueryParam("clinical_record_number"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Window(items, pg), len(items), pg.Limit, pg.Offset))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var d Draft
	if err := c.Bind(&d); err != nil {
		return err
	}
	rec, err := h.svc.Update(c.Request().Context(), id, d)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func redirectBody(r Redirect) echo.Map {
	return echo.Map{"path": r.Path, "after_ms": r.Delay.Milliseconds()}
}

// httpError maps service errors onto status codes. Redirect hints travel in
// the body so a client can reproduce the delayed navigation.
func httpError(err error) error {
	var (
		verr        *ValidationError
		notFound    *NotFoundError
		unconfirmed *UnconfirmedError
	)
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, echo.Map{
			"message": MsgInvalidSubmission,
			"fields":  verr.Fields,
		}).SetInternal(err)
	case errors.As(err, &notFound):
		return echo.NewHTTPError(http.StatusNotFound, echo.Map{
			"message":  MsgNotFound,
			"redirect": redirectBody(notFound.Redirect),
		})
	case errors.As(err, &unconfirmed):
		return echo.NewHTTPError(http.StatusInternalServerError, echo.Map{
			"message":  MsgConfirmFailed,
			"id":       unconfirmed.ID,
			"redirect": redirectBody(unconfirmed.Redirect),
		})
	case errors.Is(err, ErrDuplicateClinicalRecord):
		return echo.NewHTTPError(http.StatusConflict, MsgDuplicateRecord)
	case errors.Is(err, ErrStorageUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "patient storage unavailable").SetInternal(err)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}
