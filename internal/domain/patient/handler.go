package patient

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/patient-service/internal/platform/auth"
	"github.com/ehr/patient-service/pkg/pagination"
	"github.com/ehr/patient-service/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints: admin, registrar, clinician, nurse
	readGroup := api.Group("", auth.RequireRole("admin", "registrar", "clinician", "nurse"))
	readGroup.GET("/patients", h.SearchPatients)
	readGroup.GET("/patients/:patientId", h.GetPatient)

	// Write endpoints: admin, registrar
	writeGroup := api.Group("", auth.RequireRole("admin", "registrar"))
	writeGroup.POST("/patients", h.RegisterPatient)
	writeGroup.PUT("/patients/:patientId", h.UpdatePatient)
	writeGroup.PATCH("/patients/:patientId/deactivate", h.DeactivatePatient)
	writeGroup.PATCH("/patients/:patientId/activate", h.ActivatePatient)
}

func (h *Handler) RegisterPatient(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	res, err := h.svc.Register(c.Request().Context(), &req, auth.ActorID(c))
	if err != nil {
		return toHTTPError(err, "")
	}
	return c.JSON(http.StatusCreated, response.OK("Patient registered successfully",
		h.svc.Response(res.Patient, res.DuplicatePhoneWarning)))
}

func (h *Handler) GetPatient(c echo.Context) error {
	id := PatientID(c.Param("patientId"))
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err, id)
	}
	return c.JSON(http.StatusOK, response.OK("", h.svc.Response(p, false)))
}

func (h *Handler) SearchPatients(c echo.Context) error {
	criteria := SearchCriteria{
		Search:     c.QueryParam("search"),
		Status:     StatusFilter(strings.ToUpper(c.QueryParam("status"))),
		Gender:     Gender(strings.ToUpper(c.QueryParam("gender"))),
		BloodGroup: BloodGroup(strings.ToUpper(c.QueryParam("bloodGroup"))),
		Page:       pagination.FromContext(c),
	}
	page, err := h.svc.Search(c.Request().Context(), criteria)
	if err != nil {
		return toHTTPError(err, "")
	}
	return c.JSON(http.StatusOK, response.OK("", page))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id := PatientID(c.Param("patientId"))
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	res, err := h.svc.Update(c.Request().Context(), id, &req, auth.ActorID(c))
	if err != nil {
		return toHTTPError(err, id)
	}
	return c.JSON(http.StatusOK, response.OK("Patient updated successfully",
		h.svc.Response(res.Patient, res.DuplicatePhoneWarning)))
}

func (h *Handler) DeactivatePatient(c echo.Context) error {
	id := PatientID(c.Param("patientId"))
	p, err := h.svc.Deactivate(c.Request().Context(), id, auth.ActorID(c))
	if err != nil {
		return toHTTPError(err, id)
	}
	return c.JSON(http.StatusOK, response.OK("Patient deactivated successfully", h.svc.Response(p, false)))
}

func (h *Handler) ActivatePatient(c echo.Context) error {
	id := PatientID(c.Param("patientId"))
	p, err := h.svc.Activate(c.Request().Context(), id, auth.ActorID(c))
	if err != nil {
		return toHTTPError(err, id)
	}
	return c.JSON(http.StatusOK, response.OK("Patient activated successfully", h.svc.Response(p, false)))
}

func badRequest(err error) *echo.HTTPError {
	msg := "Malformed request body"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
	}
	return echo.NewHTTPError(http.StatusBadRequest, msg).WithInternal(err)
}

// toHTTPError maps service errors onto statuses and client-safe messages.
// Anything unrecognised becomes a 500 whose cause is only logged.
func toHTTPError(err error, id PatientID) *echo.HTTPError {
	var (
		ve *ValidationError
		sc *StatusConflictError
	)
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, response.ErrorWithData("Validation failed", ve.Fields))
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("Patient not found: %s", id))
	case errors.As(err, &sc):
		return echo.NewHTTPError(http.StatusConflict,
			fmt.Sprintf("Patient %s is already %s", sc.ID, strings.ToLower(string(sc.Status))))
	case errors.Is(err, ErrConcurrentModification):
		return echo.NewHTTPError(http.StatusConflict, "The patient record was modified concurrently. Please retry.")
	case errors.Is(err, ErrAllocationExhausted):
		return echo.NewHTTPError(http.StatusConflict,
			"Could not allocate a patient ID due to concurrent registrations. Please retry.").WithInternal(err)
	case errors.Is(err, ErrCounterExhausted):
		return echo.NewHTTPError(http.StatusServiceUnavailable,
			"Patient ID capacity for the current year is exhausted.").WithInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError).WithInternal(err)
	}
}
