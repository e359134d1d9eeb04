package report

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/oncocare/oncocare/internal/domain/treatment"
	"github.com/oncocare/oncocare/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/reports", auth.RequireRole("admin", "oncologist", "nurse"))
	g.POST("", h.GenerateReport)
}

type generateRequest struct {
	Type      Type        `json:"type"`
	PlanIDs   []uuid.UUID `json:"plan_ids"`
	PatientID *uuid.UUID  `json:"patient_id"`
	DateRange *DateRange  `json:"date_range"`
}

func (h *Handler) GenerateReport(c echo.Context) error {
	var req generateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.PlanIDs) == 0 && req.PatientID == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "plan_ids or patient_id is required")
	}

	actor := auth.UserIDFromContext(c.Request().Context())
	r, err := h.svc.Generate(c.Request().Context(), Request{
		Type:      req.Type,
		PlanIDs:   req.PlanIDs,
		PatientID: req.PatientID,
		Range:     req.DateRange,
	}, actor)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, r)
	case errors.Is(err, ErrUnsupportedType):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, treatment.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, treatment.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
