package treatment

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/oncocare/oncocare/internal/platform/auth"
	"github.com/oncocare/oncocare/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	role := auth.RequireRole("admin", "oncologist", "nurse")

	read := api.Group("", role)
	read.GET("/treatment-plans", h.ListPlans)
	read.GET("/treatment-plans/:id", h.GetPlan)
	read.GET("/treatment-plans/:id/quality-metrics", h.QualityMetrics)
	read.GET("/treatment-plans/:id/sessions", h.ListSessions)
	read.GET("/treatment-sessions/:id", h.GetSession)

	write := api.Group("", role)
	write.POST("/treatment-plans", h.CreatePlan)
	write.PUT("/treatment-plans/:id", h.UpdatePlan)
	write.DELETE("/treatment-plans/:id", h.DeletePlan)
	write.POST("/treatment-plans/:id/activate", h.ActivatePlan)
	write.POST("/treatment-plans/:id/complete", h.CompletePlan)
	write.POST("/treatment-plans/:id/hold", h.HoldPlan)
	write.POST("/treatment-plans/:id/resume", h.ResumePlan)
	write.POST("/treatment-plans/:id/discontinue", h.DiscontinuePlan)
	write.POST("/treatment-plans/:id/cancel", h.CancelPlan)
	write.POST("/treatment-plans/:id/response", h.AttachResponse)
	write.POST("/treatment-plans/:id/sessions", h.CreateSession)
	write.POST("/treatment-sessions/:id/start", h.StartSession)
	write.POST("/treatment-sessions/:id/complete", h.CompleteSession)
	write.POST("/treatment-sessions/:id/cancel", h.markSession(SessionCancelled))
	write.POST("/treatment-sessions/:id/miss", h.markSession(SessionMissed))
	write.POST("/treatment-sessions/:id/postpone", h.markSession(SessionPostponed))
	write.POST("/treatment-sessions/:id/reschedule", h.RescheduleSession)
}

// httpError maps domain errors onto HTTP status codes. Unknown errors stay
// opaque 500s so internals never leak to clients.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidState):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func planID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func actor(c echo.Context) string {
	return auth.UserIDFromContext(c.Request().Context())
}

// -- Plans --

func (h *Handler) CreatePlan(c echo.Context) error {
	var p TreatmentPlan
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreatePlan(c.Request().Context(), &p, actor(c)); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPlan(c echo.Context) error {
	id, err := planID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPlan(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPlans(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.SearchPlans(c.Request().Context(), f, pg.Limit, pg.Offset())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func filterFromQuery(c echo.Context) (PlanFilter, error) {
	var f PlanFilter
	if v := c.QueryParam("patient_id"); v != "" {
		pid, err := uuid.Parse(v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &pid
	}
	f.Status = PlanStatus(c.QueryParam("status"))
	f.Intent = TreatmentIntent(c.QueryParam("intent"))
	f.ModalityType = ModalityType(c.QueryParam("modality"))
	f.Oncologist = c.QueryParam("oncologist")
	if v := c.QueryParam("start_date_from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid start_date_from")
		}
		f.StartDateFrom = &t
	}
	if v := c.QueryParam("start_date_to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid start_date_to")
		}
		f.StartDateTo = &t
	}
	f.SortBy = c.QueryParam("sort_by")
	f.SortOrder = c.QueryParam("sort_order")
	return f, nil
}

type updatePlanRequest struct {
	CancerSite      *string            `json:"cancer_site"`
	Stage           *string            `json:"stage"`
	Histology       *string            `json:"histology"`
	Modalities      []Modality         `json:"modalities"`
	Intent          *TreatmentIntent   `json:"intent"`
	Protocol        *ProtocolReference `json:"protocol"`
	Team            *CareTeam          `json:"team"`
	StartDate       *time.Time         `json:"start_date"`
	ExpectedEndDate *time.Time         `json:"expected_end_date"`
	TotalCycles     *int               `json:"total_cycles"`
	Status          *PlanStatus        `json:"status"`
	Phase           *PlanPhase         `json:"phase"`
}

func (h *Handler) UpdatePlan(c echo.Context) error {
	id, err := planID(c)
	if err != nil {
		return err
	}
	var req updatePlanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdatePlan(c.Request().Context(), id, PlanUpdate(req), actor(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePlan(c echo.Context) error {
	id, err := planID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePlan(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ActivatePlan(c echo.Context) error {
	return h.planTransition(c, h.svc.ActivatePlan)
}

func (h *Handler) CompletePlan(c echo.Context) error {
	return h.planTransition(c, h.svc.CompletePlan)
}

func (h *Handler) HoldPlan(c echo.Context) error {
	return h.planTransition(c, h.svc.HoldPlan)
}

func (h *Handler) ResumePlan(c echo.Context) error {
	return h.planTransition(c, h.svc.ResumePlan)
}

func (h *Handler) DiscontinuePlan(c echo.Context) error {
	return h.planTransition(c, h.svc.DiscontinuePlan)
}

func (h *Handler) CancelPlan(c echo.Context) error {
	return h.planTransition(c, h.svc.CancelPlan)
}

func (h *Handler) planTransition(c echo.Context, fn func(ctx context.Context, id uuid.UUID, actor string) (*TreatmentPlan, error)) error {
	id, err := planID(c)
	if err != nil {
		return err
	}
	p, err := fn(c.Request().Context(), id, actor(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) AttachResponse(c echo.Context) error {
	id, err := planID(c)
	if err != nil {
		return err
	}
	var ra ResponseAssessment
	if err := c.Bind(&ra); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.AttachResponseAssessment(c.Request().Context(), id, ra, actor(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) QualityMetrics(c echo.Context) error {
	id, err := planID(c)
	if err != nil {
		return err
	}
	m, err := h.svc.ComputeQualityMetricsForPlan(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m)
}

// -- Sessions --

func (h *Handler) CreateSession(c echo.Context) error {
	id, err := planID(c)
	if err != nil {
		return err
	}
	var s TreatmentSession
	if err := c.Bind(&s); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateSession(c.Request().Context(), id, &s, actor(c)); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *Handler) ListSessions(c echo.Context) error {
	id, err := planID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListSessions(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetSession(c echo.Context) error {
	id, err := planID(c)
	if err != nil {
		return err
	}
	s, err := h.svc.GetSession(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) StartSession(c echo.Context) error {
	id, err := planID(c)
	if err != nil {
		return err
	}
	s, err := h.svc.StartSession(c.Request().Context(), id, actor(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) CompleteSession(c echo.Context) error {
	id, err := planID(c)
	if err != nil {
		return err
	}
	var post PostAssessment
	if err := c.Bind(&post); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s, err := h.svc.CompleteSession(c.Request().Context(), id, post, actor(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) markSession(to SessionStatus) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := planID(c)
		if err != nil {
			return err
		}
		s, err := h.svc.MarkSession(c.Request().Context(), id, to, actor(c))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, s)
	}
}

type rescheduleRequest struct {
	SessionDate time.Time `json:"session_date"`
}

func (h *Handler) RescheduleSession(c echo.Context) error {
	id, err := planID(c)
	if err != nil {
		return err
	}
	var req rescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s, err := h.svc.RescheduleSession(c.Request().Context(), id, req.SessionDate, actor(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, s)
}
