package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oncocare/oncocare/internal/domain/treatment"
)

// TreatmentReader is the slice of the treatment service the report
// generator needs. *treatment.Service satisfies it.
type TreatmentReader interface {
	GetPlan(ctx context.Context, id uuid.UUID) (*treatment.TreatmentPlan, error)
	SearchPlans(ctx context.Context, f treatment.PlanFilter, limit, offset int) ([]*treatment.TreatmentPlan, int, error)
	ListSessions(ctx context.Context, planID uuid.UUID) ([]*treatment.TreatmentSession, error)
}

// patientPlanLimit caps how many of a patient's plans one report resolves.
const patientPlanLimit = 100

// Request selects what a report covers: an explicit set of plans, a
// patient (resolving to all their plans), or both, optionally scoped to a
// session date range.
type Request struct {
	Type      Type
	PlanIDs   []uuid.UUID
	PatientID *uuid.UUID
	Range     *DateRange
}

// Service generates reports by aggregating over plans and their sessions.
// Every report type is a thin read-only projection; generating a report
// mutates nothing.
type Service struct {
	treatments TreatmentReader
}

func NewService(treatments TreatmentReader) *Service {
	return &Service{treatments: treatments}
}

// Generate builds the requested report, one section per covered plan.
func (s *Service) Generate(ctx context.Context, req Request, generatedBy string) (*Report, error) {
	if !req.Type.Valid() {
		return nil, &UnsupportedTypeError{Requested: string(req.Type)}
	}
	if req.Range != nil && req.Range.From != nil && req.Range.To != nil && req.Range.To.Before(*req.Range.From) {
		return nil, &treatment.ValidationError{Field: "date_range", Reason: "to precedes from"}
	}

	planIDs, err := s.resolvePlanIDs(ctx, req)
	if err != nil {
		return nil, err
	}

	r := &Report{
		ID:          uuid.New(),
		Type:        req.Type,
		PlanIDs:     planIDs,
		DateRange:   req.Range,
		GeneratedAt: time.Now().UTC(),
		GeneratedBy: generatedBy,
	}

	for _, id := range planIDs {
		plan, err := s.treatments.GetPlan(ctx, id)
		if err != nil {
			return nil, err
		}
		sessions, err := s.treatments.ListSessions(ctx, id)
		if err != nil {
			return nil, err
		}
		sessions = filterByRange(sessions, req.Range)

		sec := Section{PlanID: plan.ID, PatientID: plan.PatientID}
		switch req.Type {
		case TypeTreatmentSummary:
			s.treatmentSummary(r, &sec, plan, sessions)
		case TypeProgressReport:
			s.progressReport(r, &sec, plan, sessions)
		case TypeOutcomeAnalysis:
			s.outcomeAnalysis(r, &sec, plan, sessions)
		case TypeQualityMetrics:
			metrics := treatment.ComputeQualityMetrics(plan, sessions)
			s.qualityMetrics(r, &sec, plan, &metrics)
		case TypeAdverseEvents:
			s.adverseEvents(r, &sec, plan, sessions)
		}
		r.Sections = append(r.Sections, sec)
	}

	if len(r.Sections) == 1 {
		r.Summary = r.Sections[0].Summary
	} else {
		r.Summary = fmt.Sprintf("%s across %d treatment plans", reportLabel(req.Type), len(r.Sections))
	}
	return r, nil
}

// resolvePlanIDs merges the explicit plan ids with the patient's plans,
// deduplicated in request order.
func (s *Service) resolvePlanIDs(ctx context.Context, req Request) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, id := range req.PlanIDs {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	if req.PatientID != nil {
		plans, _, err := s.treatments.SearchPlans(ctx, treatment.PlanFilter{PatientID: req.PatientID}, patientPlanLimit, 0)
		if err != nil {
			return nil, err
		}
		for _, p := range plans {
			if !seen[p.ID] {
				seen[p.ID] = true
				ids = append(ids, p.ID)
			}
		}
		if len(ids) == 0 {
			return nil, &treatment.NotFoundError{Entity: "treatment plans for patient", ID: *req.PatientID}
		}
	}

	if len(ids) == 0 {
		return nil, &treatment.ValidationError{Field: "plan_ids", Reason: "at least one plan or patient id is required"}
	}
	return ids, nil
}

func filterByRange(sessions []*treatment.TreatmentSession, dr *DateRange) []*treatment.TreatmentSession {
	if dr == nil || (dr.From == nil && dr.To == nil) {
		return sessions
	}
	var out []*treatment.TreatmentSession
	for _, s := range sessions {
		if dr.From != nil && s.SessionDate.Before(*dr.From) {
			continue
		}
		if dr.To != nil && s.SessionDate.After(*dr.To) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func reportLabel(t Type) string {
	switch t {
	case TypeTreatmentSummary:
		return "treatment summary"
	case TypeProgressReport:
		return "progress report"
	case TypeOutcomeAnalysis:
		return "outcome analysis"
	case TypeQualityMetrics:
		return "quality metrics"
	case TypeAdverseEvents:
		return "adverse events"
	}
	return string(t)
}

type sessionBreakdown struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Scheduled  int `json:"scheduled"`
	InProgress int `json:"in_progress"`
	Missed     int `json:"missed"`
	Cancelled  int `json:"cancelled"`
	Postponed  int `json:"postponed"`
}

func breakdown(sessions []*treatment.TreatmentSession) sessionBreakdown {
	b := sessionBreakdown{Total: len(sessions)}
	for _, s := range sessions {
		switch s.Status {
		case treatment.SessionCompleted:
			b.Completed++
		case treatment.SessionScheduled:
			b.Scheduled++
		case treatment.SessionInProgress:
			b.InProgress++
		case treatment.SessionMissed:
			b.Missed++
		case treatment.SessionCancelled:
			b.Cancelled++
		case treatment.SessionPostponed:
			b.Postponed++
		}
	}
	return b
}

type treatmentSummaryData struct {
	CancerSite      string                       `json:"cancer_site"`
	Stage           string                       `json:"stage,omitempty"`
	Histology       string                       `json:"histology,omitempty"`
	Intent          treatment.TreatmentIntent    `json:"intent"`
	Modalities      []treatment.Modality         `json:"modalities"`
	Protocol        *treatment.ProtocolReference `json:"protocol,omitempty"`
	Team            treatment.CareTeam           `json:"team"`
	Status          treatment.PlanStatus         `json:"status"`
	Phase           treatment.PlanPhase          `json:"phase"`
	StartDate       time.Time                    `json:"start_date"`
	ActualEndDate   *time.Time                   `json:"actual_end_date,omitempty"`
	TotalCycles     *int                         `json:"total_cycles,omitempty"`
	CompletedCycles int                          `json:"completed_cycles"`
	Adherence       treatment.Adherence          `json:"adherence"`
	Sessions        sessionBreakdown             `json:"sessions"`
}

func (s *Service) treatmentSummary(r *Report, sec *Section, plan *treatment.TreatmentPlan, sessions []*treatment.TreatmentSession) {
	b := breakdown(sessions)
	sec.Data = treatmentSummaryData{
		CancerSite: plan.CancerSite, Stage: plan.Stage, Histology: plan.Histology,
		Intent: plan.Intent, Modalities: plan.Modalities, Protocol: plan.Protocol,
		Team: plan.Team, Status: plan.Status, Phase: plan.Phase,
		StartDate: plan.StartDate, ActualEndDate: plan.ActualEndDate,
		TotalCycles: plan.TotalCycles, CompletedCycles: plan.CompletedCycles,
		Adherence: plan.Adherence, Sessions: b,
	}
	sec.Summary = fmt.Sprintf("%s treatment plan for %s (%s), %d of %d sessions completed",
		plan.Intent, plan.CancerSite, plan.Status, b.Completed, b.Total)
	r.Insights = append(r.Insights,
		fmt.Sprintf("treatment is in the %s phase with %s adherence", plan.Phase, plan.Adherence.Score))
	if plan.TotalCycles != nil {
		r.Insights = append(r.Insights,
			fmt.Sprintf("%d of %d planned cycles completed", plan.CompletedCycles, *plan.TotalCycles))
	}
}

type progressData struct {
	Status            treatment.PlanStatus `json:"status"`
	Phase             treatment.PlanPhase  `json:"phase"`
	Sessions          sessionBreakdown     `json:"sessions"`
	CompletionPercent float64              `json:"completion_percent"`
	Adherence         treatment.Adherence  `json:"adherence"`
	NextSessionDate   *time.Time           `json:"next_session_date,omitempty"`
}

func (s *Service) progressReport(r *Report, sec *Section, plan *treatment.TreatmentPlan, sessions []*treatment.TreatmentSession) {
	b := breakdown(sessions)
	var pct float64
	if plan.TotalCycles != nil && *plan.TotalCycles > 0 {
		pct = 100 * float64(b.Completed) / float64(*plan.TotalCycles*treatment.SessionsPerCycle)
	} else if b.Total > 0 {
		pct = 100 * float64(b.Completed) / float64(b.Total)
	}

	var next *time.Time
	for _, sess := range sessions {
		if sess.Status == treatment.SessionScheduled {
			d := sess.SessionDate
			if next == nil || d.Before(*next) {
				next = &d
			}
		}
	}

	sec.Data = progressData{
		Status: plan.Status, Phase: plan.Phase, Sessions: b,
		CompletionPercent: pct, Adherence: plan.Adherence, NextSessionDate: next,
	}
	sec.Summary = fmt.Sprintf("treatment %.0f%% complete, adherence %d%% (%s)",
		pct, plan.Adherence.OverallAdherence, plan.Adherence.Score)
	if plan.Adherence.Score == treatment.AdherenceFair || plan.Adherence.Score == treatment.AdherencePoor {
		r.Insights = append(r.Insights, "adherence is below target")
		r.Recommendations = append(r.Recommendations,
			"review missed sessions with the patient and consider scheduling support")
	}
	if b.Missed > 0 {
		r.Insights = append(r.Insights, fmt.Sprintf("%d sessions were missed", b.Missed))
	}
}

type outcomeData struct {
	Status          treatment.PlanStatus          `json:"status"`
	StartDate       time.Time                     `json:"start_date"`
	ActualEndDate   *time.Time                    `json:"actual_end_date,omitempty"`
	Response        *treatment.ResponseAssessment `json:"response,omitempty"`
	Adherence       treatment.Adherence           `json:"adherence"`
	CompletedCycles int                           `json:"completed_cycles"`
	MaxToxicity     int                           `json:"max_toxicity_grade"`
	SevereSessions  int                           `json:"sessions_with_severe_toxicity"`
}

func (s *Service) outcomeAnalysis(r *Report, sec *Section, plan *treatment.TreatmentPlan, sessions []*treatment.TreatmentSession) {
	maxGrade, severe := 0, 0
	for _, sess := range sessions {
		if sess.PostAssessment == nil {
			continue
		}
		g := sess.PostAssessment.MaxGrade()
		if g > maxGrade {
			maxGrade = g
		}
		if g >= 3 {
			severe++
		}
	}
	sec.Data = outcomeData{
		Status: plan.Status, StartDate: plan.StartDate, ActualEndDate: plan.ActualEndDate,
		Response: plan.Response, Adherence: plan.Adherence,
		CompletedCycles: plan.CompletedCycles, MaxToxicity: maxGrade, SevereSessions: severe,
	}
	if plan.Response != nil {
		sec.Summary = fmt.Sprintf("treatment outcome: %s (%s)", plan.Response.Response, plan.Status)
	} else {
		sec.Summary = fmt.Sprintf("treatment outcome pending, plan is %s", plan.Status)
		r.Insights = append(r.Insights, "no response assessment has been recorded yet")
	}
	if severe > 0 {
		r.Insights = append(r.Insights,
			fmt.Sprintf("severe toxicity (grade >= 3) observed in %d sessions", severe))
	}
}

func (s *Service) qualityMetrics(r *Report, sec *Section, plan *treatment.TreatmentPlan, m *treatment.QualityMetrics) {
	sec.Data = m
	sec.Summary = fmt.Sprintf("guideline concordance %d, dose intensity %.1f%%, toxicity rate %.1f%%",
		m.GuidelineConcordance, m.DoseIntensity, m.ToxicityRate)
	if !m.MultidisciplinaryReview {
		r.Insights = append(r.Insights, "plan has not had multidisciplinary review")
		r.Recommendations = append(r.Recommendations, "present the case at a tumor board")
	}
	if m.TimeToTreatmentDays > 30 {
		r.Insights = append(r.Insights,
			fmt.Sprintf("time to treatment was %d days", m.TimeToTreatmentDays))
	}
	if m.ToxicityRate > 0 {
		r.Insights = append(r.Insights,
			fmt.Sprintf("severe toxicity occurred in %.1f%% of sessions", m.ToxicityRate))
	}
}

type adverseEvent struct {
	SessionID     uuid.UUID `json:"session_id"`
	SessionNumber int       `json:"session_number"`
	SessionDate   time.Time `json:"session_date"`
	Type          string    `json:"type"`
	Grade         int       `json:"grade"`
	Intervention  string    `json:"intervention,omitempty"`
}

type adverseEventsData struct {
	Events      []adverseEvent `json:"events"`
	SevereCount int            `json:"severe_count"`
}

func (s *Service) adverseEvents(r *Report, sec *Section, plan *treatment.TreatmentPlan, sessions []*treatment.TreatmentSession) {
	data := adverseEventsData{Events: []adverseEvent{}}
	for _, sess := range sessions {
		if sess.PostAssessment == nil {
			continue
		}
		for _, tox := range sess.PostAssessment.Toxicities {
			data.Events = append(data.Events, adverseEvent{
				SessionID: sess.ID, SessionNumber: sess.SessionNumber,
				SessionDate: sess.SessionDate, Type: tox.Type,
				Grade: tox.Grade, Intervention: tox.Intervention,
			})
			if tox.Grade >= 3 {
				data.SevereCount++
			}
		}
	}
	sec.Data = data
	sec.Summary = fmt.Sprintf("%d adverse events recorded, %d severe", len(data.Events), data.SevereCount)
	if data.SevereCount > 0 {
		r.Insights = append(r.Insights,
			fmt.Sprintf("%d events at grade 3 or above", data.SevereCount))
		r.Recommendations = append(r.Recommendations,
			"evaluate dose reduction or supportive care for recurring severe toxicities")
	}
}
