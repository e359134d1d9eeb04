package treatment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service owns the treatment plan and treatment session lifecycles.
type Service struct {
	plans    PlanRepository
	sessions SessionRepository
}

func NewService(plans PlanRepository, sessions SessionRepository) *Service {
	return &Service{plans: plans, sessions: sessions}
}

// -- Plans --

// CreatePlan validates the plan, assigns generated ids to it and to every
// nested entry, applies creation defaults and persists it. A patient with an
// open (planned/active) plan gets a ConflictError.
func (s *Service) CreatePlan(ctx context.Context, p *TreatmentPlan, creator string) error {
	if err := validateNewPlan(p); err != nil {
		return err
	}

	now := time.Now().UTC()
	p.ID = uuid.New()
	for i := range p.Modalities {
		p.Modalities[i].ID = uuid.New()
	}
	assignBaselineIDs(&p.Baseline)

	p.Status = PlanPlanned
	p.Phase = PhaseInitial
	p.CompletedCycles = 0
	p.Adherence = DefaultAdherence()
	p.ActualEndDate = nil
	p.Response = nil
	p.Active = true
	p.CreatedBy = creator
	p.UpdatedBy = creator
	p.CreatedAt = now
	p.UpdatedAt = now

	return s.plans.Create(ctx, p)
}

func (s *Service) GetPlan(ctx context.Context, id uuid.UUID) (*TreatmentPlan, error) {
	return s.plans.GetByID(ctx, id)
}

func (s *Service) SearchPlans(ctx context.Context, f PlanFilter, limit, offset int) ([]*TreatmentPlan, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown value %q", f.Status)}
	}
	if f.Intent != "" && !f.Intent.Valid() {
		return nil, 0, &ValidationError{Field: "intent", Reason: fmt.Sprintf("unknown value %q", f.Intent)}
	}
	if f.ModalityType != "" && !f.ModalityType.Valid() {
		return nil, 0, &ValidationError{Field: "modality_type", Reason: fmt.Sprintf("unknown value %q", f.ModalityType)}
	}
	return s.plans.Search(ctx, f, limit, offset)
}

// PlanUpdate carries the fields UpdatePlan may merge. Nil fields are left
// untouched. Status edits pass through without transition checks; callers
// that want guarded transitions use Activate/Complete and friends.
type PlanUpdate struct {
	CancerSite      *string
	Stage           *string
	Histology       *string
	Modalities      []Modality
	Intent          *TreatmentIntent
	Protocol        *ProtocolReference
	Team            *CareTeam
	StartDate       *time.Time
	ExpectedEndDate *time.Time
	TotalCycles     *int
	Status          *PlanStatus
	Phase           *PlanPhase
}

func (s *Service) UpdatePlan(ctx context.Context, id uuid.UUID, upd PlanUpdate, updater string) (*TreatmentPlan, error) {
	if upd.Intent != nil && !upd.Intent.Valid() {
		return nil, &ValidationError{Field: "intent", Reason: fmt.Sprintf("unknown value %q", *upd.Intent)}
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown value %q", *upd.Status)}
	}
	if upd.Phase != nil && !upd.Phase.Valid() {
		return nil, &ValidationError{Field: "phase", Reason: fmt.Sprintf("unknown value %q", *upd.Phase)}
	}
	for _, m := range upd.Modalities {
		if !m.Type.Valid() {
			return nil, &ValidationError{Field: "modalities", Reason: fmt.Sprintf("unknown modality type %q", m.Type)}
		}
	}

	p, err := s.plans.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := p.Status

	if upd.CancerSite != nil {
		p.CancerSite = *upd.CancerSite
	}
	if upd.Stage != nil {
		p.Stage = *upd.Stage
	}
	if upd.Histology != nil {
		p.Histology = *upd.Histology
	}
	if upd.Modalities != nil {
		for i := range upd.Modalities {
			if upd.Modalities[i].ID == uuid.Nil {
				upd.Modalities[i].ID = uuid.New()
			}
		}
		p.Modalities = upd.Modalities
	}
	if upd.Intent != nil {
		p.Intent = *upd.Intent
	}
	if upd.Protocol != nil {
		p.Protocol = upd.Protocol
	}
	if upd.Team != nil {
		p.Team = *upd.Team
	}
	if upd.StartDate != nil {
		p.StartDate = *upd.StartDate
	}
	if upd.ExpectedEndDate != nil {
		p.ExpectedEndDate = upd.ExpectedEndDate
	}
	if upd.TotalCycles != nil {
		p.TotalCycles = upd.TotalCycles
	}
	if upd.Status != nil {
		p.Status = *upd.Status
	}
	if upd.Phase != nil {
		p.Phase = *upd.Phase
	}
	p.UpdatedBy = updater
	p.UpdatedAt = time.Now().UTC()

	if err := s.plans.Update(ctx, p, prev); err != nil {
		return nil, err
	}
	return p, nil
}

// ActivatePlan moves a plan from planned to active.
func (s *Service) ActivatePlan(ctx context.Context, id uuid.UUID, actor string) (*TreatmentPlan, error) {
	return s.transitionPlan(ctx, id, actor, "activate", PlanPlanned, func(p *TreatmentPlan) {
		p.Status = PlanActive
	})
}

// CompletePlan moves a plan from active to completed, stamps the actual end
// date and closes out the cycle count.
func (s *Service) CompletePlan(ctx context.Context, id uuid.UUID, actor string) (*TreatmentPlan, error) {
	return s.transitionPlan(ctx, id, actor, "complete", PlanActive, func(p *TreatmentPlan) {
		now := time.Now().UTC()
		p.Status = PlanCompleted
		p.ActualEndDate = &now
		if p.TotalCycles != nil {
			p.CompletedCycles = *p.TotalCycles
		}
	})
}

// HoldPlan moves a plan from active to on_hold.
func (s *Service) HoldPlan(ctx context.Context, id uuid.UUID, actor string) (*TreatmentPlan, error) {
	return s.transitionPlan(ctx, id, actor, "hold", PlanActive, func(p *TreatmentPlan) {
		p.Status = PlanOnHold
	})
}

// ResumePlan moves a plan from on_hold back to active.
func (s *Service) ResumePlan(ctx context.Context, id uuid.UUID, actor string) (*TreatmentPlan, error) {
	return s.transitionPlan(ctx, id, actor, "resume", PlanOnHold, func(p *TreatmentPlan) {
		p.Status = PlanActive
	})
}

// DiscontinuePlan stops treatment early. Allowed from planned, active or on_hold.
func (s *Service) DiscontinuePlan(ctx context.Context, id uuid.UUID, actor string) (*TreatmentPlan, error) {
	return s.closePlan(ctx, id, actor, "discontinue", PlanDiscontinued)
}

// CancelPlan abandons a plan. Allowed from planned, active or on_hold.
func (s *Service) CancelPlan(ctx context.Context, id uuid.UUID, actor string) (*TreatmentPlan, error) {
	return s.closePlan(ctx, id, actor, "cancel", PlanCancelled)
}

func (s *Service) closePlan(ctx context.Context, id uuid.UUID, actor, verb string, to PlanStatus) (*TreatmentPlan, error) {
	p, err := s.plans.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch p.Status {
	case PlanPlanned, PlanActive, PlanOnHold:
	default:
		return nil, &InvalidStateError{Entity: "treatment plan", ID: id, Current: string(p.Status), Attempted: verb}
	}
	prev := p.Status
	now := time.Now().UTC()
	p.Status = to
	p.ActualEndDate = &now
	p.UpdatedBy = actor
	p.UpdatedAt = now
	if err := s.plans.Update(ctx, p, prev); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) transitionPlan(ctx context.Context, id uuid.UUID, actor, verb string, from PlanStatus, apply func(*TreatmentPlan)) (*TreatmentPlan, error) {
	p, err := s.plans.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != from {
		return nil, &InvalidStateError{Entity: "treatment plan", ID: id, Current: string(p.Status), Attempted: verb}
	}
	apply(p)
	p.UpdatedBy = actor
	p.UpdatedAt = time.Now().UTC()
	if err := s.plans.Update(ctx, p, from); err != nil {
		return nil, err
	}
	return p, nil
}

// AttachResponseAssessment records a response assessment on the plan.
func (s *Service) AttachResponseAssessment(ctx context.Context, id uuid.UUID, ra ResponseAssessment, actor string) (*TreatmentPlan, error) {
	if ra.Response == "" {
		return nil, &ValidationError{Field: "response", Reason: "is required"}
	}
	p, err := s.plans.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ra.AssessedAt.IsZero() {
		ra.AssessedAt = time.Now().UTC()
	}
	prev := p.Status
	p.Response = &ra
	p.UpdatedBy = actor
	p.UpdatedAt = time.Now().UTC()
	if err := s.plans.Update(ctx, p, prev); err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePlan soft-deletes a plan; it drops out of search results and no
// longer counts against the one-open-plan rule.
func (s *Service) DeletePlan(ctx context.Context, id uuid.UUID) error {
	return s.plans.Delete(ctx, id)
}

// ComputeQualityMetricsForPlan derives the quality snapshot for one plan.
// Calling it repeatedly without intervening session changes returns
// identical results; nothing is persisted.
func (s *Service) ComputeQualityMetricsForPlan(ctx context.Context, planID uuid.UUID) (*QualityMetrics, error) {
	p, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.sessions.ListByPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	m := ComputeQualityMetrics(p, sessions)
	return &m, nil
}

// -- Sessions --

// CreateSession records a new session against an active plan. The session
// number is assigned by the repository atomically (max existing + 1).
func (s *Service) CreateSession(ctx context.Context, planID uuid.UUID, sess *TreatmentSession, creator string) error {
	if err := validateNewSession(sess); err != nil {
		return err
	}

	p, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return err
	}
	if p.Status != PlanActive {
		return &InvalidStateError{Entity: "treatment plan", ID: planID, Current: string(p.Status), Attempted: "create session on"}
	}

	now := time.Now().UTC()
	sess.ID = uuid.New()
	sess.PlanID = planID
	for i := range sess.Medications {
		sess.Medications[i].ID = uuid.New()
	}
	for i := range sess.Procedures {
		sess.Procedures[i].ID = uuid.New()
	}
	sess.Status = SessionScheduled
	sess.PostAssessment = nil
	sess.CreatedBy = creator
	sess.UpdatedBy = creator
	sess.CreatedAt = now
	sess.UpdatedAt = now

	// The repository re-checks the plan status under its lock, so a plan
	// completing between the check above and the insert still fails cleanly.
	return s.sessions.Create(ctx, sess)
}

// ListSessions returns a plan's sessions in ascending session-number order.
func (s *Service) ListSessions(ctx context.Context, planID uuid.UUID) ([]*TreatmentSession, error) {
	if _, err := s.plans.GetByID(ctx, planID); err != nil {
		return nil, err
	}
	return s.sessions.ListByPlan(ctx, planID)
}

func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (*TreatmentSession, error) {
	return s.sessions.GetByID(ctx, id)
}

// StartSession moves a session from scheduled to in_progress.
func (s *Service) StartSession(ctx context.Context, id uuid.UUID, actor string) (*TreatmentSession, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != SessionScheduled {
		return nil, &InvalidStateError{Entity: "treatment session", ID: id, Current: string(sess.Status), Attempted: "start"}
	}
	sess.Status = SessionInProgress
	sess.UpdatedBy = actor
	sess.UpdatedAt = time.Now().UTC()
	if err := s.sessions.Update(ctx, sess, SessionScheduled); err != nil {
		return nil, err
	}
	return sess, nil
}

// CompleteSession moves an in_progress session to completed, attaches the
// post-assessment and then recomputes the plan's adherence summary over the
// full session list. The session write commits before the recompute reads.
func (s *Service) CompleteSession(ctx context.Context, id uuid.UUID, post PostAssessment, actor string) (*TreatmentSession, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != SessionInProgress {
		return nil, &InvalidStateError{Entity: "treatment session", ID: id, Current: string(sess.Status), Attempted: "complete"}
	}

	post.AssessedAt = time.Now().UTC()
	sess.Status = SessionCompleted
	sess.PostAssessment = &post
	sess.UpdatedBy = actor
	sess.UpdatedAt = post.AssessedAt
	if err := s.sessions.Update(ctx, sess, SessionInProgress); err != nil {
		return nil, err
	}

	if err := s.recomputeAdherence(ctx, sess.PlanID, actor); err != nil {
		return nil, fmt.Errorf("session %s completed but adherence recompute failed: %w", id, err)
	}
	return sess, nil
}

// MarkSession moves a non-terminal session to cancelled, missed or postponed.
func (s *Service) MarkSession(ctx context.Context, id uuid.UUID, to SessionStatus, actor string) (*TreatmentSession, error) {
	switch to {
	case SessionCancelled, SessionMissed, SessionPostponed:
	default:
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("cannot mark a session %q", to)}
	}
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != SessionScheduled && sess.Status != SessionInProgress {
		return nil, &InvalidStateError{Entity: "treatment session", ID: id, Current: string(sess.Status), Attempted: "mark " + string(to)}
	}
	prev := sess.Status
	sess.Status = to
	sess.UpdatedBy = actor
	sess.UpdatedAt = time.Now().UTC()
	if err := s.sessions.Update(ctx, sess, prev); err != nil {
		return nil, err
	}
	return sess, nil
}

// RescheduleSession moves a postponed session back to scheduled.
func (s *Service) RescheduleSession(ctx context.Context, id uuid.UUID, newDate time.Time, actor string) (*TreatmentSession, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != SessionPostponed {
		return nil, &InvalidStateError{Entity: "treatment session", ID: id, Current: string(sess.Status), Attempted: "reschedule"}
	}
	if !newDate.IsZero() {
		sess.SessionDate = newDate
	}
	sess.Status = SessionScheduled
	sess.UpdatedBy = actor
	sess.UpdatedAt = time.Now().UTC()
	if err := s.sessions.Update(ctx, sess, SessionPostponed); err != nil {
		return nil, err
	}
	return sess, nil
}

// recomputeAdherence is the single mutation path for the plan's adherence
// summary and completed-cycle count outside of CompletePlan.
func (s *Service) recomputeAdherence(ctx context.Context, planID uuid.UUID, actor string) error {
	sessions, err := s.sessions.ListByPlan(ctx, planID)
	if err != nil {
		return err
	}
	result, ok := ComputeAdherence(sessions)
	if !ok {
		return nil
	}
	p, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return err
	}
	prev := p.Status
	p.Adherence = result.Adherence
	p.CompletedCycles = result.CompletedCycles
	p.UpdatedBy = actor
	p.UpdatedAt = time.Now().UTC()
	return s.plans.Update(ctx, p, prev)
}

// -- validation --

func validateNewPlan(p *TreatmentPlan) error {
	if p.PatientID == uuid.Nil {
		return &ValidationError{Field: "patient_id", Reason: "is required"}
	}
	if p.CancerSite == "" {
		return &ValidationError{Field: "cancer_site", Reason: "is required"}
	}
	if !p.Intent.Valid() {
		return &ValidationError{Field: "intent", Reason: fmt.Sprintf("unknown value %q", p.Intent)}
	}
	if len(p.Modalities) == 0 {
		return &ValidationError{Field: "modalities", Reason: "at least one modality is required"}
	}
	for _, m := range p.Modalities {
		if !m.Type.Valid() {
			return &ValidationError{Field: "modalities", Reason: fmt.Sprintf("unknown modality type %q", m.Type)}
		}
	}
	if p.Team.PrimaryOncologist.Name == "" {
		return &ValidationError{Field: "team.primary_oncologist", Reason: "is required"}
	}
	if p.StartDate.IsZero() {
		return &ValidationError{Field: "start_date", Reason: "is required"}
	}
	if p.TotalCycles != nil && *p.TotalCycles <= 0 {
		return &ValidationError{Field: "total_cycles", Reason: "must be positive"}
	}
	return nil
}

func validateNewSession(sess *TreatmentSession) error {
	if sess.SessionDate.IsZero() {
		return &ValidationError{Field: "session_date", Reason: "is required"}
	}
	if !sess.Modality.Valid() {
		return &ValidationError{Field: "modality", Reason: fmt.Sprintf("unknown value %q", sess.Modality)}
	}
	if sess.DurationMinutes < 0 {
		return &ValidationError{Field: "duration_minutes", Reason: "must not be negative"}
	}
	for _, t := range sess.PreAssessment.Labs {
		if t.Name == "" {
			return &ValidationError{Field: "pre_assessment.labs", Reason: "lab name is required"}
		}
	}
	for _, m := range sess.Medications {
		if m.Name == "" {
			return &ValidationError{Field: "medications", Reason: "medication name is required"}
		}
	}
	for _, pr := range sess.Procedures {
		if pr.Name == "" {
			return &ValidationError{Field: "procedures", Reason: "procedure name is required"}
		}
	}
	return nil
}

func assignBaselineIDs(b *BaselineAssessment) {
	for i := range b.Lesions {
		b.Lesions[i].ID = uuid.New()
	}
	for i := range b.Labs {
		b.Labs[i].ID = uuid.New()
	}
	for i := range b.Imaging {
		b.Imaging[i].ID = uuid.New()
	}
}
