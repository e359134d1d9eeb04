package treatment

import (
	"time"

	"github.com/google/uuid"
)

// PlanStatus is the lifecycle status of a treatment plan.
type PlanStatus string

const (
	PlanPlanned      PlanStatus = "planned"
	PlanActive       PlanStatus = "active"
	PlanOnHold       PlanStatus = "on_hold"
	PlanCompleted    PlanStatus = "completed"
	PlanDiscontinued PlanStatus = "discontinued"
	PlanCancelled    PlanStatus = "cancelled"
)

func (s PlanStatus) Valid() bool {
	switch s {
	case PlanPlanned, PlanActive, PlanOnHold, PlanCompleted, PlanDiscontinued, PlanCancelled:
		return true
	}
	return false
}

// Open reports whether the plan still counts against the
// one-open-plan-per-patient rule.
func (s PlanStatus) Open() bool {
	return s == PlanPlanned || s == PlanActive
}

// PlanPhase is descriptive only; it never gates a transition.
type PlanPhase string

const (
	PhaseInitial       PlanPhase = "initial"
	PhaseConsolidation PlanPhase = "consolidation"
	PhaseMaintenance   PlanPhase = "maintenance"
	PhaseFollowUp      PlanPhase = "follow_up"
)

func (p PlanPhase) Valid() bool {
	switch p {
	case PhaseInitial, PhaseConsolidation, PhaseMaintenance, PhaseFollowUp:
		return true
	}
	return false
}

// TreatmentIntent is the clinical goal of the plan.
type TreatmentIntent string

const (
	IntentCurative    TreatmentIntent = "curative"
	IntentPalliative  TreatmentIntent = "palliative"
	IntentAdjuvant    TreatmentIntent = "adjuvant"
	IntentNeoadjuvant TreatmentIntent = "neoadjuvant"
	IntentMaintenance TreatmentIntent = "maintenance"
)

func (i TreatmentIntent) Valid() bool {
	switch i {
	case IntentCurative, IntentPalliative, IntentAdjuvant, IntentNeoadjuvant, IntentMaintenance:
		return true
	}
	return false
}

// ModalityType is a category of treatment within a plan.
type ModalityType string

const (
	ModalitySurgery         ModalityType = "surgery"
	ModalityChemotherapy    ModalityType = "chemotherapy"
	ModalityRadiotherapy    ModalityType = "radiotherapy"
	ModalityTargetedTherapy ModalityType = "targeted_therapy"
	ModalityImmunotherapy   ModalityType = "immunotherapy"
	ModalityHormonalTherapy ModalityType = "hormonal_therapy"
	ModalitySupportiveCare  ModalityType = "supportive_care"
)

func (m ModalityType) Valid() bool {
	switch m {
	case ModalitySurgery, ModalityChemotherapy, ModalityRadiotherapy,
		ModalityTargetedTherapy, ModalityImmunotherapy, ModalityHormonalTherapy,
		ModalitySupportiveCare:
		return true
	}
	return false
}

// SessionStatus is the lifecycle status of a treatment session.
type SessionStatus string

const (
	SessionScheduled  SessionStatus = "scheduled"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionCancelled  SessionStatus = "cancelled"
	SessionMissed     SessionStatus = "missed"
	SessionPostponed  SessionStatus = "postponed"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionScheduled, SessionInProgress, SessionCompleted,
		SessionCancelled, SessionMissed, SessionPostponed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionCancelled || s == SessionMissed
}

// AdherenceScore is the qualitative adherence rating.
type AdherenceScore string

const (
	AdherenceExcellent AdherenceScore = "excellent"
	AdherenceGood      AdherenceScore = "good"
	AdherenceFair      AdherenceScore = "fair"
	AdherencePoor      AdherenceScore = "poor"
)

// Modality is one treatment category entry inside a plan.
type Modality struct {
	ID       uuid.UUID              `json:"id"`
	Type     ModalityType           `json:"type"`
	Priority int                    `json:"priority"`
	Sequence int                    `json:"sequence"`
	Settings map[string]interface{} `json:"settings,omitempty"`
}

// TeamMember is one clinician on the multidisciplinary team.
type TeamMember struct {
	Name      string `json:"name"`
	Role      string `json:"role,omitempty"`
	Specialty string `json:"specialty,omitempty"`
}

// CareTeam holds exactly one primary oncologist plus any additional members.
type CareTeam struct {
	PrimaryOncologist TeamMember   `json:"primary_oncologist"`
	Members           []TeamMember `json:"members,omitempty"`
}

// Size counts the primary oncologist plus all additional members.
func (t CareTeam) Size() int {
	return 1 + len(t.Members)
}

// ProtocolReference points to the protocol the plan follows.
type ProtocolReference struct {
	Name     string `json:"name"`
	Code     string `json:"code,omitempty"`
	Category string `json:"category,omitempty"` // standard, clinical_trial, modified, ...
}

// Lesion is one measurable disease site recorded at baseline.
type Lesion struct {
	ID     uuid.UUID `json:"id"`
	Site   string    `json:"site"`
	SizeMM float64   `json:"size_mm,omitempty"`
	Target bool      `json:"target"`
}

// LabResult is one laboratory value.
type LabResult struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Value       float64   `json:"value"`
	Unit        string    `json:"unit,omitempty"`
	CollectedAt time.Time `json:"collected_at,omitempty"`
}

// ImagingStudy is one imaging record captured at baseline.
type ImagingStudy struct {
	ID          uuid.UUID `json:"id"`
	Modality    string    `json:"modality"`
	Site        string    `json:"site,omitempty"`
	PerformedAt time.Time `json:"performed_at,omitempty"`
	Findings    string    `json:"findings,omitempty"`
}

// BaselineAssessment is captured once at plan creation.
type BaselineAssessment struct {
	Lesions          []Lesion       `json:"lesions,omitempty"`
	Labs             []LabResult    `json:"labs,omitempty"`
	Imaging          []ImagingStudy `json:"imaging,omitempty"`
	FunctionalStatus string         `json:"functional_status,omitempty"` // ECOG 0-4 as recorded
	Comorbidities    []string       `json:"comorbidities,omitempty"`
}

// ResponseAssessment may be attached later to record treatment response.
type ResponseAssessment struct {
	Criteria   string    `json:"criteria,omitempty"` // e.g. RECIST 1.1
	Response   string    `json:"response"`           // complete_response, partial_response, stable_disease, progressive_disease
	AssessedAt time.Time `json:"assessed_at"`
	Notes      string    `json:"notes,omitempty"`
}

// Adherence is the cached summary derived from the plan's session history.
// It is written only by the adherence recompute and by plan creation.
type Adherence struct {
	OverallAdherence  int            `json:"overall_adherence"`
	MissedSessions    int            `json:"missed_sessions"`
	PostponedSessions int            `json:"postponed_sessions"`
	Score             AdherenceScore `json:"score"`
}

// DefaultAdherence is the summary assigned to a freshly created plan.
func DefaultAdherence() Adherence {
	return Adherence{OverallAdherence: 100, Score: AdherenceExcellent}
}

// TreatmentPlan is one patient's treatment plan.
type TreatmentPlan struct {
	ID              uuid.UUID           `json:"id"`
	PatientID       uuid.UUID           `json:"patient_id"`
	CancerSite      string              `json:"cancer_site"`
	Stage           string              `json:"stage,omitempty"`
	Histology       string              `json:"histology,omitempty"`
	Modalities      []Modality          `json:"modalities"`
	Intent          TreatmentIntent     `json:"intent"`
	Protocol        *ProtocolReference  `json:"protocol,omitempty"`
	Team            CareTeam            `json:"team"`
	StartDate       time.Time           `json:"start_date"`
	ExpectedEndDate *time.Time          `json:"expected_end_date,omitempty"`
	ActualEndDate   *time.Time          `json:"actual_end_date,omitempty"`
	TotalCycles     *int                `json:"total_cycles,omitempty"`
	CompletedCycles int                 `json:"completed_cycles"`
	Status          PlanStatus          `json:"status"`
	Phase           PlanPhase           `json:"phase"`
	Adherence       Adherence           `json:"adherence"`
	Baseline        BaselineAssessment  `json:"baseline"`
	Response        *ResponseAssessment `json:"response,omitempty"`
	Active          bool                `json:"active"`
	CreatedBy       string              `json:"created_by,omitempty"`
	UpdatedBy       string              `json:"updated_by,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// Vitals are point-in-time vital signs.
type Vitals struct {
	SystolicBP   int     `json:"systolic_bp,omitempty"`
	DiastolicBP  int     `json:"diastolic_bp,omitempty"`
	HeartRate    int     `json:"heart_rate,omitempty"`
	TemperatureC float64 `json:"temperature_c,omitempty"`
	WeightKG     float64 `json:"weight_kg,omitempty"`
}

// PreAssessment is recorded before a session is delivered.
type PreAssessment struct {
	Vitals            Vitals      `json:"vitals"`
	PerformanceStatus int         `json:"performance_status"` // ECOG 0-4
	Symptoms          []string    `json:"symptoms,omitempty"`
	Labs              []LabResult `json:"labs,omitempty"`
	Cleared           bool        `json:"cleared"`
	ClearanceNotes    string      `json:"clearance_notes,omitempty"`
}

// Toxicity is one adverse effect observed during or after a session.
// Grade follows CTCAE (1-5).
type Toxicity struct {
	Type         string `json:"type"`
	Grade        int    `json:"grade"`
	Intervention string `json:"intervention,omitempty"`
}

// PostAssessment is attached when a session completes.
type PostAssessment struct {
	Vitals     Vitals     `json:"vitals"`
	Toxicities []Toxicity `json:"toxicities,omitempty"`
	Tolerance  string     `json:"tolerance,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	AssessedAt time.Time  `json:"assessed_at"`
}

// MaxGrade returns the highest toxicity grade in the assessment, 0 if none.
func (p PostAssessment) MaxGrade() int {
	max := 0
	for _, t := range p.Toxicities {
		if t.Grade > max {
			max = t.Grade
		}
	}
	return max
}

// MedicationAdministered is one drug given during a session.
type MedicationAdministered struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Dose           string    `json:"dose,omitempty"`
	Route          string    `json:"route,omitempty"`
	AdministeredAt time.Time `json:"administered_at,omitempty"`
}

// ProcedurePerformed is one procedure carried out during a session.
type ProcedurePerformed struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Outcome     string    `json:"outcome,omitempty"`
	PerformedAt time.Time `json:"performed_at,omitempty"`
}

// TreatmentSession is one discrete clinical encounter executing part of a plan.
// Session numbers are unique and gap-free from 1 within a plan.
type TreatmentSession struct {
	ID              uuid.UUID                `json:"id"`
	PlanID          uuid.UUID                `json:"plan_id"`
	SessionNumber   int                      `json:"session_number"`
	SessionDate     time.Time                `json:"session_date"`
	Modality        ModalityType             `json:"modality"`
	DurationMinutes int                      `json:"duration_minutes,omitempty"`
	PreAssessment   PreAssessment            `json:"pre_assessment"`
	PostAssessment  *PostAssessment          `json:"post_assessment,omitempty"`
	Medications     []MedicationAdministered `json:"medications,omitempty"`
	Procedures      []ProcedurePerformed     `json:"procedures,omitempty"`
	PerformedBy     string                   `json:"performed_by,omitempty"`
	SupervisedBy    string                   `json:"supervised_by,omitempty"`
	Status          SessionStatus            `json:"status"`
	CreatedBy       string                   `json:"created_by,omitempty"`
	UpdatedBy       string                   `json:"updated_by,omitempty"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
}

// PlanFilter narrows a plan search. Zero values mean "any".
type PlanFilter struct {
	PatientID     *uuid.UUID
	Status        PlanStatus
	Intent        TreatmentIntent
	ModalityType  ModalityType
	Oncologist    string // case-insensitive substring on the primary oncologist name
	StartDateFrom *time.Time
	StartDateTo   *time.Time
	SortBy        string // created_at (default), start_date, status
	SortOrder     string // asc or desc (default)
}
