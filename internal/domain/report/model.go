package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type selects which aggregation a report runs.
type Type string

const (
	TypeTreatmentSummary Type = "treatment_summary"
	TypeProgressReport   Type = "progress_report"
	TypeOutcomeAnalysis  Type = "outcome_analysis"
	TypeQualityMetrics   Type = "quality_metrics"
	TypeAdverseEvents    Type = "adverse_events"
)

func (t Type) Valid() bool {
	switch t {
	case TypeTreatmentSummary, TypeProgressReport, TypeOutcomeAnalysis,
		TypeQualityMetrics, TypeAdverseEvents:
		return true
	}
	return false
}

var ErrUnsupportedType = errors.New("unsupported report type")

// UnsupportedTypeError reports a request for a report type the generator
// does not know.
type UnsupportedTypeError struct {
	Requested string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported report type %q", e.Requested)
}

func (e *UnsupportedTypeError) Unwrap() error { return ErrUnsupportedType }

// DateRange scopes a report to sessions dated within [From, To]. Either
// bound may be open.
type DateRange struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// Report is one generated report covering one or more treatment plans.
// Reports are derived on demand and never persisted; the ID only identifies
// this rendering.
type Report struct {
	ID              uuid.UUID   `json:"id"`
	Type            Type        `json:"type"`
	PlanIDs         []uuid.UUID `json:"plan_ids"`
	DateRange       *DateRange  `json:"date_range,omitempty"`
	GeneratedAt     time.Time   `json:"generated_at"`
	GeneratedBy     string      `json:"generated_by,omitempty"`
	Summary         string      `json:"summary"`
	Insights        []string    `json:"insights,omitempty"`
	Recommendations []string    `json:"recommendations,omitempty"`
	Sections        []Section   `json:"sections"`
}

// Section is the per-plan slice of a report.
type Section struct {
	PlanID    uuid.UUID   `json:"plan_id"`
	PatientID uuid.UUID   `json:"patient_id"`
	Summary   string      `json:"summary"`
	Data      interface{} `json:"data"`
}
