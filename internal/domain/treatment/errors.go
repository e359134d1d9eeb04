package treatment

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel errors for the treatment lifecycle. Handlers branch on these with
// errors.Is; the typed errors below carry the context required by callers
// (entity id, current state, attempted transition).
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrValidation   = errors.New("validation failed")
)

// NotFoundError reports a missing plan or session.
type NotFoundError struct {
	Entity string
	ID     uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError reports a violation of the one-open-plan-per-patient rule.
type ConflictError struct {
	PatientID      uuid.UUID
	ExistingPlanID uuid.UUID
	ExistingStatus PlanStatus
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("patient %s already has a %s treatment plan (%s)",
		e.PatientID, e.ExistingStatus, e.ExistingPlanID)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// InvalidStateError reports an illegal lifecycle transition.
type InvalidStateError struct {
	Entity    string
	ID        uuid.UUID
	Current   string
	Attempted string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %s: current status is %q",
		e.Attempted, e.Entity, e.ID, e.Current)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// ValidationError reports malformed input caught before any persistence.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
