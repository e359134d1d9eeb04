package treatment

import (
	"context"

	"github.com/google/uuid"
)

// PlanRepository is the persistence port for treatment plans.
//
// Create must reject a second open (planned/active) plan for the same patient
// with a ConflictError, atomically with the insert. Update is a
// compare-and-swap: it only applies when the stored status still equals
// expect, otherwise it returns an InvalidStateError.
type PlanRepository interface {
	Create(ctx context.Context, p *TreatmentPlan) error
	GetByID(ctx context.Context, id uuid.UUID) (*TreatmentPlan, error)
	Update(ctx context.Context, p *TreatmentPlan, expect PlanStatus) error
	Search(ctx context.Context, f PlanFilter, limit, offset int) ([]*TreatmentPlan, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// SessionRepository is the persistence port for treatment sessions.
//
// Create assigns the session number atomically: for any interleaving of
// concurrent calls the numbers within a plan are gap-free from 1. It also
// verifies, under the same lock, that the owning plan exists and is active
// (NotFoundError / InvalidStateError otherwise). Update is a compare-and-swap
// on the session status, like PlanRepository.Update.
type SessionRepository interface {
	Create(ctx context.Context, s *TreatmentSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*TreatmentSession, error)
	Update(ctx context.Context, s *TreatmentSession, expect SessionStatus) error
	ListByPlan(ctx context.Context, planID uuid.UUID) ([]*TreatmentSession, error)
}
