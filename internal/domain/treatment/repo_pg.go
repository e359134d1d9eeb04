package treatment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oncocare/oncocare/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Plan Repository ===========

type planRepoPG struct{ pool *pgxpool.Pool }

func NewPlanRepoPG(pool *pgxpool.Pool) PlanRepository {
	return &planRepoPG{pool: pool}
}

func (r *planRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const planCols = `id, patient_id, cancer_site, stage, histology, modalities,
	intent, protocol, team, start_date, expected_end_date, actual_end_date,
	total_cycles, completed_cycles, status, phase, adherence, baseline,
	response, active, created_by, updated_by, created_at, updated_at`

func (r *planRepoPG) scanPlan(row pgx.Row) (*TreatmentPlan, error) {
	var p TreatmentPlan
	err := row.Scan(&p.ID, &p.PatientID, &p.CancerSite, &p.Stage, &p.Histology,
		&p.Modalities, &p.Intent, &p.Protocol, &p.Team,
		&p.StartDate, &p.ExpectedEndDate, &p.ActualEndDate,
		&p.TotalCycles, &p.CompletedCycles, &p.Status, &p.Phase,
		&p.Adherence, &p.Baseline, &p.Response, &p.Active,
		&p.CreatedBy, &p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

// Create inserts the plan inside a transaction. A pre-insert check gives a
// descriptive ConflictError for the common case; the partial unique index on
// (patient_id) over open plans is the authoritative guard, so a concurrent
// insert that slips past the check still surfaces as a ConflictError.
func (r *planRepoPG) Create(ctx context.Context, p *TreatmentPlan) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		var existingID uuid.UUID
		var existingStatus PlanStatus
		err := r.conn(ctx).QueryRow(ctx, `
			SELECT id, status FROM treatment_plan
			WHERE patient_id = $1 AND status IN ('planned','active') AND active`,
			p.PatientID).Scan(&existingID, &existingStatus)
		switch {
		case err == nil:
			return &ConflictError{PatientID: p.PatientID, ExistingPlanID: existingID, ExistingStatus: existingStatus}
		case !errors.Is(err, pgx.ErrNoRows):
			return err
		}

		_, err = r.conn(ctx).Exec(ctx, `
			INSERT INTO treatment_plan (id, patient_id, cancer_site, stage, histology,
				modalities, intent, protocol, team, start_date, expected_end_date,
				actual_end_date, total_cycles, completed_cycles, status, phase,
				adherence, baseline, response, active, created_by, updated_by,
				created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)`,
			p.ID, p.PatientID, p.CancerSite, p.Stage, p.Histology,
			p.Modalities, p.Intent, p.Protocol, p.Team, p.StartDate, p.ExpectedEndDate,
			p.ActualEndDate, p.TotalCycles, p.CompletedCycles, p.Status, p.Phase,
			p.Adherence, p.Baseline, p.Response, p.Active, p.CreatedBy, p.UpdatedBy,
			p.CreatedAt, p.UpdatedAt)
		if isUniqueViolation(err) {
			return &ConflictError{PatientID: p.PatientID}
		}
		return err
	})
}

func (r *planRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*TreatmentPlan, error) {
	p, err := r.scanPlan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+planCols+` FROM treatment_plan WHERE id = $1 AND active`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "treatment plan", ID: id}
	}
	return p, err
}

// Update applies the full plan row but only while the stored status still
// equals expect. A lost race reports the actual current status.
func (r *planRepoPG) Update(ctx context.Context, p *TreatmentPlan, expect PlanStatus) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE treatment_plan SET cancer_site=$3, stage=$4, histology=$5,
			modalities=$6, intent=$7, protocol=$8, team=$9, start_date=$10,
			expected_end_date=$11, actual_end_date=$12, total_cycles=$13,
			completed_cycles=$14, status=$15, phase=$16, adherence=$17,
			baseline=$18, response=$19, updated_by=$20, updated_at=$21
		WHERE id = $1 AND status = $2 AND active`,
		p.ID, expect, p.CancerSite, p.Stage, p.Histology,
		p.Modalities, p.Intent, p.Protocol, p.Team, p.StartDate,
		p.ExpectedEndDate, p.ActualEndDate, p.TotalCycles,
		p.CompletedCycles, p.Status, p.Phase, p.Adherence,
		p.Baseline, p.Response, p.UpdatedBy, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.staleUpdateError(ctx, p.ID, string(expect))
	}
	return nil
}

func (r *planRepoPG) staleUpdateError(ctx context.Context, id uuid.UUID, expected string) error {
	var current string
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT status FROM treatment_plan WHERE id = $1 AND active`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return &NotFoundError{Entity: "treatment plan", ID: id}
	}
	if err != nil {
		return err
	}
	return &InvalidStateError{Entity: "treatment plan", ID: id, Current: current,
		Attempted: fmt.Sprintf("update from %q", expected)}
}

func (r *planRepoPG) Search(ctx context.Context, f PlanFilter, limit, offset int) ([]*TreatmentPlan, int, error) {
	where := ` WHERE active`
	var args []interface{}
	idx := 1

	if f.PatientID != nil {
		where += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Intent != "" {
		where += fmt.Sprintf(` AND intent = $%d`, idx)
		args = append(args, f.Intent)
		idx++
	}
	if f.ModalityType != "" {
		where += fmt.Sprintf(` AND EXISTS (SELECT 1 FROM jsonb_array_elements(modalities) m WHERE m->>'type' = $%d)`, idx)
		args = append(args, f.ModalityType)
		idx++
	}
	if f.Oncologist != "" {
		where += fmt.Sprintf(` AND team->'primary_oncologist'->>'name' ILIKE '%%' || $%d || '%%'`, idx)
		args = append(args, f.Oncologist)
		idx++
	}
	if f.StartDateFrom != nil {
		where += fmt.Sprintf(` AND start_date >= $%d`, idx)
		args = append(args, *f.StartDateFrom)
		idx++
	}
	if f.StartDateTo != nil {
		where += fmt.Sprintf(` AND start_date <= $%d`, idx)
		args = append(args, *f.StartDateTo)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM treatment_plan`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + planCols + ` FROM treatment_plan` + where +
		` ORDER BY ` + sortColumn(f.SortBy) + ` ` + sortDirection(f.SortOrder) +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*TreatmentPlan
	for rows.Next() {
		p, err := r.scanPlan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}

func (r *planRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE treatment_plan SET active = FALSE, updated_at = NOW() WHERE id = $1 AND active`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Entity: "treatment plan", ID: id}
	}
	return nil
}

// Sort column and direction come from a fixed whitelist; anything else falls
// back to the defaults. Never interpolate caller input into ORDER BY.
func sortColumn(by string) string {
	switch by {
	case "start_date", "status":
		return by
	default:
		return "created_at"
	}
}

func sortDirection(order string) string {
	if order == "asc" {
		return "ASC"
	}
	return "DESC"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// =========== Session Repository ===========

type sessionRepoPG struct{ pool *pgxpool.Pool }

func NewSessionRepoPG(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepoPG{pool: pool}
}

func (r *sessionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const sessionCols = `id, plan_id, session_number, session_date, modality,
	duration_minutes, pre_assessment, post_assessment, medications, procedures,
	performed_by, supervised_by, status, created_by, updated_by, created_at, updated_at`

func (r *sessionRepoPG) scanSession(row pgx.Row) (*TreatmentSession, error) {
	var s TreatmentSession
	err := row.Scan(&s.ID, &s.PlanID, &s.SessionNumber, &s.SessionDate, &s.Modality,
		&s.DurationMinutes, &s.PreAssessment, &s.PostAssessment, &s.Medications,
		&s.Procedures, &s.PerformedBy, &s.SupervisedBy, &s.Status,
		&s.CreatedBy, &s.UpdatedBy, &s.CreatedAt, &s.UpdatedAt)
	return &s, err
}

// Create locks the owning plan row, re-checks that it is active, then takes
// max(session_number)+1 under that lock. The row lock serializes concurrent
// session creation per plan; UNIQUE (plan_id, session_number) is the backstop.
func (r *sessionRepoPG) Create(ctx context.Context, s *TreatmentSession) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		var status PlanStatus
		err := r.conn(ctx).QueryRow(ctx,
			`SELECT status FROM treatment_plan WHERE id = $1 AND active FOR UPDATE`,
			s.PlanID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return &NotFoundError{Entity: "treatment plan", ID: s.PlanID}
		}
		if err != nil {
			return err
		}
		if status != PlanActive {
			return &InvalidStateError{Entity: "treatment plan", ID: s.PlanID,
				Current: string(status), Attempted: "create session on"}
		}

		if err := r.conn(ctx).QueryRow(ctx,
			`SELECT COALESCE(MAX(session_number), 0) + 1 FROM treatment_session WHERE plan_id = $1`,
			s.PlanID).Scan(&s.SessionNumber); err != nil {
			return err
		}

		_, err = r.conn(ctx).Exec(ctx, `
			INSERT INTO treatment_session (id, plan_id, session_number, session_date,
				modality, duration_minutes, pre_assessment, post_assessment,
				medications, procedures, performed_by, supervised_by, status,
				created_by, updated_by, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
			s.ID, s.PlanID, s.SessionNumber, s.SessionDate,
			s.Modality, s.DurationMinutes, s.PreAssessment, s.PostAssessment,
			s.Medications, s.Procedures, s.PerformedBy, s.SupervisedBy, s.Status,
			s.CreatedBy, s.UpdatedBy, s.CreatedAt, s.UpdatedAt)
		return err
	})
}

func (r *sessionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*TreatmentSession, error) {
	s, err := r.scanSession(r.conn(ctx).QueryRow(ctx,
		`SELECT `+sessionCols+` FROM treatment_session WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Entity: "treatment session", ID: id}
	}
	return s, err
}

func (r *sessionRepoPG) Update(ctx context.Context, s *TreatmentSession, expect SessionStatus) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE treatment_session SET session_date=$3, modality=$4, duration_minutes=$5,
			pre_assessment=$6, post_assessment=$7, medications=$8, procedures=$9,
			performed_by=$10, supervised_by=$11, status=$12, updated_by=$13, updated_at=$14
		WHERE id = $1 AND status = $2`,
		s.ID, expect, s.SessionDate, s.Modality, s.DurationMinutes,
		s.PreAssessment, s.PostAssessment, s.Medications, s.Procedures,
		s.PerformedBy, s.SupervisedBy, s.Status, s.UpdatedBy, s.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var current string
		err := r.conn(ctx).QueryRow(ctx,
			`SELECT status FROM treatment_session WHERE id = $1`, s.ID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return &NotFoundError{Entity: "treatment session", ID: s.ID}
		}
		if err != nil {
			return err
		}
		return &InvalidStateError{Entity: "treatment session", ID: s.ID, Current: current,
			Attempted: fmt.Sprintf("update from %q", expect)}
	}
	return nil
}

func (r *sessionRepoPG) ListByPlan(ctx context.Context, planID uuid.UUID) ([]*TreatmentSession, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+sessionCols+` FROM treatment_session WHERE plan_id = $1 ORDER BY session_number ASC`,
		planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*TreatmentSession
	for rows.Next() {
		s, err := r.scanSession(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, nil
}
