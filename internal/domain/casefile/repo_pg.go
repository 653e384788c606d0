package casefile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/casewell/casewell/internal/domain/participant"
	"github.com/casewell/casewell/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// InTx runs fn with a transaction carried in the context, so every repo
// call inside fn goes through the same transaction. Rollback on error or
// panic, commit otherwise.
func (r *repoPG) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	txCtx, tx, err := db.WithTx(ctx, r.pool)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(txCtx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// mapPgError translates constraint violations into domain errors so the
// service can tell a retryable collision from a missing reference.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicateCaseNumber, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%w: %s", ErrCaseNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

const caseCols = `id, case_number, status, participant_id, consultation_reason,
	intervention, referrals, closed_at, created_at, updated_at`

func scanCase(row pgx.Row) (*Case, error) {
	var c Case
	err := row.Scan(&c.ID, &c.CaseNumber, &c.Status, &c.ParticipantID,
		&c.ConsultationReason, &c.Intervention, &c.Referrals,
		&c.ClosedAt, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

const caseJoinedCols = `c.id, c.case_number, c.status, c.participant_id,
	c.consultation_reason, c.intervention, c.referrals, c.closed_at,
	c.created_at, c.updated_at,
	p.id, p.full_name, p.document_id, p.registered_by, p.created_at, p.updated_at`

func scanCaseJoined(row pgx.Row) (*Case, error) {
	var c Case
	var p participant.Participant
	err := row.Scan(&c.ID, &c.CaseNumber, &c.Status, &c.ParticipantID,
		&c.ConsultationReason, &c.Intervention, &c.Referrals,
		&c.ClosedAt, &c.CreatedAt, &c.UpdatedAt,
		&p.ID, &p.FullName, &p.DocumentID, &p.RegisteredBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Participant = &p
	return &c, nil
}

func (r *repoPG) InsertCase(ctx context.Context, c *Case) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO case_file (case_number, status, participant_id,
			consultation_reason, intervention, referrals)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, created_at, updated_at`,
		c.CaseNumber, c.Status, c.ParticipantID,
		c.ConsultationReason, c.Intervention, c.Referrals).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

func (r *repoPG) InsertPhysicalHealthHistory(ctx context.Context, h *PhysicalHealthHistory) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO physical_health_history (case_id, condition, diagnosis, treatment, observations)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, created_at`,
		h.CaseID, h.Condition, h.Diagnosis, h.Treatment, h.Observations).
		Scan(&h.ID, &h.CreatedAt)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

func (r *repoPG) InsertMentalHealthHistory(ctx context.Context, h *MentalHealthHistory) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO mental_health_history (case_id, condition, diagnosis, treatment, observations)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, created_at`,
		h.CaseID, h.Condition, h.Diagnosis, h.Treatment, h.Observations).
		Scan(&h.ID, &h.CreatedAt)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

func (r *repoPG) InsertWeighing(ctx context.Context, w *Weighing) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO weighing (case_id, weight_kg, height_cm, observations)
		VALUES ($1,$2,$3,$4)
		RETURNING id, created_at`,
		w.CaseID, w.WeightKg, w.HeightCm, w.Observations).
		Scan(&w.ID, &w.CreatedAt)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

func (r *repoPG) InsertInterventionPlan(ctx context.Context, p *InterventionPlan) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO intervention_plan (case_id, objective, activities, responsible, observations)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, created_at`,
		p.CaseID, p.Objective, p.Activities, p.Responsible, p.Observations).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

func (r *repoPG) InsertProgressNote(ctx context.Context, n *ProgressNote) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO progress_note (case_id, session_date, session_type, summary, observations, agreements)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, created_at`,
		n.CaseID, n.SessionDate, n.SessionType, n.Summary, n.Observations, n.Agreements).
		Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

func (r *repoPG) InsertFollowUpPlan(ctx context.Context, p *FollowUpPlan) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO follow_up_plan (case_id, action, commitments, observations)
		VALUES ($1,$2,$3,$4)
		RETURNING id, created_at`,
		p.CaseID, p.Action, p.Commitments, p.Observations).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

func (r *repoPG) InsertClosingNote(ctx context.Context, n *ClosingNote) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO closing_note (case_id, closing_date, reason, achievements, recommendations, observations)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, created_at`,
		n.CaseID, n.ClosingDate, n.Reason, n.Achievements, n.Recommendations, n.Observations).
		Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

func (r *repoPG) LinkIdentifiedSituations(ctx context.Context, caseID int64, situationIDs []int64) error {
	for _, sid := range situationIDs {
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO case_identified_situation (case_id, situation_id)
			VALUES ($1,$2)
			ON CONFLICT DO NOTHING`, caseID, sid)
		if err != nil {
			return mapPgError(err)
		}
	}
	return nil
}

func (r *repoPG) CountCases(ctx context.Context) (int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM case_file`).Scan(&total)
	return total, err
}

func (r *repoPG) CaseNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM case_file WHERE case_number = $1)`, number).Scan(&exists)
	return exists, err
}

func (r *repoPG) GetWithGraph(ctx context.Context, id int64) (*Case, error) {
	c, err := scanCaseJoined(r.conn(ctx).QueryRow(ctx, `
		SELECT `+caseJoinedCols+`
		FROM case_file c
		JOIN participant p ON p.id = c.participant_id
		WHERE c.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %d", ErrCaseNotFound, id)
		}
		return nil, err
	}
	if err := r.loadGraph(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *repoPG) loadGraph(ctx context.Context, c *Case) error {
	conn := r.conn(ctx)

	rows, err := conn.Query(ctx, `
		SELECT id, case_id, condition, diagnosis, treatment, observations, created_at
		FROM physical_health_history WHERE case_id = $1 ORDER BY id`, c.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var h PhysicalHealthHistory
		if err := rows.Scan(&h.ID, &h.CaseID, &h.Condition, &h.Diagnosis,
			&h.Treatment, &h.Observations, &h.CreatedAt); err != nil {
			rows.Close()
			return err
		}
		c.PhysicalHealthHistories = append(c.PhysicalHealthHistories, &h)
	}
	rows.Close()

	rows, err = conn.Query(ctx, `
		SELECT id, case_id, condition, diagnosis, treatment, observations, created_at
		FROM mental_health_history WHERE case_id = $1 ORDER BY id`, c.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var h MentalHealthHistory
		if err := rows.Scan(&h.ID, &h.CaseID, &h.Condition, &h.Diagnosis,
			&h.Treatment, &h.Observations, &h.CreatedAt); err != nil {
			rows.Close()
			return err
		}
		c.MentalHealthHistories = append(c.MentalHealthHistories, &h)
	}
	rows.Close()

	var w Weighing
	err = conn.QueryRow(ctx, `
		SELECT id, case_id, weight_kg, height_cm, observations, created_at
		FROM weighing WHERE case_id = $1`, c.ID).
		Scan(&w.ID, &w.CaseID, &w.WeightKg, &w.HeightCm, &w.Observations, &w.CreatedAt)
	switch {
	case err == nil:
		c.Weighing = &w
	case !errors.Is(err, pgx.ErrNoRows):
		return err
	}

	rows, err = conn.Query(ctx, `
		SELECT id, case_id, objective, activities, responsible, observations, created_at
		FROM intervention_plan WHERE case_id = $1 ORDER BY id`, c.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var p InterventionPlan
		if err := rows.Scan(&p.ID, &p.CaseID, &p.Objective, &p.Activities,
			&p.Responsible, &p.Observations, &p.CreatedAt); err != nil {
			rows.Close()
			return err
		}
		c.InterventionPlans = append(c.InterventionPlans, &p)
	}
	rows.Close()

	rows, err = conn.Query(ctx, `
		SELECT id, case_id, session_date, session_type, summary, observations, agreements, created_at
		FROM progress_note WHERE case_id = $1 ORDER BY session_date, id`, c.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var n ProgressNote
		if err := rows.Scan(&n.ID, &n.CaseID, &n.SessionDate, &n.SessionType,
			&n.Summary, &n.Observations, &n.Agreements, &n.CreatedAt); err != nil {
			rows.Close()
			return err
		}
		c.ProgressNotes = append(c.ProgressNotes, &n)
	}
	rows.Close()

	rows, err = conn.Query(ctx, `
		SELECT id, case_id, action, commitments, observations, created_at
		FROM follow_up_plan WHERE case_id = $1 ORDER BY id`, c.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var p FollowUpPlan
		if err := rows.Scan(&p.ID, &p.CaseID, &p.Action, &p.Commitments,
			&p.Observations, &p.CreatedAt); err != nil {
			rows.Close()
			return err
		}
		c.FollowUpPlans = append(c.FollowUpPlans, &p)
	}
	rows.Close()

	var n ClosingNote
	err = conn.QueryRow(ctx, `
		SELECT id, case_id, closing_date, reason, achievements, recommendations, observations, created_at
		FROM closing_note WHERE case_id = $1`, c.ID).
		Scan(&n.ID, &n.CaseID, &n.ClosingDate, &n.Reason, &n.Achievements,
			&n.Recommendations, &n.Observations, &n.CreatedAt)
	switch {
	case err == nil:
		c.ClosingNote = &n
	case !errors.Is(err, pgx.ErrNoRows):
		return err
	}

	rows, err = conn.Query(ctx, `
		SELECT situation_id FROM case_identified_situation
		WHERE case_id = $1 ORDER BY situation_id`, c.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var sid int64
		if err := rows.Scan(&sid); err != nil {
			return err
		}
		c.IdentifiedSituations = append(c.IdentifiedSituations, sid)
	}
	return rows.Err()
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Case, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM case_file`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+caseJoinedCols+`
		FROM case_file c
		JOIN participant p ON p.id = c.participant_id
		ORDER BY c.created_at DESC, c.id DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Case
	for rows.Next() {
		c, err := scanCaseJoined(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListByParticipant(ctx context.Context, participantID int64) ([]*Case, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+caseCols+` FROM case_file
		WHERE participant_id = $1
		ORDER BY created_at DESC, id DESC`, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *repoPG) ListByRegistrar(ctx context.Context, userID string) ([]*Case, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+caseJoinedCols+`
		FROM case_file c
		JOIN participant p ON p.id = c.participant_id
		WHERE p.registered_by = $1
		ORDER BY c.created_at DESC, c.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Case
	for rows.Next() {
		c, err := scanCaseJoined(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *repoPG) UpdateStatus(ctx context.Context, id int64, status Status, closedAt *time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE case_file
		SET status = $2, closed_at = COALESCE($3, closed_at), updated_at = NOW()
		WHERE id = $1`, id, status, closedAt)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrCaseNotFound, id)
	}
	return nil
}
