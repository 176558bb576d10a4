package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ListCompletedMilestoneSessions returns an employee's completed sessions
// whose session number is one of ordinals, oldest first.
func (r *Repository) ListCompletedMilestoneSessions(ctx context.Context, email string, ordinals []int) ([]MilestoneSession, error) {
	query := `
		SELECT id, session_number, session_date, coach_name, program
		FROM coaching_sessions
		WHERE employee_email = $1
		  AND status = 'completed'
		  AND session_number = ANY($2)
		ORDER BY session_date ASC, session_number ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, email, ordinals)
	if err != nil {
		return nil, fmt.Errorf("query milestone sessions: %w", err)
	}
	defer rows.Close()

	var sessions []MilestoneSession
	for rows.Next() {
		var s MilestoneSession
		if err := rows.Scan(&s.SessionID, &s.SessionNumber, &s.SessionDate, &s.CoachName, &s.Program); err != nil {
			return nil, fmt.Errorf("scan milestone session: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return sessions, nil
}

// SurveyedSessionIDs returns the sessions the employee already submitted a
// survey for.
func (r *Repository) SurveyedSessionIDs(ctx context.Context, email string) (map[uuid.UUID]bool, error) {
	query := `
		SELECT session_id
		FROM survey_submissions
		WHERE employee_email = $1 AND session_id IS NOT NULL
	`

	rows, err := r.db.Pool().Query(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("query surveyed sessions: %w", err)
	}
	defer rows.Close()

	surveyed := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		surveyed[id] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return surveyed, nil
}

// HasSubmissionOfKind reports whether the employee ever submitted a survey
// of the given kind.
func (r *Repository) HasSubmissionOfKind(ctx context.Context, email, kind string) (bool, error) {
	var exists bool
	err := r.db.Pool().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM survey_submissions WHERE employee_email = $1 AND survey_kind = $2)`,
		email, kind,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query submission kind: %w", err)
	}
	return exists, nil
}

// CreateSurveySubmission stores a submission and its competency scores in
// one transaction. A second submission for the same session returns
// ErrDuplicate.
func (r *Repository) CreateSurveySubmission(ctx context.Context, sub *SurveySubmission, scores []CompetencyScore) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if len(sub.Payload) == 0 {
		sub.Payload = []byte("{}")
	}

	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insertQuery := `
		INSERT INTO survey_submissions (
			id, employee_email, survey_kind, session_id, session_number, payload
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING submitted_at
	`

	err = tx.QueryRow(ctx, insertQuery,
		sub.ID,
		sub.EmployeeEmail,
		sub.SurveyKind,
		sub.SessionID,
		sub.SessionNumber,
		sub.Payload,
	).Scan(&sub.SubmittedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert survey submission: %w", err)
	}

	for _, s := range scores {
		_, err := tx.Exec(ctx,
			`INSERT INTO competency_scores (submission_id, competency, score, phase) VALUES ($1, $2, $3, $4)`,
			sub.ID, s.Competency, s.Score, s.Phase,
		)
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		if err != nil {
			return fmt.Errorf("insert competency score %s: %w", s.Competency, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("failed to commit survey submission",
			zap.Error(err),
			zap.String("submission_id", sub.ID.String()),
		)
		return fmt.Errorf("commit transaction: %w", err)
	}

	r.logger.Info("survey submitted",
		zap.String("submission_id", sub.ID.String()),
		zap.String("survey_kind", sub.SurveyKind),
		zap.Int("competency_scores", len(scores)),
	)

	return nil
}

// CreateCheckpoint stores a checkpoint. Returns ErrDuplicate when the
// employee already has one with that number.
func (r *Repository) CreateCheckpoint(ctx context.Context, cp *Checkpoint) error {
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if len(cp.Payload) == 0 {
		cp.Payload = []byte("{}")
	}

	query := `
		INSERT INTO checkpoints (id, employee_email, checkpoint_number, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	err := r.db.Pool().QueryRow(ctx, query, cp.ID, cp.EmployeeEmail, cp.CheckpointNumber, cp.Payload).Scan(&cp.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}

	return nil
}

// ListCheckpoints returns an employee's checkpoints in ordinal order.
func (r *Repository) ListCheckpoints(ctx context.Context, email string) ([]Checkpoint, error) {
	query := `
		SELECT id, employee_email, checkpoint_number, payload, created_at
		FROM checkpoints
		WHERE employee_email = $1
		ORDER BY checkpoint_number ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		var cp Checkpoint
		if err := rows.Scan(&cp.ID, &cp.EmployeeEmail, &cp.CheckpointNumber, &cp.Payload, &cp.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out = append(out, cp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return out, nil
}

// ListTemplates returns every stored nudge template.
func (r *Repository) ListTemplates(ctx context.Context) ([]Template, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT kind, body, updated_at FROM nudge_templates`)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		var t Template
		if err := rows.Scan(&t.Kind, &t.Body, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return out, nil
}
