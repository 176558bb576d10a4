package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ActionItemsDue calls nudge_action_items_due for due dates in [from, to].
func (r *Repository) ActionItemsDue(ctx context.Context, from, to time.Time) ([]ActionItemDue, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT * FROM nudge_action_items_due($1, $2)`, from, to)
	if err != nil {
		return nil, fmt.Errorf("call nudge_action_items_due: %w", err)
	}
	defer rows.Close()

	var items []ActionItemDue
	for rows.Next() {
		var it ActionItemDue
		if err := rows.Scan(
			&it.ActionItemID,
			&it.EmployeeEmail,
			&it.FirstName,
			&it.CoachName,
			&it.Title,
			&it.DueDate,
		); err != nil {
			return nil, fmt.Errorf("scan action item: %w", err)
		}
		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return items, nil
}

// SessionsForGoalCheckin calls nudge_goal_checkin_sessions for completed
// sessions dated in [from, to).
func (r *Repository) SessionsForGoalCheckin(ctx context.Context, from, to time.Time) ([]SessionCandidate, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT * FROM nudge_goal_checkin_sessions($1, $2)`, from, to)
	if err != nil {
		return nil, fmt.Errorf("call nudge_goal_checkin_sessions: %w", err)
	}
	return collectSessions(rows)
}

// SessionsForPrep calls nudge_session_prep for upcoming sessions on day.
func (r *Repository) SessionsForPrep(ctx context.Context, day time.Time) ([]SessionCandidate, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT * FROM nudge_session_prep($1)`, day)
	if err != nil {
		return nil, fmt.Errorf("call nudge_session_prep: %w", err)
	}
	return collectSessions(rows)
}

func collectSessions(rows pgx.Rows) ([]SessionCandidate, error) {
	defer rows.Close()

	var sessions []SessionCandidate
	for rows.Next() {
		var s SessionCandidate
		if err := rows.Scan(
			&s.SessionID,
			&s.EmployeeEmail,
			&s.FirstName,
			&s.CoachName,
			&s.SessionNumber,
			&s.SessionDate,
			&s.Goals,
			&s.Program,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return sessions, nil
}

// WeeklyDigestCandidates calls nudge_weekly_digest_candidates. weekEnd
// bounds the "due this week" count.
func (r *Repository) WeeklyDigestCandidates(ctx context.Context, weekEnd time.Time) ([]DigestCandidate, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT * FROM nudge_weekly_digest_candidates($1)`, weekEnd)
	if err != nil {
		return nil, fmt.Errorf("call nudge_weekly_digest_candidates: %w", err)
	}
	defer rows.Close()

	var out []DigestCandidate
	for rows.Next() {
		var d DigestCandidate
		if err := rows.Scan(&d.EmployeeEmail, &d.FirstName, &d.OpenItems, &d.DueThisWeek); err != nil {
			return nil, fmt.Errorf("scan digest candidate: %w", err)
		}
		out = append(out, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return out, nil
}

// CompleteActionItem marks an action item completed. The first completion
// time wins so repeated clicks do not move it.
func (r *Repository) CompleteActionItem(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE action_items
		SET status = $2, completed_at = COALESCE(completed_at, $3), updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query, id, ActionItemCompleted, at)
	if err != nil {
		return fmt.Errorf("complete action item: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}
