package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const nudgeColumns = `
	id, employee_email, kind, reference_id, reference_type,
	channel_id, message_ts, status, response, sent_at, responded_at
`

func scanNudge(row pgx.Row) (*Nudge, error) {
	var n Nudge
	err := row.Scan(
		&n.ID,
		&n.EmployeeEmail,
		&n.Kind,
		&n.ReferenceID,
		&n.ReferenceType,
		&n.ChannelID,
		&n.MessageTS,
		&n.Status,
		&n.Response,
		&n.SentAt,
		&n.RespondedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// FindNudge looks up the nudge for a dedupe key.
func (r *Repository) FindNudge(ctx context.Context, email, kind, referenceID string) (*Nudge, bool, error) {
	query := `SELECT ` + nudgeColumns + `
		FROM nudges
		WHERE employee_email = $1 AND kind = $2 AND reference_id = $3
	`

	n, err := scanNudge(r.db.Pool().QueryRow(ctx, query, email, kind, referenceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		r.logger.Error("failed to query nudge",
			zap.Error(err),
			zap.String("kind", kind),
			zap.String("reference_id", referenceID),
		)
		return nil, false, fmt.Errorf("query nudge: %w", err)
	}

	return n, true, nil
}

// CreateNudge records a delivered nudge. A second insert for the same
// dedupe key returns ErrDuplicate.
func (r *Repository) CreateNudge(ctx context.Context, n *Nudge) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Status == "" {
		n.Status = NudgeStatusSent
	}

	query := `
		INSERT INTO nudges (
			id, employee_email, kind, reference_id, reference_type,
			channel_id, message_ts, status, sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		n.ID,
		n.EmployeeEmail,
		n.Kind,
		n.ReferenceID,
		n.ReferenceType,
		n.ChannelID,
		n.MessageTS,
		n.Status,
		n.SentAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		r.logger.Error("failed to create nudge",
			zap.Error(err),
			zap.String("nudge_id", n.ID.String()),
			zap.String("kind", n.Kind),
		)
		return fmt.Errorf("insert nudge: %w", err)
	}

	return nil
}

// FindNudgeByMessage resolves a Slack message back to the nudge that sent it.
func (r *Repository) FindNudgeByMessage(ctx context.Context, messageTS, channelID string) (*Nudge, bool, error) {
	query := `SELECT ` + nudgeColumns + `
		FROM nudges
		WHERE message_ts = $1 AND channel_id = $2
	`

	n, err := scanNudge(r.db.Pool().QueryRow(ctx, query, messageTS, channelID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query nudge by message: %w", err)
	}

	return n, true, nil
}

// MarkNudgeResponded overwrites the response fields. Applying it twice with
// the same response leaves the same state.
func (r *Repository) MarkNudgeResponded(ctx context.Context, id uuid.UUID, response string, at time.Time) error {
	query := `
		UPDATE nudges
		SET status = $2, response = $3, responded_at = $4
		WHERE id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query, id, NudgeStatusResponded, response, at)
	if err != nil {
		r.logger.Error("failed to record nudge response",
			zap.Error(err),
			zap.String("nudge_id", id.String()),
		)
		return fmt.Errorf("update nudge response: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// ListNudgesByEmployee returns an employee's nudges, newest first.
func (r *Repository) ListNudgesByEmployee(ctx context.Context, email string, limit, offset int) ([]*Nudge, error) {
	query := `SELECT ` + nudgeColumns + `
		FROM nudges
		WHERE employee_email = $1
		ORDER BY sent_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool().Query(ctx, query, email, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query nudges: %w", err)
	}
	defer rows.Close()

	var nudges []*Nudge
	for rows.Next() {
		n, err := scanNudge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan nudge: %w", err)
		}
		nudges = append(nudges, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return nudges, nil
}
