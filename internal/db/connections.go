package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// FindConnection returns the most recently updated Slack connection for an
// employee, with the workspace bot token joined in.
func (r *Repository) FindConnection(ctx context.Context, email string) (*Connection, bool, error) {
	query := `
		SELECT
			c.id, c.employee_email, c.workspace_id, c.slack_user_id, c.channel_id,
			c.enabled, c.frequency, to_char(c.preferred_time, 'HH24:MI'), c.timezone,
			i.bot_token, c.created_at, c.updated_at
		FROM slack_connections c
		JOIN slack_installations i ON i.workspace_id = c.workspace_id
		WHERE c.employee_email = $1
		ORDER BY c.updated_at DESC
		LIMIT 1
	`

	var c Connection
	err := r.db.Pool().QueryRow(ctx, query, email).Scan(
		&c.ID,
		&c.EmployeeEmail,
		&c.WorkspaceID,
		&c.SlackUserID,
		&c.ChannelID,
		&c.Enabled,
		&c.Frequency,
		&c.PreferredTime,
		&c.Timezone,
		&c.BotToken,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		r.logger.Error("failed to query slack connection", zap.Error(err))
		return nil, false, fmt.Errorf("query connection: %w", err)
	}

	return &c, true, nil
}

// GetInstallation loads a workspace installation.
func (r *Repository) GetInstallation(ctx context.Context, workspaceID string) (*Installation, bool, error) {
	query := `
		SELECT workspace_id, team_name, bot_token, installed_at
		FROM slack_installations
		WHERE workspace_id = $1
	`

	var inst Installation
	err := r.db.Pool().QueryRow(ctx, query, workspaceID).Scan(
		&inst.WorkspaceID,
		&inst.TeamName,
		&inst.BotToken,
		&inst.InstalledAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query installation: %w", err)
	}

	return &inst, true, nil
}

// UpsertConnection links an employee to a Slack DM channel. Relinking the
// same workspace refreshes the destination but keeps existing preferences.
func (r *Repository) UpsertConnection(ctx context.Context, c *Connection) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}

	query := `
		INSERT INTO slack_connections (
			id, employee_email, workspace_id, slack_user_id, channel_id,
			enabled, frequency, preferred_time, timezone
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::time, $9)
		ON CONFLICT (employee_email, workspace_id) DO UPDATE
		SET slack_user_id = EXCLUDED.slack_user_id,
		    channel_id = EXCLUDED.channel_id,
		    updated_at = NOW()
		RETURNING id, enabled, frequency, to_char(preferred_time, 'HH24:MI'), timezone, created_at, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		c.ID,
		c.EmployeeEmail,
		c.WorkspaceID,
		c.SlackUserID,
		c.ChannelID,
		c.Enabled,
		c.Frequency,
		c.PreferredTime,
		c.Timezone,
	).Scan(&c.ID, &c.Enabled, &c.Frequency, &c.PreferredTime, &c.Timezone, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		r.logger.Error("failed to upsert slack connection",
			zap.Error(err),
			zap.String("workspace_id", c.WorkspaceID),
		)
		return fmt.Errorf("upsert connection: %w", err)
	}

	return nil
}

// UpdatePreferences applies preferences to every workspace connection the
// employee has. Returns ErrNotFound when the employee has none.
func (r *Repository) UpdatePreferences(ctx context.Context, email string, p Preferences) error {
	query := `
		UPDATE slack_connections
		SET enabled = $2, frequency = $3, preferred_time = $4::time, timezone = $5, updated_at = NOW()
		WHERE employee_email = $1
	`

	result, err := r.db.Pool().Exec(ctx, query, email, p.Enabled, p.Frequency, p.PreferredTime, p.Timezone)
	if err != nil {
		r.logger.Error("failed to update preferences", zap.Error(err))
		return fmt.Errorf("update preferences: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}
