// Package directory maps employees to their Slack destination and the
// notification preferences that gate every nudge.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/tandem/internal/db"
	"github.com/lalithlochan/tandem/internal/slack"
)

var (
	// ErrNoInstallation means the app is not installed in the workspace.
	ErrNoInstallation = errors.New("slack app is not installed in this workspace")
	// ErrNotConnected means the employee has never linked Slack.
	ErrNotConnected = errors.New("employee has no slack connection")
	// ErrInvalidPreferences wraps every preference validation failure.
	ErrInvalidPreferences = errors.New("invalid preferences")
)

// Defaults applied to a newly linked connection.
const (
	DefaultFrequency     = db.FrequencySmart
	DefaultPreferredTime = "09:00"
	DefaultTimezone      = "UTC"
)

type Store interface {
	FindConnection(ctx context.Context, email string) (*db.Connection, bool, error)
	GetInstallation(ctx context.Context, workspaceID string) (*db.Installation, bool, error)
	UpsertConnection(ctx context.Context, c *db.Connection) error
	UpdatePreferences(ctx context.Context, email string, p db.Preferences) error
}

// Opener resolves a Slack user by email and opens a DM with them.
type Opener interface {
	OpenDirectMessage(ctx context.Context, token, email string) (slack.DirectMessage, error)
}

type Directory struct {
	store  Store
	opener Opener
	logger *zap.Logger
}

func New(store Store, opener Opener, logger *zap.Logger) *Directory {
	return &Directory{store: store, opener: opener, logger: logger}
}

// Resolve returns the employee's connection with the workspace bot token
// filled in. found is false when the employee never linked Slack.
func (d *Directory) Resolve(ctx context.Context, email string) (*db.Connection, bool, error) {
	return d.store.FindConnection(ctx, email)
}

// Link connects the employee to their DM channel in workspaceID. A first
// link gets default preferences, with the timezone taken from the Slack
// profile when it is a valid IANA name. Relinking keeps preferences.
func (d *Directory) Link(ctx context.Context, email, workspaceID string) (*db.Connection, error) {
	inst, found, err := d.store.GetInstallation(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if !found || inst.BotToken == "" {
		return nil, ErrNoInstallation
	}

	dm, err := d.opener.OpenDirectMessage(ctx, inst.BotToken, email)
	if err != nil {
		return nil, fmt.Errorf("open direct message: %w", err)
	}

	tz := DefaultTimezone
	if dm.Timezone != "" {
		if _, err := time.LoadLocation(dm.Timezone); err == nil {
			tz = dm.Timezone
		}
	}

	conn := &db.Connection{
		EmployeeEmail: email,
		WorkspaceID:   workspaceID,
		SlackUserID:   dm.UserID,
		ChannelID:     dm.ChannelID,
		Enabled:       true,
		Frequency:     DefaultFrequency,
		PreferredTime: DefaultPreferredTime,
		Timezone:      tz,
	}

	if err := d.store.UpsertConnection(ctx, conn); err != nil {
		return nil, err
	}
	conn.BotToken = inst.BotToken

	d.logger.Info("slack connection linked",
		zap.String("workspace_id", workspaceID),
		zap.String("slack_user_id", dm.UserID),
	)

	return conn, nil
}

// UpdatePreferences validates and stores p for every connection the
// employee has.
func (d *Directory) UpdatePreferences(ctx context.Context, email string, p db.Preferences) (db.Preferences, error) {
	p, err := NormalizePreferences(p)
	if err != nil {
		return db.Preferences{}, err
	}

	if err := d.store.UpdatePreferences(ctx, email, p); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return db.Preferences{}, ErrNotConnected
		}
		return db.Preferences{}, err
	}

	return p, nil
}

// NormalizePreferences checks p and fills the timezone default. Preferred
// time must be HH:MM on the 24 hour clock.
func NormalizePreferences(p db.Preferences) (db.Preferences, error) {
	switch p.Frequency {
	case db.FrequencySmart, db.FrequencyDaily, db.FrequencyWeekly, db.FrequencyNone:
	default:
		return p, fmt.Errorf("%w: unknown frequency %q", ErrInvalidPreferences, p.Frequency)
	}

	t, err := time.Parse("15:04", p.PreferredTime)
	if err != nil {
		return p, fmt.Errorf("%w: preferred_time must be HH:MM", ErrInvalidPreferences)
	}
	p.PreferredTime = t.Format("15:04")

	if p.Timezone == "" {
		p.Timezone = DefaultTimezone
	}
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return p, fmt.Errorf("%w: unknown timezone %q", ErrInvalidPreferences, p.Timezone)
	}

	return p, nil
}
