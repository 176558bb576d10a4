package nudge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/tandem/internal/db"
	"github.com/lalithlochan/tandem/internal/metrics"
	"github.com/lalithlochan/tandem/internal/slack"
)

// Dispatch results
const (
	ResultSent    = "sent"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

// Skip reasons
const (
	SkipNoConnection  = "no_connection"
	SkipNoCredential  = "no_credential"
	SkipDisabled      = "disabled"
	SkipFrequency     = "frequency"
	SkipOutsideWindow = "outside_window"
	SkipDuplicate     = "duplicate"
	SkipNoTemplate    = "no_template"
)

// NudgeStore reads and writes nudge records.
type NudgeStore interface {
	FindNudge(ctx context.Context, email, kind, referenceID string) (*db.Nudge, bool, error)
	CreateNudge(ctx context.Context, n *db.Nudge) error
}

// ConnectionResolver finds an employee's Slack destination.
type ConnectionResolver interface {
	Resolve(ctx context.Context, email string) (*db.Connection, bool, error)
}

// Messenger sends and edits Slack messages.
type Messenger interface {
	PostMessage(ctx context.Context, token, channelID string, msg slack.Message) (string, error)
	UpdateMessage(ctx context.Context, token, channelID, ts string, msg slack.Message) error
}

// HealthChecker confirms the store is reachable before a cycle starts.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Outcome is the decision for one candidate.
type Outcome struct {
	Result string
	Reason string
	Err    error
}

// DispatcherConfig holds the per-deployment delivery rules.
type DispatcherConfig struct {
	// WeeklyDigestOnly limits frequency=weekly subscribers to the digest.
	// With it off they also receive the individual nudges.
	WeeklyDigestOnly bool
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{WeeklyDigestOnly: true}
}

type Dispatcher struct {
	config    DispatcherConfig
	store     NudgeStore
	directory ConnectionResolver
	messenger Messenger
	scanner   *Scanner
	templates TemplateSource
	health    HealthChecker
	logger    *zap.Logger
	now       func() time.Time
}

func NewDispatcher(
	store NudgeStore,
	directory ConnectionResolver,
	messenger Messenger,
	scanner *Scanner,
	templates TemplateSource,
	health HealthChecker,
	cfg DispatcherConfig,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		config:    cfg,
		store:     store,
		directory: directory,
		messenger: messenger,
		scanner:   scanner,
		templates: templates,
		health:    health,
		logger:    logger,
		now:       time.Now,
	}
}

// RunCycle scans for candidates and dispatches each one. An error is
// returned only when the cycle cannot start; per-candidate failures are
// counted in the summary and never abort the cycle.
func (d *Dispatcher) RunCycle(ctx context.Context) (*Summary, error) {
	now := d.now()
	summary := NewSummary(now)

	if err := d.health.Health(ctx); err != nil {
		return nil, fmt.Errorf("store unavailable: %w", err)
	}

	templates, err := d.templates.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	scan := d.scanner.Scan(ctx, now)

	for _, kind := range Kinds {
		summary.addScanErrors(kind, scan.Errors[kind])

		for _, c := range scan.Candidates[kind] {
			summary.add(kind, d.Dispatch(ctx, c, templates, now))
		}
	}

	summary.FinishedAt = d.now()

	d.logger.Info("dispatch cycle finished",
		zap.Int("sent", summary.Sent()),
		zap.Int("errors", summary.Errors),
		zap.Duration("duration", summary.FinishedAt.Sub(summary.StartedAt)),
	)

	return summary, nil
}

// Dispatch runs the guards for one candidate in order and sends at most
// one message.
func (d *Dispatcher) Dispatch(ctx context.Context, c Candidate, templates TemplateSet, now time.Time) Outcome {
	out := d.dispatch(ctx, c, templates, now)
	metrics.RecordNudge(c.Kind, out.Result, out.Reason)
	return out
}

func (d *Dispatcher) dispatch(ctx context.Context, c Candidate, templates TemplateSet, now time.Time) Outcome {
	log := d.logger.With(
		zap.String("kind", c.Kind),
		zap.String("reference_id", c.ReferenceID),
	)

	conn, found, err := d.directory.Resolve(ctx, c.EmployeeEmail)
	if err != nil {
		log.Error("connection lookup failed", zap.Error(err))
		return Outcome{Result: ResultFailed, Err: err}
	}
	if !found {
		return d.skip(log, SkipNoConnection)
	}
	if conn.BotToken == "" {
		return d.skip(log, SkipNoCredential)
	}

	if !conn.Enabled || conn.Frequency == db.FrequencyNone {
		return d.skip(log, SkipDisabled)
	}

	weekly := conn.Frequency == db.FrequencyWeekly
	if c.Kind == db.KindWeeklyDigest && !weekly {
		return d.skip(log, SkipFrequency)
	}
	if d.config.WeeklyDigestOnly && weekly && c.Kind != db.KindWeeklyDigest {
		return d.skip(log, SkipFrequency)
	}

	if !WithinSendWindow(now, conn.PreferredTime, conn.Timezone) {
		return d.skip(log, SkipOutsideWindow)
	}

	_, exists, err := d.store.FindNudge(ctx, c.EmployeeEmail, c.Kind, c.ReferenceID)
	if err != nil {
		log.Error("dedupe lookup failed", zap.Error(err))
		return Outcome{Result: ResultFailed, Err: err}
	}
	if exists {
		return d.skip(log, SkipDuplicate)
	}

	tmpl, ok := templates.Lookup(c.Kind)
	if !ok {
		log.Warn("no template configured")
		return d.skip(log, SkipNoTemplate)
	}

	msg := tmpl.Render(c.Vars).Message()

	ts, err := d.messenger.PostMessage(ctx, conn.BotToken, conn.ChannelID, msg)
	if err != nil {
		log.Error("failed to send nudge", zap.Error(err))
		return Outcome{Result: ResultFailed, Err: err}
	}

	record := &db.Nudge{
		EmployeeEmail: c.EmployeeEmail,
		Kind:          c.Kind,
		ReferenceID:   c.ReferenceID,
		ReferenceType: c.ReferenceType,
		ChannelID:     conn.ChannelID,
		MessageTS:     ts,
		Status:        db.NudgeStatusSent,
		SentAt:        now,
	}

	if err := d.store.CreateNudge(ctx, record); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			// An overlapping cycle recorded it first; our message still went out.
			log.Warn("nudge already recorded by a concurrent cycle", zap.String("ts", ts))
			return Outcome{Result: ResultSent}
		}
		log.Error("nudge sent but not recorded", zap.Error(err), zap.String("ts", ts))
		return Outcome{Result: ResultFailed, Err: err}
	}

	log.Info("nudge sent", zap.String("channel_id", conn.ChannelID), zap.String("ts", ts))
	return Outcome{Result: ResultSent}
}

func (d *Dispatcher) skip(log *zap.Logger, reason string) Outcome {
	log.Debug("nudge skipped", zap.String("reason", reason))
	return Outcome{Result: ResultSkipped, Reason: reason}
}
