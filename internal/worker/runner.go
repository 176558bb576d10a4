// Package worker drives dispatch cycles from a timer or a trigger queue and
// reports each cycle's outcome.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/tandem/internal/metrics"
	"github.com/lalithlochan/tandem/internal/nudge"
	"github.com/lalithlochan/tandem/internal/sns"
)

// Trigger labels on cycle metrics and reports.
const (
	TriggerHTTP     = "http"
	TriggerTimer    = "timer"
	TriggerSchedule = "schedule"
)

type Cycler interface {
	RunCycle(ctx context.Context) (*nudge.Summary, error)
}

type Reporter interface {
	PublishSummary(ctx context.Context, r sns.Report) (string, error)
}

// Runner runs one dispatch cycle and records its outcome. Every entry
// point (HTTP, timer, queue) goes through it.
type Runner struct {
	cycler   Cycler
	reporter Reporter
	logger   *zap.Logger
}

// NewRunner wraps cycler. reporter may be nil.
func NewRunner(cycler Cycler, reporter Reporter, logger *zap.Logger) *Runner {
	return &Runner{cycler: cycler, reporter: reporter, logger: logger}
}

func (r *Runner) Run(ctx context.Context, trigger string) (*nudge.Summary, error) {
	start := time.Now()
	summary, err := r.cycler.RunCycle(ctx)
	duration := time.Since(start)

	status := sns.StatusOK
	if err != nil {
		status = sns.StatusFailed
		r.logger.Error("dispatch cycle failed",
			zap.String("trigger", trigger),
			zap.Error(err),
		)
	}
	metrics.RecordCycle(trigger, status, duration)

	r.report(ctx, trigger, status, summary, err)
	return summary, err
}

// report publishes the outcome. A publish failure never fails the cycle.
func (r *Runner) report(ctx context.Context, trigger, status string, summary *nudge.Summary, cycleErr error) {
	if r.reporter == nil {
		return
	}

	report := sns.Report{
		EventType: sns.EventDispatchCycle,
		Trigger:   trigger,
		Status:    status,
	}
	if summary != nil {
		report.Summary = summary
	}
	if cycleErr != nil {
		report.Error = cycleErr.Error()
	}

	if _, err := r.reporter.PublishSummary(ctx, report); err != nil {
		r.logger.Warn("failed to publish cycle report",
			zap.String("trigger", trigger),
			zap.Error(err),
		)
	}
}
