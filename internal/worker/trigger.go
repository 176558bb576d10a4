package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/tandem/internal/sqs"
)

type Queue interface {
	Receive(ctx context.Context) (*sqs.Delivery, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Trigger consumes scheduled events from a queue and runs one cycle per
// message. A message is deleted once its cycle completes; a cycle that
// fails outright leaves it for redelivery after the visibility timeout.
type Trigger struct {
	queue   Queue
	runner  *Runner
	backoff time.Duration
	logger  *zap.Logger
}

func NewTrigger(queue Queue, runner *Runner, logger *zap.Logger) *Trigger {
	return &Trigger{
		queue:   queue,
		runner:  runner,
		backoff: 5 * time.Second,
		logger:  logger,
	}
}

// Start polls until ctx is cancelled.
func (t *Trigger) Start(ctx context.Context) {
	t.logger.Info("sqs trigger consumer started")

	for {
		if ctx.Err() != nil {
			t.logger.Info("trigger consumer stopping")
			return
		}

		if err := t.poll(ctx); err != nil && ctx.Err() == nil {
			t.logger.Error("trigger poll failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(t.backoff):
			}
		}
	}
}

// poll handles at most one delivery.
func (t *Trigger) poll(ctx context.Context) error {
	d, err := t.queue.Receive(ctx)
	if err != nil {
		return err
	}
	if d == nil {
		return nil
	}

	log := t.logger.With(zap.String("message_id", d.MessageID))

	if d.Err != nil {
		if errors.Is(d.Err, sqs.ErrMalformedMessage) {
			log.Warn("dropping malformed trigger", zap.Error(d.Err))
			return t.queue.Delete(ctx, d.ReceiptHandle)
		}
		return d.Err
	}

	log.Info("dispatch triggered",
		zap.String("source", d.Trigger.Source),
		zap.Time("scheduled_at", d.Trigger.Time),
	)

	if _, err := t.runner.Run(ctx, TriggerSchedule); err != nil {
		log.Warn("leaving trigger for redelivery", zap.Error(err))
		return nil
	}

	return t.queue.Delete(ctx, d.ReceiptHandle)
}
