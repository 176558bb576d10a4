package circuitbreaker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalithlochan/tandem/internal/slack"
)

// Messenger is the Slack surface the dispatcher and recorder call.
type Messenger interface {
	PostMessage(ctx context.Context, token, channelID string, msg slack.Message) (string, error)
	UpdateMessage(ctx context.Context, token, channelID, ts string, msg slack.Message) error
}

// ProtectedMessenger wraps a Messenger with a breaker. Rejections for one
// recipient (a deleted channel, a revoked token) count as successes for
// the breaker since Slack itself answered.
type ProtectedMessenger struct {
	next    Messenger
	breaker *CircuitBreaker
	logger  *zap.Logger
}

func NewProtectedMessenger(next Messenger, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedMessenger {
	return &ProtectedMessenger{next: next, breaker: breaker, logger: logger}
}

func (p *ProtectedMessenger) PostMessage(ctx context.Context, token, channelID string, msg slack.Message) (string, error) {
	if err := p.allow("chat.postMessage"); err != nil {
		return "", err
	}
	ts, err := p.next.PostMessage(ctx, token, channelID, msg)
	p.record(err)
	return ts, err
}

func (p *ProtectedMessenger) UpdateMessage(ctx context.Context, token, channelID, ts string, msg slack.Message) error {
	if err := p.allow("chat.update"); err != nil {
		return err
	}
	err := p.next.UpdateMessage(ctx, token, channelID, ts, msg)
	p.record(err)
	return err
}

func (p *ProtectedMessenger) allow(method string) error {
	if p.breaker.Allow() {
		return nil
	}
	p.logger.Warn("circuit breaker rejected slack call",
		zap.String("breaker", p.breaker.config.Name),
		zap.String("method", method),
	)
	return fmt.Errorf("%w: %s unavailable", ErrCircuitOpen, p.breaker.config.Name)
}

func (p *ProtectedMessenger) record(err error) {
	if err == nil || slack.IsRecipientError(err) {
		p.breaker.RecordSuccess()
		return
	}
	p.breaker.RecordFailure()
}
