package nudge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/tandem/internal/db"
	"github.com/lalithlochan/tandem/internal/metrics"
	"github.com/lalithlochan/tandem/internal/slack"
)

// ErrUnauthenticated is returned when a callback fails signature or replay
// checks. Nothing is mutated in that case.
var ErrUnauthenticated = errors.New("callback failed authentication")

// Button ids carried on nudge messages.
const (
	ActionDone       = "done"
	ActionInProgress = "in_progress"
	ActionReschedule = "reschedule"
	ActionNeedHelp   = "need_help"

	progressPrefix = "progress_"
)

const callbackScope = "slack_callback"

// ResponseStore is the slice of the repository the recorder writes to.
type ResponseStore interface {
	FindNudgeByMessage(ctx context.Context, messageTS, channelID string) (*db.Nudge, bool, error)
	MarkNudgeResponded(ctx context.Context, id uuid.UUID, response string, at time.Time) error
	CompleteActionItem(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Deduper claims a key once. A false result means another delivery of the
// same click already claimed it. Release drops a claim after a failed write.
type Deduper interface {
	Reserve(ctx context.Context, scope, key string) (bool, error)
	Release(ctx context.Context, scope, key string) error
}

type Recorder struct {
	secret    string
	store     ResponseStore
	directory ConnectionResolver
	messenger Messenger
	deduper   Deduper
	logger    *zap.Logger
	now       func() time.Time
}

// NewRecorder creates a Recorder. deduper may be nil.
func NewRecorder(
	signingSecret string,
	store ResponseStore,
	directory ConnectionResolver,
	messenger Messenger,
	deduper Deduper,
	logger *zap.Logger,
) *Recorder {
	return &Recorder{
		secret:    signingSecret,
		store:     store,
		directory: directory,
		messenger: messenger,
		deduper:   deduper,
		logger:    logger,
		now:       time.Now,
	}
}

// Handle processes one interaction callback. Only authentication failures
// are returned; everything after that is best effort and logged, since a
// non-2xx reply makes Slack redeliver the same click.
func (r *Recorder) Handle(ctx context.Context, header http.Header, body []byte) error {
	if err := slack.VerifyRequest(header, body, r.secret); err != nil {
		r.logger.Warn("rejected slack callback", zap.Error(err))
		metrics.RecordCallback("rejected")
		return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	in, err := slack.ParseInteraction(body)
	if err != nil {
		if errors.Is(err, slack.ErrNotBlockAction) {
			metrics.RecordCallback("ignored")
		} else {
			r.logger.Warn("undecodable slack callback", zap.Error(err))
			metrics.RecordCallback("malformed")
		}
		return nil
	}

	metrics.RecordCallback(r.process(ctx, in))
	return nil
}

func (r *Recorder) process(ctx context.Context, in slack.Interaction) string {
	log := r.logger.With(
		zap.String("action_id", in.ActionID),
		zap.String("channel_id", in.ChannelID),
		zap.String("ts", in.MessageTS),
	)

	key := in.ChannelID + ":" + in.MessageTS + ":" + in.ActionID
	claimed := false
	if r.deduper != nil {
		first, err := r.deduper.Reserve(ctx, callbackScope, key)
		if err != nil {
			// Mutations below are set-to, so a repeat is harmless.
			log.Warn("callback dedupe unavailable", zap.Error(err))
		} else if !first {
			log.Debug("duplicate callback delivery")
			return "duplicate"
		} else {
			claimed = true
		}
	}

	result := r.apply(ctx, log, in)
	if result == "error" && claimed {
		// Let a repeat click retry the writes that failed.
		if err := r.deduper.Release(ctx, callbackScope, key); err != nil {
			log.Warn("failed to release callback claim", zap.Error(err))
		}
	}
	return result
}

func (r *Recorder) apply(ctx context.Context, log *zap.Logger, in slack.Interaction) string {
	n, found, err := r.store.FindNudgeByMessage(ctx, in.MessageTS, in.ChannelID)
	if err != nil {
		log.Error("nudge lookup failed", zap.Error(err))
		return "error"
	}
	if !found {
		log.Info("callback for unknown message")
		return "unknown_message"
	}

	now := r.now()
	result := "processed"

	if err := r.store.MarkNudgeResponded(ctx, n.ID, in.ActionID, now); err != nil {
		log.Error("failed to record response", zap.Error(err))
		result = "error"
	}

	if in.ActionID == ActionDone && n.ReferenceType == db.RefActionItem {
		if err := r.completeActionItem(ctx, n.ReferenceID, now); err != nil {
			log.Error("failed to complete action item", zap.String("reference_id", n.ReferenceID), zap.Error(err))
			result = "error"
		}
	}

	r.acknowledge(ctx, log, n, in)

	return result
}

func (r *Recorder) completeActionItem(ctx context.Context, ref string, at time.Time) error {
	id, err := uuid.Parse(ref)
	if err != nil {
		return fmt.Errorf("reference id %q: %w", ref, err)
	}
	return r.store.CompleteActionItem(ctx, id, at)
}

// acknowledge replaces the buttons on the original message with a short
// confirmation. Failures only cost the user the visual confirmation.
func (r *Recorder) acknowledge(ctx context.Context, log *zap.Logger, n *db.Nudge, in slack.Interaction) {
	conn, found, err := r.directory.Resolve(ctx, n.EmployeeEmail)
	if err != nil || !found || conn.BotToken == "" {
		log.Warn("no credential to acknowledge callback", zap.Error(err))
		return
	}

	text := AcknowledgementText(in.ActionID)
	msg := slack.Message{
		Text:   text,
		Blocks: slack.AcknowledgedBlocks(in.Blocks, text),
	}

	if err := r.messenger.UpdateMessage(ctx, conn.BotToken, in.ChannelID, in.MessageTS, msg); err != nil {
		log.Warn("failed to acknowledge callback", zap.Error(err))
	}
}

// AcknowledgementText is what replaces the buttons once one is clicked.
func AcknowledgementText(actionID string) string {
	switch actionID {
	case ActionDone:
		return ":white_check_mark: Marked as done. Nice work!"
	case ActionInProgress:
		return ":hourglass_flowing_sand: Got it, still in progress."
	case ActionReschedule:
		return ":calendar: Noted. Update the due date in the portal when you're ready."
	case ActionNeedHelp:
		return ":raised_hand: Thanks for flagging it. Your coach will follow up."
	}
	if rating, ok := strings.CutPrefix(actionID, progressPrefix); ok && rating != "" {
		return fmt.Sprintf(":bar_chart: Thanks! You rated your progress %s out of 5.", rating)
	}
	return "Thanks, response recorded."
}
