package slack

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/slack-go/slack"
)

// ErrNotBlockAction is returned for interaction types other than button
// clicks (shortcuts, modal submissions).
var ErrNotBlockAction = errors.New("interaction is not a block action")

// Interaction is a button click on a message we posted.
type Interaction struct {
	ActionID  string
	Value     string
	ChannelID string
	MessageTS string
	UserID    string

	// Blocks of the clicked message, used to rewrite it in place.
	Blocks []slack.Block
}

// ParseInteraction decodes the form-encoded payload Slack posts to the
// interactivity URL.
func ParseInteraction(body []byte) (Interaction, error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return Interaction{}, fmt.Errorf("parse form: %w", err)
	}

	payload := form.Get("payload")
	if payload == "" {
		return Interaction{}, errors.New("payload is empty")
	}

	var cb slack.InteractionCallback
	if err := json.Unmarshal([]byte(payload), &cb); err != nil {
		return Interaction{}, fmt.Errorf("decode payload: %w", err)
	}

	if cb.Type != slack.InteractionTypeBlockActions || len(cb.ActionCallback.BlockActions) == 0 {
		return Interaction{}, ErrNotBlockAction
	}

	action := cb.ActionCallback.BlockActions[0]

	in := Interaction{
		ActionID:  action.ActionID,
		Value:     action.Value,
		ChannelID: cb.Container.ChannelID,
		MessageTS: cb.Container.MessageTs,
		UserID:    cb.User.ID,
		Blocks:    cb.Message.Blocks.BlockSet,
	}

	if in.ChannelID == "" {
		in.ChannelID = cb.Channel.ID
	}
	if in.MessageTS == "" {
		in.MessageTS = cb.Message.Timestamp
	}

	return in, nil
}

// AcknowledgedBlocks returns blocks with every actions block removed and a
// context line carrying text appended, so a clicked message cannot be
// clicked again.
func AcknowledgedBlocks(blocks []slack.Block, text string) []slack.Block {
	out := make([]slack.Block, 0, len(blocks)+1)
	for _, b := range blocks {
		if b.BlockType() == slack.MBTAction {
			continue
		}
		out = append(out, b)
	}
	return append(out, slack.NewContextBlock("nudge_ack",
		slack.NewTextBlockObject(slack.MarkdownType, text, false, false),
	))
}
