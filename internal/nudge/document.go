package nudge

import (
	"fmt"
	"strings"

	goslack "github.com/slack-go/slack"

	"github.com/lalithlochan/tandem/internal/slack"
)

// Block types a template may use.
const (
	BlockHeader  = "header"
	BlockSection = "section"
	BlockContext = "context"
	BlockDivider = "divider"
	BlockActions = "actions"
)

// ActionsBlockID identifies the button row on every nudge.
const ActionsBlockID = "nudge_actions"

// Document is a nudge template: a tree of blocks whose text leaves may
// contain {{name}} placeholders.
type Document struct {
	Fallback string  `json:"fallback" yaml:"fallback"`
	Blocks   []Block `json:"blocks" yaml:"blocks"`
}

type Block struct {
	Type     string   `json:"type" yaml:"type"`
	Text     string   `json:"text,omitempty" yaml:"text,omitempty"`
	Fields   []string `json:"fields,omitempty" yaml:"fields,omitempty"`
	Elements []string `json:"elements,omitempty" yaml:"elements,omitempty"`
	Buttons  []Button `json:"buttons,omitempty" yaml:"buttons,omitempty"`
}

type Button struct {
	ActionID string `json:"action_id" yaml:"action_id"`
	Label    string `json:"label" yaml:"label"`
	Value    string `json:"value,omitempty" yaml:"value,omitempty"`
	Style    string `json:"style,omitempty" yaml:"style,omitempty"`
}

// Vars are the values substituted into a template.
type Vars map[string]string

// Validate checks the document is something Slack will accept.
func (d Document) Validate() error {
	if strings.TrimSpace(d.Fallback) == "" {
		return fmt.Errorf("fallback text is required")
	}
	if len(d.Blocks) == 0 {
		return fmt.Errorf("at least one block is required")
	}
	for i, b := range d.Blocks {
		switch b.Type {
		case BlockHeader, BlockSection:
			if strings.TrimSpace(b.Text) == "" && len(b.Fields) == 0 {
				return fmt.Errorf("block %d (%s): text is required", i, b.Type)
			}
		case BlockContext:
			if len(b.Elements) == 0 {
				return fmt.Errorf("block %d (context): at least one element is required", i)
			}
		case BlockDivider:
		case BlockActions:
			if len(b.Buttons) == 0 {
				return fmt.Errorf("block %d (actions): at least one button is required", i)
			}
			for j, btn := range b.Buttons {
				if btn.ActionID == "" || btn.Label == "" {
					return fmt.Errorf("block %d button %d: action_id and label are required", i, j)
				}
				if btn.Style != "" && btn.Style != "primary" && btn.Style != "danger" {
					return fmt.Errorf("block %d button %d: unknown style %q", i, j, btn.Style)
				}
			}
		default:
			return fmt.Errorf("block %d: unknown type %q", i, b.Type)
		}
	}
	return nil
}

// Render returns a copy of the document with every placeholder replaced.
// Only leaves sent as mrkdwn get escaped. Header text and button labels
// are plain_text, and button values come back to us verbatim.
func (d Document) Render(vars Vars) Document {
	text := func(s string) string { return substitute(s, vars, escapeMrkdwn) }
	raw := func(s string) string { return substitute(s, vars, nil) }

	out := Document{
		Fallback: raw(d.Fallback),
		Blocks:   make([]Block, len(d.Blocks)),
	}

	for i, b := range d.Blocks {
		rb := Block{Type: b.Type}
		if b.Type == BlockHeader {
			rb.Text = raw(b.Text)
		} else {
			rb.Text = text(b.Text)
		}
		for _, f := range b.Fields {
			rb.Fields = append(rb.Fields, text(f))
		}
		for _, e := range b.Elements {
			rb.Elements = append(rb.Elements, text(e))
		}
		for _, btn := range b.Buttons {
			rb.Buttons = append(rb.Buttons, Button{
				ActionID: btn.ActionID,
				Label:    raw(btn.Label),
				Value:    raw(btn.Value),
				Style:    btn.Style,
			})
		}
		out.Blocks[i] = rb
	}

	return out
}

// Message converts a rendered document to a Slack message.
func (d Document) Message() slack.Message {
	blocks := make([]goslack.Block, 0, len(d.Blocks))

	for _, b := range d.Blocks {
		switch b.Type {
		case BlockHeader:
			blocks = append(blocks, goslack.NewHeaderBlock(
				goslack.NewTextBlockObject(goslack.PlainTextType, b.Text, true, false),
			))
		case BlockSection:
			var textObj *goslack.TextBlockObject
			if b.Text != "" {
				textObj = goslack.NewTextBlockObject(goslack.MarkdownType, b.Text, false, false)
			}
			var fields []*goslack.TextBlockObject
			for _, f := range b.Fields {
				fields = append(fields, goslack.NewTextBlockObject(goslack.MarkdownType, f, false, false))
			}
			blocks = append(blocks, goslack.NewSectionBlock(textObj, fields, nil))
		case BlockContext:
			var elems []goslack.MixedElement
			for _, e := range b.Elements {
				if e == "" {
					continue
				}
				elems = append(elems, goslack.NewTextBlockObject(goslack.MarkdownType, e, false, false))
			}
			if len(elems) > 0 {
				blocks = append(blocks, goslack.NewContextBlock("", elems...))
			}
		case BlockDivider:
			blocks = append(blocks, goslack.NewDividerBlock())
		case BlockActions:
			var elems []goslack.BlockElement
			for _, btn := range b.Buttons {
				el := goslack.NewButtonBlockElement(btn.ActionID, btn.Value,
					goslack.NewTextBlockObject(goslack.PlainTextType, btn.Label, true, false),
				)
				if btn.Style != "" {
					el = el.WithStyle(goslack.Style(btn.Style))
				}
				elems = append(elems, el)
			}
			blocks = append(blocks, goslack.NewActionBlock(ActionsBlockID, elems...))
		}
	}

	return slack.Message{Text: d.Fallback, Blocks: blocks}
}

// substitute replaces {{name}} tokens in one left-to-right pass. Values are
// never rescanned, so a value that itself looks like a placeholder stays
// literal. Unknown names become "".
func substitute(s string, vars Vars, escape func(string) string) string {
	if !strings.Contains(s, "{{") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for {
		start := strings.Index(s, "{{")
		if start < 0 {
			b.WriteString(s)
			break
		}
		end := strings.Index(s[start+2:], "}}")
		if end < 0 {
			b.WriteString(s)
			break
		}

		b.WriteString(s[:start])
		name := strings.TrimSpace(s[start+2 : start+2+end])
		val := vars[name]
		if escape != nil {
			val = escape(val)
		}
		b.WriteString(val)
		s = s[start+2+end+2:]
	}

	return b.String()
}

var mrkdwnEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// escapeMrkdwn escapes the three characters Slack treats as control
// sequences in mrkdwn.
func escapeMrkdwn(s string) string {
	return mrkdwnEscaper.Replace(s)
}
