package nudge

import (
	"strings"
	"testing"

	goslack "github.com/slack-go/slack"
)

func TestRender_SubstitutesAndEscapes(t *testing.T) {
	doc := actionReminderTemplate()

	out := doc.Render(Vars{
		"first_name":   "Ada",
		"title":        "Fix <b> & ship",
		"due_phrase":   "*Tomorrow*",
		"reference_id": "a&b",
	})

	if out.Blocks[0].Text != "Hi Ada, *Fix &lt;b&gt; &amp; ship* is due *Tomorrow*" {
		t.Errorf("unexpected section text: %q", out.Blocks[0].Text)
	}
	if out.Fallback != "Reminder: Fix <b> & ship is due *Tomorrow*" {
		t.Errorf("expected raw fallback, got %q", out.Fallback)
	}
	if v := out.Blocks[1].Buttons[0].Value; v != "a&b" {
		t.Errorf("expected raw button value, got %q", v)
	}

	// The source template is untouched.
	if !strings.Contains(doc.Blocks[0].Text, "{{title}}") {
		t.Error("render mutated the template")
	}
}

func TestRender_PlainTextLeavesUnescaped(t *testing.T) {
	doc := Document{
		Fallback: "Hi {{n}}",
		Blocks: []Block{
			{Type: BlockHeader, Text: "Hi {{n}}"},
			{Type: BlockSection, Text: "Hi {{n}}"},
			{Type: BlockContext, Elements: []string{"Hi {{n}}"}},
			{Type: BlockActions, Buttons: []Button{{ActionID: "done", Label: "Done for {{n}}", Value: "{{n}}"}}},
		},
	}

	out := doc.Render(Vars{"n": "Tom & Jerry"})

	if got := out.Blocks[0].Text; got != "Hi Tom & Jerry" {
		t.Errorf("expected raw header text, got %q", got)
	}
	if got := out.Blocks[3].Buttons[0].Label; got != "Done for Tom & Jerry" {
		t.Errorf("expected raw button label, got %q", got)
	}
	if got := out.Blocks[1].Text; got != "Hi Tom &amp; Jerry" {
		t.Errorf("expected escaped section text, got %q", got)
	}
	if got := out.Blocks[2].Elements[0]; got != "Hi Tom &amp; Jerry" {
		t.Errorf("expected escaped context element, got %q", got)
	}

	msg := out.Message()
	header, ok := msg.Blocks[0].(*goslack.HeaderBlock)
	if !ok {
		t.Fatalf("expected header block, got %T", msg.Blocks[0])
	}
	if header.Text.Text != "Hi Tom & Jerry" {
		t.Errorf("expected plain header in message, got %q", header.Text.Text)
	}
}

func TestRender_SinglePass(t *testing.T) {
	doc := Document{Fallback: "{{a}} {{b}}", Blocks: []Block{{Type: BlockSection, Text: "{{a}}"}}}

	out := doc.Render(Vars{"a": "{{b}}", "b": "x"})

	if out.Fallback != "{{b}} x" {
		t.Errorf("expected substituted values to stay literal, got %q", out.Fallback)
	}
}

func TestRender_UnknownAndUnterminated(t *testing.T) {
	doc := Document{Fallback: "hi {{ missing }}!", Blocks: []Block{{Type: BlockSection, Text: "open {{brace"}}}

	out := doc.Render(Vars{})

	if out.Fallback != "hi !" {
		t.Errorf("expected unknown name to render empty, got %q", out.Fallback)
	}
	if out.Blocks[0].Text != "open {{brace" {
		t.Errorf("expected unterminated token to stay, got %q", out.Blocks[0].Text)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		doc     Document
		wantErr bool
	}{
		{"valid", actionReminderTemplate(), false},
		{"no fallback", Document{Blocks: []Block{{Type: BlockDivider}}}, true},
		{"no blocks", Document{Fallback: "x"}, true},
		{"unknown block", Document{Fallback: "x", Blocks: []Block{{Type: "image"}}}, true},
		{"empty section", Document{Fallback: "x", Blocks: []Block{{Type: BlockSection}}}, true},
		{"empty context", Document{Fallback: "x", Blocks: []Block{{Type: BlockContext}}}, true},
		{"button without label", Document{Fallback: "x", Blocks: []Block{{Type: BlockActions, Buttons: []Button{{ActionID: "done"}}}}}, true},
		{"bad style", Document{Fallback: "x", Blocks: []Block{{Type: BlockActions, Buttons: []Button{{ActionID: "done", Label: "Done", Style: "loud"}}}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.doc.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMessage_BuildsBlocks(t *testing.T) {
	doc := Document{
		Fallback: "fallback",
		Blocks: []Block{
			{Type: BlockHeader, Text: "Heads up"},
			{Type: BlockSection, Text: "body", Fields: []string{"a", "b"}},
			{Type: BlockDivider},
			{Type: BlockContext, Elements: []string{"note", ""}},
			{Type: BlockActions, Buttons: []Button{{ActionID: "done", Label: "Done", Value: "1", Style: "primary"}}},
		},
	}

	msg := doc.Message()

	if msg.Text != "fallback" {
		t.Errorf("expected fallback text, got %q", msg.Text)
	}
	if len(msg.Blocks) != 5 {
		t.Fatalf("expected 5 blocks, got %d", len(msg.Blocks))
	}

	actions, ok := msg.Blocks[4].(*goslack.ActionBlock)
	if !ok {
		t.Fatalf("expected an action block, got %T", msg.Blocks[4])
	}
	if actions.BlockID != ActionsBlockID {
		t.Errorf("expected block id %s, got %s", ActionsBlockID, actions.BlockID)
	}
	btn, ok := actions.Elements.ElementSet[0].(*goslack.ButtonBlockElement)
	if !ok {
		t.Fatalf("expected a button, got %T", actions.Elements.ElementSet[0])
	}
	if btn.ActionID != "done" || btn.Value != "1" || btn.Style != goslack.StylePrimary {
		t.Errorf("unexpected button: %+v", btn)
	}
}
