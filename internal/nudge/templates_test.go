package nudge

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/lalithlochan/tandem/internal/db"
)

const templatesYAML = `
action_reminder:
  fallback: "Reminder: {{title}} is due {{due_phrase}}"
  blocks:
    - type: section
      text: "Hi {{first_name}}"
    - type: actions
      buttons:
        - action_id: done
          label: Done
          value: "{{reference_id}}"
          style: primary
session_prep:
  fallback: "Session tomorrow"
  blocks:
    - type: header
      text: "Session {{session_number}} is tomorrow"
`

func TestParseTemplatesYAML(t *testing.T) {
	set, err := ParseTemplatesYAML([]byte(templatesYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc, ok := set.Lookup(db.KindActionReminder)
	if !ok {
		t.Fatal("expected action_reminder template")
	}
	if doc.Blocks[1].Buttons[0].Style != "primary" {
		t.Errorf("unexpected button: %+v", doc.Blocks[1].Buttons[0])
	}
	if _, ok := set.Lookup(db.KindGoalCheckin); ok {
		t.Error("expected goal_checkin to be absent")
	}
}

func TestParseTemplatesYAML_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", "  \n"},
		{"not yaml", "action_reminder: ["},
		{"unknown kind", "birthday:\n  fallback: x\n  blocks:\n    - type: divider\n"},
		{"invalid document", "session_prep:\n  fallback: x\n  blocks: []\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseTemplatesYAML([]byte(tt.data)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestFileTemplates_RereadsEachLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nudges.yaml")
	if err := os.WriteFile(path, []byte(templatesYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	src := NewFileTemplates(path)

	set, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	if len(set) != 2 {
		t.Fatalf("expected 2 templates, got %d", len(set))
	}

	updated := "weekly_digest:\n  fallback: digest\n  blocks:\n    - type: section\n      text: \"{{open_count}} open\"\n"
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatal(err)
	}

	set, err = src.Load(context.Background())
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if _, ok := set.Lookup(db.KindWeeklyDigest); !ok || len(set) != 1 {
		t.Errorf("expected reloaded set with only weekly_digest, got %v", set)
	}
}

func TestFileTemplates_MissingFile(t *testing.T) {
	src := NewFileTemplates(filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := src.Load(context.Background()); err == nil {
		t.Error("expected an error for a missing file")
	}
}

type fakeLister struct {
	rows []db.Template
	err  error
}

func (f fakeLister) ListTemplates(ctx context.Context) ([]db.Template, error) {
	return f.rows, f.err
}

func TestDBTemplates_SkipsInvalidRows(t *testing.T) {
	good, _ := json.Marshal(actionReminderTemplate())
	src := NewDBTemplates(fakeLister{rows: []db.Template{
		{Kind: db.KindActionReminder, Body: good},
		{Kind: db.KindGoalCheckin, Body: json.RawMessage(`{"fallback": 3}`)},
		{Kind: db.KindSessionPrep, Body: json.RawMessage(`{"fallback": "x", "blocks": []}`)},
	}}, zap.NewNop())

	set, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set) != 1 {
		t.Errorf("expected only the valid template, got %d", len(set))
	}
	if _, ok := set.Lookup(db.KindActionReminder); !ok {
		t.Error("expected action_reminder to load")
	}
}

func TestDBTemplates_ListError(t *testing.T) {
	src := NewDBTemplates(fakeLister{err: errBoom}, zap.NewNop())
	if _, err := src.Load(context.Background()); err == nil {
		t.Error("expected an error")
	}
}
