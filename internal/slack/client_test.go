package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// fakeSlack serves canned Web API responses keyed by method name.
func fakeSlack(t *testing.T, responses map[string]any, seen map[string]*http.Request) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := strings.TrimPrefix(r.URL.Path, "/api/")
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if seen != nil {
			seen[method] = r
		}
		resp, ok := responses[method]
		if !ok {
			resp = map[string]any{"ok": false, "error": "unknown_method"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server) *Client {
	return New(Config{APIURL: srv.URL + "/api/"}, zap.NewNop())
}

func TestClient_PostMessage(t *testing.T) {
	seen := map[string]*http.Request{}
	srv := fakeSlack(t, map[string]any{
		"chat.postMessage": map[string]any{"ok": true, "channel": "D123", "ts": "1700000000.000100"},
	}, seen)

	client := newTestClient(srv)
	msg := Message{
		Text: "Reminder: ship it",
		Blocks: []slack.Block{
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, "*ship it*", false, false), nil, nil),
		},
	}

	ts, err := client.PostMessage(context.Background(), "xoxb-test", "D123", msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts != "1700000000.000100" {
		t.Errorf("expected ts 1700000000.000100, got %s", ts)
	}

	req := seen["chat.postMessage"]
	if req == nil {
		t.Fatal("expected chat.postMessage to be called")
	}
	if got := req.FormValue("channel"); got != "D123" {
		t.Errorf("expected channel D123, got %s", got)
	}
	if got := req.FormValue("text"); got != "Reminder: ship it" {
		t.Errorf("expected fallback text, got %q", got)
	}
	if !strings.Contains(req.FormValue("blocks"), "*ship it*") {
		t.Errorf("expected blocks to be sent, got %q", req.FormValue("blocks"))
	}
	if tok := req.FormValue("token"); tok != "xoxb-test" {
		t.Errorf("expected workspace bot token to be sent, got %q", tok)
	}
}

func TestClient_PostMessage_APIError(t *testing.T) {
	srv := fakeSlack(t, map[string]any{
		"chat.postMessage": map[string]any{"ok": false, "error": "channel_not_found"},
	}, nil)

	_, err := newTestClient(srv).PostMessage(context.Background(), "xoxb-test", "D404", Message{Text: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "channel_not_found") {
		t.Errorf("expected slack error code in message, got %v", err)
	}
	if !IsRecipientError(err) {
		t.Error("expected an API rejection to be a recipient error")
	}
}

func TestClient_PostMessage_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	_, err := newTestClient(srv).PostMessage(context.Background(), "xoxb-test", "D123", Message{Text: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if IsRecipientError(err) {
		t.Error("a 502 is an outage, not a recipient error")
	}
}

func TestClient_UpdateMessage(t *testing.T) {
	seen := map[string]*http.Request{}
	srv := fakeSlack(t, map[string]any{
		"chat.update": map[string]any{"ok": true, "channel": "D123", "ts": "1700000000.000100", "text": "done"},
	}, seen)

	err := newTestClient(srv).UpdateMessage(context.Background(), "xoxb-test", "D123", "1700000000.000100", Message{Text: "done"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := seen["chat.update"].FormValue("ts"); got != "1700000000.000100" {
		t.Errorf("expected ts to be sent, got %q", got)
	}
}

func TestClient_OpenDirectMessage(t *testing.T) {
	srv := fakeSlack(t, map[string]any{
		"users.lookupByEmail": map[string]any{"ok": true, "user": map[string]any{"id": "U42", "tz": "Europe/Berlin"}},
		"conversations.open":  map[string]any{"ok": true, "channel": map[string]any{"id": "D42"}},
	}, nil)

	dm, err := newTestClient(srv).OpenDirectMessage(context.Background(), "xoxb-test", "ada@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dm.UserID != "U42" || dm.ChannelID != "D42" || dm.Timezone != "Europe/Berlin" {
		t.Errorf("unexpected direct message: %+v", dm)
	}
}

func TestClient_OpenDirectMessage_UnknownUser(t *testing.T) {
	srv := fakeSlack(t, map[string]any{
		"users.lookupByEmail": map[string]any{"ok": false, "error": "users_not_found"},
	}, nil)

	if _, err := newTestClient(srv).OpenDirectMessage(context.Background(), "xoxb-test", "ghost@example.com"); err == nil {
		t.Fatal("expected error for unknown user")
	}
}
