package nudge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lalithlochan/tandem/internal/db"
	"github.com/lalithlochan/tandem/internal/slack"
)

var errBoom = errors.New("boom")

// fakeStore keeps nudges in memory and mirrors the repository's
// unique-key and set-to semantics.
type fakeStore struct {
	mu        sync.Mutex
	nudges    map[string]*db.Nudge
	completed map[uuid.UUID]time.Time
	findErr    error
	createErr  error
	respondErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nudges:    make(map[string]*db.Nudge),
		completed: make(map[uuid.UUID]time.Time),
	}
}

func nudgeKey(email, kind, ref string) string {
	return email + "|" + kind + "|" + ref
}

func (s *fakeStore) FindNudge(ctx context.Context, email, kind, ref string) (*db.Nudge, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, false, s.findErr
	}
	n, ok := s.nudges[nudgeKey(email, kind, ref)]
	return n, ok, nil
}

func (s *fakeStore) CreateNudge(ctx context.Context, n *db.Nudge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	key := nudgeKey(n.EmployeeEmail, n.Kind, n.ReferenceID)
	if _, ok := s.nudges[key]; ok {
		return db.ErrDuplicate
	}
	n.ID = uuid.New()
	s.nudges[key] = n
	return nil
}

func (s *fakeStore) FindNudgeByMessage(ctx context.Context, ts, channel string) (*db.Nudge, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.nudges {
		if n.MessageTS == ts && n.ChannelID == channel {
			return n, true, nil
		}
	}
	return nil, false, nil
}

func (s *fakeStore) MarkNudgeResponded(ctx context.Context, id uuid.UUID, response string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.respondErr != nil {
		return s.respondErr
	}
	for _, n := range s.nudges {
		if n.ID == id {
			n.Status = db.NudgeStatusResponded
			n.Response = &response
			n.RespondedAt = &at
			return nil
		}
	}
	return db.ErrNotFound
}

func (s *fakeStore) CompleteActionItem(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.completed[id]; !ok {
		s.completed[id] = at
	}
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nudges)
}

type fakeDirectory struct {
	conns map[string]*db.Connection
	err   error
}

func (d *fakeDirectory) Resolve(ctx context.Context, email string) (*db.Connection, bool, error) {
	if d.err != nil {
		return nil, false, d.err
	}
	c, ok := d.conns[email]
	return c, ok, nil
}

type postedMessage struct {
	token   string
	channel string
	msg     slack.Message
}

type updatedMessage struct {
	channel string
	ts      string
	msg     slack.Message
}

type fakeMessenger struct {
	mu      sync.Mutex
	posts   []postedMessage
	updates []updatedMessage
	postErr error
}

func (m *fakeMessenger) PostMessage(ctx context.Context, token, channel string, msg slack.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.postErr != nil {
		return "", m.postErr
	}
	m.posts = append(m.posts, postedMessage{token: token, channel: channel, msg: msg})
	return fmt.Sprintf("1700000000.%06d", len(m.posts)), nil
}

func (m *fakeMessenger) UpdateMessage(ctx context.Context, token, channel, ts string, msg slack.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, updatedMessage{channel: channel, ts: ts, msg: msg})
	return nil
}

type fakeHealth struct{ err error }

func (h fakeHealth) Health(ctx context.Context) error { return h.err }

type fakeTemplates struct {
	set TemplateSet
	err error
}

func (f fakeTemplates) Load(ctx context.Context) (TemplateSet, error) {
	return f.set, f.err
}

type fakeQueries struct {
	items      []db.ActionItemDue
	checkins   []db.SessionCandidate
	preps      []db.SessionCandidate
	digests    []db.DigestCandidate
	itemsErr   error
	checkinErr error

	dueFrom, dueTo         time.Time
	checkinFrom, checkinTo time.Time
	prepDay                time.Time
	digestCalls            int
}

func (q *fakeQueries) ActionItemsDue(ctx context.Context, from, to time.Time) ([]db.ActionItemDue, error) {
	q.dueFrom, q.dueTo = from, to
	return q.items, q.itemsErr
}

func (q *fakeQueries) SessionsForGoalCheckin(ctx context.Context, from, to time.Time) ([]db.SessionCandidate, error) {
	q.checkinFrom, q.checkinTo = from, to
	return q.checkins, q.checkinErr
}

func (q *fakeQueries) SessionsForPrep(ctx context.Context, day time.Time) ([]db.SessionCandidate, error) {
	q.prepDay = day
	return q.preps, nil
}

func (q *fakeQueries) WeeklyDigestCandidates(ctx context.Context, weekEnd time.Time) ([]db.DigestCandidate, error) {
	q.digestCalls++
	return q.digests, nil
}

func smartConnection(email string) *db.Connection {
	return &db.Connection{
		EmployeeEmail: email,
		WorkspaceID:   "T1",
		SlackUserID:   "U1",
		ChannelID:     "D-" + email,
		Enabled:       true,
		Frequency:     db.FrequencySmart,
		PreferredTime: "14:00",
		Timezone:      "UTC",
		BotToken:      "xoxb-test",
	}
}

func actionReminderTemplate() Document {
	return Document{
		Fallback: "Reminder: {{title}} is due {{due_phrase}}",
		Blocks: []Block{
			{Type: BlockSection, Text: "Hi {{first_name}}, *{{title}}* is due {{due_phrase}}"},
			{Type: BlockActions, Buttons: []Button{
				{ActionID: ActionDone, Label: "Done", Value: "{{reference_id}}", Style: "primary"},
				{ActionID: ActionNeedHelp, Label: "Need help", Value: "{{reference_id}}"},
			}},
		},
	}
}

func testTemplates() TemplateSet {
	simple := func(text string) Document {
		return Document{Fallback: text, Blocks: []Block{{Type: BlockSection, Text: text}}}
	}
	return TemplateSet{
		db.KindActionReminder: actionReminderTemplate(),
		db.KindGoalCheckin:    simple("Goals from session {{session_number}}: {{goals}}"),
		db.KindSessionPrep:    simple("Session with {{coach_name}} on {{session_date}}"),
		db.KindWeeklyDigest:   simple("{{open_count}} open items"),
	}
}
