// Package nudge decides which employees get which Slack reminder, sends it
// at most once per dedupe key, and records button clicks on it.
package nudge

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/tandem/internal/db"
	"github.com/lalithlochan/tandem/internal/metrics"
)

// Kinds lists nudge kinds in the order a cycle processes them.
var Kinds = []string{
	db.KindActionReminder,
	db.KindGoalCheckin,
	db.KindSessionPrep,
	db.KindWeeklyDigest,
}

// IsKind reports whether kind is a known nudge kind.
func IsKind(kind string) bool {
	for _, k := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Candidate is one possible nudge, carrying everything needed to render
// it without going back to the store.
type Candidate struct {
	Kind          string
	EmployeeEmail string
	ReferenceID   string
	ReferenceType string
	Vars          Vars
}

// CandidateQueries are the eligibility lookups behind a scan.
type CandidateQueries interface {
	ActionItemsDue(ctx context.Context, from, to time.Time) ([]db.ActionItemDue, error)
	SessionsForGoalCheckin(ctx context.Context, from, to time.Time) ([]db.SessionCandidate, error)
	SessionsForPrep(ctx context.Context, day time.Time) ([]db.SessionCandidate, error)
	WeeklyDigestCandidates(ctx context.Context, weekEnd time.Time) ([]db.DigestCandidate, error)
}

// ScannerConfig tunes the eligibility windows.
type ScannerConfig struct {
	// DueWithinDays is how far ahead action item due dates are considered.
	DueWithinDays int
	// CheckinAfterDays is how many days after a completed session the goal
	// check-in goes out.
	CheckinAfterDays int
	// DigestDay is the weekday weekly digests are scanned on.
	DigestDay time.Weekday
}

func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		DueWithinDays:    2,
		CheckinAfterDays: 3,
		DigestDay:        time.Monday,
	}
}

// ScanResult holds the candidates per kind and how many lookups failed.
type ScanResult struct {
	Candidates map[string][]Candidate
	Errors     map[string]int
}

type Scanner struct {
	queries CandidateQueries
	config  ScannerConfig
	logger  *zap.Logger
}

func NewScanner(queries CandidateQueries, cfg ScannerConfig, logger *zap.Logger) *Scanner {
	if cfg.DueWithinDays <= 0 {
		cfg.DueWithinDays = 2
	}
	if cfg.CheckinAfterDays <= 0 {
		cfg.CheckinAfterDays = 3
	}
	return &Scanner{queries: queries, config: cfg, logger: logger}
}

// Scan runs every eligibility lookup. "Today" is the scheduler's own date,
// not any recipient's. A failing lookup leaves its kind empty and counts
// one error; the other kinds still run.
func (s *Scanner) Scan(ctx context.Context, now time.Time) ScanResult {
	res := ScanResult{
		Candidates: make(map[string][]Candidate, len(Kinds)),
		Errors:     make(map[string]int),
	}

	collect := func(kind string, fn func() ([]Candidate, error)) {
		cands, err := fn()
		if err != nil {
			s.logger.Error("eligibility lookup failed", zap.String("kind", kind), zap.Error(err))
			metrics.RecordScanError(kind)
			res.Errors[kind]++
			res.Candidates[kind] = nil
			return
		}
		metrics.RecordCandidates(kind, len(cands))
		res.Candidates[kind] = cands
	}

	today := startOfDay(now)

	collect(db.KindActionReminder, func() ([]Candidate, error) {
		return s.actionReminders(ctx, today, now)
	})
	collect(db.KindGoalCheckin, func() ([]Candidate, error) {
		return s.goalCheckins(ctx, today)
	})
	collect(db.KindSessionPrep, func() ([]Candidate, error) {
		return s.sessionPreps(ctx, today)
	})
	if today.Weekday() == s.config.DigestDay {
		collect(db.KindWeeklyDigest, func() ([]Candidate, error) {
			return s.weeklyDigests(ctx, today)
		})
	}

	return res
}

func (s *Scanner) actionReminders(ctx context.Context, today, now time.Time) ([]Candidate, error) {
	items, err := s.queries.ActionItemsDue(ctx, today, today.AddDate(0, 0, s.config.DueWithinDays))
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(items))
	for _, it := range items {
		ref := it.ActionItemID.String()
		out = append(out, Candidate{
			Kind:          db.KindActionReminder,
			EmployeeEmail: it.EmployeeEmail,
			ReferenceID:   ref,
			ReferenceType: db.RefActionItem,
			Vars: Vars{
				"first_name":   it.FirstName,
				"coach_name":   it.CoachName,
				"title":        it.Title,
				"due_date":     SessionDatePhrase(it.DueDate),
				"due_phrase":   DuePhrase(it.DueDate, now),
				"reference_id": ref,
			},
		})
	}
	return out, nil
}

// goalCheckins covers the single calendar day CheckinAfterDays back.
func (s *Scanner) goalCheckins(ctx context.Context, today time.Time) ([]Candidate, error) {
	from := today.AddDate(0, 0, -s.config.CheckinAfterDays)
	sessions, err := s.queries.SessionsForGoalCheckin(ctx, from, from.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	return sessionCandidates(db.KindGoalCheckin, sessions), nil
}

func (s *Scanner) sessionPreps(ctx context.Context, today time.Time) ([]Candidate, error) {
	sessions, err := s.queries.SessionsForPrep(ctx, today.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	return sessionCandidates(db.KindSessionPrep, sessions), nil
}

func sessionCandidates(kind string, sessions []db.SessionCandidate) []Candidate {
	out := make([]Candidate, 0, len(sessions))
	for _, sess := range sessions {
		ref := sess.SessionID.String()
		out = append(out, Candidate{
			Kind:          kind,
			EmployeeEmail: sess.EmployeeEmail,
			ReferenceID:   ref,
			ReferenceType: db.RefSession,
			Vars: Vars{
				"first_name":     sess.FirstName,
				"coach_name":     sess.CoachName,
				"session_number": strconv.Itoa(sess.SessionNumber),
				"session_date":   SessionDatePhrase(sess.SessionDate),
				"goals":          sess.Goals,
				"program":        sess.Program,
				"reference_id":   ref,
			},
		})
	}
	return out
}

// weeklyDigests are keyed by ISO week so each employee gets one per week.
func (s *Scanner) weeklyDigests(ctx context.Context, today time.Time) ([]Candidate, error) {
	rows, err := s.queries.WeeklyDigestCandidates(ctx, today.AddDate(0, 0, 6))
	if err != nil {
		return nil, err
	}

	week := ISOWeekKey(today)
	out := make([]Candidate, 0, len(rows))
	for _, r := range rows {
		out = append(out, Candidate{
			Kind:          db.KindWeeklyDigest,
			EmployeeEmail: r.EmployeeEmail,
			ReferenceID:   week,
			ReferenceType: db.RefWeek,
			Vars: Vars{
				"first_name":   r.FirstName,
				"open_count":   strconv.Itoa(r.OpenItems),
				"due_count":    strconv.Itoa(r.DueThisWeek),
				"week":         week,
				"reference_id": week,
			},
		})
	}
	return out, nil
}
