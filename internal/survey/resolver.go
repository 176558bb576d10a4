// Package survey works out which milestone survey an employee owes next
// and stores what they submit.
package survey

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/tandem/internal/db"
)

// DefaultMilestones are the session ordinals that trigger a survey.
var DefaultMilestones = []int{1, 3, 6, 12, 18, 24, 30, 36}

// Policy decides which sessions owe a survey and of which kind.
type Policy struct {
	Milestones []int
	// GrowKinds pins the survey kind for GROW-family programs at specific
	// ordinals. Ordinals not listed use the baseline-then-feedback default.
	GrowKinds map[int]string
}

func DefaultPolicy() Policy {
	return Policy{Milestones: DefaultMilestones, GrowKinds: map[int]string{}}
}

// IsGrowFamily reports whether a program name belongs to the GROW family.
func IsGrowFamily(program string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(program)), "GROW")
}

// Obligation is the survey the portal should prompt for. It carries only
// what the employee sees.
type Obligation struct {
	SessionID     uuid.UUID `json:"session_id"`
	SessionNumber int       `json:"session_number"`
	SessionDate   time.Time `json:"session_date"`
	CoachName     string    `json:"coach_name"`
	SurveyKind    string    `json:"survey_kind"`
}

type Store interface {
	ListCompletedMilestoneSessions(ctx context.Context, email string, ordinals []int) ([]db.MilestoneSession, error)
	SurveyedSessionIDs(ctx context.Context, email string) (map[uuid.UUID]bool, error)
	HasSubmissionOfKind(ctx context.Context, email, kind string) (bool, error)
	CreateSurveySubmission(ctx context.Context, sub *db.SurveySubmission, scores []db.CompetencyScore) error
	CreateCheckpoint(ctx context.Context, cp *db.Checkpoint) error
	ListCheckpoints(ctx context.Context, email string) ([]db.Checkpoint, error)
}

type Service struct {
	store  Store
	policy Policy
	logger *zap.Logger
}

func NewService(store Store, policy Policy, logger *zap.Logger) *Service {
	if len(policy.Milestones) == 0 {
		policy.Milestones = DefaultMilestones
	}
	return &Service{store: store, policy: policy, logger: logger}
}

// Next returns the oldest milestone session the employee has not yet
// surveyed. Sessions are walked oldest first so a skipped early survey is
// asked for before a later one.
func (s *Service) Next(ctx context.Context, email string) (*Obligation, bool, error) {
	sessions, err := s.store.ListCompletedMilestoneSessions(ctx, email, s.policy.Milestones)
	if err != nil {
		return nil, false, fmt.Errorf("list milestone sessions: %w", err)
	}
	if len(sessions) == 0 {
		return nil, false, nil
	}

	surveyed, err := s.store.SurveyedSessionIDs(ctx, email)
	if err != nil {
		return nil, false, fmt.Errorf("list surveyed sessions: %w", err)
	}

	for _, sess := range sessions {
		if surveyed[sess.SessionID] {
			continue
		}

		kind, err := s.kindFor(ctx, email, sess)
		if err != nil {
			return nil, false, err
		}

		return &Obligation{
			SessionID:     sess.SessionID,
			SessionNumber: sess.SessionNumber,
			SessionDate:   sess.SessionDate,
			CoachName:     sess.CoachName,
			SurveyKind:    kind,
		}, true, nil
	}

	return nil, false, nil
}

func (s *Service) kindFor(ctx context.Context, email string, sess db.MilestoneSession) (string, error) {
	if !IsGrowFamily(sess.Program) {
		return db.SurveyScaleFeedback, nil
	}

	kind, pinned := s.policy.GrowKinds[sess.SessionNumber]
	if pinned && kind != db.SurveyGrowBaseline {
		return kind, nil
	}

	// A baseline is only ever taken once.
	hasBaseline, err := s.store.HasSubmissionOfKind(ctx, email, db.SurveyGrowBaseline)
	if err != nil {
		return "", fmt.Errorf("check baseline: %w", err)
	}
	if hasBaseline {
		return db.SurveyScaleFeedback, nil
	}
	return db.SurveyGrowBaseline, nil
}
