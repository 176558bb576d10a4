package survey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/tandem/internal/db"
)

var (
	ErrInvalidSubmission = errors.New("invalid survey submission")
	ErrAlreadySubmitted  = errors.New("survey already submitted for this session")
	ErrInvalidCheckpoint = errors.New("invalid checkpoint")
	ErrCheckpointExists  = errors.New("checkpoint already recorded")
)

var surveyKinds = map[string]bool{
	db.SurveyScaleFeedback: true,
	db.SurveyScaleEnd:      true,
	db.SurveyGrowBaseline:  true,
	db.SurveyGrowMidpoint:  true,
	db.SurveyGrowEnd:       true,
}

// ScoreInput is one competency rating on a GROW survey.
type ScoreInput struct {
	Competency string `json:"competency"`
	Score      int    `json:"score"`
	Phase      string `json:"phase"`
}

// SubmissionInput is what the portal posts.
type SubmissionInput struct {
	SurveyKind    string          `json:"survey_kind"`
	SessionID     *uuid.UUID      `json:"session_id,omitempty"`
	SessionNumber *int            `json:"session_number,omitempty"`
	Scores        []ScoreInput    `json:"scores,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSubmission, fmt.Sprintf(format, args...))
}

// Validate checks the kind and, for GROW kinds, the competency scores.
func (in SubmissionInput) Validate() error {
	if !surveyKinds[in.SurveyKind] {
		return invalid("unknown survey kind %q", in.SurveyKind)
	}

	grow := strings.HasPrefix(in.SurveyKind, "grow_")
	if !grow && len(in.Scores) > 0 {
		return invalid("%s does not take competency scores", in.SurveyKind)
	}

	seen := make(map[string]bool, len(in.Scores))
	for _, sc := range in.Scores {
		name := strings.TrimSpace(sc.Competency)
		if name == "" {
			return invalid("competency name is required")
		}
		if seen[name] {
			return invalid("competency %q scored twice", name)
		}
		seen[name] = true

		if sc.Score < 1 || sc.Score > 5 {
			return invalid("score for %q must be between 1 and 5", name)
		}
		if sc.Phase != db.PhasePre && sc.Phase != db.PhasePost {
			return invalid("phase for %q must be pre or post", name)
		}
	}

	if in.SessionNumber != nil && *in.SessionNumber <= 0 {
		return invalid("session_number must be positive")
	}

	if len(in.Payload) > 0 && !json.Valid(in.Payload) {
		return invalid("payload is not valid JSON")
	}

	return nil
}

// Submit stores a survey and its scores atomically.
func (s *Service) Submit(ctx context.Context, email string, in SubmissionInput) (*db.SurveySubmission, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	sub := &db.SurveySubmission{
		EmployeeEmail: email,
		SurveyKind:    in.SurveyKind,
		SessionID:     in.SessionID,
		SessionNumber: in.SessionNumber,
		Payload:       in.Payload,
	}

	scores := make([]db.CompetencyScore, 0, len(in.Scores))
	for _, sc := range in.Scores {
		scores = append(scores, db.CompetencyScore{
			Competency: strings.TrimSpace(sc.Competency),
			Score:      sc.Score,
			Phase:      sc.Phase,
		})
	}

	if err := s.store.CreateSurveySubmission(ctx, sub, scores); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, ErrAlreadySubmitted
		}
		return nil, err
	}

	return sub, nil
}

// RecordCheckpoint stores checkpoint number n for the employee. Each
// number may be recorded once.
func (s *Service) RecordCheckpoint(ctx context.Context, email string, n int, payload json.RawMessage) (*db.Checkpoint, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: checkpoint number must be positive", ErrInvalidCheckpoint)
	}
	if len(payload) > 0 && !json.Valid(payload) {
		return nil, fmt.Errorf("%w: payload is not valid JSON", ErrInvalidCheckpoint)
	}

	cp := &db.Checkpoint{EmployeeEmail: email, CheckpointNumber: n, Payload: payload}
	if err := s.store.CreateCheckpoint(ctx, cp); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, ErrCheckpointExists
		}
		return nil, err
	}

	s.logger.Info("checkpoint recorded", zap.Int("checkpoint_number", n))
	return cp, nil
}

func (s *Service) Checkpoints(ctx context.Context, email string) ([]db.Checkpoint, error) {
	return s.store.ListCheckpoints(ctx, email)
}
