package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Nudge kinds
const (
	KindActionReminder = "action_reminder"
	KindGoalCheckin    = "goal_checkin"
	KindSessionPrep    = "session_prep"
	KindWeeklyDigest   = "weekly_digest"
)

// Nudge status constants
const (
	NudgeStatusSent      = "sent"
	NudgeStatusResponded = "responded"
)

// Reference types for the entity a nudge is about
const (
	RefActionItem = "action_item"
	RefSession    = "session"
	RefWeek       = "week"
)

// Frequency modes
const (
	FrequencySmart  = "smart"
	FrequencyDaily  = "daily"
	FrequencyWeekly = "weekly"
	FrequencyNone   = "none"
)

// Action item status constants
const (
	ActionItemOpen       = "open"
	ActionItemInProgress = "in_progress"
	ActionItemCompleted  = "completed"
	ActionItemDismissed  = "dismissed"
)

// Survey kinds
const (
	SurveyScaleFeedback = "scale_feedback"
	SurveyScaleEnd      = "scale_end"
	SurveyGrowBaseline  = "grow_baseline"
	SurveyGrowMidpoint  = "grow_midpoint"
	SurveyGrowEnd       = "grow_end"
)

// Competency phases
const (
	PhasePre  = "pre"
	PhasePost = "post"
)

// Nudge is one reminder sent to one employee. At most one exists per
// (employee, kind, reference id).
type Nudge struct {
	ID            uuid.UUID  `json:"id"`
	EmployeeEmail string     `json:"employee_email"`
	Kind          string     `json:"kind"`
	ReferenceID   string     `json:"reference_id"`
	ReferenceType string     `json:"reference_type"`
	ChannelID     string     `json:"channel_id"`
	MessageTS     string     `json:"message_ts"`
	Status        string     `json:"status"`
	Response      *string    `json:"response,omitempty"`
	SentAt        time.Time  `json:"sent_at"`
	RespondedAt   *time.Time `json:"responded_at,omitempty"`
}

// Connection is an employee's Slack destination and notification
// preferences in one workspace. BotToken is joined from the installation.
type Connection struct {
	ID            uuid.UUID `json:"id"`
	EmployeeEmail string    `json:"employee_email"`
	WorkspaceID   string    `json:"workspace_id"`
	SlackUserID   string    `json:"slack_user_id"`
	ChannelID     string    `json:"channel_id"`
	Enabled       bool      `json:"enabled"`
	Frequency     string    `json:"frequency"`
	PreferredTime string    `json:"preferred_time"`
	Timezone      string    `json:"timezone"`
	BotToken      string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Preferences are the user-editable part of a Connection.
type Preferences struct {
	Enabled       bool   `json:"enabled"`
	Frequency     string `json:"frequency"`
	PreferredTime string `json:"preferred_time"`
	Timezone      string `json:"timezone"`
}

// Installation is a Slack workspace the app is installed in.
type Installation struct {
	WorkspaceID string    `json:"workspace_id"`
	TeamName    string    `json:"team_name"`
	BotToken    string    `json:"-"`
	InstalledAt time.Time `json:"installed_at"`
}

// ActionItemDue is a row from nudge_action_items_due.
type ActionItemDue struct {
	ActionItemID  uuid.UUID
	EmployeeEmail string
	FirstName     string
	CoachName     string
	Title         string
	DueDate       time.Time
}

// SessionCandidate is a row from the session eligibility functions.
type SessionCandidate struct {
	SessionID     uuid.UUID
	EmployeeEmail string
	FirstName     string
	CoachName     string
	SessionNumber int
	SessionDate   time.Time
	Goals         string
	Program       string
}

// DigestCandidate is a row from nudge_weekly_digest_candidates.
type DigestCandidate struct {
	EmployeeEmail string
	FirstName     string
	OpenItems     int
	DueThisWeek   int
}

// MilestoneSession is a completed session at a survey milestone ordinal.
type MilestoneSession struct {
	SessionID     uuid.UUID
	SessionNumber int
	SessionDate   time.Time
	CoachName     string
	Program       string
}

type SurveySubmission struct {
	ID            uuid.UUID       `json:"id"`
	EmployeeEmail string          `json:"employee_email"`
	SurveyKind    string          `json:"survey_kind"`
	SessionID     *uuid.UUID      `json:"session_id,omitempty"`
	SessionNumber *int            `json:"session_number,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	SubmittedAt   time.Time       `json:"submitted_at"`
}

type CompetencyScore struct {
	SubmissionID uuid.UUID `json:"submission_id"`
	Competency   string    `json:"competency"`
	Score        int       `json:"score"`
	Phase        string    `json:"phase"`
}

type Checkpoint struct {
	ID               uuid.UUID       `json:"id"`
	EmployeeEmail    string          `json:"employee_email"`
	CheckpointNumber int             `json:"checkpoint_number"`
	Payload          json.RawMessage `json:"payload"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Template is a stored nudge template body, kept as raw JSON until the
// nudge package decodes it.
type Template struct {
	Kind      string          `json:"kind"`
	Body      json.RawMessage `json:"body"`
	UpdatedAt time.Time       `json:"updated_at"`
}
