package api

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/lalithlochan/tandem/internal/circuitbreaker"
	"github.com/lalithlochan/tandem/internal/db"
	"github.com/lalithlochan/tandem/internal/nudge"
	"github.com/lalithlochan/tandem/internal/survey"
)

// Runner runs one dispatch cycle.
type Runner interface {
	Run(ctx context.Context, trigger string) (*nudge.Summary, error)
}

// CallbackHandler processes a raw Slack interaction request.
type CallbackHandler interface {
	Handle(ctx context.Context, header http.Header, body []byte) error
}

type SurveyService interface {
	Next(ctx context.Context, email string) (*survey.Obligation, bool, error)
	Submit(ctx context.Context, email string, in survey.SubmissionInput) (*db.SurveySubmission, error)
	RecordCheckpoint(ctx context.Context, email string, n int, payload json.RawMessage) (*db.Checkpoint, error)
	Checkpoints(ctx context.Context, email string) ([]db.Checkpoint, error)
}

type Directory interface {
	Link(ctx context.Context, email, workspaceID string) (*db.Connection, error)
	UpdatePreferences(ctx context.Context, email string, p db.Preferences) (db.Preferences, error)
}

type NudgeLister interface {
	ListNudgesByEmployee(ctx context.Context, email string, limit, offset int) ([]*db.Nudge, error)
}

type HealthChecker interface {
	Health(ctx context.Context) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Deps are the services behind the HTTP surface. Redis and Breaker may
// be nil.
type Deps struct {
	Runner    Runner
	Callbacks CallbackHandler
	Surveys   SurveyService
	Directory Directory
	Nudges    NudgeLister
	Health    HealthChecker
	Redis     Pinger
	Breaker   *circuitbreaker.CircuitBreaker
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger    *zap.Logger
	runner    Runner
	callbacks CallbackHandler
	surveys   SurveyService
	directory Directory
	nudges    NudgeLister
	health    HealthChecker
	redis     Pinger
	breaker   *circuitbreaker.CircuitBreaker
}

func NewHandler(logger *zap.Logger, deps Deps) *Handler {
	return &Handler{
		logger:    logger,
		runner:    deps.Runner,
		callbacks: deps.Callbacks,
		surveys:   deps.Surveys,
		directory: deps.Directory,
		nudges:    deps.Nudges,
		health:    deps.Health,
		redis:     deps.Redis,
		breaker:   deps.Breaker,
	}
}

// Health handles GET /health. It reports 503 when the database is down so
// load balancers stop routing to the instance. Redis being down is shown
// but does not change the status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{"status": "ok"}
	status := http.StatusOK

	if h.health != nil {
		if err := h.health.Health(r.Context()); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			body["status"] = "degraded"
			body["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	if h.redis != nil {
		body["redis"] = "ok"
		if err := h.redis.Ping(r.Context()); err != nil {
			body["redis"] = err.Error()
		}
	}
	if h.breaker != nil {
		body["slack"] = h.breaker.Stats()
	}

	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
