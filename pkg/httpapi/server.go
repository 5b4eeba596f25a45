package httpapi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/aviary-ai/aviary/pkg/a2a"
	"github.com/aviary-ai/aviary/pkg/auth"
	"github.com/aviary-ai/aviary/pkg/queue"
	"github.com/aviary-ai/aviary/pkg/ratelimit"
	"github.com/aviary-ai/aviary/pkg/store"
)

// Store is the slice of the database store the HTTP layer needs; the
// concrete pgx-backed store satisfies it.
type Store interface {
	GetAgent(ctx context.Context, id string) (*store.Agent, error)
	GetWorkflowForUser(ctx context.Context, id, userID string) (*store.Workflow, error)
	GetExecution(ctx context.Context, id string) (*store.WorkflowExecution, error)
	GetWebhookTriggerByPath(ctx context.Context, path string) (*store.WebhookTrigger, error)
	UpdateWebhookLastTriggered(ctx context.Context, id string, at time.Time) error
	CreateScheduleTrigger(ctx context.Context, t *store.ScheduleTrigger) error
	CreateWebhookTrigger(ctx context.Context, t *store.WebhookTrigger) error
	InsertAPIKey(ctx context.Context, key *store.APIKey) error
	ListAPIKeys(ctx context.Context, userID string) ([]store.APIKey, error)
	DeleteAPIKey(ctx context.Context, id, userID string) error
}

// Config carries the deployment-level knobs of the HTTP surface.
type Config struct {
	AppName     string
	BaseURL     string
	CORSOrigins []string
}

// Server wires the public trigger endpoints, the A2A surface, and the
// API-key settings routes onto one chi router.
type Server struct {
	cfg       Config
	store     Store
	queue     queue.Enqueuer
	limiter   ratelimit.Limiter
	validator *auth.Validator
	a2a       *a2a.Server
}

func NewServer(cfg Config, st Store, enqueuer queue.Enqueuer, limiter ratelimit.Limiter, validator *auth.Validator, a2aServer *a2a.Server) *Server {
	return &Server{
		cfg:       cfg,
		store:     st,
		queue:     enqueuer,
		limiter:   limiter,
		validator: validator,
		a2a:       a2aServer,
	}
}

func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", auth.HeaderAPIKey},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/webhooks/*", s.handleWebhook)

	r.Route("/a2a/agents/{agentID}", func(r chi.Router) {
		r.Get("/.well-known/agent.json", s.handleAgentCard)
		r.Post("/tasks", s.handleSubmitTask)
		r.Get("/tasks/{taskID}", s.handleGetTask)
		r.Post("/tasks/{taskID}/cancel", s.handleCancelTask)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.validator.Middleware)

		r.Post("/execute/{workflowID}", s.handleExecute)
		r.Get("/api-trigger/rate-limit", s.handleRateLimit)
		r.Get("/executions/{executionID}", s.handleGetExecution)

		r.Route("/workflows/{workflowID}/triggers", func(r chi.Router) {
			r.Post("/schedule", s.handleCreateScheduleTrigger)
			r.Post("/webhook", s.handleCreateWebhookTrigger)
		})

		r.Route("/api/settings/api-keys", func(r chi.Router) {
			r.Get("/", s.handleListAPIKeys)
			r.Post("/", s.handleCreateAPIKey)
			r.Delete("/{keyID}", s.handleDeleteAPIKey)
		})
	})

	return r
}

// decodeBody decodes a JSON request body into v, tolerating an empty
// body when v starts zero-valued.
func decodeBody(body []byte, v interface{}) error {
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}
