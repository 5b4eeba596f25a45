package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aviary-ai/aviary/pkg/auth"
	"github.com/aviary-ai/aviary/pkg/scheduler"
	"github.com/aviary-ai/aviary/pkg/store"
)

type createScheduleTriggerRequest struct {
	CronExpression string `json:"cron_expression"`
	Timezone       string `json:"timezone"`
}

type createWebhookTriggerRequest struct {
	WebhookPath string `json:"webhook_path"`
	Secret      string `json:"secret"`
}

// handleCreateScheduleTrigger attaches a cron trigger to an owned
// workflow. The expression is validated here; the scheduler itself
// silently skips anything unparseable that reaches the database.
func (s *Server) handleCreateScheduleTrigger(w http.ResponseWriter, r *http.Request) {
	key, ok := auth.APIKeyFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing API key")
		return
	}

	wf, err := s.store.GetWorkflowForUser(r.Context(), chi.URLParam(r, "workflowID"), key.UserID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var req createScheduleTriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := scheduler.ValidateSpec(req.CronExpression); err != nil {
		writeError(w, http.StatusBadRequest, "invalid cron expression")
		return
	}
	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		writeError(w, http.StatusBadRequest, "unknown timezone")
		return
	}

	trigger := &store.ScheduleTrigger{
		WorkflowID:     wf.ID,
		CronExpression: req.CronExpression,
		Timezone:       timezone,
		IsActive:       true,
	}
	if err := s.store.CreateScheduleTrigger(r.Context(), trigger); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, trigger)
}

// handleCreateWebhookTrigger attaches a webhook trigger to an owned
// workflow. A missing path gets a random one; a path colliding with
// another active trigger is a conflict.
func (s *Server) handleCreateWebhookTrigger(w http.ResponseWriter, r *http.Request) {
	key, ok := auth.APIKeyFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing API key")
		return
	}

	wf, err := s.store.GetWorkflowForUser(r.Context(), chi.URLParam(r, "workflowID"), key.UserID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var req createWebhookTriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	path := strings.Trim(req.WebhookPath, "/")
	if path == "" {
		path = uuid.NewString()
	}

	trigger := &store.WebhookTrigger{
		WorkflowID:  wf.ID,
		WebhookPath: path,
		Secret:      req.Secret,
		IsActive:    true,
	}
	if err := s.store.CreateWebhookTrigger(r.Context(), trigger); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, trigger)
}
