package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aviary-ai/aviary/pkg/auth"
	"github.com/aviary-ai/aviary/pkg/queue"
	"github.com/aviary-ai/aviary/pkg/ratelimit"
	"github.com/aviary-ai/aviary/pkg/store"
)

// handleExecute fires an API trigger: scope check, tenant-scoped
// workflow lookup, rate-limit admission, then enqueue.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	key, ok := auth.APIKeyFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing API key")
		return
	}
	if !auth.HasScope(key, auth.ScopeExecuteWorkflows) {
		writeError(w, http.StatusForbidden, "missing scope: "+auth.ScopeExecuteWorkflows)
		return
	}

	workflowID := chi.URLParam(r, "workflowID")
	wf, err := s.store.GetWorkflowForUser(r.Context(), workflowID, key.UserID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !wf.IsActive {
		writeError(w, http.StatusBadRequest, "workflow is inactive")
		return
	}

	// Admission is fail-closed: an unreachable limiter denies the call.
	result, err := s.limiter.Check(r.Context(), key.ID, key.RateLimit, ratelimit.DefaultWindow)
	if err != nil || !result.Allowed {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	callerPayload := map[string]interface{}{}
	if err := decodeBody(body, &callerPayload); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	triggerData := make(map[string]interface{}, len(callerPayload)+1)
	for k, v := range callerPayload {
		triggerData[k] = v
	}
	triggerData["api_key_id"] = key.ID

	taskID, err := s.queue.EnqueueWorkflow(r.Context(), queue.ExecuteWorkflowPayload{
		WorkflowID:  wf.ID,
		TriggerType: queue.TriggerAPI,
		TriggerData: triggerData,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":               "accepted",
		"task_id":              taskID,
		"workflow_id":          wf.ID,
		"rate_limit_remaining": result.Remaining,
	})
}

// handleRateLimit reports the caller's current budget without spending
// any of it.
func (s *Server) handleRateLimit(w http.ResponseWriter, r *http.Request) {
	key, ok := auth.APIKeyFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing API key")
		return
	}

	remaining, err := s.limiter.Remaining(r.Context(), key.ID, key.RateLimit, ratelimit.DefaultWindow)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"limit":                key.RateLimit,
		"remaining":            remaining,
		"reset_window_seconds": int(ratelimit.DefaultWindow.Seconds()),
	})
}

// handleGetExecution lets a caller poll an execution. The record is
// visible only when the caller owns the underlying workflow.
func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	key, ok := auth.APIKeyFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing API key")
		return
	}

	exec, err := s.store.GetExecution(r.Context(), chi.URLParam(r, "executionID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if _, err := s.store.GetWorkflowForUser(r.Context(), exec.WorkflowID, key.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, exec)
}
