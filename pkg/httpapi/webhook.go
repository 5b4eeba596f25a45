package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aviary-ai/aviary/pkg/queue"
	"github.com/aviary-ai/aviary/pkg/store"
)

// HeaderWebhookSignature carries the HMAC of the raw request body.
const HeaderWebhookSignature = "X-Webhook-Signature"

const maxWebhookBody = 1 << 20

// handleWebhook fires a webhook trigger. The path after /webhooks/ may
// contain slashes and addresses exactly one active trigger.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")

	trigger, err := s.store.GetWebhookTriggerByPath(r.Context(), path)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown webhook path")
			return
		}
		writeStoreError(w, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if trigger.Secret != "" {
		if !validSignature(trigger.Secret, body, r.Header.Get(HeaderWebhookSignature)) {
			writeError(w, http.StatusUnauthorized, "invalid webhook signature")
			return
		}
	}

	// A non-JSON body still fires the trigger; the workflow just sees
	// an empty payload.
	payload := map[string]interface{}{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			payload = map[string]interface{}{}
		}
	}

	headers := make(map[string]interface{}, len(r.Header))
	for name := range r.Header {
		headers[name] = r.Header.Get(name)
	}

	if err := s.store.UpdateWebhookLastTriggered(r.Context(), trigger.ID, time.Now().UTC()); err != nil {
		slog.Warn("failed to update webhook trigger", "trigger_id", trigger.ID, "error", err)
	}

	taskID, err := s.queue.EnqueueWorkflow(r.Context(), queue.ExecuteWorkflowPayload{
		WorkflowID:  trigger.WorkflowID,
		TriggerType: queue.TriggerWebhook,
		TriggerData: map[string]interface{}{
			"webhook_path": path,
			"headers":      headers,
			"body":         payload,
		},
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":      "accepted",
		"task_id":     taskID,
		"workflow_id": trigger.WorkflowID,
	})
}

// validSignature compares the presented signature against the HMAC of
// the raw body in constant time.
func validSignature(secret string, body []byte, header string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}
