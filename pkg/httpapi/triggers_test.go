package httpapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aviary-ai/aviary/pkg/store"
)

func TestCreateScheduleTrigger(t *testing.T) {
	h := newHarness(t)

	resp := h.authed(t, http.MethodPost, "/workflows/wf-1/triggers/schedule",
		`{"cron_expression":"*/5 * * * *","timezone":"Europe/Berlin"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeJSON(t, resp)

	assert.Equal(t, "wf-1", created["workflow_id"])
	assert.Equal(t, "*/5 * * * *", created["cron_expression"])
	assert.Equal(t, "Europe/Berlin", created["timezone"])

	require.Len(t, h.store.schedules, 1)
	assert.True(t, h.store.schedules[0].IsActive)
}

func TestCreateScheduleTrigger_InvalidCron(t *testing.T) {
	h := newHarness(t)

	for _, expr := range []string{"", "not-a-cron", "* * * * * *"} {
		resp := h.authed(t, http.MethodPost, "/workflows/wf-1/triggers/schedule",
			`{"cron_expression":"`+expr+`"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "expr %q", expr)
		_ = resp.Body.Close()
	}
	assert.Empty(t, h.store.schedules)
}

func TestCreateScheduleTrigger_UnknownTimezone(t *testing.T) {
	h := newHarness(t)

	resp := h.authed(t, http.MethodPost, "/workflows/wf-1/triggers/schedule",
		`{"cron_expression":"0 9 * * 1","timezone":"Mars/Olympus"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestCreateScheduleTrigger_DefaultsTimezoneToUTC(t *testing.T) {
	h := newHarness(t)

	resp := h.authed(t, http.MethodPost, "/workflows/wf-1/triggers/schedule",
		`{"cron_expression":"0 9 * * 1"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "UTC", decodeJSON(t, resp)["timezone"])
}

func TestCreateScheduleTrigger_CrossTenantIsNotFound(t *testing.T) {
	h := newHarness(t)
	h.store.workflows["wf-other"] = &store.Workflow{
		ID:       "wf-other",
		UserID:   "user-2",
		IsActive: true,
	}

	resp := h.authed(t, http.MethodPost, "/workflows/wf-other/triggers/schedule",
		`{"cron_expression":"0 9 * * 1"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestCreateWebhookTrigger(t *testing.T) {
	h := newHarness(t)

	resp := h.authed(t, http.MethodPost, "/workflows/wf-1/triggers/webhook",
		`{"webhook_path":"/hooks/deploy/","secret":"s3cret"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeJSON(t, resp)

	assert.Equal(t, "hooks/deploy", created["webhook_path"], "path is stored without surrounding slashes")

	// The new trigger is live on the public webhook surface.
	fire := h.request(t, http.MethodPost, "/webhooks/hooks/deploy",
		`{"ref":"main"}`, map[string]string{
			HeaderWebhookSignature: signBody("s3cret", `{"ref":"main"}`),
		})
	assert.Equal(t, http.StatusAccepted, fire.StatusCode)
	_ = fire.Body.Close()
}

func TestCreateWebhookTrigger_GeneratesPath(t *testing.T) {
	h := newHarness(t)

	resp := h.authed(t, http.MethodPost, "/workflows/wf-1/triggers/webhook", `{}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeJSON(t, resp)
	assert.NotEmpty(t, created["webhook_path"])
}

func TestCreateWebhookTrigger_DuplicatePathConflicts(t *testing.T) {
	h := newHarness(t)

	first := h.authed(t, http.MethodPost, "/workflows/wf-1/triggers/webhook",
		`{"webhook_path":"hooks/deploy"}`)
	require.Equal(t, http.StatusCreated, first.StatusCode)
	_ = first.Body.Close()

	second := h.authed(t, http.MethodPost, "/workflows/wf-1/triggers/webhook",
		`{"webhook_path":"hooks/deploy"}`)
	assert.Equal(t, http.StatusConflict, second.StatusCode)
	_ = second.Body.Close()
}

func TestCreateTrigger_RequiresAuth(t *testing.T) {
	h := newHarness(t)

	resp := h.request(t, http.MethodPost, "/workflows/wf-1/triggers/schedule",
		`{"cron_expression":"0 9 * * 1"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
}
