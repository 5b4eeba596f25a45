package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aviary-ai/aviary/pkg/auth"
	"github.com/aviary-ai/aviary/pkg/config"
	"github.com/aviary-ai/aviary/pkg/store"
)

type createAPIKeyRequest struct {
	Name      string     `json:"name"`
	Scopes    []string   `json:"scopes"`
	RateLimit int        `json:"rate_limit"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (s *Server) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	key, ok := auth.APIKeyFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing API key")
		return
	}

	keys, err := s.store.ListAPIKeys(r.Context(), key.UserID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if keys == nil {
		keys = []store.APIKey{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"api_keys": keys})
}

// handleCreateAPIKey mints a key. The raw secret appears in this
// response and nowhere else; only its digest is stored.
func (s *Server) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.APIKeyFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing API key")
		return
	}

	var req createAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if len(req.Scopes) == 0 {
		req.Scopes = []string{auth.ScopeAll}
	}
	if req.RateLimit <= 0 {
		req.RateLimit = config.DefaultRateLimit
	}

	generated, err := auth.GenerateKey()
	if err != nil {
		writeStoreError(w, err)
		return
	}

	key := &store.APIKey{
		UserID:    caller.UserID,
		Name:      req.Name,
		KeyHash:   generated.Hash,
		KeyPrefix: generated.Display,
		Scopes:    req.Scopes,
		RateLimit: req.RateLimit,
		ExpiresAt: req.ExpiresAt,
	}
	if err := s.store.InsertAPIKey(r.Context(), key); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"api_key": key,
		"key":     generated.Raw,
	})
}

func (s *Server) handleDeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.APIKeyFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing API key")
		return
	}

	if err := s.store.DeleteAPIKey(r.Context(), chi.URLParam(r, "keyID"), caller.UserID); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
