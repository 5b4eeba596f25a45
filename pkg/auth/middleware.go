package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/aviary-ai/aviary/pkg/store"
)

// HeaderAPIKey is the credential header for machine callers.
const HeaderAPIKey = "X-API-Key"

type contextKey string

const apiKeyContextKey contextKey = "aviary.apikey"

// APIKeyFromContext returns the authenticated key placed by Middleware.
func APIKeyFromContext(ctx context.Context) (*store.APIKey, bool) {
	key, ok := ctx.Value(apiKeyContextKey).(*store.APIKey)
	return key, ok
}

// WithAPIKey is exposed for handler tests.
func WithAPIKey(ctx context.Context, key *store.APIKey) context.Context {
	return context.WithValue(ctx, apiKeyContextKey, key)
}

// Middleware authenticates requests via the X-API-Key header and stores
// the resolved key on the request context. Unauthenticated requests are
// rejected with 401.
func (v *Validator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(HeaderAPIKey)
		if raw == "" {
			unauthorized(w, "missing API key")
			return
		}

		key, err := v.Validate(r.Context(), raw)
		if err != nil {
			unauthorized(w, "invalid API key")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithAPIKey(r.Context(), key)))
	})
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
