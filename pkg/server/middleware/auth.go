package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"mercator-hq/verdict/pkg/config"
)

// APIKeyHeader is the header checked when no bearer token is sent.
const APIKeyHeader = "X-API-Key"

// APIKeys validates API keys against the configured set.
type APIKeys struct {
	mu   sync.RWMutex
	keys map[string]config.APIKeyConfig
}

// NewAPIKeys creates a validator for keys.
func NewAPIKeys(keys []config.APIKeyConfig) *APIKeys {
	a := &APIKeys{}
	a.Replace(keys)
	return a
}

// Replace swaps the accepted keys, for example after a config reload.
func (a *APIKeys) Replace(keys []config.APIKeyConfig) {
	m := make(map[string]config.APIKeyConfig, len(keys))
	for _, k := range keys {
		m[k.Key] = k
	}
	a.mu.Lock()
	a.keys = m
	a.mu.Unlock()
}

// Validate returns the name of the caller owning key.
func (a *APIKeys) Validate(key string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for k, info := range a.keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			return info.Name, !info.Disabled
		}
	}
	return "", false
}

// Authenticate resolves the API key sent as "Authorization: Bearer <key>"
// or in the X-API-Key header and stores the caller name in the context.
// Requests without a key pass through anonymously; an unknown or disabled
// key is rejected with 401.
func Authenticate(keys *APIKeys, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default().With("component", "http")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractAPIKey(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			name, ok := keys.Validate(key)
			if !ok {
				logger.WarnContext(r.Context(), "invalid API key", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
				WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid API key", nil)
				return
			}

			logger.DebugContext(r.Context(), "API key authenticated", "caller", name, "path", r.URL.Path)
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), name)))
		})
	}
}

// RequireCaller rejects anonymous requests with 401. It runs after
// Authenticate.
func RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if Caller(r.Context()) == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="verdict"`)
			WriteError(w, http.StatusUnauthorized, "unauthorized", "missing API key", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.Header.Get(APIKeyHeader)
}

type callerKey struct{}

// WithCaller stores the authenticated caller name in ctx.
func WithCaller(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, callerKey{}, name)
}

// Caller returns the authenticated caller name, or "".
func Caller(ctx context.Context) string {
	name, _ := ctx.Value(callerKey{}).(string)
	return name
}
