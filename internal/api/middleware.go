package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/terra-clan/dataset-validator/internal/models"
)

const (
	touchTimeout = 5 * time.Second
	// touchInterval throttles last_used_at writes for busy callers
	touchInterval = time.Minute
)

type contextKey string

const clientContextKey contextKey = "api_client"

// ClientFromContext returns the authenticated caller, or nil
func ClientFromContext(ctx context.Context) *models.ApiClient {
	client, _ := ctx.Value(clientContextKey).(*models.ApiClient)
	return client
}

// ContextWithClient attaches the authenticated caller to ctx
func ContextWithClient(ctx context.Context, client *models.ApiClient) context.Context {
	return context.WithValue(ctx, clientContextKey, client)
}

// callerName names the caller for logs; "anonymous" when auth is off
func callerName(ctx context.Context) string {
	if c := ClientFromContext(ctx); c != nil {
		return c.Name
	}
	return "anonymous"
}

// ClientStore looks up API callers and records their activity.
// storage.Repository satisfies it.
type ClientStore interface {
	GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error)
	UpdateClientLastUsed(ctx context.Context, apiKey string) error
}

// AuthMiddleware handles API key authentication
type AuthMiddleware struct {
	store ClientStore
	now   func() time.Time
}

// NewAuthMiddleware creates new auth middleware
func NewAuthMiddleware(store ClientStore) *AuthMiddleware {
	return &AuthMiddleware{store: store, now: time.Now}
}

// authFailure is a rejected request and how to answer it
type authFailure struct {
	status  int
	code    string
	message string
}

var (
	failMissingKey = &authFailure{http.StatusUnauthorized, "missing_api_key",
		"provide Authorization header with Bearer token or X-API-Key header"}
	failInvalidKey = &authFailure{http.StatusUnauthorized, "invalid_api_key", "the provided api key is not valid"}
	failInactive   = &authFailure{http.StatusUnauthorized, "client_inactive", "this api key has been deactivated"}
	failLookup     = &authFailure{http.StatusInternalServerError, "authentication_error", "internal server error"}
)

// Authenticate resolves the API key to an active client and stores it in the
// request context. Keys are read from "Authorization: Bearer sk_xxx", a raw
// Authorization value, X-API-Key, or the api_key query parameter on websocket
// upgrades, which cannot carry custom headers from a browser.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := extractAPIKey(r)

		client, fail := m.resolve(r.Context(), apiKey)
		if fail != nil {
			if fail.status == http.StatusUnauthorized && apiKey != "" {
				slog.Warn("rejected api key",
					"reason", fail.code,
					"key_prefix", maskKey(apiKey),
					"remote_addr", r.RemoteAddr,
					"request_id", middleware.GetReqID(r.Context()),
				)
			}
			respondError(w, fail.status, fail.code, fail.message)
			return
		}

		m.touch(client)

		slog.Debug("authenticated request", "client", client.Name, "key_prefix", client.MaskedApiKey())
		next.ServeHTTP(w, r.WithContext(ContextWithClient(r.Context(), client)))
	})
}

func (m *AuthMiddleware) resolve(ctx context.Context, apiKey string) (*models.ApiClient, *authFailure) {
	if apiKey == "" {
		return nil, failMissingKey
	}

	client, err := m.store.GetClientByApiKey(ctx, apiKey)
	if err != nil {
		slog.Error("failed to lookup api client", "error", err, "key_prefix", maskKey(apiKey))
		return nil, failLookup
	}
	if client == nil {
		return nil, failInvalidKey
	}
	if !client.IsActive {
		return nil, failInactive
	}
	return client, nil
}

// touch records activity off the request path, at most once per touchInterval
func (m *AuthMiddleware) touch(client *models.ApiClient) {
	if client.LastUsedAt != nil && m.now().Sub(*client.LastUsedAt) < touchInterval {
		return
	}

	go func(apiKey, name string) {
		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()
		if err := m.store.UpdateClientLastUsed(ctx, apiKey); err != nil {
			slog.Error("failed to update client last_used_at", "error", err, "client", name)
		}
	}(client.ApiKey, client.Name)
}

// RequirePermission returns middleware that checks for specific permission
func (m *AuthMiddleware) RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := ClientFromContext(r.Context())
			if client == nil {
				respondError(w, http.StatusUnauthorized, "not_authenticated", "authentication required")
				return
			}

			if !client.HasPermission(permission) {
				slog.Warn("permission denied",
					"client", client.Name,
					"required", permission,
					"has", client.Permissions,
				)
				respondError(w, http.StatusForbidden, "permission_denied",
					"client does not have required permission: "+permission)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func extractAPIKey(r *http.Request) string {
	if auth := strings.TrimSpace(r.Header.Get("Authorization")); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return auth
	}

	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}

	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("api_key")
	}
	return ""
}

// maskKey returns first 8 chars of key for safe logging
func maskKey(key string) string {
	if len(key) < 8 {
		return "***"
	}
	return key[:8] + "..."
}
