package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/crucial707/hci-inventory/internal/auth"
	"github.com/crucial707/hci-inventory/internal/metrics"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type key string

const identityKey key = "identity"

// TokenVerifier checks a bearer token and returns the identity it carries.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// Authenticate extracts the bearer token from the Authorization header and verifies it.
// A request without a token yields auth.ErrTokenMissing.
func Authenticate(r *http.Request, v TokenVerifier) (auth.Identity, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return auth.Identity{}, auth.ErrTokenMissing
	}
	scheme, token, _ := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return auth.Identity{}, auth.ErrTokenInvalid
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Identity{}, auth.ErrTokenMissing
	}
	return v.Verify(token)
}

// RequireAuth guards next with Authenticate: a missing token is 401, an invalid or expired one 403.
// On success the identity is available through IdentityFromContext.
func RequireAuth(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := Authenticate(r, v)
			if err != nil {
				reason := rejectionReason(err)
				metrics.IncTokenRejection(reason)
				slog.Info("auth rejected",
					"request_id", chimw.GetReqID(r.Context()),
					"path", r.URL.Path,
					"reason", reason)
				if reason == "missing" {
					writeJSONError(w, "missing authorization token", http.StatusUnauthorized)
					return
				}
				writeJSONError(w, "invalid or expired token", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrTokenMissing):
		return "missing"
	case errors.Is(err, auth.ErrTokenExpired):
		return "expired"
	default:
		return "invalid"
	}
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity stored by RequireAuth.
func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey).(auth.Identity)
	return id, ok
}

// writeJSONError writes the API's standard failure body.
func writeJSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"message": message,
	})
}
