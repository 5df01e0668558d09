package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/crucial707/hci-inventory/internal/auth"
	"github.com/crucial707/hci-inventory/internal/metrics"
	"github.com/crucial707/hci-inventory/internal/middleware"
	"github.com/crucial707/hci-inventory/internal/repo"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// ==========================
// Auth Handler
// ==========================
type AuthHandler struct {
	Users  *repo.UserRepo
	Hasher *auth.PasswordHasher
	Tokens *auth.TokenIssuer
}

type credentials struct {
	Username string `json:"username" validate:"required,max=255"`
	Password string `json:"password" validate:"required"`
}

func decodeCredentials(r *http.Request) (credentials, map[string]string, error) {
	var in credentials
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		return in, nil, err
	}
	in.Username = strings.TrimSpace(in.Username)

	fields := make(map[string]string)
	var verr *repo.ValidationError
	if err := repo.Validate(in); errors.As(err, &verr) {
		fields = verr.Fields
	}
	// bcrypt caps input in bytes, not characters.
	if _, bad := fields["password"]; !bad && len(in.Password) > auth.MaxPasswordBytes {
		fields["password"] = "must be at most 72 bytes"
	}
	return in, fields, nil
}

// ==========================
// Register (password stored as bcrypt hash)
// ==========================
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	in, fields, err := decodeCredentials(r)
	if err != nil {
		metrics.IncAuthAttempt("register", "invalid")
		JSONError(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(fields) > 0 {
		metrics.IncAuthAttempt("register", "invalid")
		JSONValidationError(w, "validation failed", fields, http.StatusBadRequest)
		return
	}

	hash, err := h.Hasher.Hash(in.Password)
	if err != nil {
		metrics.IncAuthAttempt("register", "error")
		internalError(w, r, "register: hash password", err)
		return
	}

	user, err := h.Users.Create(r.Context(), in.Username, hash)
	if errors.Is(err, repo.ErrDuplicateUsername) {
		metrics.IncAuthAttempt("register", "conflict")
		JSONError(w, "username already exists", http.StatusConflict)
		return
	}
	if err != nil {
		metrics.IncAuthAttempt("register", "error")
		internalError(w, r, "register: create user", err)
		return
	}

	metrics.IncAuthAttempt("register", "success")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    user,
	})
}

// ==========================
// Login (verifies the bcrypt hash, issues a bearer token)
// ==========================
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	in, fields, err := decodeCredentials(r)
	if err != nil {
		metrics.IncAuthAttempt("login", "invalid")
		JSONError(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(fields) > 0 {
		metrics.IncAuthAttempt("login", "invalid")
		JSONValidationError(w, "validation failed", fields, http.StatusBadRequest)
		return
	}

	user, err := h.Users.GetByUsername(r.Context(), in.Username)
	if errors.Is(err, repo.ErrNotFound) {
		h.rejectLogin(w, r, "user not found")
		return
	}
	if err != nil {
		metrics.IncAuthAttempt("login", "error")
		internalError(w, r, "login: find user", err)
		return
	}

	if !h.Hasher.Verify(in.Password, user.PasswordHash) {
		h.rejectLogin(w, r, "password mismatch")
		return
	}

	token, err := h.Tokens.Issue(user.ID, user.Username)
	if err != nil {
		metrics.IncAuthAttempt("login", "error")
		internalError(w, r, "login: issue token", err)
		return
	}

	metrics.IncAuthAttempt("login", "success")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "login successful",
		"token":   token,
		"user":    user,
	})
}

// rejectLogin answers 401 without telling the client which check failed.
func (h *AuthHandler) rejectLogin(w http.ResponseWriter, r *http.Request, reason string) {
	metrics.IncAuthAttempt("login", "rejected")
	slog.Info("login rejected",
		"request_id", chimw.GetReqID(r.Context()),
		"reason", reason)
	JSONError(w, "invalid credentials", http.StatusUnauthorized)
}

// ==========================
// Profile (requires RequireAuth in front)
// ==========================
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		JSONError(w, "missing authorization token", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "welcome",
		"user":    id,
	})
}
