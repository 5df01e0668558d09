package handlers

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/crucial707/hci-inventory/internal/auth"
	"github.com/crucial707/hci-inventory/internal/middleware"
	"github.com/crucial707/hci-inventory/internal/repo"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var userCols = []string{"id", "username", "password", "created_at"}

func newAuthHandler(t *testing.T) (*AuthHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &AuthHandler{
		Users:  repo.NewUserRepo(db),
		Hasher: auth.NewPasswordHasher(bcrypt.MinCost),
		Tokens: auth.NewTokenIssuer([]byte("test-secret"), time.Hour),
	}, mock
}

func postJSON(path string, v interface{}) *http.Request {
	body, _ := json.Marshal(v)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	return out
}

func TestAuthHandler_Register(t *testing.T) {
	h, mock := newAuthHandler(t)

	mock.ExpectQuery(`INSERT INTO inventory.users`).
		WithArgs("alice", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(1, "alice", "$2a$04$hash", time.Now()))

	rr := httptest.NewRecorder()
	h.Register(rr, postJSON("/register", map[string]string{"username": "alice", "password": "s3cret"}))

	require.Equal(t, http.StatusOK, rr.Code)
	out := decodeBody(t, rr)
	assert.Equal(t, true, out["success"])
	user := out["user"].(map[string]interface{})
	assert.Equal(t, "alice", user["username"])
	assert.NotContains(t, user, "password")
	assert.NotContains(t, user, "PasswordHash")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthHandler_Register_StoresHashNotPlaintext(t *testing.T) {
	h, mock := newAuthHandler(t)

	var stored string
	mock.ExpectQuery(`INSERT INTO inventory.users`).
		WithArgs("alice", hashCapture{dst: &stored}).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(1, "alice", "x", time.Now()))

	rr := httptest.NewRecorder()
	h.Register(rr, postJSON("/register", map[string]string{"username": "alice", "password": "s3cret"}))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEqual(t, "s3cret", stored)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored), []byte("s3cret")))
}

// hashCapture matches any string argument and keeps it for inspection.
type hashCapture struct{ dst *string }

func (c hashCapture) Match(v driver.Value) bool {
	s, ok := v.(string)
	if ok {
		*c.dst = s
	}
	return ok
}

func TestAuthHandler_Register_TrimsUsername(t *testing.T) {
	h, mock := newAuthHandler(t)

	mock.ExpectQuery(`INSERT INTO inventory.users`).
		WithArgs("alice", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(1, "alice", "x", time.Now()))

	rr := httptest.NewRecorder()
	h.Register(rr, postJSON("/register", map[string]string{"username": "  alice ", "password": "s3cret"}))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthHandler_Register_Duplicate(t *testing.T) {
	h, mock := newAuthHandler(t)

	mock.ExpectQuery(`INSERT INTO inventory.users`).
		WithArgs("alice", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})

	rr := httptest.NewRecorder()
	h.Register(rr, postJSON("/register", map[string]string{"username": "alice", "password": "other"}))

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "username already exists", decodeBody(t, rr)["message"])
}

func TestAuthHandler_Register_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"bad json", `{"username":`, ""},
		{"missing username", `{"password":"pw"}`, "username"},
		{"missing password", `{"username":"bob"}`, "password"},
		{"blank username", `{"username":"   ","password":"pw"}`, "username"},
		{"username too long", `{"username":"` + strings.Repeat("u", 256) + `","password":"pw"}`, "username"},
		{"password too long", `{"username":"bob","password":"` + string(bytes.Repeat([]byte("a"), 73)) + `"}`, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, mock := newAuthHandler(t)

			req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewBufferString(tt.body))
			rr := httptest.NewRecorder()
			h.Register(rr, req)

			require.Equal(t, http.StatusBadRequest, rr.Code)
			out := decodeBody(t, rr)
			assert.Equal(t, false, out["success"])
			if tt.field != "" {
				assert.Contains(t, out["fields"], tt.field)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAuthHandler_Register_StorageError(t *testing.T) {
	h, mock := newAuthHandler(t)

	mock.ExpectQuery(`INSERT INTO inventory.users`).
		WithArgs("alice", sqlmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	rr := httptest.NewRecorder()
	h.Register(rr, postJSON("/register", map[string]string{"username": "alice", "password": "pw"}))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, ErrMessageInternal, decodeBody(t, rr)["message"])
}

func TestAuthHandler_Login(t *testing.T) {
	h, mock := newAuthHandler(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT id, username, password, created_at`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(1, "alice", string(hash), time.Now()))

	rr := httptest.NewRecorder()
	h.Login(rr, postJSON("/login", map[string]string{"username": "alice", "password": "s3cret"}))

	require.Equal(t, http.StatusOK, rr.Code)
	var out struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Token   string `json:"token"`
		User    struct {
			ID       int    `json:"id"`
			Username string `json:"username"`
		} `json:"user"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	assert.True(t, out.Success)
	assert.Equal(t, "login successful", out.Message)
	assert.Equal(t, 1, out.User.ID)

	id, err := h.Tokens.Verify(out.Token)
	require.NoError(t, err)
	assert.Equal(t, auth.Identity{UserID: 1, Username: "alice"}, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	t.Run("unknown user", func(t *testing.T) {
		h, mock := newAuthHandler(t)
		mock.ExpectQuery(`SELECT id, username, password, created_at`).
			WithArgs("nobody").
			WillReturnRows(sqlmock.NewRows(userCols))

		rr := httptest.NewRecorder()
		h.Login(rr, postJSON("/login", map[string]string{"username": "nobody", "password": "s3cret"}))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "invalid credentials", decodeBody(t, rr)["message"])
	})

	t.Run("wrong password", func(t *testing.T) {
		h, mock := newAuthHandler(t)
		mock.ExpectQuery(`SELECT id, username, password, created_at`).
			WithArgs("alice").
			WillReturnRows(sqlmock.NewRows(userCols).AddRow(1, "alice", string(hash), time.Now()))

		rr := httptest.NewRecorder()
		h.Login(rr, postJSON("/login", map[string]string{"username": "alice", "password": "nope"}))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		out := decodeBody(t, rr)
		assert.Equal(t, "invalid credentials", out["message"])
		assert.NotContains(t, out, "token")
	})
}

func TestAuthHandler_Profile(t *testing.T) {
	h, _ := newAuthHandler(t)
	token, err := h.Tokens.Issue(3, "carol")
	require.NoError(t, err)

	protected := middleware.RequireAuth(h.Tokens)(http.HandlerFunc(h.Profile))

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	protected.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	out := decodeBody(t, rr)
	assert.Equal(t, "welcome", out["message"])
	user := out["user"].(map[string]interface{})
	assert.Equal(t, "carol", user["username"])
	assert.Equal(t, float64(3), user["user_id"])

	rr = httptest.NewRecorder()
	protected.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/profile", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
