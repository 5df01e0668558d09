package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/crucial707/hci-inventory/internal/config"
	"github.com/crucial707/hci-inventory/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

func newTestServer(t *testing.T) (*httptest.Server, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	images, err := storage.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}

	cfg := config.Config{
		JWTSecret:      "test-secret-for-integration",
		BcryptCost:     bcrypt.MinCost,
		MaxUploadBytes: 4096,
	}
	srv := httptest.NewServer(newRouter(db, cfg, images))
	t.Cleanup(srv.Close)
	return srv, mock
}

// TestAPI_RegisterLoginProfile is an integration test: it builds the full router with a
// sqlmock-backed DB, registers, logs in to get a JWT, then calls GET /profile with the token.
func TestAPI_RegisterLoginProfile(t *testing.T) {
	srv, mock := newTestServer(t)
	userCols := []string{"id", "username", "password", "created_at"}

	mock.ExpectQuery(`INSERT INTO inventory.users`).
		WithArgs("integration", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(1, "integration", "x", time.Now()))

	body, _ := json.Marshal(map[string]string{"username": "integration", "password": "pw123"})
	resp, err := http.Post(srv.URL+"/register", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("register request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register status: got %d, want 200", resp.StatusCode)
	}

	hash, _ := bcrypt.GenerateFromPassword([]byte("pw123"), bcrypt.MinCost)
	mock.ExpectQuery(`SELECT id, username, password, created_at`).
		WithArgs("integration").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(1, "integration", string(hash), time.Now()))

	loginResp, err := http.Post(srv.URL+"/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer loginResp.Body.Close()
	if loginResp.StatusCode != http.StatusOK {
		t.Fatalf("login status: got %d, want 200", loginResp.StatusCode)
	}
	var loginOut struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(loginResp.Body).Decode(&loginOut); err != nil || loginOut.Token == "" {
		t.Fatalf("login response: %v", err)
	}

	req, _ := http.NewRequest("GET", srv.URL+"/profile", nil)
	req.Header.Set("Authorization", "Bearer "+loginOut.Token)
	profileResp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("profile request: %v", err)
	}
	defer profileResp.Body.Close()
	if profileResp.StatusCode != http.StatusOK {
		t.Fatalf("GET /profile status: got %d, want 200", profileResp.StatusCode)
	}
	var profile struct {
		User struct {
			UserID   int    `json:"user_id"`
			Username string `json:"username"`
		} `json:"user"`
	}
	if err := json.NewDecoder(profileResp.Body).Decode(&profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if profile.User.UserID != 1 || profile.User.Username != "integration" {
		t.Errorf("unexpected profile: %+v", profile.User)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestAPI_ProfileRejectsBadTokens(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		header string
		want   int
	}{
		{"", http.StatusUnauthorized},
		{"Bearer not.a.jwt", http.StatusForbidden},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest("GET", srv.URL+"/profile", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		resp, err := srv.Client().Do(req)
		if err != nil {
			t.Fatalf("profile request: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("header %q: got %d, want %d", tt.header, resp.StatusCode, tt.want)
		}
	}
}

func TestAPI_CreateThenListProducts(t *testing.T) {
	srv, mock := newTestServer(t)
	cols := []string{"id", "name", "category", "description", "image", "price", "stock", "created_at"}
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO inventory.products`).
		WithArgs("Widget", "Tools", "", nil, 9.99, 5).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(1, "Widget", "Tools", "", nil, 9.99, 5, now))
	mock.ExpectQuery(`SELECT .* FROM inventory.products ORDER BY id ASC`).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(1, "Widget", "Tools", "", nil, 9.99, 5, now))

	body := `{"name":"Widget","category":"Tools","price":9.99,"stock":5}`
	resp, err := http.Post(srv.URL+"/products", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /products status: got %d, want 201", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/products")
	if err != nil {
		t.Fatalf("list request: %v", err)
	}
	defer resp.Body.Close()
	var products []struct {
		ID    int     `json:"id"`
		Name  string  `json:"name"`
		Image *string `json:"image"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&products); err != nil {
		t.Fatalf("decode products: %v", err)
	}
	if len(products) != 1 || products[0].Name != "Widget" || products[0].Image != nil {
		t.Errorf("unexpected products: %+v", products)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestAPI_ProductBodyTooLarge(t *testing.T) {
	srv, _ := newTestServer(t)

	big := bytes.Repeat([]byte("a"), 8192)
	resp, err := http.Post(srv.URL+"/products", "application/octet-stream", bytes.NewReader(big))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("POST /products status: got %d, want 413", resp.StatusCode)
	}
}

// TestAPI_Health is a quick smoke test for the health endpoint.
func TestAPI_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /health status: got %d, want 200", resp.StatusCode)
	}
}

// TestAPI_Ready checks that /ready pings the DB and returns 503 when the ping fails.
func TestAPI_Ready(t *testing.T) {
	srv, mock := newTestServer(t)

	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	for _, want := range []int{http.StatusOK, http.StatusServiceUnavailable} {
		resp, err := http.Get(srv.URL + "/ready")
		if err != nil {
			t.Fatalf("ready request: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("GET /ready status: got %d, want %d", resp.StatusCode, want)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestAPI_Metrics(t *testing.T) {
	srv, _ := newTestServer(t)

	http.Get(srv.URL + "/health")
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), "http_requests_total") {
		t.Errorf("GET /metrics: status %d, missing request counter", resp.StatusCode)
	}
}
