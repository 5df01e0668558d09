package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/time/rate"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
})

func TestIPRateLimiter(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(0.0001), 2)
	h := l.Middleware(okHandler)

	do := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	// Different ports on the same host share a bucket.
	if rr := do("10.0.0.1:1000"); rr.Code != http.StatusOK {
		t.Fatalf("first: got %d", rr.Code)
	}
	if rr := do("10.0.0.1:1001"); rr.Code != http.StatusOK {
		t.Fatalf("second: got %d", rr.Code)
	}
	rr := do("10.0.0.1:1002")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("third: got %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" || !strings.Contains(rr.Body.String(), `"success":false`) {
		t.Errorf("unexpected 429 response: headers=%v body=%s", rr.Header(), rr.Body.String())
	}

	if rr := do("10.0.0.2:1000"); rr.Code != http.StatusOK {
		t.Errorf("other client: got %d", rr.Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	if got := clientIP(req); got != "192.0.2.1" {
		t.Errorf("RemoteAddr: got %q", got)
	}
	req.Header.Set("X-Real-IP", " 198.51.100.7 ")
	if got := clientIP(req); got != "198.51.100.7" {
		t.Errorf("X-Real-IP: got %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Errorf("X-Forwarded-For: got %q", got)
	}
}

func TestRecoverer(t *testing.T) {
	h := Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want 500", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "boom") {
		t.Errorf("panic value leaked to client: %s", rr.Body.String())
	}
}

func TestSecurityHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	SecurityHeaders(true)(okHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy", "Strict-Transport-Security"} {
		if rr.Header().Get(h) == "" {
			t.Errorf("missing header %s", h)
		}
	}

	rr = httptest.NewRecorder()
	SecurityHeaders(false)(okHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS set without TLS")
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://app.test"})(okHandler)

	preflight := httptest.NewRequest(http.MethodOptions, "/products", nil)
	preflight.Header.Set("Origin", "http://app.test")
	preflight.Header.Set("Access-Control-Request-Method", "PUT")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, preflight)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("preflight status: got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "http://app.test" ||
		!strings.Contains(rr.Header().Get("Access-Control-Allow-Methods"), "PUT") {
		t.Errorf("unexpected preflight headers: %v", rr.Header())
	}

	other := httptest.NewRequest(http.MethodGet, "/products", nil)
	other.Header.Set("Origin", "http://evil.test")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, other)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" || rr.Body.String() != "ok" {
		t.Errorf("disallowed origin got CORS headers: %v", rr.Header())
	}

	rr = httptest.NewRecorder()
	wild := httptest.NewRequest(http.MethodGet, "/products", nil)
	wild.Header.Set("Origin", "http://anything.test")
	CORS([]string{"*"})(okHandler).ServeHTTP(rr, wild)
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("wildcard: got %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestMaxBytes(t *testing.T) {
	var readErr error
	h := MaxBytes(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 16)
		for readErr == nil {
			_, readErr = r.Body.Read(buf)
		}
	}))
	req := httptest.NewRequest(http.MethodPost, "/products", strings.NewReader("0123456789"))
	req.ContentLength = -1 // unknown length, e.g. chunked
	h.ServeHTTP(httptest.NewRecorder(), req)

	var mbe *http.MaxBytesError
	if !errors.As(readErr, &mbe) || mbe.Limit != 4 {
		t.Errorf("expected MaxBytesError, got %v", readErr)
	}
}

func TestMaxBytes_DeclaredLengthTooLarge(t *testing.T) {
	h := MaxBytes(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/products", strings.NewReader("0123456789")))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status: got %d, want 413", rr.Code)
	}
}

func TestObserve_RecordsStatus(t *testing.T) {
	h := Observe(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("created"))
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/products", nil))
	if rr.Code != http.StatusCreated || rr.Body.String() != "created" {
		t.Errorf("unexpected response: %d %q", rr.Code, rr.Body.String())
	}
}
