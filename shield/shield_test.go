package shield

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/adixon02/AutoHVAC-sub002/kit"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestRateLimiter(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(1, 2, WithClock(func() time.Time { return now }), WithIdleExpiry(time.Minute))

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("burst of 2 should pass")
	}
	if rl.Allow("a") {
		t.Error("third request in the same instant should be limited")
	}
	if !rl.Allow("b") {
		t.Error("clients are limited independently")
	}
	now = now.Add(time.Second)
	if !rl.Allow("a") {
		t.Error("one token refills per second")
	}

	now = now.Add(2 * time.Minute)
	if n := rl.Sweep(); n != 0 {
		t.Errorf("after sweep %d clients remain", n)
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	h := NewRateLimiter(0.001, 1).Middleware(ok)

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/jobs", nil)
		req.RemoteAddr = "203.0.113.7:4242"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}
	if rec := do(); rec.Code != http.StatusNoContent {
		t.Fatalf("first = %d", rec.Code)
	}
	rec := do()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestExtractIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.1:1234"
	if ip := ExtractIP(req); ip != "198.51.100.1" {
		t.Errorf("remote = %s", ip)
	}
	req.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	if ip := ExtractIP(req); ip != "203.0.113.9" {
		t.Errorf("forwarded = %s", ip)
	}
}

func TestRequestID(t *testing.T) {
	var gotID, gotAddr, gotTransport string
	h := RequestID(quiet)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = kit.GetRequestID(r.Context())
		gotAddr = kit.GetRemoteAddr(r.Context())
		gotTransport = kit.GetTransport(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "192.0.2.5:80"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if !strings.HasPrefix(gotID, "req_") || rec.Header().Get(RequestHeader) != gotID {
		t.Errorf("generated id = %q, header = %q", gotID, rec.Header().Get(RequestHeader))
	}
	if gotAddr != "192.0.2.5" || gotTransport != "http" {
		t.Errorf("addr = %q, transport = %q", gotAddr, gotTransport)
	}

	req.Header.Set(RequestHeader, "client-123")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if gotID != "client-123" {
		t.Errorf("client id not kept: %q", gotID)
	}

	req.Header.Set(RequestHeader, "bad id\n")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if gotID == "bad id\n" {
		t.Error("unsafe client id accepted")
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(DefaultHeaders())(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" || rec.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("headers = %v", rec.Header())
	}

	rec = httptest.NewRecorder()
	SecurityHeaders(HeaderConfig{XFrameOptions: "DENY"})(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("Content-Security-Policy") != "" {
		t.Error("empty fields must be skipped")
	}
}

func TestMaxBody(t *testing.T) {
	h := MaxBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("tiny")))
	if rec.Code != http.StatusNoContent {
		t.Errorf("small body = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("far too large")))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("declared large body = %d", rec.Code)
	}

	// Unknown length is caught while reading.
	req := httptest.NewRequest(http.MethodPost, "/", io.MultiReader(bytes.NewReader(make([]byte, 20))))
	req.ContentLength = -1
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("streamed large body = %d", rec.Code)
	}
}

func TestRecover(t *testing.T) {
	h := Recover(quiet)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), "internal") {
		t.Errorf("panic response = %d %s", rec.Code, rec.Body)
	}
}

func TestDrain(t *testing.T) {
	var d Drain
	h := d.Middleware(ok)
	post := func() int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/jobs", nil))
		return rec.Code
	}
	if post() != http.StatusNoContent {
		t.Fatal("not draining yet")
	}
	d.Start()
	if code := post(); code != http.StatusServiceUnavailable {
		t.Errorf("draining post = %d", code)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/jobs/x", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("draining get = %d", rec.Code)
	}
}
