package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func limitedHandler(rl *RateLimiter) http.Handler {
	return rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func hit(h http.Handler, addr, path string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, path, nil)
	r.RemoteAddr = addr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestRateLimiterBlocksAfterLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	defer rl.Close()
	h := limitedHandler(rl)

	for i := 0; i < 3; i++ {
		if w := hit(h, "10.0.0.1:5000", "/auth/login"); w.Code != http.StatusOK {
			t.Fatalf("request %d blocked early: %d", i+1, w.Code)
		}
	}

	w := hit(h, "10.0.0.1:5000", "/auth/login")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 response carries no Retry-After header")
	}
}

func TestRateLimiterScopesByIPAndRoute(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Close()
	h := limitedHandler(rl)

	hit(h, "10.0.0.1:5000", "/auth/login")
	if w := hit(h, "10.0.0.1:5000", "/auth/login"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second login request = %d, want 429", w.Code)
	}
	if w := hit(h, "10.0.0.1:5000", "/auth/refresh"); w.Code != http.StatusOK {
		t.Errorf("refresh blocked by the login counter: %d", w.Code)
	}
	if w := hit(h, "10.0.0.2:5000", "/auth/login"); w.Code != http.StatusOK {
		t.Errorf("other IP blocked: %d", w.Code)
	}
}

func TestRateLimiterWindowResets(t *testing.T) {
	rl := NewRateLimiter(1, 30*time.Millisecond)
	defer rl.Close()
	h := limitedHandler(rl)

	hit(h, "10.0.0.1:5000", "/auth/login")
	if w := hit(h, "10.0.0.1:5000", "/auth/login"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("want 429 inside the window, got %d", w.Code)
	}

	time.Sleep(50 * time.Millisecond)
	if w := hit(h, "10.0.0.1:5000", "/auth/login"); w.Code != http.StatusOK {
		t.Errorf("request after the window = %d, want 200", w.Code)
	}
}
