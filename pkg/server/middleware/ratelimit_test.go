package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(rate float64, burst int64) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewRateLimiter(rate, burst)
	l.now = clock.now
	return l, clock
}

func TestRateLimiter_BurstAndRefill(t *testing.T) {
	l, clock := newTestLimiter(2, 3)

	for i := 0; i < 3; i++ {
		if ok, _ := l.Allow("a"); !ok {
			t.Fatalf("request %d denied within burst", i)
		}
	}
	ok, wait := l.Allow("a")
	if ok {
		t.Fatal("request past burst allowed")
	}
	if wait != 500*time.Millisecond {
		t.Errorf("wait = %v, want 500ms", wait)
	}

	// Other clients have their own bucket.
	if ok, _ := l.Allow("b"); !ok {
		t.Error("second client denied")
	}

	clock.advance(500 * time.Millisecond)
	if ok, _ := l.Allow("a"); !ok {
		t.Error("request denied after refill")
	}
	if ok, _ := l.Allow("a"); ok {
		t.Error("refill granted more than one token")
	}

	clock.advance(time.Hour)
	for i := 0; i < 3; i++ {
		if ok, _ := l.Allow("a"); !ok {
			t.Fatalf("request %d denied after full refill", i)
		}
	}
	if ok, _ := l.Allow("a"); ok {
		t.Error("refill exceeded capacity")
	}
}

func TestRateLimiter_SweepsIdleBuckets(t *testing.T) {
	l, clock := newTestLimiter(1, 1)

	l.Allow("a")
	clock.advance(bucketIdleTTL / 2)
	l.Allow("b")
	clock.advance(bucketIdleTTL/2 + time.Second)
	l.Allow("c")

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.buckets["a"]; ok {
		t.Error("idle bucket a not swept")
	}
	if _, ok := l.buckets["b"]; !ok {
		t.Error("recent bucket b swept")
	}
	if _, ok := l.buckets["c"]; !ok {
		t.Error("new bucket c missing")
	}
}

func TestRateLimit_Middleware(t *testing.T) {
	l, _ := newTestLimiter(0.5, 1)
	handler := RateLimit(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	send := func(remote, caller string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		if caller != "" {
			req = req.WithContext(WithCaller(req.Context(), caller))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := send("10.0.0.1:1000", ""); rec.Code != http.StatusOK {
		t.Fatalf("first request = %d", rec.Code)
	}
	// Same host, different port.
	rec := send("10.0.0.1:2000", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q, want 2", got)
	}

	if rec := send("10.0.0.2:1000", ""); rec.Code != http.StatusOK {
		t.Errorf("other address = %d, want 200", rec.Code)
	}
	if rec := send("10.0.0.1:1000", "ops"); rec.Code != http.StatusOK {
		t.Errorf("authenticated caller = %d, want 200", rec.Code)
	}
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	if got := clientKey(req); got != "addr:192.0.2.7" {
		t.Errorf("clientKey() = %q", got)
	}
	req.RemoteAddr = "unix"
	if got := clientKey(req); got != "addr:unix" {
		t.Errorf("clientKey() = %q", got)
	}
	req = req.WithContext(WithCaller(req.Context(), "ops"))
	if got := clientKey(req); got != "key:ops" {
		t.Errorf("clientKey() = %q", got)
	}
}
