package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newTestLimiter(rpm, burst int) (*Limiter, *time.Time) {
	l := New(Config{RequestsPerMinute: rpm, BurstSize: burst})
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimiterAllow(t *testing.T) {
	l, now := newTestLimiter(60, 5)
	defer l.Stop()

	for i := 0; i < 5; i++ {
		if !l.Allow("10.0.0.1") {
			t.Errorf("Request %d should be allowed (within burst)", i)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Error("Request after burst should be denied")
	}

	*now = now.Add(time.Second)
	if !l.Allow("10.0.0.1") {
		t.Error("One token should refill after a second at 60/min")
	}
	if l.Allow("10.0.0.1") {
		t.Error("Only one token should have refilled")
	}
}

func TestLimiterMultipleClients(t *testing.T) {
	l, _ := newTestLimiter(60, 2)
	defer l.Stop()

	l.Allow("a")
	l.Allow("a")
	if l.Allow("a") {
		t.Error("client a should be throttled")
	}
	if !l.Allow("b") {
		t.Error("client b has its own bucket")
	}
}

func TestLimiterRefillCapsAtBurst(t *testing.T) {
	l, now := newTestLimiter(600, 3)
	defer l.Stop()

	l.Allow("a")
	*now = now.Add(time.Hour)
	for i := 0; i < 3; i++ {
		if !l.Allow("a") {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if l.Allow("a") {
		t.Error("bucket should never exceed burst size")
	}
}

func TestLimiterEvictIdle(t *testing.T) {
	l, now := newTestLimiter(60, 2)
	defer l.Stop()

	l.Allow("a")
	*now = now.Add(3 * time.Minute)
	l.evictIdle()

	l.mu.Lock()
	n := len(l.buckets)
	l.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected idle bucket evicted, %d remain", n)
	}
}

func TestMiddleware_Returns429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, _ := newTestLimiter(60, 1)
	defer l.Stop()

	r := gin.New()
	r.Use(l.Middleware())
	r.GET("/api/hotspots", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 2)
	for i := range codes {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/api/hotspots", nil))
		codes[i] = w.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("expected [200 429], got %v", codes)
	}
}

func TestStop_Idempotent(t *testing.T) {
	l := New(DefaultConfig())
	l.Stop()
	l.Stop()
}
