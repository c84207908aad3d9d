package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, remoteAddr string) int {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = remoteAddr
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr.Code
}

func TestRateLimiter_BurstThenThrottle(t *testing.T) {
	rl := NewRateLimiter(60, 3)
	defer rl.Stop()
	h := rl.Middleware(okHandler())

	for i := 0; i < 3; i++ {
		if code := hit(h, "203.0.113.1:1234"); code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, code)
		}
	}
	if code := hit(h, "203.0.113.1:1234"); code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 after burst", code)
	}
}

func TestRateLimiter_PerIPIsolation(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	defer rl.Stop()
	h := rl.Middleware(okHandler())

	if code := hit(h, "203.0.113.1:1234"); code != http.StatusOK {
		t.Fatalf("first ip: status = %d, want 200", code)
	}
	if code := hit(h, "203.0.113.1:9999"); code != http.StatusTooManyRequests {
		t.Fatalf("same ip new port: status = %d, want 429", code)
	}
	if code := hit(h, "203.0.113.2:1234"); code != http.StatusOK {
		t.Fatalf("other ip: status = %d, want 200 (buckets must be per ip)", code)
	}
}

func TestRateLimiter_SweepDropsIdleClients(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	defer rl.Stop()
	h := rl.Middleware(okHandler())

	hit(h, "203.0.113.1:1234")
	hit(h, "203.0.113.2:1234")
	rl.sweep(time.Now().Add(clientIdleTTL + time.Minute))

	rl.mu.Lock()
	n := len(rl.clients)
	rl.mu.Unlock()
	if n != 0 {
		t.Fatalf("clients after sweep = %d, want 0", n)
	}
}

func TestRateLimiter_StopTerminatesCleanup(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	rl.Stop()
	rl.Stop() // second call must not panic

	select {
	case <-rl.stop:
	case <-time.After(time.Second):
		t.Fatal("stop channel not closed")
	}
}
