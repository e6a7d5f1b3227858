package throttle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/opensource-finance/repayplan/internal/cache"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func send(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/assessments", nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAllow(t *testing.T) {
	ctx := context.Background()
	svc := NewService(cache.NewLRUCache(100), 2, time.Minute)

	for i := 1; i <= 2; i++ {
		ok, n, err := svc.Allow(ctx, "10.0.0.1")
		if err != nil || !ok || n != int64(i) {
			t.Fatalf("request %d: ok=%v n=%d err=%v", i, ok, n, err)
		}
	}
	if ok, n, _ := svc.Allow(ctx, "10.0.0.1"); ok || n != 3 {
		t.Errorf("third request should be rejected, ok=%v n=%d", ok, n)
	}
	if ok, _, _ := svc.Allow(ctx, "10.0.0.2"); !ok {
		t.Error("another client should have its own window")
	}
	if _, _, err := svc.Allow(ctx, ""); err == nil {
		t.Error("expected error for empty client key")
	}
}

func TestDisabled(t *testing.T) {
	for name, svc := range map[string]*Service{
		"ZeroLimit": NewService(cache.NewLRUCache(10), 0, time.Minute),
		"NoCache":   NewService(nil, 5, time.Minute),
		"Nil":       nil,
	} {
		t.Run(name, func(t *testing.T) {
			if svc.Enabled() {
				t.Fatal("expected disabled throttle")
			}
			h := svc.Middleware(okHandler())
			for i := 0; i < 5; i++ {
				if rec := send(h, "10.0.0.1:1234"); rec.Code != http.StatusOK {
					t.Fatalf("expected 200, got %d", rec.Code)
				}
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	svc := NewService(cache.NewLRUCache(100), 2, 30*time.Second)
	h := svc.Middleware(okHandler())

	first := send(h, "192.0.2.7:5000")
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.Code)
	}
	if first.Header().Get("X-RateLimit-Remaining") != "1" {
		t.Errorf("expected 1 remaining, got %q", first.Header().Get("X-RateLimit-Remaining"))
	}

	// Same host on another port shares the window.
	send(h, "192.0.2.7:5001")
	rec := send(h, "192.0.2.7:5002")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "30" {
		t.Errorf("expected Retry-After 30, got %q", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("expected 0 remaining, got %q", rec.Header().Get("X-RateLimit-Remaining"))
	}

	if other := send(h, "198.51.100.1:5000"); other.Code != http.StatusOK {
		t.Errorf("other client should pass, got %d", other.Code)
	}
}

type brokenCounter struct{ *cache.LRUCache }

func (brokenCounter) IncrementCounter(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("redis down")
}

func TestMiddlewareFailsOpen(t *testing.T) {
	svc := NewService(brokenCounter{cache.NewLRUCache(1)}, 1, time.Minute)
	h := svc.Middleware(okHandler())

	for i := 0; i < 3; i++ {
		if rec := send(h, "10.0.0.1:1"); rec.Code != http.StatusOK {
			t.Fatalf("expected fail-open 200, got %d", rec.Code)
		}
	}
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	if got := ClientKey(req); got != "2001:db8::1" {
		t.Errorf("unexpected key %q", got)
	}
	req.RemoteAddr = "unix-socket"
	if got := ClientKey(req); got != "unix-socket" {
		t.Errorf("unexpected key %q", got)
	}
}
