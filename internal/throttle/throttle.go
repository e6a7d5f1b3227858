// Package throttle limits assessment submissions per client.
package throttle

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/opensource-finance/repayplan/internal/domain"
)

// Service counts submissions in fixed windows backed by cache counters.
type Service struct {
	cache  domain.Cache
	limit  int64
	window time.Duration
}

// NewService creates a throttle. A limit of zero or less disables it.
func NewService(cache domain.Cache, limit int, window time.Duration) *Service {
	if window <= 0 {
		window = time.Minute
	}
	return &Service{
		cache:  cache,
		limit:  int64(limit),
		window: window,
	}
}

// Enabled reports whether requests are counted at all.
func (s *Service) Enabled() bool {
	return s != nil && s.cache != nil && s.limit > 0
}

// Allow counts one submission for client and reports whether it fits the
// current window, along with the count so far.
func (s *Service) Allow(ctx context.Context, client string) (bool, int64, error) {
	if !s.Enabled() {
		return true, 0, nil
	}
	if client == "" {
		return false, 0, fmt.Errorf("client key is required")
	}

	n, err := s.cache.IncrementCounter(ctx, "throttle:"+client, s.window)
	if err != nil {
		return false, 0, fmt.Errorf("failed to count submission: %w", err)
	}
	return n <= s.limit, n, nil
}

// Middleware answers 429 once a client exceeds the limit. Counter failures
// let the request through.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		client := ClientKey(r)
		ok, n, err := s.Allow(r.Context(), client)
		if err != nil {
			slog.Warn("throttle check failed, allowing request",
				"client", client,
				"error", err,
			)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(s.limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(max(s.limit-n, 0), 10))

		if !ok {
			retry := int(s.window.Seconds())
			if retry < 1 {
				retry = 1
			}
			slog.Info("submission throttled",
				"client", client,
				"count", n,
				"limit", s.limit,
			)
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": "too many assessment requests",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientKey identifies the caller by remote host. Run it after
// middleware.RealIP so proxies are accounted for.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
