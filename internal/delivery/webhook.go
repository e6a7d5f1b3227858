// Package delivery pushes completed assessments to an external webhook.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/valyala/fasthttp"

	"github.com/opensource-finance/repayplan/internal/domain"
)

// DefaultMarkerTTL is how long a delivered assessment id stays claimed.
const DefaultMarkerTTL = 24 * time.Hour

// Payload is the body POSTed to the webhook.
type Payload struct {
	Payload *domain.AssessmentInput  `json:"payload"`
	Result  *domain.AssessmentResult `json:"result"`
	At      int64                    `json:"at"` // Unix milliseconds
}

// Webhook delivers each completed assessment at most once per marker TTL.
// Delivery is fire-and-forget: failures are logged, never returned to the
// code path that produced the assessment.
type Webhook struct {
	URL       string
	Client    *fasthttp.Client
	Timeout   time.Duration
	Cache     domain.Cache
	MarkerTTL time.Duration

	now     func() time.Time
	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
	sub     domain.Subscription
}

// NewWebhook creates a webhook deliverer. cache may be nil, which disables
// duplicate suppression.
func NewWebhook(url string, timeout time.Duration, cache domain.Cache) *Webhook {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Webhook{
		URL:     url,
		Timeout: timeout,
		Cache:   cache,
		Client: &fasthttp.Client{
			Name:         "repayplan-webhook",
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		MarkerTTL: DefaultMarkerTTL,
		now:       time.Now,
	}
}

// Start subscribes to completed assessments.
func (w *Webhook) Start(ctx context.Context, bus domain.EventBus) error {
	sub, err := bus.Subscribe(ctx, domain.TopicAssessmentCompleted, w.handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe webhook: %w", err)
	}
	w.mu.Lock()
	w.sub = sub
	w.mu.Unlock()
	slog.Info("webhook delivery started", "topic", domain.TopicAssessmentCompleted)
	return nil
}

// Stop unsubscribes and waits for pending deliveries. Messages handled after
// Stop are dropped.
func (w *Webhook) Stop() error {
	w.mu.Lock()
	w.stopped = true
	sub := w.sub
	w.sub = nil
	w.mu.Unlock()

	if sub != nil {
		_ = sub.Unsubscribe()
	}
	w.wg.Wait()
	return nil
}

func (w *Webhook) handle(ctx context.Context, msg *domain.Message) error {
	var a domain.Assessment
	if err := json.Unmarshal(msg.Payload, &a); err != nil {
		slog.Warn("webhook skipped undecodable assessment",
			"message_id", msg.ID,
			"error", err,
		)
		return nil
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		slog.Debug("webhook stopped, dropping assessment", "assessment_id", a.ID)
		return nil
	}
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		delivered, err := w.Deliver(context.WithoutCancel(ctx), &a)
		switch {
		case err != nil:
			slog.Warn("webhook delivery failed",
				"assessment_id", a.ID,
				"url", w.URL,
				"error", err,
			)
		case !delivered:
			slog.Debug("webhook delivery suppressed", "assessment_id", a.ID)
		default:
			slog.Debug("webhook delivered", "assessment_id", a.ID)
		}
	}()
	return nil
}

// Deliver POSTs one assessment. It reports false without sending when the
// assessment was already claimed by an earlier delivery.
func (w *Webhook) Deliver(ctx context.Context, a *domain.Assessment) (bool, error) {
	if w.URL == "" {
		return false, nil
	}

	claimed, err := w.claim(ctx, a.ID)
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}

	now := time.Now
	if w.now != nil {
		now = w.now
	}
	body, err := json.Marshal(Payload{Payload: a.Input, Result: a.Result, At: now().UnixMilli()})
	if err != nil {
		return false, fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(w.URL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	timeout := w.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	client := w.Client
	if client == nil {
		client = &fasthttp.Client{}
	}
	if err := client.DoDeadline(req, resp, deadline); err != nil {
		return true, fmt.Errorf("webhook request failed: %w", err)
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return true, fmt.Errorf("webhook responded with status %d", code)
	}
	return true, nil
}

// claim marks the assessment id as delivered. Only the first caller within
// the marker TTL wins, across replicas when the cache is shared.
func (w *Webhook) claim(ctx context.Context, id string) (bool, error) {
	if w.Cache == nil || id == "" {
		return true, nil
	}
	ttl := w.MarkerTTL
	if ttl <= 0 {
		ttl = DefaultMarkerTTL
	}
	n, err := w.Cache.IncrementCounter(ctx, "webhook:"+id, ttl)
	if err != nil {
		return false, fmt.Errorf("failed to claim delivery marker: %w", err)
	}
	return n == 1, nil
}
