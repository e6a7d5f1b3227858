// Package worker assesses requests arriving on the event bus.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/opensource-finance/repayplan/internal/bus"
	"github.com/opensource-finance/repayplan/internal/domain"
	"github.com/opensource-finance/repayplan/internal/report"
)

// Worker processes assessment requests asynchronously from the EventBus.
type Worker struct {
	bus      domain.EventBus
	assessor *report.Assessor

	mu            sync.Mutex
	subscriptions []domain.Subscription
	sem           chan struct{}
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// Concurrency caps in-flight assessments. Zero means 4.
	Concurrency int
}

// NewWorker creates a new async worker.
func NewWorker(eventBus domain.EventBus, assessor *report.Assessor) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      eventBus,
		assessor: assessor,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the requested topic.
func (w *Worker) Start(cfg Config) error {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.sem = make(chan struct{}, cfg.Concurrency)
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicAssessmentRequested, w.dispatch)
	if err != nil {
		return fmt.Errorf("failed to subscribe worker: %w", err)
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("assessment worker started",
		"topic", domain.TopicAssessmentRequested,
		"concurrency", cfg.Concurrency,
	)
	return nil
}

// dispatch hands a message to a bounded goroutine so slow persistence does
// not stall the subscription. In-flight work runs on the worker context so
// Stop can drain it.
func (w *Worker) dispatch(ctx context.Context, msg *domain.Message) error {
	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.sem }()
		_ = w.process(w.ctx, msg)
	}()
	return nil
}

// process runs one request through the assessor and announces the record.
func (w *Worker) process(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req domain.AssessmentRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse assessment request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = msg.ID
	}
	traceID := req.TraceID
	if traceID == "" {
		traceID = requestID
	}

	slog.Debug("processing assessment request",
		"request_id", requestID,
		"rules_version", req.RulesVersion,
	)

	record, err := w.assessor.Assess(ctx, &report.Request{
		RequestID:    requestID,
		TraceID:      traceID,
		RulesVersion: req.RulesVersion,
		Input:        req.Input,
		StartTime:    start,
	})
	if err != nil {
		slog.Error("assessment failed",
			"request_id", requestID,
			"rules_version", req.RulesVersion,
			"error", err,
		)
		return err
	}

	if err := report.Announce(ctx, w.bus, record); err != nil {
		slog.Error("failed to announce assessment",
			"assessment_id", record.ID,
			"error", err,
		)
	}

	if payload, err := json.Marshal(record); err == nil {
		if err := bus.Reply(ctx, w.bus, msg, payload); err != nil {
			slog.Warn("failed to reply to request",
				"assessment_id", record.ID,
				"error", err,
			)
		}
	}

	slog.Info("assessment processed",
		"assessment_id", record.ID,
		"request_id", requestID,
		"rules_version", record.RulesVersion,
		"consult_only", report.NeedsConsult(record),
		"cached", record.Metadata.Cached,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop unsubscribes and waits for in-flight assessments.
func (w *Worker) Stop() error {
	w.mu.Lock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil
	w.mu.Unlock()

	w.wg.Wait()
	w.cancel()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	InFlight          int      `json:"inFlight"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		InFlight:          len(w.sem),
	}
}
