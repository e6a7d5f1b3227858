package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/repayplan/internal/assess"
	"github.com/opensource-finance/repayplan/internal/domain"
	"github.com/opensource-finance/repayplan/internal/rules"
)

var tracer = otel.Tracer("repayplan-report")

// DefaultResultTTL is how long memoised results live when none is configured.
const DefaultResultTTL = 10 * time.Minute

// Assessor runs one assessment end to end: policy lookup, memoised engine
// call, record building and persistence. Repo and Cache are optional.
type Assessor struct {
	Registry  *rules.Registry
	Repo      domain.Repository
	Cache     domain.Cache
	Recorder  *Recorder
	ResultTTL time.Duration
}

// NewAssessor creates an Assessor with a default Recorder.
func NewAssessor(registry *rules.Registry, repo domain.Repository, cache domain.Cache, ttl time.Duration) *Assessor {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	return &Assessor{
		Registry:  registry,
		Repo:      repo,
		Cache:     cache,
		Recorder:  NewRecorder(),
		ResultTTL: ttl,
	}
}

// Request is one assessment submission.
type Request struct {
	RequestID    string
	TraceID      string
	RulesVersion string
	Input        *domain.AssessmentInput
	StartTime    time.Time
}

// Assess evaluates the request under the named (or active) policy. Only a
// missing policy is an error; cache and storage failures are logged.
func (a *Assessor) Assess(ctx context.Context, req *Request) (*domain.Assessment, error) {
	start := req.StartTime
	if start.IsZero() {
		start = time.Now()
	}

	policy, err := a.Registry.Lookup(req.RulesVersion)
	if err != nil {
		return nil, err
	}

	input := req.Input
	if input == nil {
		input = &domain.AssessmentInput{}
	}

	fingerprint, err := Fingerprint(policy.Key(), input)
	if err != nil {
		slog.Warn("failed to fingerprint input", "request_id", req.RequestID, "error", err)
	}

	result, cached := a.lookup(ctx, fingerprint)

	var engineMs int64
	if result == nil {
		engineStart := time.Now()
		result = a.compute(ctx, policy, input)
		engineMs = time.Since(engineStart).Milliseconds()
		a.remember(ctx, fingerprint, result)
	}

	recorder := a.Recorder
	if recorder == nil {
		recorder = NewRecorder()
	}
	record := recorder.Record(ctx, &RecordInput{
		RequestID:    req.RequestID,
		TraceID:      req.TraceID,
		InputHash:    fingerprint,
		Input:        input,
		Result:       result,
		StartTime:    start,
		EngineMs:     engineMs,
		GatesChecked: assess.BuiltinGates + len(policy.Gates),
		Cached:       cached,
	})

	if a.Repo != nil {
		if err := a.Repo.SaveAssessment(ctx, record); err != nil {
			slog.Error("failed to save assessment",
				"assessment_id", record.ID,
				"error", err,
			)
		}
	}

	return record, nil
}

func (a *Assessor) compute(ctx context.Context, policy *rules.Policy, input *domain.AssessmentInput) *domain.AssessmentResult {
	_, span := tracer.Start(ctx, "assess.compute",
		trace.WithAttributes(attribute.String("rules.version", policy.Version())),
	)
	defer span.End()

	result := policy.Assess(input)
	span.SetAttributes(
		attribute.Bool("assessment.consult_only", result.ConsultOnly),
		attribute.Int("assessment.months", result.Months),
	)
	return result
}

func (a *Assessor) lookup(ctx context.Context, fingerprint string) (*domain.AssessmentResult, bool) {
	if a.Cache == nil || fingerprint == "" {
		return nil, false
	}
	res, err := a.Cache.GetResult(ctx, fingerprint)
	if err != nil {
		slog.Warn("result cache read failed", "fingerprint", fingerprint, "error", err)
		return nil, false
	}
	return res, res != nil
}

func (a *Assessor) remember(ctx context.Context, fingerprint string, result *domain.AssessmentResult) {
	if a.Cache == nil || fingerprint == "" {
		return
	}
	if err := a.Cache.SetResult(ctx, fingerprint, result, a.ResultTTL); err != nil {
		slog.Warn("result cache write failed", "fingerprint", fingerprint, "error", err)
	}
}

// Announce publishes a finished record to the completed topic, and to the
// consult topic when it is a consult-only verdict.
func Announce(ctx context.Context, bus domain.EventBus, a *domain.Assessment) error {
	if bus == nil || a == nil {
		return nil
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode assessment: %w", err)
	}
	if err := bus.Publish(ctx, domain.TopicAssessmentCompleted, payload); err != nil {
		return fmt.Errorf("failed to publish completed: %w", err)
	}
	if NeedsConsult(a) {
		if err := bus.Publish(ctx, domain.TopicAssessmentConsult, payload); err != nil {
			return fmt.Errorf("failed to publish consult: %w", err)
		}
	}
	return nil
}
