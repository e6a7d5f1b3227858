// Package report turns engine results into persisted assessment records.
package report

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/opensource-finance/repayplan/internal/domain"
)

// EngineVersion identifies the engine build in assessment metadata.
const EngineVersion = "repayplan-1.0"

// ConsultLabel is shown instead of amounts for consult-only results.
const ConsultLabel = "전문가 상담 필요"

// Recorder builds assessment records.
type Recorder struct {
	EngineVersion string

	now func() time.Time
}

// NewRecorder creates a Recorder with default settings.
func NewRecorder() *Recorder {
	return &Recorder{
		EngineVersion: EngineVersion,
		now:           time.Now,
	}
}

// RecordInput contains everything needed to build a record.
type RecordInput struct {
	RequestID    string
	TraceID      string
	InputHash    string
	Input        *domain.AssessmentInput
	Result       *domain.AssessmentResult
	StartTime    time.Time
	EngineMs     int64
	GatesChecked int
	Cached       bool
}

// Record wraps a result into an Assessment with a fresh id and display strings.
func (r *Recorder) Record(ctx context.Context, in *RecordInput) *domain.Assessment {
	now := r.now().UTC()

	hash := in.InputHash
	if hash == "" && in.Result != nil {
		hash, _ = Fingerprint(in.Result.RulesVersion, in.Input)
	}

	a := &domain.Assessment{
		ID:        uuid.New().String(),
		InputHash: hash,
		Input:     in.Input,
		Result:    in.Result,
		Display:   Render(in.Result),
		Timestamp: now,
	}
	if in.Result != nil {
		a.RulesVersion = in.Result.RulesVersion
	}

	var totalMs int64
	if !in.StartTime.IsZero() {
		totalMs = now.Sub(in.StartTime).Milliseconds()
	}
	a.Metadata = domain.AssessmentMetadata{
		TraceID:       in.TraceID,
		RequestID:     in.RequestID,
		EngineMs:      in.EngineMs,
		TotalMs:       totalMs,
		GatesChecked:  in.GatesChecked,
		Cached:        in.Cached,
		EngineVersion: r.EngineVersion,
	}

	return a
}

// Fingerprint hashes the canonical JSON of an input together with the rules
// version. Equal inputs under equal rules always share a fingerprint.
func Fingerprint(version string, in *domain.AssessmentInput) (string, error) {
	if in == nil {
		in = &domain.AssessmentInput{}
	}
	data, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("failed to encode input: %w", err)
	}

	h := xxhash.New()
	_, _ = h.WriteString(version)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(data)
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// Render formats a result the way the form shows it.
func Render(res *domain.AssessmentResult) domain.Display {
	if res == nil {
		return domain.Display{}
	}
	if res.ConsultOnly {
		d := domain.Display{
			MonthlyRepayment: ConsultLabel,
			Months:           ConsultLabel,
			Summary:          ConsultLabel,
		}
		if reason := res.Breakdown.ConsultReason; reason != "" {
			d.Summary = ConsultLabel + ": " + reason
		}
		return d
	}

	total := res.Breakdown.TotalRepayment
	return domain.Display{
		MonthlyRepayment: FormatWon(res.MonthlyRepayment),
		Months:           FormatMonths(res.Months),
		TotalRepayment:   FormatWon(total),
		Summary: fmt.Sprintf("월 %s × %s (총 %s)",
			FormatWon(res.MonthlyRepayment), FormatMonths(res.Months), FormatWon(total)),
	}
}

// FormatWon renders an amount as "1,234,000원".
func FormatWon(v int64) string {
	return humanize.Comma(v) + "원"
}

// FormatMonths renders a period as "36개월".
func FormatMonths(m int) string {
	return strconv.Itoa(m) + "개월"
}

// NeedsConsult reports whether the record is a consult-only verdict.
func NeedsConsult(a *domain.Assessment) bool {
	return a != nil && a.Result != nil && a.Result.ConsultOnly
}

// Reasons returns the human-readable flags of a record.
func Reasons(a *domain.Assessment) []string {
	if a == nil || a.Result == nil {
		return nil
	}
	var reasons []string
	for _, f := range a.Result.Breakdown.Flags {
		if f != "" {
			reasons = append(reasons, f)
		}
	}
	return reasons
}
