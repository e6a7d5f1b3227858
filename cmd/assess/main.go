// Command assess runs one repayment-plan assessment without the service.
//
// Usage:
//
//	assess -input applicant.json [-rules configs/rules-2025-01.json] [-record]
//	cat applicant.json | assess -rules-url https://example.org/rules.json
//
// The input is an applicant snapshot, or a request body with an "input" field.
// Without -rules or -rules-url the builtin document is used.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	json "github.com/goccy/go-json"

	"github.com/opensource-finance/repayplan/internal/domain"
	"github.com/opensource-finance/repayplan/internal/report"
	"github.com/opensource-finance/repayplan/internal/rules"
)

func main() {
	inputPath := flag.String("input", "-", "Applicant JSON file (- for stdin)")
	rulesPath := flag.String("rules", "", "Rules document JSON file")
	rulesURL := flag.String("rules-url", "", "Rules document URL (wins over -rules)")
	record := flag.Bool("record", false, "Print the full record with display strings")
	pretty := flag.Bool("pretty", false, "Indent JSON output")
	timeout := flag.Duration("timeout", 10*time.Second, "Rules fetch timeout")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, os.Stdout, options{
		inputPath: *inputPath,
		rulesPath: *rulesPath,
		rulesURL:  *rulesURL,
		record:    *record,
		pretty:    *pretty,
		timeout:   *timeout,
	}); err != nil {
		slog.Error("assessment failed", "error", err)
		os.Exit(1)
	}
}

type options struct {
	inputPath string
	rulesPath string
	rulesURL  string
	record    bool
	pretty    bool
	timeout   time.Duration
}

func run(ctx context.Context, out io.Writer, opts options) error {
	in, err := readInput(opts.inputPath)
	if err != nil {
		return err
	}

	doc, err := fetchRules(ctx, opts)
	if err != nil {
		return err
	}

	registry, err := rules.NewRegistry()
	if err != nil {
		return err
	}
	policy, err := registry.Compile(doc)
	if err != nil {
		return err
	}

	start := time.Now()
	result := policy.Assess(in)

	var v any = result
	if opts.record {
		hash, err := report.Fingerprint(policy.Key(), in)
		if err != nil {
			return err
		}
		v = report.NewRecorder().Record(ctx, &report.RecordInput{
			InputHash:    hash,
			Input:        in,
			Result:       result,
			StartTime:    start,
			EngineMs:     time.Since(start).Milliseconds(),
			GatesChecked: len(policy.Gates),
		})
	}

	var data []byte
	if opts.pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func fetchRules(ctx context.Context, opts options) (*domain.RulesDocument, error) {
	switch {
	case opts.rulesURL != "":
		return rules.NewHTTPSource(opts.rulesURL, opts.timeout).Fetch(ctx)
	case opts.rulesPath != "":
		return rules.FileSource{Path: opts.rulesPath}.Fetch(ctx)
	default:
		return rules.Builtin(), nil
	}
}

// readInput accepts a bare snapshot or an assessment request body.
func readInput(path string) (*domain.AssessmentInput, error) {
	var data []byte
	var err error
	if path == "-" || path == "" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("input is empty")
	}

	var req domain.AssessmentRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode input: %w", err)
	}
	if req.Input != nil {
		return req.Input, nil
	}

	var in domain.AssessmentInput
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("failed to decode input: %w", err)
	}
	return &in, nil
}
