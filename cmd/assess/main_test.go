package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/opensource-finance/repayplan/internal/domain"
)

const applicantJSON = `{
	"householdSize": 1,
	"monthlyIncome": "2,000,000",
	"meta": {"ageBand": "31-64"},
	"debts": {"byType": {"credit": 5000000}}
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("BareSnapshot", func(t *testing.T) {
		var out bytes.Buffer
		if err := run(ctx, &out, options{inputPath: writeFile(t, "in.json", applicantJSON)}); err != nil {
			t.Fatalf("run failed: %v", err)
		}

		var res domain.AssessmentResult
		if err := json.Unmarshal(out.Bytes(), &res); err != nil {
			t.Fatalf("bad output %q: %v", out.String(), err)
		}
		if res.MonthlyRepayment != 560_000 || res.Months != 8 {
			t.Errorf("expected 560000 x 8, got %d x %d", res.MonthlyRepayment, res.Months)
		}
	})

	t.Run("RequestBody", func(t *testing.T) {
		var out bytes.Buffer
		path := writeFile(t, "req.json", `{"input": `+applicantJSON+`}`)
		if err := run(ctx, &out, options{inputPath: path, record: true}); err != nil {
			t.Fatalf("run failed: %v", err)
		}

		var a domain.Assessment
		if err := json.Unmarshal(out.Bytes(), &a); err != nil {
			t.Fatalf("bad output %q: %v", out.String(), err)
		}
		if a.ID == "" || a.InputHash == "" {
			t.Errorf("expected record id and hash, got %+v", a)
		}
		if a.Display.MonthlyRepayment != "560,000원" {
			t.Errorf("unexpected display %+v", a.Display)
		}
	})

	t.Run("RulesFile", func(t *testing.T) {
		var out bytes.Buffer
		opts := options{
			inputPath: writeFile(t, "in.json", applicantJSON),
			rulesPath: writeFile(t, "rules.json", `{"version": "strict", "eligibility": {"minIncome": 3000000}}`),
		}
		if err := run(ctx, &out, opts); err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if !strings.Contains(out.String(), `"consultOnly":true`) {
			t.Errorf("expected consult verdict under strict rules, got %s", out.String())
		}
	})

	t.Run("MalformedRules", func(t *testing.T) {
		opts := options{
			inputPath: writeFile(t, "in.json", applicantJSON),
			rulesPath: writeFile(t, "rules.json", `{"version": `),
		}
		if err := run(ctx, &bytes.Buffer{}, opts); err == nil {
			t.Error("expected error for malformed rules")
		}
	})

	t.Run("MissingInput", func(t *testing.T) {
		if err := run(ctx, &bytes.Buffer{}, options{inputPath: filepath.Join(t.TempDir(), "none.json")}); err == nil {
			t.Error("expected error for missing input file")
		}
		if err := run(ctx, &bytes.Buffer{}, options{inputPath: writeFile(t, "empty.json", "  ")}); err == nil {
			t.Error("expected error for empty input")
		}
	})
}
