//go:build integration
// +build integration

// Package integration provides end-to-end tests against a running repayplan
// service.
//
// These tests exercise the complete pipeline:
//
//	Applicant → Eligibility gates → Aggregation → Plan solver → Record
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// The service must run with the builtin rules document active (the default
// when no rules path, URL or stored documents exist) and with the async
// worker enabled:
//
//	REPAYPLAN_DB_PATH=$(mktemp -d)/it.db REPAYPLAN_THROTTLE_LIMIT=0 go run ./cmd/repayplan
package integration

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("REPAYPLAN_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{BaseURL: baseURL}
}

// AssessRequest is the body of POST /assessments.
type AssessRequest struct {
	RequestID    string         `json:"requestId,omitempty"`
	RulesVersion string         `json:"rulesVersion,omitempty"`
	Input        map[string]any `json:"input"`
}

// AssessResponse is the subset of the record these tests read.
type AssessResponse struct {
	ID           string `json:"id"`
	RulesVersion string `json:"rulesVersion"`
	InputHash    string `json:"inputHash"`
	Result       struct {
		MonthlyRepayment int64 `json:"monthlyRepayment"`
		Months           int   `json:"months"`
		ConsultOnly      bool  `json:"consultOnly"`
	} `json:"result"`
	Display struct {
		MonthlyRepayment string `json:"monthlyRepayment"`
		Months           string `json:"months"`
	} `json:"display"`
	Metadata struct {
		RequestID string `json:"requestId"`
		Cached    bool   `json:"cached"`
	} `json:"metadata"`
}

func applicant(income, credit int64) map[string]any {
	return map[string]any{
		"householdSize": 1,
		"monthlyIncome": income,
		"meta":          map[string]any{"ageBand": "31-64"},
		"debts":         map[string]any{"byType": map[string]any{"credit": credit}},
	}
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func call(t *testing.T, config TestConfig, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, config.BaseURL+path, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp.StatusCode, respBody
}

func assess(t *testing.T, config TestConfig, req AssessRequest) AssessResponse {
	t.Helper()

	status, body := call(t, config, http.MethodPost, "/assessments", req)
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", status, string(body))
	}

	var result AssessResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(body))
	}
	return result
}

// ============================================================================
// SCENARIO 1: Single applicant with a small credit debt
// ============================================================================

func TestSmallDebt_PeriodShortened(t *testing.T) {
	/*
	   SCENARIO: 2,000,000 income, household of one, 5,000,000 credit debt

	   EXPECTED BEHAVIOR:
	   - Disposable income pays the debt off well inside 36 months
	   - The overpayment rule shortens the period to 8 months
	   - The monthly amount is rounded to 560,000
	*/
	config := getTestConfig()

	result := assess(t, config, AssessRequest{Input: applicant(2_000_000, 5_000_000)})

	if result.Result.ConsultOnly {
		t.Fatal("Expected a plan, got consult-only")
	}
	if result.Result.MonthlyRepayment != 560_000 || result.Result.Months != 8 {
		t.Errorf("Expected 560000 x 8, got %d x %d", result.Result.MonthlyRepayment, result.Result.Months)
	}
	if result.Display.MonthlyRepayment != "560,000원" || result.Display.Months != "8개월" {
		t.Errorf("Unexpected display %+v", result.Display)
	}

	t.Logf("✓ Plan: %s for %s", result.Display.MonthlyRepayment, result.Display.Months)
}

// ============================================================================
// SCENARIO 2: Income below the floor
// ============================================================================

func TestLowIncome_ConsultOnly(t *testing.T) {
	/*
	   SCENARIO: 500,000 income, below the 1,000,000 floor

	   EXPECTED BEHAVIOR:
	   - The income gate fires before any arithmetic
	   - The verdict is consult-only; no amounts are shown
	*/
	config := getTestConfig()

	result := assess(t, config, AssessRequest{Input: applicant(500_000, 5_000_000)})

	if !result.Result.ConsultOnly {
		t.Errorf("Expected consult-only, got %+v", result.Result)
	}
	if result.Result.MonthlyRepayment != 0 || result.Result.Months != 0 {
		t.Errorf("Consult verdicts carry no plan, got %d x %d", result.Result.MonthlyRepayment, result.Result.Months)
	}
}

// ============================================================================
// SCENARIO 3: Repeat submission
// ============================================================================

func TestRepeatSubmission_Memoised(t *testing.T) {
	config := getTestConfig()
	input := applicant(2_345_000, 17_000_000)

	first := assess(t, config, AssessRequest{Input: input})
	second := assess(t, config, AssessRequest{Input: input})

	if first.InputHash != second.InputHash {
		t.Errorf("Equal inputs must share a fingerprint: %s vs %s", first.InputHash, second.InputHash)
	}
	if !second.Metadata.Cached {
		t.Error("Expected the second submission to be served from the result cache")
	}
	if first.ID == second.ID {
		t.Error("Each submission gets its own record id")
	}
	if first.Result != second.Result {
		t.Errorf("Cached result differs: %+v vs %+v", first.Result, second.Result)
	}

	status, _ := call(t, config, http.MethodGet, "/assessments/"+second.ID, nil)
	if status != http.StatusOK {
		t.Errorf("Expected stored record, got status %d", status)
	}
}

// ============================================================================
// SCENARIO 4: Named rules version
// ============================================================================

func TestNamedRulesVersion(t *testing.T) {
	/*
	   SCENARIO: A second document paying 50% of disposable income is loaded
	   next to the active one and requested by name. The active version does
	   not change.
	*/
	config := getTestConfig()
	version := fmt.Sprintf("it-half-%d", time.Now().UnixNano())

	status, body := call(t, config, http.MethodPost, "/rules", map[string]any{
		"version":                 version,
		"paymentRateOfDisposable": 0.5,
	})
	if status != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", status, string(body))
	}

	result := assess(t, config, AssessRequest{RulesVersion: version, Input: applicant(3_000_000, 100_000_000)})
	if result.RulesVersion != version {
		t.Errorf("Expected rules version %s, got %s", version, result.RulesVersion)
	}
	if result.Result.MonthlyRepayment != 780_000 {
		t.Errorf("Expected 780000 under half rate, got %d", result.Result.MonthlyRepayment)
	}

	status, _ = call(t, config, http.MethodPost, "/assessments", AssessRequest{RulesVersion: "missing-version", Input: applicant(1, 1)})
	if status != http.StatusNotFound {
		t.Errorf("Expected status 404 for an unknown version, got %d", status)
	}
}

// ============================================================================
// SCENARIO 5: Async submission through the worker
// ============================================================================

func TestAsyncSubmission_WorkerRecords(t *testing.T) {
	config := getTestConfig()
	requestID := fmt.Sprintf("it-async-%d", time.Now().UnixNano())

	status, body := call(t, config, http.MethodPost, "/assessments/async", AssessRequest{
		RequestID: requestID,
		Input:     applicant(2_000_000, 5_000_000),
	})
	if status != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", status, string(body))
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, body := call(t, config, http.MethodGet, "/assessments?limit=20", nil)
		var list struct {
			Assessments []AssessResponse `json:"assessments"`
		}
		if err := json.Unmarshal(body, &list); err != nil {
			t.Fatalf("Failed to unmarshal list: %v", err)
		}
		for _, a := range list.Assessments {
			if a.Metadata.RequestID == requestID {
				if a.Result.MonthlyRepayment != 560_000 {
					t.Errorf("Expected 560000, got %d", a.Result.MonthlyRepayment)
				}
				t.Logf("✓ Worker recorded %s", a.ID)
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("No record for request %s within 5s; is the async worker enabled?", requestID)
}

// ============================================================================
// Health
// ============================================================================

func TestHealthAndReady(t *testing.T) {
	config := getTestConfig()

	if status, body := call(t, config, http.MethodGet, "/health", nil); status != http.StatusOK {
		t.Errorf("Expected healthy service, got %d: %s", status, string(body))
	}
	if status, body := call(t, config, http.MethodGet, "/ready", nil); status != http.StatusOK {
		t.Errorf("Expected ready service, got %d: %s", status, string(body))
	}
}
