// Benchmark tool for load testing repayplan with applicant snapshots.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/applicants.csv -url http://localhost:8080
//	go run ./cmd/benchmark -synthetic 5000 -workers 20
//
// This tool:
//  1. Reads applicants from CSV (optionally labelled) or generates them
//  2. Sends each applicant to POST /assessments
//  3. Compares consult/plan verdicts with the labels when present
//  4. Reports latency percentiles, throughput, cache hits and throttling
package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	json "github.com/goccy/go-json"
	"github.com/valyala/fasthttp"

	"github.com/opensource-finance/repayplan/internal/domain"
)

// Applicant is one benchmark row.
type Applicant struct {
	ID    string
	Input domain.AssessmentInput

	// Expected is "consult", "plan" or "" when unlabelled.
	Expected string
}

// Metrics tracks benchmark results.
type Metrics struct {
	TotalProcessed int64
	TotalErrors    int64
	TotalThrottled int64
	CacheHits      int64

	Plans    int64
	Consults int64

	Labelled   int64
	Mismatches int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) observe(d time.Duration) {
	m.mu.Lock()
	m.latencies = append(m.latencies, d)
	m.mu.Unlock()
}

var errThrottled = errors.New("throttled")

func main() {
	csvPath := flag.String("csv", "", "Path to applicants CSV file")
	synthetic := flag.Int("synthetic", 0, "Generate this many random applicants instead of reading CSV")
	baseURL := flag.String("url", "http://localhost:8080", "Repayplan base URL")
	rulesVersion := flag.String("rules", "", "Rules version to assess under (default: active)")
	limit := flag.Int("limit", 10000, "Maximum applicants to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	seed := flag.Int64("seed", 1, "Random seed for synthetic applicants")
	verbose := flag.Bool("verbose", false, "Print each assessment result")
	flag.Parse()

	if *csvPath == "" && *synthetic <= 0 {
		fmt.Println("Usage: benchmark -csv /path/to/applicants.csv | -synthetic N [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║          REPAYPLAN BENCHMARK - Repayment Assessments          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nRepayplan URL: %s\n", *baseURL)
	fmt.Printf("Workers:       %d\n", *workers)
	fmt.Printf("Limit:         %d\n", *limit)
	fmt.Println()

	client := &fasthttp.Client{
		Name:                "repayplan-benchmark",
		MaxConnsPerHost:     *workers * 2,
		ReadTimeout:         10 * time.Second,
		WriteTimeout:        10 * time.Second,
		MaxIdleConnDuration: time.Minute,
	}

	if err := checkHealth(client, *baseURL); err != nil {
		fmt.Printf("ERROR: repayplan not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure repayplan is running:")
		fmt.Println("  go run ./cmd/repayplan")
		os.Exit(1)
	}
	fmt.Println("✓ repayplan is healthy")

	var applicants []Applicant
	if *csvPath != "" {
		fmt.Printf("\nReading applicants from %s...\n", *csvPath)
		var err error
		applicants, err = readApplicantsCSV(*csvPath, *limit)
		if err != nil {
			fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
			os.Exit(1)
		}
	} else {
		applicants = generateApplicants(*synthetic, *seed)
	}
	fmt.Printf("✓ Loaded %s applicants\n", humanize.Comma(int64(len(applicants))))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(client, applicants, *baseURL, *rulesVersion, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(client *fasthttp.Client, baseURL string) error {
	status, _, err := client.GetTimeout(nil, baseURL+"/health", 5*time.Second)
	if err != nil {
		return err
	}
	if status != fasthttp.StatusOK {
		return fmt.Errorf("unhealthy: status %d", status)
	}
	return nil
}

// readApplicantsCSV reads rows with the header
// id,household_size,monthly_income,credit,tax,private_loan,secured,age_band,expected.
// Missing columns read as zero; amounts may carry separators.
func readApplicantsCSV(path string, limit int) ([]Applicant, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	field := func(record []string, name string) string {
		i, ok := colIndex[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	amount := func(record []string, name string) domain.Amount {
		v, _ := strconv.ParseInt(strings.ReplaceAll(field(record, name), ",", ""), 10, 64)
		return domain.Amount(max(0, v))
	}

	var applicants []Applicant
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		household, _ := strconv.Atoi(field(record, "household_size"))
		ageBand := field(record, "age_band")
		if ageBand == "" {
			ageBand = domain.AgeBandMiddle
		}

		a := Applicant{
			ID:       field(record, "id"),
			Expected: strings.ToLower(field(record, "expected")),
			Input: domain.AssessmentInput{
				HouseholdSize: domain.Count(max(1, household)),
				MonthlyIncome: amount(record, "monthly_income"),
				Meta:          domain.Meta{AgeBand: ageBand},
				Debts: domain.Debts{ByType: domain.DebtsByType{
					Credit:      amount(record, "credit"),
					Tax:         amount(record, "tax"),
					PrivateLoan: amount(record, "private_loan"),
					Secured:     amount(record, "secured"),
				}},
			},
		}
		if a.ID == "" {
			a.ID = fmt.Sprintf("row-%d", len(applicants)+1)
		}
		applicants = append(applicants, a)

		if limit > 0 && len(applicants) >= limit {
			break
		}
	}

	return applicants, nil
}

// generateApplicants draws incomes and debts from ranges typical of the form.
func generateApplicants(n int, seed int64) []Applicant {
	rng := rand.New(rand.NewSource(seed))
	bands := []string{domain.AgeBandYoung, domain.AgeBandMiddle, domain.AgeBandSenior}

	applicants := make([]Applicant, n)
	for i := range applicants {
		income := int64(rng.Intn(60)+5) * 100_000 // 500k - 6.4M
		credit := int64(rng.Intn(200)+1) * 1_000_000
		tax := int64(0)
		if rng.Intn(4) == 0 {
			tax = int64(rng.Intn(20)) * 1_000_000
		}
		applicants[i] = Applicant{
			ID: fmt.Sprintf("syn-%d", i+1),
			Input: domain.AssessmentInput{
				HouseholdSize: domain.Count(rng.Intn(4) + 1),
				MonthlyIncome: domain.Amount(income),
				Meta:          domain.Meta{AgeBand: bands[rng.Intn(len(bands))]},
				Debts: domain.Debts{ByType: domain.DebtsByType{
					Credit: domain.Amount(credit),
					Tax:    domain.Amount(tax),
				}},
			},
		}
	}
	return applicants
}

func runBenchmark(client *fasthttp.Client, applicants []Applicant, baseURL, rulesVersion string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{latencies: make([]time.Duration, 0, len(applicants))}

	work := make(chan Applicant, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for a := range work {
				start := time.Now()
				record, err := assess(client, baseURL, rulesVersion, a)
				metrics.observe(time.Since(start))
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if errors.Is(err, errThrottled) {
					atomic.AddInt64(&metrics.TotalThrottled, 1)
					continue
				}
				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", a.ID, err)
					}
					continue
				}

				if record.Metadata.Cached {
					atomic.AddInt64(&metrics.CacheHits, 1)
				}

				verdict := "plan"
				if record.Result != nil && record.Result.ConsultOnly {
					verdict = "consult"
					atomic.AddInt64(&metrics.Consults, 1)
				} else {
					atomic.AddInt64(&metrics.Plans, 1)
				}

				if a.Expected != "" {
					atomic.AddInt64(&metrics.Labelled, 1)
					if a.Expected != verdict {
						atomic.AddInt64(&metrics.Mismatches, 1)
					}
				}

				if verbose {
					status := "✓"
					if a.Expected != "" && a.Expected != verdict {
						status = "✗"
					}
					fmt.Printf("%s %-10s | Income: %14s | Verdict: %-7s | %s / %s\n",
						status,
						a.ID,
						humanize.Comma(int64(a.Input.MonthlyIncome)),
						verdict,
						record.Display.MonthlyRepayment,
						record.Display.Months,
					)
				}
			}
		}()
	}

	for _, a := range applicants {
		work <- a
	}
	close(work)

	wg.Wait()

	return metrics
}

func assess(client *fasthttp.Client, baseURL, rulesVersion string, a Applicant) (*domain.Assessment, error) {
	body, err := json.Marshal(domain.AssessmentRequest{
		RequestID:    a.ID,
		RulesVersion: rulesVersion,
		Input:        &a.Input,
	})
	if err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(baseURL + "/assessments")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := client.DoTimeout(req, resp, 10*time.Second); err != nil {
		return nil, err
	}

	switch status := resp.StatusCode(); {
	case status == fasthttp.StatusTooManyRequests:
		return nil, errThrottled
	case status != fasthttp.StatusOK:
		return nil, fmt.Errorf("status %d", status)
	}

	var record domain.Assessment
	if err := json.Unmarshal(resp.Body(), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 VERDICTS\n")
	fmt.Printf("   Total Processed:  %s\n", humanize.Comma(m.TotalProcessed))
	fmt.Printf("   Plans:            %s\n", humanize.Comma(m.Plans))
	fmt.Printf("   Consult Only:     %s\n", humanize.Comma(m.Consults))
	fmt.Printf("   Cache Hits:       %s\n", humanize.Comma(m.CacheHits))
	fmt.Printf("   Throttled:        %s\n", humanize.Comma(m.TotalThrottled))
	fmt.Printf("   Errors:           %s\n", humanize.Comma(m.TotalErrors))

	if m.Labelled > 0 {
		agreement := float64(m.Labelled-m.Mismatches) / float64(m.Labelled) * 100
		fmt.Printf("\n🎯 LABEL AGREEMENT\n")
		fmt.Printf("   Labelled:    %d\n", m.Labelled)
		fmt.Printf("   Mismatches:  %d\n", m.Mismatches)
		fmt.Printf("   Agreement:   %.2f%%\n", agreement)
	}

	m.mu.Lock()
	sorted := append([]time.Duration(nil), m.latencies...)
	m.mu.Unlock()
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if len(sorted) > 0 {
		fmt.Printf("   p50 Latency:      %v\n", percentile(sorted, 0.50).Round(time.Microsecond))
		fmt.Printf("   p95 Latency:      %v\n", percentile(sorted, 0.95).Round(time.Microsecond))
		fmt.Printf("   p99 Latency:      %v\n", percentile(sorted, 0.99).Round(time.Microsecond))
		fmt.Printf("   Throughput:       %.2f req/sec\n", float64(m.TotalProcessed)/duration.Seconds())
	}

	if m.TotalThrottled > 0 {
		fmt.Println("\n   ⚠️  Requests were throttled; raise REPAYPLAN_THROTTLE_LIMIT for load tests")
	}

	fmt.Println()
}
