// Benchmark tool for load testing the fraud detector with generated traffic.
//
// Usage:
//
//	go run ./cmd/benchmark -url http://localhost:8080 -n 5000 -workers 20
//
// This tool:
//  1. Generates labelled transactions with the live feed generator
//  2. Sends each one to POST /transactions
//  3. Compares the verdict (approved vs flagged/blocked) with the label
//  4. Reports the tier distribution, alerts, confusion matrix and latency
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BinaryLoops/Fraud-Detector/internal/domain"
	"github.com/BinaryLoops/Fraud-Detector/internal/feed"
)

// Metrics tracks benchmark results.
type Metrics struct {
	mu sync.Mutex

	TruePositives  int // Suspicious, not approved
	FalsePositives int // Normal, not approved
	TrueNegatives  int // Normal, approved
	FalseNegatives int // Suspicious, approved

	Tiers  map[domain.RiskLevel]int
	Alerts map[domain.Severity]int

	TotalProcessed  int
	TotalSuspicious int
	TotalErrors     int

	Latencies []time.Duration
}

func newMetrics() *Metrics {
	return &Metrics{
		Tiers:  make(map[domain.RiskLevel]int),
		Alerts: make(map[domain.Severity]int),
	}
}

func (m *Metrics) record(resp *domain.EvaluationResponse, suspicious bool, latency time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalProcessed++
	m.Latencies = append(m.Latencies, latency)
	if err != nil {
		m.TotalErrors++
		return
	}
	if suspicious {
		m.TotalSuspicious++
	}

	m.Tiers[resp.Analysis.RiskLevel]++
	if resp.Alert != nil {
		m.Alerts[resp.Alert.Severity]++
	}

	predicted := resp.Status != domain.StatusApproved
	switch {
	case predicted && suspicious:
		m.TruePositives++
	case predicted && !suspicious:
		m.FalsePositives++
	case !predicted && !suspicious:
		m.TrueNegatives++
	default:
		m.FalseNegatives++
	}
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Fraud detector base URL")
	tenantID := flag.String("tenant", "benchmark", "Tenant ID for requests")
	count := flag.Int("n", 1000, "Number of transactions to send")
	workers := flag.Int("workers", 10, "Number of concurrent requests")
	rate := flag.Float64("suspicious", feed.DefaultSuspiciousRate, "Share of suspicious transactions (0-1]")
	seed := flag.Uint64("seed", 0, "Generator seed (0 = clock)")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	if *count <= 0 || *workers <= 0 {
		fmt.Println("Usage: benchmark [-url http://localhost:8080] [-n 1000] [-workers 10]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("+---------------------------------------------------------------+")
	fmt.Println("|             FRAUD DETECTOR BENCHMARK - Generated Feed         |")
	fmt.Println("+---------------------------------------------------------------+")
	fmt.Printf("\nURL:          %s\n", *baseURL)
	fmt.Printf("Tenant ID:    %s\n", *tenantID)
	fmt.Printf("Transactions: %d\n", *count)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Suspicious:   %.2f\n", *rate)
	fmt.Println()

	client := &http.Client{Timeout: 10 * time.Second}
	if err := checkHealth(client, *baseURL); err != nil {
		fmt.Printf("ERROR: fraud detector not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure the server is running:")
		fmt.Println("  go run ./cmd/fraud-detector")
		os.Exit(1)
	}
	fmt.Println("OK  fraud detector is healthy")

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	gen := feed.NewGenerator(*seed, *rate)
	startTime := time.Now()
	metrics := runBenchmark(context.Background(), client, gen, *baseURL, *tenantID, *count, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(client *http.Client, baseURL string) error {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func runBenchmark(ctx context.Context, client *http.Client, gen *feed.Generator, baseURL, tenantID string, count, workers int, verbose bool) *Metrics {
	metrics := newMetrics()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := 0; i < count; i++ {
		tx, suspicious := gen.NextLabeled()
		// The generator's id only has millisecond resolution.
		tx.ID = fmt.Sprintf("%s-%d", tx.ID, i)

		g.Go(func() error {
			start := time.Now()
			resp, err := ingestTransaction(ctx, client, baseURL, tenantID, tx)
			metrics.record(resp, suspicious, time.Since(start), err)

			if verbose {
				if err != nil {
					fmt.Printf("ERROR: %s -> %v\n", tx.ID, err)
					return nil
				}
				fmt.Printf("%-26s | $%10.2f | %-22s | suspicious: %-5v | %-6s %-8s (%.2f)\n",
					tx.ID,
					tx.Amount,
					tx.Location,
					suspicious,
					resp.Analysis.RiskLevel,
					resp.Status,
					resp.Analysis.Confidence,
				)
			}
			return nil
		})
	}
	g.Wait()

	return metrics
}

func ingestTransaction(ctx context.Context, client *http.Client, baseURL, tenantID string, tx domain.Transaction) (*domain.EvaluationResponse, error) {
	body, err := json.Marshal(tx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/transactions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result domain.EvaluationResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n+---------------------------------------------------------------+")
	fmt.Println("|                      BENCHMARK RESULTS                        |")
	fmt.Println("+---------------------------------------------------------------+")

	scored := m.TotalProcessed - m.TotalErrors

	fmt.Printf("\nDATASET\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Suspicious:       %d\n", m.TotalSuspicious)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nRISK TIERS\n")
	for _, level := range []domain.RiskLevel{domain.RiskHigh, domain.RiskMedium, domain.RiskLow} {
		fmt.Printf("   %-7s %6d (%5.1f%%)\n", level, m.Tiers[level], 100*ratio(m.Tiers[level], scored))
	}

	fmt.Printf("\nALERTS\n")
	totalAlerts := 0
	for _, sev := range []domain.Severity{domain.SeverityCritical, domain.SeverityHigh, domain.SeverityMedium, domain.SeverityLow} {
		fmt.Printf("   %-9s %6d\n", sev, m.Alerts[sev])
		totalAlerts += m.Alerts[sev]
	}
	fmt.Printf("   %-9s %6d\n", "total", totalAlerts)

	fmt.Printf("\nCONFUSION MATRIX (not approved = detected)\n")
	fmt.Printf("                     Detected   Approved\n")
	fmt.Printf("   Suspicious      %8d   %8d\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("   Normal          %8d   %8d\n", m.FalsePositives, m.TrueNegatives)

	precision := ratio(m.TruePositives, m.TruePositives+m.FalsePositives)
	recall := ratio(m.TruePositives, m.TruePositives+m.FalseNegatives)
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	fmt.Printf("\n   Precision: %.3f  Recall: %.3f  F1: %.3f\n", precision, recall, f1)

	latencies := slices.Clone(m.Latencies)
	slices.Sort(latencies)
	fmt.Printf("\nLATENCY\n")
	fmt.Printf("   p50: %v  p95: %v  p99: %v  max: %v\n",
		percentile(latencies, 0.50),
		percentile(latencies, 0.95),
		percentile(latencies, 0.99),
		percentile(latencies, 1),
	)
	fmt.Printf("\nTHROUGHPUT\n")
	fmt.Printf("   Duration:   %v\n", duration.Round(time.Millisecond))
	fmt.Printf("   Throughput: %.1f tx/s\n", float64(m.TotalProcessed)/duration.Seconds())
	fmt.Println()
}
