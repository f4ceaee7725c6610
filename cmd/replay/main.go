// Replay tool for driving Harrier with historical transaction exports.
//
// Usage:
//   go run cmd/replay/main.go -csv /path/to/transactions.csv -url http://localhost:8080
//
// The CSV needs at least account, type_code, amount, and currency
// columns; timestamp and counterparty_country are picked up when
// present. Each row is posted to /transactions and the run ends with
// flag-rate and latency statistics.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

type row struct {
	Account             string
	TypeCode            string
	Amount              decimal.Decimal
	Currency            string
	Timestamp           *time.Time
	CounterpartyCountry string
}

type request struct {
	AccountNumber       string          `json:"accountNumber"`
	TypeCode            string          `json:"typeCode"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	Timestamp           *time.Time      `json:"timestamp,omitempty"`
	CounterpartyCountry string          `json:"counterpartyCountry,omitempty"`
}

type response struct {
	TxID      string   `json:"txId"`
	Flagged   bool     `json:"flagged"`
	Score     int      `json:"score"`
	RiskLevel string   `json:"riskLevel"`
	Alerts    []string `json:"alerts"`
	Duplicate bool     `json:"duplicate"`
}

type runStats struct {
	Processed  int64
	Flagged    int64
	Duplicates int64
	Errors     int64
	LatencyMs  int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to transaction CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Harrier base URL")
	limit := flag.Int("limit", 0, "Maximum transactions to send (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent senders")
	async := flag.Bool("async", false, "Queue transactions instead of waiting for evaluation")
	verbose := flag.Bool("verbose", false, "Print each flagged transaction")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: replay -csv /path/to/transactions.csv [-url http://localhost:8080]")
		fmt.Println()
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Harrier not reachable at %s: %v\n", *baseURL, err)
		os.Exit(1)
	}

	rows, err := readCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d transactions from %s\n", len(rows), *csvPath)

	ingestPath := "/transactions"
	if *async {
		ingestPath = "/transactions?async=true"
	}

	start := time.Now()
	stats := run(rows, *baseURL+ingestPath, *workers, *verbose)
	printResults(stats, time.Since(start), *async)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readCSV(path string, limit int) ([]row, error) {
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
	col := make(map[string]int)
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"account", "type_code", "amount", "currency"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	field := func(record []string, name string) string {
		if i, ok := col[name]; ok && i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	var rows []row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // skip malformed rows
		}

		amount, err := decimal.NewFromString(field(record, "amount"))
		if err != nil {
			continue
		}

		r := row{
			Account:             field(record, "account"),
			TypeCode:            field(record, "type_code"),
			Amount:              amount,
			Currency:            field(record, "currency"),
			CounterpartyCountry: field(record, "counterparty_country"),
		}
		if raw := field(record, "timestamp"); raw != "" {
			if ts, err := time.Parse(time.RFC3339, raw); err == nil {
				r.Timestamp = &ts
			}
		}
		rows = append(rows, r)

		if limit > 0 && len(rows) >= limit {
			break
		}
	}
	return rows, nil
}

func run(rows []row, url string, numWorkers int, verbose bool) *runStats {
	stats := &runStats{}
	work := make(chan row, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for r := range work {
				start := time.Now()
				result, err := send(client, url, r)
				atomic.AddInt64(&stats.LatencyMs, time.Since(start).Milliseconds())
				atomic.AddInt64(&stats.Processed, 1)

				if err != nil {
					atomic.AddInt64(&stats.Errors, 1)
					if verbose {
						fmt.Printf("ERROR: %s %s -> %v\n", r.Account, r.TypeCode, err)
					}
					continue
				}
				if result.Duplicate {
					atomic.AddInt64(&stats.Duplicates, 1)
					continue
				}
				if result.Flagged {
					atomic.AddInt64(&stats.Flagged, 1)
					if verbose {
						fmt.Printf("FLAGGED %s | %-10s | %12s %s | score %d (%s) | %d alert(s)\n",
							r.Account, r.TypeCode, r.Amount.StringFixed(2), r.Currency,
							result.Score, result.RiskLevel, len(result.Alerts))
					}
				}
			}
		}()
	}

	for _, r := range rows {
		work <- r
	}
	close(work)
	wg.Wait()

	return stats
}

func send(client *http.Client, url string, r row) (*response, error) {
	body, err := json.Marshal(request{
		AccountNumber:       r.Account,
		TypeCode:            r.TypeCode,
		Amount:              r.Amount,
		Currency:            r.Currency,
		Timestamp:           r.Timestamp,
		CounterpartyCountry: r.CounterpartyCountry,
	})
	if err != nil {
		return nil, err
	}

	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func printResults(s *runStats, duration time.Duration, async bool) {
	fmt.Println()
	fmt.Println("REPLAY RESULTS")
	fmt.Printf("  Processed:   %d\n", s.Processed)
	if !async {
		fmt.Printf("  Flagged:     %d\n", s.Flagged)
		fmt.Printf("  Duplicates:  %d\n", s.Duplicates)
	}
	fmt.Printf("  Errors:      %d\n", s.Errors)
	fmt.Printf("  Duration:    %v\n", duration.Round(time.Millisecond))

	if s.Processed > 0 {
		fmt.Printf("  Avg Latency: %.2f ms\n", float64(s.LatencyMs)/float64(s.Processed))
		fmt.Printf("  Throughput:  %.2f tx/sec\n", float64(s.Processed)/duration.Seconds())
		evaluated := s.Processed - s.Errors - s.Duplicates
		if !async && evaluated > 0 {
			fmt.Printf("  Flag Rate:   %.2f%%\n", 100*float64(s.Flagged)/float64(evaluated))
		}
	}
	fmt.Println()
}
