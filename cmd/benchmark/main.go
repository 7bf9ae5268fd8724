package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	numAccounts int
)

// Metrics
var (
	totalRequests uint64
	success200    uint64 // Confirms and idempotent replays
	success201    uint64 // Created
	fail409       uint64 // Already settled or in flight
	fail422       uint64 // Business rejections (insufficient funds)
	fail503       uint64
	failOther     uint64
)

type account struct {
	ID string `json:"id"`
}

type transaction struct {
	ID string `json:"id"`
}

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.IntVar(&numAccounts, "accounts", 1000, "Number of seeded accounts to draw from")
}

func main() {
	flag.Parse()

	accounts, err := loadAccounts()
	if err != nil {
		log.Fatalf("Failed to load accounts: %v", err)
	}
	if len(accounts) < 2 {
		log.Fatalf("Need at least 2 seeded accounts, found %d (run cmd/seeder first)", len(accounts))
	}

	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s | Accounts: %d", workload, concurrency, duration, len(accounts))

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, accounts)
	}

	wg.Wait()
	printResults(time.Since(start))
}

// loadAccounts lists customer accounts, leaving out the system account.
func loadAccounts() ([]string, error) {
	client := &http.Client{Timeout: 10 * time.Second}

	var master account
	if err := getJSON(client, targetURL+"/api/v1/accounts/master", &master); err != nil {
		return nil, err
	}
	var all []account
	if err := getJSON(client, fmt.Sprintf("%s/api/v1/accounts?limit=%d", targetURL, numAccounts+1), &all); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(all))
	for _, a := range all {
		if a.ID != master.ID {
			ids = append(ids, a.ID)
		}
	}
	return ids, nil
}

func getJSON(client *http.Client, url string, out any) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func worker(wg *sync.WaitGroup, start time.Time, accounts []string) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		depositTo, withdrawFrom := pickAccounts(accounts)

		// Deposit, confirm it, then withdraw from another account.
		var dep transaction
		if status := post(client, "/api/v1/accounts/"+depositTo+"/deposit", `{"amount":"1.00"}`, &dep); status != http.StatusCreated {
			continue
		}
		post(client, "/api/v1/transactions/"+dep.ID+"/confirm", "", nil)
		post(client, "/api/v1/accounts/"+withdrawFrom+"/withdraw", `{"amount":"1.00"}`, nil)
	}
}

func post(client *http.Client, path, body string, out any) int {
	req, _ := http.NewRequest(http.MethodPost, targetURL+path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "bench-"+uuid.NewString())

	resp, err := client.Do(req)
	if err != nil {
		atomic.AddUint64(&failOther, 1)
		return 0
	}
	defer resp.Body.Close()

	atomic.AddUint64(&totalRequests, 1)
	switch resp.StatusCode {
	case http.StatusCreated:
		atomic.AddUint64(&success201, 1)
		if out != nil {
			json.NewDecoder(resp.Body).Decode(out)
		}
	case http.StatusOK:
		atomic.AddUint64(&success200, 1)
	case http.StatusConflict:
		atomic.AddUint64(&fail409, 1)
	case http.StatusUnprocessableEntity:
		atomic.AddUint64(&fail422, 1)
	case http.StatusServiceUnavailable:
		atomic.AddUint64(&fail503, 1)
	default:
		atomic.AddUint64(&failOther, 1)
	}
	return resp.StatusCode
}

func pickAccounts(accounts []string) (string, string) {
	if workload == "hotspot" {
		// Hotspot: 90% of traffic goes to the first two accounts
		if rand.Float32() < 0.90 {
			if rand.Float32() < 0.5 {
				return accounts[0], accounts[1]
			}
			return accounts[1], accounts[0]
		}
	}

	a := rand.Intn(len(accounts))
	b := rand.Intn(len(accounts))
	for a == b {
		b = rand.Intn(len(accounts))
	}
	return accounts[a], accounts[b]
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	s201 := atomic.LoadUint64(&success201)
	s200 := atomic.LoadUint64(&success200)
	f409 := atomic.LoadUint64(&fail409)
	f422 := atomic.LoadUint64(&fail422)
	f503 := atomic.LoadUint64(&fail503)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	var rejectRate float64
	if total > 0 {
		rejectRate = float64(f409+f422) / float64(total) * 100
	}

	results := map[string]interface{}{
		"workload":        workload,
		"duration_sec":    d.Seconds(),
		"total_requests":  total,
		"throughput_tps":  tps,
		"success_created": s201,
		"success_ok":      s200,
		"conflicts":       f409,
		"rejected":        f422,
		"unavailable":     f503,
		"reject_rate_pct": rejectRate,
		"errors":          fErr,
	}

	// Print JSON for the python plotter to consume
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		log.Printf("Failed to write %s: %v", filename, err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
