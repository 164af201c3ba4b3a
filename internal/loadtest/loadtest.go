// Package loadtest drives create/decrypt traffic against a running keywrapd
// and compares latency against a stored baseline.
package loadtest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/kenneth/base64-type/internal/b64"
	"github.com/kenneth/base64-type/internal/codecs"
	"github.com/sirupsen/logrus"
)

// Config holds load test parameters.
type Config struct {
	TargetURL           string
	Workers             int
	Duration            time.Duration
	QPS                 int // per worker
	BaselineFile        string
	RegressionThreshold float64 // percent
	Client              *http.Client
}

// Results summarizes one run. Each iteration is a create followed by a
// decrypt of the same id.
type Results struct {
	Iterations int64         `json:"iterations"`
	Errors     int64         `json:"errors"`
	Mismatches int64         `json:"mismatches"`
	Throughput float64       `json:"throughput_per_sec"`
	P50        time.Duration `json:"p50"`
	P95        time.Duration `json:"p95"`
	P99        time.Duration `json:"p99"`
	Elapsed    time.Duration `json:"elapsed"`
}

// ErrorRate is the share of failed iterations.
func (r *Results) ErrorRate() float64 {
	if r.Iterations == 0 {
		return 0
	}
	return float64(r.Errors) / float64(r.Iterations)
}

var codec = codecs.NewJSONIter()

type dataKey struct {
	ID        string     `json:"id"`
	Plaintext b64.Base64 `json:"plaintext"`
}

// Run starts cfg.Workers workers and blocks until cfg.Duration elapses or ctx
// is canceled.
func Run(ctx context.Context, cfg Config, logger *logrus.Logger) (*Results, error) {
	if cfg.TargetURL == "" {
		return nil, fmt.Errorf("target URL is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QPS <= 0 {
		cfg.QPS = 10
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var (
		mu        sync.Mutex
		latencies []time.Duration
		res       Results
		wg        sync.WaitGroup
	)
	runID := time.Now().UnixNano()
	start := time.Now()

	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			ticker := time.NewTicker(time.Second / time.Duration(cfg.QPS))
			defer ticker.Stop()

			for i := 0; ; i++ {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}

				id := fmt.Sprintf("load-%d-%d-%d", runID, worker, i)
				began := time.Now()
				matched, err := iterate(ctx, cfg.Client, cfg.TargetURL, id)
				took := time.Since(began)
				if ctx.Err() != nil {
					return
				}

				mu.Lock()
				res.Iterations++
				switch {
				case err != nil:
					res.Errors++
					logger.WithError(err).WithField("id", id).Debug("Iteration failed")
				case !matched:
					res.Mismatches++
				default:
					latencies = append(latencies, took)
				}
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	res.Elapsed = time.Since(start)
	if res.Elapsed > 0 {
		res.Throughput = float64(len(latencies)) / res.Elapsed.Seconds()
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	res.P50 = percentile(latencies, 50)
	res.P95 = percentile(latencies, 95)
	res.P99 = percentile(latencies, 99)
	return &res, nil
}

// iterate creates a data key under id, decrypts it and reports whether both
// calls returned the same plaintext.
func iterate(ctx context.Context, client *http.Client, target, id string) (bool, error) {
	var created dataKey
	if err := post(ctx, client, target+"/v1/datakeys", fmt.Sprintf(`{"id":%q}`, id), http.StatusCreated, &created); err != nil {
		return false, err
	}
	var opened dataKey
	if err := post(ctx, client, target+"/v1/datakeys/"+id+"/decrypt", "", http.StatusOK, &opened); err != nil {
		return false, err
	}
	return created.Plaintext.Equal(opened.Plaintext), nil
}

func post(ctx context.Context, client *http.Client, url, body string, want int, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != want {
		return fmt.Errorf("POST %s: status %d: %s", url, resp.StatusCode, bytes.TrimSpace(data))
	}
	return codec.Unmarshal(data, out)
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := (len(sorted)*p + 99) / 100
	if idx < 1 {
		idx = 1
	}
	return sorted[idx-1]
}

// Regression compares a run against a baseline.
type Regression struct {
	Baseline              *Results
	Current               *Results
	P95ChangePercent      float64
	ThroughputChange      float64
	SignificantRegression bool
}

// SaveBaseline writes results to path.
func SaveBaseline(path string, results *Results) error {
	data, err := codec.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to encode baseline: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create baseline directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadBaseline reads results written by SaveBaseline.
func LoadBaseline(path string) (*Results, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Results
	if err := codec.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode baseline %s: %w", path, err)
	}
	return &r, nil
}

// AnalyzeRegression flags a regression when p95 latency grows or throughput
// drops by more than threshold percent.
func AnalyzeRegression(current *Results, baselineFile string, threshold float64) (*Regression, error) {
	baseline, err := LoadBaseline(baselineFile)
	if err != nil {
		return nil, err
	}

	reg := &Regression{Baseline: baseline, Current: current}
	if baseline.P95 > 0 {
		reg.P95ChangePercent = (float64(current.P95) - float64(baseline.P95)) / float64(baseline.P95) * 100
	}
	if baseline.Throughput > 0 {
		reg.ThroughputChange = (current.Throughput - baseline.Throughput) / baseline.Throughput * 100
	}
	reg.SignificantRegression = reg.P95ChangePercent > threshold || reg.ThroughputChange < -threshold
	return reg, nil
}

// PrintResults writes a human-readable summary to w.
func PrintResults(w io.Writer, r *Results) {
	fmt.Fprintf(w, "Iterations: %d (errors %d, mismatches %d)\n", r.Iterations, r.Errors, r.Mismatches)
	fmt.Fprintf(w, "Throughput: %.1f/s over %v\n", r.Throughput, r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Latency p50=%v p95=%v p99=%v\n", r.P50, r.P95, r.P99)
}

// PrintRegression writes the comparison to w.
func PrintRegression(w io.Writer, reg *Regression) {
	fmt.Fprintf(w, "p95: %v -> %v (%+.1f%%)\n", reg.Baseline.P95, reg.Current.P95, reg.P95ChangePercent)
	fmt.Fprintf(w, "throughput: %.1f/s -> %.1f/s (%+.1f%%)\n", reg.Baseline.Throughput, reg.Current.Throughput, reg.ThroughputChange)
	if reg.SignificantRegression {
		fmt.Fprintln(w, "REGRESSION")
	}
}
