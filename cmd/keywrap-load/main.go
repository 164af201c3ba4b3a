// Command keywrap-load runs create/decrypt load against keywrapd and checks
// the result against a stored baseline.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kenneth/base64-type/internal/loadtest"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		targetURL      = flag.String("target-url", "http://localhost:8080", "keywrapd URL")
		duration       = flag.Duration("duration", 30*time.Second, "Test duration")
		workers        = flag.Int("workers", 5, "Number of worker goroutines")
		qps            = flag.Int("qps", 25, "Iterations per second per worker")
		baselineFile   = flag.String("baseline", "testdata/baselines/keywrap_load_baseline.json", "Baseline file")
		threshold      = flag.Float64("threshold", 10.0, "Regression threshold percentage")
		updateBaseline = flag.Bool("update-baseline", false, "Write the results as the new baseline")
		verbose        = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Target: %s, workers: %d, qps/worker: %d, duration: %v\n", *targetURL, *workers, *qps, *duration)

	results, err := loadtest.Run(ctx, loadtest.Config{
		TargetURL: *targetURL,
		Workers:   *workers,
		Duration:  *duration,
		QPS:       *qps,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Load test failed")
	}
	loadtest.PrintResults(os.Stdout, results)

	if results.Mismatches > 0 {
		logger.WithField("mismatches", results.Mismatches).Fatal("Decrypted keys did not match created keys")
	}

	if *updateBaseline {
		if err := loadtest.SaveBaseline(*baselineFile, results); err != nil {
			logger.WithError(err).Fatal("Failed to write baseline")
		}
		fmt.Println("Baseline updated")
		return
	}

	reg, err := loadtest.AnalyzeRegression(results, *baselineFile, *threshold)
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Println("No baseline found; run with -update-baseline to create one")
		return
	}
	if err != nil {
		logger.WithError(err).Fatal("Regression analysis failed")
	}
	loadtest.PrintRegression(os.Stdout, reg)
	if reg.SignificantRegression {
		os.Exit(1)
	}
}
