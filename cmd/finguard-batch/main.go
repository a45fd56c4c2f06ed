// Batch tool for scoring a FinGuard dataset offline.
//
// Usage:
//
//	finguard-batch -input dataset.json [-output result.json] [-workers 8]
//
// This tool:
//  1. Reads a JSON dataset of customers, transactions and optional signals
//  2. Assesses every customer in parallel and detects smurfing networks
//  3. Writes the full result as JSON
//  4. Compares flagged customers against upstream suspicious labels
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/finguard/internal/batch"
	"github.com/opensource-finance/finguard/internal/config"
	"github.com/opensource-finance/finguard/internal/domain"
	"github.com/opensource-finance/finguard/internal/metrics"
	"github.com/opensource-finance/finguard/internal/service"
	"github.com/opensource-finance/finguard/internal/telemetry"
)

// Labels tracks flagged customers against upstream suspicious labels.
type Labels struct {
	TruePositives  int
	FalsePositives int
	TrueNegatives  int
	FalseNegatives int
}

func main() {
	inputPath := flag.String("input", "", "Path to JSON dataset file")
	outputPath := flag.String("output", "", "Path to write JSON result (default stdout)")
	configPath := flag.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "Path to YAML configuration file")
	workers := flag.Int("workers", 0, "Number of concurrent workers (0 = configured value)")
	skipNetworks := flag.Bool("skip-networks", false, "Skip smurfing network detection")
	summary := flag.Bool("summary", true, "Print a summary to stderr")
	logLevel := flag.String("log-level", "warn", "Log level for stderr (debug, info, warn, error)")
	flag.Parse()

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: finguard-batch -input dataset.json [-output result.json]")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("failed to load configuration", err)
	}

	logCfg := cfg.Logging
	logCfg.Level = *logLevel
	slog.SetDefault(telemetry.NewLogger(logCfg, os.Stderr, false))
	if *workers > 0 {
		cfg.Workers = *workers
	}

	in, err := readInput(*inputPath)
	if err != nil {
		fatal("failed to read dataset", err)
	}

	svc, err := service.New(cfg, service.Options{})
	if err != nil {
		fatal("failed to initialize detection service", err)
	}

	runner := batch.NewRunner(svc.Assembler(), svc.Detector(), svc.Alerter(), metrics.New(), cfg.Workers)
	runner.SkipNetworks = *skipNetworks

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := runner.Run(ctx, *in)
	if err != nil {
		fatal("batch run failed", err)
	}

	if err := writeResult(*outputPath, res); err != nil {
		fatal("failed to write result", err)
	}

	if *summary {
		printSummary(in, res, cfg.Detection.RiskThresholds.High)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	fmt.Fprintf(os.Stderr, "ERROR: %s: %v\n", msg, err)
	os.Exit(1)
}

func readInput(path string) (*batch.Input, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var in batch.Input
	if err := json.NewDecoder(f).Decode(&in); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &in, nil
}

func writeResult(path string, res *batch.Result) error {
	out := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// compareLabels treats a customer as labelled when any of their
// transactions is marked suspicious, and as flagged when their score
// reaches highThreshold.
func compareLabels(in *batch.Input, res *batch.Result, highThreshold float64) Labels {
	labelled := make(map[string]bool)
	for _, tx := range in.Transactions {
		if tx != nil && tx.IsSuspicious {
			labelled[tx.CustomerID] = true
		}
	}

	var l Labels
	for _, rpt := range res.Reports {
		flagged := rpt.RiskScore >= highThreshold
		switch {
		case flagged && labelled[rpt.CustomerID]:
			l.TruePositives++
		case flagged:
			l.FalsePositives++
		case labelled[rpt.CustomerID]:
			l.FalseNegatives++
		default:
			l.TrueNegatives++
		}
	}
	return l
}

func printSummary(in *batch.Input, res *batch.Result, highThreshold float64) {
	levels := make(map[domain.RiskLevel]int)
	for _, rpt := range res.Reports {
		levels[rpt.RiskLevel]++
	}

	w := os.Stderr
	fmt.Fprintln(w)
	fmt.Fprintln(w, "BATCH RESULTS")
	fmt.Fprintf(w, "   Customers:     %d\n", len(in.Customers))
	fmt.Fprintf(w, "   Transactions:  %d\n", len(in.Transactions))
	fmt.Fprintf(w, "   Reports:       %d\n", len(res.Reports))
	fmt.Fprintf(w, "   Networks:      %d\n", len(res.Networks))
	fmt.Fprintf(w, "   Alerts:        %d\n", len(res.Alerts))
	fmt.Fprintf(w, "   Rejections:    %d\n", len(res.Rejections))
	fmt.Fprintf(w, "   Failures:      %d\n", len(res.Failures))

	fmt.Fprintln(w, "\nRISK LEVELS")
	for _, lvl := range []domain.RiskLevel{domain.RiskCritical, domain.RiskHigh, domain.RiskMedium, domain.RiskLow} {
		fmt.Fprintf(w, "   %-9s %d\n", lvl, levels[lvl])
	}

	l := compareLabels(in, res, highThreshold)
	if l.TruePositives+l.FalseNegatives > 0 {
		precision := 0.0
		if l.TruePositives+l.FalsePositives > 0 {
			precision = float64(l.TruePositives) / float64(l.TruePositives+l.FalsePositives)
		}
		recall := float64(l.TruePositives) / float64(l.TruePositives+l.FalseNegatives)

		fmt.Fprintln(w, "\nLABEL COMPARISON")
		fmt.Fprintf(w, "   TP %d  FP %d  TN %d  FN %d\n", l.TruePositives, l.FalsePositives, l.TrueNegatives, l.FalseNegatives)
		fmt.Fprintf(w, "   Precision:  %.4f\n", precision)
		fmt.Fprintf(w, "   Recall:     %.4f\n", recall)
	}

	fmt.Fprintf(w, "\n   Elapsed:       %v\n\n", res.Elapsed.Round(time.Millisecond))
}
