// Package batch assesses a population of customers in parallel and runs
// network detection over the same data. One customer's failure never aborts
// the run.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"

	"github.com/opensource-finance/finguard/internal/alerting"
	"github.com/opensource-finance/finguard/internal/domain"
	"github.com/opensource-finance/finguard/internal/ingest"
	"github.com/opensource-finance/finguard/internal/metrics"
	"github.com/opensource-finance/finguard/internal/network"
	"github.com/opensource-finance/finguard/internal/report"
	"github.com/opensource-finance/finguard/internal/txset"
	"golang.org/x/sync/errgroup"
)

// Input is one batch of customers, their transactions and optional model
// signals keyed by customer ID.
type Input struct {
	Customers    []*domain.Customer                `json:"customers"`
	Transactions []*domain.Transaction             `json:"transactions"`
	Signals      map[string]*domain.ExternalSignal `json:"signals,omitempty"`
}

// Failure is a customer the run could not assess.
type Failure struct {
	CustomerID string `json:"customerId"`
	Error      string `json:"error"`
}

// Result collects everything a run produced. Reports and failures are
// sorted by customer ID.
type Result struct {
	Reports    []*domain.RiskReport   `json:"reports"`
	Networks   []*domain.SmurfNetwork `json:"networks"`
	Alerts     []*domain.Alert        `json:"alerts,omitempty"`
	Rejections []ingest.Rejection     `json:"rejections,omitempty"`
	Failures   []Failure              `json:"failures,omitempty"`
	Elapsed    time.Duration          `json:"elapsed"`
}

type assessFunc func(ctx context.Context, c *domain.Customer, txs []*domain.Transaction, sig *domain.ExternalSignal) (*domain.RiskReport, error)

// Runner runs batches.
type Runner struct {
	assess   assessFunc
	detector *network.Detector
	alerter  *alerting.Alerter
	metrics  *metrics.Metrics
	workers  int

	// SkipNetworks disables network detection.
	SkipNetworks bool
}

// NewRunner creates a runner. alerter and m may be nil.
func NewRunner(assembler *report.Assembler, detector *network.Detector, alerter *alerting.Alerter, m *metrics.Metrics, workers int) *Runner {
	if workers <= 0 {
		workers = 1
	}
	return &Runner{
		assess:   assembler.Generate,
		detector: detector,
		alerter:  alerter,
		metrics:  m,
		workers:  workers,
	}
}

// Run validates the input, assesses every valid customer and detects
// networks. It only returns an error when ctx is done.
func (r *Runner) Run(ctx context.Context, in Input) (*Result, error) {
	start := time.Now()

	valid := ingest.Validate(in.Customers, in.Transactions)
	res := &Result{Rejections: valid.Rejections}
	for _, rej := range valid.Rejections {
		r.metrics.Rejected(rej.Kind)
	}

	byCustomer := txset.GroupByCustomer(valid.Transactions)
	reports := make([]*domain.RiskReport, len(valid.Customers))
	failures := make([]*Failure, len(valid.Customers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, c := range valid.Customers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rpt, err := r.assessOne(gctx, c, byCustomer[c.ID], in.Signals[c.ID])
			if err != nil {
				slog.Warn("customer assessment failed", "customer_id", c.ID, "error", err)
				r.metrics.BatchFailure()
				failures[i] = &Failure{CustomerID: c.ID, Error: err.Error()}
				return nil
			}
			reports[i] = rpt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range valid.Customers {
		if reports[i] != nil {
			res.Reports = append(res.Reports, reports[i])
		}
		if failures[i] != nil {
			res.Failures = append(res.Failures, *failures[i])
		}
	}
	sort.Slice(res.Reports, func(i, j int) bool { return res.Reports[i].CustomerID < res.Reports[j].CustomerID })
	sort.Slice(res.Failures, func(i, j int) bool { return res.Failures[i].CustomerID < res.Failures[j].CustomerID })

	if !r.SkipNetworks && r.detector != nil {
		networks, err := r.detector.Detect(ctx, valid.Customers, valid.Transactions)
		if err != nil {
			return nil, fmt.Errorf("network detection failed: %w", err)
		}
		res.Networks = networks
		r.metrics.ObserveNetworks(len(networks))
	}
	if res.Networks == nil {
		res.Networks = []*domain.SmurfNetwork{}
	}

	r.raiseAlerts(res)

	res.Elapsed = time.Since(start)
	slog.Info("batch run complete",
		"customers", len(valid.Customers),
		"transactions", len(valid.Transactions),
		"reports", len(res.Reports),
		"networks", len(res.Networks),
		"alerts", len(res.Alerts),
		"rejections", len(res.Rejections),
		"failures", len(res.Failures),
		"elapsed_ms", res.Elapsed.Milliseconds(),
	)
	return res, nil
}

// assessOne isolates a single customer, turning a panic into an error.
func (r *Runner) assessOne(ctx context.Context, c *domain.Customer, txs []*domain.Transaction, sig *domain.ExternalSignal) (rpt *domain.RiskReport, err error) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("panic during assessment", "customer_id", c.ID, "panic", p, "stack", string(debug.Stack()))
			rpt, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()

	start := time.Now()
	rpt, err = r.assess(ctx, c, txset.SortByTime(txs), sig)
	if err == nil {
		r.metrics.ObserveReport(rpt, time.Since(start))
	}
	return rpt, err
}

func (r *Runner) raiseAlerts(res *Result) {
	if r.alerter == nil {
		return
	}
	for _, rpt := range res.Reports {
		alert, err := r.alerter.FromReport(rpt)
		if err != nil {
			slog.Warn("alert policy failed", "customer_id", rpt.CustomerID, "error", err)
			continue
		}
		if alert != nil {
			res.Alerts = append(res.Alerts, alert)
			r.metrics.AlertCreated(alert.AlertType)
		}
	}
	for _, n := range res.Networks {
		alert := r.alerter.FromNetwork(n)
		res.Alerts = append(res.Alerts, alert)
		r.metrics.AlertCreated(alert.AlertType)
	}
}
