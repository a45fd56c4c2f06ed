// Package report assembles the per-customer RiskReport from the scorer, the
// pattern detectors and an optional external model signal.
package report

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/finguard/internal/domain"
	"github.com/opensource-finance/finguard/internal/scoring"
	"github.com/opensource-finance/finguard/internal/txset"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// EngineVersion is stamped into report metadata.
const EngineVersion = "finguard-1.0"

// ErrMissingCustomer is returned when Generate is called without a customer.
var ErrMissingCustomer = errors.New("customer is required")

var tracer = otel.Tracer("finguard-report")

// Assembler produces risk reports. It is safe for concurrent use.
type Assembler struct {
	scorer     *scoring.Scorer
	thresholds domain.RiskThresholds

	// Now stamps the assessment date.
	Now func() time.Time
}

// NewAssembler creates an assembler for the given configuration and zone.
func NewAssembler(cfg domain.DetectionConfig, loc *time.Location) *Assembler {
	a := &Assembler{
		scorer:     scoring.NewScorer(cfg, loc),
		thresholds: cfg.RiskThresholds,
		Now:        time.Now,
	}
	// Account age and assessment date share one clock.
	a.scorer.Now = func() time.Time { return a.now() }
	return a
}

// Generate assesses one customer. The deterministic score never reads
// signal; its anomalies and probability are only attached to the report.
func (a *Assembler) Generate(ctx context.Context, customer *domain.Customer, txs []*domain.Transaction, signal *domain.ExternalSignal) (*domain.RiskReport, error) {
	if customer == nil {
		return nil, ErrMissingCustomer
	}

	start := time.Now()
	_, span := tracer.Start(ctx, "report.Generate")
	defer span.End()

	result := a.scorer.Score(customer, txs)
	scoringMs := time.Since(start).Milliseconds()

	r := &domain.RiskReport{
		ID:                  uuid.New().String(),
		CustomerID:          customer.ID,
		RiskScore:           result.Score,
		RiskLevel:           a.thresholds.Level(result.Score),
		RiskFactors:         result.Factors,
		Factors:             result.Details,
		Patterns:            a.scorer.Detectors().Evaluate(txs),
		Anomalies:           []string{},
		TotalTransactions:   len(txs),
		FlaggedTransactions: countFlagged(txs),
		TotalVolume:         txset.TotalVolume(txs),
		AssessmentDate:      a.now().UTC(),
	}
	if r.RiskFactors == nil {
		r.RiskFactors = []string{}
	}

	if signal != nil {
		r.Anomalies = MergeAnomalies(txs, signal.AnomalousTransactionIDs)
		if p := signal.Probability; p != nil {
			prob := *p
			r.MLProbability = &prob
		}
	}

	traceID := ""
	if sc := span.SpanContext(); sc.TraceID().IsValid() {
		traceID = sc.TraceID().String()
	}
	r.Metadata = domain.ReportMetadata{
		TraceID:       traceID,
		ScoringMs:     scoringMs,
		TotalMs:       time.Since(start).Milliseconds(),
		EngineVersion: EngineVersion,
	}

	span.SetAttributes(
		attribute.String("customer.id", customer.ID),
		attribute.Float64("risk.score", r.RiskScore),
		attribute.String("risk.level", string(r.RiskLevel)),
		attribute.Int("transactions", len(txs)),
	)
	return r, nil
}

// MergeAnomalies keeps the flagged IDs that belong to txs, deduplicated and
// in the order the model reported them.
func MergeAnomalies(txs []*domain.Transaction, flagged []string) []string {
	known := make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		known[tx.ID] = struct{}{}
	}

	out := []string{}
	seen := make(map[string]struct{}, len(flagged))
	for _, id := range flagged {
		if _, ok := known[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func countFlagged(txs []*domain.Transaction) int {
	n := 0
	for _, tx := range txs {
		if tx.IsSuspicious {
			n++
		}
	}
	return n
}

func (a *Assembler) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}
