// Package scoring computes the deterministic customer risk score.
package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/opensource-finance/finguard/internal/domain"
	"github.com/opensource-finance/finguard/internal/patterns"
	"github.com/opensource-finance/finguard/internal/txset"
)

// Result is a bounded score and the factors that contributed to it, in
// rule order.
type Result struct {
	Score   float64
	Factors []string
	Details []domain.RiskFactor
}

// Scorer aggregates a customer profile and pattern detector outputs into a
// score in [0, MaxScore]. It holds no mutable state and is safe for
// concurrent use.
type Scorer struct {
	cfg       domain.DetectionConfig
	detectors *patterns.Detectors

	// Now supplies the reference time for account age.
	Now func() time.Time
}

// NewScorer creates a scorer for the given configuration and zone.
func NewScorer(cfg domain.DetectionConfig, loc *time.Location) *Scorer {
	return &Scorer{
		cfg:       cfg,
		detectors: patterns.New(cfg, loc),
		Now:       time.Now,
	}
}

// Detectors returns the pattern detectors the scorer runs.
func (s *Scorer) Detectors() *patterns.Detectors {
	return s.detectors
}

// Score computes the customer's risk score. Transaction rules cannot fire
// on an empty transaction set; profile rules always apply.
func (s *Scorer) Score(customer *domain.Customer, txs []*domain.Transaction) Result {
	sc := s.cfg.Scoring
	var r Result

	add := func(name string, value, weight float64, factor string) {
		r.Score += weight
		r.Factors = append(r.Factors, factor)
		r.Details = append(r.Details, domain.RiskFactor{Name: name, Value: value, Weight: weight})
	}

	if len(txs) > 0 {
		if customer.DeclaredIncome > 0 {
			ratio := txset.TotalVolume(txs) / customer.DeclaredIncome
			if ratio > sc.IncomeRatioThreshold {
				add("income_mismatch", ratio, math.Min(sc.IncomeMismatchCap, ratio*sc.IncomeRatioMultiplier),
					fmt.Sprintf("Income mismatch: %.2fx declared income", ratio))
			}
		}

		if s.detectors.Structuring(txs) {
			add(domain.PatternStructuring, 1, sc.StructuringWeight, "Structuring pattern detected")
		}
	}

	if n := customer.LinkedAccounts; n != nil && *n > s.cfg.MaxLinkedAccounts {
		add("linked_accounts", float64(*n), sc.LinkedAccountsWeight,
			fmt.Sprintf("Multiple linked accounts: %d", *n))
	}

	if len(txs) > 0 {
		if n := txset.CountType(txs, domain.TxInternationalTransfer); n > sc.InternationalCountThreshold {
			add("international_transfers", float64(n), sc.InternationalWeight,
				fmt.Sprintf("High international transactions: %d", n))
		}

		if s.detectors.UnusualTiming(txs) {
			add(domain.PatternUnusualTiming, 1, sc.UnusualTimingWeight, "Unusual transaction timing")
		}

		if c := patterns.NetworkComplexity(txs); c > s.cfg.NetworkComplexityThreshold {
			add("network_complexity", c, sc.NetworkComplexityWeight,
				fmt.Sprintf("High network complexity: %.2f", c))
		}

		if n := txset.CountAbove(txs, s.cfg.SuspiciousAmountThreshold); n > sc.LargeTransactionCountThreshold {
			add("large_transactions", float64(n), sc.LargeTransactionWeight,
				fmt.Sprintf("Frequent large transactions: %d", n))
		}

		if s.detectors.RapidSuccession(txs) {
			add(domain.PatternRapidSuccession, 1, sc.RapidSuccessionWeight, "Rapid succession transactions")
		}
	}

	switch customer.KYCStatus {
	case domain.KYCRejected:
		add("kyc_status", 1, sc.KYCRejectedWeight, "KYC rejected")
	case domain.KYCPending:
		add("kyc_status", 0.5, sc.KYCPendingWeight, "KYC pending")
	}

	if days := customer.AccountAgeDays(s.now()); days < sc.NewAccountDays {
		add("account_age", float64(days), sc.NewAccountWeight,
			fmt.Sprintf("New account (< %d days)", sc.NewAccountDays))
	}

	r.Score = clamp(r.Score, 0, sc.MaxScore)
	return r
}

func (s *Scorer) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func clamp(v, lo, hi float64) float64 {
	if hi <= 0 {
		hi = 100
	}
	return math.Max(lo, math.Min(v, hi))
}
