// Package patterns holds the stateless laundering-pattern detectors.
//
// Every detector is a pure function of its inputs. Degenerate input (too few
// transactions to say anything) yields false or zero, never an error.
package patterns

import (
	"time"

	"github.com/opensource-finance/finguard/internal/domain"
	"github.com/opensource-finance/finguard/internal/txset"
	"github.com/shopspring/decimal"
)

// minStructuringTxs is the repetition needed before splitting is suspicious.
const minStructuringTxs = 3

// minNetworkStructuringDays is how often structuring must recur inside a network.
const minNetworkStructuringDays = 2

// DetectStructuring reports whether any calendar day holds at least three
// sub-threshold transactions that together exceed the threshold.
func DetectStructuring(txs []*domain.Transaction, threshold float64, loc *time.Location) bool {
	if len(txs) < minStructuringTxs {
		return false
	}
	return structuringDays(txs, threshold, loc) > 0
}

// DetectNetworkStructuring applies the per-day rule to a pooled multi-customer
// set and requires it to hold on at least two distinct days.
func DetectNetworkStructuring(txs []*domain.Transaction, threshold float64, loc *time.Location) bool {
	if len(txs) < minStructuringTxs*minNetworkStructuringDays {
		return false
	}
	return structuringDays(txs, threshold, loc) >= minNetworkStructuringDays
}

func structuringDays(txs []*domain.Transaction, threshold float64, loc *time.Location) int {
	limit := decimal.NewFromFloat(threshold)
	days := 0
	for _, group := range txset.GroupByDay(txs, loc) {
		if len(group) < minStructuringTxs {
			continue
		}
		below := txset.Below(group, threshold)
		if len(below) >= minStructuringTxs && txset.Sum(below).GreaterThan(limit) {
			days++
		}
	}
	return days
}

// DetectUnusualTiming flags a customer whose activity is concentrated at
// night or on weekends.
func DetectUnusualTiming(txs []*domain.Transaction, cfg domain.TimingConfig, loc *time.Location) bool {
	if len(txs) == 0 || len(txs) < cfg.MinTransactions {
		return false
	}
	if loc == nil {
		loc = time.Local
	}

	night, weekend := 0, 0
	for _, tx := range txs {
		ts := tx.Timestamp.In(loc)
		if isNight(ts.Hour(), cfg.NightStartHour, cfg.NightEndHour) {
			night++
		}
		if wd := ts.Weekday(); wd == time.Saturday || wd == time.Sunday {
			weekend++
		}
	}

	n := float64(len(txs))
	return float64(night)/n > cfg.NightRatio || float64(weekend)/n > cfg.WeekendRatio
}

// isNight treats both bounds as inclusive; a start after the end wraps
// around midnight.
func isNight(hour, start, end int) bool {
	if start <= end {
		return hour >= start && hour <= end
	}
	return hour >= start || hour <= end
}

// DetectRapidSuccession slides a window of cfg.Count chronologically
// adjacent transactions and flags any window spanning less than cfg.Window.
func DetectRapidSuccession(txs []*domain.Transaction, cfg domain.RapidConfig) bool {
	count := cfg.Count
	if count < 2 {
		count = 2
	}
	if len(txs) < count {
		return false
	}

	sorted := txset.SortByTime(txs)
	for i := 0; i+count-1 < len(sorted); i++ {
		span := sorted[i+count-1].Timestamp.Sub(sorted[i].Timestamp)
		if span < cfg.Window {
			return true
		}
	}
	return false
}

// NetworkComplexity is a diversity heuristic over one customer's
// counterparts, transaction types and locations, clamped to [0,1].
// Empty beneficiaries are not counted.
func NetworkComplexity(txs []*domain.Transaction) float64 {
	if len(txs) < 2 {
		return 0
	}

	beneficiaries := make(map[string]struct{})
	types := make(map[domain.TransactionType]struct{})
	locations := make(map[string]struct{})
	for _, tx := range txs {
		if tx.Beneficiary != "" {
			beneficiaries[tx.Beneficiary] = struct{}{}
		}
		types[tx.Type] = struct{}{}
		locations[tx.Location] = struct{}{}
	}

	score := (float64(len(beneficiaries))*0.4 + float64(len(types))*0.3 + float64(len(locations))*0.3) / 10
	return clampUnit(score)
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
