package network

import (
	"math"
	"time"

	"github.com/opensource-finance/finguard/internal/domain"
	"github.com/opensource-finance/finguard/internal/patterns"
	"github.com/opensource-finance/finguard/internal/txset"
)

// RiskScore scores a component's pooled transactions by volume tier, count
// tier and structuring, clamped to [0,100].
//
// The structuring addend uses the single-day rule, not the two-day network
// rule that gates candidates. One structuring day earns the weight even when
// the component does not qualify as network structuring.
func RiskScore(txs []*domain.Transaction, cfg domain.DetectionConfig, loc *time.Location) float64 {
	if len(txs) == 0 {
		return 0
	}
	n := cfg.Network
	score := 0.0

	volume := txset.TotalVolume(txs)
	switch {
	case volume > n.VolumeHigh:
		score += n.VolumeHighWeight
	case volume > n.VolumeMedium:
		score += n.VolumeMediumWeight
	case volume > n.VolumeLow:
		score += n.VolumeLowWeight
	}

	switch count := len(txs); {
	case count > n.CountHigh:
		score += n.CountHighWeight
	case count > n.CountMedium:
		score += n.CountMediumWeight
	}

	if patterns.DetectStructuring(txs, cfg.ReportingThreshold, loc) {
		score += n.StructuringWeight
	}

	return math.Max(0, math.Min(score, 100))
}
