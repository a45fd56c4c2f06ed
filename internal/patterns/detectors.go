package patterns

import (
	"time"

	"github.com/opensource-finance/finguard/internal/domain"
)

// Detectors binds the detectors to one configuration and time zone.
type Detectors struct {
	cfg domain.DetectionConfig
	loc *time.Location
}

// New creates a detector set. A nil location uses time.Local.
func New(cfg domain.DetectionConfig, loc *time.Location) *Detectors {
	if loc == nil {
		loc = time.Local
	}
	return &Detectors{cfg: cfg, loc: loc}
}

// Location returns the zone used for calendar days and hours.
func (d *Detectors) Location() *time.Location { return d.loc }

// Structuring runs DetectStructuring at the reporting threshold.
func (d *Detectors) Structuring(txs []*domain.Transaction) bool {
	return DetectStructuring(txs, d.cfg.ReportingThreshold, d.loc)
}

// NetworkStructuring runs DetectNetworkStructuring at the reporting threshold.
func (d *Detectors) NetworkStructuring(txs []*domain.Transaction) bool {
	return DetectNetworkStructuring(txs, d.cfg.ReportingThreshold, d.loc)
}

// UnusualTiming runs DetectUnusualTiming with the configured ratios.
func (d *Detectors) UnusualTiming(txs []*domain.Transaction) bool {
	return DetectUnusualTiming(txs, d.cfg.Timing, d.loc)
}

// RapidSuccession runs DetectRapidSuccession with the configured window.
func (d *Detectors) RapidSuccession(txs []*domain.Transaction) bool {
	return DetectRapidSuccession(txs, d.cfg.Rapid)
}

// HighVelocity runs DetectHighVelocity at the max daily transactions limit.
func (d *Detectors) HighVelocity(txs []*domain.Transaction) bool {
	return DetectHighVelocity(txs, d.cfg.MaxDailyTransactions, d.loc)
}

// Evaluate runs every single-customer detector and returns pattern name to
// detected flag.
func (d *Detectors) Evaluate(txs []*domain.Transaction) map[string]bool {
	return map[string]bool{
		domain.PatternStructuring:       d.Structuring(txs),
		domain.PatternUnusualTiming:     d.UnusualTiming(txs),
		domain.PatternRapidSuccession:   d.RapidSuccession(txs),
		domain.PatternHighDailyVelocity: d.HighVelocity(txs),
	}
}
