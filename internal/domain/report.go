package domain

import (
	"time"
)

// RiskLevel is a coarse bucket derived from a numeric risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Pattern names used as keys of RiskReport.Patterns.
const (
	PatternStructuring       = "structuring"
	PatternUnusualTiming     = "unusual_timing"
	PatternRapidSuccession   = "rapid_succession"
	PatternHighDailyVelocity = "high_daily_velocity"
)

// RiskFactor explains one contribution to a risk score. It is attached to a
// report for humans and never read back by the scorer.
type RiskFactor struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Weight float64 `json:"weight"`
}

// ExternalSignal is the optional, non-authoritative output of a statistical
// model. It is merged into a report but never changes the score.
type ExternalSignal struct {
	// Probability is the model's probability of risk in [0,1].
	Probability *float64 `json:"probability,omitempty"`

	// AnomalousTransactionIDs lists transactions the model flagged.
	AnomalousTransactionIDs []string `json:"anomalousTransactionIds,omitempty"`
}

// RiskReport is the assessment of a single customer.
type RiskReport struct {
	ID         string `json:"id"`
	CustomerID string `json:"customerId"`

	RiskScore float64   `json:"riskScore"`
	RiskLevel RiskLevel `json:"riskLevel"`

	// RiskFactors are human-readable descriptions in scoring order.
	RiskFactors []string     `json:"riskFactors"`
	Factors     []RiskFactor `json:"factors,omitempty"`

	Patterns  map[string]bool `json:"patterns"`
	Anomalies []string        `json:"anomalies"`

	MLProbability *float64 `json:"mlProbability,omitempty"`

	TotalTransactions int `json:"totalTransactions"`
	// FlaggedTransactions counts transactions already marked suspicious
	// upstream.
	FlaggedTransactions int       `json:"flaggedTransactions"`
	TotalVolume         float64   `json:"totalVolume"`
	AssessmentDate      time.Time `json:"assessmentDate"`

	Metadata ReportMetadata `json:"metadata"`
}

// ReportMetadata contains processing information.
type ReportMetadata struct {
	TraceID       string `json:"traceId,omitempty"`
	ScoringMs     int64  `json:"scoringMs"`
	TotalMs       int64  `json:"totalMs"`
	EngineVersion string `json:"engineVersion"`
}

// DetectedPatterns returns the names of detected patterns in a stable order.
func (r *RiskReport) DetectedPatterns() []string {
	var names []string
	for _, name := range []string{PatternStructuring, PatternUnusualTiming, PatternRapidSuccession, PatternHighDailyVelocity} {
		if r.Patterns[name] {
			names = append(names, name)
		}
	}
	return names
}
