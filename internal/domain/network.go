package domain

import "time"

// SmurfNetwork is a cluster of accounts that plausibly coordinates small
// transactions toward shared beneficiaries. It is a candidate for human
// review, not a verdict.
type SmurfNetwork struct {
	ID                  string    `json:"id"`
	Accounts            []string  `json:"accounts"`
	CommonBeneficiaries []string  `json:"commonBeneficiaries"`
	TotalVolume         float64   `json:"totalVolume"`
	TransactionCount    int       `json:"transactionCount"`
	RiskScore           float64   `json:"riskScore"`
	HasStructuring      bool      `json:"hasStructuring"`
	DetectedAt          time.Time `json:"detectedAt"`
}
