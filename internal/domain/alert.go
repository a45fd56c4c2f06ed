package domain

import (
	"time"
)

// AlertStatus is the investigation state of an alert.
type AlertStatus string

const (
	AlertOpen          AlertStatus = "OPEN"
	AlertInvestigating AlertStatus = "INVESTIGATING"
	AlertResolved      AlertStatus = "RESOLVED"
)

// Valid reports whether s is a known alert status.
func (s AlertStatus) Valid() bool {
	switch s {
	case AlertOpen, AlertInvestigating, AlertResolved:
		return true
	}
	return false
}

// Alert types.
const (
	AlertTypeHighRiskCustomer = "HIGH_RISK_CUSTOMER"
	AlertTypeSmurfingNetwork  = "SMURFING_NETWORK"
)

// Alert is a persisted record asking an analyst to review a customer or a
// network.
type Alert struct {
	ID          string    `json:"id"`
	CustomerID  string    `json:"customerId,omitempty"`
	NetworkID   string    `json:"networkId,omitempty"`
	ReportID    string    `json:"reportId,omitempty"`
	AlertType   string    `json:"alertType"`
	Severity    RiskLevel `json:"severity"`
	Description string    `json:"description"`
	RiskScore   float64   `json:"riskScore"`

	// TriggeredRules are the risk factors or findings behind the alert.
	TriggeredRules []string `json:"triggeredRules,omitempty"`

	Status     AlertStatus `json:"status"`
	AssignedTo string      `json:"assignedTo,omitempty"`
	Notes      string      `json:"notes,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
	ResolvedAt *time.Time  `json:"resolvedAt,omitempty"`
}
