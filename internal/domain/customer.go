package domain

import (
	"math"
	"time"
)

// KYCStatus is the know-your-customer verification state of a customer.
type KYCStatus string

const (
	KYCVerified KYCStatus = "VERIFIED"
	KYCPending  KYCStatus = "PENDING"
	KYCRejected KYCStatus = "REJECTED"
)

// Valid reports whether s is one of the known KYC states.
func (s KYCStatus) Valid() bool {
	switch s {
	case KYCVerified, KYCPending, KYCRejected:
		return true
	}
	return false
}

// Customer is a read-only snapshot of a customer profile.
// No engine component mutates a Customer.
type Customer struct {
	ID                 string    `json:"customerId"`
	Name               string    `json:"name,omitempty"`
	DeclaredIncome     float64   `json:"declaredIncome"`
	KYCStatus          KYCStatus `json:"kycStatus"`
	AccountOpeningDate time.Time `json:"accountOpeningDate"`

	// LinkedAccounts is nil when the ingestion source does not populate it.
	LinkedAccounts *int `json:"linkedAccounts,omitempty"`

	// RiskScore is the last persisted score, owned by the storage layer.
	RiskScore float64   `json:"riskScore,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// AccountAgeDays returns the number of whole days between account opening
// and now, rounded down.
func (c *Customer) AccountAgeDays(now time.Time) int {
	return int(math.Floor(now.Sub(c.AccountOpeningDate).Hours() / 24))
}
