package domain

import (
	"time"
)

// UnknownBeneficiary is the sentinel beneficiary name meaning "no identifiable
// counterpart". It is never treated as a real shared beneficiary.
const UnknownBeneficiary = "UNKNOWN"

// TransactionType classifies a transaction by payment rail.
type TransactionType string

const (
	TxCashDeposit           TransactionType = "CASH_DEPOSIT"
	TxCashWithdrawal        TransactionType = "CASH_WITHDRAWAL"
	TxNEFT                  TransactionType = "NEFT"
	TxRTGS                  TransactionType = "RTGS"
	TxUPI                   TransactionType = "UPI"
	TxIMPS                  TransactionType = "IMPS"
	TxInternationalTransfer TransactionType = "INTERNATIONAL_TRANSFER"
	TxCheque                TransactionType = "CHEQUE"
)

// Transaction is a single customer transaction as supplied by ingestion.
type Transaction struct {
	// Core identifiers
	ID         string `json:"transactionId"`
	CustomerID string `json:"customerId"`

	// Financial details
	Amount   float64         `json:"amount"`
	Currency string          `json:"currency,omitempty"`
	Type     TransactionType `json:"transactionType"`

	// Temporal
	Timestamp time.Time `json:"timestamp"`

	// Counterpart. An empty Beneficiary means none was recorded.
	Beneficiary     string `json:"beneficiary,omitempty"`
	BeneficiaryType string `json:"beneficiaryType,omitempty"`
	Location        string `json:"location,omitempty"`
	Status          string `json:"status,omitempty"`

	// IsSuspicious is set upstream by ingestion; the engine reads it but
	// never recomputes it.
	IsSuspicious bool `json:"isSuspicious,omitempty"`
}

// HasRealBeneficiary reports whether the transaction names an identifiable
// counterpart that may be shared with other customers.
func (t *Transaction) HasRealBeneficiary() bool {
	return t.Beneficiary != "" && t.Beneficiary != UnknownBeneficiary
}
