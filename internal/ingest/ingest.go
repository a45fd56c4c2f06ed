// Package ingest rejects malformed customers and transactions at the engine
// boundary so detectors never miscompute on bad records.
package ingest

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/opensource-finance/finguard/internal/domain"
)

// ErrMalformed is wrapped by every rejection reason.
var ErrMalformed = errors.New("malformed record")

// Rejection reasons.
var (
	ErrMissingID        = fmt.Errorf("%w: missing identifier", ErrMalformed)
	ErrDuplicateID      = fmt.Errorf("%w: duplicate identifier", ErrMalformed)
	ErrNegativeAmount   = fmt.Errorf("%w: negative amount", ErrMalformed)
	ErrInvalidAmount    = fmt.Errorf("%w: amount is not a finite number", ErrMalformed)
	ErrMissingTimestamp = fmt.Errorf("%w: missing timestamp", ErrMalformed)
	ErrUnknownCustomer  = fmt.Errorf("%w: unknown customer", ErrMalformed)
	ErrNegativeIncome   = fmt.Errorf("%w: negative declared income", ErrMalformed)
	ErrInvalidKYC       = fmt.Errorf("%w: unknown KYC status", ErrMalformed)
)

// Record kinds.
const (
	KindCustomer    = "customer"
	KindTransaction = "transaction"
)

// Rejection describes one skipped record.
type Rejection struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// Error implements error.
func (r Rejection) Error() string {
	return fmt.Sprintf("%s %q: %v", r.Kind, r.ID, r.Err)
}

// Unwrap returns the rejection reason.
func (r Rejection) Unwrap() error { return r.Err }

// Result holds the records that passed validation and the diagnostics for
// those that did not.
type Result struct {
	Customers    []*domain.Customer
	Transactions []*domain.Transaction
	Rejections   []Rejection
}

// CheckCustomer validates a single customer.
func CheckCustomer(c *domain.Customer) error {
	switch {
	case c == nil || c.ID == "":
		return ErrMissingID
	case math.IsNaN(c.DeclaredIncome) || math.IsInf(c.DeclaredIncome, 0):
		return ErrInvalidAmount
	case c.DeclaredIncome < 0:
		return ErrNegativeIncome
	case !c.KYCStatus.Valid():
		return fmt.Errorf("%w: %q", ErrInvalidKYC, c.KYCStatus)
	case c.LinkedAccounts != nil && *c.LinkedAccounts < 0:
		return fmt.Errorf("%w: negative linked accounts", ErrMalformed)
	}
	return nil
}

// CheckTransaction validates a single transaction without reference to its
// customer.
func CheckTransaction(tx *domain.Transaction) error {
	switch {
	case tx == nil || tx.ID == "" || tx.CustomerID == "":
		return ErrMissingID
	case math.IsNaN(tx.Amount) || math.IsInf(tx.Amount, 0):
		return ErrInvalidAmount
	case tx.Amount < 0:
		return ErrNegativeAmount
	case tx.Timestamp.IsZero():
		return ErrMissingTimestamp
	}
	return nil
}

// Validate checks customers, then transactions against the accepted
// customers. Rejected records are logged and left out of the result.
func Validate(customers []*domain.Customer, txs []*domain.Transaction) Result {
	var res Result
	known := make(map[string]struct{}, len(customers))

	for _, c := range customers {
		err := CheckCustomer(c)
		if err == nil {
			if _, dup := known[c.ID]; dup {
				err = ErrDuplicateID
			}
		}
		if err != nil {
			res.reject(KindCustomer, customerID(c), err)
			continue
		}
		known[c.ID] = struct{}{}
		res.Customers = append(res.Customers, c)
	}

	seen := make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		err := CheckTransaction(tx)
		if err == nil {
			if _, ok := known[tx.CustomerID]; !ok {
				err = fmt.Errorf("%w: %q", ErrUnknownCustomer, tx.CustomerID)
			} else if _, dup := seen[tx.ID]; dup {
				err = ErrDuplicateID
			}
		}
		if err != nil {
			res.reject(KindTransaction, transactionID(tx), err)
			continue
		}
		seen[tx.ID] = struct{}{}
		res.Transactions = append(res.Transactions, tx)
	}

	return res
}

func (r *Result) reject(kind, id string, err error) {
	slog.Warn("rejected malformed record", "kind", kind, "id", id, "error", err)
	r.Rejections = append(r.Rejections, Rejection{Kind: kind, ID: id, Reason: err.Error(), Err: err})
}

func customerID(c *domain.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func transactionID(tx *domain.Transaction) string {
	if tx == nil {
		return ""
	}
	return tx.ID
}
