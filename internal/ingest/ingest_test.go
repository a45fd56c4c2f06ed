package ingest

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/opensource-finance/finguard/internal/domain"
)

var ts = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func TestCheckTransaction(t *testing.T) {
	tests := []struct {
		name string
		tx   *domain.Transaction
		want error
	}{
		{"Valid", &domain.Transaction{ID: "T1", CustomerID: "C1", Amount: 10, Timestamp: ts}, nil},
		{"ZeroAmount", &domain.Transaction{ID: "T1", CustomerID: "C1", Amount: 0, Timestamp: ts}, nil},
		{"Negative", &domain.Transaction{ID: "T1", CustomerID: "C1", Amount: -1, Timestamp: ts}, ErrNegativeAmount},
		{"NaN", &domain.Transaction{ID: "T1", CustomerID: "C1", Amount: math.NaN(), Timestamp: ts}, ErrInvalidAmount},
		{"Inf", &domain.Transaction{ID: "T1", CustomerID: "C1", Amount: math.Inf(1), Timestamp: ts}, ErrInvalidAmount},
		{"NoTimestamp", &domain.Transaction{ID: "T1", CustomerID: "C1", Amount: 1}, ErrMissingTimestamp},
		{"NoID", &domain.Transaction{CustomerID: "C1", Amount: 1, Timestamp: ts}, ErrMissingID},
		{"NoCustomer", &domain.Transaction{ID: "T1", Amount: 1, Timestamp: ts}, ErrMissingID},
		{"Nil", nil, ErrMissingID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckTransaction(tt.tx)
			if tt.want == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("expected error to wrap ErrMalformed, got %v", err)
			}
		})
	}
}

func TestCheckCustomer(t *testing.T) {
	negative := -1
	tests := []struct {
		name string
		c    *domain.Customer
		want error
	}{
		{"Valid", &domain.Customer{ID: "C1", DeclaredIncome: 100, KYCStatus: domain.KYCVerified}, nil},
		{"NegativeIncome", &domain.Customer{ID: "C1", DeclaredIncome: -5, KYCStatus: domain.KYCVerified}, ErrNegativeIncome},
		{"BadKYC", &domain.Customer{ID: "C1", KYCStatus: "MAYBE"}, ErrInvalidKYC},
		{"NoID", &domain.Customer{KYCStatus: domain.KYCVerified}, ErrMissingID},
		{"NegativeLinked", &domain.Customer{ID: "C1", KYCStatus: domain.KYCPending, LinkedAccounts: &negative}, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckCustomer(tt.c)
			if tt.want == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	customers := []*domain.Customer{
		{ID: "C1", DeclaredIncome: 100, KYCStatus: domain.KYCVerified},
		{ID: "C2", DeclaredIncome: -1, KYCStatus: domain.KYCVerified},
		{ID: "C1", DeclaredIncome: 100, KYCStatus: domain.KYCVerified},
	}
	txs := []*domain.Transaction{
		{ID: "T1", CustomerID: "C1", Amount: 10, Timestamp: ts},
		{ID: "T2", CustomerID: "C2", Amount: 10, Timestamp: ts},
		{ID: "T3", CustomerID: "C9", Amount: 10, Timestamp: ts},
		{ID: "T4", CustomerID: "C1", Amount: -10, Timestamp: ts},
		{ID: "T1", CustomerID: "C1", Amount: 10, Timestamp: ts},
		{ID: "T5", CustomerID: "C1", Amount: 20, Timestamp: ts},
	}

	res := Validate(customers, txs)

	if len(res.Customers) != 1 || res.Customers[0].ID != "C1" {
		t.Fatalf("expected only C1 accepted, got %d customers", len(res.Customers))
	}
	if len(res.Transactions) != 2 || res.Transactions[0].ID != "T1" || res.Transactions[1].ID != "T5" {
		t.Fatalf("expected T1 and T5 accepted, got %d transactions", len(res.Transactions))
	}

	want := []struct {
		kind string
		id   string
		err  error
	}{
		{KindCustomer, "C2", ErrNegativeIncome},
		{KindCustomer, "C1", ErrDuplicateID},
		{KindTransaction, "T2", ErrUnknownCustomer},
		{KindTransaction, "T3", ErrUnknownCustomer},
		{KindTransaction, "T4", ErrNegativeAmount},
		{KindTransaction, "T1", ErrDuplicateID},
	}
	if len(res.Rejections) != len(want) {
		t.Fatalf("expected %d rejections, got %d: %v", len(want), len(res.Rejections), res.Rejections)
	}
	for i, w := range want {
		r := res.Rejections[i]
		if r.Kind != w.kind || r.ID != w.id || !errors.Is(r, w.err) {
			t.Errorf("rejection %d: expected %s %s %v, got %v", i, w.kind, w.id, w.err, r)
		}
	}
}

func TestValidateEmpty(t *testing.T) {
	res := Validate(nil, nil)
	if len(res.Customers) != 0 || len(res.Transactions) != 0 || len(res.Rejections) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}
