package main

import (
	"testing"

	"github.com/opensource-finance/finguard/internal/batch"
	"github.com/opensource-finance/finguard/internal/domain"
)

func TestCompareLabels(t *testing.T) {
	in := &batch.Input{
		Transactions: []*domain.Transaction{
			{ID: "T1", CustomerID: "A", IsSuspicious: true},
			{ID: "T2", CustomerID: "B"},
			{ID: "T3", CustomerID: "C", IsSuspicious: true},
			{ID: "T4", CustomerID: "D"},
		},
	}
	res := &batch.Result{
		Reports: []*domain.RiskReport{
			{CustomerID: "A", RiskScore: 80},
			{CustomerID: "B", RiskScore: 75},
			{CustomerID: "C", RiskScore: 10},
			{CustomerID: "D", RiskScore: 5},
		},
	}

	got := compareLabels(in, res, 70)
	want := Labels{TruePositives: 1, FalsePositives: 1, TrueNegatives: 1, FalseNegatives: 1}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}
