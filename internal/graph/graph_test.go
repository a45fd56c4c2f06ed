package graph

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/opensource-finance/finguard/internal/domain"
)

func pay(customer, beneficiary string) *domain.Transaction {
	return &domain.Transaction{
		ID:          customer + "->" + beneficiary,
		CustomerID:  customer,
		Amount:      100,
		Beneficiary: beneficiary,
	}
}

func TestBuild(t *testing.T) {
	ctx := context.Background()

	t.Run("SharedBeneficiaryClique", func(t *testing.T) {
		txs := []*domain.Transaction{
			pay("A", "Acme"),
			pay("B", "Acme"),
			pay("C", "Acme"),
			pay("D", domain.UnknownBeneficiary),
		}
		g, err := Build(ctx, txs)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, pair := range [][2]string{{"A", "B"}, {"A", "C"}, {"B", "C"}} {
			if !g.HasEdge(pair[0], pair[1]) || !g.HasEdge(pair[1], pair[0]) {
				t.Errorf("expected edge %s-%s", pair[0], pair[1])
			}
		}
		if g.HasNode("D") && len(g.Neighbors("D")) != 0 {
			t.Errorf("D must be isolated, has neighbours %v", g.Neighbors("D"))
		}
		if g.EdgeCount() != 3 {
			t.Errorf("expected 3 edges, got %d", g.EdgeCount())
		}
	})

	t.Run("UnknownAndEmptyNeverConnect", func(t *testing.T) {
		txs := []*domain.Transaction{
			pay("A", domain.UnknownBeneficiary),
			pay("B", domain.UnknownBeneficiary),
			pay("C", ""),
			pay("D", ""),
		}
		g, err := Build(ctx, txs)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if g.EdgeCount() != 0 {
			t.Errorf("expected no edges, got %d", g.EdgeCount())
		}
		if g.NodeCount() != 4 {
			t.Errorf("expected 4 nodes, got %d", g.NodeCount())
		}
	})

	t.Run("RepeatPaymentsOneEdge", func(t *testing.T) {
		txs := []*domain.Transaction{pay("A", "X"), pay("A", "X"), pay("B", "X"), pay("B", "X")}
		g, err := Build(ctx, txs)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if g.EdgeCount() != 1 {
			t.Errorf("expected 1 edge, got %d", g.EdgeCount())
		}
	})

	t.Run("Empty", func(t *testing.T) {
		g, err := Build(ctx, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if g.NodeCount() != 0 {
			t.Errorf("expected empty graph, got %d nodes", g.NodeCount())
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := Build(cctx, []*domain.Transaction{pay("A", "X")})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestComponents(t *testing.T) {
	ctx := context.Background()
	txs := []*domain.Transaction{
		pay("E", "Y"),
		pay("C", "X"),
		pay("A", "X"),
		pay("B", "Y"),
		pay("B", "X"),
		pay("D", "Z"),
		pay("F", "W"),
		pay("G", "W"),
	}

	g, err := Build(ctx, txs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := g.Components(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := [][]string{{"A", "B", "C", "E"}, {"D"}, {"F", "G"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	t.Run("InputOrderIndependent", func(t *testing.T) {
		reversed := make([]*domain.Transaction, len(txs))
		for i, tx := range txs {
			reversed[len(txs)-1-i] = tx
		}
		g2, err := Build(ctx, reversed)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		again, err := g2.Components(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(got, again) {
			t.Errorf("components depend on input order: %v vs %v", got, again)
		}
	})
}
