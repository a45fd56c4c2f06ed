package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/finguard/internal/alerting"
	"github.com/opensource-finance/finguard/internal/bus"
	"github.com/opensource-finance/finguard/internal/cache"
	"github.com/opensource-finance/finguard/internal/domain"
	"github.com/opensource-finance/finguard/internal/ingest"
	"github.com/opensource-finance/finguard/internal/metrics"
	"github.com/opensource-finance/finguard/internal/repository"
)

var day = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc  *Service
	repo domain.Repository
	bus  *bus.ChannelBus
}

func newFixture(t *testing.T, policy string) *fixture {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "finguard-service-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() {
		os.Remove(tmpPath)
		os.Remove(tmpPath + "-wal")
		os.Remove(tmpPath + "-shm")
	})

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	cfg := domain.DefaultConfig()
	cfg.Detection.Location = "UTC"
	if policy != "" {
		cfg.AlertPolicy = policy
	}

	svc, err := New(cfg, Options{
		Repo:    repo,
		Cache:   cache.NewLRUCache(100),
		Bus:     eventBus,
		Metrics: metrics.New(),
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return &fixture{svc: svc, repo: repo, bus: eventBus}
}

func structuringCustomer() (*domain.Customer, []*domain.Transaction) {
	c := &domain.Customer{
		ID:                 "CUST-7",
		DeclaredIncome:     400000,
		KYCStatus:          domain.KYCPending,
		AccountOpeningDate: time.Now().UTC().AddDate(0, 0, -5),
	}
	txs := []*domain.Transaction{
		{ID: "T1", CustomerID: c.ID, Amount: 300001, Timestamp: day, Type: domain.TxCashDeposit},
		{ID: "T2", CustomerID: c.ID, Amount: 300001, Timestamp: day.Add(3 * time.Hour), Type: domain.TxCashDeposit},
		{ID: "T3", CustomerID: c.ID, Amount: 300001, Timestamp: day.Add(6 * time.Hour), Type: domain.TxCashDeposit},
	}
	return c, txs
}

func TestAssess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "patterns.structuring")
	c, txs := structuringCustomer()

	var mu sync.Mutex
	var published []*domain.RiskReport
	done := make(chan struct{}, 1)
	f.bus.Subscribe(ctx, domain.TopicReportGenerated, func(ctx context.Context, msg *domain.Message) error {
		var r domain.RiskReport
		if err := json.Unmarshal(msg.Payload, &r); err != nil {
			return err
		}
		mu.Lock()
		published = append(published, &r)
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	bad := &domain.Transaction{ID: "T4", CustomerID: c.ID, Amount: -1, Timestamp: day, Type: domain.TxUPI}
	out, err := f.svc.Assess(ctx, c, append(txs, bad), nil)
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}

	t.Run("Report", func(t *testing.T) {
		if out.Report.TotalTransactions != 3 {
			t.Errorf("expected malformed transaction excluded, got %d transactions", out.Report.TotalTransactions)
		}
		if !out.Report.Patterns[domain.PatternStructuring] {
			t.Error("expected structuring pattern")
		}
		if len(out.Rejections) != 1 || !errors.Is(out.Rejections[0], ingest.ErrNegativeAmount) {
			t.Errorf("expected one negative-amount rejection, got %v", out.Rejections)
		}
	})

	t.Run("Persisted", func(t *testing.T) {
		stored, err := f.repo.GetReport(ctx, out.Report.ID)
		if err != nil {
			t.Fatalf("GetReport failed: %v", err)
		}
		if stored.RiskScore != out.Report.RiskScore {
			t.Errorf("expected stored score %.2f, got %.2f", out.Report.RiskScore, stored.RiskScore)
		}
	})

	t.Run("Alert", func(t *testing.T) {
		if out.Alert == nil {
			t.Fatal("expected structuring policy to raise an alert")
		}
		if out.Alert.ReportID != out.Report.ID || out.Alert.Status != domain.AlertOpen {
			t.Errorf("unexpected alert: %+v", out.Alert)
		}
		open, err := f.repo.ListAlerts(ctx, domain.AlertOpen)
		if err != nil {
			t.Fatalf("ListAlerts failed: %v", err)
		}
		if len(open) != 1 {
			t.Errorf("expected 1 stored alert, got %d", len(open))
		}
	})

	t.Run("Published", func(t *testing.T) {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for report event")
		}
		mu.Lock()
		defer mu.Unlock()
		if published[0].ID != out.Report.ID {
			t.Errorf("expected published report %s, got %s", out.Report.ID, published[0].ID)
		}
	})

	t.Run("MalformedCustomer", func(t *testing.T) {
		bad := &domain.Customer{ID: "X", DeclaredIncome: -5, KYCStatus: domain.KYCVerified}
		if _, err := f.svc.Assess(ctx, bad, nil, nil); !errors.Is(err, ingest.ErrNegativeIncome) {
			t.Errorf("expected ErrNegativeIncome, got: %v", err)
		}
	})
}

func TestAssessStored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")
	c, txs := structuringCustomer()

	if res, err := f.svc.IngestCustomers(ctx, []*domain.Customer{c}); err != nil || res.Accepted != 1 {
		t.Fatalf("IngestCustomers failed: %v %+v", err, res)
	}
	if res, err := f.svc.IngestTransactions(ctx, txs[:2]); err != nil || res.Accepted != 2 {
		t.Fatalf("IngestTransactions failed: %v %+v", err, res)
	}

	first, err := f.svc.AssessStored(ctx, c.ID, nil)
	if err != nil {
		t.Fatalf("AssessStored failed: %v", err)
	}
	if first.Cached {
		t.Error("expected first assessment to be computed")
	}

	t.Run("CacheHit", func(t *testing.T) {
		again, err := f.svc.AssessStored(ctx, c.ID, nil)
		if err != nil {
			t.Fatalf("AssessStored failed: %v", err)
		}
		if !again.Cached {
			t.Error("expected cached assessment")
		}
		if again.Report.ID != first.Report.ID {
			t.Errorf("expected cached report %s, got %s", first.Report.ID, again.Report.ID)
		}
	})

	t.Run("NewDataInvalidatesCache", func(t *testing.T) {
		if _, err := f.svc.IngestTransactions(ctx, txs[2:]); err != nil {
			t.Fatalf("IngestTransactions failed: %v", err)
		}
		fresh, err := f.svc.AssessStored(ctx, c.ID, nil)
		if err != nil {
			t.Fatalf("AssessStored failed: %v", err)
		}
		if fresh.Cached {
			t.Error("expected new transaction to bypass the cache")
		}
		if fresh.Report.TotalTransactions != 3 {
			t.Errorf("expected 3 transactions, got %d", fresh.Report.TotalTransactions)
		}
	})

	t.Run("RiskScoreStored", func(t *testing.T) {
		stored, err := f.repo.GetCustomer(ctx, c.ID)
		if err != nil {
			t.Fatalf("GetCustomer failed: %v", err)
		}
		if stored.RiskScore <= 0 {
			t.Errorf("expected customer risk score to be updated, got %.2f", stored.RiskScore)
		}
	})

	t.Run("AccountAgeInvalidatesCache", func(t *testing.T) {
		clock := c.AccountOpeningDate.AddDate(0, 0, 29)
		f.svc.Assembler().Now = func() time.Time { return clock }
		t.Cleanup(func() { f.svc.Assembler().Now = time.Now })

		young, err := f.svc.AssessStored(ctx, c.ID, nil)
		if err != nil {
			t.Fatalf("AssessStored failed: %v", err)
		}
		if young.Cached {
			t.Error("expected assessment at a new account age to be computed")
		}

		clock = c.AccountOpeningDate.AddDate(0, 0, 31)
		aged, err := f.svc.AssessStored(ctx, c.ID, nil)
		if err != nil {
			t.Fatalf("AssessStored failed: %v", err)
		}
		if aged.Cached {
			t.Error("expected account crossing the new-account window to bypass the cache")
		}
		if aged.Report.RiskScore >= young.Report.RiskScore {
			t.Errorf("expected new-account weight to drop, got %.2f then %.2f", young.Report.RiskScore, aged.Report.RiskScore)
		}
	})

	t.Run("UnknownCustomer", func(t *testing.T) {
		if _, err := f.svc.AssessStored(ctx, "nobody", nil); !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestIngestTransactions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")
	c, txs := structuringCustomer()
	f.svc.IngestCustomers(ctx, []*domain.Customer{c})

	orphan := &domain.Transaction{ID: "T9", CustomerID: "GHOST", Amount: 10, Timestamp: day, Type: domain.TxUPI}
	res, err := f.svc.IngestTransactions(ctx, append(txs, orphan, txs[0]))
	if err != nil {
		t.Fatalf("IngestTransactions failed: %v", err)
	}

	if res.Accepted != 3 {
		t.Errorf("expected 3 accepted, got %d", res.Accepted)
	}
	if len(res.Rejections) != 2 {
		t.Fatalf("expected 2 rejections, got %v", res.Rejections)
	}
	if !errors.Is(res.Rejections[0], ingest.ErrUnknownCustomer) {
		t.Errorf("expected unknown customer rejection, got %v", res.Rejections[0])
	}
	if !errors.Is(res.Rejections[1], ingest.ErrDuplicateID) {
		t.Errorf("expected duplicate rejection, got %v", res.Rejections[1])
	}

	t.Run("StoredDuplicate", func(t *testing.T) {
		res, err := f.svc.IngestTransactions(ctx, txs[:1])
		if err != nil {
			t.Fatalf("IngestTransactions failed: %v", err)
		}
		if res.Accepted != 0 || len(res.Rejections) != 1 {
			t.Errorf("expected already-stored transaction rejected, got %+v", res)
		}
	})
}

func TestDetectStoredNetworks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")

	var customers []*domain.Customer
	var txs []*domain.Transaction
	for i, id := range []string{"MULE-1", "MULE-2", "MULE-3"} {
		customers = append(customers, &domain.Customer{
			ID:                 id,
			DeclaredIncome:     300000,
			KYCStatus:          domain.KYCVerified,
			AccountOpeningDate: day.AddDate(-1, 0, 0),
		})
		txs = append(txs, &domain.Transaction{
			ID:          "N" + id,
			CustomerID:  id,
			Amount:      45000,
			Timestamp:   day.Add(time.Duration(i) * time.Hour),
			Type:        domain.TxNEFT,
			Beneficiary: "SHELL-CO",
		})
	}
	f.svc.IngestCustomers(ctx, customers)
	f.svc.IngestTransactions(ctx, txs)

	res, err := f.svc.DetectStoredNetworks(ctx)
	if err != nil {
		t.Fatalf("DetectStoredNetworks failed: %v", err)
	}
	if len(res.Networks) != 1 {
		t.Fatalf("expected 1 network, got %d", len(res.Networks))
	}
	if len(res.Alerts) != 1 || res.Alerts[0].AlertType != domain.AlertTypeSmurfingNetwork {
		t.Errorf("expected one network alert, got %v", res.Alerts)
	}

	stored, err := f.repo.GetNetwork(ctx, res.Networks[0].ID)
	if err != nil {
		t.Fatalf("GetNetwork failed: %v", err)
	}
	if len(stored.Accounts) != 3 {
		t.Errorf("expected 3 accounts, got %v", stored.Accounts)
	}

	t.Run("RerunKeepsNetworkID", func(t *testing.T) {
		again, err := f.svc.DetectStoredNetworks(ctx)
		if err != nil {
			t.Fatalf("DetectStoredNetworks failed: %v", err)
		}
		if again.Networks[0].ID != res.Networks[0].ID {
			t.Errorf("expected stable network id, got %s then %s", res.Networks[0].ID, again.Networks[0].ID)
		}
	})
}

func TestUpdateAlert(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "score >= 0.0")
	c, txs := structuringCustomer()

	out, err := f.svc.Assess(ctx, c, txs, nil)
	if err != nil || out.Alert == nil {
		t.Fatalf("expected alert from permissive policy: %v", err)
	}
	id := out.Alert.ID

	alert, err := f.svc.UpdateAlert(ctx, id, alerting.Update{Status: domain.AlertInvestigating, AssignedTo: "analyst-1"})
	if err != nil {
		t.Fatalf("UpdateAlert failed: %v", err)
	}
	if alert.Status != domain.AlertInvestigating || alert.AssignedTo != "analyst-1" {
		t.Errorf("unexpected alert after update: %+v", alert)
	}

	if _, err := f.svc.UpdateAlert(ctx, id, alerting.Update{Status: domain.AlertResolved, Notes: "false positive"}); err != nil {
		t.Fatalf("UpdateAlert failed: %v", err)
	}

	_, err = f.svc.UpdateAlert(ctx, id, alerting.Update{Status: domain.AlertOpen})
	if !errors.Is(err, alerting.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition reopening alert, got: %v", err)
	}

	stored, _ := f.repo.GetAlert(ctx, id)
	if stored.Status != domain.AlertResolved || stored.ResolvedAt == nil {
		t.Errorf("expected stored alert resolved, got %+v", stored)
	}

	if _, err := f.svc.UpdateAlert(ctx, "missing", alerting.Update{Status: domain.AlertResolved}); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestWithoutRepository(t *testing.T) {
	svc, err := New(domain.DefaultConfig(), Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := svc.AssessStored(context.Background(), "x", nil); !errors.Is(err, ErrNoRepository) {
		t.Errorf("expected ErrNoRepository, got: %v", err)
	}

	c, txs := structuringCustomer()
	if _, err := svc.Assess(context.Background(), c, txs, nil); err != nil {
		t.Errorf("expected inline assessment without storage, got: %v", err)
	}
}

func TestNewRejectsBadPolicy(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.AlertPolicy = "score +"
	if _, err := New(cfg, Options{}); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got: %v", err)
	}
}
