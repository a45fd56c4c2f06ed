package patterns

import (
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/finguard/internal/domain"
)

const threshold = 900000

// monday is 2024-03-04, a weekday.
var monday = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func newTx(id string, amount float64, ts time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:         id,
		CustomerID: "CUST-1",
		Amount:     amount,
		Timestamp:  ts,
		Type:       domain.TxCashDeposit,
	}
}

func sameDay(n int, amount float64, day time.Time) []*domain.Transaction {
	txs := make([]*domain.Transaction, n)
	for i := range txs {
		txs[i] = newTx(fmt.Sprintf("%s-%d", day.Format("0102"), i), amount, day.Add(time.Duration(i)*2*time.Hour))
	}
	return txs
}

func TestDetectStructuring(t *testing.T) {
	amount := float64(threshold/3 + 1)

	t.Run("ThreeSubThresholdOnOneDay", func(t *testing.T) {
		if !DetectStructuring(sameDay(3, amount, monday), threshold, time.UTC) {
			t.Error("expected structuring with 3 sub-threshold transactions summing above threshold")
		}
	})

	t.Run("TwoTransactions", func(t *testing.T) {
		if DetectStructuring(sameDay(2, amount, monday), threshold, time.UTC) {
			t.Error("expected no structuring with only 2 transactions")
		}
	})

	t.Run("SumBelowThreshold", func(t *testing.T) {
		if DetectStructuring(sameDay(3, 1000, monday), threshold, time.UTC) {
			t.Error("expected no structuring when the day total stays below threshold")
		}
	})

	t.Run("LargeTransactionsDoNotCount", func(t *testing.T) {
		txs := sameDay(2, amount, monday)
		txs = append(txs, newTx("big", threshold*2, monday.Add(5*time.Hour)))
		if DetectStructuring(txs, threshold, time.UTC) {
			t.Error("a transaction above the threshold is not part of a structuring subset")
		}
	})

	t.Run("SpreadAcrossDays", func(t *testing.T) {
		txs := []*domain.Transaction{
			newTx("a", amount, monday),
			newTx("b", amount, monday.AddDate(0, 0, 1)),
			newTx("c", amount, monday.AddDate(0, 0, 2)),
		}
		if DetectStructuring(txs, threshold, time.UTC) {
			t.Error("expected no structuring when transactions fall on different days")
		}
	})

	t.Run("Empty", func(t *testing.T) {
		if DetectStructuring(nil, threshold, time.UTC) {
			t.Error("expected false for no transactions")
		}
	})
}

func TestDetectNetworkStructuring(t *testing.T) {
	amount := float64(threshold/3 + 1)

	t.Run("SingleDayIsNotEnough", func(t *testing.T) {
		txs := sameDay(6, amount, monday)
		if DetectNetworkStructuring(txs, threshold, time.UTC) {
			t.Error("structuring on a single day must not flag a network")
		}
	})

	t.Run("TwoDays", func(t *testing.T) {
		txs := append(sameDay(3, amount, monday), sameDay(3, amount, monday.AddDate(0, 0, 1))...)
		if !DetectNetworkStructuring(txs, threshold, time.UTC) {
			t.Error("expected network structuring on two distinct days")
		}
	})

	t.Run("TooFewTransactions", func(t *testing.T) {
		if DetectNetworkStructuring(sameDay(5, amount, monday), threshold, time.UTC) {
			t.Error("expected false with fewer than 6 transactions")
		}
	})
}

func TestDetectUnusualTiming(t *testing.T) {
	cfg := domain.DefaultDetectionConfig().Timing

	tests := []struct {
		name  string
		hours []int
		day   time.Time
		want  bool
	}{
		{"DaytimeWeekday", []int{9, 10, 11, 12, 13}, monday, false},
		{"MostlyNight", []int{23, 2, 3, 12, 13}, monday, true},
		{"NightBoundaryExactly30Percent", []int{22, 6, 0, 7, 8, 9, 10, 11, 12, 13}, monday, false},
		{"Weekend", []int{9, 10, 11, 12, 13}, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), true},
		{"TooFew", []int{1, 2, 3, 4}, monday, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var txs []*domain.Transaction
			base := time.Date(tt.day.Year(), tt.day.Month(), tt.day.Day(), 0, 0, 0, 0, time.UTC)
			for i, h := range tt.hours {
				txs = append(txs, newTx(fmt.Sprint(i), 100, base.Add(time.Duration(h)*time.Hour)))
			}
			if got := DetectUnusualTiming(txs, cfg, time.UTC); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestDetectRapidSuccession(t *testing.T) {
	cfg := domain.DefaultDetectionConfig().Rapid

	at := func(secs ...int) []*domain.Transaction {
		var txs []*domain.Transaction
		for i, s := range secs {
			txs = append(txs, newTx(fmt.Sprint(i), 100, monday.Add(time.Duration(s)*time.Second)))
		}
		return txs
	}

	tests := []struct {
		name string
		txs  []*domain.Transaction
		want bool
	}{
		{"WithinHour", at(0, 1000, 3000), true},
		{"SpanTooLong", at(0, 2000, 5000), false},
		{"LaterWindowMatches", at(0, 2000, 5000, 5500, 6000), true},
		{"UnsortedInput", at(3000, 0, 1000), true},
		{"ExactlyOneHour", at(0, 1800, 3600), false},
		{"TwoTransactions", at(0, 10), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectRapidSuccession(tt.txs, cfg); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestNetworkComplexity(t *testing.T) {
	t.Run("SingleTransaction", func(t *testing.T) {
		if got := NetworkComplexity([]*domain.Transaction{newTx("a", 1, monday)}); got != 0 {
			t.Errorf("expected 0, got %v", got)
		}
	})

	t.Run("Diverse", func(t *testing.T) {
		var txs []*domain.Transaction
		types := []domain.TransactionType{domain.TxNEFT, domain.TxUPI, domain.TxRTGS}
		for i := 0; i < 6; i++ {
			tx := newTx(fmt.Sprint(i), 100, monday)
			tx.Beneficiary = fmt.Sprintf("B%d", i)
			tx.Type = types[i%3]
			tx.Location = fmt.Sprintf("L%d", i%2)
			txs = append(txs, tx)
		}
		// (6*0.4 + 3*0.3 + 2*0.3) / 10
		want := 0.39
		if got := NetworkComplexity(txs); got < want-1e-9 || got > want+1e-9 {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("Clamped", func(t *testing.T) {
		var txs []*domain.Transaction
		for i := 0; i < 40; i++ {
			tx := newTx(fmt.Sprint(i), 100, monday)
			tx.Beneficiary = fmt.Sprintf("B%d", i)
			tx.Location = fmt.Sprintf("L%d", i)
			txs = append(txs, tx)
		}
		if got := NetworkComplexity(txs); got != 1 {
			t.Errorf("expected clamp to 1, got %v", got)
		}
	})
}

func TestDetectHighVelocity(t *testing.T) {
	txs := sameDay(11, 100, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC))
	for i, tx := range txs {
		tx.Timestamp = tx.Timestamp.Add(-time.Duration(i) * 110 * time.Minute)
	}

	if got := MaxDailyTransactions(txs, time.UTC); got != 11 {
		t.Fatalf("expected 11 transactions on the busiest day, got %d", got)
	}
	if !DetectHighVelocity(txs, 10, time.UTC) {
		t.Error("expected high velocity above 10 a day")
	}
	if DetectHighVelocity(txs[:10], 10, time.UTC) {
		t.Error("exactly the limit is not high velocity")
	}
}

func TestDetectorsEvaluate(t *testing.T) {
	d := New(domain.DefaultDetectionConfig(), time.UTC)
	got := d.Evaluate(sameDay(3, float64(threshold/3+1), monday))

	for _, name := range []string{
		domain.PatternStructuring,
		domain.PatternUnusualTiming,
		domain.PatternRapidSuccession,
		domain.PatternHighDailyVelocity,
	} {
		if _, ok := got[name]; !ok {
			t.Errorf("pattern %q missing from result", name)
		}
	}
	if !got[domain.PatternStructuring] {
		t.Error("expected structuring to be detected")
	}
	if got[domain.PatternRapidSuccession] {
		t.Error("transactions two hours apart are not rapid succession")
	}
}
