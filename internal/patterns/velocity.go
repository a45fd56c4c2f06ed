package patterns

import (
	"time"

	"github.com/opensource-finance/finguard/internal/domain"
	"github.com/opensource-finance/finguard/internal/txset"
)

// MaxDailyTransactions returns the busiest day's transaction count.
func MaxDailyTransactions(txs []*domain.Transaction, loc *time.Location) int {
	busiest := 0
	for _, group := range txset.GroupByDay(txs, loc) {
		if len(group) > busiest {
			busiest = len(group)
		}
	}
	return busiest
}

// DetectHighVelocity reports whether any day exceeds maxDaily transactions.
// A non-positive limit disables the check.
func DetectHighVelocity(txs []*domain.Transaction, maxDaily int, loc *time.Location) bool {
	if maxDaily <= 0 {
		return false
	}
	return MaxDailyTransactions(txs, loc) > maxDaily
}
