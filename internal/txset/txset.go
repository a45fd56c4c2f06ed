// Package txset provides pure helpers over collections of transactions.
// None of the helpers mutate their input.
package txset

import (
	"sort"
	"time"

	"github.com/opensource-finance/finguard/internal/domain"
	"github.com/shopspring/decimal"
)

// Day is a calendar date in a specific location.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf returns the calendar date of t in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	y, m, d := t.In(loc).Date()
	return Day{Year: y, Month: m, Day: d}
}

// String formats the day as YYYY-MM-DD.
func (d Day) String() string {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Format(time.DateOnly)
}

// Before reports whether d is earlier than o.
func (d Day) Before(o Day) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// SortByTime returns a copy of txs ordered by timestamp. Ties are broken by
// transaction ID so the order never depends on input order.
func SortByTime(txs []*domain.Transaction) []*domain.Transaction {
	sorted := make([]*domain.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.ID < b.ID
	})
	return sorted
}

// GroupByDay buckets transactions by calendar date in loc.
func GroupByDay(txs []*domain.Transaction, loc *time.Location) map[Day][]*domain.Transaction {
	if loc == nil {
		loc = time.Local
	}
	groups := make(map[Day][]*domain.Transaction)
	for _, tx := range txs {
		d := DayOf(tx.Timestamp, loc)
		groups[d] = append(groups[d], tx)
	}
	return groups
}

// SortedDays returns the keys of a day grouping in chronological order.
func SortedDays(groups map[Day][]*domain.Transaction) []Day {
	days := make([]Day, 0, len(groups))
	for d := range groups {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// GroupByCustomer buckets transactions by owning customer.
func GroupByCustomer(txs []*domain.Transaction) map[string][]*domain.Transaction {
	groups := make(map[string][]*domain.Transaction)
	for _, tx := range txs {
		groups[tx.CustomerID] = append(groups[tx.CustomerID], tx)
	}
	return groups
}

// CustomerIDs returns the distinct customer IDs in txs, sorted.
func CustomerIDs(txs []*domain.Transaction) []string {
	seen := make(map[string]struct{})
	for _, tx := range txs {
		seen[tx.CustomerID] = struct{}{}
	}
	return sortedKeys(seen)
}

// ForCustomers keeps transactions whose owner is in members.
func ForCustomers(txs []*domain.Transaction, members map[string]struct{}) []*domain.Transaction {
	var out []*domain.Transaction
	for _, tx := range txs {
		if _, ok := members[tx.CustomerID]; ok {
			out = append(out, tx)
		}
	}
	return out
}

// Below keeps transactions strictly below threshold.
func Below(txs []*domain.Transaction, threshold float64) []*domain.Transaction {
	var out []*domain.Transaction
	for _, tx := range txs {
		if tx.Amount < threshold {
			out = append(out, tx)
		}
	}
	return out
}

// Sum adds the amounts exactly, so the result does not depend on the order
// of txs.
func Sum(txs []*domain.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(decimal.NewFromFloat(tx.Amount))
	}
	return total
}

// TotalVolume is Sum as a float64.
func TotalVolume(txs []*domain.Transaction) float64 {
	return Sum(txs).InexactFloat64()
}

// CountType counts transactions of the given type.
func CountType(txs []*domain.Transaction, t domain.TransactionType) int {
	n := 0
	for _, tx := range txs {
		if tx.Type == t {
			n++
		}
	}
	return n
}

// CountAbove counts transactions strictly above threshold.
func CountAbove(txs []*domain.Transaction, threshold float64) int {
	n := 0
	for _, tx := range txs {
		if tx.Amount > threshold {
			n++
		}
	}
	return n
}

// IDs returns the transaction IDs in input order.
func IDs(txs []*domain.Transaction) []string {
	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	return ids
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
