package cache

import (
	"sort"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/opensource-finance/finguard/internal/domain"
)

// ReportKey fingerprints a customer's profile, history and account age in
// whole days at asOf. Any change to an input the scorer reads yields a
// different key. Transaction order is ignored.
func ReportKey(c *domain.Customer, txs []*domain.Transaction, asOf time.Time) string {
	d := xxhash.New()
	sep := []byte{0}

	write := func(s string) {
		_, _ = d.WriteString(s)
		_, _ = d.Write(sep)
	}

	write(c.ID)
	write(strconv.FormatFloat(c.DeclaredIncome, 'g', -1, 64))
	write(string(c.KYCStatus))
	write(c.AccountOpeningDate.UTC().Format("2006-01-02T15:04:05.999999999"))
	if c.LinkedAccounts != nil {
		write(strconv.Itoa(*c.LinkedAccounts))
	} else {
		write("-")
	}
	write(strconv.Itoa(c.AccountAgeDays(asOf)))

	sorted := make([]*domain.Transaction, len(txs))
	copy(sorted, txs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, tx := range sorted {
		write(tx.ID)
		write(strconv.FormatFloat(tx.Amount, 'g', -1, 64))
		write(string(tx.Type))
		write(strconv.FormatInt(tx.Timestamp.UnixNano(), 10))
		write(tx.Beneficiary)
		write(tx.Location)
		write(strconv.FormatBool(tx.IsSuspicious))
	}

	return "report:" + c.ID + ":" + strconv.FormatUint(d.Sum64(), 16)
}
