package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/opensource-finance/finguard/internal/domain"
)

const customerColumns = `id, name, declared_income, kyc_status, account_opening_date, linked_accounts, risk_score, created_at`

// SaveCustomer inserts or replaces a customer profile.
func (r *SQLRepository) SaveCustomer(ctx context.Context, c *domain.Customer) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("%w: customer id is required", ErrInvalidInput)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	var linked sql.NullInt64
	if c.LinkedAccounts != nil {
		linked = sql.NullInt64{Int64: int64(*c.LinkedAccounts), Valid: true}
	}

	query := `
		INSERT INTO customers (` + customerColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			declared_income = excluded.declared_income,
			kyc_status = excluded.kyc_status,
			account_opening_date = excluded.account_opening_date,
			linked_accounts = excluded.linked_accounts
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		c.ID, c.Name, c.DeclaredIncome, string(c.KYCStatus),
		c.AccountOpeningDate.UTC(), linked, c.RiskScore, c.CreatedAt,
	)
	return err
}

// GetCustomer retrieves a customer by ID.
func (r *SQLRepository) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = ?`

	c, err := scanCustomer(r.db.QueryRowContext(ctx, r.rebind(query), customerID))
	if err != nil {
		return nil, notFound(err, "customer", customerID)
	}
	return c, nil
}

// ListCustomers returns every customer ordered by ID.
func (r *SQLRepository) ListCustomers(ctx context.Context) ([]*domain.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []*domain.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// UpdateCustomerRiskScore stores the latest assessed score.
func (r *SQLRepository) UpdateCustomerRiskScore(ctx context.Context, customerID string, score float64) error {
	query := `UPDATE customers SET risk_score = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), score, customerID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: customer %s", ErrNotFound, customerID)
	}
	return nil
}

func scanCustomer(s scanner) (*domain.Customer, error) {
	var c domain.Customer
	var kyc string
	var linked sql.NullInt64

	err := s.Scan(
		&c.ID, &c.Name, &c.DeclaredIncome, &kyc,
		&c.AccountOpeningDate, &linked, &c.RiskScore, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.KYCStatus = domain.KYCStatus(kyc)
	if linked.Valid {
		n := int(linked.Int64)
		c.LinkedAccounts = &n
	}
	return &c, nil
}
