package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/finguard/internal/domain"
)

const transactionColumns = `id, customer_id, amount, currency, type, timestamp, beneficiary, beneficiary_type, location, status, is_suspicious`

// SaveTransaction stores a transaction.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx == nil || tx.ID == "" || tx.CustomerID == "" {
		return fmt.Errorf("%w: transaction and customer ids are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.CustomerID, tx.Amount, tx.Currency, string(tx.Type),
		tx.Timestamp.UTC(), tx.Beneficiary, tx.BeneficiaryType,
		tx.Location, tx.Status, boolToInt(tx.IsSuspicious),
	)
	return err
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, r.rebind(query), txID))
	if err != nil {
		return nil, notFound(err, "transaction", txID)
	}
	return tx, nil
}

// GetTransactionsByCustomer retrieves a customer's transactions since a
// given time, oldest first.
func (r *SQLRepository) GetTransactionsByCustomer(ctx context.Context, customerID string, since time.Time) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE customer_id = ? AND timestamp >= ?
		ORDER BY timestamp, id
	`
	return r.queryTransactions(ctx, query, customerID, since.UTC())
}

// ListTransactions retrieves every transaction since a given time, oldest
// first.
func (r *SQLRepository) ListTransactions(ctx context.Context, since time.Time) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE timestamp >= ?
		ORDER BY timestamp, id
	`
	return r.queryTransactions(ctx, query, since.UTC())
}

func (r *SQLRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]*domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var txType string
	var suspicious int

	err := s.Scan(
		&tx.ID, &tx.CustomerID, &tx.Amount, &tx.Currency, &txType,
		&tx.Timestamp, &tx.Beneficiary, &tx.BeneficiaryType,
		&tx.Location, &tx.Status, &suspicious,
	)
	if err != nil {
		return nil, err
	}

	tx.Type = domain.TransactionType(txType)
	tx.IsSuspicious = suspicious != 0
	return &tx, nil
}
