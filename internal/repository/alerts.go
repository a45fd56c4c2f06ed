package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/opensource-finance/finguard/internal/domain"
)

const alertColumns = `id, customer_id, network_id, report_id, alert_type, severity, description, risk_score,
	triggered_rules, status, assigned_to, notes, created_at, updated_at, resolved_at`

// SaveAlert stores a new alert.
func (r *SQLRepository) SaveAlert(ctx context.Context, a *domain.Alert) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("%w: alert id is required", ErrInvalidInput)
	}

	rules, _ := json.Marshal(a.TriggeredRules)

	query := `
		INSERT INTO alerts (` + alertColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.ID, a.CustomerID, a.NetworkID, a.ReportID, a.AlertType,
		string(a.Severity), a.Description, a.RiskScore, string(rules),
		string(a.Status), a.AssignedTo, a.Notes,
		a.CreatedAt.UTC(), a.UpdatedAt.UTC(), nullTime(a),
	)
	return err
}

// GetAlert retrieves an alert by ID.
func (r *SQLRepository) GetAlert(ctx context.Context, alertID string) (*domain.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = ?`

	a, err := scanAlert(r.db.QueryRowContext(ctx, r.rebind(query), alertID))
	if err != nil {
		return nil, notFound(err, "alert", alertID)
	}
	return a, nil
}

// ListAlerts returns alerts with the given status, highest risk first. An
// empty status lists every alert.
func (r *SQLRepository) ListAlerts(ctx context.Context, status domain.AlertStatus) ([]*domain.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY risk_score DESC, created_at, id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// UpdateAlert stores the mutable workflow fields of an alert.
func (r *SQLRepository) UpdateAlert(ctx context.Context, a *domain.Alert) error {
	query := `
		UPDATE alerts
		SET status = ?, assigned_to = ?, notes = ?, updated_at = ?, resolved_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		string(a.Status), a.AssignedTo, a.Notes, a.UpdatedAt.UTC(), nullTime(a), a.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: alert %s", ErrNotFound, a.ID)
	}
	return nil
}

func nullTime(a *domain.Alert) sql.NullTime {
	if a.ResolvedAt == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: a.ResolvedAt.UTC(), Valid: true}
}

func scanAlert(s scanner) (*domain.Alert, error) {
	var a domain.Alert
	var severity, status, rules string
	var resolved sql.NullTime

	err := s.Scan(
		&a.ID, &a.CustomerID, &a.NetworkID, &a.ReportID, &a.AlertType,
		&severity, &a.Description, &a.RiskScore, &rules,
		&status, &a.AssignedTo, &a.Notes,
		&a.CreatedAt, &a.UpdatedAt, &resolved,
	)
	if err != nil {
		return nil, err
	}

	a.Severity = domain.RiskLevel(severity)
	a.Status = domain.AlertStatus(status)
	if rules != "" {
		json.Unmarshal([]byte(rules), &a.TriggeredRules)
	}
	if resolved.Valid {
		t := resolved.Time
		a.ResolvedAt = &t
	}
	return &a, nil
}
