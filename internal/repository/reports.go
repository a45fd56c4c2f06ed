package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opensource-finance/finguard/internal/domain"
)

// SaveReport stores a risk report.
func (r *SQLRepository) SaveReport(ctx context.Context, report *domain.RiskReport) error {
	if report == nil || report.ID == "" {
		return fmt.Errorf("%w: report id is required", ErrInvalidInput)
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	query := `
		INSERT INTO risk_reports (id, customer_id, risk_score, risk_level, assessment_date, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		report.ID, report.CustomerID, report.RiskScore,
		string(report.RiskLevel), report.AssessmentDate.UTC(), string(payload),
	)
	return err
}

// GetReport retrieves a risk report by ID.
func (r *SQLRepository) GetReport(ctx context.Context, reportID string) (*domain.RiskReport, error) {
	query := `SELECT payload FROM risk_reports WHERE id = ?`

	var payload string
	if err := r.db.QueryRowContext(ctx, r.rebind(query), reportID).Scan(&payload); err != nil {
		return nil, notFound(err, "report", reportID)
	}

	var report domain.RiskReport
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", reportID, err)
	}
	return &report, nil
}

// SaveNetwork stores a detected network. Networks are keyed by membership,
// so re-detecting the same network replaces the previous record.
func (r *SQLRepository) SaveNetwork(ctx context.Context, network *domain.SmurfNetwork) error {
	if network == nil || network.ID == "" {
		return fmt.Errorf("%w: network id is required", ErrInvalidInput)
	}

	payload, err := json.Marshal(network)
	if err != nil {
		return fmt.Errorf("failed to encode network: %w", err)
	}

	query := `
		INSERT INTO smurf_networks (id, risk_score, has_structuring, detected_at, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			risk_score = excluded.risk_score,
			has_structuring = excluded.has_structuring,
			detected_at = excluded.detected_at,
			payload = excluded.payload
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		network.ID, network.RiskScore, boolToInt(network.HasStructuring),
		network.DetectedAt.UTC(), string(payload),
	)
	return err
}

// GetNetwork retrieves a network by ID.
func (r *SQLRepository) GetNetwork(ctx context.Context, networkID string) (*domain.SmurfNetwork, error) {
	query := `SELECT payload FROM smurf_networks WHERE id = ?`

	var payload string
	if err := r.db.QueryRowContext(ctx, r.rebind(query), networkID).Scan(&payload); err != nil {
		return nil, notFound(err, "network", networkID)
	}

	var network domain.SmurfNetwork
	if err := json.Unmarshal([]byte(payload), &network); err != nil {
		return nil, fmt.Errorf("failed to decode network %s: %w", networkID, err)
	}
	return &network, nil
}
