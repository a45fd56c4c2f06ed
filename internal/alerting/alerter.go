package alerting

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/finguard/internal/domain"
)

// ErrInvalidTransition is returned for a status change the lifecycle forbids.
var ErrInvalidTransition = errors.New("invalid alert status transition")

// Alerter turns reports and networks into OPEN alerts.
type Alerter struct {
	policy     *Policy
	thresholds domain.RiskThresholds

	// Now stamps CreatedAt.
	Now func() time.Time
}

// NewAlerter creates an alerter from the alert policy and detection config.
func NewAlerter(expr string, cfg domain.DetectionConfig) (*Alerter, error) {
	policy, err := NewPolicy(expr, cfg.AutoAlertThreshold)
	if err != nil {
		return nil, err
	}
	return &Alerter{policy: policy, thresholds: cfg.RiskThresholds, Now: time.Now}, nil
}

// FromReport returns an alert when the policy fires for r, or nil.
func (a *Alerter) FromReport(r *domain.RiskReport) (*domain.Alert, error) {
	fires, err := a.policy.Fires(r)
	if err != nil || !fires {
		return nil, err
	}

	now := a.now()
	desc := fmt.Sprintf("Customer %s scored %.1f (%s)", r.CustomerID, r.RiskScore, r.RiskLevel)
	if detected := r.DetectedPatterns(); len(detected) > 0 {
		desc += "; patterns: " + strings.Join(detected, ", ")
	}

	return &domain.Alert{
		ID:             uuid.New().String(),
		CustomerID:     r.CustomerID,
		ReportID:       r.ID,
		AlertType:      domain.AlertTypeHighRiskCustomer,
		Severity:       r.RiskLevel,
		Description:    desc,
		RiskScore:      r.RiskScore,
		TriggeredRules: append([]string(nil), r.RiskFactors...),
		Status:         domain.AlertOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// FromNetwork returns an alert for a detected smurf network.
func (a *Alerter) FromNetwork(n *domain.SmurfNetwork) *domain.Alert {
	now := a.now()

	var rules []string
	if len(n.CommonBeneficiaries) > 0 {
		rules = append(rules, "Common beneficiaries: "+strings.Join(n.CommonBeneficiaries, ", "))
	}
	if n.HasStructuring {
		rules = append(rules, "Cross-account structuring")
	}

	return &domain.Alert{
		ID:             uuid.New().String(),
		NetworkID:      n.ID,
		AlertType:      domain.AlertTypeSmurfingNetwork,
		Severity:       a.thresholds.Level(n.RiskScore),
		Description:    fmt.Sprintf("Possible smurfing network of %d accounts, %d transactions", len(n.Accounts), n.TransactionCount),
		RiskScore:      n.RiskScore,
		TriggeredRules: rules,
		Status:         domain.AlertOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (a *Alerter) now() time.Time {
	if a.Now == nil {
		return time.Now().UTC()
	}
	return a.Now().UTC()
}

// allowed lists the forward transitions of the lifecycle. OPEN may be
// resolved directly when dismissed without investigation.
var allowed = map[domain.AlertStatus][]domain.AlertStatus{
	domain.AlertOpen:          {domain.AlertInvestigating, domain.AlertResolved},
	domain.AlertInvestigating: {domain.AlertResolved},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to domain.AlertStatus) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Update is an analyst's change to an alert.
type Update struct {
	Status     domain.AlertStatus `json:"status"`
	AssignedTo string             `json:"assignedTo,omitempty"`
	Notes      string             `json:"notes,omitempty"`
}

// Transition applies u to alert in place.
func Transition(alert *domain.Alert, u Update, now time.Time) error {
	if !u.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, u.Status)
	}
	if !CanTransition(alert.Status, u.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, alert.Status, u.Status)
	}

	alert.Status = u.Status
	if u.AssignedTo != "" {
		alert.AssignedTo = u.AssignedTo
	}
	if u.Notes != "" {
		alert.Notes = u.Notes
	}
	alert.UpdatedAt = now.UTC()
	if u.Status == domain.AlertResolved {
		resolved := now.UTC()
		alert.ResolvedAt = &resolved
	}
	return nil
}
