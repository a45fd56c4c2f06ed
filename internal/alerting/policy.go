// Package alerting decides which reports and networks become alerts and
// enforces the alert status lifecycle.
package alerting

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/finguard/internal/domain"
)

// Policy is a compiled CEL expression over a risk report.
//
// Available variables: score, level, patterns, factor_count, anomaly_count,
// flagged_count, ml_probability (-1 when absent), auto_alert_threshold.
type Policy struct {
	expr      string
	program   cel.Program
	threshold float64
}

// NewPolicy compiles expr. An empty expression uses the default policy.
func NewPolicy(expr string, autoAlertThreshold float64) (*Policy, error) {
	if expr == "" {
		expr = domain.DefaultAlertPolicy
	}

	env, err := cel.NewEnv(
		cel.CrossTypeNumericComparisons(true),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("level", cel.StringType),
		cel.Variable("patterns", cel.MapType(cel.StringType, cel.BoolType)),
		cel.Variable("factor_count", cel.IntType),
		cel.Variable("anomaly_count", cel.IntType),
		cel.Variable("flagged_count", cel.IntType),
		cel.Variable("ml_probability", cel.DoubleType),
		cel.Variable("auto_alert_threshold", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: failed to compile alert policy: %v", domain.ErrInvalidConfig, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("%w: alert policy must return bool, int, or double, got %s", domain.ErrInvalidConfig, outputType)
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create alert policy program: %w", err)
	}

	return &Policy{expr: expr, program: program, threshold: autoAlertThreshold}, nil
}

// Expression returns the policy source.
func (p *Policy) Expression() string { return p.expr }

// Fires reports whether r should raise an alert. Numeric results fire when
// positive.
func (p *Policy) Fires(r *domain.RiskReport) (bool, error) {
	patterns := make(map[string]bool, len(r.Patterns))
	for k, v := range r.Patterns {
		patterns[k] = v
	}
	prob := -1.0
	if r.MLProbability != nil {
		prob = *r.MLProbability
	}

	out, _, err := p.program.Eval(map[string]any{
		"score":                r.RiskScore,
		"level":                string(r.RiskLevel),
		"patterns":             patterns,
		"factor_count":         int64(len(r.RiskFactors)),
		"anomaly_count":        int64(len(r.Anomalies)),
		"flagged_count":        int64(r.FlaggedTransactions),
		"ml_probability":       prob,
		"auto_alert_threshold": p.threshold,
	})
	if err != nil {
		return false, fmt.Errorf("alert policy evaluation error: %w", err)
	}
	return toScore(out) > 0, nil
}

func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1
		}
		return 0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0
	}
}
