package domain

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// ErrInvalidConfig is returned when configuration values are out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete FinGuard configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" yaml:"server"`

	// Tier determines which collaborators are wired
	Tier Tier `json:"tier" yaml:"tier"`

	// Detection holds every tunable of the detection engine.
	Detection DetectionConfig `json:"detection" yaml:"detection"`

	// AlertPolicy is a CEL expression deciding whether a report raises an alert.
	AlertPolicy string `json:"alertPolicy" yaml:"alert_policy"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" yaml:"repository"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" yaml:"event_bus"`

	// Batch concurrency for population-wide runs.
	Workers int `json:"workers" yaml:"workers"`

	// Observability
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	ReadTimeout  int    `json:"readTimeout" yaml:"read_timeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" yaml:"write_timeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ServiceName string `json:"serviceName" yaml:"service_name"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs with SQLite + channels + in-memory cache
	TierCommunity Tier = "community"

	// TierPro runs with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DetectionConfig holds the thresholds and weights of the detection engine.
// Every value is externally settable; defaults come from DefaultDetectionConfig.
type DetectionConfig struct {
	// ReportingThreshold is the amount above which a single transaction
	// triggers mandatory reporting.
	ReportingThreshold        float64 `json:"reportingThreshold" yaml:"reporting_threshold"`
	SuspiciousAmountThreshold float64 `json:"suspiciousAmountThreshold" yaml:"suspicious_amount_threshold"`
	MaxDailyTransactions      int     `json:"maxDailyTransactions" yaml:"max_daily_transactions"`
	MaxLinkedAccounts         int     `json:"maxLinkedAccounts" yaml:"max_linked_accounts"`

	RiskThresholds RiskThresholds `json:"riskThresholds" yaml:"risk_thresholds"`

	MinClusterSize int `json:"minClusterSize" yaml:"min_cluster_size"`
	// MinCommonBeneficiaries is the candidate sensitivity knob: a component
	// is kept when it shares at least this many beneficiaries or shows
	// cross-account structuring.
	MinCommonBeneficiaries     int     `json:"minCommonBeneficiaries" yaml:"min_common_beneficiaries"`
	NetworkComplexityThreshold float64 `json:"networkComplexityThreshold" yaml:"network_complexity_threshold"`
	AutoAlertThreshold         float64 `json:"autoAlertThreshold" yaml:"auto_alert_threshold"`

	Timing  TimingConfig         `json:"timing" yaml:"timing"`
	Rapid   RapidConfig          `json:"rapid" yaml:"rapid"`
	Scoring ScoringConfig        `json:"scoring" yaml:"scoring"`
	Network NetworkScoringConfig `json:"network" yaml:"network"`

	// Location is the IANA zone used to derive calendar dates and hours.
	// Empty or "Local" uses the process zone.
	Location string `json:"location" yaml:"location"`
}

// RiskThresholds are the lower bounds of the MEDIUM, HIGH and CRITICAL
// levels. Scores below Medium are LOW.
type RiskThresholds struct {
	Medium   float64 `json:"medium" yaml:"medium"`
	High     float64 `json:"high" yaml:"high"`
	Critical float64 `json:"critical" yaml:"critical"`
}

// Level maps a score to its risk level.
func (t RiskThresholds) Level(score float64) RiskLevel {
	switch {
	case score >= t.Critical:
		return RiskCritical
	case score >= t.High:
		return RiskHigh
	case score >= t.Medium:
		return RiskMedium
	default:
		return RiskLow
	}
}

// TimingConfig tunes the unusual-timing detector.
type TimingConfig struct {
	MinTransactions int     `json:"minTransactions" yaml:"min_transactions"`
	NightStartHour  int     `json:"nightStartHour" yaml:"night_start_hour"` // inclusive
	NightEndHour    int     `json:"nightEndHour" yaml:"night_end_hour"`     // inclusive
	NightRatio      float64 `json:"nightRatio" yaml:"night_ratio"`
	WeekendRatio    float64 `json:"weekendRatio" yaml:"weekend_ratio"`
}

// RapidConfig tunes the rapid-succession detector.
type RapidConfig struct {
	Window time.Duration `json:"window" yaml:"window"`
	Count  int           `json:"count" yaml:"count"`
}

// ScoringConfig holds the weights and thresholds of the customer risk score.
type ScoringConfig struct {
	IncomeRatioThreshold  float64 `json:"incomeRatioThreshold" yaml:"income_ratio_threshold"`
	IncomeRatioMultiplier float64 `json:"incomeRatioMultiplier" yaml:"income_ratio_multiplier"`
	IncomeMismatchCap     float64 `json:"incomeMismatchCap" yaml:"income_mismatch_cap"`

	StructuringWeight    float64 `json:"structuringWeight" yaml:"structuring_weight"`
	LinkedAccountsWeight float64 `json:"linkedAccountsWeight" yaml:"linked_accounts_weight"`

	InternationalCountThreshold int     `json:"internationalCountThreshold" yaml:"international_count_threshold"`
	InternationalWeight         float64 `json:"internationalWeight" yaml:"international_weight"`

	UnusualTimingWeight     float64 `json:"unusualTimingWeight" yaml:"unusual_timing_weight"`
	NetworkComplexityWeight float64 `json:"networkComplexityWeight" yaml:"network_complexity_weight"`

	LargeTransactionCountThreshold int     `json:"largeTransactionCountThreshold" yaml:"large_transaction_count_threshold"`
	LargeTransactionWeight         float64 `json:"largeTransactionWeight" yaml:"large_transaction_weight"`

	RapidSuccessionWeight float64 `json:"rapidSuccessionWeight" yaml:"rapid_succession_weight"`

	KYCRejectedWeight float64 `json:"kycRejectedWeight" yaml:"kyc_rejected_weight"`
	KYCPendingWeight  float64 `json:"kycPendingWeight" yaml:"kyc_pending_weight"`

	NewAccountDays   int     `json:"newAccountDays" yaml:"new_account_days"`
	NewAccountWeight float64 `json:"newAccountWeight" yaml:"new_account_weight"`

	MaxScore float64 `json:"maxScore" yaml:"max_score"`
}

// NetworkScoringConfig holds the tiers of the component risk score.
type NetworkScoringConfig struct {
	VolumeHigh         float64 `json:"volumeHigh" yaml:"volume_high"`
	VolumeHighWeight   float64 `json:"volumeHighWeight" yaml:"volume_high_weight"`
	VolumeMedium       float64 `json:"volumeMedium" yaml:"volume_medium"`
	VolumeMediumWeight float64 `json:"volumeMediumWeight" yaml:"volume_medium_weight"`
	VolumeLow          float64 `json:"volumeLow" yaml:"volume_low"`
	VolumeLowWeight    float64 `json:"volumeLowWeight" yaml:"volume_low_weight"`

	CountHigh         int     `json:"countHigh" yaml:"count_high"`
	CountHighWeight   float64 `json:"countHighWeight" yaml:"count_high_weight"`
	CountMedium       int     `json:"countMedium" yaml:"count_medium"`
	CountMediumWeight float64 `json:"countMediumWeight" yaml:"count_medium_weight"`

	StructuringWeight float64 `json:"structuringWeight" yaml:"structuring_weight"`
}

// DefaultDetectionConfig returns the engine defaults.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		ReportingThreshold:        900000,  // 9 lakh
		SuspiciousAmountThreshold: 1000000, // 10 lakh
		MaxDailyTransactions:      10,
		MaxLinkedAccounts:         5,
		RiskThresholds: RiskThresholds{
			Medium:   30,
			High:     60,
			Critical: 80,
		},
		MinClusterSize:             3,
		MinCommonBeneficiaries:     1,
		NetworkComplexityThreshold: 0.7,
		AutoAlertThreshold:         70,
		Timing: TimingConfig{
			MinTransactions: 5,
			NightStartHour:  22,
			NightEndHour:    6,
			NightRatio:      0.30,
			WeekendRatio:    0.80,
		},
		Rapid: RapidConfig{
			Window: time.Hour,
			Count:  3,
		},
		Scoring: ScoringConfig{
			IncomeRatioThreshold:           2,
			IncomeRatioMultiplier:          10,
			IncomeMismatchCap:              25,
			StructuringWeight:              20,
			LinkedAccountsWeight:           15,
			InternationalCountThreshold:    10,
			InternationalWeight:            15,
			UnusualTimingWeight:            10,
			NetworkComplexityWeight:        15,
			LargeTransactionCountThreshold: 5,
			LargeTransactionWeight:         12,
			RapidSuccessionWeight:          8,
			KYCRejectedWeight:              20,
			KYCPendingWeight:               5,
			NewAccountDays:                 30,
			NewAccountWeight:               5,
			MaxScore:                       100,
		},
		Network: NetworkScoringConfig{
			VolumeHigh:         10000000, // 1 crore
			VolumeHighWeight:   30,
			VolumeMedium:       5000000,
			VolumeMediumWeight: 20,
			VolumeLow:          1000000,
			VolumeLowWeight:    10,
			CountHigh:          100,
			CountHighWeight:    20,
			CountMedium:        50,
			CountMediumWeight:  10,
			StructuringWeight:  25,
		},
		Location: "Local",
	}
}

// TimeLocation resolves the configured zone.
func (c DetectionConfig) TimeLocation() (*time.Location, error) {
	if c.Location == "" || c.Location == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return nil, fmt.Errorf("%w: location %q: %v", ErrInvalidConfig, c.Location, err)
	}
	return loc, nil
}

// Validate rejects values that would make detection meaningless.
func (c DetectionConfig) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(positive(c.ReportingThreshold), "reporting threshold must be positive")
	check(positive(c.SuspiciousAmountThreshold), "suspicious amount threshold must be positive")
	check(c.MaxDailyTransactions >= 1, "max daily transactions must be at least 1")
	check(c.MaxLinkedAccounts >= 0, "max linked accounts must not be negative")

	rt := c.RiskThresholds
	check(rt.Medium > 0 && rt.Medium < rt.High && rt.High < rt.Critical && rt.Critical <= 100,
		"risk thresholds must satisfy 0 < medium < high < critical <= 100 (got %.0f/%.0f/%.0f)", rt.Medium, rt.High, rt.Critical)

	check(c.MinClusterSize >= 2, "min cluster size must be at least 2")
	check(c.MinCommonBeneficiaries >= 0, "min common beneficiaries must not be negative")
	check(unit(c.NetworkComplexityThreshold), "network complexity threshold must be within [0,1]")
	check(c.AutoAlertThreshold >= 0 && c.AutoAlertThreshold <= 100, "auto alert threshold must be within [0,100]")

	t := c.Timing
	check(t.MinTransactions >= 1, "timing min transactions must be at least 1")
	check(hour(t.NightStartHour) && hour(t.NightEndHour), "night hours must be within [0,23]")
	check(unit(t.NightRatio) && unit(t.WeekendRatio), "timing ratios must be within [0,1]")

	check(c.Rapid.Window > 0, "rapid succession window must be positive")
	check(c.Rapid.Count >= 2, "rapid succession count must be at least 2")

	s := c.Scoring
	check(s.IncomeRatioThreshold >= 0, "income ratio threshold must not be negative")
	check(s.InternationalCountThreshold >= 0 && s.LargeTransactionCountThreshold >= 0, "count thresholds must not be negative")
	check(s.NewAccountDays >= 0, "new account days must not be negative")
	check(s.MaxScore > 0 && s.MaxScore <= 100, "max score must be within (0,100]")
	for name, w := range map[string]float64{
		"income multiplier":  s.IncomeRatioMultiplier,
		"income cap":         s.IncomeMismatchCap,
		"structuring":        s.StructuringWeight,
		"linked accounts":    s.LinkedAccountsWeight,
		"international":      s.InternationalWeight,
		"unusual timing":     s.UnusualTimingWeight,
		"network complexity": s.NetworkComplexityWeight,
		"large transactions": s.LargeTransactionWeight,
		"rapid succession":   s.RapidSuccessionWeight,
		"kyc rejected":       s.KYCRejectedWeight,
		"kyc pending":        s.KYCPendingWeight,
		"new account":        s.NewAccountWeight,
	} {
		check(w >= 0 && !math.IsInf(w, 0), "%s weight must not be negative", name)
	}

	n := c.Network
	check(n.VolumeLow >= 0 && n.VolumeLow <= n.VolumeMedium && n.VolumeMedium <= n.VolumeHigh,
		"network volume tiers must satisfy 0 <= low <= medium <= high")
	check(n.CountMedium >= 0 && n.CountMedium <= n.CountHigh, "network count tiers must satisfy 0 <= medium <= high")
	check(n.VolumeLowWeight >= 0 && n.VolumeMediumWeight >= 0 && n.VolumeHighWeight >= 0 &&
		n.CountMediumWeight >= 0 && n.CountHighWeight >= 0 && n.StructuringWeight >= 0,
		"network weights must not be negative")

	if _, err := c.TimeLocation(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		// Weights are checked from a map; sort to keep the message stable.
		sort.Strings(problems)
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func positive(v float64) bool { return v > 0 && !math.IsInf(v, 0) }
func unit(v float64) bool     { return v >= 0 && v <= 1 }
func hour(h int) bool         { return h >= 0 && h <= 23 }

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier:        TierCommunity,
		Detection:   DefaultDetectionConfig(),
		AlertPolicy: DefaultAlertPolicy,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./finguard.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			ReportTTL:    10 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Workers: 8,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "finguard",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "finguard",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		ReportTTL:      10 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}

// DefaultAlertPolicy raises an alert when the score reaches the auto-alert threshold.
const DefaultAlertPolicy = "score >= auto_alert_threshold"
