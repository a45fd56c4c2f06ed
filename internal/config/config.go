// Package config loads FinGuard configuration from defaults, an optional
// .env file, an optional YAML file and FINGUARD_* environment variables, in
// that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/opensource-finance/finguard/internal/domain"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FINGUARD_"

// Load builds and validates the configuration. An empty path skips the
// YAML file. Invalid values are rejected here, never mid-computation.
func Load(path string) (*domain.Config, error) {
	if err := loadDotEnv(os.Getenv(EnvPrefix + "ENV_FILE")); err != nil {
		return nil, err
	}

	cfg := domain.DefaultConfig()
	if os.Getenv(EnvPrefix+"TIER") == string(domain.TierPro) {
		cfg = domain.ProConfig()
	}

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads name (default .env) when it exists. Variables already
// set in the process environment win.
func loadDotEnv(name string) error {
	if name == "" {
		name = ".env"
	}
	if _, err := os.Stat(name); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(name); err != nil {
		return fmt.Errorf("failed to load %s: %w", name, err)
	}
	slog.Debug("loaded environment file", "path", name)
	return nil
}

// loadFile overlays a YAML file on cfg. ${VAR} references are expanded.
func loadFile(path string, cfg *domain.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return fmt.Errorf("%w: failed to parse %s: %v", domain.ErrInvalidConfig, path, err)
	}
	return nil
}

// Validate checks the whole configuration.
func Validate(cfg *domain.Config) error {
	if err := cfg.Detection.Validate(); err != nil {
		return err
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d out of range", domain.ErrInvalidConfig, cfg.Server.Port)
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1", domain.ErrInvalidConfig)
	}
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: unsupported repository driver %q", domain.ErrInvalidConfig, cfg.Repository.Driver)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

type override struct {
	key string
	set func(cfg *domain.Config, v string) error
}

var overrides = []override{
	{"PORT", intVar(func(c *domain.Config) *int { return &c.Server.Port })},
	{"WORKERS", intVar(func(c *domain.Config) *int { return &c.Workers })},
	{"ALERT_POLICY", stringVar(func(c *domain.Config) *string { return &c.AlertPolicy })},

	{"DB_DRIVER", stringVar(func(c *domain.Config) *string { return &c.Repository.Driver })},
	{"SQLITE_PATH", stringVar(func(c *domain.Config) *string { return &c.Repository.SQLitePath })},
	{"POSTGRES_HOST", stringVar(func(c *domain.Config) *string { return &c.Repository.PostgresHost })},
	{"POSTGRES_PORT", intVar(func(c *domain.Config) *int { return &c.Repository.PostgresPort })},
	{"POSTGRES_USER", stringVar(func(c *domain.Config) *string { return &c.Repository.PostgresUser })},
	{"POSTGRES_PASSWORD", stringVar(func(c *domain.Config) *string { return &c.Repository.PostgresPassword })},
	{"POSTGRES_DB", stringVar(func(c *domain.Config) *string { return &c.Repository.PostgresDB })},
	{"POSTGRES_SSLMODE", stringVar(func(c *domain.Config) *string { return &c.Repository.PostgresSSLMode })},

	{"CACHE_TYPE", stringVar(func(c *domain.Config) *string { return &c.Cache.Type })},
	{"REDIS_ADDR", stringVar(func(c *domain.Config) *string { return &c.Cache.RedisAddr })},
	{"REDIS_PASSWORD", stringVar(func(c *domain.Config) *string { return &c.Cache.RedisPassword })},
	{"REPORT_TTL", durationVar(func(c *domain.Config) *time.Duration { return &c.Cache.ReportTTL })},

	{"BUS_TYPE", stringVar(func(c *domain.Config) *string { return &c.EventBus.Type })},
	{"NATS_URL", stringVar(func(c *domain.Config) *string { return &c.EventBus.NATSUrl })},
	{"NATS_TOKEN", stringVar(func(c *domain.Config) *string { return &c.EventBus.NATSToken })},
	{"NATS_QUEUE_GROUP", stringVar(func(c *domain.Config) *string { return &c.EventBus.NATSQueueGroup })},

	{"REPORTING_THRESHOLD", floatVar(func(c *domain.Config) *float64 { return &c.Detection.ReportingThreshold })},
	{"SUSPICIOUS_AMOUNT_THRESHOLD", floatVar(func(c *domain.Config) *float64 { return &c.Detection.SuspiciousAmountThreshold })},
	{"MAX_DAILY_TRANSACTIONS", intVar(func(c *domain.Config) *int { return &c.Detection.MaxDailyTransactions })},
	{"MAX_LINKED_ACCOUNTS", intVar(func(c *domain.Config) *int { return &c.Detection.MaxLinkedAccounts })},
	{"RISK_MEDIUM", floatVar(func(c *domain.Config) *float64 { return &c.Detection.RiskThresholds.Medium })},
	{"RISK_HIGH", floatVar(func(c *domain.Config) *float64 { return &c.Detection.RiskThresholds.High })},
	{"RISK_CRITICAL", floatVar(func(c *domain.Config) *float64 { return &c.Detection.RiskThresholds.Critical })},
	{"MIN_CLUSTER_SIZE", intVar(func(c *domain.Config) *int { return &c.Detection.MinClusterSize })},
	{"MIN_COMMON_BENEFICIARIES", intVar(func(c *domain.Config) *int { return &c.Detection.MinCommonBeneficiaries })},
	{"NETWORK_COMPLEXITY_THRESHOLD", floatVar(func(c *domain.Config) *float64 { return &c.Detection.NetworkComplexityThreshold })},
	{"AUTO_ALERT_THRESHOLD", floatVar(func(c *domain.Config) *float64 { return &c.Detection.AutoAlertThreshold })},
	{"LOCATION", stringVar(func(c *domain.Config) *string { return &c.Detection.Location })},

	{"LOG_LEVEL", stringVar(func(c *domain.Config) *string { return &c.Logging.Level })},
	{"LOG_FORMAT", stringVar(func(c *domain.Config) *string { return &c.Logging.Format })},
	{"TRACING", boolVar(func(c *domain.Config) *bool { return &c.Tracing.Enabled })},
	{"SERVICE_NAME", stringVar(func(c *domain.Config) *string { return &c.Tracing.ServiceName })},
}

func applyEnv(cfg *domain.Config, lookup lookupFunc) error {
	for _, o := range overrides {
		v, ok := lookup(EnvPrefix + o.key)
		if !ok || v == "" {
			continue
		}
		if err := o.set(cfg, v); err != nil {
			return fmt.Errorf("%w: %s%s: %v", domain.ErrInvalidConfig, EnvPrefix, o.key, err)
		}
	}
	return nil
}

func stringVar(field func(*domain.Config) *string) func(*domain.Config, string) error {
	return func(c *domain.Config, v string) error {
		*field(c) = v
		return nil
	}
}

func intVar(field func(*domain.Config) *int) func(*domain.Config, string) error {
	return func(c *domain.Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func floatVar(field func(*domain.Config) *float64) func(*domain.Config, string) error {
	return func(c *domain.Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}
}

func boolVar(field func(*domain.Config) *bool) func(*domain.Config, string) error {
	return func(c *domain.Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func durationVar(field func(*domain.Config) *time.Duration) func(*domain.Config, string) error {
	return func(c *domain.Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}
