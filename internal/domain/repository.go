// Package domain defines the core types and collaborator interfaces for FinGuard.
package domain

import (
	"context"
	"time"
)

// Repository defines the storage collaborator. The detection engine never
// calls it; the service shell uses it to load inputs and persist outputs.
type Repository interface {
	// Customer operations
	SaveCustomer(ctx context.Context, c *Customer) error
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)
	ListCustomers(ctx context.Context) ([]*Customer, error)
	UpdateCustomerRiskScore(ctx context.Context, customerID string, score float64) error

	// Transaction operations
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)
	GetTransactionsByCustomer(ctx context.Context, customerID string, since time.Time) ([]*Transaction, error)
	ListTransactions(ctx context.Context, since time.Time) ([]*Transaction, error)

	// Engine outputs
	SaveReport(ctx context.Context, report *RiskReport) error
	GetReport(ctx context.Context, reportID string) (*RiskReport, error)
	SaveNetwork(ctx context.Context, network *SmurfNetwork) error
	GetNetwork(ctx context.Context, networkID string) (*SmurfNetwork, error)

	// Alerts
	SaveAlert(ctx context.Context, alert *Alert) error
	GetAlert(ctx context.Context, alertID string) (*Alert, error)
	ListAlerts(ctx context.Context, status AlertStatus) ([]*Alert, error)
	UpdateAlert(ctx context.Context, alert *Alert) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" yaml:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" yaml:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" yaml:"postgres_host"`
	PostgresPort     int    `json:"postgresPort" yaml:"postgres_port"`
	PostgresUser     string `json:"postgresUser" yaml:"postgres_user"`
	PostgresPassword string `json:"-" yaml:"postgres_password"`
	PostgresDB       string `json:"postgresDb" yaml:"postgres_db"`
	PostgresSSLMode  string `json:"postgresSslMode" yaml:"postgres_ssl_mode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"conn_max_lifetime"`
}
