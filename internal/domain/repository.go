// Package domain defines the core interfaces and types for the underwriter.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Statement operations
	SaveStatement(ctx context.Context, tenantID string, stmt *Statement) error
	GetStatement(ctx context.Context, tenantID string, fingerprint string) (*Statement, error)

	// Evaluation results
	SaveEvaluation(ctx context.Context, tenantID string, eval *Evaluation) error
	GetEvaluation(ctx context.Context, tenantID string, evalID string) (*Evaluation, error)
	ListEvaluations(ctx context.Context, tenantID string, limit int) ([]EvaluationSummary, error)

	// Red-flag rule overrides
	SaveRedFlagRule(ctx context.Context, tenantID string, rule *RedFlagRule) error
	ListRedFlagRules(ctx context.Context, tenantID string) ([]*RedFlagRule, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// Statement is a submitted batch of transactions.
type Statement struct {
	Fingerprint  string        `json:"fingerprint"`
	TenantID     string        `json:"tenantId"`
	Transactions []Transaction `json:"transactions"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `yaml:"driver"`

	// SQLite specific
	SQLitePath string `yaml:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `yaml:"postgresHost"`
	PostgresPort     int    `yaml:"postgresPort"`
	PostgresUser     string `yaml:"postgresUser"`
	PostgresPassword string `yaml:"postgresPassword"`
	PostgresDB       string `yaml:"postgresDb"`
	PostgresSSLMode  string `yaml:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}
