// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-finance/underwriter/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveStatement stores a submitted statement. Resubmitting the same
// fingerprint keeps the first copy.
func (r *SQLRepository) SaveStatement(ctx context.Context, tenantID string, stmt *domain.Statement) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if stmt == nil || stmt.Fingerprint == "" {
		return fmt.Errorf("%w: statement fingerprint is required", ErrInvalidInput)
	}

	txs, err := json.Marshal(stmt.Transactions)
	if err != nil {
		return fmt.Errorf("encoding transactions: %w", err)
	}

	createdAt := stmt.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO statements (tenant_id, fingerprint, transactions, tx_count, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, fingerprint) DO NOTHING
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		tenantID, stmt.Fingerprint, string(txs), len(stmt.Transactions), createdAt,
	)
	return err
}

// GetStatement retrieves a statement by fingerprint with tenant isolation.
func (r *SQLRepository) GetStatement(ctx context.Context, tenantID string, fingerprint string) (*domain.Statement, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT tenant_id, fingerprint, transactions, created_at
		FROM statements
		WHERE tenant_id = ? AND fingerprint = ?
	`

	var stmt domain.Statement
	var txs string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, fingerprint).Scan(
		&stmt.TenantID, &stmt.Fingerprint, &txs, &stmt.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(txs), &stmt.Transactions); err != nil {
		return nil, fmt.Errorf("decoding transactions: %w", err)
	}
	return &stmt, nil
}

// SaveEvaluation stores an evaluation result with tenant isolation.
func (r *SQLRepository) SaveEvaluation(ctx context.Context, tenantID string, eval *domain.Evaluation) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if eval == nil || eval.ID == "" {
		return fmt.Errorf("%w: evaluation id is required", ErrInvalidInput)
	}

	summary := eval.Summary()
	metrics, _ := json.Marshal(eval.Metrics)
	scorecard, _ := json.Marshal(eval.Scorecard)
	validation, _ := json.Marshal(eval.Validation)
	alerts, _ := json.Marshal(eval.Alerts)
	metadata, _ := json.Marshal(eval.Metadata)

	query := `
		INSERT INTO evaluations (
			id, tenant_id, fingerprint, score, recommendation, timestamp,
			metrics, scorecard, validation, alerts, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		eval.ID, tenantID, eval.Fingerprint, summary.Score, string(summary.Recommendation), eval.Timestamp,
		string(metrics), string(scorecard), string(validation), string(alerts), string(metadata),
	)
	return err
}

// GetEvaluation retrieves an evaluation by ID with tenant isolation.
func (r *SQLRepository) GetEvaluation(ctx context.Context, tenantID string, evalID string) (*domain.Evaluation, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, fingerprint, timestamp,
			   metrics, scorecard, validation, alerts, metadata
		FROM evaluations
		WHERE tenant_id = ? AND id = ?
	`

	var eval domain.Evaluation
	var metrics, scorecard, validation, alerts, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, evalID).Scan(
		&eval.ID, &eval.TenantID, &eval.Fingerprint, &eval.Timestamp,
		&metrics, &scorecard, &validation, &alerts, &metadata,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	for _, col := range []struct {
		raw string
		dst any
	}{
		{metrics, &eval.Metrics},
		{scorecard, &eval.Scorecard},
		{validation, &eval.Validation},
		{alerts, &eval.Alerts},
		{metadata, &eval.Metadata},
	} {
		if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
			return nil, fmt.Errorf("decoding evaluation %s: %w", evalID, err)
		}
	}

	return &eval, nil
}

// ListEvaluations returns the newest evaluations for a tenant.
// A limit outside (0, 500] falls back to 50.
func (r *SQLRepository) ListEvaluations(ctx context.Context, tenantID string, limit int) ([]domain.EvaluationSummary, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	query := `
		SELECT id, tenant_id, fingerprint, score, recommendation, timestamp
		FROM evaluations
		WHERE tenant_id = ?
		ORDER BY timestamp DESC, id
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []domain.EvaluationSummary{}
	for rows.Next() {
		var s domain.EvaluationSummary
		var rec string
		if err := rows.Scan(&s.ID, &s.TenantID, &s.Fingerprint, &s.Score, &rec, &s.Timestamp); err != nil {
			return nil, err
		}
		s.Recommendation = domain.Recommendation(rec)
		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}

// SaveRedFlagRule stores a tenant override of an expense red-flag rule.
func (r *SQLRepository) SaveRedFlagRule(ctx context.Context, tenantID string, rule *domain.RedFlagRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO red_flag_rules (
			id, tenant_id, name, description, expression, severity, points, max_hits, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			severity = excluded.severity,
			points = excluded.points,
			max_hits = excluded.max_hits,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description, rule.Expression,
		string(rule.Severity), rule.Points, rule.MaxHits, enabled,
		now, now,
	)
	return err
}

// ListRedFlagRules returns every rule override for a tenant, disabled ones
// included so they can switch off a built-in rule.
func (r *SQLRepository) ListRedFlagRules(ctx context.Context, tenantID string) ([]*domain.RedFlagRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, name, description, expression, severity, points, max_hits, enabled
		FROM red_flag_rules
		WHERE tenant_id = ?
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.RedFlagRule
	for rows.Next() {
		var rule domain.RedFlagRule
		var description sql.NullString
		var severity string
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Name, &description, &rule.Expression,
			&severity, &rule.Points, &rule.MaxHits, &enabled,
		); err != nil {
			return nil, err
		}

		rule.Description = description.String
		rule.Severity = domain.Severity(severity)
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, strconv.Itoa(n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
