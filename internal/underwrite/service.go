// Package underwrite runs the full statement pipeline: preparation,
// aggregation, stacking detection, scoring, validation, persistence and
// caching.
package underwrite

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/underwriter/internal/aggregator"
	"github.com/opensource-finance/underwriter/internal/classifier"
	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/rules"
	"github.com/opensource-finance/underwriter/internal/scorecard"
	"github.com/opensource-finance/underwriter/internal/stacking"
)

var (
	// ErrNoTransactions is returned when nothing survives preparation.
	ErrNoTransactions = errors.New("no usable transactions")

	// ErrNoRepository is returned by lookups when persistence is disabled.
	ErrNoRepository = errors.New("repository not available")

	// ErrTenantRequired is returned when a call carries no tenant.
	ErrTenantRequired = errors.New("tenantID is required")

	// ErrInvalidRule is returned when a red-flag expression does not compile.
	ErrInvalidRule = errors.New("invalid red-flag rule")
)

var tracer = otel.Tracer("underwriter-service")

// Service evaluates statements for tenants.
type Service struct {
	repo   domain.Repository
	cache  domain.Cache
	base   []domain.RedFlagRule
	engine *scorecard.Engine
	ttl    time.Duration

	// engines holds compiled override rule sets keyed by digest.
	enginesMu sync.Mutex
	engines   map[string]*scorecard.Engine
}

// Options configures a Service. Repo and Cache are optional.
type Options struct {
	Repo  domain.Repository
	Cache domain.Cache

	// RedFlagRules replaces the built-in expense rules when non-empty.
	RedFlagRules []domain.RedFlagRule

	// EvaluationTTL is how long scored statements stay cached.
	EvaluationTTL time.Duration
}

// NewService builds a service and compiles its base red-flag rules.
func NewService(opts Options) (*Service, error) {
	base := opts.RedFlagRules
	if len(base) == 0 {
		base = rules.BuiltinRules()
	}

	engine, err := newScorecardEngine(base)
	if err != nil {
		return nil, fmt.Errorf("compiling red-flag rules: %w", err)
	}

	ttl := opts.EvaluationTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &Service{
		repo:   opts.Repo,
		cache:  opts.Cache,
		base:   base,
		engine:  engine,
		ttl:     ttl,
		engines: make(map[string]*scorecard.Engine),
	}, nil
}

func newScorecardEngine(set []domain.RedFlagRule) (*scorecard.Engine, error) {
	re, err := rules.NewEngine(0)
	if err != nil {
		return nil, err
	}
	if err := re.LoadRules(set); err != nil {
		return nil, err
	}
	return scorecard.NewEngine(re), nil
}

// Evaluate scores a statement. A statement already scored for the tenant
// under the same rules is served from the cache.
func (s *Service) Evaluate(ctx context.Context, tenantID string, txs []domain.Transaction) (*domain.Evaluation, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	start := time.Now()

	ctx, span := tracer.Start(ctx, "underwrite.Evaluate",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.Int("transactions", len(txs)),
		),
	)
	defer span.End()

	_, prepSpan := tracer.Start(ctx, "underwrite.Prepare")
	prepared := aggregator.Prepare(txs)
	prepSpan.End()
	if len(prepared) == 0 {
		return nil, ErrNoTransactions
	}
	prepareMs := time.Since(start).Milliseconds()

	fp, err := Fingerprint(prepared)
	if err != nil {
		return nil, err
	}

	engine, ruleKey := s.engineFor(ctx, tenantID)
	cacheKey := fp + ruleKey

	if eval := s.cached(ctx, tenantID, cacheKey); eval != nil {
		eval.Metadata.Cached = true
		span.SetAttributes(attribute.Bool("cached", true))
		return eval, nil
	}

	scoreStart := time.Now()
	scoreCtx, scoreSpan := tracer.Start(ctx, "underwrite.Score")
	m := aggregator.AggregateClassified(prepared)
	events := stacking.Detect(prepared)
	sc, err := engine.Evaluate(scoreCtx, m, prepared, events)
	scoreSpan.End()
	if err != nil {
		return nil, fmt.Errorf("scoring statement: %w", err)
	}
	scoreMs := time.Since(scoreStart).Milliseconds()

	eval := &domain.Evaluation{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		Fingerprint: fp,
		Timestamp:   time.Now().UTC(),
		Metrics:     m,
		Scorecard:   sc,
		Validation:  scorecard.Validate(m, sc),
		Alerts:      stacking.Alerts(events),
		Metadata: domain.EvaluationMetadata{
			TraceID:          traceID(ctx, span),
			TransactionCount: len(txs),
			PreparedCount:    len(prepared),
			PrepareMs:        prepareMs,
			ScoreMs:          scoreMs,
			EngineVersion:    domain.EngineVersion,
		},
	}
	eval.Metadata.TotalMs = time.Since(start).Milliseconds()

	span.SetAttributes(
		attribute.Int("score", sc.Score),
		attribute.String("recommendation", string(sc.Recommendation)),
	)

	s.persist(ctx, tenantID, txs, eval)
	if s.cache != nil {
		if err := s.cache.SetEvaluation(ctx, tenantID, cacheKey, eval, s.ttl); err != nil {
			slog.Warn("failed to cache evaluation", "evaluation_id", eval.ID, "error", err)
		}
	}

	if !eval.Validation.Valid {
		slog.Warn("scorecard failed validation",
			"evaluation_id", eval.ID,
			"tenant_id", tenantID,
			"errors", eval.Validation.Errors,
		)
	}

	slog.Info("statement evaluated",
		"evaluation_id", eval.ID,
		"tenant_id", tenantID,
		"score", sc.Score,
		"recommendation", sc.Recommendation,
		"transactions", len(txs),
		"duration_ms", eval.Metadata.TotalMs,
	)

	return eval, nil
}

func (s *Service) cached(ctx context.Context, tenantID, key string) *domain.Evaluation {
	if s.cache == nil {
		return nil
	}
	eval, err := s.cache.GetEvaluation(ctx, tenantID, key)
	if err != nil {
		slog.Warn("failed to read cached evaluation", "tenant_id", tenantID, "error", err)
		return nil
	}
	return eval
}

// persist stores the statement and its evaluation. Failures are logged so
// that scoring still succeeds without a database.
func (s *Service) persist(ctx context.Context, tenantID string, txs []domain.Transaction, eval *domain.Evaluation) {
	if s.repo == nil {
		return
	}
	stmt := &domain.Statement{
		Fingerprint:  eval.Fingerprint,
		TenantID:     tenantID,
		Transactions: txs,
		CreatedAt:    eval.Timestamp,
	}
	if err := s.repo.SaveStatement(ctx, tenantID, stmt); err != nil {
		slog.Error("failed to save statement", "fingerprint", eval.Fingerprint, "error", err)
	}
	if err := s.repo.SaveEvaluation(ctx, tenantID, eval); err != nil {
		slog.Error("failed to save evaluation", "evaluation_id", eval.ID, "error", err)
	}
}

// Get returns a stored evaluation.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*domain.Evaluation, error) {
	if s.repo == nil {
		return nil, ErrNoRepository
	}
	return s.repo.GetEvaluation(ctx, tenantID, id)
}

// List returns the newest stored evaluations for a tenant.
func (s *Service) List(ctx context.Context, tenantID string, limit int) ([]domain.EvaluationSummary, error) {
	if s.repo == nil {
		return nil, ErrNoRepository
	}
	return s.repo.ListEvaluations(ctx, tenantID, limit)
}

// Aggregate prepares txs and returns their monthly metrics.
func (s *Service) Aggregate(txs []domain.Transaction) (*domain.AggregatedMetrics, error) {
	m := aggregator.Aggregate(txs)
	if m == nil {
		return nil, ErrNoTransactions
	}
	return m, nil
}

// Stacking returns the debt-stacking alerts found in txs.
func (s *Service) Stacking(txs []domain.Transaction) []domain.StackingAlert {
	return stacking.Alerts(stacking.Detect(aggregator.Prepare(txs)))
}

// Classify classifies every row as submitted, without filtering or
// deduplication.
func (s *Service) Classify(txs []domain.Transaction) []domain.ClassifiedTransaction {
	out := make([]domain.ClassifiedTransaction, len(txs))
	for i := range txs {
		out[i] = domain.ClassifiedTransaction{
			Transaction:    txs[i],
			Classification: classifier.Classify(&txs[i]),
		}
	}
	return out
}

// Validate checks metrics and an optional scorecard for consistency.
func (s *Service) Validate(m *domain.AggregatedMetrics, sc *domain.OverallScorecard) domain.ValidationReport {
	return scorecard.Validate(m, sc)
}

// Fingerprint identifies a prepared statement: the hex SHA-256 of its
// canonical JSON encoding.
func Fingerprint(prepared []domain.ClassifiedTransaction) (string, error) {
	data, err := json.Marshal(prepared)
	if err != nil {
		return "", fmt.Errorf("fingerprinting statement: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

type traceKey struct{}

// WithTraceID carries a request trace ID into Evaluate.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func traceID(ctx context.Context, span trace.Span) string {
	if id, ok := ctx.Value(traceKey{}).(string); ok && id != "" {
		return id
	}
	if sc := span.SpanContext(); sc.TraceID().IsValid() {
		return sc.TraceID().String()
	}
	return uuid.New().String()
}
