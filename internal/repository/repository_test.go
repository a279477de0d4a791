package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/underwriter/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "underwriter-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() {
		os.Remove(tmpPath)
		os.Remove(tmpPath + "-wal")
		os.Remove(tmpPath + "-shm")
	})

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testEvaluation(id string, score int, rec domain.Recommendation, at time.Time) *domain.Evaluation {
	return &domain.Evaluation{
		ID:          id,
		TenantID:    "tenant-001",
		Fingerprint: "fp-" + id,
		Timestamp:   at,
		Metrics:     &domain.AggregatedMetrics{MonthsAnalyzed: 3},
		Scorecard: &domain.OverallScorecard{
			Score:          score,
			Rating:         domain.RatingFor(score),
			Recommendation: rec,
			Sections:       []domain.SectionScore{},
			RedFlags:       []domain.RedFlagDetail{},
		},
		Validation: domain.ValidationReport{Valid: true, Errors: []string{}, Warnings: []string{"thin history"}},
		Alerts: []domain.StackingAlert{
			{Date: "2025-03-04", Type: domain.StackingTypeStacking, Severity: domain.SeverityHigh, Lenders: []string{"ONDECK"}},
		},
		Metadata: domain.EvaluationMetadata{TransactionCount: 42, EngineVersion: domain.EngineVersion},
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetStatement", func(t *testing.T) {
		bal := 1250.5
		stmt := &domain.Statement{
			Fingerprint: "abc123",
			Transactions: []domain.Transaction{
				{Date: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), Description: "SQUARE DEPOSIT", Amount: 2000, Direction: domain.Credit, RunningBalance: &bal},
				{Date: time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), Description: "RENT", Amount: 4000, Direction: domain.Debit},
			},
			CreatedAt: time.Now().UTC(),
		}

		if err := repo.SaveStatement(ctx, tenantID, stmt); err != nil {
			t.Fatalf("SaveStatement failed: %v", err)
		}
		// Resubmission is a no-op.
		if err := repo.SaveStatement(ctx, tenantID, stmt); err != nil {
			t.Fatalf("SaveStatement resubmit failed: %v", err)
		}

		got, err := repo.GetStatement(ctx, tenantID, "abc123")
		if err != nil {
			t.Fatalf("GetStatement failed: %v", err)
		}
		if got.TenantID != tenantID {
			t.Errorf("expected tenant %s, got %s", tenantID, got.TenantID)
		}
		if len(got.Transactions) != 2 {
			t.Fatalf("expected 2 transactions, got %d", len(got.Transactions))
		}
		if got.Transactions[0].RunningBalance == nil || *got.Transactions[0].RunningBalance != bal {
			t.Errorf("running balance not preserved: %v", got.Transactions[0].RunningBalance)
		}
		if got.Transactions[1].Direction != domain.Debit {
			t.Errorf("expected DEBIT, got %s", got.Transactions[1].Direction)
		}
	})

	t.Run("StatementNotFound", func(t *testing.T) {
		_, err := repo.GetStatement(ctx, tenantID, "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SaveAndGetEvaluation", func(t *testing.T) {
		eval := testEvaluation("eval-001", 82, domain.RecommendApprove, time.Now().UTC())
		if err := repo.SaveEvaluation(ctx, tenantID, eval); err != nil {
			t.Fatalf("SaveEvaluation failed: %v", err)
		}

		got, err := repo.GetEvaluation(ctx, tenantID, "eval-001")
		if err != nil {
			t.Fatalf("GetEvaluation failed: %v", err)
		}
		if got.Scorecard == nil || got.Scorecard.Score != 82 {
			t.Fatalf("scorecard not preserved: %+v", got.Scorecard)
		}
		if got.Scorecard.Recommendation != domain.RecommendApprove {
			t.Errorf("expected APPROVE, got %s", got.Scorecard.Recommendation)
		}
		if got.Metrics == nil || got.Metrics.MonthsAnalyzed != 3 {
			t.Errorf("metrics not preserved: %+v", got.Metrics)
		}
		if len(got.Validation.Warnings) != 1 {
			t.Errorf("expected 1 warning, got %v", got.Validation.Warnings)
		}
		if len(got.Alerts) != 1 || got.Alerts[0].Lenders[0] != "ONDECK" {
			t.Errorf("alerts not preserved: %+v", got.Alerts)
		}
		if got.Metadata.TransactionCount != 42 {
			t.Errorf("expected transaction count 42, got %d", got.Metadata.TransactionCount)
		}
	})

	t.Run("ListEvaluationsNewestFirst", func(t *testing.T) {
		base := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
		for i, rec := range []domain.Recommendation{domain.RecommendDecline, domain.RecommendManualReview} {
			eval := testEvaluation("eval-list-"+string(rune('a'+i)), 40+i*15, rec, base.Add(time.Duration(i)*time.Hour))
			if err := repo.SaveEvaluation(ctx, tenantID, eval); err != nil {
				t.Fatalf("SaveEvaluation failed: %v", err)
			}
		}

		list, err := repo.ListEvaluations(ctx, tenantID, 2)
		if err != nil {
			t.Fatalf("ListEvaluations failed: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("expected 2 summaries, got %d", len(list))
		}
		if list[0].ID != "eval-list-b" || list[0].Recommendation != domain.RecommendManualReview {
			t.Errorf("expected newest first, got %+v", list[0])
		}
		if list[1].Score != 40 {
			t.Errorf("expected score 40, got %d", list[1].Score)
		}

		all, err := repo.ListEvaluations(ctx, tenantID, 0)
		if err != nil {
			t.Fatalf("ListEvaluations failed: %v", err)
		}
		if len(all) != 3 {
			t.Errorf("expected 3 summaries with default limit, got %d", len(all))
		}
	})

	t.Run("RedFlagRules", func(t *testing.T) {
		rule := &domain.RedFlagRule{
			ID:         "GAMBLING",
			Name:       "Gambling",
			Expression: `description.contains("CASINO")`,
			Severity:   domain.SeverityHigh,
			Points:     15,
			MaxHits:    2,
			Enabled:    true,
		}
		if err := repo.SaveRedFlagRule(ctx, tenantID, rule); err != nil {
			t.Fatalf("SaveRedFlagRule failed: %v", err)
		}

		rule.Enabled = false
		rule.Points = 5
		if err := repo.SaveRedFlagRule(ctx, tenantID, rule); err != nil {
			t.Fatalf("SaveRedFlagRule update failed: %v", err)
		}

		rules, err := repo.ListRedFlagRules(ctx, tenantID)
		if err != nil {
			t.Fatalf("ListRedFlagRules failed: %v", err)
		}
		if len(rules) != 1 {
			t.Fatalf("expected 1 rule, got %d", len(rules))
		}
		if rules[0].Enabled || rules[0].Points != 5 {
			t.Errorf("update not applied: %+v", rules[0])
		}
		if rules[0].Severity != domain.SeverityHigh {
			t.Errorf("expected HIGH, got %s", rules[0].Severity)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		if _, err := repo.GetEvaluation(ctx, "tenant-002", "eval-001"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound across tenants, got %v", err)
		}
		if _, err := repo.GetStatement(ctx, "tenant-002", "abc123"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound across tenants, got %v", err)
		}
		list, err := repo.ListEvaluations(ctx, "tenant-002", 10)
		if err != nil {
			t.Fatalf("ListEvaluations failed: %v", err)
		}
		if len(list) != 0 {
			t.Errorf("expected no summaries for tenant-002, got %d", len(list))
		}
	})

	t.Run("TenantRequired", func(t *testing.T) {
		if err := repo.SaveStatement(ctx, "", &domain.Statement{Fingerprint: "x"}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if _, err := repo.GetEvaluation(ctx, "", "eval-001"); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if _, err := repo.ListRedFlagRules(ctx, ""); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("MissingIdentifiers", func(t *testing.T) {
		if err := repo.SaveEvaluation(ctx, tenantID, &domain.Evaluation{}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if err := repo.SaveRedFlagRule(ctx, tenantID, &domain.RedFlagRule{}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	if _, err := New(domain.RepositoryConfig{Driver: "oracle"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLRepository{driver: "postgres"}
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Errorf("unexpected postgres rebind: %s", got)
	}
	lite := &SQLRepository{driver: "sqlite"}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite query should be unchanged: %s", got)
	}
}
