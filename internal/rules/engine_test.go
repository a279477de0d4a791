package rules

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/underwriter/internal/domain"
)

func debit(desc string, amount float64, category domain.Category) domain.ClassifiedTransaction {
	return domain.ClassifiedTransaction{
		Transaction: domain.Transaction{
			Date:        time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
			Description: desc,
			Amount:      amount,
			Direction:   domain.Debit,
		},
		Classification: domain.Classification{Domain: domain.DomainExpense, Category: category},
	}
}

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine(5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.RulesCount())
	}
}

func TestBuiltinRulesCompile(t *testing.T) {
	engine, err := NewDefaultEngine()
	if err != nil {
		t.Fatalf("builtin rules failed to load: %v", err)
	}
	defer engine.Close()

	if engine.RulesCount() != len(BuiltinRules()) {
		t.Errorf("expected %d rules, got %d", len(BuiltinRules()), engine.RulesCount())
	}
}

func TestLoadInvalidRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	err := engine.LoadRules([]domain.RedFlagRule{{
		ID:         "invalid-rule",
		Expression: "this is not valid CEL !!!",
		Enabled:    true,
	}})
	if err == nil {
		t.Error("expected error for invalid CEL expression")
	}
}

func TestLoadNonBoolRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	err := engine.ValidateRule(&domain.RedFlagRule{ID: "score", Expression: "amount * 2.0"})
	if err == nil {
		t.Error("expected error for non-bool expression")
	}
}

func TestDisabledRulesSkipped(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	err := engine.LoadRules([]domain.RedFlagRule{
		{ID: "on", Expression: "amount > 1.0", Points: 5, Enabled: true},
		{ID: "off", Expression: "amount > 1.0", Points: 5, Enabled: false},
	})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule, got %d", engine.RulesCount())
	}
}

func TestEvaluateBuiltinRules(t *testing.T) {
	engine, _ := NewDefaultEngine()
	defer engine.Close()

	rows := []domain.ClassifiedTransaction{
		debit("DRAFTKINGS SPORTSBOOK", 200, domain.CategoryOtherExpense),
		debit("DRAFTKINGS SPORTSBOOK", 300, domain.CategoryOtherExpense),
		debit("DRAFTKINGS SPORTSBOOK", 400, domain.CategoryOtherExpense),
		debit("COINBASE.COM", 1000, domain.CategoryOtherExpense),
		debit("ONDECK CASH ADVANCE PMT", 500, domain.CategoryMCAPayment),
		debit("GUSTO PAYROLL", 5000, domain.CategoryPayroll),
	}

	results, err := engine.Evaluate(context.Background(), rows)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	byID := make(map[string]Result)
	for _, r := range results {
		byID[r.Rule.ID] = r
	}

	gambling := byID[RuleGambling]
	if len(gambling.Matches) != 3 {
		t.Errorf("expected 3 gambling matches, got %d", len(gambling.Matches))
	}
	// Capped at twice the per-match points.
	if gambling.Points != 30 {
		t.Errorf("expected 30 gambling points, got %d", gambling.Points)
	}

	if byID[RuleCrypto].Points != 8 {
		t.Errorf("expected 8 crypto points, got %d", byID[RuleCrypto].Points)
	}

	// Remittances to an advance provider are not consumer cash advances.
	if len(byID[RuleCashAdvance].Matches) != 0 {
		t.Errorf("expected no cash advance matches, got %d", len(byID[RuleCashAdvance].Matches))
	}

	if byID[RuleLateFees].Points != 0 || byID[RuleCollections].Points != 0 {
		t.Error("expected no late fee or collections points")
	}
}

func TestEvaluateRuleOrderPreserved(t *testing.T) {
	engine, _ := NewDefaultEngine()
	defer engine.Close()

	results, _ := engine.Evaluate(context.Background(), []domain.ClassifiedTransaction{
		debit("LATE FEE", 25, domain.CategoryBankFees),
	})

	builtins := BuiltinRules()
	if len(results) != len(builtins) {
		t.Fatalf("expected %d results, got %d", len(builtins), len(results))
	}
	for i, r := range results {
		if r.Rule.ID != builtins[i].ID {
			t.Errorf("result %d: expected %s, got %s", i, builtins[i].ID, r.Rule.ID)
		}
	}
}

func TestEvaluateCancelledContext(t *testing.T) {
	engine, _ := NewDefaultEngine()
	defer engine.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Evaluate(ctx, []domain.ClassifiedTransaction{debit("CASINO", 10, domain.CategoryOtherExpense)})
	if err == nil {
		t.Error("expected context error")
	}
}
