package underwrite

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/rules"
	"github.com/opensource-finance/underwriter/internal/scorecard"
)

// mergeRules overlays tenant overrides on base by rule ID. Overrides with
// a new ID are appended in ID order; a disabled override switches the rule
// off.
func mergeRules(base []domain.RedFlagRule, overrides []*domain.RedFlagRule) []domain.RedFlagRule {
	byID := make(map[string]domain.RedFlagRule, len(overrides))
	for _, o := range overrides {
		if o != nil {
			byID[o.ID] = *o
		}
	}

	out := make([]domain.RedFlagRule, 0, len(base)+len(byID))
	for _, r := range base {
		if o, ok := byID[r.ID]; ok {
			r = o
			delete(byID, o.ID)
		}
		out = append(out, r)
	}
	for _, o := range overrides {
		if o == nil {
			continue
		}
		if r, ok := byID[o.ID]; ok {
			out = append(out, r)
		}
	}
	return out
}

// maxOverrideEngines bounds the compiled override rule sets kept in memory.
const maxOverrideEngines = 256

// engineFor returns the scorecard engine for a tenant and a cache-key
// suffix naming its rule set. Tenants without overrides share the base
// engine and an empty suffix. Override sets are compiled once per digest.
func (s *Service) engineFor(ctx context.Context, tenantID string) (*scorecard.Engine, string) {
	if s.repo == nil {
		return s.engine, ""
	}
	overrides, err := s.repo.ListRedFlagRules(ctx, tenantID)
	if err != nil {
		slog.Warn("failed to load red-flag overrides", "tenant_id", tenantID, "error", err)
		return s.engine, ""
	}
	if len(overrides) == 0 {
		return s.engine, ""
	}

	set := mergeRules(s.base, overrides)
	digest := ruleDigest(set)

	s.enginesMu.Lock()
	defer s.enginesMu.Unlock()

	if engine, ok := s.engines[digest]; ok {
		return engine, ":" + digest[:12]
	}

	engine, err := newScorecardEngine(set)
	if err != nil {
		slog.Warn("invalid red-flag overrides, using base rules", "tenant_id", tenantID, "error", err)
		return s.engine, ""
	}
	if len(s.engines) >= maxOverrideEngines {
		clear(s.engines)
	}
	s.engines[digest] = engine
	return engine, ":" + digest[:12]
}

// ruleDigest is the hex SHA-256 of a rule set's JSON form.
func ruleDigest(set []domain.RedFlagRule) string {
	data, _ := json.Marshal(set)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// RedFlagRules returns the rules in effect for a tenant.
func (s *Service) RedFlagRules(ctx context.Context, tenantID string) ([]domain.RedFlagRule, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	if s.repo == nil {
		return append([]domain.RedFlagRule(nil), s.base...), nil
	}
	overrides, err := s.repo.ListRedFlagRules(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("loading red-flag rules: %w", err)
	}
	return mergeRules(s.base, overrides), nil
}

// SaveRedFlagRule compiles and stores a tenant override.
func (s *Service) SaveRedFlagRule(ctx context.Context, tenantID string, rule *domain.RedFlagRule) error {
	if s.repo == nil {
		return ErrNoRepository
	}
	re, err := rules.NewEngine(1)
	if err != nil {
		return err
	}
	if err := re.ValidateRule(rule); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return s.repo.SaveRedFlagRule(ctx, tenantID, rule)
}
