package proxy

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"machinaos/proxyrouter/pkg/providers"
	"machinaos/proxyrouter/pkg/routing"
	"machinaos/proxyrouter/pkg/store"
)

// credentialInvalidator is implemented by caching credential stores.
type credentialInvalidator interface {
	Invalidate(name string)
}

// UpsertProvider validates cfg, persists it and swaps in a new snapshot.
// Template errors are reported before anything is written.
func (s *Service) UpsertProvider(ctx context.Context, cfg providers.Config) error {
	cfg = cfg.Clone()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := providers.ResolveTemplate(&cfg); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.store.SaveProvider(ctx, cfg); err != nil {
		return fmt.Errorf("saving provider %q: %w", cfg.Name, err)
	}
	if inv, ok := s.creds.(credentialInvalidator); ok {
		inv.Invalidate(cfg.Name)
	}
	if err := s.reloadLocked(ctx); err != nil {
		return err
	}

	s.logger.Info("provider updated", "provider", cfg.Name, "enabled", cfg.Enabled)
	return nil
}

// SetProviderEnabled toggles a provider. Health history is kept.
func (s *Service) SetProviderEnabled(ctx context.Context, name string, enabled bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	e, ok := s.snap.Load().providers[name]
	if !ok {
		return &ProviderNotFoundError{Name: name}
	}
	cfg := e.config.Clone()
	cfg.Enabled = enabled

	if err := s.store.SaveProvider(ctx, cfg); err != nil {
		return fmt.Errorf("saving provider %q: %w", name, err)
	}
	if err := s.reloadLocked(ctx); err != nil {
		return err
	}

	s.logger.Info("provider toggled", "provider", name, "enabled", enabled)
	return nil
}

// UpsertRule validates rule against the current rule set, persists it and
// swaps in a new snapshot. Rewriting the last catch-all rule to a narrower
// pattern fails with routing.ErrLastCatchAll.
func (s *Service) UpsertRule(ctx context.Context, rule routing.Rule) error {
	rule = rule.Clone()
	rule.Normalize()
	if err := rule.Validate(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current := s.snap.Load().table.Rules()
	rules := replaceRule(slices.Clone(current), rule)
	if err := keepsCatchAll(current, rules); err != nil {
		return err
	}
	if _, err := routing.NewTable(rules); err != nil {
		return err
	}

	if err := s.store.SaveRoutingRule(ctx, rule); err != nil {
		return fmt.Errorf("saving routing rule %q: %w", rule.ID, err)
	}
	if err := s.reloadLocked(ctx); err != nil {
		return err
	}

	s.logger.Info("routing rule updated", "rule_id", rule.ID, "pattern", rule.DomainPattern)
	return nil
}

// DeleteRule removes a rule. The last catch-all rule cannot be removed.
func (s *Service) DeleteRule(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current := s.snap.Load().table.Rules()
	rules := slices.DeleteFunc(slices.Clone(current), func(r routing.Rule) bool { return r.ID == id })
	if len(rules) == len(current) {
		return &routing.RuleNotFoundError{ID: id}
	}
	if err := keepsCatchAll(current, rules); err != nil {
		return err
	}

	if err := s.store.DeleteRoutingRule(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &routing.RuleNotFoundError{ID: id}
		}
		return fmt.Errorf("deleting routing rule %q: %w", id, err)
	}
	if err := s.reloadLocked(ctx); err != nil {
		return err
	}

	s.logger.Info("routing rule deleted", "rule_id", id)
	return nil
}

func replaceRule(rules []routing.Rule, rule routing.Rule) []routing.Rule {
	for i := range rules {
		if rules[i].ID == rule.ID {
			rules[i] = rule
			return rules
		}
	}
	return append(rules, rule)
}

// keepsCatchAll rejects a rule change that would leave a table that has
// a catch-all rule without one.
func keepsCatchAll(before, after []routing.Rule) error {
	if countCatchAll(before) > 0 && countCatchAll(after) == 0 {
		return routing.ErrLastCatchAll
	}
	return nil
}

func countCatchAll(rules []routing.Rule) int {
	n := 0
	for i := range rules {
		if rules[i].IsCatchAll() {
			n++
		}
	}
	return n
}
