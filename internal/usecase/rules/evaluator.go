// Package rules реализует триаж материалов по упорядоченным правилам.
package rules

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"news-publisher/internal/domain"
	"news-publisher/internal/usecase/textscan"
)

const defaultReason = "Default - no rule matched"

// ParseRule разбирает CSV-поля хранимого правила в типизированные множества.
func ParseRule(rec domain.RuleRecord) (domain.Rule, error) {
	sourceIDs, err := parseIDs(rec.SourceIDs)
	if err != nil {
		return domain.Rule{}, fmt.Errorf("правило %q: source_ids: %w", rec.Name, err)
	}
	groupIDs, err := parseIDs(rec.GroupIDs)
	if err != nil {
		return domain.Rule{}, fmt.Errorf("правило %q: group_ids: %w", rec.Name, err)
	}
	platforms, err := parsePlatforms(rec.TargetPlatforms)
	if err != nil {
		return domain.Rule{}, fmt.Errorf("правило %q: target_platforms: %w", rec.Name, err)
	}
	switch rec.DecisionType {
	case domain.DecisionAutoPublish, domain.DecisionRequireApproval, domain.DecisionBlock, domain.DecisionSchedule:
	default:
		return domain.Rule{}, domain.NewValidationError("decision_type", fmt.Sprintf("правило %q: неизвестный тип решения %q", rec.Name, rec.DecisionType))
	}
	return domain.Rule{
		ID:              rec.ID,
		Name:            rec.Name,
		Priority:        rec.Priority,
		DecisionType:    rec.DecisionType,
		Enabled:         rec.Enabled,
		MinTrustLevel:   rec.MinTrustLevel,
		SourceIDs:       sourceIDs,
		GroupIDs:        groupIDs,
		IncludeKeywords: parseKeywords(rec.IncludeKeywords),
		ExcludeKeywords: parseKeywords(rec.ExcludeKeywords),
		TargetPlatforms: platforms,
	}, nil
}

// ParseRules разбирает набор правил, сохраняя порядок.
func ParseRules(records []domain.RuleRecord) ([]domain.Rule, error) {
	out := make([]domain.Rule, 0, len(records))
	for _, rec := range records {
		rule, err := ParseRule(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// Evaluate возвращает решение первого подходящего правила по убыванию приоритета.
// При равном приоритете сохраняется исходный порядок.
func Evaluate(item domain.ContentItem, source domain.Source, rules []domain.Rule, now time.Time, offset time.Duration) domain.RuleDecision {
	active := make([]domain.Rule, 0, len(rules))
	for _, r := range rules {
		if r.Enabled {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority > active[j].Priority
	})

	corpus := textscan.Corpus(item)
	for _, r := range active {
		if !matches(r, source, corpus) {
			continue
		}
		id := r.ID
		decision := domain.RuleDecision{
			DecisionType:    r.DecisionType,
			Reason:          "Matched rule: " + r.Name,
			MatchedRuleID:   &id,
			TargetPlatforms: r.TargetPlatforms,
		}
		if r.DecisionType == domain.DecisionSchedule {
			at := now.Add(offset)
			decision.ScheduledAt = &at
		}
		return decision
	}
	return domain.RuleDecision{
		DecisionType: domain.DecisionRequireApproval,
		Reason:       defaultReason,
	}
}

func matches(r domain.Rule, source domain.Source, corpus string) bool {
	switch {
	case len(r.SourceIDs) > 0:
		if !r.SourceIDs.Has(source.ID) {
			return false
		}
	case len(r.GroupIDs) > 0:
		if source.GroupID == nil || !r.GroupIDs.Has(*source.GroupID) {
			return false
		}
	}
	if source.TrustLevel < r.MinTrustLevel {
		return false
	}
	if len(r.IncludeKeywords) > 0 && !containsAny(corpus, r.IncludeKeywords) {
		return false
	}
	if len(r.ExcludeKeywords) > 0 && containsAny(corpus, r.ExcludeKeywords) {
		return false
	}
	return true
}

func containsAny(corpus string, keywords domain.KeywordSet) bool {
	for kw := range keywords {
		if strings.Contains(corpus, kw) {
			return true
		}
	}
	return false
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseIDs(raw string) (domain.IDSet, error) {
	parts := splitCSV(raw)
	if len(parts) == 0 {
		return nil, nil
	}
	set := make(domain.IDSet, len(parts))
	for _, p := range parts {
		id, err := uuid.Parse(p)
		if err != nil {
			return nil, domain.NewValidationError("id", fmt.Sprintf("некорректный идентификатор %q", p))
		}
		set[id] = struct{}{}
	}
	return set, nil
}

func parseKeywords(raw string) domain.KeywordSet {
	parts := splitCSV(raw)
	if len(parts) == 0 {
		return nil
	}
	set := make(domain.KeywordSet, len(parts))
	for _, p := range parts {
		set[strings.ToLower(p)] = struct{}{}
	}
	return set
}

func parsePlatforms(raw string) ([]domain.Platform, error) {
	var out []domain.Platform
	for _, p := range splitCSV(raw) {
		platform, err := domain.ParsePlatform(strings.ToLower(p))
		if err != nil {
			return nil, err
		}
		out = append(out, platform)
	}
	return out, nil
}
