package domain

import (
	"time"

	"github.com/google/uuid"
)

// DecisionType — результат триажа материала.
type DecisionType string

const (
	DecisionAutoPublish     DecisionType = "auto_publish"
	DecisionRequireApproval DecisionType = "require_approval"
	DecisionBlock           DecisionType = "block"
	DecisionSchedule        DecisionType = "schedule"
)

// InitialStatus возвращает статус, в который переводится новый материал после решения.
func (d DecisionType) InitialStatus() ContentStatus {
	switch d {
	case DecisionAutoPublish:
		return ContentStatusAutoReady
	case DecisionBlock:
		return ContentStatusBlocked
	case DecisionSchedule:
		return ContentStatusScheduled
	default:
		return ContentStatusPendingApproval
	}
}

// IDSet — множество идентификаторов.
type IDSet map[uuid.UUID]struct{}

// Has проверяет наличие идентификатора.
func (s IDSet) Has(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

// KeywordSet — множество ключевых слов в нижнем регистре.
type KeywordSet map[string]struct{}

// RuleRecord — правило в том виде, в каком оно хранится: фильтры записаны CSV-строками.
type RuleRecord struct {
	ID              uuid.UUID
	Name            string
	Priority        int
	DecisionType    DecisionType
	Enabled         bool
	MinTrustLevel   int
	SourceIDs       string
	GroupIDs        string
	IncludeKeywords string
	ExcludeKeywords string
	TargetPlatforms string
	CreatedAt       time.Time
}

// Rule — правило триажа с разобранными типизированными фильтрами.
type Rule struct {
	ID              uuid.UUID
	Name            string
	Priority        int
	DecisionType    DecisionType
	Enabled         bool
	MinTrustLevel   int
	SourceIDs       IDSet
	GroupIDs        IDSet
	IncludeKeywords KeywordSet
	ExcludeKeywords KeywordSet
	TargetPlatforms []Platform
}

// RuleDecision — результат оценки правил.
type RuleDecision struct {
	DecisionType    DecisionType `json:"decision_type"`
	Reason          string       `json:"reason"`
	MatchedRuleID   *uuid.UUID   `json:"matched_rule_id,omitempty"`
	ScheduledAt     *time.Time   `json:"scheduled_at,omitempty"`
	TargetPlatforms []Platform   `json:"target_platforms,omitempty"`
}
