package rules

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"news-publisher/internal/domain"
)

// Service загружает правила и оценивает материалы.
type Service struct {
	rules    domain.RuleRepo
	sources  domain.SourceRepo
	contents domain.ContentRepo
	policies domain.PolicyStore
	clock    domain.Clock
	log      zerolog.Logger
}

// NewService создаёт сервис триажа.
func NewService(rules domain.RuleRepo, sources domain.SourceRepo, contents domain.ContentRepo, policies domain.PolicyStore, clock domain.Clock, logger zerolog.Logger) *Service {
	if clock == nil {
		clock = domain.SystemClock()
	}
	return &Service{
		rules:    rules,
		sources:  sources,
		contents: contents,
		policies: policies,
		clock:    clock,
		log:      logger.With().Str("component", "rules").Logger(),
	}
}

// Evaluate оценивает уже загруженный материал. Состояние не меняется.
func (s *Service) Evaluate(ctx context.Context, item domain.ContentItem) (domain.RuleDecision, error) {
	source, err := s.sources.GetSource(ctx, item.SourceID)
	if err != nil {
		return domain.RuleDecision{}, fmt.Errorf("получение источника: %w", err)
	}
	records, err := s.rules.ListRules(ctx)
	if err != nil {
		return domain.RuleDecision{}, fmt.Errorf("получение правил: %w", err)
	}
	parsed, err := ParseRules(records)
	if err != nil {
		return domain.RuleDecision{}, fmt.Errorf("разбор правил: %w", err)
	}
	cfg, err := s.policies.LoadPublishingConfig(ctx)
	if err != nil {
		return domain.RuleDecision{}, fmt.Errorf("загрузка политики: %w", err)
	}

	decision := Evaluate(item, source, parsed, s.clock.Now(), cfg.ScheduleOffset())
	if len(decision.TargetPlatforms) == 0 {
		decision.TargetPlatforms = cfg.DefaultPlatforms
	}
	s.log.Debug().
		Str("content_id", item.ID.String()).
		Str("decision", string(decision.DecisionType)).
		Str("reason", decision.Reason).
		Msg("правила оценены")
	return decision, nil
}

// EvaluateContent загружает материал по идентификатору и оценивает его.
func (s *Service) EvaluateContent(ctx context.Context, contentID uuid.UUID) (domain.RuleDecision, error) {
	item, err := s.contents.GetContent(ctx, contentID)
	if err != nil {
		return domain.RuleDecision{}, fmt.Errorf("получение материала: %w", err)
	}
	return s.Evaluate(ctx, item)
}
