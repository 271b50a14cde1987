package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"news-publisher/internal/domain"
)

// Service применяет переходы и сохраняет ревизии с оптимистической проверкой версии.
type Service struct {
	contents  domain.ContentRepo
	published domain.PublishedContentRepo
	events    domain.EventPublisher
	clock     domain.Clock
	log       zerolog.Logger
}

// NewService создаёт сервис жизненного цикла. published и events могут быть nil.
func NewService(contents domain.ContentRepo, published domain.PublishedContentRepo, events domain.EventPublisher, clock domain.Clock, logger zerolog.Logger) *Service {
	if clock == nil {
		clock = domain.SystemClock()
	}
	return &Service{
		contents:  contents,
		published: published,
		events:    events,
		clock:     clock,
		log:       logger.With().Str("component", "lifecycle").Logger(),
	}
}

// Transition выполняет действие и возвращает обновлённый материал. Номер новой версии — item.CurrentVersionNo.
func (s *Service) Transition(ctx context.Context, contentID uuid.UUID, cmd Command) (domain.ContentItem, error) {
	current, err := s.contents.GetContent(ctx, contentID)
	if err != nil {
		return domain.ContentItem{}, fmt.Errorf("получение материала: %w", err)
	}
	now := s.clock.Now()
	next, err := Apply(current, cmd, now)
	if err != nil {
		return domain.ContentItem{}, err
	}
	rev, err := Revision(next, cmd.Action, cmd.Actor, now)
	if err != nil {
		return domain.ContentItem{}, err
	}
	if err := s.contents.ApplyTransition(ctx, next, current.CurrentVersionNo, rev); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			s.log.Warn().
				Str("content_id", contentID.String()).
				Int("version", current.CurrentVersionNo).
				Str("action", string(cmd.Action)).
				Msg("параллельное изменение материала")
		}
		return domain.ContentItem{}, fmt.Errorf("сохранение перехода %s: %w", cmd.Action, err)
	}

	s.log.Info().
		Str("content_id", contentID.String()).
		Str("action", string(cmd.Action)).
		Str("from", string(current.Status)).
		Str("to", string(next.Status)).
		Int("version", next.CurrentVersionNo).
		Str("actor", cmd.Actor).
		Msg("переход материала")

	if cmd.Action == domain.ActionRetracted {
		s.retractPublished(ctx, contentID, now)
	}
	s.publishEvent(ctx, next, cmd.Action, now)
	return next, nil
}

// Triage применяет решение правил к новому материалу.
func (s *Service) Triage(ctx context.Context, contentID uuid.UUID, decision domain.RuleDecision, actor string) (domain.ContentItem, error) {
	return s.Transition(ctx, contentID, Command{Action: domain.ActionTriaged, Actor: actor, Decision: &decision})
}

// SaveDraft сохраняет правку до публикации.
func (s *Service) SaveDraft(ctx context.Context, contentID uuid.UUID, patch domain.ContentPatch, actor string) (domain.ContentItem, error) {
	return s.Transition(ctx, contentID, Command{Action: domain.ActionDraftSaved, Actor: actor, Patch: &patch})
}

// Approve одобряет материал к публикации.
func (s *Service) Approve(ctx context.Context, contentID uuid.UUID, actor string) (domain.ContentItem, error) {
	return s.Transition(ctx, contentID, Command{Action: domain.ActionApproved, Actor: actor})
}

// Reject отклоняет материал.
func (s *Service) Reject(ctx context.Context, contentID uuid.UUID, actor string) (domain.ContentItem, error) {
	return s.Transition(ctx, contentID, Command{Action: domain.ActionRejected, Actor: actor})
}

// Schedule назначает время публикации.
func (s *Service) Schedule(ctx context.Context, contentID uuid.UUID, at time.Time, actor string) (domain.ContentItem, error) {
	return s.Transition(ctx, contentID, Command{Action: domain.ActionScheduled, Actor: actor, ScheduledAt: &at})
}

// Correct вносит исправление в опубликованный материал.
func (s *Service) Correct(ctx context.Context, contentID uuid.UUID, patch domain.ContentPatch, actor string) (domain.ContentItem, error) {
	return s.Transition(ctx, contentID, Command{Action: domain.ActionCorrected, Actor: actor, Patch: &patch})
}

// Retract отзывает опубликованный материал.
func (s *Service) Retract(ctx context.Context, contentID uuid.UUID, actor string) (domain.ContentItem, error) {
	return s.Transition(ctx, contentID, Command{Action: domain.ActionRetracted, Actor: actor})
}

// MarkBreaking помечает материал срочным. С pushRequired в черновике должен быть канал mobile.
func (s *Service) MarkBreaking(ctx context.Context, contentID uuid.UUID, pushRequired bool, actor string) (domain.ContentItem, error) {
	return s.Transition(ctx, contentID, Command{Action: domain.ActionBreakingMarked, Actor: actor, PushRequired: pushRequired})
}

// Resubmit возвращает отклонённый материал на одобрение.
func (s *Service) Resubmit(ctx context.Context, contentID uuid.UUID, actor string) (domain.ContentItem, error) {
	return s.Transition(ctx, contentID, Command{Action: domain.ActionResubmitted, Actor: actor})
}

// MarkPublished фиксирует доставку версии versionNo.
func (s *Service) MarkPublished(ctx context.Context, contentID uuid.UUID, versionNo int, actor string) (domain.ContentItem, error) {
	return s.Transition(ctx, contentID, Command{Action: domain.ActionPublished, Actor: actor, PublishedVersion: versionNo})
}

// Revisions возвращает историю версий.
func (s *Service) Revisions(ctx context.Context, contentID uuid.UUID) ([]domain.ContentRevision, error) {
	revs, err := s.contents.ListRevisions(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("получение ревизий: %w", err)
	}
	return revs, nil
}

func (s *Service) retractPublished(ctx context.Context, contentID uuid.UUID, now time.Time) {
	if s.published == nil {
		return
	}
	if err := s.published.MarkRetracted(ctx, contentID, now); err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.log.Error().Err(err).Str("content_id", contentID.String()).Msg("не удалось отозвать публичную запись")
	}
}

func (s *Service) publishEvent(ctx context.Context, item domain.ContentItem, action domain.RevisionAction, now time.Time) {
	if s.events == nil {
		return
	}
	err := s.events.PublishEvent(ctx, domain.PublishEvent{
		Event:      domain.EventContentTransition,
		ContentID:  item.ID,
		VersionNo:  item.CurrentVersionNo,
		Metadata:   map[string]any{"action": string(action), "status": string(item.Status)},
		OccurredAt: now,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("content_id", item.ID.String()).Msg("не удалось отправить событие")
	}
}
