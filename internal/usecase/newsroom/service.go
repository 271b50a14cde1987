// Package newsroom объединяет движок публикации в набор операций для API и бота редакторов.
package newsroom

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"news-publisher/internal/domain"
	"news-publisher/internal/usecase/emergency"
	"news-publisher/internal/usecase/lifecycle"
	"news-publisher/internal/usecase/policy"
	"news-publisher/internal/usecase/publish"
	"news-publisher/internal/usecase/rules"
)

const (
	actorRules     = "rules"
	actorScheduler = "scheduler"
)

// Deps — сервисы, которые объединяет фасад.
type Deps struct {
	Contents  domain.ContentRepo
	Rules     *rules.Service
	Lifecycle *lifecycle.Service
	Policy    *policy.Service
	Emergency *emergency.Service
	Publish   *publish.Scheduler
	Clock     domain.Clock
}

// Service — точка входа для внешних потребителей движка.
type Service struct {
	contents  domain.ContentRepo
	rules     *rules.Service
	lifecycle *lifecycle.Service
	policy    *policy.Service
	emergency *emergency.Service
	publish   *publish.Scheduler
	clock     domain.Clock
	log       zerolog.Logger
}

// New создаёт фасад.
func New(deps Deps, logger zerolog.Logger) *Service {
	clock := deps.Clock
	if clock == nil {
		clock = domain.SystemClock()
	}
	return &Service{
		contents:  deps.Contents,
		rules:     deps.Rules,
		lifecycle: deps.Lifecycle,
		policy:    deps.Policy,
		emergency: deps.Emergency,
		publish:   deps.Publish,
		clock:     clock,
		log:       logger.With().Str("component", "newsroom").Logger(),
	}
}

// IngestResult — итог приёма материала.
type IngestResult struct {
	Item      domain.ContentItem     `json:"item"`
	Decision  domain.RuleDecision    `json:"decision"`
	Emergency emergency.DetectResult `json:"emergency"`
	Job       *domain.EnqueueResult  `json:"job,omitempty"`
}

// Ingest сохраняет новый материал, применяет правила и проверяет его на срочность.
// Материалы с решением AutoPublish сразу ставятся в очередь публикации.
func (s *Service) Ingest(ctx context.Context, item domain.ContentItem) (IngestResult, error) {
	if strings.TrimSpace(item.Title) == "" {
		return IngestResult{}, domain.NewValidationError("title", "заголовок обязателен")
	}
	if item.SourceID == uuid.Nil {
		return IngestResult{}, domain.NewValidationError("source_id", "источник обязателен")
	}
	for _, ch := range item.Channels {
		if _, err := domain.ParsePlatform(string(ch)); err != nil {
			return IngestResult{}, err
		}
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	now := s.clock.Now()
	item.Status = domain.ContentStatusNew
	item.CurrentVersionNo = 0
	item.PublishedVersionNo = 0
	item.IsRetracted = false
	item.CreatedAt = now
	item.UpdatedAt = now

	created, err := s.contents.CreateContent(ctx, item)
	if err != nil {
		return IngestResult{}, fmt.Errorf("создание материала: %w", err)
	}
	decision, err := s.rules.Evaluate(ctx, created)
	if err != nil {
		return IngestResult{}, fmt.Errorf("применение правил: %w", err)
	}
	triaged, err := s.lifecycle.Triage(ctx, created.ID, decision, actorRules)
	if err != nil {
		return IngestResult{}, fmt.Errorf("триаж: %w", err)
	}
	res := IngestResult{Item: triaged, Decision: decision}

	if s.emergency != nil && triaged.Status != domain.ContentStatusBlocked {
		det, err := s.emergency.DetectEmergency(ctx, triaged.ID, 0)
		if err != nil {
			s.log.Warn().Err(err).Str("content_id", triaged.ID.String()).Msg("проверка срочности не выполнена")
		}
		res.Emergency = det
	}

	if decision.DecisionType == domain.DecisionAutoPublish {
		job, err := s.EnqueuePublishJob(ctx, EnqueueRequest{ContentID: triaged.ID})
		if err != nil {
			return res, err
		}
		res.Job = &job
	}
	s.log.Info().
		Str("content_id", triaged.ID.String()).
		Str("decision", string(decision.DecisionType)).
		Str("reason", decision.Reason).
		Bool("emergency", res.Emergency.Detection.IsEmergency).
		Msg("материал принят")
	return res, nil
}

// Content возвращает материал.
func (s *Service) Content(ctx context.Context, id uuid.UUID) (domain.ContentItem, error) {
	item, err := s.contents.GetContent(ctx, id)
	if err != nil {
		return domain.ContentItem{}, fmt.Errorf("получение материала: %w", err)
	}
	return item, nil
}

// EvaluateRules повторно применяет правила к материалу без изменения его состояния.
func (s *Service) EvaluateRules(ctx context.Context, id uuid.UUID) (domain.RuleDecision, error) {
	return s.rules.EvaluateContent(ctx, id)
}

// DetectEmergency проверяет материал на срочность.
func (s *Service) DetectEmergency(ctx context.Context, id uuid.UUID, priority int) (emergency.DetectResult, error) {
	return s.emergency.DetectEmergency(ctx, id, priority)
}

// EnqueueRequest — параметры ручной постановки задачи публикации.
type EnqueueRequest struct {
	ContentID uuid.UUID `json:"content_id"`
	// VersionNo равен 0, если публикуется текущая версия.
	VersionNo   int               `json:"version_no,omitempty"`
	Platforms   []domain.Platform `json:"platforms,omitempty"`
	ScheduledAt *time.Time        `json:"scheduled_at,omitempty"`
	IsEmergency bool              `json:"is_emergency,omitempty"`
}

// EnqueuePublishJob ставит задачу публикации. Время и беззвучность push выбираются по политикам платформ.
func (s *Service) EnqueuePublishJob(ctx context.Context, req EnqueueRequest) (domain.EnqueueResult, error) {
	content, err := s.contents.GetContent(ctx, req.ContentID)
	if err != nil {
		return domain.EnqueueResult{}, fmt.Errorf("получение материала: %w", err)
	}
	job, err := s.prepareJob(ctx, content, req)
	if err != nil {
		return domain.EnqueueResult{}, err
	}
	return s.publish.Enqueue(ctx, job)
}

// prepareJob проверяет запрос и рассчитывает параметры задачи. Состояние не меняется.
func (s *Service) prepareJob(ctx context.Context, content domain.ContentItem, req EnqueueRequest) (domain.NewPublishJob, error) {
	version := req.VersionNo
	if version == 0 {
		version = content.CurrentVersionNo
	}
	targets := req.Platforms
	if len(targets) == 0 {
		targets = content.Channels
	}
	for _, t := range targets {
		if _, err := domain.ParsePlatform(string(t)); err != nil {
			return domain.NewPublishJob{}, err
		}
	}
	emergency := req.IsEmergency || content.IsBreaking
	plan, err := s.policy.Plan(ctx, targets, emergency)
	if err != nil {
		return domain.NewPublishJob{}, err
	}

	scheduledAt := plan.ScheduledAt
	if req.ScheduledAt != nil {
		scheduledAt = req.ScheduledAt
	}
	if scheduledAt == nil {
		return domain.NewPublishJob{}, domain.NewValidationError("platforms", "все каналы выключены политикой публикации")
	}
	return domain.NewPublishJob{
		ContentID:       content.ID,
		VersionNo:       version,
		TargetPlatforms: targets,
		ScheduledAt:     *scheduledAt,
		IsEmergency:     emergency,
		SilencePush:     plan.SilencePush,
	}, nil
}

// enqueueCommitted ставит в очередь уже сохранённую версию. Отказ валидации
// после перехода не откатывает его: задача не создаётся, событие пишется в лог.
func (s *Service) enqueueCommitted(ctx context.Context, item domain.ContentItem) (domain.EnqueueResult, error) {
	job, err := s.EnqueuePublishJob(ctx, EnqueueRequest{ContentID: item.ID, VersionNo: item.CurrentVersionNo})
	if domain.IsValidation(err) {
		s.log.Warn().Err(err).
			Str("content_id", item.ID.String()).
			Int("version", item.CurrentVersionNo).
			Msg("задача публикации не поставлена, переход сохранён")
		return domain.EnqueueResult{}, nil
	}
	return job, err
}

// GetScheduleStats возвращает сводку расписания платформы.
func (s *Service) GetScheduleStats(ctx context.Context, platform string) (domain.ScheduleStats, error) {
	p, err := domain.ParsePlatform(platform)
	if err != nil {
		return domain.ScheduleStats{}, err
	}
	return s.policy.Stats(ctx, p)
}

// ScheduleOverview возвращает сводки по всем платформам.
func (s *Service) ScheduleOverview(ctx context.Context) ([]domain.ScheduleStats, error) {
	out := make([]domain.ScheduleStats, 0, len(domain.AllPlatforms))
	for _, p := range domain.AllPlatforms {
		stats, err := s.policy.Stats(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, stats)
	}
	return out, nil
}

// SaveDraft сохраняет правку до публикации.
func (s *Service) SaveDraft(ctx context.Context, id uuid.UUID, patch domain.ContentPatch, actor string) (domain.ContentItem, error) {
	return s.lifecycle.SaveDraft(ctx, id, patch, actor)
}

// Approve одобряет материал и ставит текущую версию в очередь публикации.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, actor string) (domain.ContentItem, domain.EnqueueResult, error) {
	content, err := s.contents.GetContent(ctx, id)
	if err != nil {
		return domain.ContentItem{}, domain.EnqueueResult{}, fmt.Errorf("получение материала: %w", err)
	}
	if _, err := s.prepareJob(ctx, content, EnqueueRequest{ContentID: id}); err != nil {
		return domain.ContentItem{}, domain.EnqueueResult{}, err
	}
	item, err := s.lifecycle.Approve(ctx, id, actor)
	if err != nil {
		return domain.ContentItem{}, domain.EnqueueResult{}, err
	}
	job, err := s.enqueueCommitted(ctx, item)
	if err != nil {
		return item, domain.EnqueueResult{}, err
	}
	return item, job, nil
}

// Reject отклоняет материал.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, actor string) (domain.ContentItem, error) {
	return s.lifecycle.Reject(ctx, id, actor)
}

// Schedule откладывает публикацию до at. Материал будет поставлен в очередь PromoteDue.
func (s *Service) Schedule(ctx context.Context, id uuid.UUID, at time.Time, actor string) (domain.ContentItem, error) {
	if at.IsZero() {
		return domain.ContentItem{}, domain.NewValidationError("scheduled_at", "время публикации не задано")
	}
	return s.lifecycle.Schedule(ctx, id, at, actor)
}

// Correct исправляет опубликованный материал и ставит исправленную версию в очередь.
func (s *Service) Correct(ctx context.Context, id uuid.UUID, patch domain.ContentPatch, actor string) (domain.ContentItem, domain.EnqueueResult, error) {
	content, err := s.contents.GetContent(ctx, id)
	if err != nil {
		return domain.ContentItem{}, domain.EnqueueResult{}, fmt.Errorf("получение материала: %w", err)
	}
	if _, err := s.prepareJob(ctx, content, EnqueueRequest{ContentID: id, Platforms: patch.Channels}); err != nil {
		return domain.ContentItem{}, domain.EnqueueResult{}, err
	}
	item, err := s.lifecycle.Correct(ctx, id, patch, actor)
	if err != nil {
		return domain.ContentItem{}, domain.EnqueueResult{}, err
	}
	job, err := s.enqueueCommitted(ctx, item)
	if err != nil {
		return item, domain.EnqueueResult{}, err
	}
	return item, job, nil
}

// Retract отзывает материал и завершает его ожидающие задачи.
func (s *Service) Retract(ctx context.Context, id uuid.UUID, actor string) (domain.ContentItem, error) {
	item, err := s.lifecycle.Retract(ctx, id, actor)
	if err != nil {
		return domain.ContentItem{}, err
	}
	if _, err := s.publish.CancelForContent(ctx, id, "retracted"); err != nil {
		return item, err
	}
	return item, nil
}

// MarkBreaking помечает материал срочным.
func (s *Service) MarkBreaking(ctx context.Context, id uuid.UUID, pushRequired bool, actor string) (domain.ContentItem, error) {
	return s.lifecycle.MarkBreaking(ctx, id, pushRequired, actor)
}

// Resubmit возвращает отклонённый материал на согласование.
func (s *Service) Resubmit(ctx context.Context, id uuid.UUID, actor string) (domain.ContentItem, error) {
	return s.lifecycle.Resubmit(ctx, id, actor)
}

// Revisions возвращает историю версий материала.
func (s *Service) Revisions(ctx context.Context, id uuid.UUID) ([]domain.ContentRevision, error) {
	return s.lifecycle.Revisions(ctx, id)
}

// Jobs возвращает задачи публикации материала.
func (s *Service) Jobs(ctx context.Context, id uuid.UUID) ([]domain.PublishJob, error) {
	return s.publish.Jobs(ctx, id)
}

// ChannelLogs возвращает журнал каналов задачи.
func (s *Service) ChannelLogs(ctx context.Context, jobID int64) ([]domain.ChannelPublishLog, error) {
	return s.publish.ChannelLogs(ctx, jobID)
}

// ListEmergencies возвращает ожидающих срочных кандидатов.
func (s *Service) ListEmergencies(ctx context.Context, limit int) ([]domain.EmergencyQueueItem, error) {
	return s.emergency.ListPending(ctx, limit)
}

// AddEmergency вручную добавляет материал в очередь срочных.
func (s *Service) AddEmergency(ctx context.Context, id uuid.UUID, priority int, reason string) (domain.EmergencyQueueItem, error) {
	if reason == "" {
		reason = "added by editor"
	}
	item, _, err := s.emergency.Add(ctx, id, domain.Detection{IsEmergency: true, Priority: priority, Reason: reason})
	return item, err
}

// PublishEmergency отправляет срочного кандидата в публикацию.
func (s *Service) PublishEmergency(ctx context.Context, id int64) (domain.EmergencyQueueItem, domain.EnqueueResult, error) {
	return s.emergency.Publish(ctx, id)
}

// CancelEmergency снимает кандидата без публикации.
func (s *Service) CancelEmergency(ctx context.Context, id int64) (domain.EmergencyQueueItem, error) {
	return s.emergency.Cancel(ctx, id)
}

// UpdateEmergencyPriority меняет приоритет кандидата.
func (s *Service) UpdateEmergencyPriority(ctx context.Context, id int64, priority int) (domain.EmergencyQueueItem, error) {
	return s.emergency.UpdatePriority(ctx, id, priority)
}

// PromoteDue одобряет отложенные материалы, время которых наступило, и ставит их в очередь.
func (s *Service) PromoteDue(ctx context.Context, limit int) (int, error) {
	due, err := s.contents.ListDueScheduled(ctx, s.clock.Now(), limit)
	if err != nil {
		return 0, fmt.Errorf("получение отложенных материалов: %w", err)
	}
	promoted := 0
	for _, item := range due {
		if _, _, err := s.Approve(ctx, item.ID, actorScheduler); err != nil {
			s.log.Error().Err(err).Str("content_id", item.ID.String()).Msg("scheduler: не удалось поставить отложенный материал")
			continue
		}
		promoted++
	}
	if promoted > 0 {
		s.log.Info().Int("promoted", promoted).Msg("scheduler: отложенные материалы поставлены в очередь")
	}
	return promoted, nil
}
