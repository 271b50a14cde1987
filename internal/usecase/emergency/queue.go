package emergency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"news-publisher/internal/domain"
	"news-publisher/internal/infra/metrics"
	"news-publisher/internal/usecase/lifecycle"
)

const notifyTTL = 7 * 24 * time.Hour

// JobEnqueuer ставит задачу публикации.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job domain.NewPublishJob) (domain.EnqueueResult, error)
}

// Options задаёт поведение автоматической обработки.
type Options struct {
	Config       domain.EmergencyConfig
	AutoEnqueue  bool
	AutoDispatch bool
}

// Service объединяет детектор и очередь срочных кандидатов.
type Service struct {
	queue    domain.EmergencyQueueRepo
	contents domain.ContentRepo
	sources  domain.SourceRepo
	jobs     JobEnqueuer
	notifier domain.EmergencyNotifier
	cache    domain.Cache
	events   domain.EventPublisher
	clock    domain.Clock
	opts     Options
	log      zerolog.Logger
}

// Deps — зависимости сервиса. Notifier, Cache и Events необязательны.
type Deps struct {
	Queue    domain.EmergencyQueueRepo
	Contents domain.ContentRepo
	Sources  domain.SourceRepo
	Jobs     JobEnqueuer
	Notifier domain.EmergencyNotifier
	Cache    domain.Cache
	Events   domain.EventPublisher
	Clock    domain.Clock
}

// NewService создаёт сервис срочных новостей.
func NewService(deps Deps, opts Options, logger zerolog.Logger) *Service {
	clock := deps.Clock
	if clock == nil {
		clock = domain.SystemClock()
	}
	return &Service{
		queue:    deps.Queue,
		contents: deps.Contents,
		sources:  deps.Sources,
		jobs:     deps.Jobs,
		notifier: deps.Notifier,
		cache:    deps.Cache,
		events:   deps.Events,
		clock:    clock,
		opts:     opts,
		log:      logger.With().Str("component", "emergency").Logger(),
	}
}

// DetectResult — итог DetectEmergency.
type DetectResult struct {
	Detection domain.Detection            `json:"detection"`
	Item      *domain.EmergencyQueueItem `json:"item,omitempty"`
	Job       *domain.EnqueueResult      `json:"job,omitempty"`
}

// DetectEmergency сканирует материал. Постановка в очередь и автоотправка выполняются только если включены.
func (s *Service) DetectEmergency(ctx context.Context, contentID uuid.UUID, priority int) (DetectResult, error) {
	content, err := s.contents.GetContent(ctx, contentID)
	if err != nil {
		return DetectResult{}, fmt.Errorf("получение материала: %w", err)
	}
	source, err := s.sources.GetSource(ctx, content.SourceID)
	if err != nil {
		return DetectResult{}, fmt.Errorf("получение источника: %w", err)
	}
	res := DetectResult{Detection: Detect(content, source, s.opts.Config, priority)}
	if !res.Detection.IsEmergency || !s.opts.AutoEnqueue {
		return res, nil
	}
	item, _, err := s.Add(ctx, contentID, res.Detection)
	if err != nil {
		return res, err
	}
	res.Item = &item
	if !s.opts.AutoDispatch {
		return res, nil
	}
	published, job, err := s.Publish(ctx, item.ID)
	if err != nil {
		return res, err
	}
	res.Item = &published
	res.Job = &job
	return res, nil
}

// Add добавляет кандидата. Для материала с ожидающей записью возвращает её без изменений.
func (s *Service) Add(ctx context.Context, contentID uuid.UUID, det domain.Detection) (domain.EmergencyQueueItem, bool, error) {
	content, err := s.contents.GetContent(ctx, contentID)
	if err != nil {
		return domain.EmergencyQueueItem{}, false, fmt.Errorf("получение материала: %w", err)
	}
	if content.IsRetracted {
		return domain.EmergencyQueueItem{}, false, domain.NewValidationError("content", "материал отозван")
	}
	if !lifecycle.Publishable(content.Status) {
		return domain.EmergencyQueueItem{}, false, domain.NewValidationError("status",
			fmt.Sprintf("материал в статусе %s нельзя публиковать", content.Status))
	}
	priority := det.Priority
	if priority <= 0 {
		priority = s.opts.Config.DefaultPriority
	}
	item, created, err := s.queue.AddEmergency(ctx, domain.EmergencyQueueItem{
		ContentID:       contentID,
		Priority:        priority,
		MatchedKeywords: det.MatchedKeywords,
		Reason:          det.Reason,
		Status:          domain.EmergencyPending,
		DetectedAt:      s.clock.Now(),
	})
	if err != nil {
		return domain.EmergencyQueueItem{}, false, fmt.Errorf("добавление в очередь срочных: %w", err)
	}
	logger := s.log.With().Int64("emergency_id", item.ID).Str("content_id", contentID.String()).Logger()
	if !created {
		logger.Debug().Msg("кандидат уже в очереди")
		return item, false, nil
	}
	logger.Info().Int("priority", item.Priority).Strs("keywords", item.MatchedKeywords).Msg("срочный кандидат добавлен")
	metrics.EmergencyQueued.Inc()
	s.publishEvent(ctx, domain.PublishEvent{
		Event:      domain.EventEmergencyQueued,
		ContentID:  contentID,
		VersionNo:  content.CurrentVersionNo,
		Metadata:   map[string]any{"priority": item.Priority, "reason": item.Reason},
		OccurredAt: item.DetectedAt,
	})
	s.notify(ctx, item, content)
	return item, true, nil
}

// Publish ставит срочную задачу публикации и закрывает запись очереди.
func (s *Service) Publish(ctx context.Context, id int64) (domain.EmergencyQueueItem, domain.EnqueueResult, error) {
	item, err := s.pending(ctx, id)
	if err != nil {
		return domain.EmergencyQueueItem{}, domain.EnqueueResult{}, err
	}
	content, err := s.contents.GetContent(ctx, item.ContentID)
	if err != nil {
		return domain.EmergencyQueueItem{}, domain.EnqueueResult{}, fmt.Errorf("получение материала: %w", err)
	}
	now := s.clock.Now()
	res, err := s.jobs.Enqueue(ctx, domain.NewPublishJob{
		ContentID:       content.ID,
		VersionNo:       content.CurrentVersionNo,
		TargetPlatforms: content.Channels,
		ScheduledAt:     now,
		IsEmergency:     true,
	})
	if err != nil {
		return domain.EmergencyQueueItem{}, domain.EnqueueResult{}, fmt.Errorf("постановка срочной задачи: %w", err)
	}
	jobID := res.JobID
	if err := s.queue.ResolveEmergency(ctx, id, domain.EmergencyPublished, &jobID, now); err != nil {
		return domain.EmergencyQueueItem{}, res, s.resolveErr(err)
	}
	item.Status = domain.EmergencyPublished
	item.ResolvedAt = &now
	item.JobID = &jobID
	s.log.Info().
		Int64("emergency_id", id).
		Int64("job_id", jobID).
		Bool("already_queued", res.AlreadyQueued).
		Msg("срочный кандидат отправлен в публикацию")
	return item, res, nil
}

// Cancel закрывает запись без публикации.
func (s *Service) Cancel(ctx context.Context, id int64) (domain.EmergencyQueueItem, error) {
	item, err := s.pending(ctx, id)
	if err != nil {
		return domain.EmergencyQueueItem{}, err
	}
	now := s.clock.Now()
	if err := s.queue.ResolveEmergency(ctx, id, domain.EmergencyCancelled, nil, now); err != nil {
		return domain.EmergencyQueueItem{}, s.resolveErr(err)
	}
	item.Status = domain.EmergencyCancelled
	item.ResolvedAt = &now
	s.log.Info().Int64("emergency_id", id).Msg("срочный кандидат отменён")
	return item, nil
}

// UpdatePriority меняет приоритет ожидающей записи.
func (s *Service) UpdatePriority(ctx context.Context, id int64, priority int) (domain.EmergencyQueueItem, error) {
	item, err := s.pending(ctx, id)
	if err != nil {
		return domain.EmergencyQueueItem{}, err
	}
	if err := s.queue.UpdateEmergencyPriority(ctx, id, priority); err != nil {
		return domain.EmergencyQueueItem{}, s.resolveErr(err)
	}
	item.Priority = priority
	return item, nil
}

// ListPending возвращает ожидающие записи по убыванию приоритета.
func (s *Service) ListPending(ctx context.Context, limit int) ([]domain.EmergencyQueueItem, error) {
	if limit <= 0 {
		limit = 50
	}
	items, err := s.queue.ListPendingEmergencies(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("получение очереди срочных: %w", err)
	}
	return items, nil
}

func (s *Service) pending(ctx context.Context, id int64) (domain.EmergencyQueueItem, error) {
	item, err := s.queue.GetEmergency(ctx, id)
	if err != nil {
		return domain.EmergencyQueueItem{}, fmt.Errorf("получение записи очереди: %w", err)
	}
	if item.Status != domain.EmergencyPending {
		return domain.EmergencyQueueItem{}, domain.NewValidationError("status", fmt.Sprintf("запись уже в статусе %s", item.Status))
	}
	return item, nil
}

func (s *Service) resolveErr(err error) error {
	if errors.Is(err, domain.ErrVersionConflict) {
		return domain.NewValidationError("status", "запись уже обработана")
	}
	return fmt.Errorf("обновление записи очереди: %w", err)
}

func (s *Service) notify(ctx context.Context, item domain.EmergencyQueueItem, content domain.ContentItem) {
	if s.notifier == nil {
		return
	}
	send := func() error { return s.notifier.NotifyEmergency(ctx, item, content) }
	var err error
	if s.cache != nil {
		err = s.cache.Once("emergency:notified:"+item.ContentID.String(), notifyTTL, send)
	} else {
		err = send()
	}
	if err != nil {
		s.log.Warn().Err(err).Int64("emergency_id", item.ID).Msg("не удалось уведомить редакторов")
	}
}

func (s *Service) publishEvent(ctx context.Context, event domain.PublishEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("event", event.Event).Msg("не удалось отправить событие")
	}
}
