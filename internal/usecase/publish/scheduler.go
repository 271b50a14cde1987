// Package publish ведёт очередь задач публикации: постановку, захват, отправку по каналам и повторы.
package publish

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"news-publisher/internal/domain"
	"news-publisher/internal/infra/metrics"
	"news-publisher/internal/usecase/lifecycle"
	"news-publisher/internal/usecase/policy"
)

// Registry сопоставляет платформе её публикатор.
type Registry map[domain.Platform]domain.ChannelPublisher

// NewRegistry собирает таблицу публикаторов.
func NewRegistry(publishers ...domain.ChannelPublisher) Registry {
	r := make(Registry, len(publishers))
	for _, p := range publishers {
		r[p.Platform()] = p
	}
	return r
}

// PolicyGate решает, можно ли отправлять в платформу сейчас.
type PolicyGate interface {
	Config(ctx context.Context) (domain.PublishingConfig, error)
	Schedule(ctx context.Context, platform domain.Platform, isEmergency bool) (domain.ScheduleDecision, error)
}

// ContentAdvancer переводит материал в Published после доставки версии.
type ContentAdvancer interface {
	MarkPublished(ctx context.Context, contentID uuid.UUID, versionNo int, actor string) (domain.ContentItem, error)
}

// IDGenerator выдаёт идентификаторы задач и записей журнала.
type IDGenerator interface {
	NextID() int64
}

// Config задаёт параметры повторов и отправки.
type Config struct {
	MaxAttempts    int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	ChannelTimeout time.Duration
	// RecheckAfter — через сколько перепроверить задачу, все каналы которой отложены бессрочно.
	RecheckAfter  time.Duration
	WebPathPrefix string
}

// DefaultConfig возвращает значения по умолчанию.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    5,
		BaseBackoff:    30 * time.Second,
		MaxBackoff:     30 * time.Minute,
		ChannelTimeout: 15 * time.Second,
		RecheckAfter:   time.Hour,
		WebPathPrefix:  "/news",
	}
}

// Deps — зависимости планировщика. Events, Signal и IDs необязательны.
type Deps struct {
	Jobs      domain.PublishJobRepo
	Logs      domain.ChannelLogRepo
	Contents  domain.ContentRepo
	Published domain.PublishedContentRepo
	Media     domain.MediaProvider
	Policy    PolicyGate
	Lifecycle ContentAdvancer
	Channels  Registry
	Events    domain.EventPublisher
	Signal    domain.JobSignal
	IDs       IDGenerator
	Clock     domain.Clock
}

// Scheduler владеет задачами публикации и журналом каналов.
type Scheduler struct {
	deps Deps
	cfg  Config
	log  zerolog.Logger
}

// NewScheduler создаёт планировщик.
func NewScheduler(deps Deps, cfg Config, logger zerolog.Logger) *Scheduler {
	defaults := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaults.BaseBackoff
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = cfg.BaseBackoff
	}
	if cfg.ChannelTimeout <= 0 {
		cfg.ChannelTimeout = defaults.ChannelTimeout
	}
	if cfg.RecheckAfter <= 0 {
		cfg.RecheckAfter = defaults.RecheckAfter
	}
	if cfg.WebPathPrefix == "" {
		cfg.WebPathPrefix = defaults.WebPathPrefix
	}
	if deps.Clock == nil {
		deps.Clock = domain.SystemClock()
	}
	return &Scheduler{deps: deps, cfg: cfg, log: logger.With().Str("component", "publish").Logger()}
}

// Enqueue идемпотентно ставит задачу для (contentID, versionNo).
// Отозванный материал отклоняется ошибкой валидации.
func (s *Scheduler) Enqueue(ctx context.Context, req domain.NewPublishJob) (domain.EnqueueResult, error) {
	content, err := s.deps.Contents.GetContent(ctx, req.ContentID)
	if err != nil {
		return domain.EnqueueResult{}, fmt.Errorf("получение материала: %w", err)
	}
	if content.IsRetracted || content.Status == domain.ContentStatusRetracted {
		return domain.EnqueueResult{}, domain.NewValidationError("content", "материал отозван, публикация запрещена")
	}
	if !lifecycle.Publishable(content.Status) {
		return domain.EnqueueResult{}, domain.NewValidationError("status",
			fmt.Sprintf("материал в статусе %s нельзя публиковать", content.Status))
	}
	if req.VersionNo < 1 || req.VersionNo > content.CurrentVersionNo {
		return domain.EnqueueResult{}, domain.NewValidationError("version_no",
			fmt.Sprintf("версия %d не существует (текущая %d)", req.VersionNo, content.CurrentVersionNo))
	}

	targets, err := s.targets(ctx, req.TargetPlatforms, content)
	if err != nil {
		return domain.EnqueueResult{}, err
	}
	now := s.deps.Clock.Now()
	scheduledAt := req.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = now
	}
	job := domain.PublishJob{
		ContentID:       req.ContentID,
		VersionNo:       req.VersionNo,
		ScheduledAt:     scheduledAt,
		Status:          domain.JobPending,
		MaxAttempts:     s.cfg.MaxAttempts,
		TargetPlatforms: targets,
		IsEmergency:     req.IsEmergency,
		SilencePush:     req.SilencePush,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if s.deps.IDs != nil {
		job.ID = s.deps.IDs.NextID()
	}

	saved, created, err := s.deps.Jobs.CreateJobIfAbsent(ctx, job)
	if err != nil {
		return domain.EnqueueResult{}, fmt.Errorf("создание задачи: %w", err)
	}
	logger := s.jobLogger(saved)
	emergency := strconv.FormatBool(req.IsEmergency)
	if !created {
		metrics.JobsEnqueued.WithLabelValues(emergency, "duplicate").Inc()
		logger.Debug().Msg("publisher: задача для версии уже в очереди")
		return domain.EnqueueResult{JobID: saved.ID, AlreadyQueued: true}, nil
	}
	metrics.JobsEnqueued.WithLabelValues(emergency, "created").Inc()
	logger.Info().Time("scheduled_at", saved.ScheduledAt).Bool("emergency", saved.IsEmergency).Msg("publisher: задача поставлена")
	s.publishEvent(ctx, domain.PublishEvent{
		Event:      domain.EventJobEnqueued,
		ContentID:  saved.ContentID,
		JobID:      saved.ID,
		VersionNo:  saved.VersionNo,
		Metadata:   map[string]any{"emergency": saved.IsEmergency, "platforms": saved.TargetPlatforms},
		OccurredAt: now,
	})
	if saved.IsEmergency && s.deps.Signal != nil && !saved.ScheduledAt.After(now) {
		if err := s.deps.Signal.Notify(ctx); err != nil {
			logger.Warn().Err(err).Msg("publisher: не удалось разбудить воркеров")
		}
	}
	return domain.EnqueueResult{JobID: saved.ID}, nil
}

// ClaimDueJobs захватывает готовые задачи в порядке scheduledAt.
func (s *Scheduler) ClaimDueJobs(ctx context.Context, limit int) ([]domain.PublishJob, error) {
	jobs, err := s.deps.Jobs.ClaimDueJobs(ctx, s.deps.Clock.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("захват задач: %w", err)
	}
	metrics.JobsClaimed.Add(float64(len(jobs)))
	return jobs, nil
}

// ReleaseStale возвращает в очередь задачи, захват которых старше olderThan.
func (s *Scheduler) ReleaseStale(ctx context.Context, olderThan time.Duration) (int, error) {
	now := s.deps.Clock.Now()
	released, err := s.deps.Jobs.ReleaseStaleJobs(ctx, now.Add(-olderThan), now)
	if err != nil {
		return 0, fmt.Errorf("возврат зависших задач: %w", err)
	}
	if released > 0 {
		metrics.JobsReleased.Add(float64(released))
		s.log.Warn().Int("released", released).Dur("older_than", olderThan).Msg("publisher: зависшие задачи возвращены в очередь")
	}
	return released, nil
}

// CancelForContent завершает ожидающие задачи материала, например после отзыва.
func (s *Scheduler) CancelForContent(ctx context.Context, contentID uuid.UUID, reason string) (int, error) {
	n, err := s.deps.Jobs.FailPendingJobs(ctx, contentID, reason, s.deps.Clock.Now())
	if err != nil {
		return 0, fmt.Errorf("отмена задач материала: %w", err)
	}
	if n > 0 {
		metrics.JobsFinished.WithLabelValues(string(domain.JobFailed)).Add(float64(n))
		s.log.Info().Str("content_id", contentID.String()).Int("jobs", n).Str("reason", reason).Msg("publisher: задачи материала отменены")
	}
	return n, nil
}

// Jobs возвращает задачи материала.
func (s *Scheduler) Jobs(ctx context.Context, contentID uuid.UUID) ([]domain.PublishJob, error) {
	jobs, err := s.deps.Jobs.ListJobsByContent(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("получение задач: %w", err)
	}
	return jobs, nil
}

// ChannelLogs возвращает журнал вызовов каналов по задаче.
func (s *Scheduler) ChannelLogs(ctx context.Context, jobID int64) ([]domain.ChannelPublishLog, error) {
	logs, err := s.deps.Logs.ListChannelLogs(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("получение журнала: %w", err)
	}
	return logs, nil
}

func (s *Scheduler) targets(ctx context.Context, requested []domain.Platform, content domain.ContentItem) ([]domain.Platform, error) {
	targets := requested
	if len(targets) == 0 {
		targets = content.Channels
	}
	if len(targets) == 0 && s.deps.Policy != nil {
		cfg, err := s.deps.Policy.Config(ctx)
		if err != nil {
			return nil, err
		}
		targets = cfg.DefaultPlatforms
	}
	if len(targets) == 0 {
		return nil, domain.NewValidationError("target_platforms", "не указаны каналы публикации")
	}
	out := make([]domain.Platform, 0, len(targets))
	seen := make(map[domain.Platform]bool, len(targets))
	for _, t := range targets {
		p, err := domain.ParsePlatform(string(t))
		if err != nil {
			return nil, err
		}
		if _, ok := s.deps.Channels[p]; !ok {
			return nil, domain.NewValidationError("target_platforms", "нет публикатора для "+string(p))
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Scheduler) jobLogger(job domain.PublishJob) zerolog.Logger {
	return s.log.With().
		Int64("job_id", job.ID).
		Str("content_id", job.ContentID.String()).
		Int("version", job.VersionNo).
		Logger()
}

func (s *Scheduler) publishEvent(ctx context.Context, event domain.PublishEvent) {
	if s.deps.Events == nil {
		return
	}
	if err := s.deps.Events.PublishEvent(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("event", event.Event).Msg("publisher: не удалось отправить событие")
	}
}

var _ PolicyGate = (*policy.Service)(nil)
