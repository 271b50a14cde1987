package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"news-publisher/internal/domain"
	"news-publisher/internal/infra/metrics"
	"news-publisher/internal/usecase/lifecycle"
)

const (
	reasonSuperseded = "superseded"
	reasonRetracted  = "retracted"
	reasonNoContent  = "content not found"
	reasonStatus     = "not publishable in status "

	publisherActor       = "publisher"
	markPublishedRetries = 3
)

// cycle накапливает результаты отправки по каналам за один проход.
type cycle struct {
	attempted  bool
	failures   []string
	retryAfter time.Duration
	deferredAt *time.Time
	deferred   int
	pending    int
}

func (c *cycle) fail(channel domain.Platform, msg string, retryAfter time.Duration) {
	c.attempted = true
	c.failures = append(c.failures, fmt.Sprintf("%s: %s", channel, msg))
	if retryAfter > c.retryAfter {
		c.retryAfter = retryAfter
	}
}

func (c *cycle) deferUntil(at *time.Time) {
	c.deferred++
	if at == nil {
		return
	}
	if c.deferredAt == nil || at.Before(*c.deferredAt) {
		t := *at
		c.deferredAt = &t
	}
}

// Process выполняет один цикл отправки захваченной задачи и сохраняет его итог.
// Каналы, уже успешно получившие материал в рамках задачи, пропускаются.
func (s *Scheduler) Process(ctx context.Context, job domain.PublishJob) (domain.AttemptOutcome, error) {
	logger := s.jobLogger(job)
	content, err := s.deps.Contents.GetContent(ctx, job.ContentID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return s.finish(ctx, job, domain.AttemptOutcome{Status: domain.JobFailed, AttemptCount: job.AttemptCount, LastError: reasonNoContent}, logger)
	case err != nil:
		return domain.AttemptOutcome{}, fmt.Errorf("получение материала: %w", err)
	}
	if reason := haltReason(content, job); reason != "" {
		return s.finish(ctx, job, domain.AttemptOutcome{Status: domain.JobFailed, AttemptCount: job.AttemptCount, LastError: reason}, logger)
	}

	done, err := s.deps.Logs.SucceededChannels(ctx, job.ID)
	if err != nil {
		return domain.AttemptOutcome{}, fmt.Errorf("получение журнала каналов: %w", err)
	}
	skip := make(map[domain.Platform]bool, len(done))
	for _, p := range done {
		skip[p] = true
	}

	var c cycle
	attempt := job.AttemptCount + 1
	sent := false
	for _, platform := range job.TargetPlatforms {
		if skip[platform] {
			continue
		}
		if sent {
			if reason := s.recheck(ctx, job); reason != "" {
				count := job.AttemptCount
				if c.attempted {
					count = attempt
				}
				logger.Warn().Str("reason", reason).Msg("publisher: отправка прервана, материал изменил статус")
				if reason == reasonRetracted {
					s.retractWeb(ctx, job, logger)
				}
				return s.finish(ctx, job, domain.AttemptOutcome{Status: domain.JobFailed, AttemptCount: count, LastError: reason}, logger)
			}
		}
		sent = true
		c.pending++
		s.dispatch(ctx, job, content, platform, attempt, &c, logger)
	}

	return s.finish(ctx, job, s.outcome(job, &c), logger)
}

// haltReason возвращает причину, по которой задачу нельзя продолжать, или пустую строку.
func haltReason(content domain.ContentItem, job domain.PublishJob) string {
	switch {
	case content.IsRetracted:
		return reasonRetracted
	case !lifecycle.Publishable(content.Status):
		return reasonStatus + string(content.Status)
	case content.PublishedVersionNo > job.VersionNo:
		return reasonSuperseded
	}
	return ""
}

// recheck перечитывает материал между каналами: отзыв или блокировка останавливают отправку.
func (s *Scheduler) recheck(ctx context.Context, job domain.PublishJob) string {
	content, err := s.deps.Contents.GetContent(ctx, job.ContentID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return reasonNoContent
	case err != nil:
		s.log.Warn().Err(err).Int64("job_id", job.ID).Msg("publisher: не удалось перечитать материал")
		return ""
	}
	if content.IsRetracted || !lifecycle.Publishable(content.Status) {
		return haltReason(content, job)
	}
	return ""
}

// retractWeb снимает запись сайта, созданную отправкой, совпавшей с отзывом.
func (s *Scheduler) retractWeb(ctx context.Context, job domain.PublishJob, logger zerolog.Logger) {
	err := s.deps.Published.MarkRetracted(ctx, job.ContentID, s.deps.Clock.Now())
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		logger.Error().Err(err).Msg("publisher: не удалось отозвать запись сайта")
	}
}

func (s *Scheduler) dispatch(ctx context.Context, job domain.PublishJob, content domain.ContentItem, platform domain.Platform, attempt int, c *cycle, logger zerolog.Logger) {
	chLogger := logger.With().Str("channel", string(platform)).Logger()
	publisher, ok := s.deps.Channels[platform]
	if !ok {
		s.record(ctx, job, platform, attempt, domain.ChannelPublishLog{
			Status:    domain.ChannelLogFailed,
			Error:     "no publisher registered",
			ErrorKind: domain.ChannelErrorPermanent,
		})
		c.fail(platform, "no publisher registered", 0)
		return
	}

	silent := job.SilencePush
	if s.deps.Policy != nil {
		decision, err := s.deps.Policy.Schedule(ctx, platform, job.IsEmergency)
		if err != nil {
			chLogger.Warn().Err(err).Msg("publisher: не удалось проверить политику, канал отложен")
			at := s.deps.Clock.Now().Add(s.cfg.BaseBackoff)
			c.deferUntil(&at)
			return
		}
		if !decision.CanPublishNow {
			metrics.ChannelDeferrals.WithLabelValues(string(platform)).Inc()
			chLogger.Debug().Str("reason", decision.Reason).Msg("publisher: канал отложен политикой")
			c.deferUntil(decision.ScheduledAt)
			return
		}
		silent = silent || decision.SilencePush
	}

	payload, err := s.deps.Media.Render(ctx, content, platform, silent)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, domain.ErrPayloadUnavailable) {
			msg = domain.ErrPayloadUnavailable.Error()
		}
		s.record(ctx, job, platform, attempt, domain.ChannelPublishLog{
			Status:    domain.ChannelLogFailed,
			Error:     msg,
			ErrorKind: domain.ChannelErrorTransient,
		})
		metrics.ObserveChannelAttempt(string(platform), string(domain.ChannelLogFailed), string(domain.ChannelErrorTransient), 0)
		chLogger.Warn().Err(err).Msg("publisher: контент для канала не готов")
		c.fail(platform, msg, 0)
		return
	}

	var web domain.PublishedContent
	if platform == domain.PlatformWeb {
		web, err = s.webLocation(ctx, content)
		if err != nil {
			chLogger.Warn().Err(err).Msg("publisher: не удалось получить адрес на сайте")
			c.fail(platform, err.Error(), 0)
			return
		}
		payload.Path = web.Path
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ChannelTimeout)
	start := time.Now()
	res, err := publisher.Publish(callCtx, domain.PublishRequest{ContentID: content.ID, VersionNo: job.VersionNo, Payload: payload})
	cancel()
	elapsed := time.Since(start)

	if err == nil && !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "channel reported failure"
		}
		err = &domain.ChannelError{Kind: domain.ChannelErrorTransient, RetryAfter: res.RetryAfter, Err: errors.New(msg)}
	}
	if err != nil {
		kind := domain.ChannelErrorKindOf(err)
		if errors.Is(err, context.DeadlineExceeded) {
			kind = domain.ChannelErrorTransient
		}
		retryAfter := res.RetryAfter
		var ce *domain.ChannelError
		if errors.As(err, &ce) && ce.RetryAfter > retryAfter {
			retryAfter = ce.RetryAfter
		}
		s.record(ctx, job, platform, attempt, domain.ChannelPublishLog{
			Status:    domain.ChannelLogFailed,
			Error:     err.Error(),
			ErrorKind: kind,
		})
		metrics.ObserveChannelAttempt(string(platform), string(domain.ChannelLogFailed), string(kind), elapsed)
		chLogger.Warn().Err(err).Str("kind", string(kind)).Int("attempt", attempt).Msg("publisher: ошибка отправки в канал")
		c.fail(platform, err.Error(), retryAfter)
		return
	}

	c.attempted = true
	c.pending--
	s.record(ctx, job, platform, attempt, domain.ChannelPublishLog{
		Status:         domain.ChannelLogSuccess,
		ExternalPostID: res.ExternalPostID,
	})
	metrics.ObserveChannelAttempt(string(platform), string(domain.ChannelLogSuccess), "", elapsed)
	chLogger.Info().Str("external_id", res.ExternalPostID).Msg("publisher: отправлено в канал")

	if platform == domain.PlatformWeb {
		now := s.deps.Clock.Now()
		web.VersionNo = job.VersionNo
		web.UpdatedAt = now
		if web.PublishedAt.IsZero() {
			web.PublishedAt = now
		}
		if _, err := s.deps.Published.EnsurePublished(ctx, web); err != nil {
			chLogger.Error().Err(err).Msg("publisher: не удалось сохранить запись сайта")
		}
	}
}

// outcome переводит результаты цикла в итог задачи.
func (s *Scheduler) outcome(job domain.PublishJob, c *cycle) domain.AttemptOutcome {
	now := s.deps.Clock.Now()
	attempts := job.AttemptCount
	if c.attempted {
		attempts++
	}
	out := domain.AttemptOutcome{AttemptCount: attempts, LastError: job.LastError}

	switch {
	case len(c.failures) > 0:
		out.LastError = strings.Join(c.failures, "; ")
		if attempts >= job.MaxAttempts {
			out.Status = domain.JobFailed
			return out
		}
		next := now.Add(RetryDelay(attempts, s.cfg.BaseBackoff, s.cfg.MaxBackoff, c.retryAfter))
		out.Status = domain.JobPending
		out.NextRetryAt = &next
	case c.pending > 0:
		next := now.Add(s.cfg.RecheckAfter)
		if c.deferredAt != nil {
			next = *c.deferredAt
		}
		out.Status = domain.JobPending
		out.NextRetryAt = &next
	default:
		out.Status = domain.JobCompleted
		out.LastError = ""
	}
	return out
}

func (s *Scheduler) finish(ctx context.Context, job domain.PublishJob, outcome domain.AttemptOutcome, logger zerolog.Logger) (domain.AttemptOutcome, error) {
	now := s.deps.Clock.Now()
	if err := s.deps.Jobs.FinishAttempt(ctx, job.ID, outcome, now); err != nil {
		if errors.Is(err, domain.ErrClaimLost) {
			logger.Warn().Msg("publisher: задача перехвачена другим воркером, итог не сохранён")
		}
		return outcome, fmt.Errorf("сохранение итога задачи: %w", err)
	}
	metrics.JobsFinished.WithLabelValues(string(outcome.Status)).Inc()

	event := domain.PublishEvent{
		ContentID:  job.ContentID,
		JobID:      job.ID,
		VersionNo:  job.VersionNo,
		Metadata:   map[string]any{"attempt": outcome.AttemptCount},
		OccurredAt: now,
	}
	switch outcome.Status {
	case domain.JobCompleted:
		event.Event = domain.EventJobCompleted
		logger.Info().Int("attempt", outcome.AttemptCount).Msg("publisher: задача выполнена")
		s.advance(ctx, job, logger)
	case domain.JobFailed:
		event.Event = domain.EventJobFailed
		event.Metadata["error"] = outcome.LastError
		logger.Error().Str("error", outcome.LastError).Int("attempt", outcome.AttemptCount).Msg("publisher: задача завершилась ошибкой")
	default:
		event.Event = domain.EventJobRetry
		if outcome.NextRetryAt != nil {
			event.Metadata["next_retry_at"] = outcome.NextRetryAt.UTC().Format(time.RFC3339)
		}
		logger.Info().Int("attempt", outcome.AttemptCount).Str("last_error", outcome.LastError).Msg("publisher: задача отложена")
	}
	s.publishEvent(ctx, event)
	return outcome, nil
}

// advance отмечает версию опубликованной. Параллельная правка повторяется несколько раз.
func (s *Scheduler) advance(ctx context.Context, job domain.PublishJob, logger zerolog.Logger) {
	if s.deps.Lifecycle == nil {
		return
	}
	var err error
	for i := 0; i < markPublishedRetries; i++ {
		_, err = s.deps.Lifecycle.MarkPublished(ctx, job.ContentID, job.VersionNo, publisherActor)
		if !errors.Is(err, domain.ErrVersionConflict) {
			break
		}
	}
	if err != nil {
		logger.Warn().Err(err).Msg("publisher: не удалось отметить материал опубликованным")
	}
}

func (s *Scheduler) record(ctx context.Context, job domain.PublishJob, platform domain.Platform, attempt int, entry domain.ChannelPublishLog) {
	if s.deps.IDs != nil {
		entry.ID = s.deps.IDs.NextID()
	}
	entry.JobID = job.ID
	entry.ContentID = job.ContentID
	entry.Channel = platform
	entry.VersionNo = job.VersionNo
	entry.Attempt = attempt
	entry.CreatedAt = s.deps.Clock.Now()
	if err := s.deps.Logs.AppendChannelLog(ctx, entry); err != nil {
		s.log.Error().Err(err).Int64("job_id", job.ID).Str("channel", string(platform)).Msg("publisher: не удалось записать журнал канала")
	}
}

// webLocation возвращает сохранённый адрес материала на сайте или строит новый.
func (s *Scheduler) webLocation(ctx context.Context, content domain.ContentItem) (domain.PublishedContent, error) {
	existing, err := s.deps.Published.GetPublished(ctx, content.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.PublishedContent{}, fmt.Errorf("получение записи сайта: %w", err)
	}
	slug := Slug(content.Title, content.ID)
	return domain.PublishedContent{
		ContentID: content.ID,
		Slug:      slug,
		Path:      WebPath(s.cfg.WebPathPrefix, s.deps.Clock.Now(), slug),
	}, nil
}
