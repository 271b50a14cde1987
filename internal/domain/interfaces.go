package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ContentRepo хранит материалы и их ревизии.
type ContentRepo interface {
	CreateContent(ctx context.Context, item ContentItem) (ContentItem, error)
	GetContent(ctx context.Context, id uuid.UUID) (ContentItem, error)
	// ApplyTransition сохраняет новое состояние материала и снимок ревизии атомарно.
	// Если текущая версия в хранилище отличается от expectedVersion, возвращает ErrVersionConflict.
	ApplyTransition(ctx context.Context, item ContentItem, expectedVersion int, rev ContentRevision) error
	ListRevisions(ctx context.Context, contentID uuid.UUID) ([]ContentRevision, error)
	// ListDueScheduled возвращает материалы в статусе scheduled, время которых наступило.
	ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]ContentItem, error)
}

// SourceRepo отдаёт метаданные источников только для чтения.
type SourceRepo interface {
	GetSource(ctx context.Context, id uuid.UUID) (Source, error)
}

// RuleRepo отдаёт правила триажа в порядке вставки.
type RuleRepo interface {
	ListRules(ctx context.Context) ([]RuleRecord, error)
}

// EmergencyQueueRepo хранит кандидатов в срочные новости.
type EmergencyQueueRepo interface {
	// AddEmergency создаёт запись или возвращает уже ожидающую запись по тому же материалу.
	AddEmergency(ctx context.Context, item EmergencyQueueItem) (EmergencyQueueItem, bool, error)
	GetEmergency(ctx context.Context, id int64) (EmergencyQueueItem, error)
	// ListPendingEmergencies сортирует по приоритету по убыванию, затем по времени обнаружения.
	ListPendingEmergencies(ctx context.Context, limit int) ([]EmergencyQueueItem, error)
	// ResolveEmergency переводит запись из pending в терминальный статус.
	// Если запись уже не pending, возвращает ErrVersionConflict.
	ResolveEmergency(ctx context.Context, id int64, status EmergencyStatus, jobID *int64, at time.Time) error
	UpdateEmergencyPriority(ctx context.Context, id int64, priority int) error
}

// PublishJobRepo хранит задачи публикации.
type PublishJobRepo interface {
	// CreateJobIfAbsent создаёт задачу, если для (contentID, versionNo) нет незавершённой.
	// Возвращает существующую задачу и false при дубликате.
	CreateJobIfAbsent(ctx context.Context, job PublishJob) (PublishJob, bool, error)
	GetJob(ctx context.Context, id int64) (PublishJob, error)
	// ClaimDueJobs атомарно переводит готовые задачи из pending в processing.
	ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]PublishJob, error)
	// FinishAttempt сохраняет итог цикла, если задача всё ещё в processing, иначе ErrClaimLost.
	FinishAttempt(ctx context.Context, jobID int64, outcome AttemptOutcome, now time.Time) error
	// ReleaseStaleJobs возвращает в pending задачи, захваченные раньше claimedBefore.
	ReleaseStaleJobs(ctx context.Context, claimedBefore, now time.Time) (int, error)
	// FailPendingJobs завершает ожидающие задачи материала с указанной причиной.
	FailPendingJobs(ctx context.Context, contentID uuid.UUID, reason string, now time.Time) (int, error)
	ListJobsByContent(ctx context.Context, contentID uuid.UUID) ([]PublishJob, error)
}

// ChannelLogRepo хранит журнал вызовов каналов.
type ChannelLogRepo interface {
	AppendChannelLog(ctx context.Context, entry ChannelPublishLog) error
	ListChannelLogs(ctx context.Context, jobID int64) ([]ChannelPublishLog, error)
	// SucceededChannels возвращает каналы, уже успешно отправленные в рамках задачи.
	SucceededChannels(ctx context.Context, jobID int64) ([]Platform, error)
	// PlatformCounters считает успешные отправки платформы с начала суток dayStart.
	PlatformCounters(ctx context.Context, platform Platform, dayStart time.Time) (PlatformCounters, error)
}

// PublishedContentRepo хранит публичные записи сайта.
type PublishedContentRepo interface {
	GetPublished(ctx context.Context, contentID uuid.UUID) (PublishedContent, error)
	// EnsurePublished создаёт запись или обновляет версию, не трогая path и slug.
	EnsurePublished(ctx context.Context, pc PublishedContent) (PublishedContent, error)
	MarkRetracted(ctx context.Context, contentID uuid.UUID, at time.Time) error
}

// PolicyStore загружает актуальную конфигурацию публикации.
type PolicyStore interface {
	LoadPublishingConfig(ctx context.Context) (PublishingConfig, error)
}

// ChannelPublisher отправляет материал в одну платформу.
type ChannelPublisher interface {
	Platform() Platform
	Publish(ctx context.Context, req PublishRequest) (PublishResult, error)
}

// MediaProvider готовит содержимое для платформы или возвращает ErrPayloadUnavailable.
type MediaProvider interface {
	Render(ctx context.Context, item ContentItem, platform Platform, silent bool) (RenderedPayload, error)
}

// EventPublisher отправляет события конвейера во внешнюю шину.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event PublishEvent) error
}

// EmergencyNotifier сообщает редакторам о новом срочном кандидате.
type EmergencyNotifier interface {
	NotifyEmergency(ctx context.Context, item EmergencyQueueItem, content ContentItem) error
}

// JobSignal будит воркеров раньше очередного опроса.
type JobSignal interface {
	Notify(ctx context.Context) error
	Wait(ctx context.Context, timeout time.Duration) (bool, error)
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}

// Clock отдаёт текущее время.
type Clock interface {
	Now() time.Time
}

// ClockFunc адаптирует функцию к Clock.
type ClockFunc func() time.Time

// Now реализует Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock возвращает реальные часы.
func SystemClock() Clock { return ClockFunc(time.Now) }
