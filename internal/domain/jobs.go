package domain

import (
	"time"

	"github.com/google/uuid"
)

// PublishJobStatus — состояние задачи публикации.
type PublishJobStatus string

const (
	JobPending    PublishJobStatus = "pending"
	JobProcessing PublishJobStatus = "processing"
	JobCompleted  PublishJobStatus = "completed"
	JobFailed     PublishJobStatus = "failed"
)

// Terminal возвращает true для завершённых задач.
func (s PublishJobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// PublishJob — набор попыток доставить одну версию материала в целевые каналы.
type PublishJob struct {
	ID              int64            `json:"id"`
	ContentID       uuid.UUID        `json:"content_id"`
	VersionNo       int              `json:"version_no"`
	ScheduledAt     time.Time        `json:"scheduled_at"`
	Status          PublishJobStatus `json:"status"`
	AttemptCount    int              `json:"attempt_count"`
	MaxAttempts     int              `json:"max_attempts"`
	NextRetryAt     *time.Time       `json:"next_retry_at,omitempty"`
	TargetPlatforms []Platform       `json:"target_platforms,omitempty"`
	IsEmergency     bool             `json:"is_emergency"`
	SilencePush     bool             `json:"silence_push"`
	LastError       string           `json:"last_error"`
	ClaimedAt       *time.Time       `json:"claimed_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// DueAt — момент, начиная с которого задачу можно забрать.
func (j PublishJob) DueAt() time.Time {
	if j.NextRetryAt != nil {
		return *j.NextRetryAt
	}
	return j.ScheduledAt
}

// NewPublishJob описывает задачу для постановки в очередь.
type NewPublishJob struct {
	ContentID       uuid.UUID
	VersionNo       int
	TargetPlatforms []Platform
	ScheduledAt     time.Time
	IsEmergency     bool
	SilencePush     bool
}

// EnqueueResult — результат идемпотентной постановки задачи.
type EnqueueResult struct {
	JobID         int64 `json:"job_id"`
	AlreadyQueued bool  `json:"already_queued"`
}

// AttemptOutcome — итог цикла отправки, который сохраняется одной операцией.
type AttemptOutcome struct {
	Status       PublishJobStatus
	AttemptCount int
	NextRetryAt  *time.Time
	ScheduledAt  *time.Time
	LastError    string
}

// ChannelLogStatus — результат одного вызова канала.
type ChannelLogStatus string

const (
	ChannelLogSuccess ChannelLogStatus = "success"
	ChannelLogFailed  ChannelLogStatus = "failed"
)

// ChannelPublishLog — неизменяемая запись об одном вызове канала.
type ChannelPublishLog struct {
	ID             int64            `json:"id"`
	JobID          int64            `json:"job_id"`
	ContentID      uuid.UUID        `json:"content_id"`
	Channel        Platform         `json:"channel"`
	VersionNo      int              `json:"version_no"`
	Attempt        int              `json:"attempt"`
	Status         ChannelLogStatus `json:"status"`
	ExternalPostID string           `json:"external_post_id"`
	Error          string           `json:"error"`
	ErrorKind      ChannelErrorKind `json:"error_kind"`
	CreatedAt      time.Time        `json:"created_at"`
}

// RenderedPayload — подготовленное для платформы содержимое.
type RenderedPayload struct {
	Platform Platform
	Title    string
	Text     string
	Parts    []string
	URL      string
	ImageURL string
	Path     string
	Silent   bool
}

// PublishRequest передаётся ChannelPublisher.
type PublishRequest struct {
	ContentID uuid.UUID
	VersionNo int
	Payload   RenderedPayload
}

// PublishResult — ответ ChannelPublisher.
type PublishResult struct {
	Success        bool
	ExternalPostID string
	Error          string
	RetryAfter     time.Duration
}
