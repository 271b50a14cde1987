package domain

import (
	"time"

	"github.com/google/uuid"
)

// PublishEvent описывает событие конвейера публикации, которое уходит во внешнюю шину.
type PublishEvent struct {
	Event      string         `json:"event"`
	ContentID  uuid.UUID      `json:"content_id"`
	JobID      int64          `json:"job_id,omitempty"`
	VersionNo  int            `json:"version_no,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

const (
	// EventJobEnqueued фиксирует постановку задачи публикации.
	EventJobEnqueued = "job.enqueued"
	// EventJobCompleted фиксирует доставку версии во все каналы.
	EventJobCompleted = "job.completed"
	// EventJobRetry фиксирует неудачную попытку с повтором.
	EventJobRetry = "job.retry"
	// EventJobFailed фиксирует окончательный отказ задачи.
	EventJobFailed = "job.failed"
	// EventEmergencyQueued фиксирует появление кандидата в срочные.
	EventEmergencyQueued = "emergency.queued"
	// EventContentTransition фиксирует переход жизненного цикла.
	EventContentTransition = "content.transition"
)
