package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ContentStatus описывает состояние материала в жизненном цикле публикации.
type ContentStatus string

const (
	ContentStatusNew             ContentStatus = "new"
	ContentStatusAutoReady       ContentStatus = "auto_ready"
	ContentStatusPendingApproval ContentStatus = "pending_approval"
	ContentStatusBlocked         ContentStatus = "blocked"
	ContentStatusScheduled       ContentStatus = "scheduled"
	ContentStatusReadyToPublish  ContentStatus = "ready_to_publish"
	ContentStatusRejected        ContentStatus = "rejected"
	ContentStatusPublished       ContentStatus = "published"
	ContentStatusRetracted       ContentStatus = "retracted"
)

// Valid сообщает, входит ли статус в фиксированный набор.
func (s ContentStatus) Valid() bool {
	switch s {
	case ContentStatusNew, ContentStatusAutoReady, ContentStatusPendingApproval, ContentStatusBlocked,
		ContentStatusScheduled, ContentStatusReadyToPublish, ContentStatusRejected,
		ContentStatusPublished, ContentStatusRetracted:
		return true
	}
	return false
}

// Terminal возвращает true для статусов, из которых нет обычных переходов.
func (s ContentStatus) Terminal() bool {
	return s == ContentStatusBlocked || s == ContentStatusRejected || s == ContentStatusRetracted
}

// Platform — канал публикации.
type Platform string

const (
	PlatformWeb       Platform = "web"
	PlatformMobile    Platform = "mobile"
	PlatformX         Platform = "x"
	PlatformInstagram Platform = "instagram"
)

// AllPlatforms перечисляет известные каналы в порядке отправки по умолчанию.
var AllPlatforms = []Platform{PlatformWeb, PlatformMobile, PlatformX, PlatformInstagram}

// ParsePlatform приводит строку к Platform.
func ParsePlatform(raw string) (Platform, error) {
	p := Platform(raw)
	for _, known := range AllPlatforms {
		if p == known {
			return p, nil
		}
	}
	return "", NewValidationError("platform", "unknown platform "+raw)
}

// Source содержит метаданные источника, которые читает движок.
type Source struct {
	ID               uuid.UUID  `json:"id"`
	Name             string     `json:"name"`
	TrustLevel       int        `json:"trust_level"`
	Category         string     `json:"category"`
	GroupID          *uuid.UUID `json:"group_id,omitempty"`
	Type             string     `json:"type"`
	EmergencyTrigger bool       `json:"emergency_trigger"`
}

// ContentItem представляет один загруженный новостной материал.
type ContentItem struct {
	ID                 uuid.UUID     `json:"id"`
	SourceID           uuid.UUID     `json:"source_id"`
	ExternalID         string        `json:"external_id"`
	Title              string        `json:"title"`
	Summary            string        `json:"summary"`
	Body               string        `json:"body"`
	URL                string        `json:"url"`
	ImageURL           string        `json:"image_url"`
	Channels           []Platform    `json:"channels,omitempty"`
	Status             ContentStatus `json:"status"`
	DecisionType       DecisionType  `json:"decision_type"`
	DecisionReason     string        `json:"decision_reason"`
	MatchedRuleID      *uuid.UUID    `json:"matched_rule_id,omitempty"`
	ScheduledAt        *time.Time    `json:"scheduled_at,omitempty"`
	CurrentVersionNo   int           `json:"current_version_no"`
	PublishedVersionNo int           `json:"published_version_no"`
	IsBreaking         bool          `json:"is_breaking"`
	IsRetracted        bool          `json:"is_retracted"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// HasChannel сообщает, включён ли канал в черновике.
func (c ContentItem) HasChannel(p Platform) bool {
	for _, ch := range c.Channels {
		if ch == p {
			return true
		}
	}
	return false
}

// ContentPatch описывает правку редактора. Пустые указатели не меняют поле.
type ContentPatch struct {
	Title    *string
	Summary  *string
	Body     *string
	ImageURL *string
	Channels []Platform
}

// RevisionAction — тип действия, которым помечается снимок версии.
type RevisionAction string

const (
	ActionTriaged        RevisionAction = "triaged"
	ActionDraftSaved     RevisionAction = "draft_saved"
	ActionApproved       RevisionAction = "approved"
	ActionRejected       RevisionAction = "rejected"
	ActionScheduled      RevisionAction = "scheduled"
	ActionCorrected      RevisionAction = "corrected"
	ActionRetracted      RevisionAction = "retracted"
	ActionBreakingMarked RevisionAction = "breaking_marked"
	ActionPublished      RevisionAction = "published"
	ActionResubmitted    RevisionAction = "resubmitted"
)

// ContentRevision — неизменяемый снимок состояния материала на версии.
type ContentRevision struct {
	ID         int64           `json:"id"`
	ContentID  uuid.UUID       `json:"content_id"`
	VersionNo  int             `json:"version_no"`
	ActionType RevisionAction  `json:"action_type"`
	Snapshot   json.RawMessage `json:"snapshot,omitempty"`
	Actor      string          `json:"actor"`
	CreatedAt  time.Time       `json:"created_at"`
}

// PublishedContent — публичная запись о материале на сайте.
type PublishedContent struct {
	ContentID   uuid.UUID `json:"content_id"`
	Path        string    `json:"path"`
	Slug        string    `json:"slug"`
	VersionNo   int       `json:"version_no"`
	IsRetracted bool      `json:"is_retracted"`
	PublishedAt time.Time `json:"published_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
