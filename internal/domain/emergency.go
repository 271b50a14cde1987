package domain

import (
	"time"

	"github.com/google/uuid"
)

// EmergencyStatus — состояние кандидата в срочные новости.
type EmergencyStatus string

const (
	EmergencyPending   EmergencyStatus = "pending"
	EmergencyPublished EmergencyStatus = "published"
	EmergencyCancelled EmergencyStatus = "cancelled"
)

// EmergencyQueueItem — обнаруженный кандидат, ожидающий подтверждения редактора или автоотправки.
type EmergencyQueueItem struct {
	ID              int64           `json:"id"`
	ContentID       uuid.UUID       `json:"content_id"`
	Priority        int             `json:"priority"`
	MatchedKeywords []string        `json:"matched_keywords,omitempty"`
	Reason          string          `json:"reason"`
	Status          EmergencyStatus `json:"status"`
	DetectedAt      time.Time       `json:"detected_at"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
	JobID           *int64          `json:"job_id,omitempty"`
}

// Detection — результат сканирования материала на срочность.
type Detection struct {
	IsEmergency     bool     `json:"is_emergency"`
	Priority        int      `json:"priority"`
	MatchedKeywords []string `json:"matched_keywords,omitempty"`
	Score           int      `json:"score"`
	Reason          string   `json:"reason"`
}

// EmergencyConfig задаёт признаки срочной новости.
// MinKeywordScore <= 0 выключает признак ключевых слов; DefaultPriority
// подставляется, когда приоритет не задан явно.
type EmergencyConfig struct {
	Keywords        []string
	MinKeywordScore int
	Categories      []string
	TrustedSources  []uuid.UUID
	DefaultPriority int
}
