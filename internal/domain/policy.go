package domain

import (
	"fmt"
	"time"
)

// ClockTime — время суток с точностью до минуты.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClock разбирает строку вида "23:00".
func ParseClock(raw string) (ClockTime, error) {
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return ClockTime{}, fmt.Errorf("parse clock %q: %w", raw, err)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// MustClock используется для констант в конфигурации по умолчанию и тестах.
func MustClock(raw string) ClockTime {
	c, err := ParseClock(raw)
	if err != nil {
		panic(err)
	}
	return c
}

// ClockOf возвращает время суток момента t в его часовом поясе.
func ClockOf(t time.Time) ClockTime {
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}
}

// Minutes — количество минут от полуночи.
func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// MarshalText реализует encoding.TextMarshaler для YAML и JSON.
func (c ClockTime) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText реализует encoding.TextUnmarshaler.
func (c *ClockTime) UnmarshalText(data []byte) error {
	parsed, err := ParseClock(string(data))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// TimeWindow — интервал суток [Start, End). Если Start > End, окно переходит через полночь.
type TimeWindow struct {
	Start ClockTime `yaml:"start" json:"start"`
	End   ClockTime `yaml:"end" json:"end"`
}

// Contains проверяет попадание времени суток в окно: начало включено, конец исключён.
func (w TimeWindow) Contains(c ClockTime) bool {
	t, start, end := c.Minutes(), w.Start.Minutes(), w.End.Minutes()
	if start <= end {
		return start <= t && t < end
	}
	return t >= start || t < end
}

// NightMode описывает ночной режим платформы.
type NightMode struct {
	Enabled         bool       `yaml:"enabled" json:"enabled"`
	Window          TimeWindow `yaml:"window" json:"window"`
	QueueForMorning bool       `yaml:"queue_for_morning" json:"queue_for_morning"`
	SilencePush     bool       `yaml:"silence_push" json:"silence_push"`
}

// PublishingPolicy — настройки расписания одной платформы.
type PublishingPolicy struct {
	Platform           Platform     `yaml:"platform" json:"platform"`
	Enabled            bool         `yaml:"enabled" json:"enabled"`
	Timezone           string       `yaml:"timezone" json:"timezone"`
	AllowedWindows     []TimeWindow `yaml:"allowed_windows" json:"allowed_windows"`
	DailyLimit         int          `yaml:"daily_limit" json:"daily_limit"`
	MinIntervalMinutes int          `yaml:"min_interval_minutes" json:"min_interval_minutes"`
	NightMode          NightMode    `yaml:"night_mode" json:"night_mode"`
	EmergencyOverride  bool         `yaml:"emergency_override" json:"emergency_override"`
}

// PublishingConfig — версионируемый набор политик, читается один раз на решение.
type PublishingConfig struct {
	Version               int                           `yaml:"version" json:"version"`
	Timezone              string                        `yaml:"timezone" json:"timezone"`
	ScheduleOffsetMinutes int                           `yaml:"schedule_offset_minutes" json:"schedule_offset_minutes"`
	DefaultPlatforms      []Platform                    `yaml:"default_platforms" json:"default_platforms"`
	Policies              map[Platform]PublishingPolicy `yaml:"policies" json:"policies"`
}

// Policy возвращает политику платформы. Отсутствующая платформа считается выключенной.
func (c PublishingConfig) Policy(p Platform) PublishingPolicy {
	policy, ok := c.Policies[p]
	if !ok {
		return PublishingPolicy{Platform: p, Enabled: false, Timezone: c.Timezone}
	}
	policy.Platform = p
	if policy.Timezone == "" {
		policy.Timezone = c.Timezone
	}
	return policy
}

// ScheduleOffset возвращает смещение для решений типа Schedule.
func (c PublishingConfig) ScheduleOffset() time.Duration {
	return time.Duration(c.ScheduleOffsetMinutes) * time.Minute
}

// PlatformCounters — счётчики успешных публикаций платформы.
type PlatformCounters struct {
	PublishedToday  int
	LastPublishedAt *time.Time
}

// ScheduleDecision — решение движка политик для одной платформы.
type ScheduleDecision struct {
	Platform      Platform
	CanPublishNow bool
	// ScheduledAt равен nil, если публикация отложена бессрочно.
	ScheduledAt *time.Time
	Reason      string
	SilencePush bool
}

// ScheduleStats — сводка по расписанию платформы.
type ScheduleStats struct {
	Platform        Platform   `json:"platform"`
	Enabled         bool       `json:"enabled"`
	PublishedToday  int        `json:"published_today"`
	DailyLimit      int        `json:"daily_limit"`
	Remaining       int        `json:"remaining"`
	LastPublishedAt *time.Time `json:"last_published_at,omitempty"`
	CanPublishNow   bool       `json:"can_publish_now"`
	NextSlotAt      *time.Time `json:"next_slot_at,omitempty"`
	Reason          string     `json:"reason"`
	PolicyVersion   int        `json:"policy_version"`
}
