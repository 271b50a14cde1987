package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"news-publisher/internal/domain"
)

// Plan — сводное решение по набору платформ.
type Plan struct {
	Decisions     []domain.ScheduleDecision
	CanPublishNow bool
	// ScheduledAt — самый ранний слот среди платформ, nil если все платформы отложены бессрочно.
	ScheduledAt *time.Time
	SilencePush bool
}

// Service читает конфигурацию и счётчики и применяет Decide.
type Service struct {
	store domain.PolicyStore
	logs  domain.ChannelLogRepo
	clock domain.Clock
	log   zerolog.Logger
}

// NewService создаёт сервис политик.
func NewService(store domain.PolicyStore, logs domain.ChannelLogRepo, clock domain.Clock, logger zerolog.Logger) *Service {
	if clock == nil {
		clock = domain.SystemClock()
	}
	return &Service{
		store: store,
		logs:  logs,
		clock: clock,
		log:   logger.With().Str("component", "policy").Logger(),
	}
}

// Config возвращает текущую конфигурацию публикации.
func (s *Service) Config(ctx context.Context) (domain.PublishingConfig, error) {
	cfg, err := s.store.LoadPublishingConfig(ctx)
	if err != nil {
		return domain.PublishingConfig{}, fmt.Errorf("загрузка политики: %w", err)
	}
	return cfg, nil
}

// Schedule решает, можно ли публиковать в платформу сейчас.
func (s *Service) Schedule(ctx context.Context, platform domain.Platform, isEmergency bool) (domain.ScheduleDecision, error) {
	cfg, err := s.Config(ctx)
	if err != nil {
		return domain.ScheduleDecision{}, err
	}
	return s.decide(ctx, cfg, platform, isEmergency, s.clock.Now())
}

// Plan принимает решения по всем платформам на одной версии конфигурации.
func (s *Service) Plan(ctx context.Context, platforms []domain.Platform, isEmergency bool) (Plan, error) {
	cfg, err := s.Config(ctx)
	if err != nil {
		return Plan{}, err
	}
	if len(platforms) == 0 {
		platforms = cfg.DefaultPlatforms
	}
	now := s.clock.Now()
	plan := Plan{}
	for _, p := range platforms {
		d, err := s.decide(ctx, cfg, p, isEmergency, now)
		if err != nil {
			return Plan{}, err
		}
		plan.Decisions = append(plan.Decisions, d)
		if p == domain.PlatformMobile {
			plan.SilencePush = d.SilencePush
		}
		switch {
		case d.CanPublishNow:
			plan.CanPublishNow = true
			at := now
			plan.ScheduledAt = &at
		case d.ScheduledAt != nil && !plan.CanPublishNow:
			if plan.ScheduledAt == nil || d.ScheduledAt.Before(*plan.ScheduledAt) {
				at := *d.ScheduledAt
				plan.ScheduledAt = &at
			}
		}
	}
	return plan, nil
}

// Stats возвращает сводку по расписанию платформы. Remaining равен -1 при отсутствии лимита.
func (s *Service) Stats(ctx context.Context, platform domain.Platform) (domain.ScheduleStats, error) {
	cfg, err := s.Config(ctx)
	if err != nil {
		return domain.ScheduleStats{}, err
	}
	now := s.clock.Now()
	p := cfg.Policy(platform)
	counters, err := s.counters(ctx, p, now)
	if err != nil {
		return domain.ScheduleStats{}, err
	}
	d, err := Decide(p, false, counters, now)
	if err != nil {
		return domain.ScheduleStats{}, err
	}
	remaining := -1
	if p.DailyLimit > 0 {
		remaining = p.DailyLimit - counters.PublishedToday
		if remaining < 0 {
			remaining = 0
		}
	}
	stats := domain.ScheduleStats{
		Platform:        platform,
		Enabled:         p.Enabled,
		PublishedToday:  counters.PublishedToday,
		DailyLimit:      p.DailyLimit,
		Remaining:       remaining,
		LastPublishedAt: counters.LastPublishedAt,
		CanPublishNow:   d.CanPublishNow,
		NextSlotAt:      d.ScheduledAt,
		Reason:          d.Reason,
		PolicyVersion:   cfg.Version,
	}
	if d.CanPublishNow {
		stats.NextSlotAt = &now
	}
	return stats, nil
}

func (s *Service) decide(ctx context.Context, cfg domain.PublishingConfig, platform domain.Platform, isEmergency bool, now time.Time) (domain.ScheduleDecision, error) {
	p := cfg.Policy(platform)
	counters, err := s.counters(ctx, p, now)
	if err != nil {
		return domain.ScheduleDecision{}, err
	}
	d, err := Decide(p, isEmergency, counters, now)
	if err != nil {
		return domain.ScheduleDecision{}, fmt.Errorf("политика %s: %w", platform, err)
	}
	s.log.Debug().
		Str("platform", string(platform)).
		Bool("emergency", isEmergency).
		Bool("now", d.CanPublishNow).
		Str("reason", d.Reason).
		Int("policy_version", cfg.Version).
		Msg("решение по расписанию")
	return d, nil
}

func (s *Service) counters(ctx context.Context, p domain.PublishingPolicy, now time.Time) (domain.PlatformCounters, error) {
	if !p.Enabled || s.logs == nil {
		return domain.PlatformCounters{}, nil
	}
	dayStart, err := DayStart(p, now)
	if err != nil {
		return domain.PlatformCounters{}, err
	}
	counters, err := s.logs.PlatformCounters(ctx, p.Platform, dayStart)
	if err != nil {
		return domain.PlatformCounters{}, fmt.Errorf("счётчики %s: %w", p.Platform, err)
	}
	return counters, nil
}
