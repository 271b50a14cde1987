// Package policy решает, можно ли публиковать в платформу сейчас или нужно отложить.
package policy

import (
	"fmt"
	"time"

	"news-publisher/internal/domain"
)

const (
	ReasonDisabled          = "platform disabled"
	ReasonEmergencyOverride = "emergency override"
	ReasonNightMode         = "night mode: queued for morning"
	ReasonOutsideWindows    = "outside allowed windows"
	ReasonDailyLimit        = "daily limit reached"
	ReasonMinInterval       = "min interval not elapsed"
	ReasonAllowed           = "allowed"
)

// Decide применяет политику платформы к моменту now. Все сравнения выполняются в часовом поясе политики.
func Decide(p domain.PublishingPolicy, isEmergency bool, counters domain.PlatformCounters, now time.Time) (domain.ScheduleDecision, error) {
	loc, err := LoadLocation(p.Timezone)
	if err != nil {
		return domain.ScheduleDecision{}, err
	}
	local := now.In(loc)
	clock := domain.ClockOf(local)
	decision := domain.ScheduleDecision{Platform: p.Platform}

	if !p.Enabled {
		decision.Reason = ReasonDisabled
		return decision, nil
	}

	if isEmergency && p.EmergencyOverride {
		decision.CanPublishNow = true
		decision.Reason = ReasonEmergencyOverride
		return decision, nil
	}

	if p.NightMode.Enabled && p.NightMode.Window.Contains(clock) {
		if p.NightMode.QueueForMorning {
			return deferTo(decision, nextOccurrence(local, p.NightMode.Window.End), ReasonNightMode), nil
		}
		decision.SilencePush = p.NightMode.SilencePush
	}

	if len(p.AllowedWindows) > 0 && !insideAny(p.AllowedWindows, clock) {
		return deferTo(decision, nextWindowStart(local, p.AllowedWindows), ReasonOutsideWindows), nil
	}

	if p.DailyLimit > 0 && counters.PublishedToday >= p.DailyLimit {
		return deferTo(decision, nextMidnight(local), ReasonDailyLimit), nil
	}

	if p.MinIntervalMinutes > 0 && counters.LastPublishedAt != nil {
		interval := time.Duration(p.MinIntervalMinutes) * time.Minute
		earliest := counters.LastPublishedAt.Add(interval)
		if now.Before(earliest) {
			reason := fmt.Sprintf("%s (%d min)", ReasonMinInterval, p.MinIntervalMinutes)
			return deferTo(decision, earliest.In(loc), reason), nil
		}
	}

	decision.CanPublishNow = true
	decision.Reason = ReasonAllowed
	return decision, nil
}

// DayStart возвращает начало суток момента now в часовом поясе политики.
func DayStart(p domain.PublishingPolicy, now time.Time) (time.Time, error) {
	loc, err := LoadLocation(p.Timezone)
	if err != nil {
		return time.Time{}, err
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc), nil
}

func deferTo(d domain.ScheduleDecision, at time.Time, reason string) domain.ScheduleDecision {
	d.CanPublishNow = false
	d.ScheduledAt = &at
	d.Reason = reason
	d.SilencePush = false
	return d
}

func insideAny(windows []domain.TimeWindow, c domain.ClockTime) bool {
	for _, w := range windows {
		if w.Contains(c) {
			return true
		}
	}
	return false
}

func nextWindowStart(local time.Time, windows []domain.TimeWindow) time.Time {
	var best time.Time
	for i, w := range windows {
		candidate := nextOccurrence(local, w.Start)
		if i == 0 || candidate.Before(best) {
			best = candidate
		}
	}
	return best
}

// nextOccurrence возвращает ближайший момент строго после local с указанным временем суток.
func nextOccurrence(local time.Time, c domain.ClockTime) time.Time {
	loc := local.Location()
	candidate := time.Date(local.Year(), local.Month(), local.Day(), c.Hour, c.Minute, 0, 0, loc)
	if !candidate.After(local) {
		candidate = time.Date(local.Year(), local.Month(), local.Day()+1, c.Hour, c.Minute, 0, 0, loc)
	}
	return candidate
}

func nextMidnight(local time.Time) time.Time {
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, local.Location())
}
