package policy

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"news-publisher/internal/domain"
)

type fakeStore struct {
	cfg   domain.PublishingConfig
	loads int
}

func (f *fakeStore) LoadPublishingConfig(context.Context) (domain.PublishingConfig, error) {
	f.loads++
	return f.cfg, nil
}

type fakeLogs struct {
	domain.ChannelLogRepo
	counters map[domain.Platform]domain.PlatformCounters
	since    map[domain.Platform]time.Time
}

func (f *fakeLogs) PlatformCounters(_ context.Context, p domain.Platform, dayStart time.Time) (domain.PlatformCounters, error) {
	if f.since == nil {
		f.since = map[domain.Platform]time.Time{}
	}
	f.since[p] = dayStart
	return f.counters[p], nil
}

func testConfig() domain.PublishingConfig {
	return domain.PublishingConfig{
		Version:          3,
		Timezone:         "UTC",
		DefaultPlatforms: []domain.Platform{domain.PlatformWeb, domain.PlatformMobile},
		Policies: map[domain.Platform]domain.PublishingPolicy{
			domain.PlatformWeb: {Enabled: true},
			domain.PlatformMobile: {
				Enabled:    true,
				DailyLimit: 5,
				NightMode: domain.NightMode{
					Enabled:     true,
					Window:      window("23:00", "08:00"),
					SilencePush: true,
				},
				EmergencyOverride: true,
			},
			domain.PlatformX: {
				Enabled:        true,
				AllowedWindows: []domain.TimeWindow{window("09:00", "18:00")},
			},
			domain.PlatformInstagram: {Enabled: false},
		},
	}
}

func TestServiceScheduleDailyLimit(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	logs := &fakeLogs{counters: map[domain.Platform]domain.PlatformCounters{
		domain.PlatformMobile: {PublishedToday: 5},
	}}
	svc := NewService(&fakeStore{cfg: testConfig()}, logs, domain.ClockFunc(func() time.Time { return now }), zerolog.Nop())

	d, err := svc.Schedule(context.Background(), domain.PlatformMobile, false)
	require.NoError(t, err)
	require.False(t, d.CanPublishNow)
	require.Contains(t, d.Reason, "daily limit")
	require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), logs.since[domain.PlatformMobile])

	d, err = svc.Schedule(context.Background(), domain.PlatformMobile, true)
	require.NoError(t, err)
	require.True(t, d.CanPublishNow)
}

func TestServicePlanEarliestSlot(t *testing.T) {
	now := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
	store := &fakeStore{cfg: testConfig()}
	svc := NewService(store, &fakeLogs{}, domain.ClockFunc(func() time.Time { return now }), zerolog.Nop())

	plan, err := svc.Plan(context.Background(), []domain.Platform{domain.PlatformX, domain.PlatformInstagram}, false)
	require.NoError(t, err)
	require.Equal(t, 1, store.loads)
	require.False(t, plan.CanPublishNow)
	require.NotNil(t, plan.ScheduledAt)
	require.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), *plan.ScheduledAt)
	require.Len(t, plan.Decisions, 2)
	require.Equal(t, ReasonDisabled, plan.Decisions[1].Reason)

	plan, err = svc.Plan(context.Background(), nil, false)
	require.NoError(t, err)
	require.True(t, plan.CanPublishNow)
	require.True(t, plan.SilencePush)
	require.Equal(t, now, *plan.ScheduledAt)

	plan, err = svc.Plan(context.Background(), []domain.Platform{domain.PlatformInstagram}, false)
	require.NoError(t, err)
	require.False(t, plan.CanPublishNow)
	require.Nil(t, plan.ScheduledAt)
}

func TestServiceStats(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	last := now.Add(-time.Hour)
	logs := &fakeLogs{counters: map[domain.Platform]domain.PlatformCounters{
		domain.PlatformMobile: {PublishedToday: 2, LastPublishedAt: &last},
	}}
	svc := NewService(&fakeStore{cfg: testConfig()}, logs, domain.ClockFunc(func() time.Time { return now }), zerolog.Nop())

	stats, err := svc.Stats(context.Background(), domain.PlatformMobile)
	require.NoError(t, err)
	require.Equal(t, 2, stats.PublishedToday)
	require.Equal(t, 3, stats.Remaining)
	require.Equal(t, 3, stats.PolicyVersion)
	require.True(t, stats.CanPublishNow)
	require.Equal(t, &last, stats.LastPublishedAt)

	stats, err = svc.Stats(context.Background(), domain.PlatformWeb)
	require.NoError(t, err)
	require.Equal(t, -1, stats.Remaining)

	stats, err = svc.Stats(context.Background(), domain.PlatformInstagram)
	require.NoError(t, err)
	require.False(t, stats.Enabled)
	require.Equal(t, ReasonDisabled, stats.Reason)
	require.Nil(t, stats.NextSlotAt)
}
