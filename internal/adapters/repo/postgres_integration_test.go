//go:build integration

package repo

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"news-publisher/internal/domain"
	"news-publisher/migrations"
)

var (
	testPool      *pgxpool.Pool
	testContainer testcontainers.Container
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	if err := startPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	if testPool != nil {
		testPool.Close()
	}
	if testContainer != nil {
		termCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = testContainer.Terminate(termCtx)
	}
	os.Exit(code)
}

func startPostgres(ctx context.Context) error {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_USER":     "postgres",
			"POSTGRES_DB":       "news",
		},
		WaitingFor: wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
			return fmt.Sprintf("postgres://postgres:postgres@%s:%s/news?sslmode=disable", host, port.Port())
		}).WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return err
	}
	testContainer = container

	host, err := container.Host(ctx)
	if err != nil {
		return err
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return err
	}
	dsn := fmt.Sprintf("postgres://postgres:postgres@%s:%s/news?sslmode=disable", host, port.Port())

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := migrations.Run(db); err != nil {
		return err
	}

	testPool, err = pgxpool.New(ctx, dsn)
	return err
}

func resetTables(t *testing.T) *Postgres {
	t.Helper()
	_, err := testPool.Exec(context.Background(), `
TRUNCATE channel_publish_logs, publish_jobs, emergency_queue, published_content, content_revisions,
         content_items, publishing_rules, sources, publishing_configs RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return NewPostgres(testPool)
}

func seedContent(t *testing.T, pg *Postgres) domain.ContentItem {
	t.Helper()
	ctx := context.Background()
	src := domain.Source{ID: uuid.New(), Name: "wire", TrustLevel: 3}
	require.NoError(t, pg.UpsertSource(ctx, src))
	item, err := pg.CreateContent(ctx, domain.ContentItem{
		SourceID: src.ID,
		Title:    "Quake hits the coast",
		Channels: []domain.Platform{domain.PlatformWeb, domain.PlatformMobile},
		Status:   domain.ContentStatusNew,
	})
	require.NoError(t, err)
	return item
}

func TestApplyTransitionRejectsStaleVersion(t *testing.T) {
	pg := resetTables(t)
	ctx := context.Background()
	item := seedContent(t, pg)

	next := item
	next.CurrentVersionNo = 1
	next.Status = domain.ContentStatusPendingApproval
	rev := domain.ContentRevision{ContentID: item.ID, VersionNo: 1, ActionType: domain.ActionTriaged, Snapshot: []byte(`{}`), Actor: "system", CreatedAt: time.Now()}
	require.NoError(t, pg.ApplyTransition(ctx, next, 0, rev))
	require.ErrorIs(t, pg.ApplyTransition(ctx, next, 0, rev), domain.ErrVersionConflict)

	missing := next
	missing.ID = uuid.New()
	require.ErrorIs(t, pg.ApplyTransition(ctx, missing, 1, rev), domain.ErrNotFound)

	got, err := pg.GetContent(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.CurrentVersionNo)
	require.Equal(t, []domain.Platform{domain.PlatformWeb, domain.PlatformMobile}, got.Channels)

	revs, err := pg.ListRevisions(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, revs, 1)
}

func TestCreateJobIfAbsentAndClaim(t *testing.T) {
	pg := resetTables(t)
	ctx := context.Background()
	item := seedContent(t, pg)
	now := time.Now().UTC().Truncate(time.Millisecond)

	job := domain.PublishJob{ContentID: item.ID, VersionNo: 1, ScheduledAt: now, MaxAttempts: 3, TargetPlatforms: []domain.Platform{domain.PlatformWeb}}
	first, created, err := pg.CreateJobIfAbsent(ctx, job)
	require.NoError(t, err)
	require.True(t, created)
	second, created, err := pg.CreateJobIfAbsent(ctx, job)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed []int64
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			jobs, err := pg.ClaimDueJobs(ctx, now, 10)
			require.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			for _, j := range jobs {
				claimed = append(claimed, j.ID)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, []int64{first.ID}, claimed)

	require.NoError(t, pg.FinishAttempt(ctx, first.ID, domain.AttemptOutcome{Status: domain.JobCompleted, AttemptCount: 1}, now))
	require.ErrorIs(t, pg.FinishAttempt(ctx, first.ID, domain.AttemptOutcome{Status: domain.JobFailed}, now), domain.ErrClaimLost)

	// после завершения та же версия снова может быть поставлена
	_, created, err = pg.CreateJobIfAbsent(ctx, job)
	require.NoError(t, err)
	require.True(t, created)
}

func TestReleaseStaleAndFailPending(t *testing.T) {
	pg := resetTables(t)
	ctx := context.Background()
	item := seedContent(t, pg)
	now := time.Now().UTC()

	job, _, err := pg.CreateJobIfAbsent(ctx, domain.PublishJob{ContentID: item.ID, VersionNo: 1, ScheduledAt: now, MaxAttempts: 3, TargetPlatforms: []domain.Platform{domain.PlatformWeb}})
	require.NoError(t, err)
	_, err = pg.ClaimDueJobs(ctx, now, 1)
	require.NoError(t, err)

	n, err := pg.ReleaseStaleJobs(ctx, now.Add(time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = pg.FailPendingJobs(ctx, item.ID, "retracted", now)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := pg.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobFailed, got.Status)
	require.Equal(t, "retracted", got.LastError)
}

func TestEmergencyQueueOrderingAndResolve(t *testing.T) {
	pg := resetTables(t)
	ctx := context.Background()
	low := seedContent(t, pg)
	high := seedContent(t, pg)
	now := time.Now().UTC()

	a, created, err := pg.AddEmergency(ctx, domain.EmergencyQueueItem{ContentID: low.ID, Priority: 3, DetectedAt: now})
	require.NoError(t, err)
	require.True(t, created)
	dup, created, err := pg.AddEmergency(ctx, domain.EmergencyQueueItem{ContentID: low.ID, Priority: 9, DetectedAt: now})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, a.ID, dup.ID)

	b, _, err := pg.AddEmergency(ctx, domain.EmergencyQueueItem{ContentID: high.ID, Priority: 8, MatchedKeywords: []string{"quake"}, DetectedAt: now})
	require.NoError(t, err)

	pending, err := pg.ListPendingEmergencies(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, b.ID, pending[0].ID)
	require.Equal(t, []string{"quake"}, pending[0].MatchedKeywords)

	require.NoError(t, pg.ResolveEmergency(ctx, a.ID, domain.EmergencyCancelled, nil, now))
	require.ErrorIs(t, pg.ResolveEmergency(ctx, a.ID, domain.EmergencyPublished, nil, now), domain.ErrVersionConflict)
	require.ErrorIs(t, pg.UpdateEmergencyPriority(ctx, 999, 1), domain.ErrNotFound)
}

func TestPublishedPathIsStableAndCountersCount(t *testing.T) {
	pg := resetTables(t)
	ctx := context.Background()
	item := seedContent(t, pg)
	now := time.Now().UTC().Truncate(time.Millisecond)

	first, err := pg.EnsurePublished(ctx, domain.PublishedContent{ContentID: item.ID, Path: "/news/a", Slug: "a", VersionNo: 1, PublishedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	second, err := pg.EnsurePublished(ctx, domain.PublishedContent{ContentID: item.ID, Path: "/news/b", Slug: "b", VersionNo: 3, PublishedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	require.Equal(t, first.Path, second.Path)
	require.Equal(t, 3, second.VersionNo)
	require.NoError(t, pg.MarkRetracted(ctx, item.ID, now))

	job, _, err := pg.CreateJobIfAbsent(ctx, domain.PublishJob{ContentID: item.ID, VersionNo: 1, ScheduledAt: now, MaxAttempts: 3, TargetPlatforms: []domain.Platform{domain.PlatformWeb}})
	require.NoError(t, err)
	for i, status := range []domain.ChannelLogStatus{domain.ChannelLogFailed, domain.ChannelLogSuccess, domain.ChannelLogSuccess} {
		require.NoError(t, pg.AppendChannelLog(ctx, domain.ChannelPublishLog{
			JobID: job.ID, ContentID: item.ID, Channel: domain.PlatformWeb, VersionNo: 1, Attempt: i + 1, Status: status, CreatedAt: now.Add(time.Duration(i) * time.Minute),
		}))
	}

	counters, err := pg.PlatformCounters(ctx, domain.PlatformWeb, now.Add(90*time.Second))
	require.NoError(t, err)
	require.Equal(t, 1, counters.PublishedToday)
	require.NotNil(t, counters.LastPublishedAt)
	require.True(t, counters.LastPublishedAt.Equal(now.Add(2*time.Minute)))

	succeeded, err := pg.SucceededChannels(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, []domain.Platform{domain.PlatformWeb}, succeeded)

	logs, err := pg.ListChannelLogs(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, logs, 3)
}

func TestPolicyStoreVersions(t *testing.T) {
	pg := resetTables(t)
	ctx := context.Background()
	fallback := domain.PublishingConfig{Version: 0, Timezone: "UTC"}
	store := NewPolicyStore(pg, fallback)

	cfg, err := store.LoadPublishingConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, fallback, cfg)

	next := domain.PublishingConfig{
		Version:  2,
		Timezone: "Europe/Moscow",
		Policies: map[domain.Platform]domain.PublishingPolicy{
			domain.PlatformX: {Enabled: true, DailyLimit: 5, AllowedWindows: []domain.TimeWindow{{Start: domain.MustClock("09:00"), End: domain.MustClock("21:00")}}},
		},
	}
	require.NoError(t, store.SavePublishingConfig(ctx, next))
	require.True(t, domain.IsValidation(store.SavePublishingConfig(ctx, domain.PublishingConfig{Version: 1})))

	cfg, err = store.LoadPublishingConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, next, cfg)
}
