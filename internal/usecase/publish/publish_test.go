package publish

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"news-publisher/internal/adapters/memory"
	"news-publisher/internal/domain"
	"news-publisher/internal/usecase/lifecycle"
	"news-publisher/internal/usecase/policy"
)

type fakePublisher struct {
	platform  domain.Platform
	mu        sync.Mutex
	errs      []error
	calls     []domain.PublishRequest
	onPublish func()
}

func (p *fakePublisher) Platform() domain.Platform { return p.platform }

func (p *fakePublisher) Publish(_ context.Context, req domain.PublishRequest) (domain.PublishResult, error) {
	p.mu.Lock()
	idx := len(p.calls)
	p.calls = append(p.calls, req)
	var err error
	if idx < len(p.errs) {
		err = p.errs[idx]
	}
	hook := p.onPublish
	p.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return domain.PublishResult{}, err
	}
	return domain.PublishResult{Success: true, ExternalPostID: string(p.platform) + "-post"}, nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakePublisher) failAlways(err error, n int) {
	p.errs = make([]error, n)
	for i := range p.errs {
		p.errs[i] = err
	}
}

type stubMedia struct {
	unavailable map[domain.Platform]bool
}

func (m stubMedia) Render(_ context.Context, item domain.ContentItem, p domain.Platform, silent bool) (domain.RenderedPayload, error) {
	if m.unavailable[p] {
		return domain.RenderedPayload{}, domain.ErrPayloadUnavailable
	}
	return domain.RenderedPayload{Platform: p, Title: item.Title, Text: item.Summary, Silent: silent}, nil
}

type counterIDs struct{ n atomic.Int64 }

func (c *counterIDs) NextID() int64 { return c.n.Add(1) }

type fixture struct {
	store      *memory.Store
	events     *memory.Events
	signal     *memory.Signal
	publishers map[domain.Platform]*fakePublisher
	lifecycle  *lifecycle.Service
	sched      *Scheduler
	now        time.Time
}

func newFixture(t *testing.T, media stubMedia) *fixture {
	t.Helper()
	f := &fixture{
		store:      memory.NewStore(),
		events:     &memory.Events{},
		signal:     memory.NewSignal(),
		publishers: map[domain.Platform]*fakePublisher{},
		now:        time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
	}
	clock := domain.ClockFunc(func() time.Time { return f.now })
	cfg := domain.PublishingConfig{
		Version:          1,
		Timezone:         "UTC",
		DefaultPlatforms: []domain.Platform{domain.PlatformWeb},
		Policies: map[domain.Platform]domain.PublishingPolicy{
			domain.PlatformWeb:       {Enabled: true},
			domain.PlatformMobile:    {Enabled: true},
			domain.PlatformX:         {Enabled: true, AllowedWindows: []domain.TimeWindow{{Start: domain.MustClock("09:00"), End: domain.MustClock("18:00")}}},
			domain.PlatformInstagram: {Enabled: true},
		},
	}
	var pubs []domain.ChannelPublisher
	for _, p := range domain.AllPlatforms {
		fp := &fakePublisher{platform: p}
		f.publishers[p] = fp
		pubs = append(pubs, fp)
	}
	f.lifecycle = lifecycle.NewService(f.store, f.store, f.events, clock, zerolog.Nop())
	f.sched = NewScheduler(Deps{
		Jobs:      f.store,
		Logs:      f.store,
		Contents:  f.store,
		Published: f.store,
		Media:     media,
		Policy:    policy.NewService(memory.NewStaticPolicy(cfg), f.store, clock, zerolog.Nop()),
		Lifecycle: f.lifecycle,
		Channels:  NewRegistry(pubs...),
		Events:    f.events,
		Signal:    f.signal,
		IDs:       &counterIDs{},
		Clock:     clock,
	}, Config{
		MaxAttempts:    3,
		BaseBackoff:    time.Minute,
		MaxBackoff:     10 * time.Minute,
		ChannelTimeout: time.Second,
		RecheckAfter:   time.Hour,
		WebPathPrefix:  "/news",
	}, zerolog.Nop())
	return f
}

func (f *fixture) content(t *testing.T, channels ...domain.Platform) domain.ContentItem {
	t.Helper()
	item, err := f.store.CreateContent(context.Background(), domain.ContentItem{
		ID:               uuid.MustParse("0b7f3a5c-1111-4222-8333-944455556666"),
		SourceID:         uuid.New(),
		Title:            "Quake hits the coast",
		Summary:          "Residents evacuated",
		Status:           domain.ContentStatusReadyToPublish,
		CurrentVersionNo: 1,
		Channels:         channels,
	})
	if err != nil {
		t.Fatalf("CreateContent: %v", err)
	}
	return item
}

func (f *fixture) job(t *testing.T, id int64) domain.PublishJob {
	t.Helper()
	job, err := f.store.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	return job
}

func (f *fixture) runOnce(t *testing.T) int {
	t.Helper()
	w := NewWorker(f.sched, WorkerConfig{Concurrency: 2}, zerolog.Nop())
	n, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	return n
}

func TestEnqueueIsIdempotentPerVersion(t *testing.T) {
	f := newFixture(t, stubMedia{})
	ctx := context.Background()
	item := f.content(t, domain.PlatformWeb, domain.PlatformMobile)

	first, err := f.sched.Enqueue(ctx, domain.NewPublishJob{ContentID: item.ID, VersionNo: 1})
	if err != nil || first.AlreadyQueued {
		t.Fatalf("first Enqueue: %+v, %v", first, err)
	}
	second, err := f.sched.Enqueue(ctx, domain.NewPublishJob{ContentID: item.ID, VersionNo: 1, IsEmergency: true})
	if err != nil {
		t.Fatalf("second Enqueue: %v", err)
	}
	if !second.AlreadyQueued || second.JobID != first.JobID {
		t.Fatalf("expected duplicate of %d, got %+v", first.JobID, second)
	}

	job := f.job(t, first.JobID)
	if diff := cmp.Diff([]domain.Platform{domain.PlatformWeb, domain.PlatformMobile}, job.TargetPlatforms); diff != "" {
		t.Fatalf("targets mismatch (-want +got):\n%s", diff)
	}
	if !job.ScheduledAt.Equal(f.now) || job.MaxAttempts != 3 {
		t.Fatalf("unexpected job defaults: %+v", job)
	}
	if diff := cmp.Diff([]string{domain.EventJobEnqueued}, f.events.Names()); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestEnqueueValidation(t *testing.T) {
	f := newFixture(t, stubMedia{})
	ctx := context.Background()
	item := f.content(t)

	cases := []struct {
		name string
		req  domain.NewPublishJob
	}{
		{name: "version zero", req: domain.NewPublishJob{ContentID: item.ID}},
		{name: "future version", req: domain.NewPublishJob{ContentID: item.ID, VersionNo: 2}},
		{name: "unknown platform", req: domain.NewPublishJob{ContentID: item.ID, VersionNo: 1, TargetPlatforms: []domain.Platform{"fax"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.sched.Enqueue(ctx, tc.req); !domain.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	res, err := f.sched.Enqueue(ctx, domain.NewPublishJob{ContentID: item.ID, VersionNo: 1})
	if err != nil {
		t.Fatalf("Enqueue with defaults: %v", err)
	}
	if got := f.job(t, res.JobID).TargetPlatforms; len(got) != 1 || got[0] != domain.PlatformWeb {
		t.Fatalf("expected default platforms, got %v", got)
	}
}

func TestEnqueueRejectsRetractedContent(t *testing.T) {
	f := newFixture(t, stubMedia{})
	ctx := context.Background()
	item := f.content(t, domain.PlatformWeb)
	if _, err := f.lifecycle.MarkPublished(ctx, item.ID, 1, "editor"); err != nil {
		t.Fatalf("MarkPublished: %v", err)
	}
	if _, err := f.lifecycle.Retract(ctx, item.ID, "editor"); err != nil {
		t.Fatalf("Retract: %v", err)
	}
	if _, err := f.sched.Enqueue(ctx, domain.NewPublishJob{ContentID: item.ID, VersionNo: 1}); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEnqueueRejectsUnpublishableStatus(t *testing.T) {
	f := newFixture(t, stubMedia{})
	ctx := context.Background()
	for _, status := range []domain.ContentStatus{domain.ContentStatusNew, domain.ContentStatusBlocked, domain.ContentStatusRejected} {
		t.Run(string(status), func(t *testing.T) {
			item, err := f.store.CreateContent(ctx, domain.ContentItem{
				ID:               uuid.New(),
				SourceID:         uuid.New(),
				Title:            "Spam",
				Status:           status,
				CurrentVersionNo: 1,
				Channels:         []domain.Platform{domain.PlatformWeb},
			})
			if err != nil {
				t.Fatalf("CreateContent: %v", err)
			}
			_, err = f.sched.Enqueue(ctx, domain.NewPublishJob{ContentID: item.ID, VersionNo: 1, IsEmergency: true})
			if !domain.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			jobs, err := f.store.ListJobsByContent(ctx, item.ID)
			if err != nil || len(jobs) != 0 {
				t.Fatalf("expected no jobs, got %v, %v", jobs, err)
			}
		})
	}
}

func TestEmergencyEnqueueWakesWorkers(t *testing.T) {
	f := newFixture(t, stubMedia{})
	ctx := context.Background()
	item := f.content(t, domain.PlatformWeb)
	if _, err := f.sched.Enqueue(ctx, domain.NewPublishJob{ContentID: item.ID, VersionNo: 1, IsEmergency: true}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	woken, err := f.signal.Wait(ctx, 10*time.Millisecond)
	if err != nil || !woken {
		t.Fatalf("expected wake-up signal, woken=%v err=%v", woken, err)
	}
}

func TestProcessCompletesAndMarksPublished(t *testing.T) {
	f := newFixture(t, stubMedia{})
	ctx := context.Background()
	item := f.content(t, domain.PlatformWeb, domain.PlatformMobile)
	res, err := f.sched.Enqueue(ctx, domain.NewPublishJob{ContentID: item.ID, VersionNo: 1})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if n := f.runOnce(t); n != 1 {
		t.Fatalf("processed %d jobs, want 1", n)
	}
	job := f.job(t, res.JobID)
	if job.Status != domain.JobCompleted || job.AttemptCount != 1 {
		t.Fatalf("unexpected job state: %+v", job)
	}

	content, _ := f.store.GetContent(ctx, item.ID)
	if content.Status != domain.ContentStatusPublished || content.PublishedVersionNo != 1 {
		t.Fatalf("content not advanced: status=%s published=%d", content.Status, content.PublishedVersionNo)
	}
	pc, err := f.store.GetPublished(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetPublished: %v", err)
	}
	if pc.Path != "/news/2026/03/02/quake-hits-the-coast-0b7f3a5c" || pc.VersionNo != 1 {
		t.Fatalf("unexpected web record: %+v", pc)
	}
	if got := f.publishers[domain.PlatformWeb].calls[0].Payload.Path; got != pc.Path {
		t.Fatalf("web payload path = %q, want %q", got, pc.Path)
	}

	logs, _ := f.sched.ChannelLogs(ctx, res.JobID)
	if len(logs) != 2 {
		t.Fatalf("channel logs = %d, want 2", len(logs))
	}
	for _, l := range logs {
		if l.Status != domain.ChannelLogSuccess || l.Attempt != 1 || l.VersionNo != 1 {
			t.Fatalf("unexpected log: %+v", l)
		}
	}
	names := f.events.Names()
	if names[len(names)-2] != domain.EventJobCompleted {
		t.Fatalf("expected job.completed before content transition, got %v", names)
	}
}

func TestFailingChannelStopsAfterMaxAttempts(t *testing.T) {
	f := newFixture(t, stubMedia{})
	ctx := context.Background()
	item := f.content(t, domain.PlatformWeb, domain.PlatformMobile)
	f.publishers[domain.PlatformMobile].failAlways(&domain.ChannelError{Kind: domain.ChannelErrorPermanent, StatusCode: 400, Err: errors.New("bad payload")}, 10)

	res, err := f.sched.Enqueue(ctx, domain.NewPublishJob{ContentID: item.ID, VersionNo: 1})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	wantDelays := []time.Duration{time.Minute, 2 * time.Minute}
	for cycle := 1; cycle <= 3; cycle++ {
		if n := f.runOnce(t); n != 1 {
			t.Fatalf("cycle %d: processed %d jobs", cycle, n)
		}
		job := f.job(t, res.JobID)
		if job.AttemptCount != cycle {
			t.Fatalf("cycle %d: attempt count %d", cycle, job.AttemptCount)
		}
		if cycle < 3 {
			if job.Status != domain.JobPending || job.NextRetryAt == nil {
				t.Fatalf("cycle %d: expected pending retry, got %+v", cycle, job)
			}
			if got := job.NextRetryAt.Sub(f.now); got != wantDelays[cycle-1] {
				t.Fatalf("cycle %d: retry delay %s, want %s", cycle, got, wantDelays[cycle-1])
			}
			if n := f.runOnce(t); n != 0 {
				t.Fatalf("cycle %d: job claimed before retry time", cycle)
			}
			f.now = *job.NextRetryAt
			continue
		}
		if job.Status != domain.JobFailed || !strings.Contains(job.LastError, "bad payload") {
			t.Fatalf("expected failed job, got %+v", job)
		}
	}

	if got := f.publishers[domain.PlatformMobile].count(); got != 3 {
		t.Fatalf("mobile calls = %d, want 3", got)
	}
	if got := f.publishers[domain.PlatformWeb].count(); got != 1 {
		t.Fatalf("web calls = %d, want 1 (succeeded channel must be skipped)", got)
	}
	if n := f.runOnce(t); n != 0 {
		t.Fatalf("failed job must not be claimed again")
	}

	logs, _ := f.sched.ChannelLogs(ctx, res.JobID)
	var failed int
	for _, l := range logs {
		if l.Status == domain.ChannelLogFailed {
			failed++
			if l.ErrorKind != domain.ChannelErrorPermanent {
				t.Fatalf("unexpected error kind: %+v", l)
			}
		}
	}
	if failed != 3 {
		t.Fatalf("failed logs = %d, want 3", failed)
	}
}

func TestRetryAfterExtendsDelay(t *testing.T) {
	f := newFixture(t, stubMedia{})
	ctx := context.Background()
	item := f.content(t, domain.PlatformMobile)
	f.publishers[domain.PlatformMobile].errs = []error{&domain.ChannelError{Kind: domain.ChannelErrorTransient, StatusCode: 429, RetryAfter: 7 * time.Minute, Err: errors.New("rate limited")}}

	res, _ := f.sched.Enqueue(ctx, domain.NewPublishJob{ContentID: item.ID, VersionNo: 1})
	f.runOnce(t)
	job := f.job(t, res.JobID)
	if job.NextRetryAt == nil || job.NextRetryAt.Sub(f.now) != 7*time.Minute {
		t.Fatalf("expected retry after 7m, got %+v", job.NextRetryAt)
	}

	f.now = *job.NextRetryAt
	f.runOnce(t)
	if job = f.job(t, res.JobID); job.Status != domain.JobCompleted || job.AttemptCount != 2 {
		t.Fatalf("expected completion on second attempt, got %+v", job)
	}
}

func TestDeferredChannelDoesNotCountAsFailure(t *testing.T) {
	f := newFixture(t, stubMedia{})
	ctx := context.Background()
	f.now = time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC)
	item := f.content(t, domain.PlatformWeb, domain.PlatformX)

	res, _ := f.sched.Enqueue(ctx, domain.NewPublishJob{ContentID: item.ID, VersionNo: 1})
	f.runOnce(t)

	job := f.job(t, res.JobID)
	morning := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	if job.Status != domain.JobPending || job.NextRetryAt == nil || !job.NextRetryAt.Equal(morning) {
		t.Fatalf("expected pending until %s, got %+v", morning, job)
	}
	if job.LastError != "" {
		t.Fatalf("deferral must not record an error: %q", job.LastError)
	}
	if f.publishers[domain.PlatformX].count() != 0 {
		t.Fatalf("deferred channel was called")
	}

	f.now = morning
	f.runOnce(t)
	job = f.job(t, res.JobID)
	if job.Status != domain.JobCompleted {
		t.Fatalf("expected completion in the morning, got %+v", job)
	}
	if f.publishers[domain.PlatformWeb].count() != 1 || f.publishers[domain.PlatformX].count() != 1 {
		t.Fatalf("unexpected calls: web=%d x=%d", f.publishers[domain.PlatformWeb].count(), f.publishers[domain.PlatformX].count())
	}
}

func TestPayloadUnavailableIsTransientFailure(t *testing.T) {
	f := newFixture(t, stubMedia{unavailable: map[domain.Platform]bool{domain.PlatformInstagram: true}})
	ctx := context.Background()
	item := f.content(t, domain.PlatformInstagram)

	res, _ := f.sched.Enqueue(ctx, domain.NewPublishJob{ContentID: item.ID, VersionNo: 1})
	f.runOnce(t)

	logs, _ := f.sched.ChannelLogs(ctx, res.JobID)
	if len(logs) != 1 || logs[0].Status != domain.ChannelLogFailed || logs[0].ErrorKind != domain.ChannelErrorTransient {
		t.Fatalf("unexpected logs: %+v", logs)
	}
	if job := f.job(t, res.JobID); job.Status != domain.JobPending || job.AttemptCount != 1 {
		t.Fatalf("expected retry, got %+v", job)
	}
	if f.publishers[domain.PlatformInstagram].count() != 0 {
		t.Fatalf("publisher called without payload")
	}
}

func TestSupersededAndRetractedJobsFail(t *testing.T) {
	f := newFixture(t, stubMedia{})
	ctx := context.Background()
	item := f.content(t, domain.PlatformWeb)

	old, _ := f.sched.Enqueue(ctx, domain.NewPublishJob{ContentID: item.ID, VersionNo: 1, ScheduledAt: f.now.Add(time.Hour)})
	if _, err := f.lifecycle.MarkPublished(ctx, item.ID, 1, "editor"); err != nil {
		t.Fatalf("MarkPublished: %v", err)
	}
	if _, err := f.lifecycle.Correct(ctx, item.ID, domain.ContentPatch{}, "editor"); err != nil {
		t.Fatalf("Correct: %v", err)
	}
	if _, err := f.lifecycle.MarkPublished(ctx, item.ID, 3, "editor"); err != nil {
		t.Fatalf("MarkPublished: %v", err)
	}

	f.now = f.now.Add(time.Hour)
	f.runOnce(t)
	if job := f.job(t, old.JobID); job.Status != domain.JobFailed || job.LastError != "superseded" {
		t.Fatalf("expected superseded failure, got %+v", job)
	}
	if f.publishers[domain.PlatformWeb].count() != 0 {
		t.Fatalf("superseded job must not publish")
	}

	current, _ := f.store.GetContent(ctx, item.ID)
	pending, _ := f.sched.Enqueue(ctx, domain.NewPublishJob{ContentID: item.ID, VersionNo: current.CurrentVersionNo, ScheduledAt: f.now.Add(time.Hour)})
	if _, err := f.lifecycle.Retract(ctx, item.ID, "editor"); err != nil {
		t.Fatalf("Retract: %v", err)
	}
	n, err := f.sched.CancelForContent(ctx, item.ID, "retracted")
	if err != nil || n != 1 {
		t.Fatalf("CancelForContent: n=%d err=%v", n, err)
	}
	if job := f.job(t, pending.JobID); job.Status != domain.JobFailed || job.LastError != "retracted" {
		t.Fatalf("expected retracted failure, got %+v", job)
	}
}

func TestQueuedJobFailsAfterReject(t *testing.T) {
	f := newFixture(t, stubMedia{})
	ctx := context.Background()
	item := f.content(t, domain.PlatformWeb)
	res, err := f.sched.Enqueue(ctx, domain.NewPublishJob{ContentID: item.ID, VersionNo: 1})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := f.lifecycle.Reject(ctx, item.ID, "editor"); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	f.runOnce(t)
	job := f.job(t, res.JobID)
	if job.Status != domain.JobFailed || job.LastError != "not publishable in status rejected" {
		t.Fatalf("expected status failure, got %+v", job)
	}
	if job.AttemptCount != 0 {
		t.Fatalf("attempt count = %d, want 0", job.AttemptCount)
	}
	if f.publishers[domain.PlatformWeb].count() != 0 {
		t.Fatalf("rejected content must not be published")
	}
	if _, err := f.store.GetPublished(ctx, item.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected no public record, got %v", err)
	}
}

func TestRetractionStopsRemainingChannels(t *testing.T) {
	f := newFixture(t, stubMedia{})
	ctx := context.Background()
	item := f.content(t, domain.PlatformWeb, domain.PlatformMobile)
	published, err := f.lifecycle.MarkPublished(ctx, item.ID, 1, "editor")
	if err != nil {
		t.Fatalf("MarkPublished: %v", err)
	}
	res, err := f.sched.Enqueue(ctx, domain.NewPublishJob{ContentID: item.ID, VersionNo: published.CurrentVersionNo})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	f.publishers[domain.PlatformWeb].onPublish = func() {
		if _, err := f.lifecycle.Retract(ctx, item.ID, "editor"); err != nil {
			t.Errorf("Retract: %v", err)
		}
	}

	f.runOnce(t)
	if got := f.publishers[domain.PlatformWeb].count(); got != 1 {
		t.Fatalf("web calls = %d, want 1", got)
	}
	if got := f.publishers[domain.PlatformMobile].count(); got != 0 {
		t.Fatalf("mobile must not receive retracted content, calls = %d", got)
	}
	job := f.job(t, res.JobID)
	if job.Status != domain.JobFailed || job.LastError != "retracted" || job.AttemptCount != 1 {
		t.Fatalf("expected retracted failure after one attempt, got %+v", job)
	}
	pc, err := f.store.GetPublished(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetPublished: %v", err)
	}
	if !pc.IsRetracted {
		t.Fatalf("web record must be retracted: %+v", pc)
	}
}

func TestWebRecordKeepsPathAcrossCorrections(t *testing.T) {
	f := newFixture(t, stubMedia{})
	ctx := context.Background()
	item := f.content(t, domain.PlatformWeb)

	if _, err := f.sched.Enqueue(ctx, domain.NewPublishJob{ContentID: item.ID, VersionNo: 1}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	f.runOnce(t)
	first, _ := f.store.GetPublished(ctx, item.ID)

	title := "Quake hits the coast, toll rises"
	corrected, err := f.lifecycle.Correct(ctx, item.ID, domain.ContentPatch{Title: &title}, "editor")
	if err != nil {
		t.Fatalf("Correct: %v", err)
	}
	f.now = f.now.Add(48 * time.Hour)
	if _, err := f.sched.Enqueue(ctx, domain.NewPublishJob{ContentID: item.ID, VersionNo: corrected.CurrentVersionNo}); err != nil {
		t.Fatalf("Enqueue correction: %v", err)
	}
	f.runOnce(t)

	second, _ := f.store.GetPublished(ctx, item.ID)
	if second.Path != first.Path || second.Slug != first.Slug {
		t.Fatalf("web address changed: %q -> %q", first.Path, second.Path)
	}
	if second.VersionNo != corrected.CurrentVersionNo {
		t.Fatalf("web version = %d, want %d", second.VersionNo, corrected.CurrentVersionNo)
	}
	content, _ := f.store.GetContent(ctx, item.ID)
	if content.PublishedVersionNo != corrected.CurrentVersionNo {
		t.Fatalf("published version = %d, want %d", content.PublishedVersionNo, corrected.CurrentVersionNo)
	}
}

func TestReleaseStaleReturnsAbandonedJobs(t *testing.T) {
	f := newFixture(t, stubMedia{})
	ctx := context.Background()
	item := f.content(t, domain.PlatformWeb)
	res, _ := f.sched.Enqueue(ctx, domain.NewPublishJob{ContentID: item.ID, VersionNo: 1})

	claimed, err := f.sched.ClaimDueJobs(ctx, 10)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("ClaimDueJobs: %v, %d", err, len(claimed))
	}
	if again, _ := f.sched.ClaimDueJobs(ctx, 10); len(again) != 0 {
		t.Fatalf("claimed job handed out twice")
	}

	f.now = f.now.Add(5 * time.Minute)
	if n, _ := f.sched.ReleaseStale(ctx, 10*time.Minute); n != 0 {
		t.Fatalf("fresh claim released")
	}
	f.now = f.now.Add(10 * time.Minute)
	if n, _ := f.sched.ReleaseStale(ctx, 10*time.Minute); n != 1 {
		t.Fatalf("stale claim not released")
	}
	if job := f.job(t, res.JobID); job.Status != domain.JobPending || job.ClaimedAt != nil {
		t.Fatalf("unexpected job after release: %+v", job)
	}

	if _, err := f.sched.Process(ctx, claimed[0]); !errors.Is(err, domain.ErrClaimLost) {
		t.Fatalf("expected claim lost for released job, got %v", err)
	}
}

func TestSlugAndWebPath(t *testing.T) {
	id := uuid.MustParse("12345678-aaaa-4bbb-8ccc-dddddddddddd")
	tests := []struct {
		title string
		want  string
	}{
		{title: "Breaking: Quake hits Tokyo!", want: "breaking-quake-hits-tokyo-12345678"},
		{title: "  Пожар в центре  ", want: "пожар-в-центре-12345678"},
		{title: "!!!", want: "12345678"},
	}
	for _, tt := range tests {
		if got := Slug(tt.title, id); got != tt.want {
			t.Fatalf("Slug(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
	at := time.Date(2026, 1, 5, 23, 0, 0, 0, time.UTC)
	if got := WebPath("news", at, "a-12345678"); got != "/news/2026/01/05/a-12345678" {
		t.Fatalf("WebPath = %q", got)
	}
}
