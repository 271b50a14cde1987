package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"news-publisher/internal/adapters/memory"
	"news-publisher/internal/domain"
	"news-publisher/internal/usecase/emergency"
	"news-publisher/internal/usecase/lifecycle"
	"news-publisher/internal/usecase/newsroom"
	"news-publisher/internal/usecase/policy"
	"news-publisher/internal/usecase/publish"
	"news-publisher/internal/usecase/rules"
)

type stubPublisher struct{ platform domain.Platform }

func (p stubPublisher) Platform() domain.Platform { return p.platform }

func (p stubPublisher) Publish(context.Context, domain.PublishRequest) (domain.PublishResult, error) {
	return domain.PublishResult{Success: true}, nil
}

type stubMedia struct{}

func (stubMedia) Render(_ context.Context, item domain.ContentItem, p domain.Platform, silent bool) (domain.RenderedPayload, error) {
	return domain.RenderedPayload{Platform: p, Title: item.Title, Silent: silent}, nil
}

type testAPI struct {
	store  *memory.Store
	source domain.Source
	router chi.Router
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	clock := domain.ClockFunc(func() time.Time { return now })
	a := &testAPI{
		store:  memory.NewStore(),
		source: domain.Source{ID: uuid.New(), Name: "desk", TrustLevel: 2},
	}
	a.store.PutSource(a.source)
	policies := memory.NewStaticPolicy(domain.PublishingConfig{
		Version:          1,
		Timezone:         "UTC",
		DefaultPlatforms: []domain.Platform{domain.PlatformWeb},
		Policies: map[domain.Platform]domain.PublishingPolicy{
			domain.PlatformWeb: {Enabled: true},
		},
	})
	events := &memory.Events{}
	policySvc := policy.NewService(policies, a.store, clock, zerolog.Nop())
	lifecycleSvc := lifecycle.NewService(a.store, a.store, events, clock, zerolog.Nop())
	scheduler := publish.NewScheduler(publish.Deps{
		Jobs:      a.store,
		Logs:      a.store,
		Contents:  a.store,
		Published: a.store,
		Media:     stubMedia{},
		Policy:    policySvc,
		Lifecycle: lifecycleSvc,
		Channels:  publish.NewRegistry(stubPublisher{domain.PlatformWeb}),
		Events:    events,
		Clock:     clock,
	}, publish.DefaultConfig(), zerolog.Nop())
	emergencySvc := emergency.NewService(emergency.Deps{
		Queue:    a.store,
		Contents: a.store,
		Sources:  a.store,
		Jobs:     scheduler,
		Cache:    memory.NewCache(),
		Events:   events,
		Clock:    clock,
	}, emergency.Options{
		Config:      domain.EmergencyConfig{Keywords: []string{"flood"}, MinKeywordScore: 1, DefaultPriority: 5},
		AutoEnqueue: true,
	}, zerolog.Nop())
	svc := newsroom.New(newsroom.Deps{
		Contents:  a.store,
		Rules:     rules.NewService(a.store, a.store, a.store, policies, clock, zerolog.Nop()),
		Lifecycle: lifecycleSvc,
		Policy:    policySvc,
		Emergency: emergencySvc,
		Publish:   scheduler,
		Clock:     clock,
	}, zerolog.Nop())

	r := chi.NewRouter()
	NewHandler(svc, zerolog.Nop()).Register(r)
	a.router = r
	return a
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(ActorHeader, "editor")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func (a *testAPI) ingest(t *testing.T, title string) domain.ContentItem {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/contents", map[string]any{
		"source_id": a.source.ID,
		"title":     title,
		"body":      "<p>text</p>",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[newsroom.IngestResult](t, rec).Item
}

func TestIngestAndApprove(t *testing.T) {
	a := newTestAPI(t)
	item := a.ingest(t, "Budget vote")
	require.Equal(t, domain.ContentStatusPendingApproval, item.Status)

	rec := a.do(t, http.MethodPost, "/api/v1/contents/"+item.ID.String()+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[itemWithJob](t, rec)
	require.Equal(t, 2, res.Item.CurrentVersionNo)
	require.NotZero(t, res.Job.JobID)

	rec = a.do(t, http.MethodGet, "/api/v1/contents/"+item.ID.String()+"/revisions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	revs := decodeBody[[]domain.ContentRevision](t, rec)
	require.Len(t, revs, 2)
	require.Equal(t, "editor", revs[1].Actor)

	rec = a.do(t, http.MethodGet, "/api/v1/contents/"+item.ID.String()+"/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody[[]domain.PublishJob](t, rec), 1)
}

func TestEnqueueTwiceReturnsExistingJob(t *testing.T) {
	a := newTestAPI(t)
	item := a.ingest(t, "Bridge closed")

	rec := a.do(t, http.MethodPost, "/api/v1/jobs", newsroom.EnqueueRequest{ContentID: item.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decodeBody[domain.EnqueueResult](t, rec)

	rec = a.do(t, http.MethodPost, "/api/v1/jobs", newsroom.EnqueueRequest{ContentID: item.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	second := decodeBody[domain.EnqueueResult](t, rec)
	require.True(t, second.AlreadyQueued)
	require.Equal(t, first.JobID, second.JobID)
}

func TestErrorMapping(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/api/v1/contents/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/v1/contents/not-a-uuid", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/v1/contents", map[string]any{"source_id": a.source.ID})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	require.Equal(t, "title", body["field"])

	item := a.ingest(t, "Storm warning")
	rec = a.do(t, http.MethodPost, "/api/v1/contents/"+item.ID.String()+"/resubmit", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewBufferString("{"))
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEmergencyRoutes(t *testing.T) {
	a := newTestAPI(t)
	a.ingest(t, "Flood hits the valley")

	rec := a.do(t, http.MethodGet, "/api/v1/emergencies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decodeBody[[]domain.EmergencyQueueItem](t, rec)
	require.Len(t, pending, 1)
	path := "/api/v1/emergencies/" + itoa(pending[0].ID)

	rec = a.do(t, http.MethodPut, path+"/priority", map[string]int{"priority": 9})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, 9, decodeBody[domain.EmergencyQueueItem](t, rec).Priority)

	rec = a.do(t, http.MethodPost, path+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, domain.EmergencyCancelled, decodeBody[domain.EmergencyQueueItem](t, rec).Status)

	rec = a.do(t, http.MethodPost, path+"/publish", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/v1/emergencies?limit=x", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScheduleStatsRoutes(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/api/v1/schedule/stats/web", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decodeBody[domain.ScheduleStats](t, rec).Enabled)

	rec = a.do(t, http.MethodGet, "/api/v1/schedule/stats/fax", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/v1/schedule/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody[[]domain.ScheduleStats](t, rec), len(domain.AllPlatforms))
}

func itoa(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
