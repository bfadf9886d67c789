package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediacms/internal/config"
	"mediacms/internal/core"
	"mediacms/internal/generation"
	"mediacms/internal/llm"
	"mediacms/internal/persistence"
	"mediacms/internal/scheduler"
	"mediacms/internal/testutil"
)

const (
	adminKey   = "admin-key"
	cronSecret = "cron-secret"
)

type fakeTrigger struct {
	calls   int
	at      time.Time
	summary core.TriggerSummary
	err     error
}

func (f *fakeTrigger) Run(ctx context.Context, now time.Time) (core.TriggerSummary, error) {
	f.calls++
	f.at = now
	return f.summary, f.err
}

type pingFailStore struct {
	*testutil.CountingStore
}

func (pingFailStore) Ping(ctx context.Context) error {
	return &core.PersistenceError{Op: "ping", Err: errors.New("no reachable servers")}
}

type testServer struct {
	srv     *Server
	gateway *testutil.FakeGateway
	store   *testutil.CountingStore
	trigger *fakeTrigger
}

func testConfig() *config.Config {
	return &config.Config{
		App:       config.App{Environment: "development"},
		Server:    config.Server{Host: "127.0.0.1", Port: 0, AdminAPIKey: adminKey},
		Scheduler: config.Scheduler{CronSecret: cronSecret},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	ts := &testServer{
		gateway: testutil.NewFakeGateway(),
		store:   testutil.NewCountingStore(),
		trigger: &fakeTrigger{},
	}
	pipeline := generation.NewPipeline(ts.gateway, ts.store, nil, nil)
	ts.srv = New(cfg, ts.store, pipeline, ts.trigger)
	return ts
}

func (ts *testServer) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body map[string]ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func requestJSON(t *testing.T, req core.GenerationRequest) string {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	return string(data)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, testConfig())
	rec := ts.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"ok"`)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestHealthUnavailable(t *testing.T) {
	cfg := testConfig()
	srv := New(cfg, pingFailStore{testutil.NewCountingStore()}, nil, nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unhealthy")
}

func TestGenerateArticle(t *testing.T) {
	ts := newTestServer(t, testConfig())

	rec := ts.do(http.MethodPost, "/api/articles/generate", adminKey, requestJSON(t, testutil.Request()))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "How to cold brew sencha", resp.Title)
	assert.Equal(t, "how-to-cold-brew-sencha", resp.Slug)
	assert.True(t, resp.IsPublished)
	assert.Equal(t, 7, resp.Stats.ProviderCalls)
	assert.Equal(t, 1, ts.store.CreateCalls())

	rec = ts.do(http.MethodGet, "/api/articles/"+resp.ID, adminKey, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var article core.GeneratedArticle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &article))
	assert.Equal(t, resp.ID, article.ID)
	assert.Len(t, article.Sections, 5)
}

func TestGenerateArticleDraft(t *testing.T) {
	ts := newTestServer(t, testConfig())
	req := testutil.Request()
	req.Publish = core.PublishDraft

	rec := ts.do(http.MethodPost, "/api/articles/generate", adminKey, requestJSON(t, req))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"isPublished":false`)
}

func TestGenerateArticleAuth(t *testing.T) {
	ts := newTestServer(t, testConfig())
	body := requestJSON(t, testutil.Request())

	rec := ts.do(http.MethodPost, "/api/articles/generate", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodPost, "/api/articles/generate", "wrong", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Type)

	assert.Equal(t, 0, ts.gateway.TotalCalls())
}

func TestGenerateArticleAdminDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Server.AdminAPIKey = ""
	ts := newTestServer(t, cfg)

	rec := ts.do(http.MethodPost, "/api/articles/generate", "anything", requestJSON(t, testutil.Request()))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGenerateArticleValidationError(t *testing.T) {
	ts := newTestServer(t, testConfig())
	req := testutil.Request()
	req.WriterID = ""

	rec := ts.do(http.MethodPost, "/api/articles/generate", adminKey, requestJSON(t, req))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	errBody := decodeError(t, rec)
	assert.Equal(t, http.StatusBadRequest, errBody.Status)
	assert.Equal(t, "validation_error", errBody.Type)
	assert.Contains(t, errBody.Message, "writerId")
	assert.Contains(t, errBody.Stack, "handleGenerateArticle")
	assert.Equal(t, 0, ts.gateway.TotalCalls())
}

func TestGenerateArticleHidesStackInProduction(t *testing.T) {
	cfg := testConfig()
	cfg.App.Environment = "production"
	ts := newTestServer(t, cfg)

	rec := ts.do(http.MethodPost, "/api/articles/generate", adminKey, `{"tenantId": "t1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, decodeError(t, rec).Stack)
	assert.NotContains(t, rec.Body.String(), `"stack"`)
}

func TestGenerateArticleMalformedBody(t *testing.T) {
	ts := newTestServer(t, testConfig())

	rec := ts.do(http.MethodPost, "/api/articles/generate", adminKey, "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Message, "body")

	rec = ts.do(http.MethodPost, "/api/articles/generate", adminKey, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateArticleErrorStatuses(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*testServer)
		mutate  func(*core.GenerationRequest)
		status  int
		errType string
	}{
		{
			name:    "unknown category",
			mutate:  func(r *core.GenerationRequest) { r.CategoryID = "missing" },
			status:  http.StatusNotFound,
			errType: "not_found",
		},
		{
			name: "duplicates exhausted",
			setup: func(ts *testServer) {
				ts.gateway.Responses[llm.StepThemes] = []string{`["Ten tips for brewing better green tea at home"]`}
			},
			status:  http.StatusConflict,
			errType: "duplicate_exhausted",
		},
		{
			name: "provider failure",
			setup: func(ts *testServer) {
				ts.gateway.Errors[llm.StepSection] = &core.ProviderError{Provider: "gemini", StatusCode: 503}
			},
			status:  http.StatusBadGateway,
			errType: "provider_error",
		},
		{
			name: "write failure",
			setup: func(ts *testServer) {
				ts.store.CreateErr = errors.New("write concern")
			},
			status:  http.StatusInternalServerError,
			errType: "persistence_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, testConfig())
			if tt.setup != nil {
				tt.setup(ts)
			}
			req := testutil.Request()
			if tt.mutate != nil {
				tt.mutate(&req)
			}

			rec := ts.do(http.MethodPost, "/api/articles/generate", adminKey, requestJSON(t, req))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.errType, decodeError(t, rec).Type)
		})
	}
}

func TestGetArticleNotFound(t *testing.T) {
	ts := newTestServer(t, testConfig())
	rec := ts.do(http.MethodGet, "/api/articles/nope", adminKey, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)
}

func TestScheduledGeneration(t *testing.T) {
	ts := newTestServer(t, testConfig())
	fixed := time.Date(2025, 4, 7, 0, 0, 0, 0, time.UTC)
	ts.srv.now = func() time.Time { return fixed }
	ts.trigger.summary = core.TriggerSummary{
		ExecutedCount: 2,
		Succeeded:     1,
		Failed:        1,
		Results: []core.ScheduleResult{
			{ScheduleID: "s-1", TenantID: "t1", Success: true, ArticleID: "a-1"},
			{ScheduleID: "s-2", TenantID: "t1", Error: "no unique theme"},
		},
	}

	rec := ts.do(http.MethodPost, "/api/cron/scheduled-generation", cronSecret, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary core.TriggerSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, ts.trigger.summary, summary)
	assert.Equal(t, 1, ts.trigger.calls)
	assert.Equal(t, fixed, ts.trigger.at)
}

// slowGenerator takes a while per schedule and gives up when its context ends.
type slowGenerator struct {
	mu      sync.Mutex
	calls   int
	started func()
}

func (g *slowGenerator) GenerateScheduled(ctx context.Context, schedule core.ScheduledGeneration) (*generation.Result, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.started != nil {
		g.started()
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
	}
	return &generation.Result{Article: &core.GeneratedArticle{ID: "article-" + schedule.ID}}, nil
}

func TestScheduledGenerationRunsEveryDueSchedule(t *testing.T) {
	cfg := testConfig()
	ts := newTestServer(t, cfg)

	var schedules []core.ScheduledGeneration
	for _, id := range []string{"s-1", "s-2", "s-3", "s-4"} {
		schedules = append(schedules, core.ScheduledGeneration{
			ID: id, TenantID: "t1", DaysOfWeek: []int{1}, TimeOfDay: "09:00", IsActive: true, Request: testutil.Request(),
		})
	}
	store := testutil.NewCountingStore()
	store.Seed(&persistence.Fixtures{Schedules: schedules})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// The request ends while the first schedule is generating; more
	// schedules are due than run at once.
	gen := &slowGenerator{started: cancel}
	trigger := scheduler.NewTrigger(gen, store, nil, time.UTC, 1)
	srv := New(cfg, ts.store, nil, trigger)
	srv.now = func() time.Time { return time.Date(2025, 4, 7, 9, 15, 0, 0, time.UTC) }

	req := httptest.NewRequest(http.MethodPost, "/api/cron/scheduled-generation", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+cronSecret)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary core.TriggerSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 4, summary.ExecutedCount)
	assert.Equal(t, 4, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 4, gen.calls)
	assert.Equal(t, 4, store.MarkCalls())
}

func TestScheduledGenerationAuth(t *testing.T) {
	ts := newTestServer(t, testConfig())

	rec := ts.do(http.MethodPost, "/api/cron/scheduled-generation", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodPost, "/api/cron/scheduled-generation", "wrong", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodPost, "/api/cron/scheduled-generation", adminKey, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, 0, ts.trigger.calls)
}

func TestScheduledGenerationWithoutSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduler.CronSecret = ""
	ts := newTestServer(t, cfg)

	rec := ts.do(http.MethodPost, "/api/cron/scheduled-generation", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 0, ts.trigger.calls)
}

func TestScheduledGenerationListFailure(t *testing.T) {
	ts := newTestServer(t, testConfig())
	ts.trigger.err = &core.PersistenceError{Op: "list schedules", Err: errors.New("down")}

	rec := ts.do(http.MethodPost, "/api/cron/scheduled-generation", cronSecret, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "persistence_error", decodeError(t, rec).Type)
}

func TestCORSPreflight(t *testing.T) {
	cfg := testConfig()
	cfg.Server.CORS = config.CORS{Enabled: true, AllowedOrigins: []string{"https://admin.example.com"}}
	ts := newTestServer(t, cfg)

	req := httptest.NewRequest(http.MethodOptions, "/api/articles/generate", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, "https://admin.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServesGeneratedImages(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a1.png"), []byte("png"), 0o600))

	cfg := testConfig()
	cfg.Images = config.Images{Directory: dir, PublicBaseURL: "/images"}
	ts := newTestServer(t, cfg)

	rec := ts.do(http.MethodGet, "/images/a1.png", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Cache-Control"), "immutable")

	rec = ts.do(http.MethodGet, "/images/", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImagesNotServedForRemoteBaseURL(t *testing.T) {
	cfg := testConfig()
	cfg.Images = config.Images{Directory: t.TempDir(), PublicBaseURL: "https://cdn.example.com/images"}
	ts := newTestServer(t, cfg)

	rec := ts.do(http.MethodGet, "/images/a1.png", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
