package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediacms/internal/core"
	"mediacms/internal/generation"
	"mediacms/internal/observability"
	"mediacms/internal/persistence"
	"mediacms/internal/testutil"
)

func tokyo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	return loc
}

// mondayNine is Monday 09:30 in Tokyo.
var mondayNine = time.Date(2025, 4, 7, 0, 30, 0, 0, time.UTC)

type fakeGenerator struct {
	mu       sync.Mutex
	calls    []string
	errs     map[string]error
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	panicID  string
	started  func()
}

func (g *fakeGenerator) GenerateScheduled(ctx context.Context, schedule core.ScheduledGeneration) (*generation.Result, error) {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		seen := g.maxSeen.Load()
		if n <= seen || g.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	g.mu.Lock()
	g.calls = append(g.calls, schedule.ID)
	err := g.errs[schedule.ID]
	g.mu.Unlock()

	if g.started != nil {
		g.started()
	}
	if schedule.ID == g.panicID {
		panic("boom")
	}
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return &generation.Result{Article: &core.GeneratedArticle{ID: "article-" + schedule.ID, Title: "Title " + schedule.ID}}, nil
}

func (g *fakeGenerator) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func schedule(id string, days []int, hour string) core.ScheduledGeneration {
	req := testutil.Request()
	return core.ScheduledGeneration{ID: id, TenantID: "t1", DaysOfWeek: days, TimeOfDay: hour, IsActive: true, Request: req}
}

func storeWith(schedules ...core.ScheduledGeneration) *testutil.CountingStore {
	s := testutil.NewCountingStore()
	s.Seed(&persistence.Fixtures{Schedules: schedules})
	return s
}

func TestDue(t *testing.T) {
	loc := tokyo(t)

	tests := []struct {
		name     string
		schedule core.ScheduledGeneration
		now      time.Time
		want     bool
	}{
		{"matching weekday and hour", schedule("s", []int{1, 3}, "09:00"), mondayNine, true},
		{"other weekday", schedule("s", []int{2}, "09:00"), mondayNine, false},
		{"other hour", schedule("s", []int{1}, "10:00"), mondayNine, false},
		{"hour must be exact", schedule("s", []int{1}, "9:00"), mondayNine, false},
		{"inactive", core.ScheduledGeneration{DaysOfWeek: []int{1}, TimeOfDay: "09:00"}, mondayNine, false},
		// Sunday 15:00 UTC is already Monday midnight in Tokyo.
		{"date line", schedule("s", []int{1}, "00:00"), time.Date(2025, 4, 6, 15, 0, 0, 0, time.UTC), true},
		{"utc weekday ignored", schedule("s", []int{0}, "00:00"), time.Date(2025, 4, 6, 15, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Due(tt.schedule, tt.now, loc))
		})
	}
}

func TestDueAcrossDaylightSaving(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	s := schedule("s", []int{0}, "10:00")
	// 14:00 UTC is 09:00 EST before the switch and 10:00 EDT after it.
	assert.False(t, Due(s, time.Date(2025, 3, 2, 14, 0, 0, 0, time.UTC), ny))
	assert.True(t, Due(s, time.Date(2025, 3, 9, 14, 0, 0, 0, time.UTC), ny))
}

func TestSlot(t *testing.T) {
	weekday, hour := Slot(mondayNine, tokyo(t))
	assert.Equal(t, time.Monday, weekday)
	assert.Equal(t, "09:00", hour)
}

func TestRunInvokesOnlyDueSchedules(t *testing.T) {
	store := storeWith(
		schedule("s-due", []int{1}, "09:00"),
		schedule("s-later", []int{1}, "18:00"),
	)
	gen := &fakeGenerator{}
	tracker := &testutil.FakeTracker{}
	trigger := NewTrigger(gen, store, tracker, tokyo(t), 2)

	summary, err := trigger.Run(context.Background(), mondayNine)
	require.NoError(t, err)

	assert.Equal(t, []string{"s-due"}, gen.Calls())
	assert.Equal(t, 1, summary.ExecutedCount)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, core.ScheduleResult{
		ScheduleID: "s-due",
		TenantID:   "t1",
		Success:    true,
		ArticleID:  "article-s-due",
		Title:      "Title s-due",
	}, summary.Results[0])

	due, _ := store.GetSchedule("s-due")
	require.NotNil(t, due.LastExecutedAt)
	assert.True(t, mondayNine.Equal(*due.LastExecutedAt))

	later, _ := store.GetSchedule("s-later")
	assert.Nil(t, later.LastExecutedAt)

	events := tracker.Named(observability.EventScheduleTriggerCompleted)
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].Properties["executed_count"])
}

func TestRunRecordsFailureWithoutError(t *testing.T) {
	store := storeWith(schedule("s-1", []int{1}, "09:00"))
	gen := &fakeGenerator{errs: map[string]error{"s-1": &core.ProviderError{Provider: "openai", StatusCode: 500}}}
	trigger := NewTrigger(gen, store, nil, tokyo(t), 1)

	summary, err := trigger.Run(context.Background(), mondayNine)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ExecutedCount)
	assert.Equal(t, 0, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Results, 1)
	assert.False(t, summary.Results[0].Success)
	assert.Contains(t, summary.Results[0].Error, "status 500")
	assert.Equal(t, 0, store.MarkCalls())

	s, _ := store.GetSchedule("s-1")
	assert.Nil(t, s.LastExecutedAt)
}

func TestRunIsolatesFailures(t *testing.T) {
	store := storeWith(
		schedule("s-a", []int{1}, "09:00"),
		schedule("s-b", []int{1}, "09:00"),
		schedule("s-c", []int{1}, "09:00"),
		schedule("s-d", []int{1}, "09:00"),
	)
	gen := &fakeGenerator{
		errs:    map[string]error{"s-b": errors.New("no unique theme")},
		panicID: "s-c",
	}
	trigger := NewTrigger(gen, store, nil, tokyo(t), 4)

	summary, err := trigger.Run(context.Background(), mondayNine)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.ExecutedCount)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 2, summary.Failed)

	byID := map[string]core.ScheduleResult{}
	for _, r := range summary.Results {
		byID[r.ScheduleID] = r
	}
	assert.True(t, byID["s-a"].Success)
	assert.Equal(t, "no unique theme", byID["s-b"].Error)
	assert.Equal(t, "panic: boom", byID["s-c"].Error)
	assert.True(t, byID["s-d"].Success)
	assert.Equal(t, 2, store.MarkCalls())
}

func TestRunStampFailureStillSucceeds(t *testing.T) {
	store := storeWith(schedule("s-1", []int{1}, "09:00"))
	store.MarkErr = &core.PersistenceError{Op: "mark schedule executed", Err: errors.New("timeout")}
	trigger := NewTrigger(&fakeGenerator{}, store, nil, tokyo(t), 1)

	summary, err := trigger.Run(context.Background(), mondayNine)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, store.MarkCalls())
}

func TestRunBoundsConcurrency(t *testing.T) {
	var schedules []core.ScheduledGeneration
	for _, id := range []string{"s-1", "s-2", "s-3", "s-4", "s-5", "s-6"} {
		schedules = append(schedules, schedule(id, []int{1}, "09:00"))
	}
	gen := &fakeGenerator{delay: 20 * time.Millisecond}
	trigger := NewTrigger(gen, storeWith(schedules...), nil, tokyo(t), 2)

	summary, err := trigger.Run(context.Background(), mondayNine)
	require.NoError(t, err)
	assert.Equal(t, 6, summary.Succeeded)
	assert.LessOrEqual(t, gen.maxSeen.Load(), int32(2))
	assert.GreaterOrEqual(t, gen.maxSeen.Load(), int32(1))
}

func TestRunWithNothingDue(t *testing.T) {
	gen := &fakeGenerator{}
	summary, err := NewTrigger(gen, storeWith(), nil, tokyo(t), 0).Run(context.Background(), mondayNine)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.ExecutedCount)
	assert.Empty(t, summary.Results)
	assert.Empty(t, gen.Calls())
}

type failingStore struct{}

func (failingStore) ListActiveSchedules(ctx context.Context) ([]core.ScheduledGeneration, error) {
	return nil, &core.PersistenceError{Op: "list schedules", Err: errors.New("connection refused")}
}

func (failingStore) MarkScheduleExecuted(ctx context.Context, scheduleID string, at time.Time) error {
	return nil
}

func TestRunListFailureIsAnError(t *testing.T) {
	_, err := NewTrigger(&fakeGenerator{}, failingStore{}, nil, tokyo(t), 1).Run(context.Background(), mondayNine)
	assert.ErrorIs(t, err, core.ErrPersistence)
}

func TestRunWithPipeline(t *testing.T) {
	store := storeWith(schedule("s-1", []int{1}, "09:00"))
	pipeline := generation.NewPipeline(testutil.NewFakeGateway(), store, nil, nil)
	trigger := NewTrigger(pipeline, store, nil, tokyo(t), 1)

	summary, err := trigger.Run(context.Background(), mondayNine)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Succeeded)

	article, err := store.GetArticle(context.Background(), summary.Results[0].ArticleID)
	require.NoError(t, err)
	assert.Equal(t, "s-1", article.Generation.ScheduleID)
	assert.Equal(t, 1, store.CreateCalls())
}

func TestRunOutlivesCallerCancellation(t *testing.T) {
	store := storeWith(
		schedule("s-1", []int{1}, "09:00"),
		schedule("s-2", []int{1}, "09:00"),
		schedule("s-3", []int{1}, "09:00"),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// The caller goes away while the first schedule is still generating.
	gen := &fakeGenerator{delay: 5 * time.Millisecond, started: cancel}
	trigger := NewTrigger(gen, store, nil, tokyo(t), 1)

	summary, err := trigger.Run(ctx, mondayNine)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Len(t, gen.Calls(), 3)
	assert.Equal(t, 3, store.MarkCalls())
}

func TestRunRejectsScheduleForAnotherTenant(t *testing.T) {
	s := schedule("s-1", []int{1}, "09:00")
	s.Request.TenantID = "t2"
	store := storeWith(s)
	gateway := testutil.NewFakeGateway()
	trigger := NewTrigger(generation.NewPipeline(gateway, store, nil, nil), store, nil, tokyo(t), 1)

	summary, err := trigger.Run(context.Background(), mondayNine)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Failed)
	assert.Contains(t, summary.Results[0].Error, "tenantId")
	assert.Equal(t, 0, gateway.TotalCalls())
	assert.Equal(t, 0, store.CreateCalls())
}
