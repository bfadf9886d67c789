package persistence

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediacms/internal/core"
)

const fixtureYAML = `
categories:
  - id: cat-1
    tenantId: t1
    name: Tea
    slug: tea
writers:
  - id: w-1
    tenantId: t1
    displayName: Aoi
imagePromptPatterns:
  - id: ip-1
    tenantId: t1
    template: "Photo of {{title}}"
    size: 1536x1024
    count: 1
articles:
  - id: a-1
    tenantId: t1
    title: Brewing sencha
    isPublished: true
    sections:
      - type: heading
        level: 2
        text: Water
  - id: a-2
    tenantId: t1
    title: Draft about matcha
    isPublished: false
  - id: a-3
    tenantId: t2
    title: Other tenant title
    isPublished: true
schedules:
  - id: s-1
    tenantId: t1
    daysOfWeek: [1, 3]
    timeOfDay: "09:00"
    isActive: true
    request:
      tenantId: t1
      categoryId: cat-1
      writerId: w-1
      imagePromptPatternId: ip-1
  - id: s-2
    tenantId: t1
    isActive: false
`

func seededStore(t *testing.T) *MemoryStore {
	t.Helper()
	f, err := ParseFixtures([]byte(fixtureYAML))
	require.NoError(t, err)
	s := NewMemoryStore()
	s.Seed(f)
	return s
}

func TestParseFixturesYAML(t *testing.T) {
	f, err := ParseFixtures([]byte(fixtureYAML))
	require.NoError(t, err)

	require.Len(t, f.Articles, 3)
	require.Len(t, f.Articles[0].Sections, 1)
	assert.Equal(t, core.HeadingBlock{Level: 2, Text: "Water"}, f.Articles[0].Sections[0])
	assert.Equal(t, "ip-1", f.Schedules[0].Request.ImagePromptPatternID)
	assert.Equal(t, []int{1, 3}, f.Schedules[0].DaysOfWeek)
}

func TestNewMemoryStoreFromFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"writers":[{"id":"w-9","tenantId":"t9","displayName":"Ren"}]}`), 0o600))

	s, err := NewMemoryStoreFromFile(path)
	require.NoError(t, err)

	w, err := s.GetWriter(context.Background(), "t9", "w-9")
	require.NoError(t, err)
	assert.Equal(t, "Ren", w.DisplayName)
}

func TestExampleFixturesLoad(t *testing.T) {
	s, err := NewMemoryStoreFromFile(filepath.Join("..", "..", "fixtures.example.yaml"))
	require.NoError(t, err)

	ctx := context.Background()
	p, err := s.GetImagePromptPattern(ctx, "t1", "ip-photo")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Count)

	schedules, err := s.ListActiveSchedules(ctx)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, "09:00", schedules[0].TimeOfDay)
	assert.Equal(t, core.PublishScheduled, schedules[0].Request.Publish)
}

func TestMemoryStoreLookupsAreTenantScoped(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	c, err := s.GetTenantCategory(ctx, "t1", "cat-1")
	require.NoError(t, err)
	assert.Equal(t, "Tea", c.Name)

	_, err = s.GetTenantCategory(ctx, "t2", "cat-1")
	var nf *core.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "category", nf.Entity)

	_, err = s.GetWriter(ctx, "t1", "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.GetCompositionPattern(ctx, "t1", "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.GetWritingStyle(ctx, "t1", "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestMemoryStoreListPublishedTitles(t *testing.T) {
	s := seededStore(t)
	titles, err := s.ListPublishedTitles(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Brewing sencha"}, titles)
}

func TestMemoryStoreCreateArticle(t *testing.T) {
	s := NewMemoryStore()
	fixed := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return fixed })

	article := &core.GeneratedArticle{TenantID: "t1", Title: "New", IsPublished: true, ViewCount: 99}
	id, err := s.CreateArticle(context.Background(), article)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	stored, err := s.GetArticle(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, fixed, stored.CreatedAt)
	assert.Equal(t, fixed, stored.UpdatedAt)
	assert.Equal(t, int64(0), stored.ViewCount)

	titles, _ := s.ListPublishedTitles(context.Background(), "t1")
	assert.Equal(t, []string{"New"}, titles)

	_, err = s.CreateArticle(context.Background(), &core.GeneratedArticle{ID: id})
	assert.ErrorIs(t, err, core.ErrPersistence)
}

func TestMemoryStoreSchedules(t *testing.T) {
	s := seededStore(t)
	ctx := context.Background()

	active, err := s.ListActiveSchedules(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "s-1", active[0].ID)

	at := time.Date(2025, 4, 7, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.MarkScheduleExecuted(ctx, "s-1", at))
	sg, ok := s.GetSchedule("s-1")
	require.True(t, ok)
	require.NotNil(t, sg.LastExecutedAt)
	assert.Equal(t, at, *sg.LastExecutedAt)

	assert.ErrorIs(t, s.MarkScheduleExecuted(ctx, "nope", at), core.ErrNotFound)
}
