package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"mediacms/internal/core"
)

// Fixtures is the seed document for a MemoryStore. Files may be YAML or JSON
// and use the same field names as the API.
type Fixtures struct {
	Categories          []core.Category            `json:"categories"`
	Writers             []core.Writer              `json:"writers"`
	CompositionPatterns []core.CompositionPattern  `json:"compositionPatterns"`
	ImagePromptPatterns []core.ImagePromptPattern  `json:"imagePromptPatterns"`
	WritingStyles       []core.WritingStyle        `json:"writingStyles"`
	Articles            []core.GeneratedArticle    `json:"articles"`
	Schedules           []core.ScheduledGeneration `json:"schedules"`
}

// LoadFixtures reads a YAML or JSON fixture file.
func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures: %w", err)
	}
	return ParseFixtures(data)
}

// ParseFixtures decodes YAML (or JSON, which is valid YAML) into Fixtures.
func ParseFixtures(data []byte) (*Fixtures, error) {
	// Decode generically first so the json tags on the core types apply to YAML input too.
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}
	normalized, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize fixtures: %w", err)
	}

	var f Fixtures
	if err := json.Unmarshal(normalized, &f); err != nil {
		return nil, fmt.Errorf("failed to decode fixtures: %w", err)
	}
	return &f, nil
}

// MemoryStore is a thread-safe in-process Store
type MemoryStore struct {
	mu sync.RWMutex

	categories          map[string]core.Category
	writers             map[string]core.Writer
	compositionPatterns map[string]core.CompositionPattern
	imagePromptPatterns map[string]core.ImagePromptPattern
	writingStyles       map[string]core.WritingStyle
	articles            map[string]core.GeneratedArticle
	articleOrder        []string
	schedules           map[string]core.ScheduledGeneration

	now func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		categories:          make(map[string]core.Category),
		writers:             make(map[string]core.Writer),
		compositionPatterns: make(map[string]core.CompositionPattern),
		imagePromptPatterns: make(map[string]core.ImagePromptPattern),
		writingStyles:       make(map[string]core.WritingStyle),
		articles:            make(map[string]core.GeneratedArticle),
		schedules:           make(map[string]core.ScheduledGeneration),
		now:                 func() time.Time { return time.Now().UTC() },
	}
}

// NewMemoryStoreFromFile creates a store seeded from a fixture file
func NewMemoryStoreFromFile(path string) (*MemoryStore, error) {
	s := NewMemoryStore()
	if path == "" {
		return s, nil
	}
	f, err := LoadFixtures(path)
	if err != nil {
		return nil, err
	}
	s.Seed(f)
	return s, nil
}

// SetClock replaces the clock used for server-side timestamps
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Seed loads fixtures, replacing documents with the same IDs
func (s *MemoryStore) Seed(f *Fixtures) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range f.Categories {
		s.categories[c.ID] = c
	}
	for _, w := range f.Writers {
		s.writers[w.ID] = w
	}
	for _, p := range f.CompositionPatterns {
		s.compositionPatterns[p.ID] = p
	}
	for _, p := range f.ImagePromptPatterns {
		s.imagePromptPatterns[p.ID] = p
	}
	for _, ws := range f.WritingStyles {
		s.writingStyles[ws.ID] = ws
	}
	for _, a := range f.Articles {
		if _, exists := s.articles[a.ID]; !exists {
			s.articleOrder = append(s.articleOrder, a.ID)
		}
		s.articles[a.ID] = a
	}
	for _, sg := range f.Schedules {
		s.schedules[sg.ID] = sg
	}
}

func (s *MemoryStore) GetTenantCategory(ctx context.Context, tenantID, categoryID string) (*core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[categoryID]
	if !ok || c.TenantID != tenantID {
		return nil, &core.NotFoundError{Entity: "category", ID: categoryID}
	}
	return &c, nil
}

func (s *MemoryStore) GetWriter(ctx context.Context, tenantID, writerID string) (*core.Writer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.writers[writerID]
	if !ok || w.TenantID != tenantID {
		return nil, &core.NotFoundError{Entity: "writer", ID: writerID}
	}
	return &w, nil
}

func (s *MemoryStore) GetCompositionPattern(ctx context.Context, tenantID, patternID string) (*core.CompositionPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.compositionPatterns[patternID]
	if !ok || p.TenantID != tenantID {
		return nil, &core.NotFoundError{Entity: "composition pattern", ID: patternID}
	}
	return &p, nil
}

func (s *MemoryStore) GetImagePromptPattern(ctx context.Context, tenantID, patternID string) (*core.ImagePromptPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.imagePromptPatterns[patternID]
	if !ok || p.TenantID != tenantID {
		return nil, &core.NotFoundError{Entity: "image prompt pattern", ID: patternID}
	}
	return &p, nil
}

func (s *MemoryStore) GetWritingStyle(ctx context.Context, tenantID, styleID string) (*core.WritingStyle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ws, ok := s.writingStyles[styleID]
	if !ok || ws.TenantID != tenantID {
		return nil, &core.NotFoundError{Entity: "writing style", ID: styleID}
	}
	return &ws, nil
}

func (s *MemoryStore) ListPublishedTitles(ctx context.Context, tenantID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var titles []string
	for _, id := range s.articleOrder {
		a := s.articles[id]
		if a.TenantID == tenantID && a.IsPublished {
			titles = append(titles, a.Title)
		}
	}
	return titles, nil
}

func (s *MemoryStore) CreateArticle(ctx context.Context, article *core.GeneratedArticle) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &core.PersistenceError{Op: "create article", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if article.ID == "" {
		article.ID = uuid.NewString()
	}
	if _, exists := s.articles[article.ID]; exists {
		return "", &core.PersistenceError{Op: "create article", Err: fmt.Errorf("duplicate id %s", article.ID)}
	}

	now := s.now()
	article.CreatedAt = now
	article.UpdatedAt = now
	article.ViewCount = 0

	s.articles[article.ID] = *article
	s.articleOrder = append(s.articleOrder, article.ID)
	return article.ID, nil
}

func (s *MemoryStore) GetArticle(ctx context.Context, id string) (*core.GeneratedArticle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.articles[id]
	if !ok {
		return nil, &core.NotFoundError{Entity: "article", ID: id}
	}
	return &a, nil
}

// Articles returns every stored article in insertion order
func (s *MemoryStore) Articles() []core.GeneratedArticle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.GeneratedArticle, 0, len(s.articleOrder))
	for _, id := range s.articleOrder {
		out = append(out, s.articles[id])
	}
	return out
}

func (s *MemoryStore) ListActiveSchedules(ctx context.Context) ([]core.ScheduledGeneration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.ScheduledGeneration
	for _, sg := range s.schedules {
		if sg.IsActive {
			out = append(out, sg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetSchedule returns a schedule by ID
func (s *MemoryStore) GetSchedule(id string) (core.ScheduledGeneration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sg, ok := s.schedules[id]
	return sg, ok
}

func (s *MemoryStore) MarkScheduleExecuted(ctx context.Context, scheduleID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sg, ok := s.schedules[scheduleID]
	if !ok {
		return &core.NotFoundError{Entity: "schedule", ID: scheduleID}
	}
	stamp := at
	sg.LastExecutedAt = &stamp
	s.schedules[scheduleID] = sg
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}
