// Package testutil holds hand-written fakes shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mediacms/internal/core"
	"mediacms/internal/llm"
	"mediacms/internal/observability"
	"mediacms/internal/persistence"
)

// FakeGateway is a scripted LLM gateway that counts calls per step.
// Responses are consumed in order per step; the last one repeats.
type FakeGateway struct {
	mu sync.Mutex

	Responses map[llm.Step][]string
	Errors    map[llm.Step]error   // returned on every call to the step
	Failures  map[llm.Step][]error // returned once each, before any response

	// TextFunc overrides scripted responses when set
	TextFunc func(ctx context.Context, step llm.Step, system, user string) (string, error)

	ImageURL string
	ImageErr error
	Models   map[llm.Step]string

	calls   map[llm.Step]int
	served  map[llm.Step]int
	prompts map[llm.Step][]string
}

// DefaultResponses scripts a complete two-section run.
func DefaultResponses() map[llm.Step][]string {
	return map[llm.Step][]string{
		llm.StepThemes: {`["How to cold brew sencha", "Choosing a kyusu teapot"]`},
		llm.StepOutline: {"```json\n" + `[
  {"heading": "Why cold brew", "summary": "Lower bitterness"},
  {"heading": "Step by step", "summary": "Leaves, water, time"}
]` + "\n```"},
		llm.StepSection: {
			"Cold brewing pulls out **sweetness** and leaves most of the bitterness behind.",
			"Add 10g of leaves to 1L of water.\n\n- Refrigerate for 3 hours\n- Strain and serve",
		},
		llm.StepAltText:  {"A glass pitcher of pale green tea on a wooden counter"},
		llm.StepMetadata: {`{"seoTitle": "How to Cold Brew Sencha", "metaDescription": "A simple guide to cold brewing sencha at home."}`},
	}
}

// NewFakeGateway returns a gateway scripted with DefaultResponses.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		Responses: DefaultResponses(),
		Errors:    map[llm.Step]error{},
		ImageURL:  "https://images.example.com/generated.png",
		Models: map[llm.Step]string{
			llm.StepThemes:   "gpt-4o",
			llm.StepOutline:  "gpt-4o",
			llm.StepSection:  "gemini-2.0-flash",
			llm.StepImage:    "gpt-image-1",
			llm.StepAltText:  "gemini-2.0-flash",
			llm.StepMetadata: "gemini-2.0-flash",
		},
		Failures: map[llm.Step][]error{},
		calls:    map[llm.Step]int{},
		served:   map[llm.Step]int{},
		prompts:  map[llm.Step][]string{},
	}
}

func (g *FakeGateway) record(step llm.Step, prompt string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.calls == nil {
		g.calls = map[llm.Step]int{}
		g.served = map[llm.Step]int{}
		g.prompts = map[llm.Step][]string{}
	}
	g.calls[step]++
	g.prompts[step] = append(g.prompts[step], prompt)
}

func (g *FakeGateway) GenerateText(ctx context.Context, step llm.Step, system, user string, params llm.Params) (string, error) {
	g.record(step, user)
	if g.TextFunc != nil {
		return g.TextFunc(ctx, step, system, user)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if queued := g.Failures[step]; len(queued) > 0 {
		g.Failures[step] = queued[1:]
		return "", queued[0]
	}
	if err := g.Errors[step]; err != nil {
		return "", err
	}
	responses := g.Responses[step]
	if len(responses) == 0 {
		return "", fmt.Errorf("no scripted response for step %s", step)
	}
	n := g.served[step]
	g.served[step]++
	if n >= len(responses) {
		n = len(responses) - 1
	}
	return responses[n], nil
}

func (g *FakeGateway) GenerateImage(ctx context.Context, prompt, size string) (llm.Image, error) {
	g.record(llm.StepImage, prompt)
	if err := ctx.Err(); err != nil {
		return llm.Image{}, err
	}
	if g.ImageErr != nil {
		return llm.Image{}, g.ImageErr
	}
	return llm.Image{URL: g.ImageURL}, nil
}

func (g *FakeGateway) Model(step llm.Step) string {
	return g.Models[step]
}

// Calls returns how many times step was invoked.
func (g *FakeGateway) Calls(step llm.Step) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[step]
}

// TotalCalls returns the number of calls across all steps.
func (g *FakeGateway) TotalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	total := 0
	for _, n := range g.calls {
		total += n
	}
	return total
}

// Prompts returns the user prompts sent for step, in order.
func (g *FakeGateway) Prompts(step llm.Step) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts[step]...)
}

// Event is one captured analytics call.
type Event struct {
	Name       string
	DistinctID string
	Properties observability.EventProperties
}

// FakeTracker captures analytics events in memory.
type FakeTracker struct {
	mu     sync.Mutex
	events []Event
}

func (t *FakeTracker) add(e Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
	return nil
}

func (t *FakeTracker) TrackArticleGenerated(ctx context.Context, tenantID string, props observability.EventProperties) error {
	return t.add(Event{Name: observability.EventArticleGenerated, DistinctID: tenantID, Properties: props})
}

func (t *FakeTracker) TrackGenerationFailed(ctx context.Context, tenantID string, props observability.EventProperties) error {
	return t.add(Event{Name: observability.EventArticleGenerationFailed, DistinctID: tenantID, Properties: props})
}

func (t *FakeTracker) TrackTriggerCompleted(ctx context.Context, executed, succeeded, failed int) error {
	return t.add(Event{Name: observability.EventScheduleTriggerCompleted, DistinctID: "system", Properties: observability.EventProperties{
		"executed_count": executed,
		"succeeded":      succeeded,
		"failed":         failed,
	}})
}

// Events returns the captured events in order.
func (t *FakeTracker) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Event(nil), t.events...)
}

// Named returns the captured events with the given name.
func (t *FakeTracker) Named(name string) []Event {
	var out []Event
	for _, e := range t.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// CountingStore wraps a MemoryStore, counting writes and injecting write failures.
type CountingStore struct {
	*persistence.MemoryStore

	mu          sync.Mutex
	CreateErr   error
	MarkErr     error
	createCalls int
	markCalls   int
}

// NewCountingStore returns a CountingStore over a store seeded with SeedFixtures.
func NewCountingStore() *CountingStore {
	s := persistence.NewMemoryStore()
	s.Seed(SeedFixtures())
	return &CountingStore{MemoryStore: s}
}

func (s *CountingStore) CreateArticle(ctx context.Context, article *core.GeneratedArticle) (string, error) {
	s.mu.Lock()
	s.createCalls++
	err := s.CreateErr
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	return s.MemoryStore.CreateArticle(ctx, article)
}

func (s *CountingStore) MarkScheduleExecuted(ctx context.Context, scheduleID string, at time.Time) error {
	s.mu.Lock()
	s.markCalls++
	err := s.MarkErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.MemoryStore.MarkScheduleExecuted(ctx, scheduleID, at)
}

// CreateCalls returns the number of CreateArticle calls.
func (s *CountingStore) CreateCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCalls
}

// MarkCalls returns the number of MarkScheduleExecuted calls.
func (s *CountingStore) MarkCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markCalls
}

// Request returns a valid request against SeedFixtures.
func Request() core.GenerationRequest {
	return core.GenerationRequest{
		TenantID:             "t1",
		CategoryID:           "cat-tea",
		WriterID:             "w-aoi",
		ImagePromptPatternID: "ip-photo",
		PatternID:            "cp-howto",
		WritingStyleID:       "ws-friendly",
	}
}

// SeedFixtures is a single tenant with one of each configuration entity and
// one published article.
func SeedFixtures() *persistence.Fixtures {
	return &persistence.Fixtures{
		Categories: []core.Category{
			{ID: "cat-tea", TenantID: "t1", Name: "Tea", Slug: "tea", Description: "Japanese tea culture"},
		},
		Writers: []core.Writer{
			{ID: "w-aoi", TenantID: "t1", DisplayName: "Aoi Tanaka", Persona: "A tea sommelier who writes warmly"},
		},
		CompositionPatterns: []core.CompositionPattern{
			{ID: "cp-howto", TenantID: "t1", Name: "How-to", Instruction: "Open with the payoff, then give numbered steps."},
		},
		ImagePromptPatterns: []core.ImagePromptPattern{
			{ID: "ip-photo", TenantID: "t1", Name: "Photo", Template: "Editorial photo for {{title}}: {{section}} ({{category}})", Size: "1536x1024", Count: 1},
		},
		WritingStyles: []core.WritingStyle{
			{ID: "ws-friendly", TenantID: "t1", Name: "Friendly", Instruction: "Conversational, second person."},
		},
		Articles: []core.GeneratedArticle{
			{ID: "a-existing", TenantID: "t1", Title: "Ten tips for brewing better green tea at home", IsPublished: true},
		},
	}
}
