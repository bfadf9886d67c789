package cost

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"
)

// ModelPricing represents the list price of one text or image model
type ModelPricing struct {
	Model                 string
	InputCostPer1MTokens  float64 // Cost per 1M input tokens in USD
	OutputCostPer1MTokens float64 // Cost per 1M output tokens in USD
	CostPerImage          float64 // Flat cost per generated image in USD
	EstimatedOutputTokens int     // Typical completion length for planning
}

// PricingTable contains provider pricing as of 2025
var PricingTable = map[string]ModelPricing{
	"gemini-2.0-flash": {
		Model:                 "gemini-2.0-flash",
		InputCostPer1MTokens:  0.10,
		OutputCostPer1MTokens: 0.40,
		EstimatedOutputTokens: 900,
	},
	"gemini-2.5-flash": {
		Model:                 "gemini-2.5-flash",
		InputCostPer1MTokens:  0.30,
		OutputCostPer1MTokens: 2.50,
		EstimatedOutputTokens: 900,
	},
	"gemini-1.5-pro": {
		Model:                 "gemini-1.5-pro",
		InputCostPer1MTokens:  3.50,
		OutputCostPer1MTokens: 10.50,
		EstimatedOutputTokens: 1000,
	},
	"gpt-4o": {
		Model:                 "gpt-4o",
		InputCostPer1MTokens:  2.50,
		OutputCostPer1MTokens: 10.00,
		EstimatedOutputTokens: 700,
	},
	"gpt-4o-mini": {
		Model:                 "gpt-4o-mini",
		InputCostPer1MTokens:  0.15,
		OutputCostPer1MTokens: 0.60,
		EstimatedOutputTokens: 700,
	},
	"gpt-image-1": {
		Model:        "gpt-image-1",
		CostPerImage: 0.063, // medium quality, landscape
	},
	"dall-e-3": {
		Model:        "dall-e-3",
		CostPerImage: 0.080,
	},
}

const defaultPricingModel = "gemini-2.0-flash"

// PricingFor returns the pricing for model, falling back to the default text model.
func PricingFor(model string) ModelPricing {
	if p, ok := PricingTable[model]; ok {
		return p
	}
	p := PricingTable[defaultPricingModel]
	p.Model = model
	return p
}

// EstimateTokenCount provides a rough estimation of token count for text
// This is a simplified approximation: typically 1 token ≈ 4 characters
func EstimateTokenCount(text string) int {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "\n", " ")

	charCount := utf8.RuneCountInString(text)

	// Slightly pessimistic to leave room for special tokens and formatting
	return int(math.Ceil(float64(charCount) / 3.5))
}

// Usage is a snapshot of what a generation run consumed.
type Usage struct {
	Calls        int
	InputTokens  int
	OutputTokens int
	Images       int
	CostUSD      float64
	Models       []string
}

// TotalTokens returns input plus output tokens.
func (u Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// Meter accumulates provider usage for a single run.
type Meter struct {
	mu     sync.Mutex
	usage  Usage
	models map[string]struct{}
}

// NewMeter creates an empty meter
func NewMeter() *Meter {
	return &Meter{models: make(map[string]struct{})}
}

// RecordText records one text call with its prompt and completion.
func (m *Meter) RecordText(model, prompt, completion string) {
	pricing := PricingFor(model)
	in := EstimateTokenCount(prompt)
	out := EstimateTokenCount(completion)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage.Calls++
	m.usage.InputTokens += in
	m.usage.OutputTokens += out
	m.usage.CostUSD += float64(in)*pricing.InputCostPer1MTokens/1_000_000 +
		float64(out)*pricing.OutputCostPer1MTokens/1_000_000
	m.addModel(model)
}

// RecordImage records one image call.
func (m *Meter) RecordImage(model string) {
	pricing := PricingFor(model)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage.Calls++
	m.usage.Images++
	m.usage.CostUSD += pricing.CostPerImage
	m.addModel(model)
}

// RecordFailure counts a call that returned no usable output.
func (m *Meter) RecordFailure(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage.Calls++
	m.addModel(model)
}

func (m *Meter) addModel(model string) {
	if model == "" {
		return
	}
	m.models[model] = struct{}{}
}

// Usage returns a copy of the accumulated usage.
func (m *Meter) Usage() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := m.usage
	u.Models = make([]string, 0, len(m.models))
	for model := range m.models {
		u.Models = append(u.Models, model)
	}
	sort.Strings(u.Models)
	return u
}

// StepEstimate is the planned cost of one pipeline step.
type StepEstimate struct {
	Step         string
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
	Cost         float64
}

// RunEstimate is the planned cost of one article generation run.
type RunEstimate struct {
	Steps        []StepEstimate
	TotalCalls   int
	TotalTokens  int
	TotalCost    float64
	MinutesAtMin float64 // Lower bound on wall time assuming 4s per call
}

// RunPlan describes the shape of a run for estimation.
type RunPlan struct {
	StepModels map[string]string // step name -> model
	Sections   int
	Images     int
}

// EstimateRun estimates the cost of a run before any provider is called.
func EstimateRun(plan RunPlan) *RunEstimate {
	sections := plan.Sections
	if sections <= 0 {
		sections = 5
	}
	images := plan.Images
	if images <= 0 {
		images = 1
	}

	// Prompt sizes grow with the accumulated article for section calls.
	steps := []struct {
		name        string
		calls       int
		inputTokens int
		image       bool
	}{
		{"themes", 1, 400, false},
		{"outline", 1, 600, false},
		{"section", sections, 600 + sections*450, false},
		{"image", images, 0, true},
		{"alt_text", images, 500, false},
		{"metadata", 1, 400 + sections*900, false},
	}

	est := &RunEstimate{}
	for _, s := range steps {
		model := plan.StepModels[s.name]
		pricing := PricingFor(model)

		se := StepEstimate{Step: s.name, Model: model, Calls: s.calls}
		if s.image {
			se.Cost = float64(s.calls) * pricing.CostPerImage
		} else {
			se.InputTokens = s.calls * s.inputTokens
			se.OutputTokens = s.calls * pricing.EstimatedOutputTokens
			se.Cost = float64(se.InputTokens)*pricing.InputCostPer1MTokens/1_000_000 +
				float64(se.OutputTokens)*pricing.OutputCostPer1MTokens/1_000_000
		}

		est.Steps = append(est.Steps, se)
		est.TotalCalls += se.Calls
		est.TotalTokens += se.InputTokens + se.OutputTokens
		est.TotalCost += se.Cost
	}
	est.MinutesAtMin = float64(est.TotalCalls) * 4 / 60
	return est
}

// FormatEstimate formats the estimate for display
func (e *RunEstimate) FormatEstimate() string {
	var sb strings.Builder

	sb.WriteString("Cost Estimation per Article\n")
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")

	fmt.Fprintf(&sb, "   Provider calls: %d\n", e.TotalCalls)
	fmt.Fprintf(&sb, "   Estimated tokens: %d\n", e.TotalTokens)
	fmt.Fprintf(&sb, "   Total estimated cost: $%.4f\n", e.TotalCost)
	fmt.Fprintf(&sb, "   Minimum wall time: %.1f minutes\n\n", e.MinutesAtMin)

	for _, s := range e.Steps {
		model := s.Model
		if model == "" {
			model = "(unrouted)"
		}
		fmt.Fprintf(&sb, "   %-9s %-18s x%-2d $%.4f\n", s.Step, model, s.Calls, s.Cost)
	}
	return sb.String()
}
