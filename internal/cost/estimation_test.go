package cost

import (
	"strings"
	"sync"
	"testing"
)

func TestEstimateTokenCount(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{
			name:     "empty string",
			input:    "",
			expected: 0,
		},
		{
			name:     "simple text",
			input:    "Hello world",
			expected: 4, // 11 chars / 3.5 ≈ 3.14, ceil = 4
		},
		{
			name:     "text with newlines",
			input:    "Line 1\nLine 2\nLine 3",
			expected: 6, // 20 chars / 3.5 ≈ 5.71, ceil = 6
		},
		{
			name:     "multibyte text counts runes",
			input:    "日本茶の淹れ方",
			expected: 2, // 7 runes / 3.5 = 2
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := EstimateTokenCount(tt.input)
			if result != tt.expected {
				t.Errorf("EstimateTokenCount(%q) = %d, expected %d", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPricingForUnknownModelFallsBack(t *testing.T) {
	p := PricingFor("some-future-model")
	if p.Model != "some-future-model" {
		t.Errorf("Expected model name to be preserved, got %s", p.Model)
	}
	if p.InputCostPer1MTokens != PricingTable[defaultPricingModel].InputCostPer1MTokens {
		t.Errorf("Expected fallback input pricing, got %f", p.InputCostPer1MTokens)
	}
}

func TestMeterAccumulates(t *testing.T) {
	m := NewMeter()
	m.RecordText("gpt-4o", strings.Repeat("a", 350), strings.Repeat("b", 700))
	m.RecordImage("gpt-image-1")
	m.RecordFailure("gemini-2.0-flash")

	u := m.Usage()
	if u.Calls != 3 {
		t.Errorf("Expected 3 calls, got %d", u.Calls)
	}
	if u.InputTokens != 100 || u.OutputTokens != 200 {
		t.Errorf("Expected 100/200 tokens, got %d/%d", u.InputTokens, u.OutputTokens)
	}
	if u.TotalTokens() != 300 {
		t.Errorf("Expected 300 total tokens, got %d", u.TotalTokens())
	}
	if u.Images != 1 {
		t.Errorf("Expected 1 image, got %d", u.Images)
	}

	expected := 100*2.50/1_000_000 + 200*10.00/1_000_000 + 0.063
	if diff := u.CostUSD - expected; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("Expected cost %f, got %f", expected, u.CostUSD)
	}

	want := []string{"gemini-2.0-flash", "gpt-4o", "gpt-image-1"}
	if strings.Join(u.Models, ",") != strings.Join(want, ",") {
		t.Errorf("Expected models %v, got %v", want, u.Models)
	}
}

func TestMeterConcurrentUse(t *testing.T) {
	m := NewMeter()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordText("gpt-4o-mini", "prompt", "completion")
		}()
	}
	wg.Wait()

	if got := m.Usage().Calls; got != 50 {
		t.Errorf("Expected 50 calls, got %d", got)
	}
}

func TestEstimateRun(t *testing.T) {
	est := EstimateRun(RunPlan{
		StepModels: map[string]string{
			"themes":   "gpt-4o",
			"outline":  "gpt-4o",
			"section":  "gemini-2.0-flash",
			"image":    "gpt-image-1",
			"alt_text": "gemini-2.0-flash",
			"metadata": "gemini-2.0-flash",
		},
		Sections: 4,
		Images:   2,
	})

	// themes + outline + 4 sections + 2 images + 2 alt texts + metadata
	if est.TotalCalls != 11 {
		t.Errorf("Expected 11 calls, got %d", est.TotalCalls)
	}
	if est.TotalCost <= 2*0.063 {
		t.Errorf("Expected cost above the image floor, got %f", est.TotalCost)
	}
	if len(est.Steps) != 6 {
		t.Fatalf("Expected 6 steps, got %d", len(est.Steps))
	}

	out := est.FormatEstimate()
	for _, want := range []string{"Provider calls: 11", "gpt-image-1", "metadata"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected formatted estimate to contain %q", want)
		}
	}
}

func TestEstimateRunDefaults(t *testing.T) {
	est := EstimateRun(RunPlan{})
	// themes + outline + 5 sections + 1 image + 1 alt text + metadata
	if est.TotalCalls != 10 {
		t.Errorf("Expected 10 calls with default plan, got %d", est.TotalCalls)
	}
}
