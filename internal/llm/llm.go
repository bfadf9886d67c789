// Package llm is the provider-neutral gateway to text and image generation models.
package llm

import (
	"context"
)

// Provider names accepted in routing configuration
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Step identifies a pipeline step for routing purposes
type Step string

const (
	StepThemes   Step = "themes"
	StepOutline  Step = "outline"
	StepSection  Step = "section"
	StepImage    Step = "image"
	StepAltText  Step = "alt_text"
	StepMetadata Step = "metadata"
)

// Steps lists every routable step in pipeline order.
var Steps = []Step{StepThemes, StepOutline, StepSection, StepImage, StepAltText, StepMetadata}

// Params are the model parameters for a text call. Zero values use the provider default.
type Params struct {
	Temperature float32
	MaxTokens   int
}

// Image is a generated image reference.
type Image struct {
	URL           string
	RevisedPrompt string
}

// TextGenerator turns a system instruction and user prompt into text.
// Implementations return *core.ProviderError when the upstream call fails
// and never substitute default content.
type TextGenerator interface {
	GenerateText(ctx context.Context, system, user string, params Params) (string, error)
}

// ImageGenerator turns a prompt into an image reference.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, size string) (Image, error)
}
