package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"mediacms/internal/core"
)

// DefaultGeminiModel is used when no model is configured
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiClient is the fast drafting provider backed by Google Gemini
type GeminiClient struct {
	client      *genai.Client
	modelName   string
	temperature float32
	maxTokens   int32
}

// GeminiOptions configures a GeminiClient
type GeminiOptions struct {
	APIKey      string
	Model       string
	Temperature float32 // default when a call leaves Params.Temperature unset
	MaxTokens   int32   // default when a call leaves Params.MaxTokens unset
}

// NewGeminiClient creates a Gemini client from explicit credentials.
func NewGeminiClient(ctx context.Context, opts GeminiOptions) (*GeminiClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required. Set GEMINI_API_KEY or ai.gemini.api_key")
	}
	if opts.Model == "" {
		opts.Model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client:      client,
		modelName:   opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}, nil
}

// Model returns the configured model name
func (c *GeminiClient) Model() string {
	return c.modelName
}

// GenerateText implements TextGenerator
func (c *GeminiClient) GenerateText(ctx context.Context, system, user string, params Params) (string, error) {
	model := c.client.GenerativeModel(c.modelName)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	temperature := c.temperature
	if params.Temperature > 0 {
		temperature = params.Temperature
	}
	if temperature > 0 {
		model.SetTemperature(temperature)
	}

	maxTokens := c.maxTokens
	if params.MaxTokens > 0 {
		maxTokens = int32(params.MaxTokens)
	}
	if maxTokens > 0 {
		model.SetMaxOutputTokens(maxTokens)
	}

	resp, err := model.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", geminiError(ctx, err)
	}

	text := responseText(resp)
	if text == "" {
		return "", &core.ProviderError{Provider: ProviderGemini, Body: "empty response"}
	}
	return text, nil
}

// Close releases the underlying client
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return strings.TrimSpace(sb.String())
}

// geminiError converts SDK failures into ProviderError, leaving context
// cancellation untouched so callers can tell a budget overrun from an upstream fault.
func geminiError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		body := apiErr.Body
		if body == "" {
			body = apiErr.Message
		}
		return &core.ProviderError{Provider: ProviderGemini, StatusCode: apiErr.Code, Body: body, Err: err}
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return &core.ProviderError{Provider: ProviderGemini, Body: blocked.Error(), Err: err}
	}

	return &core.ProviderError{Provider: ProviderGemini, Err: err}
}
