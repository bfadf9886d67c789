package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mediacms/internal/core"
)

// Defaults for the structured reasoning and image provider
const (
	DefaultOpenAIModel      = "gpt-4o"
	DefaultOpenAIImageModel = "gpt-image-1"
	DefaultOpenAIBaseURL    = "https://api.openai.com/v1"
)

// OpenAIClient handles OpenAI chat completion and image generation calls
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	imageModel string
	httpClient *http.Client
	sink       ImageSink
}

// OpenAIOptions configures an OpenAIClient
type OpenAIOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	ImageModel string
	Timeout    time.Duration
	Sink       ImageSink // stores images returned as base64
	HTTPClient *http.Client
}

// NewOpenAIClient creates a new OpenAI API client
func NewOpenAIClient(opts OpenAIOptions) (*OpenAIClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required. Set OPENAI_API_KEY or ai.openai.api_key")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultOpenAIBaseURL
	}
	if opts.Model == "" {
		opts.Model = DefaultOpenAIModel
	}
	if opts.ImageModel == "" {
		opts.ImageModel = DefaultOpenAIImageModel
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &OpenAIClient{
		apiKey:     opts.APIKey,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		model:      opts.Model,
		imageModel: opts.ImageModel,
		httpClient: httpClient,
		sink:       opts.Sink,
	}, nil
}

// Model returns the chat model name
func (c *OpenAIClient) Model() string { return c.model }

// ImageModel returns the image model name
func (c *OpenAIClient) ImageModel() string { return c.imageModel }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// GenerateText implements TextGenerator
func (c *OpenAIClient) GenerateText(ctx context.Context, system, user string, params Params) (string, error) {
	request := chatRequest{
		Model:     c.model,
		MaxTokens: params.MaxTokens,
	}
	if system != "" {
		request.Messages = append(request.Messages, chatMessage{Role: "system", Content: system})
	}
	request.Messages = append(request.Messages, chatMessage{Role: "user", Content: user})
	if params.Temperature > 0 {
		t := params.Temperature
		request.Temperature = &t
	}

	var resp chatResponse
	if err := c.post(ctx, "/chat/completions", request, &resp); err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", &core.ProviderError{Provider: ProviderOpenAI, StatusCode: http.StatusOK, Body: "empty completion"}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size,omitempty"`
}

type imageResponse struct {
	Created int64 `json:"created"`
	Data    []struct {
		B64JSON       string `json:"b64_json"`
		URL           string `json:"url,omitempty"`
		RevisedPrompt string `json:"revised_prompt,omitempty"`
	} `json:"data"`
}

// GenerateImage implements ImageGenerator
func (c *OpenAIClient) GenerateImage(ctx context.Context, prompt, size string) (Image, error) {
	request := imageRequest{
		Model:  c.imageModel,
		Prompt: prompt,
		N:      1,
		Size:   size,
	}

	var resp imageResponse
	if err := c.post(ctx, "/images/generations", request, &resp); err != nil {
		return Image{}, err
	}
	if len(resp.Data) == 0 {
		return Image{}, &core.ProviderError{Provider: ProviderOpenAI, StatusCode: http.StatusOK, Body: "no image returned"}
	}

	result := resp.Data[0]
	if result.URL != "" {
		return Image{URL: result.URL, RevisedPrompt: result.RevisedPrompt}, nil
	}
	if result.B64JSON == "" {
		return Image{}, &core.ProviderError{Provider: ProviderOpenAI, StatusCode: http.StatusOK, Body: "image has neither url nor data"}
	}
	if c.sink == nil {
		return Image{}, fmt.Errorf("openai returned inline image data but no image sink is configured")
	}

	raw, err := decodeBase64Image(result.B64JSON)
	if err != nil {
		return Image{}, &core.ProviderError{Provider: ProviderOpenAI, StatusCode: http.StatusOK, Err: err}
	}
	url, err := c.sink.Save(ctx, raw, "png")
	if err != nil {
		return Image{}, fmt.Errorf("failed to store generated image: %w", err)
	}
	return Image{URL: url, RevisedPrompt: result.RevisedPrompt}, nil
}

func (c *OpenAIClient) post(ctx context.Context, path string, payload, out any) error {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &core.ProviderError{Provider: ProviderOpenAI, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &core.ProviderError{Provider: ProviderOpenAI, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &core.ProviderError{Provider: ProviderOpenAI, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &core.ProviderError{Provider: ProviderOpenAI, StatusCode: resp.StatusCode, Body: string(body), Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}
	return nil
}
