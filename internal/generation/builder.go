package generation

import (
	"context"
	"fmt"

	"mediacms/internal/config"
	"mediacms/internal/llm"
	"mediacms/internal/logger"
)

// Builder assembles a Pipeline from application configuration
type Builder struct {
	cfg     *config.Config
	gateway Gateway
	store   Store
	tracker Tracker
	closers []func() error
}

// NewBuilder creates a builder for cfg
func NewBuilder(cfg *config.Config) *Builder {
	return &Builder{cfg: cfg}
}

// WithGateway uses gateway instead of building providers from configuration
func (b *Builder) WithGateway(gateway Gateway) *Builder {
	b.gateway = gateway
	return b
}

// WithStore sets the store
func (b *Builder) WithStore(store Store) *Builder {
	b.store = store
	return b
}

// WithTracker sets the analytics tracker
func (b *Builder) WithTracker(tracker Tracker) *Builder {
	b.tracker = tracker
	return b
}

// Build validates dependencies and constructs the pipeline. The returned
// close function releases provider clients.
func (b *Builder) Build(ctx context.Context) (*Pipeline, func() error, error) {
	if b.cfg == nil {
		return nil, nil, fmt.Errorf("configuration is required")
	}
	if b.store == nil {
		return nil, nil, fmt.Errorf("store is required")
	}

	if b.gateway == nil {
		router, err := b.buildRouter(ctx)
		if err != nil {
			b.close()
			return nil, nil, err
		}
		logger.Get().Info("Provider routes", "plan", router.Plan(), "providers", router.Providers())
		b.gateway = router
	}

	return NewPipeline(b.gateway, b.store, b.tracker, ConfigFrom(b.cfg.Generation)), b.close, nil
}

func (b *Builder) close() error {
	var first error
	for _, c := range b.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	b.closers = nil
	return first
}

// buildRouter creates the providers named by the step routes, each behind
// its own rate limiter.
func (b *Builder) buildRouter(ctx context.Context) (*llm.Router, error) {
	if err := b.cfg.ValidateProviders(); err != nil {
		return nil, err
	}

	ai := b.cfg.AI
	used := map[string]bool{}
	for _, name := range ai.Routes {
		used[name] = true
	}

	var providers []llm.Provider
	if used[llm.ProviderOpenAI] {
		client, err := llm.NewOpenAIClient(llm.OpenAIOptions{
			APIKey:     ai.OpenAI.APIKey,
			BaseURL:    ai.OpenAI.BaseURL,
			Model:      ai.OpenAI.Model,
			ImageModel: ai.OpenAI.ImageModel,
			Timeout:    ai.OpenAI.Timeout,
			Sink:       llm.NewFileImageSink(b.cfg.Images.Directory, b.cfg.Images.PublicBaseURL),
		})
		if err != nil {
			return nil, err
		}
		limited := llm.NewRateLimited(ai.RateLimit.RequestsPerMinute, ai.RateLimit.Burst, client, client)
		providers = append(providers, llm.Provider{
			Name:       llm.ProviderOpenAI,
			Text:       limited,
			Image:      limited,
			TextModel:  client.Model(),
			ImageModel: client.ImageModel(),
		})
	}

	if used[llm.ProviderGemini] {
		client, err := llm.NewGeminiClient(ctx, llm.GeminiOptions{
			APIKey:      ai.Gemini.APIKey,
			Model:       ai.Gemini.Model,
			Temperature: ai.Gemini.Temperature,
			MaxTokens:   ai.Gemini.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, client.Close)
		providers = append(providers, llm.Provider{
			Name:      llm.ProviderGemini,
			Text:      llm.NewRateLimited(ai.RateLimit.RequestsPerMinute, ai.RateLimit.Burst, client, nil),
			TextModel: client.Model(),
		})
	}

	return llm.NewRouter(ai.Routes, providers...)
}

// ConfigFrom maps the generation config section onto pipeline defaults.
func ConfigFrom(g config.Generation) *Config {
	c := DefaultConfig()
	if g.Timeout > 0 {
		c.Timeout = g.Timeout
	}
	if g.StepTimeout > 0 {
		c.StepTimeout = g.StepTimeout
	}
	if g.ThemeRetries >= 0 {
		c.ThemeRetries = g.ThemeRetries
	}
	if g.ThemeCandidates > 0 {
		c.ThemeCandidates = g.ThemeCandidates
	}
	return c
}
