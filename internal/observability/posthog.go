// Package observability sends product analytics for generation runs
package observability

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/posthog/posthog-go"

	"mediacms/internal/config"
	"mediacms/internal/logger"
)

// Event names
const (
	EventArticleGenerated         = "article_generated"
	EventArticleGenerationFailed  = "article_generation_failed"
	EventScheduleTriggerCompleted = "schedule_trigger_completed"
)

// PostHogClient wraps the PostHog SDK for product analytics
type PostHogClient struct {
	client  posthog.Client
	enabled bool
	log     *slog.Logger
}

// EventProperties contains properties for an event
type EventProperties map[string]interface{}

// NewPostHogClient creates a new PostHog analytics client. A disabled
// configuration yields a client whose methods are no-ops.
func NewPostHogClient(cfg config.PostHog) (*PostHogClient, error) {
	log := logger.Get().With("component", "posthog")
	if !cfg.Enabled {
		return &PostHogClient{enabled: false, log: log}, nil
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("PostHog enabled but missing API key")
	}

	client, err := posthog.NewWithConfig(cfg.APIKey, posthog.Config{
		Endpoint: cfg.Host,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create PostHog client: %w", err)
	}

	return &PostHogClient{
		client:  client,
		enabled: true,
		log:     log,
	}, nil
}

// IsEnabled returns whether PostHog tracking is enabled
func (p *PostHogClient) IsEnabled() bool {
	return p != nil && p.enabled
}

// Capture sends an event to PostHog
func (p *PostHogClient) Capture(ctx context.Context, distinctID string, event string, properties EventProperties) error {
	if !p.IsEnabled() {
		return nil
	}

	props := posthog.NewProperties()
	for k, v := range properties {
		props.Set(k, v)
	}

	return p.client.Enqueue(posthog.Capture{
		DistinctId: distinctID,
		Event:      event,
		Properties: props,
	})
}

// TrackArticleGenerated records a committed article
func (p *PostHogClient) TrackArticleGenerated(ctx context.Context, tenantID string, props EventProperties) error {
	return p.Capture(ctx, tenantID, EventArticleGenerated, props)
}

// TrackGenerationFailed records a run that produced no article
func (p *PostHogClient) TrackGenerationFailed(ctx context.Context, tenantID string, props EventProperties) error {
	return p.Capture(ctx, tenantID, EventArticleGenerationFailed, props)
}

// TrackTriggerCompleted records one scheduler tick
func (p *PostHogClient) TrackTriggerCompleted(ctx context.Context, executed, succeeded, failed int) error {
	return p.Capture(ctx, "system", EventScheduleTriggerCompleted, EventProperties{
		"executed_count": executed,
		"succeeded":      succeeded,
		"failed":         failed,
	})
}

// Shutdown flushes pending events and closes the client
func (p *PostHogClient) Shutdown(ctx context.Context) error {
	if !p.IsEnabled() {
		return nil
	}
	return p.client.Close()
}
