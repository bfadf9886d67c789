package generation

import (
	"context"

	"mediacms/internal/core"
	"mediacms/internal/llm"
	"mediacms/internal/observability"
)

// Gateway routes each pipeline step to a text or image model.
// *llm.Router satisfies it.
type Gateway interface {
	// GenerateText runs a text step and returns the raw completion
	GenerateText(ctx context.Context, step llm.Step, system, user string, params llm.Params) (string, error)

	// GenerateImage renders one image and returns a reference to it
	GenerateImage(ctx context.Context, prompt, size string) (llm.Image, error)

	// Model reports which model serves step, for cost accounting
	Model(step llm.Step) string
}

// Store is the subset of persistence the pipeline reads and writes.
type Store interface {
	GetTenantCategory(ctx context.Context, tenantID, categoryID string) (*core.Category, error)
	GetWriter(ctx context.Context, tenantID, writerID string) (*core.Writer, error)
	GetCompositionPattern(ctx context.Context, tenantID, patternID string) (*core.CompositionPattern, error)
	GetImagePromptPattern(ctx context.Context, tenantID, patternID string) (*core.ImagePromptPattern, error)
	GetWritingStyle(ctx context.Context, tenantID, styleID string) (*core.WritingStyle, error)
	ListPublishedTitles(ctx context.Context, tenantID string) ([]string, error)
	CreateArticle(ctx context.Context, article *core.GeneratedArticle) (string, error)
}

// Tracker receives run outcome events.
type Tracker interface {
	// TrackArticleGenerated records a committed article
	TrackArticleGenerated(ctx context.Context, tenantID string, props observability.EventProperties) error

	// TrackGenerationFailed records a run that produced no article
	TrackGenerationFailed(ctx context.Context, tenantID string, props observability.EventProperties) error
}
