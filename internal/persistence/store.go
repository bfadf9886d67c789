// Package persistence stores tenant configuration, generated articles and generation schedules
package persistence

import (
	"context"
	"time"

	"mediacms/internal/core"
)

// Collection names shared by every document-store implementation
const (
	CollectionCategories          = "categories"
	CollectionWriters             = "writers"
	CollectionCompositionPatterns = "composition_patterns"
	CollectionImagePromptPatterns = "image_prompt_patterns"
	CollectionWritingStyles       = "writing_styles"
	CollectionArticles            = "articles"
	CollectionSchedules           = "scheduled_generations"
)

// Store is everything the generation pipeline and the scheduler need from storage.
// Lookups of missing documents return *core.NotFoundError; driver failures
// return *core.PersistenceError.
type Store interface {
	// GetTenantCategory retrieves a category owned by tenantID
	GetTenantCategory(ctx context.Context, tenantID, categoryID string) (*core.Category, error)

	// GetWriter retrieves a writer persona owned by tenantID
	GetWriter(ctx context.Context, tenantID, writerID string) (*core.Writer, error)

	// GetCompositionPattern retrieves a composition pattern owned by tenantID
	GetCompositionPattern(ctx context.Context, tenantID, patternID string) (*core.CompositionPattern, error)

	// GetImagePromptPattern retrieves an image prompt pattern owned by tenantID
	GetImagePromptPattern(ctx context.Context, tenantID, patternID string) (*core.ImagePromptPattern, error)

	// GetWritingStyle retrieves a writing style owned by tenantID
	GetWritingStyle(ctx context.Context, tenantID, styleID string) (*core.WritingStyle, error)

	// ListPublishedTitles returns the titles of every published article of a tenant
	ListPublishedTitles(ctx context.Context, tenantID string) ([]string, error)

	// CreateArticle inserts a generated article, assigning its ID and timestamps
	CreateArticle(ctx context.Context, article *core.GeneratedArticle) (string, error)

	// GetArticle retrieves an article by ID
	GetArticle(ctx context.Context, id string) (*core.GeneratedArticle, error)

	// ListActiveSchedules returns every active schedule; the trigger decides which are due
	ListActiveSchedules(ctx context.Context) ([]core.ScheduledGeneration, error)

	// MarkScheduleExecuted stamps lastExecutedAt on a schedule
	MarkScheduleExecuted(ctx context.Context, scheduleID string, at time.Time) error

	// Ping checks connectivity
	Ping(ctx context.Context) error

	// Close releases the underlying connection
	Close(ctx context.Context) error
}
