package core

import "time"

// PublishMode is the caller's intent for the committed article.
type PublishMode string

const (
	PublishNow       PublishMode = "publish"   // Manual path: article is live immediately
	PublishDraft     PublishMode = "draft"     // Stored but neither published nor scheduled
	PublishScheduled PublishMode = "scheduled" // Stored with the scheduled flag for a later release
)

// GenerationRequest is the input to the article generation pipeline.
type GenerationRequest struct {
	TenantID             string      `json:"tenantId" bson:"tenantId" validate:"required"`                         // Owning media tenant
	CategoryID           string      `json:"categoryId" bson:"categoryId" validate:"required"`                     // Category the article is filed under
	WriterID             string      `json:"writerId" bson:"writerId" validate:"required"`                         // Writer persona credited with the article
	ImagePromptPatternID string      `json:"imagePromptPatternId" bson:"imagePromptPatternId" validate:"required"` // Image prompt template to use
	PatternID            string      `json:"patternId,omitempty" bson:"patternId,omitempty"`                       // Optional composition pattern
	WritingStyleID       string      `json:"writingStyleId,omitempty" bson:"writingStyleId,omitempty"`             // Optional writing style
	TargetAudience       string      `json:"targetAudience,omitempty" bson:"targetAudience,omitempty"`             // Optional audience override
	Publish              PublishMode `json:"publish,omitempty" bson:"publish,omitempty" validate:"omitempty,oneof=publish draft scheduled"`
}

// Mode returns the publish mode, defaulting to PublishNow.
func (r GenerationRequest) Mode() PublishMode {
	if r.Publish == "" {
		return PublishNow
	}
	return r.Publish
}

// Category is a tenant-owned article category.
type Category struct {
	ID          string `json:"id" bson:"_id"`
	TenantID    string `json:"tenantId" bson:"tenantId"`
	Name        string `json:"name" bson:"name"`
	Slug        string `json:"slug" bson:"slug"`
	Description string `json:"description" bson:"description"`
}

// Writer is an author persona attributed to generated articles.
type Writer struct {
	ID          string `json:"id" bson:"_id"`
	TenantID    string `json:"tenantId" bson:"tenantId"`
	DisplayName string `json:"displayName" bson:"displayName"`
	Bio         string `json:"bio" bson:"bio"`
	AvatarURL   string `json:"avatarUrl" bson:"avatarUrl"`
	Persona     string `json:"persona" bson:"persona"` // Voice notes fed to content prompts
}

// CompositionPattern is a reusable instruction template describing an article's shape.
type CompositionPattern struct {
	ID          string `json:"id" bson:"_id"`
	TenantID    string `json:"tenantId" bson:"tenantId"`
	Name        string `json:"name" bson:"name"`
	Instruction string `json:"instruction" bson:"instruction"`
}

// ImagePromptPattern describes how supporting images are prompted and sized.
type ImagePromptPattern struct {
	ID       string `json:"id" bson:"_id"`
	TenantID string `json:"tenantId" bson:"tenantId"`
	Name     string `json:"name" bson:"name"`
	Template string `json:"template" bson:"template"` // May contain {{title}}, {{section}}, {{category}}
	Size     string `json:"size" bson:"size"`         // Provider size string such as 1536x1024
	Count    int    `json:"count" bson:"count"`       // Images per article, defaults to 1
}

// WritingStyle is an optional tone/voice instruction.
type WritingStyle struct {
	ID          string `json:"id" bson:"_id"`
	TenantID    string `json:"tenantId" bson:"tenantId"`
	Name        string `json:"name" bson:"name"`
	Instruction string `json:"instruction" bson:"instruction"`
}

// ThemeCandidate is a proposed title checked against existing articles.
type ThemeCandidate struct {
	Theme              string  `json:"theme"`
	IsDuplicate        bool    `json:"isDuplicate"`
	Similarity         float64 `json:"similarity"`
	MostSimilarArticle string  `json:"mostSimilarArticle,omitempty"`
}

// ArticleImage is a generated supporting image.
type ArticleImage struct {
	URL          string `json:"url" bson:"url"`
	AltText      string `json:"altText" bson:"altText"`
	Prompt       string `json:"prompt" bson:"prompt"`
	SectionIndex int    `json:"sectionIndex" bson:"sectionIndex"` // Outline entry the image illustrates
}

// GenerationInfo records how an article was produced.
type GenerationInfo struct {
	RunID            string   `json:"runId" bson:"runId"`
	Models           []string `json:"models" bson:"models"`
	ProviderCalls    int      `json:"providerCalls" bson:"providerCalls"`
	EstimatedTokens  int      `json:"estimatedTokens" bson:"estimatedTokens"`
	EstimatedCostUSD float64  `json:"estimatedCostUsd" bson:"estimatedCostUsd"`
	ScheduleID       string   `json:"scheduleId,omitempty" bson:"scheduleId,omitempty"`
}

// GeneratedArticle is the persisted output of a successful generation run.
type GeneratedArticle struct {
	ID              string         `json:"id" bson:"_id"`
	TenantID        string         `json:"tenantId" bson:"tenantId"`
	CategoryID      string         `json:"categoryId" bson:"categoryId"`
	WriterID        string         `json:"writerId" bson:"writerId"`
	Title           string         `json:"title" bson:"title"`
	Slug            string         `json:"slug" bson:"slug"`
	Sections        Blocks         `json:"sections" bson:"sections"`
	BodyHTML        string         `json:"bodyHtml" bson:"bodyHtml"`
	MetaTitle       string         `json:"metaTitle" bson:"metaTitle"`
	MetaDescription string         `json:"metaDescription" bson:"metaDescription"`
	Images          []ArticleImage `json:"images" bson:"images"`
	TargetAudience  string         `json:"targetAudience" bson:"targetAudience"`
	IsPublished     bool           `json:"isPublished" bson:"isPublished"`
	IsScheduled     bool           `json:"isScheduled" bson:"isScheduled"`
	ViewCount       int64          `json:"viewCount" bson:"viewCount"`
	Generation      GenerationInfo `json:"generation" bson:"generation"`
	CreatedAt       time.Time      `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt" bson:"updatedAt"`
}

// ScheduledGeneration is a recurring time-of-week generation configuration.
type ScheduledGeneration struct {
	ID             string            `json:"id" bson:"_id"`
	TenantID       string            `json:"tenantId" bson:"tenantId"`
	Name           string            `json:"name" bson:"name"`
	DaysOfWeek     []int             `json:"daysOfWeek" bson:"daysOfWeek"` // 0 = Sunday, as time.Weekday
	TimeOfDay      string            `json:"timeOfDay" bson:"timeOfDay"`   // "HH:00" in the scheduler timezone
	IsActive       bool              `json:"isActive" bson:"isActive"`
	Request        GenerationRequest `json:"request" bson:"request"`
	LastExecutedAt *time.Time        `json:"lastExecutedAt,omitempty" bson:"lastExecutedAt,omitempty"`
}

// ScheduleResult is the outcome of one schedule within a trigger run.
type ScheduleResult struct {
	ScheduleID string `json:"scheduleId"`
	TenantID   string `json:"tenantId"`
	Success    bool   `json:"success"`
	ArticleID  string `json:"articleId,omitempty"`
	Title      string `json:"title,omitempty"`
	Error      string `json:"error,omitempty"`
}

// TriggerSummary aggregates a trigger run for the invoking caller.
type TriggerSummary struct {
	ExecutedCount int              `json:"executedCount"`
	Succeeded     int              `json:"succeeded"`
	Failed        int              `json:"failed"`
	Results       []ScheduleResult `json:"results"`
}
