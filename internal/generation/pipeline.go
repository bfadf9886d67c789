// Package generation assembles a complete article from tenant configuration
// through a fixed sequence of model calls and commits it in one write.
package generation

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"mediacms/internal/core"
	"mediacms/internal/cost"
	"mediacms/internal/llm"
	"mediacms/internal/logger"
	"mediacms/internal/observability"
	"mediacms/internal/themes"
)

const (
	seoTitleMax        = 70
	metaDescriptionMax = 160
	altTextMax         = 125
	maxOutlineSections = 8
	maxPriorContext    = 12000 // runes of earlier sections fed to each section prompt
	defaultImageSize   = "1536x1024"
)

// Config holds pipeline configuration
type Config struct {
	Timeout         time.Duration // Whole-run budget
	StepTimeout     time.Duration // Budget for a single gateway call
	ThemeRetries    int           // Re-proposals after every candidate was a duplicate
	ThemeCandidates int           // Titles requested per proposal
	Threshold       float64       // Duplicate similarity threshold

	ThemeParams   llm.Params
	OutlineParams llm.Params
	SectionParams llm.Params
	AltTextParams llm.Params
	MetaParams    llm.Params
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Timeout:         5 * time.Minute,
		StepTimeout:     90 * time.Second,
		ThemeRetries:    1,
		ThemeCandidates: 5,
		Threshold:       themes.DefaultThreshold,
		ThemeParams:     llm.Params{Temperature: 0.9, MaxTokens: 512},
		OutlineParams:   llm.Params{Temperature: 0.5, MaxTokens: 1024},
		SectionParams:   llm.Params{Temperature: 0.7, MaxTokens: 2048},
		AltTextParams:   llm.Params{Temperature: 0.3, MaxTokens: 128},
		MetaParams:      llm.Params{Temperature: 0.3, MaxTokens: 256},
	}
}

// Stats describes one completed run
type Stats struct {
	RunID            string        `json:"runId"`
	ProviderCalls    int           `json:"providerCalls"`
	EstimatedTokens  int           `json:"estimatedTokens"`
	EstimatedCostUSD float64       `json:"estimatedCostUsd"`
	Models           []string      `json:"models"`
	ThemeAttempts    int           `json:"themeAttempts"`
	RejectedThemes   []string      `json:"rejectedThemes,omitempty"`
	Sections         int           `json:"sections"`
	Images           int           `json:"images"`
	Duration         time.Duration `json:"-"`
	DurationMS       int64         `json:"durationMs"`
}

// Result is a committed article plus run statistics
type Result struct {
	Article *core.GeneratedArticle
	Stats   Stats
}

// Pipeline orchestrates article generation
type Pipeline struct {
	gateway Gateway
	store   Store
	tracker Tracker
	filter  themes.Filter
	config  *Config
	log     *slog.Logger
	now     func() time.Time
}

// NewPipeline creates a new pipeline. tracker may be nil.
func NewPipeline(gateway Gateway, store Store, tracker Tracker, config *Config) *Pipeline {
	if config == nil {
		config = DefaultConfig()
	}
	threshold := config.Threshold
	if threshold <= 0 {
		threshold = themes.DefaultThreshold
	}
	return &Pipeline{
		gateway: gateway,
		store:   store,
		tracker: tracker,
		filter:  themes.Filter{Threshold: threshold},
		config:  config,
		log:     logger.Get().With("component", "generation"),
		now:     time.Now,
	}
}

// Config returns the pipeline configuration
func (p *Pipeline) Config() *Config {
	return p.config
}

// run is the mutable state of a single Generate call
type run struct {
	id         string
	req        core.GenerationRequest
	scheduleID string
	step       string
	meter      *cost.Meter
	log        *slog.Logger

	brief    *brief
	title    string
	attempts int
	rejected []string
	outline  []outlineEntry
	sections []section
	images   []core.ArticleImage
	meta     metadata
}

type section struct {
	heading  string
	markdown string
	html     string
	text     string
}

// Generate runs the whole pipeline for a manual request.
func (p *Pipeline) Generate(ctx context.Context, req core.GenerationRequest) (*Result, error) {
	return p.generate(ctx, req, "")
}

// GenerateScheduled runs the pipeline for a schedule's stored request and
// records the schedule on the article. A stored request naming a tenant other
// than the schedule's is rejected.
func (p *Pipeline) GenerateScheduled(ctx context.Context, schedule core.ScheduledGeneration) (*Result, error) {
	req := schedule.Request
	switch req.TenantID {
	case "":
		req.TenantID = schedule.TenantID
	case schedule.TenantID:
	default:
		err := &core.ValidationError{Field: "tenantId", Reason: fmt.Sprintf("%q does not match schedule tenant %q", req.TenantID, schedule.TenantID)}
		p.log.Warn("Scheduled request rejected",
			"schedule_id", schedule.ID,
			"tenant_id", schedule.TenantID,
			"error", err)
		return nil, err
	}
	return p.generate(ctx, req, schedule.ID)
}

func (p *Pipeline) generate(ctx context.Context, req core.GenerationRequest, scheduleID string) (*Result, error) {
	started := p.now()
	r := &run{
		id:         uuid.NewString(),
		req:        req,
		scheduleID: scheduleID,
		step:       "validate",
		meter:      cost.NewMeter(),
	}
	r.log = p.log.With("run_id", r.id, "tenant_id", req.TenantID)
	if scheduleID != "" {
		r.log = r.log.With("schedule_id", scheduleID)
	}

	if err := validateRequest(req); err != nil {
		p.fail(ctx, r, err, started)
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	article, err := p.execute(runCtx, r)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, core.ErrTimeout) {
			err = &core.TimeoutError{Budget: p.config.Timeout, Step: r.step}
		}
		p.fail(ctx, r, err, started)
		return nil, err
	}

	usage := r.meter.Usage()
	result := &Result{
		Article: article,
		Stats: Stats{
			RunID:            r.id,
			ProviderCalls:    usage.Calls,
			EstimatedTokens:  usage.TotalTokens(),
			EstimatedCostUSD: usage.CostUSD,
			Models:           usage.Models,
			ThemeAttempts:    r.attempts,
			RejectedThemes:   r.rejected,
			Sections:         len(r.sections),
			Images:           len(r.images),
			Duration:         p.now().Sub(started),
		},
	}
	result.Stats.DurationMS = result.Stats.Duration.Milliseconds()

	r.log.Info("Article generated",
		"article_id", article.ID,
		"title", article.Title,
		"provider_calls", usage.Calls,
		"estimated_cost_usd", usage.CostUSD,
		"duration", result.Stats.Duration)

	if p.tracker != nil {
		props := observability.EventProperties{
			"article_id":         article.ID,
			"run_id":             r.id,
			"category_id":        req.CategoryID,
			"provider_calls":     usage.Calls,
			"estimated_tokens":   usage.TotalTokens(),
			"estimated_cost_usd": usage.CostUSD,
			"theme_attempts":     r.attempts,
			"sections":           len(r.sections),
			"images":             len(r.images),
			"duration_ms":        result.Stats.Duration.Milliseconds(),
			"publish_mode":       string(req.Mode()),
		}
		if scheduleID != "" {
			props["schedule_id"] = scheduleID
		}
		if err := p.tracker.TrackArticleGenerated(ctx, req.TenantID, props); err != nil {
			r.log.Debug("Failed to track article", "error", err)
		}
	}
	return result, nil
}

func (p *Pipeline) fail(ctx context.Context, r *run, err error, started time.Time) {
	r.log.Warn("Article generation failed",
		"step", r.step,
		"error_type", core.ErrorType(err),
		"error", err)

	if p.tracker == nil {
		return
	}
	props := observability.EventProperties{
		"run_id":         r.id,
		"step":           r.step,
		"error_type":     core.ErrorType(err),
		"provider_calls": r.meter.Usage().Calls,
		"duration_ms":    p.now().Sub(started).Milliseconds(),
	}
	if r.scheduleID != "" {
		props["schedule_id"] = r.scheduleID
	}
	if terr := p.tracker.TrackGenerationFailed(ctx, r.req.TenantID, props); terr != nil {
		r.log.Debug("Failed to track failure", "error", terr)
	}
}

func (p *Pipeline) execute(ctx context.Context, r *run) (*core.GeneratedArticle, error) {
	steps := []struct {
		name string
		fn   func(context.Context, *run) error
	}{
		{"load_context", p.loadContext},
		{"themes", p.chooseTheme},
		{"outline", p.buildOutline},
		{"sections", p.writeSections},
		{"images", p.createImages},
		{"metadata", p.writeMetadata},
	}
	for _, s := range steps {
		r.step = s.name
		r.log.Debug("Running step", "step", s.name)
		if err := s.fn(ctx, r); err != nil {
			return nil, err
		}
	}

	r.step = "commit"
	return p.commit(ctx, r)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// validateRequest reports the first invalid field of req.
func validateRequest(req core.GenerationRequest) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &core.ValidationError{Field: "request", Reason: err.Error()}
	}
	fe := fieldErrs[0]
	reason := "is invalid"
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "oneof":
		reason = fmt.Sprintf("must be one of: %s", fe.Param())
	}
	return &core.ValidationError{Field: fe.Field(), Reason: reason}
}

func (p *Pipeline) loadContext(ctx context.Context, r *run) error {
	req := r.req
	b := &brief{audience: req.TargetAudience}

	var err error
	if b.category, err = p.store.GetTenantCategory(ctx, req.TenantID, req.CategoryID); err != nil {
		return err
	}
	if b.writer, err = p.store.GetWriter(ctx, req.TenantID, req.WriterID); err != nil {
		return err
	}
	if b.images, err = p.store.GetImagePromptPattern(ctx, req.TenantID, req.ImagePromptPatternID); err != nil {
		return err
	}
	if req.PatternID != "" {
		if b.pattern, err = p.store.GetCompositionPattern(ctx, req.TenantID, req.PatternID); err != nil {
			return err
		}
	}
	if req.WritingStyleID != "" {
		if b.style, err = p.store.GetWritingStyle(ctx, req.TenantID, req.WritingStyleID); err != nil {
			return err
		}
	}
	if b.audience == "" {
		b.audience = fmt.Sprintf("general readers interested in %s", b.category.Name)
	}

	r.brief = b
	return nil
}

// text performs one gateway text call under the step budget and meters it.
func (p *Pipeline) text(ctx context.Context, r *run, step llm.Step, user string, params llm.Params) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.config.StepTimeout)
	defer cancel()

	system := r.brief.system()
	model := p.gateway.Model(step)
	out, err := p.gateway.GenerateText(callCtx, step, system, user, params)
	if err != nil {
		r.meter.RecordFailure(model)
		return "", p.callError(ctx, callCtx, step, err)
	}
	r.meter.RecordText(model, system+"\n"+user, out)
	return out, nil
}

func (p *Pipeline) image(ctx context.Context, r *run, prompt, size string) (llm.Image, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.config.StepTimeout)
	defer cancel()

	model := p.gateway.Model(llm.StepImage)
	img, err := p.gateway.GenerateImage(callCtx, prompt, size)
	if err != nil {
		r.meter.RecordFailure(model)
		return llm.Image{}, p.callError(ctx, callCtx, llm.StepImage, err)
	}
	if img.URL == "" {
		r.meter.RecordFailure(model)
		return llm.Image{}, &core.ProviderError{Provider: model, Body: "image response carried no URL"}
	}
	r.meter.RecordImage(model)
	return img, nil
}

// callError turns deadline expiry into TimeoutError, attributing it to the
// run budget when that expired and to the call budget otherwise. A call can
// also give up early when it knows it cannot finish in time (the rate limiter
// does), which is charged to whichever deadline is nearer.
func (p *Pipeline) callError(runCtx, callCtx context.Context, step llm.Step, err error) error {
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return &core.TimeoutError{Budget: p.config.Timeout, Step: string(step)}
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return &core.TimeoutError{Budget: p.config.StepTimeout, Step: string(step)}
	case errors.Is(err, context.DeadlineExceeded):
		return &core.TimeoutError{Budget: p.nearerBudget(runCtx, callCtx), Step: string(step)}
	}
	return err
}

func (p *Pipeline) nearerBudget(runCtx, callCtx context.Context) time.Duration {
	runDeadline, ok := runCtx.Deadline()
	callDeadline, _ := callCtx.Deadline()
	if ok && !runDeadline.After(callDeadline) {
		return p.config.Timeout
	}
	return p.config.StepTimeout
}

// unusable reports model output the pipeline could not parse.
func (p *Pipeline) unusable(step llm.Step, what string) error {
	return &core.ProviderError{Provider: p.gateway.Model(step), Body: what}
}

// chooseTheme proposes titles until one is not a duplicate of a published
// title. Rejected titles are fed back as an exclusion list.
func (p *Pipeline) chooseTheme(ctx context.Context, r *run) error {
	existing, err := p.store.ListPublishedTitles(ctx, r.req.TenantID)
	if err != nil {
		return err
	}

	providerRetried := false
	for {
		raw, err := p.text(ctx, r, llm.StepThemes, themesPrompt(r.brief, p.config.ThemeCandidates, r.rejected), p.config.ThemeParams)
		if err != nil {
			if !providerRetried && errors.Is(err, core.ErrProvider) {
				providerRetried = true
				r.log.Warn("Theme proposal failed, retrying once", "error", err)
				continue
			}
			return err
		}
		r.attempts++

		candidates := parseTitles(raw)
		if len(candidates) == 0 {
			return p.unusable(llm.StepThemes, "theme response contained no titles")
		}

		results := p.filter.Check(candidates, existing)
		if unique := themes.Unique(results); len(unique) > 0 {
			r.title = unique[0]
			r.log.Info("Theme selected", "title", r.title, "attempt", r.attempts)
			return nil
		}

		rejected := themes.Rejected(results)
		r.rejected = append(r.rejected, rejected...)
		r.log.Info("All proposed themes were duplicates", "attempt", r.attempts, "rejected", len(rejected))

		if r.attempts > p.config.ThemeRetries {
			return &core.DuplicateExhaustedError{Attempts: r.attempts, Rejected: r.rejected}
		}
	}
}

func (p *Pipeline) buildOutline(ctx context.Context, r *run) error {
	raw, err := p.text(ctx, r, llm.StepOutline, outlinePrompt(r.brief, r.title), p.config.OutlineParams)
	if err != nil {
		return err
	}

	outline := parseOutline(raw)
	if len(outline) == 0 {
		return p.unusable(llm.StepOutline, "outline response contained no sections")
	}
	if len(outline) > maxOutlineSections {
		outline = outline[:maxOutlineSections]
	}
	r.outline = outline
	return nil
}

// writeSections writes each section in order, feeding the text written so
// far into the next prompt.
func (p *Pipeline) writeSections(ctx context.Context, r *run) error {
	var soFar strings.Builder
	for i, entry := range r.outline {
		raw, err := p.text(ctx, r, llm.StepSection, sectionPrompt(r.title, r.outline, i, tail(soFar.String(), maxPriorContext)), p.config.SectionParams)
		if err != nil {
			return err
		}

		md := stripLeadingHeading(raw, entry.Heading)
		if md == "" {
			return p.unusable(llm.StepSection, fmt.Sprintf("section %q came back empty", entry.Heading))
		}
		rendered := renderMarkdown(md)
		s := section{heading: entry.Heading, markdown: md, html: rendered, text: plainText(rendered)}
		r.sections = append(r.sections, s)

		fmt.Fprintf(&soFar, "## %s\n%s\n\n", s.heading, s.text)
	}
	return nil
}

// createImages renders the pattern's images, spreading them across sections,
// and writes alt text for each.
func (p *Pipeline) createImages(ctx context.Context, r *run) error {
	pattern := r.brief.images
	count := pattern.Count
	if count <= 0 {
		count = 1
	}
	if count > len(r.sections) {
		count = len(r.sections)
	}
	size := pattern.Size
	if size == "" {
		size = defaultImageSize
	}

	for i := 0; i < count; i++ {
		index := i * len(r.sections) / count
		s := r.sections[index]

		prompt := imagePrompt(r.brief, r.title, s.heading)
		img, err := p.image(ctx, r, prompt, size)
		if err != nil {
			return err
		}

		raw, err := p.text(ctx, r, llm.StepAltText, altTextPrompt(s.heading, s.text, prompt), p.config.AltTextParams)
		if err != nil {
			return err
		}
		alt := cleanAltText(raw)
		if isGenericAltText(alt) {
			alt = fallbackAltText(s.heading, s.text)
		}

		r.images = append(r.images, core.ArticleImage{
			URL:          img.URL,
			AltText:      truncate(alt, altTextMax),
			Prompt:       prompt,
			SectionIndex: index,
		})
	}
	return nil
}

// fallbackAltText derives alt text from the section itself.
func fallbackAltText(heading, text string) string {
	sentence := firstSentence(text)
	if sentence == "" {
		return heading
	}
	return truncate(heading+": "+sentence, altTextMax)
}

func (p *Pipeline) writeMetadata(ctx context.Context, r *run) error {
	raw, err := p.text(ctx, r, llm.StepMetadata, metadataPrompt(r.title, r.plainContent()), p.config.MetaParams)
	if err != nil {
		return err
	}

	m := parseMetadata(raw)
	if m.SEOTitle == "" {
		m.SEOTitle = r.title
	}
	if m.MetaDescription == "" && len(r.sections) > 0 {
		m.MetaDescription = firstSentence(r.sections[0].text)
	}
	m.SEOTitle = truncate(m.SEOTitle, seoTitleMax)
	m.MetaDescription = truncate(m.MetaDescription, metaDescriptionMax)
	r.meta = m
	return nil
}

func (r *run) plainContent() string {
	var sb strings.Builder
	for _, s := range r.sections {
		fmt.Fprintf(&sb, "%s\n%s\n\n", s.heading, s.text)
	}
	return strings.TrimSpace(sb.String())
}

// blocks lays out headings and paragraphs in outline order with each image
// after the section it illustrates.
func (r *run) blocks() (core.Blocks, string) {
	byIndex := make(map[int][]core.ArticleImage, len(r.images))
	for _, img := range r.images {
		byIndex[img.SectionIndex] = append(byIndex[img.SectionIndex], img)
	}

	var blocks core.Blocks
	var body strings.Builder
	for i, s := range r.sections {
		blocks = append(blocks,
			core.HeadingBlock{Level: 2, Text: s.heading},
			core.ParagraphBlock{Markdown: s.markdown, HTML: s.html},
		)
		fmt.Fprintf(&body, "<h2>%s</h2>\n%s\n", html.EscapeString(s.heading), s.html)

		for _, img := range byIndex[i] {
			blocks = append(blocks, core.ImageBlock{URL: img.URL, AltText: img.AltText})
			fmt.Fprintf(&body, "<figure><img src=\"%s\" alt=\"%s\"></figure>\n",
				html.EscapeString(img.URL), html.EscapeString(img.AltText))
		}
	}
	return blocks, body.String()
}

func (p *Pipeline) commit(ctx context.Context, r *run) (*core.GeneratedArticle, error) {
	blocks, body := r.blocks()
	usage := r.meter.Usage()
	mode := r.req.Mode()

	article := &core.GeneratedArticle{
		TenantID:        r.req.TenantID,
		CategoryID:      r.req.CategoryID,
		WriterID:        r.req.WriterID,
		Title:           r.title,
		Slug:            slugify(r.title, r.id[:8]),
		Sections:        blocks,
		BodyHTML:        body,
		MetaTitle:       r.meta.SEOTitle,
		MetaDescription: r.meta.MetaDescription,
		Images:          r.images,
		TargetAudience:  r.brief.audience,
		IsPublished:     mode == core.PublishNow,
		IsScheduled:     mode == core.PublishScheduled,
		Generation: core.GenerationInfo{
			RunID:            r.id,
			Models:           usage.Models,
			ProviderCalls:    usage.Calls,
			EstimatedTokens:  usage.TotalTokens(),
			EstimatedCostUSD: usage.CostUSD,
			ScheduleID:       r.scheduleID,
		},
	}

	id, err := p.store.CreateArticle(ctx, article)
	if err != nil {
		if !errors.Is(err, core.ErrPersistence) {
			err = &core.PersistenceError{Op: "create article", Err: err}
		}
		return nil, err
	}
	article.ID = id
	return article, nil
}
