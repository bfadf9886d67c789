package handlers

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"mediacms/internal/config"
	"mediacms/internal/core"
	"mediacms/internal/generation"
	"mediacms/internal/logger"
	"mediacms/internal/observability"
)

// NewGenerateCmd creates the generate command for one manual run
func NewGenerateCmd() *cobra.Command {
	var (
		req   core.GenerationRequest
		draft bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one article",
		Long: `Generate one article for a tenant and save it.

The article is published immediately unless --draft is given.

Examples:
  mediacms generate --tenant t1 --category cat-tea --writer w-aoi --image-pattern ip-photo

  # With an optional composition pattern and writing style, saved as a draft
  mediacms generate --tenant t1 --category cat-tea --writer w-aoi --image-pattern ip-photo \
    --pattern cp-howto --style ws-friendly --draft`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if draft {
				req.Publish = core.PublishDraft
			}
			return runGenerate(cmd.Context(), req)
		},
	}

	cmd.Flags().StringVar(&req.TenantID, "tenant", "", "Tenant ID (required)")
	cmd.Flags().StringVar(&req.CategoryID, "category", "", "Category ID (required)")
	cmd.Flags().StringVar(&req.WriterID, "writer", "", "Writer ID (required)")
	cmd.Flags().StringVar(&req.ImagePromptPatternID, "image-pattern", "", "Image prompt pattern ID (required)")
	cmd.Flags().StringVar(&req.PatternID, "pattern", "", "Composition pattern ID")
	cmd.Flags().StringVar(&req.WritingStyleID, "style", "", "Writing style ID")
	cmd.Flags().StringVar(&req.TargetAudience, "audience", "", "Target audience override")
	cmd.Flags().BoolVar(&draft, "draft", false, "Save as a draft instead of publishing")

	return cmd
}

func runGenerate(ctx context.Context, req core.GenerationRequest) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.Get()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	tracker, err := observability.NewPostHogClient(cfg.PostHog)
	if err != nil {
		return err
	}
	defer tracker.Shutdown(context.Background())

	pipeline, closePipeline, err := generation.NewBuilder(cfg).
		WithStore(store).
		WithTracker(tracker).
		Build(ctx)
	if err != nil {
		return fmt.Errorf("failed to build generation pipeline: %w", err)
	}
	defer closePipeline()

	log.Info("Generating article", "tenant_id", req.TenantID, "category_id", req.CategoryID, "mode", req.Mode())
	result, err := pipeline.Generate(ctx, req)
	if err != nil {
		return fmt.Errorf("generation failed (%s): %w", core.ErrorType(err), err)
	}

	fmt.Println(renderArticle(result))
	return nil
}
