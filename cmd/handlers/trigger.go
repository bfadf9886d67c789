package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mediacms/internal/config"
	"mediacms/internal/cost"
	"mediacms/internal/generation"
	"mediacms/internal/observability"
	"mediacms/internal/scheduler"
)

// NewTriggerCmd creates the trigger command, the system-cron alternative to
// the HTTP scheduled-generation endpoint
func NewTriggerCmd() *cobra.Command {
	var (
		at     string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Run every schedule due now",
		Long: `Run every active schedule whose weekday and hour match the current time in
the configured scheduler timezone.

Examples:
  # From system cron, at the top of every hour
  0 * * * * mediacms trigger

  # List what would run at a given moment with a cost estimate
  mediacms trigger --at 2025-04-07T09:00:00+09:00 --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at %q: expected RFC3339: %w", at, err)
				}
				now = parsed
			}
			return runTrigger(cmd.Context(), now, dryRun)
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "Evaluate schedules at this RFC3339 time instead of now")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List due schedules and the estimated cost without generating")

	return cmd
}

func runTrigger(ctx context.Context, now time.Time, dryRun bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	loc := cfg.Scheduler.Location()
	if dryRun {
		return listDue(ctx, cfg, scheduler.NewTrigger(nil, store, nil, loc, cfg.Scheduler.Concurrency), now)
	}

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

	summary, err := scheduler.NewTrigger(pipeline, store, tracker, loc, cfg.Scheduler.Concurrency).Run(ctx, now)
	if err != nil {
		return err
	}

	fmt.Print(renderSummary(summary))
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d scheduled generations failed", summary.Failed, summary.ExecutedCount)
	}
	return nil
}

func listDue(ctx context.Context, cfg *config.Config, trigger *scheduler.Trigger, now time.Time) error {
	loc := cfg.Scheduler.Location()
	weekday, hour := scheduler.Slot(now, loc)

	due, err := trigger.DueSchedules(ctx, now)
	if err != nil {
		return err
	}

	fmt.Printf("%s %s %s (%s)\n", titleStyle.Render("Due at"), weekday, hour, loc)
	if len(due) == 0 {
		fmt.Println(dimStyle.Render("  nothing due"))
		return nil
	}
	for _, s := range due {
		fmt.Printf("  %s tenant=%s category=%s writer=%s\n", s.ID, s.TenantID, s.Request.CategoryID, s.Request.WriterID)
	}

	est := cost.EstimateRun(cost.RunPlan{StepModels: stepModels(cfg)})
	fmt.Println()
	fmt.Println(boxStyle.Render(est.FormatEstimate()))
	fmt.Printf("%d run(s), estimated total $%.4f\n", len(due), est.TotalCost*float64(len(due)))
	return nil
}
