// Package scheduler runs the generation schedules that are due at a given hour.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"mediacms/internal/core"
	"mediacms/internal/generation"
	"mediacms/internal/logger"
)

// DefaultConcurrency bounds how many schedules generate at once
const DefaultConcurrency = 4

// Generator runs the pipeline for one schedule
type Generator interface {
	GenerateScheduled(ctx context.Context, schedule core.ScheduledGeneration) (*generation.Result, error)
}

// Store lists schedules and stamps their executions
type Store interface {
	ListActiveSchedules(ctx context.Context) ([]core.ScheduledGeneration, error)
	MarkScheduleExecuted(ctx context.Context, scheduleID string, at time.Time) error
}

// Tracker receives one event per trigger run
type Tracker interface {
	TrackTriggerCompleted(ctx context.Context, executed, succeeded, failed int) error
}

// Trigger matches schedules against the clock and fans out generation runs
type Trigger struct {
	generator   Generator
	store       Store
	tracker     Tracker
	location    *time.Location
	concurrency int
	log         *slog.Logger
}

// NewTrigger creates a trigger evaluating schedules in loc. tracker may be nil.
func NewTrigger(generator Generator, store Store, tracker Tracker, loc *time.Location, concurrency int) *Trigger {
	if loc == nil {
		loc = time.UTC
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Trigger{
		generator:   generator,
		store:       store,
		tracker:     tracker,
		location:    loc,
		concurrency: concurrency,
		log:         logger.Get().With("component", "scheduler"),
	}
}

// Slot returns the weekday and "HH:00" hour string of now in loc.
func Slot(now time.Time, loc *time.Location) (time.Weekday, string) {
	local := now.In(loc)
	return local.Weekday(), fmt.Sprintf("%02d:00", local.Hour())
}

// Due reports whether schedule fires at now, evaluated in loc. The hour
// string must equal TimeOfDay exactly.
func Due(schedule core.ScheduledGeneration, now time.Time, loc *time.Location) bool {
	if !schedule.IsActive {
		return false
	}
	weekday, hour := Slot(now, loc)
	return slices.Contains(schedule.DaysOfWeek, int(weekday)) &&
		strings.TrimSpace(schedule.TimeOfDay) == hour
}

// DueSchedules lists the active schedules that fire at now.
func (t *Trigger) DueSchedules(ctx context.Context, now time.Time) ([]core.ScheduledGeneration, error) {
	active, err := t.store.ListActiveSchedules(ctx)
	if err != nil {
		return nil, err
	}

	var due []core.ScheduledGeneration
	for _, s := range active {
		if Due(s, now, t.location) {
			due = append(due, s)
		}
	}
	return due, nil
}

// Run generates one article for every schedule due at now. Schedule failures
// are reported in the summary, never returned; only failing to list
// schedules is an error.
func (t *Trigger) Run(ctx context.Context, now time.Time) (core.TriggerSummary, error) {
	weekday, hour := Slot(now, t.location)
	log := t.log.With("weekday", weekday.String(), "hour", hour, "timezone", t.location.String())

	due, err := t.DueSchedules(ctx, now)
	if err != nil {
		log.Error("Failed to list schedules", "error", err)
		return core.TriggerSummary{}, err
	}
	log.Info("Trigger started", "due", len(due))

	// Runs are detached from the caller so a schedule queued behind its
	// siblings is bounded only by its own pipeline budget.
	runCtx := context.WithoutCancel(ctx)

	results := make([]core.ScheduleResult, len(due))
	var g errgroup.Group
	g.SetLimit(t.concurrency)
	for i, schedule := range due {
		g.Go(func() error {
			results[i] = t.runOne(runCtx, schedule, now)
			return nil
		})
	}
	_ = g.Wait()

	summary := core.TriggerSummary{ExecutedCount: len(due), Results: results}
	for _, r := range results {
		if r.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}

	log.Info("Trigger completed",
		"executed", summary.ExecutedCount,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed)

	if t.tracker != nil {
		if err := t.tracker.TrackTriggerCompleted(runCtx, summary.ExecutedCount, summary.Succeeded, summary.Failed); err != nil {
			log.Debug("Failed to track trigger", "error", err)
		}
	}
	return summary, nil
}

func (t *Trigger) runOne(ctx context.Context, schedule core.ScheduledGeneration, now time.Time) (result core.ScheduleResult) {
	result = core.ScheduleResult{ScheduleID: schedule.ID, TenantID: schedule.TenantID}
	log := t.log.With("schedule_id", schedule.ID, "tenant_id", schedule.TenantID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Schedule panicked", "panic", r)
			result.Success = false
			result.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	res, err := t.generator.GenerateScheduled(ctx, schedule)
	if err != nil {
		log.Warn("Scheduled generation failed", "error_type", core.ErrorType(err), "error", err)
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.ArticleID = res.Article.ID
	result.Title = res.Article.Title

	// The article exists at this point, so a failed stamp does not fail the schedule.
	if err := t.store.MarkScheduleExecuted(ctx, schedule.ID, now); err != nil {
		log.Error("Failed to stamp schedule", "error", err)
	}
	return result
}
