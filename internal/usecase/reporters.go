package usecase

import (
	"context"
	"errors"
	"log/slog"

	"MorningPulse/internal/domain"
	"MorningPulse/internal/ports"
)

// LogReporter writes each health report to the structured log.
type LogReporter struct {
	logger *slog.Logger
}

var _ ports.HealthReporter = (*LogReporter)(nil)

// NewLogReporter wraps a logger.
func NewLogReporter(logger *slog.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

// Report implements ports.HealthReporter.
func (r *LogReporter) Report(ctx context.Context, report domain.HealthReport) error {
	if r.logger == nil {
		return nil
	}

	unhealthy := 0
	for _, src := range report.Sources {
		if !src.Healthy {
			unhealthy++
		}
	}

	level := slog.LevelInfo
	if report.Outcome == domain.OutcomeFailed {
		level = slog.LevelError
	} else if report.Outcome != domain.OutcomePublished {
		level = slog.LevelWarn
	}

	r.logger.Log(ctx, level, "health report",
		"run_id", report.RunID,
		"trigger", report.Trigger,
		"outcome", report.Outcome,
		"duration", report.Duration,
		"sources_queried", report.Stats.SourcesQueried,
		"sources_responded", report.Stats.SourcesResponded,
		"items_considered", report.Stats.ItemsConsidered,
		"rejected_malformed", report.Stats.RejectedMalformed,
		"rejected_threshold", report.Stats.RejectedThreshold,
		"rejected_duplicate", report.Stats.RejectedDuplicate,
		"selected", report.Stats.Selected,
		"unhealthy_sources", unhealthy,
		"error", report.Error,
	)
	return nil
}

// MultiReporter fans a report out to every reporter; one failure does not
// stop the others.
type MultiReporter []ports.HealthReporter

var _ ports.HealthReporter = MultiReporter(nil)

// Report implements ports.HealthReporter.
func (m MultiReporter) Report(ctx context.Context, report domain.HealthReport) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Report(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
