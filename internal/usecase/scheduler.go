package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"MorningPulse/internal/domain"
	"MorningPulse/internal/ports"
)

// Scheduler wires the daily driver and manual triggers with the pipeline.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, logger *slog.Logger) *Scheduler {
	return &Scheduler{driver: driver, pipeline: pipeline, logger: logger}
}

// Start registers the pipeline with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(fired time.Time) {
		s.logf("scheduled trigger", "fired_at", fired.Format(time.RFC3339))
		s.run(ctx, TriggerSchedule)
	}

	return s.driver.Start(ctx, job)
}

// TriggerNow runs the pipeline immediately, outside the schedule. It
// returns ErrRunInProgress when a run is already active.
func (s *Scheduler) TriggerNow(ctx context.Context) (domain.HealthReport, error) {
	if s.pipeline == nil {
		return domain.HealthReport{}, errors.New("pipeline is not configured")
	}
	return s.pipeline.Run(ctx, TriggerManual)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}

func (s *Scheduler) run(ctx context.Context, trigger string) {
	_, err := s.pipeline.Run(ctx, trigger)
	if err != nil && s.logger != nil {
		s.logger.Error("pipeline run failed", "trigger", trigger, "error", err)
	}
}

func (s *Scheduler) logf(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}
