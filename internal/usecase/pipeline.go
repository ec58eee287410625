package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"MorningPulse/internal/dedup"
	"MorningPulse/internal/domain"
	"MorningPulse/internal/enrich"
	"MorningPulse/internal/health"
	"MorningPulse/internal/ports"
	"MorningPulse/internal/scoring"
	"MorningPulse/internal/selection"
)

// ErrRunInProgress is returned when a trigger arrives while a run is active.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// Trigger names recorded in health reports.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source    ports.ItemSource
	Enricher  *enrich.Enricher
	Engine    *scoring.Engine
	Cache     *dedup.Cache
	Selector  *selection.Selector
	Enhancer  ports.ArticleEnhancer
	Publisher ports.Publisher
	Reporter  ports.HealthReporter
	Health    *health.Tracker
	Clock     func() time.Time
	Logger    *slog.Logger
	// DryRun publishes without recording fingerprints.
	DryRun bool
}

// Pipeline implements the daily curation workflow.
type Pipeline struct {
	source    ports.ItemSource
	enricher  *enrich.Enricher
	engine    *scoring.Engine
	cache     *dedup.Cache
	selector  *selection.Selector
	enhancer  ports.ArticleEnhancer
	publisher ports.Publisher
	reporter  ports.HealthReporter
	health    *health.Tracker
	clock     func() time.Time
	logger    *slog.Logger
	dryRun    bool

	running atomic.Bool
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		source:    deps.Source,
		enricher:  deps.Enricher,
		engine:    deps.Engine,
		cache:     deps.Cache,
		selector:  deps.Selector,
		enhancer:  deps.Enhancer,
		publisher: deps.Publisher,
		reporter:  deps.Reporter,
		health:    deps.Health,
		clock:     deps.Clock,
		logger:    deps.Logger,
		dryRun:    deps.DryRun,
	}
	if p.clock == nil {
		p.clock = time.Now
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	if p.enricher == nil {
		p.enricher = enrich.New(enrich.Options{})
	}
	return p
}

// Run executes one curation pass and always produces a health report. A
// skipped run is not an error.
func (p *Pipeline) Run(ctx context.Context, trigger string) (domain.HealthReport, error) {
	if !p.running.CompareAndSwap(false, true) {
		return domain.HealthReport{}, ErrRunInProgress
	}
	defer p.running.Store(false)

	startedAt := p.clock()
	report := domain.HealthReport{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		StartedAt: startedAt,
	}
	log := p.logger.With("run_id", report.RunID, "trigger", trigger)
	log.Info("run started")

	set, err := p.execute(ctx, &report, log)

	report.Duration = p.clock().Sub(startedAt)
	report.Sources = p.sourceStatuses()
	switch {
	case errors.Is(err, selection.ErrNothingToPublish):
		report.Outcome = domain.OutcomeSkipped
		err = nil
	case err != nil:
		report.Outcome = domain.OutcomeFailed
		report.Error = err.Error()
	case set.Degraded:
		report.Outcome = domain.OutcomeDegraded
	default:
		report.Outcome = domain.OutcomePublished
	}

	log.Info("run finished", "outcome", report.Outcome, "duration", report.Duration,
		"selected", report.Stats.Selected, "sources_responded", report.Stats.SourcesResponded,
		"sources_queried", report.Stats.SourcesQueried)
	p.deliverReport(ctx, report, log)
	return report, err
}

func (p *Pipeline) execute(ctx context.Context, report *domain.HealthReport, log *slog.Logger) (domain.PublishSet, error) {
	if p.source == nil || p.engine == nil || p.selector == nil || p.publisher == nil {
		return domain.PublishSet{}, fmt.Errorf("pipeline is not fully configured")
	}
	now := report.StartedAt

	if p.cache != nil {
		if err := p.cache.PurgeExpired(ctx, now); err != nil {
			log.Warn("purge expired fingerprints", "error", err)
		}
	}

	batch, err := p.source.Collect(ctx, now)
	report.Stats.SourcesQueried = batch.SourcesQueried
	report.Stats.SourcesResponded = batch.SourcesResponded
	if err != nil {
		return domain.PublishSet{}, fmt.Errorf("collect: %w", err)
	}
	log.Debug("collected", "raw_items", len(batch.Items))

	candidates := p.enricher.Enrich(batch.Items)
	scored, malformed := p.engine.ScoreAll(candidates, now)

	var seen selection.Deduper
	if p.cache != nil {
		seen = p.cache
	}
	set, err := p.selector.Select(scored, seen, now)

	stats := set.Stats
	stats.SourcesQueried = batch.SourcesQueried
	stats.SourcesResponded = batch.SourcesResponded
	stats.ItemsConsidered = len(candidates)
	stats.RejectedMalformed = malformed
	report.Stats = stats
	set.Stats = stats
	set.RunID = report.RunID

	if err != nil {
		return set, err
	}

	if p.enhancer != nil {
		set.Items = p.enhancer.Enhance(ctx, set.Items)
	}

	if err := p.publisher.Publish(ctx, set); err != nil {
		return set, fmt.Errorf("publish: %w", err)
	}

	if p.dryRun {
		log.Info("dry run, fingerprints not recorded", "selected", len(set.Items))
		return set, nil
	}
	if p.cache != nil {
		if err := p.selector.Commit(ctx, set, p.cache, now); err != nil {
			log.Error("record published fingerprints", "error", err)
			report.Error = err.Error()
		}
	}
	return set, nil
}

func (p *Pipeline) sourceStatuses() []domain.SourceStatus {
	if p.health == nil {
		return nil
	}
	records := p.health.Snapshot()
	out := make([]domain.SourceStatus, 0, len(records))
	for _, rec := range records {
		out = append(out, domain.SourceStatus{
			Source:            rec.Source,
			Healthy:           rec.Status == health.StatusHealthy,
			MarkedUnhealthyAt: rec.MarkedUnhealthyAt,
		})
	}
	return out
}

func (p *Pipeline) deliverReport(ctx context.Context, report domain.HealthReport, log *slog.Logger) {
	if p.reporter == nil {
		return
	}
	if err := p.reporter.Report(ctx, report); err != nil {
		log.Warn("deliver health report", "error", err)
	}
}
