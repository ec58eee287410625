package ports

import (
	"context"
	"time"

	"MorningPulse/internal/domain"
)

// ItemSource gathers raw candidates from upstream sites for one run.
type ItemSource interface {
	Collect(ctx context.Context, now time.Time) (domain.Batch, error)
}

// FingerprintStore persists published fingerprints across restarts.
type FingerprintStore interface {
	Load(ctx context.Context, since time.Time) ([]domain.Fingerprint, error)
	Append(ctx context.Context, fp domain.Fingerprint) error
	DeleteBefore(ctx context.Context, day time.Time) error
}

// Publisher hands the final publish set to the formatting/delivery side.
type Publisher interface {
	Publish(ctx context.Context, set domain.PublishSet) error
}

// HealthReporter receives the per-run health summary.
type HealthReporter interface {
	Report(ctx context.Context, report domain.HealthReport) error
}

// ArticleEnhancer adds page-derived details to selected items. It never
// fails the run: items it cannot enhance are returned unchanged.
type ArticleEnhancer interface {
	Enhance(ctx context.Context, items []domain.ScoredItem) []domain.ScoredItem
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
