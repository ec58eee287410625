// Package selection picks the diverse, bounded publish set of a run.
package selection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"MorningPulse/internal/config"
	"MorningPulse/internal/domain"
)

// ErrNothingToPublish means the run must be skipped; it is not retried.
var ErrNothingToPublish = errors.New("nothing to publish")

// Deduper answers whether a text was already published recently.
type Deduper interface {
	IsDuplicate(text string) bool
}

// Recorder stores fingerprints of published items.
type Recorder interface {
	RecordPublished(ctx context.Context, text string, date time.Time) error
}

// Selector applies threshold, dedup and diversity rules.
type Selector struct {
	minItems       int
	maxItems       int
	publishFloor   int
	maxPerCategory int
	logger         *slog.Logger
}

// NewSelector builds a selector; unset limits use 3 / unbounded / 1, and
// categories are uncapped unless MaxPerCategory is set.
func NewSelector(cfg config.SelectionConfig, logger *slog.Logger) *Selector {
	s := &Selector{
		minItems:       cfg.MinItems,
		maxItems:       cfg.MaxItems,
		publishFloor:   cfg.PublishFloor,
		maxPerCategory: cfg.MaxPerCategory,
		logger:         logger,
	}
	if s.minItems <= 0 {
		s.minItems = 3
	}
	if s.publishFloor <= 0 {
		s.publishFloor = 1
	}
	return s
}

// Select builds the publish set. When fewer than the publish floor remain it
// returns ErrNothingToPublish together with the counters gathered so far.
func (s *Selector) Select(items []domain.ScoredItem, seen Deduper, now time.Time) (domain.PublishSet, error) {
	stats := domain.RunStats{ItemsConsidered: len(items)}

	groups := map[domain.Category][]ranked{}
	for i, item := range items {
		if !item.PassedThreshold {
			stats.RejectedThreshold++
			continue
		}
		if seen != nil && seen.IsDuplicate(item.Item.Text) {
			stats.RejectedDuplicate++
			continue
		}
		cat := item.Item.Category
		groups[cat] = append(groups[cat], ranked{item: item, order: i})
	}

	for cat := range groups {
		sort.SliceStable(groups[cat], func(i, j int) bool {
			return groups[cat][i].before(groups[cat][j])
		})
	}

	selected := roundRobin(groups, s.maxItems, s.maxPerCategory)
	stats.Selected = len(selected)

	set := domain.PublishSet{
		Items:    selected,
		Degraded: len(selected) < s.minItems,
		Stats:    stats,
	}

	if len(selected) < s.publishFloor {
		s.info("no publishable items", "considered", stats.ItemsConsidered,
			"rejected_threshold", stats.RejectedThreshold, "rejected_duplicate", stats.RejectedDuplicate)
		return domain.PublishSet{Stats: stats}, ErrNothingToPublish
	}

	s.info("publish set selected", "selected", len(selected), "degraded", set.Degraded,
		"categories", len(groups), "at", now.Format(time.RFC3339))
	return set, nil
}

// Commit records every item of a published set so later runs skip it.
func (s *Selector) Commit(ctx context.Context, set domain.PublishSet, recorder Recorder, publishedAt time.Time) error {
	for _, item := range set.Items {
		if err := recorder.RecordPublished(ctx, item.Item.Text, publishedAt); err != nil {
			return fmt.Errorf("record %s: %w", item.Item.ID, err)
		}
	}
	return nil
}

type ranked struct {
	item  domain.ScoredItem
	order int
}

// before orders by score, then newer publication, then input order.
func (r ranked) before(o ranked) bool {
	if r.item.Score != o.item.Score {
		return r.item.Score > o.item.Score
	}
	if !r.item.Item.PublishedAt.Equal(o.item.Item.PublishedAt) {
		return r.item.Item.PublishedAt.After(o.item.Item.PublishedAt)
	}
	return r.order < o.order
}

// roundRobin takes at most one item per category per pass, each pass in
// rank order, until the groups are exhausted, perCategory passes ran or
// limit is reached.
func roundRobin(groups map[domain.Category][]ranked, limit, perCategory int) []domain.ScoredItem {
	var out []domain.ScoredItem
	for pass := 0; perCategory <= 0 || pass < perCategory; pass++ {
		var round []ranked
		for _, group := range groups {
			if pass < len(group) {
				round = append(round, group[pass])
			}
		}
		if len(round) == 0 {
			return out
		}
		sort.SliceStable(round, func(i, j int) bool { return round[i].before(round[j]) })
		for _, r := range round {
			if limit > 0 && len(out) >= limit {
				return out
			}
			out = append(out, r.item)
		}
	}
	return out
}

func (s *Selector) info(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}
