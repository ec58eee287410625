package selection

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"MorningPulse/internal/config"
	"MorningPulse/internal/domain"
)

var now = time.Date(2026, time.October, 18, 9, 0, 0, 0, time.UTC)

type stubDeduper map[string]bool

func (s stubDeduper) IsDuplicate(text string) bool { return s[text] }

type recorder struct {
	texts []string
}

func (r *recorder) RecordPublished(_ context.Context, text string, _ time.Time) error {
	r.texts = append(r.texts, text)
	return nil
}

func news(id string, cat domain.Category, score float64, passed bool) domain.ScoredItem {
	return domain.ScoredItem{
		Item: domain.CandidateItem{
			ID:          id,
			Category:    cat,
			Text:        "text " + id,
			PublishedAt: now.Add(-time.Hour),
			Payload:     domain.NewsSignals{},
		},
		Score:           score,
		PassedThreshold: passed,
	}
}

func ids(items []domain.ScoredItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Item.ID
	}
	return out
}

func TestSelectPrefersCategoryCoverage(t *testing.T) {
	t.Parallel()

	items := []domain.ScoredItem{
		news("a1", domain.CategoryAltcoins, 10, true),
		news("a2", domain.CategoryAltcoins, 9, true),
		news("a3", domain.CategoryAltcoins, 8, true),
		news("a4", domain.CategoryAltcoins, 7, true),
		news("b1", domain.CategoryMacroPolicy, 7, true),
	}

	sel := NewSelector(config.SelectionConfig{MinItems: 3, MaxItems: 3}, nil)
	set, err := sel.Select(items, nil, now)
	if err != nil {
		t.Fatalf("Select error: %v", err)
	}

	got := ids(set.Items)
	want := []string{"a1", "b1", "a2"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("selection order = %v, want %v", got, want)
	}
	if set.Degraded {
		t.Fatalf("3 items should not be degraded")
	}
}

func TestSelectPerCategoryCap(t *testing.T) {
	t.Parallel()

	items := []domain.ScoredItem{
		news("a1", domain.CategoryAltcoins, 10, true),
		news("a2", domain.CategoryAltcoins, 9, true),
		news("a3", domain.CategoryAltcoins, 8, true),
		news("a4", domain.CategoryAltcoins, 7, true),
		news("b1", domain.CategoryMacroPolicy, 7, true),
	}

	capped, err := NewSelector(config.SelectionConfig{MinItems: 3, MaxItems: 8, MaxPerCategory: 2}, nil).Select(items, nil, now)
	if err != nil {
		t.Fatalf("Select error: %v", err)
	}
	if got := fmt.Sprint(ids(capped.Items)); got != "[a1 b1 a2]" {
		t.Fatalf("capped selection = %s", got)
	}

	open, err := NewSelector(config.SelectionConfig{MinItems: 3, MaxItems: 8}, nil).Select(items, nil, now)
	if err != nil {
		t.Fatalf("Select error: %v", err)
	}
	if len(open.Items) != 5 {
		t.Fatalf("uncapped selection should keep all 5 items, got %v", ids(open.Items))
	}
}

func TestSelectDegradedThresholds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		passing  int
		degraded bool
		skipped  bool
	}{
		{name: "three items", passing: 3, degraded: false},
		{name: "two items", passing: 2, degraded: true},
		{name: "no items", passing: 0, skipped: true},
	}

	cats := []domain.Category{domain.CategoryMacroPolicy, domain.CategoryCapitalFlow, domain.CategoryMajorCoins}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var items []domain.ScoredItem
			for i := 0; i < tc.passing; i++ {
				items = append(items, news(fmt.Sprintf("n%d", i), cats[i], 8, true))
			}
			items = append(items, news("low", domain.CategoryAltcoins, 4, false))

			set, err := NewSelector(config.SelectionConfig{MinItems: 3, MaxItems: 8}, nil).Select(items, nil, now)
			if tc.skipped {
				if !errors.Is(err, ErrNothingToPublish) {
					t.Fatalf("expected ErrNothingToPublish, got %v", err)
				}
				if len(set.Items) != 0 || set.Stats.RejectedThreshold != 1 {
					t.Fatalf("skipped run should carry counters only: %+v", set)
				}
				return
			}
			if err != nil {
				t.Fatalf("Select error: %v", err)
			}
			if set.Degraded != tc.degraded {
				t.Fatalf("degraded = %v, want %v", set.Degraded, tc.degraded)
			}
			if len(set.Items) != tc.passing {
				t.Fatalf("expected %d items, got %d", tc.passing, len(set.Items))
			}
		})
	}
}

func TestSelectFiltersDuplicatesAndCounts(t *testing.T) {
	t.Parallel()

	items := []domain.ScoredItem{
		news("dup", domain.CategoryMacroPolicy, 10, true),
		news("keep1", domain.CategoryMacroPolicy, 9, true),
		news("keep2", domain.CategoryCapitalFlow, 8, true),
		news("keep3", domain.CategoryTechNarrative, 7, true),
		news("weak", domain.CategoryTechNarrative, 3, false),
	}
	seen := stubDeduper{"text dup": true}

	set, err := NewSelector(config.SelectionConfig{}, nil).Select(items, seen, now)
	if err != nil {
		t.Fatalf("Select error: %v", err)
	}

	if set.Stats.ItemsConsidered != 5 || set.Stats.RejectedDuplicate != 1 || set.Stats.RejectedThreshold != 1 || set.Stats.Selected != 3 {
		t.Fatalf("unexpected stats: %+v", set.Stats)
	}
	for _, id := range ids(set.Items) {
		if id == "dup" || id == "weak" {
			t.Fatalf("rejected item %s selected", id)
		}
	}
}

func TestSelectTieBreaksOnRecency(t *testing.T) {
	t.Parallel()

	older := news("older", domain.CategoryMajorCoins, 8, true)
	newer := news("newer", domain.CategoryMajorCoins, 8, true)
	newer.Item.PublishedAt = now.Add(-10 * time.Minute)

	set, err := NewSelector(config.SelectionConfig{MinItems: 1}, nil).Select([]domain.ScoredItem{older, newer}, nil, now)
	if err != nil {
		t.Fatalf("Select error: %v", err)
	}
	if got := ids(set.Items); got[0] != "newer" {
		t.Fatalf("expected more recent item first, got %v", got)
	}
}

func TestCommitRecordsEveryItem(t *testing.T) {
	t.Parallel()

	set := domain.PublishSet{Items: []domain.ScoredItem{
		news("x", domain.CategoryMacroPolicy, 9, true),
		news("y", domain.CategoryCapitalFlow, 9, true),
	}}
	rec := &recorder{}

	if err := NewSelector(config.SelectionConfig{}, nil).Commit(context.Background(), set, rec, now); err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	if len(rec.texts) != 2 || rec.texts[0] != "text x" {
		t.Fatalf("unexpected recorded texts: %v", rec.texts)
	}
}
