package scoring

import (
	"errors"
	"testing"
	"time"

	"MorningPulse/internal/config"
	"MorningPulse/internal/domain"
)

var now = time.Date(2026, time.October, 18, 9, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, cfg config.ScoringConfig) *Engine {
	t.Helper()
	engine, err := NewEngine(cfg, nil)
	if err != nil {
		t.Fatalf("NewEngine error: %v", err)
	}
	return engine
}

func kol(text string, tier domain.KolTier, age time.Duration) domain.CandidateItem {
	return domain.CandidateItem{
		ID:          "kol",
		Category:    domain.CategoryKolInsight,
		Text:        text,
		SourceName:  "nitter",
		PublishedAt: now.Add(-age),
		Payload:     domain.KolPost{Author: "someone", Tier: tier},
	}
}

func newsItem(signals domain.NewsSignals) domain.CandidateItem {
	return domain.CandidateItem{
		ID:          "news",
		Category:    domain.CategoryMacroPolicy,
		Text:        "headline",
		SourceName:  "coindesk",
		PublishedAt: now.Add(-time.Hour),
		Payload:     signals,
	}
}

func TestKolScore(t *testing.T) {
	t.Parallel()

	engine := newEngine(t, config.DefaultScoring())

	cases := []struct {
		name   string
		item   domain.CandidateItem
		score  float64
		passed bool
	}{
		{
			name:   "tier one regulatory fresh",
			item:   kol("SEC sues major exchange over unregistered securities", domain.KolTierGlobal, time.Hour),
			score:  80,
			passed: true,
		},
		{
			name:   "class counted once",
			item:   kol("SEC lawsuit adds to regulatory pressure", domain.KolTierGlobal, time.Hour),
			score:  80,
			passed: true,
		},
		{
			name:   "two coins earn multi coin bonus",
			item:   kol("Bitcoin and Ethereum both look strong", domain.KolTierAnalyst, 3*time.Hour),
			score:  45,
			passed: false,
		},
		{
			name:   "single coin earns nothing",
			item:   kol("Bitcoin looks strong", domain.KolTierAnalyst, 3*time.Hour),
			score:  40,
			passed: false,
		},
		{
			name:   "price pattern and hack",
			item:   kol("Exchange hacked, yet analysts keep $150k target", domain.KolTierRegional, 30*time.Minute),
			score:  75,
			passed: true,
		},
		{
			name:   "stale post gets no bonus",
			item:   kol("New ETF approval expected", domain.KolTierGlobal, 20*time.Hour),
			score:  65,
			passed: true,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := engine.Score(tc.item, now)
			if err != nil {
				t.Fatalf("Score error: %v", err)
			}
			if got.Score != tc.score {
				t.Fatalf("score = %v, want %v (classes %v)", got.Score, tc.score, engine.MatchedClasses(tc.item.Text))
			}
			if got.PassedThreshold != tc.passed {
				t.Fatalf("passed = %v, want %v", got.PassedThreshold, tc.passed)
			}
		})
	}
}

func TestFreshnessBrackets(t *testing.T) {
	t.Parallel()

	engine := newEngine(t, config.DefaultScoring())

	cases := []struct {
		age   time.Duration
		bonus float64
	}{
		{age: -5 * time.Minute, bonus: 15},
		{age: 2 * time.Hour, bonus: 15},
		{age: 2*time.Hour + time.Minute, bonus: 10},
		{age: 6 * time.Hour, bonus: 10},
		{age: 12 * time.Hour, bonus: 5},
		{age: 13 * time.Hour, bonus: 0},
	}
	for _, tc := range cases {
		if got := engine.freshnessBonus(tc.age); got != tc.bonus {
			t.Fatalf("freshnessBonus(%v) = %v, want %v", tc.age, got, tc.bonus)
		}
	}
}

func TestNewsScore(t *testing.T) {
	t.Parallel()

	engine := newEngine(t, config.DefaultScoring())

	cases := []struct {
		name    string
		signals domain.NewsSignals
		score   float64
		passed  bool
	}{
		{
			name: "all signals",
			signals: domain.NewsSignals{
				CorroboratingSources:       4,
				MentionsFinancialMagnitude: true,
				IsOfficialSource:           true,
				CrossPlatformTrendSignal:   true,
			},
			score:  10,
			passed: true,
		},
		{
			name:    "corroboration below minimum",
			signals: domain.NewsSignals{CorroboratingSources: 2, IsOfficialSource: true},
			score:   3,
		},
		{
			name: "just over threshold",
			signals: domain.NewsSignals{
				CorroboratingSources:       3,
				MentionsFinancialMagnitude: true,
				CrossPlatformTrendSignal:   true,
			},
			score:  7,
			passed: true,
		},
	}

	for _, tc := range cases {
		got, err := engine.Score(newsItem(tc.signals), now)
		if err != nil {
			t.Fatalf("%s: Score error: %v", tc.name, err)
		}
		if got.Score != tc.score || got.PassedThreshold != tc.passed {
			t.Fatalf("%s: got (%v, %v), want (%v, %v)", tc.name, got.Score, got.PassedThreshold, tc.score, tc.passed)
		}
	}
}

func TestNewsScoreIsCapped(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultScoring()
	cfg.News.Corroboration = 6
	engine := newEngine(t, cfg)

	got, err := engine.Score(newsItem(domain.NewsSignals{
		CorroboratingSources:     5,
		IsOfficialSource:         true,
		CrossPlatformTrendSignal: true,
	}), now)
	if err != nil {
		t.Fatalf("Score error: %v", err)
	}
	if got.Score != 10 {
		t.Fatalf("expected score capped at 10, got %v", got.Score)
	}
}

func TestScoreIsIdempotent(t *testing.T) {
	t.Parallel()

	engine := newEngine(t, config.DefaultScoring())
	item := kol("Solana partnership with Visa announced", domain.KolTierAnalyst, 4*time.Hour)

	first, err := engine.Score(item, now)
	if err != nil {
		t.Fatalf("Score error: %v", err)
	}
	second, _ := engine.Score(item, now)
	if first != second {
		t.Fatalf("scores differ across calls: %+v vs %+v", first, second)
	}
}

func TestMalformedItemsAreRejected(t *testing.T) {
	t.Parallel()

	engine := newEngine(t, config.DefaultScoring())

	badTier := kol("SEC news", 0, time.Hour)
	if _, err := engine.Score(badTier, now); !errors.Is(err, domain.ErrMalformedItem) {
		t.Fatalf("expected ErrMalformedItem for tier 0, got %v", err)
	}

	noPayload := newsItem(domain.NewsSignals{})
	noPayload.Payload = nil

	good := kol("SEC sues exchange", domain.KolTierGlobal, time.Hour)
	scored, malformed := engine.ScoreAll([]domain.CandidateItem{badTier, good, noPayload}, now)
	if malformed != 2 {
		t.Fatalf("expected 2 malformed items, got %d", malformed)
	}
	if len(scored) != 1 || scored[0].Item.Text != good.Text {
		t.Fatalf("unexpected scored items: %+v", scored)
	}
}

func TestNewEngineRejectsEmptyClass(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultScoring()
	cfg.KeywordClasses = append(cfg.KeywordClasses, config.KeywordClassConfig{Name: "empty", Weight: 1})
	if _, err := NewEngine(cfg, nil); err == nil {
		t.Fatalf("expected error for class without terms")
	}
}
