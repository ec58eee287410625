// Package scoring turns candidate items into comparable quality scores.
//
// KOL posts use an additive model (tier base, keyword classes, freshness),
// news items use a capped checklist of credibility signals.
package scoring

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"MorningPulse/internal/config"
	"MorningPulse/internal/domain"
)

// Engine scores items according to the configured tables.
type Engine struct {
	cfg       config.ScoringConfig
	rules     []keywordRule
	freshness []config.FreshnessBracket
	logger    *slog.Logger
}

// NewEngine compiles the keyword table and orders freshness brackets.
func NewEngine(cfg config.ScoringConfig, logger *slog.Logger) (*Engine, error) {
	rules, err := compileRules(cfg.KeywordClasses)
	if err != nil {
		return nil, fmt.Errorf("compile keyword classes: %w", err)
	}

	brackets := append([]config.FreshnessBracket(nil), cfg.Freshness...)
	sort.SliceStable(brackets, func(i, j int) bool { return brackets[i].MaxAge < brackets[j].MaxAge })

	return &Engine{
		cfg:       cfg,
		rules:     rules,
		freshness: brackets,
		logger:    logger,
	}, nil
}

// Score computes the score of a single item. It is a pure function of the
// item and now; malformed items return an error wrapping domain.ErrMalformedItem.
func (e *Engine) Score(item domain.CandidateItem, now time.Time) (domain.ScoredItem, error) {
	if err := item.Validate(); err != nil {
		return domain.ScoredItem{}, err
	}

	switch payload := item.Payload.(type) {
	case domain.KolPost:
		score, err := e.kolScore(item, payload, now)
		if err != nil {
			return domain.ScoredItem{}, err
		}
		return domain.ScoredItem{Item: item, Score: score, PassedThreshold: score >= e.cfg.MinKolScore}, nil
	case domain.NewsSignals:
		score := e.newsScore(payload)
		return domain.ScoredItem{Item: item, Score: score, PassedThreshold: score >= e.cfg.MinImpactScore}, nil
	default:
		return domain.ScoredItem{}, fmt.Errorf("%w: unsupported payload %T", domain.ErrMalformedItem, item.Payload)
	}
}

// ScoreAll scores a batch, dropping and counting malformed items instead of
// aborting.
func (e *Engine) ScoreAll(items []domain.CandidateItem, now time.Time) ([]domain.ScoredItem, int) {
	scored := make([]domain.ScoredItem, 0, len(items))
	malformed := 0
	for _, item := range items {
		s, err := e.Score(item, now)
		if err != nil {
			malformed++
			if e.logger != nil && errors.Is(err, domain.ErrMalformedItem) {
				e.logger.Warn("item rejected", "id", item.ID, "source", item.SourceName, "error", err)
			}
			continue
		}
		scored = append(scored, s)
	}
	return scored, malformed
}

// MatchedClasses lists keyword classes found in text, in table order.
func (e *Engine) MatchedClasses(text string) []string {
	var names []string
	for _, rule := range e.rules {
		if rule.matches(text) {
			names = append(names, rule.name)
		}
	}
	return names
}

func (e *Engine) kolScore(item domain.CandidateItem, post domain.KolPost, now time.Time) (float64, error) {
	base, ok := e.cfg.TierBase[int(post.Tier)]
	if !ok {
		return 0, fmt.Errorf("%w: no base score for tier %d", domain.ErrMalformedItem, post.Tier)
	}

	score := base
	for _, rule := range e.rules {
		if rule.matches(item.Text) {
			score += rule.weight
		}
	}
	return score + e.freshnessBonus(now.Sub(item.PublishedAt)), nil
}

func (e *Engine) freshnessBonus(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	for _, b := range e.freshness {
		if age <= b.MaxAge {
			return b.Bonus
		}
	}
	return 0
}

func (e *Engine) newsScore(n domain.NewsSignals) float64 {
	w := e.cfg.News
	var score float64
	if n.CorroboratingSources >= w.CorroborationMin {
		score += w.Corroboration
	}
	if n.MentionsFinancialMagnitude {
		score += w.FinancialMagnitude
	}
	if n.IsOfficialSource {
		score += w.OfficialSource
	}
	if n.CrossPlatformTrendSignal {
		score += w.TrendSignal
	}
	if w.MaxScore > 0 && score > w.MaxScore {
		score = w.MaxScore
	}
	return score
}
