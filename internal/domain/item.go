package domain

import (
	"errors"
	"fmt"
	"time"
)

// Category groups items for diversity-aware selection.
type Category string

const (
	CategoryMacroPolicy   Category = "macro_policy"
	CategoryCapitalFlow   Category = "capital_flow"
	CategoryMajorCoins    Category = "major_coins"
	CategoryAltcoins      Category = "altcoins"
	CategoryTechNarrative Category = "tech_narrative"
	CategoryKolInsight    Category = "kol_insight"
)

// SourceKind tells which scoring model applies to an item.
type SourceKind string

const (
	SourceKindKolPost SourceKind = "kol_post"
	SourceKindNews    SourceKind = "news"
)

// KolTier ranks an influencer by reach: 1 global, 2 analyst, 3 regional.
type KolTier int

const (
	KolTierGlobal   KolTier = 1
	KolTierAnalyst  KolTier = 2
	KolTierRegional KolTier = 3
)

// Valid reports whether the tier is one of the known tiers.
func (t KolTier) Valid() bool {
	return t >= KolTierGlobal && t <= KolTierRegional
}

// ErrMalformedItem marks candidates that break the per-kind data contract.
var ErrMalformedItem = errors.New("malformed item")

// Payload is the kind-specific part of a candidate. Only KolPost and
// NewsSignals implement it.
type Payload interface {
	Kind() SourceKind
	validate() error
}

// KolPost carries fields that exist only for influencer posts.
type KolPost struct {
	Author string
	Tier   KolTier
}

// Kind implements Payload.
func (KolPost) Kind() SourceKind { return SourceKindKolPost }

func (p KolPost) validate() error {
	if !p.Tier.Valid() {
		return fmt.Errorf("%w: kol post by %q has tier %d", ErrMalformedItem, p.Author, p.Tier)
	}
	return nil
}

// NewsSignals carries the credibility signals used by the news model.
type NewsSignals struct {
	CorroboratingSources       int
	MentionsFinancialMagnitude bool
	IsOfficialSource           bool
	CrossPlatformTrendSignal   bool
}

// Kind implements Payload.
func (NewsSignals) Kind() SourceKind { return SourceKindNews }

func (n NewsSignals) validate() error {
	if n.CorroboratingSources < 0 {
		return fmt.Errorf("%w: negative corroborating sources", ErrMalformedItem)
	}
	return nil
}

// CandidateItem is a unit of potential content after ingestion.
type CandidateItem struct {
	ID          string
	Category    Category
	Text        string
	SourceName  string
	SourceURL   string
	PublishedAt time.Time
	Payload     Payload

	// Summary and ImageURL are filled from the article page after selection.
	Summary  string
	ImageURL string
}

// Kind returns the source kind derived from the payload variant.
func (c CandidateItem) Kind() SourceKind {
	if c.Payload == nil {
		return ""
	}
	return c.Payload.Kind()
}

// Validate checks the per-kind contract of the item.
func (c CandidateItem) Validate() error {
	if c.Payload == nil {
		return fmt.Errorf("%w: item %q has no payload", ErrMalformedItem, c.ID)
	}
	if c.Category == "" {
		return fmt.Errorf("%w: item %q has no category", ErrMalformedItem, c.ID)
	}
	return c.Payload.validate()
}

// ScoredItem is a candidate with its computed score. Never mutated after scoring.
type ScoredItem struct {
	Item            CandidateItem
	Score           float64
	PassedThreshold bool
}

// RawItem is what a scanner extracts before enrichment.
type RawItem struct {
	Kind        SourceKind
	Platform    string
	SourceName  string
	URL         string
	Author      string
	Title       string
	Text        string
	PublishedAt time.Time
	Trending    bool
}

// Batch is the output of one ingestion pass.
type Batch struct {
	Items            []RawItem
	SourcesQueried   int
	SourcesResponded int
}
