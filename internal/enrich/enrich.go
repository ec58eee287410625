// Package enrich turns scanned raw items into scoreable candidates: KOL posts
// get their tier, news headlines are clustered across outlets and annotated
// with credibility signals.
package enrich

import (
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"MorningPulse/internal/config"
	"MorningPulse/internal/dedup"
	"MorningPulse/internal/domain"
)

// DefaultMagnitudeFloor is the USD amount from which a headline counts as
// financially significant.
const DefaultMagnitudeFloor = 100e6

var (
	amountExpr = regexp.MustCompile(`(?i)(\$|usd\s?)?(\d+(?:,\d{3})*(?:\.\d+)?)\s*(trillion|billion|million|bn|mn|[tbm])?\b(\s*(?:usd|dollars))?`)

	topAssetExpr = regexp.MustCompile(`(?i)\b(?:btc|bitcoin|eth|ether|ethereum|usdt|tether|bnb|sol|solana|xrp|ripple|usdc|doge|dogecoin|ada|cardano|trx|tron|avax|avalanche|chainlink|toncoin|shib|polkadot|bch|ltc|litecoin|xlm|stellar)\b`)
)

type categoryRule struct {
	category domain.Category
	expr     *regexp.Regexp
}

var categoryRules = []categoryRule{
	{domain.CategoryMacroPolicy, regexp.MustCompile(`(?i)\b(?:sec|regulat\w*|laws?|legislation|policy|etfs?|fed|fomc|rate cut|cftc|treasury|congress|senate)\b`)},
	{domain.CategoryCapitalFlow, regexp.MustCompile(`(?i)\b(?:inflows?|outflows?|whales?|transfers?|drain\w*|moved|liquidat\w*|reserves?)\b`)},
	{domain.CategoryMajorCoins, regexp.MustCompile(`(?i)\b(?:bitcoin|btc|ethereum|eth|solana|sol)\b`)},
	{domain.CategoryAltcoins, regexp.MustCompile(`(?i)\b(?:altcoins?|tokens?|memecoins?|trending|surges?|pumps?|airdrops?)\b`)},
	{domain.CategoryTechNarrative, regexp.MustCompile(`(?i)\b(?:layer\s?2|l2s?|defi|rwa|ai|zk|protocol|upgrade|mainnet|restaking)\b`)},
}

// Categorize returns the first matching category, defaulting to macro_policy.
func Categorize(text string) domain.Category {
	for _, rule := range categoryRules {
		if rule.expr.MatchString(text) {
			return rule.category
		}
	}
	return domain.CategoryMacroPolicy
}

// Options configure an Enricher.
type Options struct {
	KOLs             []config.KOLConfig
	OfficialSources  []string
	ClusterThreshold float64
	MagnitudeFloor   float64
	Logger           *slog.Logger
}

// Enricher converts raw items into candidate items.
type Enricher struct {
	tiers     map[string]domain.KolTier
	official  []string
	threshold float64
	floor     float64
	logger    *slog.Logger
}

// New builds an Enricher; zero thresholds fall back to the dedup defaults.
func New(opts Options) *Enricher {
	tiers := make(map[string]domain.KolTier, len(opts.KOLs))
	for _, k := range opts.KOLs {
		tiers[strings.ToLower(strings.TrimPrefix(k.Handle, "@"))] = domain.KolTier(k.Tier)
	}

	official := make([]string, 0, len(opts.OfficialSources))
	for _, s := range opts.OfficialSources {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			official = append(official, s)
		}
	}

	e := &Enricher{
		tiers:     tiers,
		official:  official,
		threshold: opts.ClusterThreshold,
		floor:     opts.MagnitudeFloor,
		logger:    opts.Logger,
	}
	if e.threshold <= 0 {
		e.threshold = dedup.DefaultThreshold
	}
	if e.floor <= 0 {
		e.floor = DefaultMagnitudeFloor
	}
	return e
}

// Enrich returns KOL candidates first, then one candidate per news cluster,
// both in input order.
func (e *Enricher) Enrich(items []domain.RawItem) []domain.CandidateItem {
	var (
		out  []domain.CandidateItem
		news []domain.RawItem
	)
	for i, raw := range items {
		switch raw.Kind {
		case domain.SourceKindKolPost:
			out = append(out, e.kolCandidate(raw, i))
		case domain.SourceKindNews:
			news = append(news, raw)
		default:
			e.debug("raw item without kind dropped", "source", raw.SourceName, "url", raw.URL)
		}
	}

	clusters := e.cluster(news)
	for i, c := range clusters {
		out = append(out, e.newsCandidate(c, i))
	}

	e.debug("items enriched", "raw", len(items), "kol", len(out)-len(clusters),
		"news", len(news), "clusters", len(clusters))
	return out
}

func (e *Enricher) kolCandidate(raw domain.RawItem, idx int) domain.CandidateItem {
	tier := e.tiers[strings.ToLower(raw.Author)]
	return domain.CandidateItem{
		ID:          itemID(raw, idx),
		Category:    domain.CategoryKolInsight,
		Text:        raw.Text,
		SourceName:  "@" + raw.Author,
		SourceURL:   raw.URL,
		PublishedAt: raw.PublishedAt,
		Payload:     domain.KolPost{Author: raw.Author, Tier: tier},
	}
}

type cluster struct {
	seed    []string
	members []domain.RawItem
}

// cluster groups headlines reporting the same story, joining each item to
// the first cluster whose seed keywords are similar enough.
func (e *Enricher) cluster(news []domain.RawItem) []*cluster {
	var clusters []*cluster
	for _, raw := range news {
		keywords := dedup.Keywords(headline(raw))
		var home *cluster
		for _, c := range clusters {
			if dedup.Similarity(keywords, c.seed) >= e.threshold {
				home = c
				break
			}
		}
		if home == nil {
			home = &cluster{seed: keywords}
			clusters = append(clusters, home)
		}
		home.members = append(home.members, raw)
	}
	return clusters
}

func (e *Enricher) newsCandidate(c *cluster, idx int) domain.CandidateItem {
	rep := representative(c.members)

	sources := map[string]struct{}{}
	platforms := map[string]struct{}{}
	signals := domain.NewsSignals{}
	for _, m := range c.members {
		sources[strings.ToLower(m.SourceName)] = struct{}{}
		platforms[m.Platform] = struct{}{}
		if m.Trending {
			signals.CrossPlatformTrendSignal = true
		}
		if e.isOfficial(m) {
			signals.IsOfficialSource = true
		}
		if e.mentionsMagnitude(m.Title + " " + m.Text) {
			signals.MentionsFinancialMagnitude = true
		}
	}
	signals.CorroboratingSources = len(sources)
	if len(platforms) >= 2 {
		signals.CrossPlatformTrendSignal = true
	}

	text := headline(rep)
	return domain.CandidateItem{
		ID:          itemID(rep, idx),
		Category:    Categorize(rep.Title + " " + rep.Text),
		Text:        text,
		SourceName:  rep.SourceName,
		SourceURL:   rep.URL,
		PublishedAt: rep.PublishedAt,
		Payload:     signals,
	}
}

// representative prefers the longest headline, then the earliest report.
func representative(members []domain.RawItem) domain.RawItem {
	sorted := append([]domain.RawItem(nil), members...)
	sort.SliceStable(sorted, func(i, j int) bool {
		li, lj := len(headline(sorted[i])), len(headline(sorted[j]))
		if li != lj {
			return li > lj
		}
		return sorted[i].PublishedAt.Before(sorted[j].PublishedAt)
	})
	return sorted[0]
}

func (e *Enricher) isOfficial(raw domain.RawItem) bool {
	name := strings.ToLower(raw.SourceName)
	host := ""
	if u, err := url.Parse(raw.URL); err == nil {
		host = strings.ToLower(u.Hostname())
	}
	for _, o := range e.official {
		if strings.Contains(name, o) || (host != "" && strings.Contains(host, o)) {
			return true
		}
	}
	return false
}

// mentionsMagnitude reports a dollar amount at or above the floor, or a
// top-20 asset named in the text.
func (e *Enricher) mentionsMagnitude(text string) bool {
	if topAssetExpr.MatchString(text) {
		return true
	}
	for _, m := range amountExpr.FindAllStringSubmatch(text, -1) {
		if m[1] == "" && m[4] == "" {
			continue
		}
		if amountValue(m[2], strings.ToLower(m[3])) >= e.floor {
			return true
		}
	}
	return false
}

func amountValue(number, unit string) float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(number, ",", ""), 64)
	if err != nil {
		return 0
	}
	switch unit {
	case "t", "trillion":
		v *= 1e12
	case "b", "bn", "billion":
		v *= 1e9
	case "m", "mn", "million":
		v *= 1e6
	}
	return v
}

func headline(raw domain.RawItem) string {
	if raw.Title != "" {
		return raw.Title
	}
	return raw.Text
}

func itemID(raw domain.RawItem, idx int) string {
	if raw.URL != "" {
		return raw.URL
	}
	return fmt.Sprintf("%s-%s-%d", raw.Kind, raw.SourceName, idx)
}

func (e *Enricher) debug(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}
