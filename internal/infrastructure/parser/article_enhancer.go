package parser

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"MorningPulse/internal/domain"
	"MorningPulse/internal/ports"
)

const defaultSummaryLength = 150

var (
	articleSelectors = []string{"article", ".article-content", ".post-content", ".entry-content", "main"}
	sentenceEnd      = regexp.MustCompile(`[.!?]\s+`)
)

// ArticleEnhancer fetches the pages behind selected news items and attaches
// a short lead summary and a preview image.
type ArticleEnhancer struct {
	fetcher       *Fetcher
	summaryLength int
	concurrency   int
	logger        *slog.Logger
}

var _ ports.ArticleEnhancer = (*ArticleEnhancer)(nil)

// NewArticleEnhancer builds an enhancer; summaryLength is in characters.
func NewArticleEnhancer(fetcher *Fetcher, summaryLength, concurrency int, logger *slog.Logger) *ArticleEnhancer {
	if summaryLength <= 0 {
		summaryLength = defaultSummaryLength
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &ArticleEnhancer{
		fetcher:       fetcher,
		summaryLength: summaryLength,
		concurrency:   concurrency,
		logger:        logger,
	}
}

// Enhance returns a copy of items with Summary and ImageURL set on news
// items whose page could be fetched. KOL posts are left alone.
func (e *ArticleEnhancer) Enhance(ctx context.Context, items []domain.ScoredItem) []domain.ScoredItem {
	out := append([]domain.ScoredItem(nil), items...)
	if e.fetcher == nil {
		return out
	}

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i := range out {
		item := out[i].Item
		if item.Kind() != domain.SourceKindNews || item.SourceURL == "" {
			continue
		}
		g.Go(func() error {
			doc, err := e.fetcher.Document(ctx, item.SourceURL)
			if err != nil {
				e.debug("article fetch failed", "url", item.SourceURL, "error", err)
				return nil
			}
			out[i].Item.ImageURL = articleImage(doc, item.SourceURL)
			out[i].Item.Summary = articleSummary(doc, e.summaryLength)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// articleSummary takes whole leading sentences of the article body up to
// maxLen characters, or a hard cut when the first sentence is longer.
func articleSummary(doc *goquery.Document, maxLen int) string {
	doc.Find("script, style, noscript").Remove()

	var text string
	for _, sel := range articleSelectors {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			text = node.Text()
			break
		}
	}
	if strings.TrimSpace(text) == "" {
		text = doc.Find("body").Text()
	}
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return ""
	}

	var summary string
	for _, sentence := range splitSentences(text) {
		next := sentence
		if summary != "" {
			next = summary + " " + sentence
		}
		if utf8.RuneCountInString(next) > maxLen {
			break
		}
		summary = next
	}
	if summary == "" {
		summary = truncateRunes(text, maxLen)
	}
	return summary
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		out = append(out, strings.TrimSpace(text[start:loc[0]+1]))
		start = loc[1]
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}

// articleImage prefers the Open Graph image, then the first image inside the
// article, main or body.
func articleImage(doc *goquery.Document, pageURL string) string {
	for _, sel := range []string{`meta[property="og:image"]`, `meta[name="twitter:image"]`} {
		if v, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
			return absoluteURL(pageURL, strings.TrimSpace(v))
		}
	}
	for _, scope := range []string{"article", "main", "body"} {
		src, ok := doc.Find(scope + " img[src]").First().Attr("src")
		if ok && src != "" && !strings.HasPrefix(src, "data:") {
			return absoluteURL(pageURL, src)
		}
	}
	return ""
}

func absoluteURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return b.ResolveReference(r).String()
}

func (e *ArticleEnhancer) debug(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}
