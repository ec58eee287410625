package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"MorningPulse/internal/domain"
	"MorningPulse/internal/health"
	"MorningPulse/internal/scanner"
)

var (
	relativeDateExpr = regexp.MustCompile(`^(\d+)\s*([smhd])$`)

	errNoInstance = errors.New("no usable nitter instance")
)

const nitterTitleLayout = "Jan 2, 2006 · 3:04 PM MST"

// NitterScanner reads KOL timelines from rotating Nitter mirrors.
type NitterScanner struct {
	fetcher     *Fetcher
	maxAttempts int
	maxPosts    int
	logger      *slog.Logger

	mu     sync.Mutex
	cursor int
}

// NewNitterScanner builds the strategy; maxAttempts defaults to 3 and
// maxPosts to 10.
func NewNitterScanner(fetcher *Fetcher, maxAttempts, maxPosts int, logger *slog.Logger) *NitterScanner {
	if fetcher == nil {
		fetcher = NewFetcher(nil, 0, "")
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if maxPosts <= 0 {
		maxPosts = 10
	}
	return &NitterScanner{
		fetcher:     fetcher,
		maxAttempts: maxAttempts,
		maxPosts:    maxPosts,
		logger:      logger,
	}
}

// Name identifies the strategy inside the registry.
func (n *NitterScanner) Name() string {
	return "nitter"
}

// Scan fetches every watched handle. Each handle is one source; it stops
// early when every instance is cooling down.
func (n *NitterScanner) Scan(ctx context.Context, req scanner.Request) (scanner.Result, error) {
	if len(req.Endpoints) == 0 {
		return scanner.Result{}, fmt.Errorf("no nitter instances configured for site %s", req.SiteName)
	}

	result := scanner.Result{Queried: len(req.KOLs)}
	for _, kol := range req.KOLs {
		items, err := n.scanHandle(ctx, req, kol)
		if errors.Is(err, errNoInstance) {
			n.warn("no usable nitter instance left", "site", req.SiteName, "handle", kol.Handle)
			break
		}
		if err != nil {
			return result, err
		}
		if items != nil {
			result.Responded++
			result.Items = append(result.Items, items...)
		}
	}
	return result, nil
}

// scanHandle returns nil items when every attempt failed.
func (n *NitterScanner) scanHandle(ctx context.Context, req scanner.Request, kol scanner.KOL) ([]domain.RawItem, error) {
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		instance, ok := n.nextInstance(req)
		if !ok {
			return nil, errNoInstance
		}
		if err := req.Throttle(ctx); err != nil {
			return nil, err
		}

		pageURL := strings.TrimSuffix(instance.URL, "/") + "/" + url.PathEscape(kol.Handle)
		doc, err := n.fetcher.Document(ctx, pageURL)
		outcome := health.ClassifyError(err)
		req.Report(instance.Name, outcome)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			n.debug("nitter attempt failed", "instance", instance.Name, "handle", kol.Handle,
				"attempt", attempt, "outcome", outcome.String(), "error", err)
			continue
		}

		items := n.parseTimeline(doc, instance.URL, req.SiteName, kol.Handle, req.Now)
		if items == nil {
			items = []domain.RawItem{}
		}
		return items, nil
	}
	return nil, nil
}

// nextInstance rotates over the configured mirrors, skipping cooling ones.
func (n *NitterScanner) nextInstance(req scanner.Request) (scanner.Endpoint, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	total := len(req.Endpoints)
	for i := 0; i < total; i++ {
		idx := (n.cursor + i) % total
		ep := req.Endpoints[idx]
		if req.Usable(ep.Name) {
			n.cursor = idx + 1
			return ep, true
		}
	}
	return scanner.Endpoint{}, false
}

func (n *NitterScanner) parseTimeline(doc *goquery.Document, base, site, handle string, now time.Time) []domain.RawItem {
	entries := doc.Find(".timeline-item")
	if entries.Length() == 0 {
		entries = doc.Find("div.tweet")
	}

	var items []domain.RawItem
	entries.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(items) >= n.maxPosts {
			return false
		}
		if s.Find(".retweet-header").Length() > 0 {
			return true
		}

		text := strings.Join(strings.Fields(s.Find(".tweet-content, .tweet-text").First().Text()), " ")
		if text == "" {
			return true
		}

		href, _ := s.Find("a.tweet-link").First().Attr("href")
		items = append(items, domain.RawItem{
			Kind:        domain.SourceKindKolPost,
			Platform:    "twitter",
			SourceName:  site,
			URL:         resolveLink(base, href),
			Author:      handle,
			Text:        text,
			PublishedAt: parseTweetDate(s.Find(".tweet-date").First(), now),
		})
		return true
	})
	return items
}

func resolveLink(base, href string) string {
	if href == "" || strings.HasPrefix(href, "http") {
		return href
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(href, "/")
}

// parseTweetDate prefers the absolute timestamp in the link title and falls
// back to labels like "2h", "15m" or "Oct 17".
func parseTweetDate(sel *goquery.Selection, now time.Time) time.Time {
	if title, ok := sel.Find("a").First().Attr("title"); ok {
		if t, err := time.Parse(nitterTitleLayout, strings.TrimSpace(title)); err == nil {
			return t
		}
	}

	label := strings.TrimSpace(sel.Text())
	if m := relativeDateExpr.FindStringSubmatch(label); m != nil {
		n, _ := strconv.Atoi(m[1])
		unit := map[string]time.Duration{"s": time.Second, "m": time.Minute, "h": time.Hour, "d": 24 * time.Hour}[m[2]]
		return now.Add(-time.Duration(n) * unit)
	}
	if t, err := time.Parse("Jan 2, 2006", label); err == nil {
		return t
	}
	if t, err := time.Parse("Jan 2", label); err == nil {
		t = time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, now.Location())
		if t.After(now) {
			t = t.AddDate(-1, 0, 0)
		}
		return t
	}
	return now
}

func (n *NitterScanner) debug(msg string, args ...any) {
	if n.logger != nil {
		n.logger.Debug(msg, args...)
	}
}

func (n *NitterScanner) warn(msg string, args ...any) {
	if n.logger != nil {
		n.logger.Warn(msg, args...)
	}
}
