package parser

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"MorningPulse/internal/domain"
	"MorningPulse/internal/health"
	"MorningPulse/internal/scanner"
)

// FeedScanner reads RSS and Atom news feeds.
type FeedScanner struct {
	fetcher  *Fetcher
	maxItems int
	logger   *slog.Logger
}

// NewFeedScanner builds the strategy; maxItems defaults to 10 per feed.
func NewFeedScanner(fetcher *Fetcher, maxItems int, logger *slog.Logger) *FeedScanner {
	if fetcher == nil {
		fetcher = NewFetcher(nil, 0, "")
	}
	if maxItems <= 0 {
		maxItems = 10
	}
	return &FeedScanner{fetcher: fetcher, maxItems: maxItems, logger: logger}
}

// Name identifies the strategy inside the registry.
func (f *FeedScanner) Name() string {
	return "rss"
}

// Scan fetches every usable feed concurrently. A failing feed only lowers
// the responded counter.
func (f *FeedScanner) Scan(ctx context.Context, req scanner.Request) (scanner.Result, error) {
	if len(req.Endpoints) == 0 {
		return scanner.Result{}, fmt.Errorf("no feeds configured for site %s", req.SiteName)
	}

	var mu sync.Mutex
	result := scanner.Result{Queried: len(req.Endpoints)}

	g, gctx := errgroup.WithContext(ctx)
	for _, ep := range req.Endpoints {
		ep := ep
		if !req.Usable(ep.Name) {
			f.debug("feed cooling down", "feed", ep.Name)
			continue
		}

		g.Go(func() error {
			items, err := f.scanFeed(gctx, req, ep)
			req.Report(ep.Name, health.ClassifyError(err))
			if err != nil {
				f.warn("feed failed", "feed", ep.Name, "error", err)
				return nil
			}

			mu.Lock()
			result.Responded++
			result.Items = append(result.Items, items...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, ctx.Err()
}

func (f *FeedScanner) scanFeed(ctx context.Context, req scanner.Request, ep scanner.Endpoint) ([]domain.RawItem, error) {
	if err := req.Throttle(ctx); err != nil {
		return nil, err
	}

	raw, err := f.fetcher.Raw(ctx, ep.URL)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", ep.Name, err)
	}

	items := make([]domain.RawItem, 0, f.maxItems)
	for _, entry := range feed.Items {
		if len(items) >= f.maxItems {
			break
		}
		if entry == nil || entry.Title == "" {
			continue
		}

		published := req.Now
		switch {
		case entry.PublishedParsed != nil:
			published = *entry.PublishedParsed
		case entry.UpdatedParsed != nil:
			published = *entry.UpdatedParsed
		}

		items = append(items, domain.RawItem{
			Kind:        domain.SourceKindNews,
			Platform:    "rss",
			SourceName:  ep.Name,
			URL:         entry.Link,
			Title:       plainText(entry.Title),
			Text:        plainText(entry.Description),
			PublishedAt: published,
		})
	}
	return items, nil
}

func (f *FeedScanner) debug(msg string, args ...any) {
	if f.logger != nil {
		f.logger.Debug(msg, args...)
	}
}

func (f *FeedScanner) warn(msg string, args ...any) {
	if f.logger != nil {
		f.logger.Warn(msg, args...)
	}
}
