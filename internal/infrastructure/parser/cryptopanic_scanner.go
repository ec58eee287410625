package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"MorningPulse/internal/domain"
	"MorningPulse/internal/health"
	"MorningPulse/internal/scanner"
)

// CryptoPanicScanner pulls trending headlines from the CryptoPanic posts API.
type CryptoPanicScanner struct {
	fetcher  *Fetcher
	endpoint string
	apiKey   string
	maxItems int
	logger   *slog.Logger
}

type cryptoPanicResponse struct {
	Results []cryptoPanicPost `json:"results"`
}

type cryptoPanicPost struct {
	Kind        string    `json:"kind"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	OriginalURL string    `json:"original_url"`
	PublishedAt time.Time `json:"published_at"`
	Source      struct {
		Title  string `json:"title"`
		Domain string `json:"domain"`
	} `json:"source"`
	Votes struct {
		Important int `json:"important"`
		Positive  int `json:"positive"`
	} `json:"votes"`
}

// NewCryptoPanicScanner builds the strategy. Without an API key Scan is a no-op.
func NewCryptoPanicScanner(fetcher *Fetcher, endpoint, apiKey string, maxItems int, logger *slog.Logger) *CryptoPanicScanner {
	if fetcher == nil {
		fetcher = NewFetcher(nil, 0, "")
	}
	if maxItems <= 0 {
		maxItems = 20
	}
	return &CryptoPanicScanner{
		fetcher:  fetcher,
		endpoint: endpoint,
		apiKey:   apiKey,
		maxItems: maxItems,
		logger:   logger,
	}
}

// Name identifies the strategy inside the registry.
func (c *CryptoPanicScanner) Name() string {
	return "cryptopanic"
}

// Scan queries the API once; the whole site counts as one source.
func (c *CryptoPanicScanner) Scan(ctx context.Context, req scanner.Request) (scanner.Result, error) {
	if c.apiKey == "" {
		if c.logger != nil {
			c.logger.Debug("cryptopanic api key not configured, skipping")
		}
		return scanner.Result{}, nil
	}

	result := scanner.Result{Queried: 1}
	if !req.Usable(req.SiteName) {
		return result, nil
	}
	if err := req.Throttle(ctx); err != nil {
		return result, err
	}

	endpoint, err := c.buildURL(req.Options)
	if err != nil {
		return result, err
	}

	raw, err := c.fetcher.Raw(ctx, endpoint)
	req.Report(req.SiteName, health.ClassifyError(err))
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("cryptopanic request failed", "error", err)
		}
		return result, ctx.Err()
	}

	var payload cryptoPanicResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return result, fmt.Errorf("decode cryptopanic response: %w", err)
	}

	result.Responded = 1
	for _, post := range payload.Results {
		if len(result.Items) >= c.maxItems {
			break
		}
		if post.Title == "" || (post.Kind != "" && post.Kind != "news") {
			continue
		}

		link := post.OriginalURL
		if link == "" {
			link = post.URL
		}
		source := post.Source.Title
		if source == "" {
			source = post.Source.Domain
		}
		published := post.PublishedAt
		if published.IsZero() {
			published = req.Now
		}

		result.Items = append(result.Items, domain.RawItem{
			Kind:        domain.SourceKindNews,
			Platform:    "cryptopanic",
			SourceName:  source,
			URL:         link,
			Title:       post.Title,
			PublishedAt: published,
			Trending:    post.Votes.Important > 0,
		})
	}
	return result, nil
}

func (c *CryptoPanicScanner) buildURL(options map[string]string) (string, error) {
	parsed, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid cryptopanic endpoint %s: %w", c.endpoint, err)
	}

	query := parsed.Query()
	query.Set("auth_token", c.apiKey)
	query.Set("kind", "news")
	query.Set("public", "true")
	query.Set("limit", strconv.Itoa(c.maxItems))
	for key, value := range options {
		query.Set(key, value)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
