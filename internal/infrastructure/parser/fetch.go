package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/semaphore"

	"MorningPulse/internal/health"
)

const maxBodyBytes = 4 << 20

// Fetcher performs GET requests shared by every scanner. The semaphore caps
// in-flight requests across all sites.
type Fetcher struct {
	client    *http.Client
	sem       *semaphore.Weighted
	userAgent string
}

// NewFetcher wires an HTTP client; maxConcurrent defaults to 10.
func NewFetcher(client *http.Client, maxConcurrent int, userAgent string) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	if userAgent == "" {
		userAgent = "MorningPulse/1.0"
	}
	return &Fetcher{
		client:    client,
		sem:       semaphore.NewWeighted(int64(maxConcurrent)),
		userAgent: userAgent,
	}
}

// Raw returns the undecoded response body. Non-2xx responses yield a
// *health.StatusError.
func (f *Fetcher) Raw(ctx context.Context, rawURL string) ([]byte, error) {
	body, _, err := f.get(ctx, rawURL)
	return body, err
}

// Document fetches an HTML page, converts it to UTF-8 and parses it.
func (f *Fetcher) Document(ctx context.Context, rawURL string) (*goquery.Document, error) {
	body, contentType, err := f.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, fmt.Errorf("decode charset: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, string, error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, "", err
	}
	defer f.sem.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, "", &health.StatusError{Code: resp.StatusCode, URL: rawURL}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// pacer spaces consecutive attempts against one source family.
type pacer struct {
	mu    sync.Mutex
	delay time.Duration
	next  time.Time
}

func newPacer(delay time.Duration) *pacer {
	return &pacer{delay: delay}
}

// Wait blocks until the family may be contacted again.
func (p *pacer) Wait(ctx context.Context) error {
	if p == nil || p.delay <= 0 {
		return ctx.Err()
	}

	p.mu.Lock()
	now := time.Now()
	at := p.next
	if at.Before(now) {
		at = now
	}
	p.next = at.Add(p.delay)
	p.mu.Unlock()

	wait := time.Until(at)
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// plainText strips markup from a feed description.
func plainText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
