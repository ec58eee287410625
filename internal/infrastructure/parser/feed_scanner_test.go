package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"MorningPulse/internal/domain"
	"MorningPulse/internal/health"
	"MorningPulse/internal/scanner"
)

const rssFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Crypto Wire</title>
  <item>
    <title>SEC approves spot ether ETF</title>
    <link>https://example.com/eth-etf</link>
    <description><![CDATA[<p>The <b>SEC</b> approved it.</p>]]></description>
    <pubDate>Sun, 18 Oct 2026 07:30:00 +0000</pubDate>
  </item>
  <item>
    <title>Exchange drained of $200 million</title>
    <link>https://example.com/hack</link>
    <description>Funds gone.</description>
  </item>
  <item>
    <title>Third story</title>
    <link>https://example.com/third</link>
  </item>
</channel>
</rss>`

func TestFeedScannerScan(t *testing.T) {
	t.Parallel()

	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssFeed))
	}))
	defer feed.Close()

	forbidden := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer forbidden.Close()

	tracker := health.NewTracker(time.Hour)
	sc := NewFeedScanner(NewFetcher(&http.Client{Timeout: 5 * time.Second}, 4, ""), 2, nil)

	result, err := sc.Scan(context.Background(), scanner.Request{
		Now:      scanNow,
		SiteName: "news-feeds",
		Endpoints: []scanner.Endpoint{
			{Name: "wire", URL: feed.URL},
			{Name: "walled", URL: forbidden.URL},
		},
		Gate: tracker,
	})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}

	assert.Equal(t, result.Queried, 2)
	assert.Equal(t, result.Responded, 1)
	assert.Equal(t, len(result.Items), 2)
	assert.Equal(t, tracker.IsUsable("walled"), false)
	assert.Equal(t, tracker.IsUsable("wire"), true)

	first := result.Items[0]
	assert.Equal(t, first.Kind, domain.SourceKindNews)
	assert.Equal(t, first.SourceName, "wire")
	assert.Equal(t, first.Title, "SEC approves spot ether ETF")
	assert.Equal(t, first.Text, "The SEC approved it.")
	assert.Equal(t, first.PublishedAt.Equal(time.Date(2026, time.October, 18, 7, 30, 0, 0, time.UTC)), true)

	assert.Equal(t, result.Items[1].PublishedAt, scanNow)
}

func TestFeedScannerSkipsCoolingFeeds(t *testing.T) {
	t.Parallel()

	tracker := health.NewTracker(time.Hour)
	tracker.ReportOutcome("wire", health.OutcomeRateLimited)

	sc := NewFeedScanner(nil, 0, nil)
	result, err := sc.Scan(context.Background(), scanner.Request{
		Now:       scanNow,
		SiteName:  "news-feeds",
		Endpoints: []scanner.Endpoint{{Name: "wire", URL: "http://127.0.0.1:1/feed"}},
		Gate:      tracker,
	})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	assert.Equal(t, result.Queried, 1)
	assert.Equal(t, result.Responded, 0)
}

func TestPlainText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, plainText("<p>Hello <em>world</em></p>\n<p>again</p>"), "Hello world again")
	assert.Equal(t, plainText("  no   markup "), "no markup")
	assert.Equal(t, plainText("Fish &amp; chips"), "Fish & chips")
}
