package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/go-playground/assert/v2"

	"MorningPulse/internal/domain"
)

type capture struct {
	mu    sync.Mutex
	paths []string
	forms []map[string]string
}

func (c *capture) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		c.mu.Lock()
		c.paths = append(c.paths, r.URL.Path)
		c.forms = append(c.forms, map[string]string{
			"chat_id": r.PostForm.Get("chat_id"),
			"text":    r.PostForm.Get("text"),
		})
		c.mu.Unlock()
		w.WriteHeader(status)
	}
}

func sampleSet(degraded bool) domain.PublishSet {
	return domain.PublishSet{
		Degraded: degraded,
		Items: []domain.ScoredItem{
			{Item: domain.CandidateItem{Category: domain.CategoryMacroPolicy, Text: "SEC approves ETF", SourceName: "coindesk", SourceURL: "https://c/1"}, Score: 8},
			{Item: domain.CandidateItem{Category: domain.CategoryKolInsight, Text: "gm", SourceName: "@saylor"}, Score: 70},
		},
	}
}

func TestPublishSendsDigest(t *testing.T) {
	t.Parallel()

	c := &capture{}
	server := httptest.NewServer(c.handler(http.StatusOK))
	defer server.Close()

	n := NewNotifier("token", "chat", "", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	if err := n.Publish(context.Background(), sampleSet(true)); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	assert.Equal(t, len(c.paths), 1)
	assert.Equal(t, c.paths[0], "/bottoken/sendMessage")
	assert.Equal(t, c.forms[0]["chat_id"], "chat")

	text := c.forms[0]["text"]
	if !strings.Contains(text, "Reduced edition") {
		t.Fatalf("degraded banner missing: %q", text)
	}
	if !strings.Contains(text, "1. [macro_policy] SEC approves ETF (coindesk)\nhttps://c/1") {
		t.Fatalf("unexpected digest body: %q", text)
	}
	if !strings.Contains(text, "2. [kol_insight] gm (@saylor)") {
		t.Fatalf("second item missing: %q", text)
	}
}

func TestPublishFailsOnAPIError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer((&capture{}).handler(http.StatusBadRequest))
	defer server.Close()

	n := NewNotifier("token", "chat", "", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	if err := n.Publish(context.Background(), sampleSet(false)); err == nil {
		t.Fatalf("expected error on non-200 response")
	}

	if err := NewNotifier("", "", "").Publish(context.Background(), sampleSet(false)); err == nil {
		t.Fatalf("expected misconfiguration error")
	}
}

func TestReportGoesToAdminChat(t *testing.T) {
	t.Parallel()

	c := &capture{}
	server := httptest.NewServer(c.handler(http.StatusOK))
	defer server.Close()

	report := domain.HealthReport{
		RunID:    "run-1",
		Trigger:  "schedule",
		Outcome:  domain.OutcomeSkipped,
		Duration: 1500 * time.Millisecond,
		Stats:    domain.RunStats{SourcesQueried: 10, SourcesResponded: 2, ItemsConsidered: 4},
		Sources:  []domain.SourceStatus{{Source: "nitter.net", Healthy: false}, {Source: "coindesk", Healthy: true}},
	}

	silent := NewNotifier("token", "chat", "", WithBaseURL(server.URL))
	if err := silent.Report(context.Background(), report); err != nil {
		t.Fatalf("Report without admin chat should be a no-op: %v", err)
	}
	assert.Equal(t, len(c.forms), 0)

	n := NewNotifier("token", "chat", "admin", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	if err := n.Report(context.Background(), report); err != nil {
		t.Fatalf("Report error: %v", err)
	}
	assert.Equal(t, c.forms[0]["chat_id"], "admin")

	text := c.forms[0]["text"]
	if !strings.Contains(text, "Run run-1 (schedule): skipped in 1.5s") {
		t.Fatalf("unexpected header: %q", text)
	}
	if !strings.Contains(text, "sources 2/10 responded") || !strings.Contains(text, "cooling down: nitter.net") {
		t.Fatalf("unexpected summary: %q", text)
	}
}

func TestSplitMessage(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6) + "\n" + strings.Repeat("c", 20)
	chunks := splitMessage(text, 10)
	for _, chunk := range chunks {
		if len(chunk) > 10 {
			t.Fatalf("chunk over limit: %q", chunk)
		}
	}
	assert.Equal(t, strings.Join(chunks, ""), text)
	assert.Equal(t, chunks[0], "aaaaaa\n")

	assert.Equal(t, splitMessage("short", 10), []string{"short"})
}

func TestSplitMessageKeepsRunesWhole(t *testing.T) {
	t.Parallel()

	text := "比特幣創新高"
	chunks := splitMessage(text, 10)
	for _, chunk := range chunks {
		if !utf8.ValidString(chunk) || len(chunk) > 10 {
			t.Fatalf("bad chunk %q", chunk)
		}
	}
	assert.Equal(t, chunks, []string{"比特幣", "創新高"})
	assert.Equal(t, runeCut("ab比", 3), 2)
}

func TestFormatDigestIncludesSummary(t *testing.T) {
	t.Parallel()

	set := sampleSet(false)
	set.Items[0].Item.Summary = "The SEC approved a spot ether ETF on Friday."
	set.Items[1].Item.Summary = "gm"

	text := NewNotifier("", "", "").FormatDigest(set, time.Date(2026, 10, 18, 1, 0, 0, 0, time.UTC))
	if !strings.Contains(text, "(coindesk)\nThe SEC approved a spot ether ETF on Friday.\nhttps://c/1") {
		t.Fatalf("summary line missing: %q", text)
	}
	if strings.Contains(text, "gm\ngm") {
		t.Fatalf("summary equal to text should not repeat: %q", text)
	}
}
