package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"MorningPulse/internal/domain"
	"MorningPulse/internal/ports"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	maxMessageLen  = 4096
)

// Notifier sends digests to a Telegram chat via bot API and health
// summaries to an optional admin chat.
type Notifier struct {
	botToken    string
	chatID      string
	adminChatID string
	baseURL     string
	loc         *time.Location
	client      *http.Client
}

var (
	_ ports.Publisher      = (*Notifier)(nil)
	_ ports.HealthReporter = (*Notifier)(nil)
)

// Option customises a Notifier.
type Option func(*Notifier)

// WithBaseURL points the notifier at another Bot API host.
func WithBaseURL(base string) Option {
	return func(n *Notifier) { n.baseURL = strings.TrimSuffix(base, "/") }
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(client *http.Client) Option {
	return func(n *Notifier) { n.client = client }
}

// WithLocation sets the timezone used for the digest date.
func WithLocation(loc *time.Location) Option {
	return func(n *Notifier) { n.loc = loc }
}

// NewNotifier registers bot token and chat identifiers.
func NewNotifier(botToken, chatID, adminChatID string, opts ...Option) *Notifier {
	n := &Notifier{
		botToken:    botToken,
		chatID:      chatID,
		adminChatID: adminChatID,
		baseURL:     defaultBaseURL,
		loc:         time.UTC,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Publish posts the digest as plain text, split to fit the message limit.
func (n *Notifier) Publish(ctx context.Context, set domain.PublishSet) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	for _, chunk := range splitMessage(n.FormatDigest(set, time.Now()), maxMessageLen) {
		if err := n.send(ctx, n.chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

// Report posts a short run summary to the admin chat, if one is configured.
func (n *Notifier) Report(ctx context.Context, report domain.HealthReport) error {
	if n.adminChatID == "" {
		return nil
	}
	if n.botToken == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}
	return n.send(ctx, n.adminChatID, FormatReport(report))
}

// FormatDigest renders one line per item under a dated header.
func (n *Notifier) FormatDigest(set domain.PublishSet, at time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Morning Pulse · %s\n", at.In(n.loc).Format("2006-01-02"))
	if set.Degraded {
		b.WriteString("Reduced edition: few sources responded today.\n")
	}
	for i, item := range set.Items {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%d. [%s] %s", i+1, item.Item.Category, item.Item.Text)
		if item.Item.SourceName != "" {
			fmt.Fprintf(&b, " (%s)", item.Item.SourceName)
		}
		if item.Item.Summary != "" && item.Item.Summary != item.Item.Text {
			fmt.Fprintf(&b, "\n%s", item.Item.Summary)
		}
		if item.Item.SourceURL != "" {
			fmt.Fprintf(&b, "\n%s", item.Item.SourceURL)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatReport renders the admin summary of a run.
func FormatReport(r domain.HealthReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (%s): %s in %s\n", r.RunID, r.Trigger, r.Outcome, r.Duration.Round(time.Millisecond))
	s := r.Stats
	fmt.Fprintf(&b, "sources %d/%d responded, %d considered, %d selected\n",
		s.SourcesResponded, s.SourcesQueried, s.ItemsConsidered, s.Selected)
	fmt.Fprintf(&b, "rejected: %d malformed, %d below threshold, %d duplicate",
		s.RejectedMalformed, s.RejectedThreshold, s.RejectedDuplicate)

	var down []string
	for _, src := range r.Sources {
		if !src.Healthy {
			down = append(down, src.Source)
		}
	}
	if len(down) > 0 {
		fmt.Fprintf(&b, "\ncooling down: %s", strings.Join(down, ", "))
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "\nerror: %s", r.Error)
	}
	return b.String()
}

func (n *Notifier) send(ctx context.Context, chatID, text string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	form := url.Values{}
	form.Set("chat_id", chatID)
	form.Set("text", text)
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	return nil
}

// splitMessage cuts text at line boundaries into chunks of at most limit bytes.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
	)
	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
			cut := runeCut(line, limit)
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if current.Len()+len(line) > limit {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// runeCut returns the largest index <= limit that does not split a rune.
func runeCut(s string, limit int) int {
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		_, size := utf8.DecodeRuneInString(s)
		return size
	}
	return cut
}
