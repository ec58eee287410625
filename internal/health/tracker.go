// Package health tracks which scraping endpoints may currently be contacted.
package health

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

// DefaultCooldown is how long a blocked source is skipped.
const DefaultCooldown = time.Hour

// Status of a tracked source.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Outcome is the observed result of one contact attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeForbidden
	OutcomeRateLimited
	OutcomeOtherError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeForbidden:
		return "forbidden"
	case OutcomeRateLimited:
		return "rate_limited"
	default:
		return "other_error"
	}
}

// OutcomeFromStatus classifies an HTTP attempt. Transport errors and
// unexpected statuses are transient.
func OutcomeFromStatus(code int, err error) Outcome {
	switch {
	case code == http.StatusForbidden:
		return OutcomeForbidden
	case code == http.StatusTooManyRequests:
		return OutcomeRateLimited
	case err != nil:
		return OutcomeOtherError
	case code >= http.StatusOK && code < http.StatusMultipleChoices:
		return OutcomeSuccess
	default:
		return OutcomeOtherError
	}
}

// StatusError is returned by fetchers for non-2xx responses so callers can
// classify the outcome.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return "unexpected status " + http.StatusText(e.Code) + " from " + e.URL
}

// ClassifyError maps a fetch error to an outcome.
func ClassifyError(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	var se *StatusError
	if errors.As(err, &se) {
		return OutcomeFromStatus(se.Code, nil)
	}
	return OutcomeOtherError
}

// Record is the health state of one source.
type Record struct {
	Source            string
	Status            Status
	MarkedUnhealthyAt time.Time
}

// Tracker keeps one record per source endpoint for the process lifetime.
type Tracker struct {
	mu       sync.Mutex
	cooldown time.Duration
	records  map[string]*Record
	now      func() time.Time
	logger   *slog.Logger
}

// Option customises a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithLogger attaches a logger for state transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// NewTracker builds a tracker; a non-positive cooldown falls back to DefaultCooldown.
func NewTracker(cooldown time.Duration, opts ...Option) *Tracker {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	t := &Tracker{
		cooldown: cooldown,
		records:  map[string]*Record{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// IsUsable reports whether the source may be contacted now. Expired
// unhealthy marks are cleared as a side effect.
func (t *Tracker) IsUsable(source string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.record(source)
	if rec.Status == StatusHealthy {
		return true
	}

	if t.now().Sub(rec.MarkedUnhealthyAt) >= t.cooldown {
		rec.Status = StatusHealthy
		rec.MarkedUnhealthyAt = time.Time{}
		t.debug("source recovered after cooldown", "source", source)
		return true
	}
	return false
}

// ReportOutcome applies an observed attempt result to the source record.
func (t *Tracker) ReportOutcome(source string, outcome Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.record(source)
	switch outcome {
	case OutcomeSuccess:
		rec.Status = StatusHealthy
		rec.MarkedUnhealthyAt = time.Time{}
	case OutcomeForbidden, OutcomeRateLimited:
		rec.Status = StatusUnhealthy
		rec.MarkedUnhealthyAt = t.now()
		if t.logger != nil {
			t.logger.Warn("source marked unhealthy", "source", source, "outcome", outcome.String(), "cooldown", t.cooldown)
		}
	}
}

// Snapshot returns a copy of every record ordered by source.
func (t *Tracker) Snapshot() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Record, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

func (t *Tracker) record(source string) *Record {
	rec, ok := t.records[source]
	if !ok {
		rec = &Record{Source: source, Status: StatusHealthy}
		t.records[source] = rec
	}
	return rec
}

func (t *Tracker) debug(msg string, args ...any) {
	if t.logger != nil {
		t.logger.Debug(msg, args...)
	}
}
