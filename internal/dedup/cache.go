// Package dedup suppresses content that was already published within a
// rolling window of days.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"MorningPulse/internal/domain"
	"MorningPulse/internal/ports"
)

const (
	// DefaultThreshold is the similarity at which two texts are duplicates.
	DefaultThreshold = 0.60
	// DefaultWindowDays is how many calendar days fingerprints are kept.
	DefaultWindowDays = 7
)

// Cache holds fingerprints of recently published items, backed by a durable store.
type Cache struct {
	mu         sync.Mutex
	store      ports.FingerprintStore
	threshold  float64
	windowDays int
	loc        *time.Location
	entries    []domain.Fingerprint
	oldest     time.Time
	logger     *slog.Logger
}

// Options configure a Cache.
type Options struct {
	Threshold  float64
	WindowDays int
	Location   *time.Location
	Logger     *slog.Logger
}

// NewCache wraps store; zero options fall back to the defaults.
func NewCache(store ports.FingerprintStore, opts Options) *Cache {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = DefaultWindowDays
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Cache{
		store:      store,
		threshold:  opts.Threshold,
		windowDays: opts.WindowDays,
		loc:        opts.Location,
		logger:     opts.Logger,
	}
}

// Day truncates t to the calendar day in the cache's location.
func (c *Cache) Day(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

// calendarDay reads a stored fingerprint date as a calendar day. Stores may
// hand dates back in UTC, so the date is taken as written, not converted.
func (c *Cache) calendarDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

// cutoff is the oldest calendar day still inside the window.
func (c *Cache) cutoff(now time.Time) time.Time {
	return c.Day(now).AddDate(0, 0, -(c.windowDays - 1))
}

// Load replaces the in-memory entries with the store's non-expired fingerprints.
func (c *Cache) Load(ctx context.Context, now time.Time) error {
	cutoff := c.cutoff(now)
	entries, err := c.store.Load(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("load fingerprints: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = c.entries[:0]
	for _, fp := range entries {
		if !c.calendarDay(fp.PublishedDate).Before(cutoff) {
			c.entries = append(c.entries, fp)
		}
	}
	c.oldest = cutoff
	c.debug("fingerprints loaded", "count", len(c.entries), "since", cutoff.Format(time.DateOnly))
	return nil
}

// PurgeExpired drops fingerprints older than the window from memory and store.
func (c *Cache) PurgeExpired(ctx context.Context, now time.Time) error {
	cutoff := c.cutoff(now)

	c.mu.Lock()
	kept := c.entries[:0]
	purged := 0
	for _, fp := range c.entries {
		if c.calendarDay(fp.PublishedDate).Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, fp)
	}
	c.entries = kept
	c.oldest = cutoff
	c.mu.Unlock()

	if err := c.store.DeleteBefore(ctx, cutoff); err != nil {
		return fmt.Errorf("purge fingerprints: %w", err)
	}
	c.debug("fingerprints purged", "purged", purged, "cutoff", cutoff.Format(time.DateOnly))
	return nil
}

// IsDuplicate reports whether text matches any non-expired fingerprint.
func (c *Cache) IsDuplicate(text string) bool {
	keywords := Keywords(text)
	if len(keywords) == 0 {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, fp := range c.entries {
		if !c.oldest.IsZero() && c.calendarDay(fp.PublishedDate).Before(c.oldest) {
			continue
		}
		if sim := Similarity(keywords, fp.Keywords); sim >= c.threshold {
			c.debug("duplicate detected", "similarity", sim, "published", fp.PublishedDate.Format(time.DateOnly))
			return true
		}
	}
	return false
}

// RecordPublished stores the fingerprint of an item that was actually published.
func (c *Cache) RecordPublished(ctx context.Context, text string, date time.Time) error {
	fp := domain.Fingerprint{
		Keywords:      Keywords(text),
		PublishedDate: c.Day(date),
		Text:          text,
	}
	if err := c.store.Append(ctx, fp); err != nil {
		return fmt.Errorf("append fingerprint: %w", err)
	}

	c.mu.Lock()
	c.entries = append(c.entries, fp)
	c.mu.Unlock()
	return nil
}

// Len returns the number of fingerprints held in memory.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
