package dedup

import (
	"context"
	"testing"
	"time"

	"MorningPulse/internal/domain"
)

type memoryStore struct {
	fps     []domain.Fingerprint
	deleted []time.Time
}

func (m *memoryStore) Load(_ context.Context, since time.Time) ([]domain.Fingerprint, error) {
	var out []domain.Fingerprint
	for _, fp := range m.fps {
		if !fp.PublishedDate.Before(since) {
			out = append(out, fp)
		}
	}
	return out, nil
}

func (m *memoryStore) Append(_ context.Context, fp domain.Fingerprint) error {
	m.fps = append(m.fps, fp)
	return nil
}

func (m *memoryStore) DeleteBefore(_ context.Context, day time.Time) error {
	m.deleted = append(m.deleted, day)
	kept := m.fps[:0]
	for _, fp := range m.fps {
		if !fp.PublishedDate.Before(day) {
			kept = append(kept, fp)
		}
	}
	m.fps = kept
	return nil
}

func TestParaphraseIsDuplicate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.October, 18, 9, 0, 0, 0, time.UTC)
	store := &memoryStore{}
	cache := NewCache(store, Options{})
	ctx := context.Background()

	if err := cache.RecordPublished(ctx, "Bitcoin reaches new all-time high above $100,000", now.AddDate(0, 0, -1)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := cache.PurgeExpired(ctx, now); err != nil {
		t.Fatalf("purge: %v", err)
	}

	if !cache.IsDuplicate("BTC hits record high surpassing $100k level") {
		t.Fatalf("paraphrased headline should be flagged as duplicate")
	}
	if cache.IsDuplicate("Solana validators ship Firedancer client to mainnet") {
		t.Fatalf("unrelated headline should not be a duplicate")
	}
}

func TestLowOverlapIsNotDuplicate(t *testing.T) {
	t.Parallel()

	a := "Ethereum developers schedule Pectra upgrade"
	b := "Ethereum staking outflows worry analysts"
	if got := TextSimilarity(a, b); got >= DefaultThreshold {
		t.Fatalf("similarity %.2f should stay under threshold", got)
	}

	cache := NewCache(&memoryStore{}, Options{})
	if err := cache.RecordPublished(context.Background(), a, time.Now()); err != nil {
		t.Fatalf("record: %v", err)
	}
	if cache.IsDuplicate(b) {
		t.Fatalf("1 of 5 shared keywords must not be a duplicate")
	}
}

func TestWindowing(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.October, 18, 9, 0, 0, 0, time.UTC)
	text := "SEC approves spot Ether ETF applications from BlackRock"
	store := &memoryStore{fps: []domain.Fingerprint{
		{Keywords: Keywords(text), PublishedDate: now.AddDate(0, 0, -8)},
	}}
	cache := NewCache(store, Options{WindowDays: 7})
	ctx := context.Background()

	if err := cache.Load(ctx, now); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cache.PurgeExpired(ctx, now); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if cache.IsDuplicate(text) {
		t.Fatalf("fingerprint from 8 days ago must not match")
	}
	if len(store.fps) != 0 {
		t.Fatalf("expired fingerprint should be deleted from store, have %d", len(store.fps))
	}

	if err := cache.RecordPublished(ctx, text, now.AddDate(0, 0, -6)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := cache.PurgeExpired(ctx, now); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if !cache.IsDuplicate(text) {
		t.Fatalf("fingerprint from 6 days ago must still match")
	}
}

func TestLoadRestoresStore(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.October, 18, 9, 0, 0, 0, time.UTC)
	store := &memoryStore{}
	first := NewCache(store, Options{})
	if err := first.RecordPublished(context.Background(), "Whale moves 10,000 BTC to Coinbase", now); err != nil {
		t.Fatalf("record: %v", err)
	}

	second := NewCache(store, Options{})
	if err := second.Load(context.Background(), now.Add(time.Hour)); err != nil {
		t.Fatalf("load: %v", err)
	}
	if second.Len() != 1 {
		t.Fatalf("expected 1 fingerprint after restart, got %d", second.Len())
	}
	if !second.IsDuplicate("Whale transfers 10,000 Bitcoin to Coinbase") {
		t.Fatalf("restored fingerprint should match")
	}
}
