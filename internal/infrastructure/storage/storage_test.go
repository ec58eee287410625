package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/lib/pq"

	"MorningPulse/internal/domain"
)

var today = time.Date(2026, time.October, 18, 0, 0, 0, 0, time.UTC)

func TestPostgresQueries(t *testing.T) {
	t.Parallel()

	repo, err := NewPostgresFingerprints(nil, "")
	if err != nil {
		t.Fatalf("NewPostgresFingerprints error: %v", err)
	}

	query, args, err := repo.loadQuery(today.AddDate(0, 0, -6))
	assert.Equal(t, err, nil)
	assert.Equal(t, query, "SELECT keywords, published_date, text FROM published_fingerprints WHERE published_date >= $1 ORDER BY published_date, id")
	assert.Equal(t, args, []any{"2026-10-12"})

	query, args, err = repo.appendQuery(domain.Fingerprint{Keywords: []string{"btc", "etf"}, PublishedDate: today, Text: "BTC ETF"})
	assert.Equal(t, err, nil)
	assert.Equal(t, query, "INSERT INTO published_fingerprints (keywords,published_date,text) VALUES ($1,$2,$3)")
	assert.Equal(t, args[0], pq.StringArray{"btc", "etf"})
	assert.Equal(t, args[1], "2026-10-18")

	query, args, err = repo.deleteQuery(today)
	assert.Equal(t, err, nil)
	assert.Equal(t, query, "DELETE FROM published_fingerprints WHERE published_date < $1")
	assert.Equal(t, args, []any{"2026-10-18"})
}

func TestPostgresRejectsBadTable(t *testing.T) {
	t.Parallel()

	if _, err := NewPostgresFingerprints(nil, "fingerprints; DROP TABLE x"); err == nil {
		t.Fatalf("expected invalid table name error")
	}
	if _, err := NewPostgresFingerprints(nil, "digest.fingerprints"); err != nil {
		t.Fatalf("schema-qualified table should be accepted: %v", err)
	}
}

func TestPostgresNilDBIsNoop(t *testing.T) {
	t.Parallel()

	repo, _ := NewPostgresFingerprints(nil, "")
	ctx := context.Background()
	if err := repo.Append(ctx, domain.Fingerprint{PublishedDate: today}); err != nil {
		t.Fatalf("Append error: %v", err)
	}
	fps, err := repo.Load(ctx, today)
	if err != nil || fps != nil {
		t.Fatalf("Load = %v, %v", fps, err)
	}
}

func TestRedisKeys(t *testing.T) {
	t.Parallel()

	store := NewRedisFingerprints(nil, "mp:fp", 0)
	assert.Equal(t, store.keyFor(today), "mp:fp:2026-10-18")

	day, ok := store.dayFromKey("mp:fp:2026-10-12")
	assert.Equal(t, ok, true)
	assert.Equal(t, day, "2026-10-12")

	_, ok = store.dayFromKey("mp:fp:garbage")
	assert.Equal(t, ok, false)
	_, ok = store.dayFromKey("other:2026-10-12")
	assert.Equal(t, ok, false)
	assert.Equal(t, store.retention, 8*24*time.Hour)
}

func TestFileFingerprintsRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache", "fingerprints.json")
	ctx := context.Background()

	store := NewFileFingerprints(path)
	old := domain.Fingerprint{Keywords: []string{"eth", "upgrade"}, PublishedDate: today.AddDate(0, 0, -8)}
	fresh := domain.Fingerprint{Keywords: []string{"btc", "ath"}, PublishedDate: today.AddDate(0, 0, -1), Text: "BTC ATH"}

	if err := store.Append(ctx, old); err != nil {
		t.Fatalf("Append error: %v", err)
	}
	if err := store.Append(ctx, fresh); err != nil {
		t.Fatalf("Append error: %v", err)
	}

	reopened := NewFileFingerprints(path)
	all, err := reopened.Load(ctx, today.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	assert.Equal(t, len(all), 2)

	recent, err := reopened.Load(ctx, today.AddDate(0, 0, -6))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	assert.Equal(t, len(recent), 1)
	assert.Equal(t, recent[0].Text, "BTC ATH")

	if err := reopened.DeleteBefore(ctx, today.AddDate(0, 0, -6)); err != nil {
		t.Fatalf("DeleteBefore error: %v", err)
	}
	afterPurge, err := NewFileFingerprints(path).Load(ctx, today.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	assert.Equal(t, len(afterPurge), 1)

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file should not linger: %v", err)
	}
}

func TestFileFingerprintsMissingFile(t *testing.T) {
	t.Parallel()

	store := NewFileFingerprints(filepath.Join(t.TempDir(), "absent.json"))
	fps, err := store.Load(context.Background(), today)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	assert.Equal(t, len(fps), 0)
}
