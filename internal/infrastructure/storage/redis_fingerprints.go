package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"MorningPulse/internal/domain"
	"MorningPulse/internal/ports"
)

// RedisFingerprints keeps one list of JSON fingerprints per calendar day.
// Keys expire on their own once they leave the retention window.
type RedisFingerprints struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

var _ ports.FingerprintStore = (*RedisFingerprints)(nil)

// ConnectRedis parses url (falling back to a bare address) and pings the server.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		opt = &redis.Options{Addr: url}
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewRedisFingerprints wires a client; retention bounds key lifetime.
func NewRedisFingerprints(client *redis.Client, prefix string, retention time.Duration) *RedisFingerprints {
	if prefix == "" {
		prefix = "morningpulse:fingerprints"
	}
	if retention <= 0 {
		retention = 8 * 24 * time.Hour
	}
	return &RedisFingerprints{client: client, prefix: prefix, retention: retention}
}

// Load reads every day key on or after since.
func (r *RedisFingerprints) Load(ctx context.Context, since time.Time) ([]domain.Fingerprint, error) {
	keys, err := r.dayKeys(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := dateOnly(since)
	var result []domain.Fingerprint
	for _, k := range keys {
		if k.day < cutoff {
			continue
		}
		values, err := r.client.LRange(ctx, k.key, 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", k.key, err)
		}
		for _, raw := range values {
			var fp domain.Fingerprint
			if err := json.Unmarshal([]byte(raw), &fp); err != nil {
				return nil, fmt.Errorf("decode fingerprint in %s: %w", k.key, err)
			}
			result = append(result, fp)
		}
	}
	return result, nil
}

// Append pushes a fingerprint onto its day list and refreshes the expiry.
func (r *RedisFingerprints) Append(ctx context.Context, fp domain.Fingerprint) error {
	data, err := json.Marshal(fp)
	if err != nil {
		return fmt.Errorf("encode fingerprint: %w", err)
	}

	key := r.keyFor(fp.PublishedDate)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, r.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push fingerprint: %w", err)
	}
	return nil
}

// DeleteBefore drops the day keys older than day.
func (r *RedisFingerprints) DeleteBefore(ctx context.Context, day time.Time) error {
	keys, err := r.dayKeys(ctx)
	if err != nil {
		return err
	}

	cutoff := dateOnly(day)
	var stale []string
	for _, k := range keys {
		if k.day < cutoff {
			stale = append(stale, k.key)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, stale...).Err(); err != nil {
		return fmt.Errorf("delete fingerprints: %w", err)
	}
	return nil
}

type dayKey struct {
	key string
	day string
}

func (r *RedisFingerprints) dayKeys(ctx context.Context) ([]dayKey, error) {
	var keys []dayKey
	iter := r.client.Scan(ctx, 0, r.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		if day, ok := r.dayFromKey(iter.Val()); ok {
			keys = append(keys, dayKey{key: iter.Val(), day: day})
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan fingerprint keys: %w", err)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].day < keys[j].day })
	return keys, nil
}

func (r *RedisFingerprints) keyFor(day time.Time) string {
	return r.prefix + ":" + dateOnly(day)
}

func (r *RedisFingerprints) dayFromKey(key string) (string, bool) {
	day, ok := strings.CutPrefix(key, r.prefix+":")
	if !ok {
		return "", false
	}
	if _, err := time.Parse(time.DateOnly, day); err != nil {
		return "", false
	}
	return day, true
}
