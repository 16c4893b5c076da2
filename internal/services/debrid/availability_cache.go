package debrid

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Zerr0-C00L/rdfetch/internal/metrics"
)

const availabilityCachePrefix = "rdfetch:ia:"

// AvailabilityBackend stores serialized availability entries by hash.
type AvailabilityBackend interface {
	GetMany(ctx context.Context, keys []string) (map[string][]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisAvailabilityBackend stores availability entries in Redis.
type RedisAvailabilityBackend struct {
	client *redis.Client
}

func NewRedisAvailabilityBackend(client *redis.Client) *RedisAvailabilityBackend {
	return &RedisAvailabilityBackend{client: client}
}

func (r *RedisAvailabilityBackend) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = availabilityCachePrefix + key
	}
	values, err := r.client.MGet(ctx, prefixed...).Result()
	if err != nil {
		return nil, err
	}
	for i, value := range values {
		if s, ok := value.(string); ok {
			out[keys[i]] = []byte(s)
		}
	}
	return out, nil
}

func (r *RedisAvailabilityBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, availabilityCachePrefix+key, value, ttl).Err()
}

func (r *RedisAvailabilityBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

type availabilityEntry struct {
	Cached bool               `json:"cached"`
	Record AvailabilityRecord `json:"record"`
}

// CachedAvailability decorates a Client so instant availability lookups are
// served from a shared cache. All other calls go straight to the wrapped client.
type CachedAvailability struct {
	Client
	backend AvailabilityBackend
	ttl     time.Duration
	logger  *slog.Logger
}

// NewCachedAvailability wraps inner. Uncached hashes are remembered for a fifth of ttl.
func NewCachedAvailability(inner Client, backend AvailabilityBackend, ttl time.Duration, logger *slog.Logger) *CachedAvailability {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &CachedAvailability{Client: inner, backend: backend, ttl: ttl, logger: logger}
}

func (c *CachedAvailability) QueryAvailability(ctx context.Context, hashes []string) (map[string]AvailabilityRecord, error) {
	keys := make([]string, 0, len(hashes))
	seen := make(map[string]struct{}, len(hashes))
	for _, hash := range hashes {
		key := strings.ToLower(strings.TrimSpace(hash))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	hits, err := c.backend.GetMany(ctx, keys)
	if err != nil {
		if IsCancelled(err) || ctx.Err() != nil {
			return nil, Classify("check availability cache", err)
		}
		c.logger.Warn("availability cache read failed", "error", err)
		return c.Client.QueryAvailability(ctx, keys)
	}

	records := make(map[string]AvailabilityRecord, len(keys))
	var misses []string
	for _, key := range keys {
		raw, ok := hits[key]
		if ok {
			var entry availabilityEntry
			if err := json.Unmarshal(raw, &entry); err == nil {
				if entry.Cached {
					records[key] = entry.Record
				}
				continue
			}
		}
		misses = append(misses, key)
	}
	metrics.AvailabilityCacheHitsTotal.Add(float64(len(keys) - len(misses)))
	metrics.AvailabilityCacheMissesTotal.Add(float64(len(misses)))

	if len(misses) == 0 {
		return records, nil
	}

	fresh, err := c.Client.QueryAvailability(ctx, misses)
	if err != nil {
		return nil, err
	}

	for _, key := range misses {
		record, cached := fresh[key]
		ttl := c.ttl
		if !cached {
			ttl = c.ttl / 5
		}
		data, err := json.Marshal(availabilityEntry{Cached: cached, Record: record})
		if err != nil {
			continue
		}
		if err := c.backend.Set(ctx, key, data, ttl); err != nil {
			c.logger.Warn("availability cache write failed", "hash", key, "error", err)
		}
		if cached {
			records[key] = record
		}
	}
	return records, nil
}
