package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// MarkerStore keeps the last-acted signal candle time in a Redis key.
// Useful when several bot instances share one broker account and must
// agree on which candle has fired.
type MarkerStore struct {
	client *goredis.Client
	key    string
}

// MarkerConfig configures the Redis marker store.
type MarkerConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewMarkerStore connects to Redis and pings it.
func NewMarkerStore(cfg MarkerConfig, instrument string) (*MarkerStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] marker store connected to %s", cfg.Addr)
	return &MarkerStore{
		client: client,
		key:    "pptrader:marker:" + instrument,
	}, nil
}

// Load returns the stored marker.
func (s *MarkerStore) Load(ctx context.Context) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, s.key).Result()
	if err == goredis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis load marker: %w", err)
	}
	ts, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis marker parse %q: %w", val, err)
	}
	return ts.UTC(), true, nil
}

// Save overwrites the marker. No TTL: the marker must survive until the
// next genuine signal, however long that takes.
func (s *MarkerStore) Save(ctx context.Context, ts time.Time) error {
	if err := s.client.Set(ctx, s.key, ts.UTC().Format(time.RFC3339), 0).Err(); err != nil {
		return fmt.Errorf("redis save marker: %w", err)
	}
	return nil
}

// Clear removes the marker key.
func (s *MarkerStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis clear marker: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *MarkerStore) Close() error { return s.client.Close() }
