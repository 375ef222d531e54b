// Package eventing coordinates cross-instance cache invalidation and
// maintenance-event publishing for a fleet of memory engines sharing one
// store (spec §5 "Shared resources"). Both side channels are optional and
// degrade to no-ops when their config is absent.
package eventing

import (
	"context"
	"crypto/tls"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"memoryengine/internal/config"
)

// ThemeInvalidation announces that a theme's semantics changed shape
// (reassignment, split, or merge) so peer engines can drop any cached
// retrieval state keyed on that theme's ID.
type ThemeInvalidation struct {
	ThemeID   string   `json:"theme_id"`
	Reason    string   `json:"reason"` // "split", "merge", "decay", "assign"
	Replaces  []string `json:"replaces,omitempty"`
	Timestamp int64    `json:"timestamp_ms"`
}

// ThemeCache coordinates theme-invalidation notifications across engine
// instances that share one MemoryStore.
type ThemeCache interface {
	Publish(ctx context.Context, ev ThemeInvalidation) error
	Subscribe(ctx context.Context) (<-chan ThemeInvalidation, func())
}

// RedisThemeCache is a Redis pub/sub backed ThemeCache.
type RedisThemeCache struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisThemeCache builds a cache when enabled; returns nil when disabled
// so callers can treat a nil *RedisThemeCache as "no cross-instance
// coordination configured".
func NewRedisThemeCache(cfg config.RedisConfig) (*RedisThemeCache, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLSInsecureSkipVerify {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &RedisThemeCache{client: client, channel: "memoryengine:theme_invalidations"}, nil
}

func (c *RedisThemeCache) Publish(ctx context.Context, ev ThemeInvalidation) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, c.channel, data).Err()
}

func (c *RedisThemeCache) Subscribe(ctx context.Context) (<-chan ThemeInvalidation, func()) {
	ch := make(chan ThemeInvalidation, 8)
	if c == nil {
		cancel := func() { close(ch) }
		return ch, cancel
	}
	sub := c.client.Subscribe(ctx, c.channel)
	go func() {
		for msg := range sub.Channel() {
			var ev ThemeInvalidation
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn().Err(err).Msg("theme_invalidation_decode_failed")
				continue
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}()
	cancel := func() {
		_ = sub.Close()
		close(ch)
	}
	return ch, cancel
}
