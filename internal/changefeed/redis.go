// Package changefeed publishes storage change records to Redis so downstream
// consumers (drift detectors, cache invalidators) can follow graph mutations
// without polling the change log.
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"infragraph/pkg/models"
)

// RedisConfig configures Redis access for the changefeed.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	Key       string // list consumers pop from
	KeyPrefix string // per-target counter keys
	MaxLen    int64  // list is trimmed to this length, 0 keeps the default
}

// RedisFeed writes change records to a Redis list and keeps per-target
// mutation counters for periodic drift analysis.
type RedisFeed struct {
	client *redis.Client
	key    string
	prefix string
	maxLen int64
}

// NewRedisFeed connects and verifies the Redis endpoint.
func NewRedisFeed(cfg RedisConfig) (*RedisFeed, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.Key) == "" {
		cfg.Key = "infragraph:changes"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "infragraph:change_state"
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = 100000
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis changefeed: %w", err)
	}

	return &RedisFeed{
		client: client,
		key:    strings.TrimSpace(cfg.Key),
		prefix: strings.TrimSpace(cfg.KeyPrefix),
		maxLen: cfg.MaxLen,
	}, nil
}

// WriteChange publishes one change record. Implements storage.ChangeSink.
func (f *RedisFeed) WriteChange(change *models.Change) error {
	if change == nil {
		return nil
	}
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode change %s: %w", change.ID, err)
	}

	ctx := context.Background()
	pipe := f.client.Pipeline()
	pipe.RPush(ctx, f.key, payload)
	pipe.LTrim(ctx, f.key, -f.maxLen, -1)

	stateKey := f.targetKey(change.TargetID)
	pipe.HSet(ctx, stateKey,
		"target_id", change.TargetID,
		"last_kind", change.Kind,
		"last_initiator", change.InitiatorID,
		"updated_at", change.Timestamp.Unix(),
	)
	pipe.HIncrBy(ctx, stateKey, "change_count", 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish change %s: %w", change.ID, err)
	}
	return nil
}

// Close closes Redis resources.
func (f *RedisFeed) Close() error {
	if f == nil || f.client == nil {
		return nil
	}
	return f.client.Close()
}

func (f *RedisFeed) targetKey(targetID string) string {
	return f.prefix + ":target:" + targetID
}
