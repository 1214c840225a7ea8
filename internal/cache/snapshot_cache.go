// Package cache puts a Redis read-through layer in front of the snapshot store.
// A day's snapshot never changes once written, so entries only expire by TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/soaringjerry/Sigmo/internal/questionnaire"
)

const (
	keyPrefix  = "sigmo:snapshot"
	DefaultTTL = 36 * time.Hour
)

// KV is the subset of redis.Cmdable the cache uses.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// ConnectRedis creates a Redis client from a URL and checks it answers.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

type SnapshotCache struct {
	questionnaire.SnapshotStore
	kv     KV
	ttl    time.Duration
	logger *zap.Logger
}

// NewSnapshotCache wraps inner. Redis failures are logged and the call falls
// through to inner, so the cache can never make a request fail.
func NewSnapshotCache(inner questionnaire.SnapshotStore, kv KV, ttl time.Duration, logger *zap.Logger) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotCache{SnapshotStore: inner, kv: kv, ttl: ttl, logger: logger}
}

func snapshotKey(userID, protocolID string, day int) string {
	return fmt.Sprintf("%s:%s:%s:%d", keyPrefix, protocolID, userID, day)
}

func (c *SnapshotCache) GetSnapshot(ctx context.Context, userID, protocolID string, day int) (*questionnaire.Snapshot, error) {
	key := snapshotKey(userID, protocolID, day)
	raw, err := c.kv.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var sn questionnaire.Snapshot
		jerr := json.Unmarshal(raw, &sn)
		if jerr == nil {
			return &sn, nil
		}
		c.logger.Warn("discarding unreadable cached snapshot", zap.String("key", key), zap.Error(jerr))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("snapshot cache read failed", zap.String("key", key), zap.Error(err))
	}

	sn, err := c.SnapshotStore.GetSnapshot(ctx, userID, protocolID, day)
	if err != nil {
		return nil, err
	}
	c.put(ctx, sn)
	return sn, nil
}

func (c *SnapshotCache) CreateSnapshotIfAbsent(ctx context.Context, sn *questionnaire.Snapshot) (*questionnaire.Snapshot, bool, error) {
	stored, created, err := c.SnapshotStore.CreateSnapshotIfAbsent(ctx, sn)
	if err != nil {
		return nil, false, err
	}
	c.put(ctx, stored)
	return stored, created, nil
}

func (c *SnapshotCache) put(ctx context.Context, sn *questionnaire.Snapshot) {
	data, err := json.Marshal(sn)
	if err != nil {
		c.logger.Warn("encode snapshot for cache", zap.Error(err))
		return
	}
	key := snapshotKey(sn.UserID, sn.ProtocolID, sn.TestDay)
	if err := c.kv.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("snapshot cache write failed", zap.String("key", key), zap.Error(err))
	}
}
