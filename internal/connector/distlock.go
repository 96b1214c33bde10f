package connector

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisLock is the optional cross-process complement to the in-process
// active-ingestion set described in SPEC_FULL.md §4.4: it records in a
// shared Redis which instance holds a topic's ingestion. Its absence or
// failure never blocks ingestion — Supervisor.run treats a failed
// TryAcquire, whether another instance holds the lock or Redis is
// unreachable, as "proceed anyway, log a warning", so it does not stop a
// second instance from opening a socket for the same topic.
//
// Grounded on sawpanic-cryptorun's data/cache/cache.go NewAuto-if-addr-set
// optional-Redis pattern.
type RedisLock struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewRedisLock constructs a RedisLock against addr, or returns nil if addr
// is empty — callers should treat a nil *RedisLock as "disabled" and skip
// installing it via connector.WithIngestionLock.
func NewRedisLock(addr string, ttl time.Duration, log zerolog.Logger) *RedisLock {
	if addr == "" {
		return nil
	}
	return &RedisLock{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
		log:    log.With().Str("component", "distlock").Logger(),
	}
}

// TryAcquire attempts a SETNX-style lock for topic. Returns false both when
// another instance holds the lock and when Redis itself is unreachable —
// the caller's fallback behavior is identical either way.
func (l *RedisLock) TryAcquire(ctx context.Context, topic string) bool {
	ok, err := l.client.SetNX(ctx, lockKey(topic), "1", l.ttl).Result()
	if err != nil {
		l.log.Warn().Err(err).Str("topic", topic).Msg("redis unreachable, ingestion lock disabled for this topic")
		return false
	}
	return ok
}

// Release drops the lock for topic. Best-effort; errors are logged, not
// propagated, since a stale lock simply expires via ttl.
func (l *RedisLock) Release(ctx context.Context, topic string) {
	if err := l.client.Del(ctx, lockKey(topic)).Err(); err != nil {
		l.log.Warn().Err(err).Str("topic", topic).Msg("failed to release ingestion lock")
	}
}

func lockKey(topic string) string {
	return "marketfeed:ingestion:" + topic
}
