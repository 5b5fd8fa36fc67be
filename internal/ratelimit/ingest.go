package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/astralhq/keychain/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyIngestOwner = "usage:ingest:owner:%s"
	keyResetLock   = "usage:reset:lock:%s"

	resetLockTTL = 30 * time.Second
)

// IngestLimiter shields the usage ingest endpoint from bursty callers. It
// caps request throughput per owner at the edge; plan quotas are still
// evaluated against the relational store on every request.
type IngestLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	ownerRate  float64
	ownerBurst int
}

func NewIngestLimiter(cfg config.Config) (*IngestLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.IngestOwnerRate <= 0 || limitCfg.IngestOwnerBurst <= 0 {
		return nil, errors.New("ingest owner rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &IngestLimiter{
		enabled:    true,
		bucket:     NewTokenBucket(client),
		locker:     NewLocker(client),
		ownerRate:  limitCfg.IngestOwnerRate,
		ownerBurst: limitCfg.IngestOwnerBurst,
	}, nil
}

func (l *IngestLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowOwner admits or rejects one ingest request for the owner key. A
// disabled limiter admits everything.
func (l *IngestLimiter) AllowOwner(ctx context.Context, owner string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyIngestOwner, strings.TrimSpace(owner)), l.ownerRate, l.ownerBurst)
}

// TryLockReset serializes administrative counter resets per scope across
// instances. The returned token releases the lock.
func (l *IngestLimiter) TryLockReset(ctx context.Context, scopeKey string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, fmt.Sprintf(keyResetLock, strings.TrimSpace(scopeKey)), resetLockTTL)
}

func (l *IngestLimiter) ReleaseReset(ctx context.Context, scopeKey, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, fmt.Sprintf(keyResetLock, strings.TrimSpace(scopeKey)), token)
}
