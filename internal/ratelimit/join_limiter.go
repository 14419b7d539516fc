package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/pasar/internal/config"
)

const (
	keyJoinRequestUser = "join:request:user:%s"
	keyExpirySweepLock = "posts:expiry:sweep"

	sweepLockTTL = 10 * time.Minute
)

// JoinLimiter throttles how fast one user may file join requests and
// hands out the cluster-wide expiry sweep lock. A nil limiter (rate
// limiting disabled) allows everything.
type JoinLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	joinRate  float64
	joinBurst int
}

func NewJoinLimiter(cfg config.Config) (*JoinLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.JoinRate <= 0 || limitCfg.JoinBurst <= 0 {
		return nil, errors.New("join rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &JoinLimiter{
		enabled:   true,
		bucket:    NewTokenBucket(client),
		locker:    NewLocker(client),
		joinRate:  limitCfg.JoinRate,
		joinBurst: limitCfg.JoinBurst,
	}, nil
}

func (l *JoinLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *JoinLimiter) AllowJoin(ctx context.Context, userID string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyJoinRequestUser, strings.TrimSpace(userID)), l.joinRate, l.joinBurst)
}

// TryLockSweep claims the expiry sweep for this instance so replicas do
// not double-expire. Callers without redis always win the lock.
func (l *JoinLimiter) TryLockSweep(ctx context.Context) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, keyExpirySweepLock, sweepLockTTL)
}

func (l *JoinLimiter) ReleaseSweep(ctx context.Context, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, keyExpirySweepLock, token)
}
