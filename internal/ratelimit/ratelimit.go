// Package ratelimit caps how many messages a user may send per window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lalith-99/panelchat/internal/observ"
)

// Limiter decides whether a user may send another message now.
type Limiter interface {
	Allow(ctx context.Context, userID uuid.UUID) bool
}

// Unlimited allows everything. Used when Redis is not configured.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, uuid.UUID) bool { return true }

// RedisLimiter is a sliding-window limiter over a sorted set per user.
// The window is shared by every server instance using the same Redis, so a
// user cannot multiply their budget by opening more connections.
//
// It fails open: if Redis is unreachable, sends are allowed and the error
// is counted, since chat availability matters more than the cap.
type RedisLimiter struct {
	client  *redis.Client
	limit   int
	window  time.Duration
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration, logger *zap.Logger) *RedisLimiter {
	return &RedisLimiter{
		client:  client,
		limit:   limit,
		window:  window,
		timeout: 250 * time.Millisecond,
		logger:  logger,
		now:     time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, userID uuid.UUID) bool {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	now := l.now()
	key := "ratelimit:send:" + userID.String()
	windowStart := now.Add(-l.window)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", windowStart.UnixMilli()))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, key, l.window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		observ.RateLimiterErrors.Inc()
		l.logger.Warn("rate limiter unavailable, allowing send",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		return true
	}

	// The count is taken before this attempt is added, so the limit-th
	// message in a window is still allowed.
	return countCmd.Val() < int64(l.limit)
}
