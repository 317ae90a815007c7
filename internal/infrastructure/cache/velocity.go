package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const velocityPrefix = "velocity:"

// VelocityChecker counts checkout attempts per identity over a sliding
// window backed by a Redis sorted set. Scores are attempt timestamps; each
// check trims entries older than the window before counting.
type VelocityChecker struct {
	client      *redis.Client
	window      time.Duration
	maxAttempts int
	logger      *zap.Logger
	now         func() time.Time
}

// NewVelocityChecker creates a sliding-window velocity checker.
func NewVelocityChecker(client *redis.Client, window time.Duration, maxAttempts int, logger *zap.Logger) *VelocityChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VelocityChecker{
		client:      client,
		window:      window,
		maxAttempts: maxAttempts,
		logger:      logger,
		now:         time.Now,
	}
}

// RecordAndCheck records one attempt for the identity and reports whether
// the windowed attempt count now exceeds the limit. The attempt is always
// recorded; a checkout that exceeds the window still happened.
func (v *VelocityChecker) RecordAndCheck(ctx context.Context, identity string) (bool, error) {
	now := v.now()
	windowStart := now.Add(-v.window)
	key := velocityPrefix + identity

	pipe := v.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(windowStart.UnixNano(), 10))
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d-%d", now.UnixNano(), now.Nanosecond()%1000),
	})
	countCmd := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, v.window+time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("velocity pipeline failed: %w", err)
	}

	count := countCmd.Val()
	exceeded := count > int64(v.maxAttempts)
	if exceeded {
		v.logger.Debug("velocity window exceeded",
			zap.String("identity", identity),
			zap.Int64("count", count),
			zap.Int("max_attempts", v.maxAttempts))
	}
	return exceeded, nil
}
