package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/marketsafe/checkout-risk-backend/internal/domain/risk"
)

const (
	blacklistSetKey  = "reputation:blacklist"
	suspiciousSetKey = "reputation:suspicious"
)

// ReputationChecker resolves IP reputation against Redis sets maintained by
// the abuse pipeline. An address on neither list is clean; lookup failures
// propagate so the extractor can record the signal as absent.
type ReputationChecker struct {
	client *redis.Client
	logger *zap.Logger
}

// NewReputationChecker creates a Redis-backed reputation checker.
func NewReputationChecker(client *redis.Client, logger *zap.Logger) *ReputationChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReputationChecker{client: client, logger: logger}
}

// Lookup classifies the address. Blacklist membership wins over suspicious.
func (c *ReputationChecker) Lookup(ctx context.Context, ip string) (risk.IPReputation, error) {
	pipe := c.client.Pipeline()
	blacklisted := pipe.SIsMember(ctx, blacklistSetKey, ip)
	suspicious := pipe.SIsMember(ctx, suspiciousSetKey, ip)

	if _, err := pipe.Exec(ctx); err != nil {
		return risk.IPReputationUnknown, fmt.Errorf("reputation lookup failed: %w", err)
	}

	switch {
	case blacklisted.Val():
		return risk.IPReputationBlacklisted, nil
	case suspicious.Val():
		return risk.IPReputationSuspicious, nil
	default:
		return risk.IPReputationClean, nil
	}
}

// MarkBlacklisted adds an address to the blacklist set. Used by operational
// tooling and tests.
func (c *ReputationChecker) MarkBlacklisted(ctx context.Context, ip string) error {
	return c.client.SAdd(ctx, blacklistSetKey, ip).Err()
}

// MarkSuspicious adds an address to the suspicious set.
func (c *ReputationChecker) MarkSuspicious(ctx context.Context, ip string) error {
	return c.client.SAdd(ctx, suspiciousSetKey, ip).Err()
}

// reputationSource is the lookup surface the layered checker composes.
type reputationSource interface {
	Lookup(ctx context.Context, ip string) (risk.IPReputation, error)
}

// StaticLists is an in-process reputation source seeded from configuration.
// It never errors, which makes it a usable last layer.
type StaticLists struct {
	blacklisted map[string]struct{}
	suspicious  map[string]struct{}
}

// NewStaticLists builds a static reputation source from address lists.
func NewStaticLists(blacklisted, suspicious []string) *StaticLists {
	s := &StaticLists{
		blacklisted: make(map[string]struct{}, len(blacklisted)),
		suspicious:  make(map[string]struct{}, len(suspicious)),
	}
	for _, ip := range blacklisted {
		s.blacklisted[ip] = struct{}{}
	}
	for _, ip := range suspicious {
		s.suspicious[ip] = struct{}{}
	}
	return s
}

// Lookup classifies against the seeded lists. Blacklist wins.
func (s *StaticLists) Lookup(_ context.Context, ip string) (risk.IPReputation, error) {
	if _, ok := s.blacklisted[ip]; ok {
		return risk.IPReputationBlacklisted, nil
	}
	if _, ok := s.suspicious[ip]; ok {
		return risk.IPReputationSuspicious, nil
	}
	return risk.IPReputationClean, nil
}

// LayeredReputationChecker consults the primary source and falls back to the
// secondary when the primary fails, so a Redis outage degrades to the static
// lists instead of an absent signal.
type LayeredReputationChecker struct {
	primary  reputationSource
	fallback reputationSource
	logger   *zap.Logger
}

// NewLayeredReputationChecker composes a primary and fallback source.
func NewLayeredReputationChecker(primary, fallback reputationSource, logger *zap.Logger) *LayeredReputationChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LayeredReputationChecker{primary: primary, fallback: fallback, logger: logger}
}

// Lookup resolves through the layers.
func (l *LayeredReputationChecker) Lookup(ctx context.Context, ip string) (risk.IPReputation, error) {
	reputation, err := l.primary.Lookup(ctx, ip)
	if err == nil {
		return reputation, nil
	}
	l.logger.Warn("primary reputation lookup failed, using static lists", zap.Error(err))
	return l.fallback.Lookup(ctx, ip)
}
