package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/orgaccess/internal/config"
	"go.uber.org/zap"
)

const (
	EndpointAccept = "accept"
	EndpointInvite = "invite"

	keyPrefix = "orgaccess:ratelimit:"
)

// Rule is a per-minute allowance with an equal burst.
type Rule struct {
	PerMinute int
}

func (r Rule) rate() float64 {
	return float64(r.PerMinute) / 60
}

// Limiter throttles invite issuance and redemption per caller credential.
// A nil Limiter allows everything.
type Limiter struct {
	bucket *TokenBucket
	rules  map[string]Rule
	log    *zap.Logger
}

func NewRedisClient(cfg config.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
}

func NewLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) *Limiter {
	if client == nil {
		log.Info("rate limiting disabled: REDIS_ADDR not set")
		return nil
	}
	return &Limiter{
		bucket: NewTokenBucket(client),
		rules: map[string]Rule{
			EndpointAccept: {PerMinute: cfg.RateLimit.AcceptPerMinute},
			EndpointInvite: {PerMinute: cfg.RateLimit.InvitePerMinute},
		},
		log: log.Named("ratelimit"),
	}
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow consumes one token for subject on endpoint. Limiter failures allow
// the request and are logged.
func (l *Limiter) Allow(ctx context.Context, endpoint, subject string) (*RateLimitResult, bool) {
	if !l.Enabled() {
		return nil, true
	}
	rule, ok := l.rules[endpoint]
	if !ok || rule.PerMinute <= 0 {
		return nil, true
	}

	result, err := l.bucket.Allow(ctx, Key(endpoint, subject), rule.rate(), rule.PerMinute)
	if err != nil {
		l.log.Warn("rate limiter unavailable", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, true
	}
	return result, result.Allowed
}

// Key hashes the subject so raw credentials never reach Redis.
func Key(endpoint, subject string) string {
	sum := sha256.Sum256([]byte(subject))
	return keyPrefix + endpoint + ":" + hex.EncodeToString(sum[:16])
}
