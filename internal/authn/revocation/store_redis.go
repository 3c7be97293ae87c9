package revocation

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	id "kycnet/pkg/domain"
)

var isRevokedDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "kycnet_is_caller_revoked_duration_ms",
	Help:    "Latency of caller revocation checks in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

// Redis key prefix for revoked callers
const revokedCallerKeyPrefix = "crl:bank:"

// RedisList is a Redis-backed revocation list. This is the recommended
// implementation for distributed deployments where multiple instances need to
// share revocation state.
type RedisList struct {
	client *redis.Client
}

// NewRedisList constructs a Redis-backed revocation list.
func NewRedisList(client *redis.Client) *RedisList {
	return &RedisList{client: client}
}

// Revoke marks a bank as revoked for ttl. Uses SET with expiry so the entry
// disappears once outstanding tokens would have expired anyway.
func (l *RedisList) Revoke(ctx context.Context, bankID id.BankID, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}
	key := revokedCallerKeyPrefix + bankID.String()
	// Store "1" as a simple marker; the key existence is what matters
	return l.client.Set(ctx, key, "1", ttl).Err()
}

// IsRevoked checks if a bank is in the revocation list. Returns false when
// the key is absent (never revoked, or the entry expired).
func (l *RedisList) IsRevoked(ctx context.Context, bankID id.BankID) (bool, error) {
	start := time.Now()
	defer func() {
		isRevokedDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	key := revokedCallerKeyPrefix + bankID.String()
	_, err := l.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
