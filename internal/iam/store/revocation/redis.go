// Package revocation tracks revoked token JTIs until their natural expiry.
// The Redis store is the production choice for multi-instance deployments;
// the memory store backs tests and single-node setups.
package revocation

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	dErrors "conforma/pkg/domain-errors"
)

const revokedTokenKeyPrefix = "trl:jti:"

// RedisStore is a Redis-backed token revocation list. Entries expire with
// the token so the list never needs pruning.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// RevokeToken marks a jti revoked for ttl. Key existence is the signal; the
// value is a placeholder.
func (s *RedisStore) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return nil
	}
	if ttl <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "revocation ttl must be positive")
	}
	return s.client.Set(ctx, revokedTokenKeyPrefix+jti, "1", ttl).Err()
}

func (s *RedisStore) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	_, err := s.client.Get(ctx, revokedTokenKeyPrefix+jti).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
