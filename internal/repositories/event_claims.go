package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const eventClaimPrefix = "event:claim:"

// RedisEventClaimRepository serializes processing of one provider event
// across workers and replicas.
type RedisEventClaimRepository struct {
	client *redis.Client
}

func NewRedisEventClaimRepository(client *redis.Client) *RedisEventClaimRepository {
	return &RedisEventClaimRepository{client: client}
}

// Claim returns false when another worker holds the event.
func (r *RedisEventClaimRepository) Claim(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, eventClaimPrefix+eventID, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim event: %w", err)
	}
	return ok, nil
}

func (r *RedisEventClaimRepository) Release(ctx context.Context, eventID string) error {
	if err := r.client.Del(ctx, eventClaimPrefix+eventID).Err(); err != nil {
		return fmt.Errorf("failed to release event claim: %w", err)
	}
	return nil
}
