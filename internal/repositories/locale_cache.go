package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	localeKeyPrefix = "ledger:locale:"
	localeTTL       = 24 * time.Hour
)

// RedisLocaleCache remembers the detected tax locale per realm so company
// info is not queried for every event.
type RedisLocaleCache struct {
	client *redis.Client
}

func NewRedisLocaleCache(client *redis.Client) *RedisLocaleCache {
	return &RedisLocaleCache{client: client}
}

// GetLocale returns ErrNotFound on a cache miss.
func (r *RedisLocaleCache) GetLocale(ctx context.Context, realmID string) (models.TaxLocale, error) {
	val, err := r.client.Get(ctx, localeKeyPrefix+realmID).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get locale: %w", err)
	}
	return models.TaxLocale(val), nil
}

func (r *RedisLocaleCache) SetLocale(ctx context.Context, realmID string, locale models.TaxLocale) error {
	if err := r.client.Set(ctx, localeKeyPrefix+realmID, string(locale), localeTTL).Err(); err != nil {
		return fmt.Errorf("failed to set locale: %w", err)
	}
	return nil
}
