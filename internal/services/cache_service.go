package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"captcha-gateway-api/internal/config"
	"captcha-gateway-api/internal/models"

	"github.com/redis/go-redis/v9"
)

// Hot API-key lookups are cached briefly so the metered path does not hit the
// database on every request. Invalidated on key state changes.
const apiKeyCacheTTL = 60 * time.Second

func apiKeyCacheKey(keyID string) string {
	return fmt.Sprintf("apikey:%s", keyID)
}

// GetCachedAPIKey returns the cached key record, or nil on miss or decode
// failure. Cache errors are deliberately indistinguishable from misses.
func GetCachedAPIKey(ctx context.Context, cache CacheService, keyID string) *models.APIKey {
	if cache == nil {
		return nil
	}
	raw, err := cache.Get(ctx, apiKeyCacheKey(keyID))
	if err != nil {
		return nil
	}
	var key models.APIKey
	if err := json.Unmarshal([]byte(raw), &key); err != nil {
		return nil
	}
	return &key
}

func CacheAPIKey(ctx context.Context, cache CacheService, key *models.APIKey) {
	if cache == nil {
		return
	}
	_ = cache.Set(ctx, apiKeyCacheKey(key.KeyID), key, apiKeyCacheTTL)
}

func InvalidateAPIKey(ctx context.Context, cache CacheService, keyID string) {
	if cache == nil {
		return
	}
	_ = cache.Delete(ctx, apiKeyCacheKey(keyID))
}

type CacheService interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type RedisCacheService struct {
	client *redis.Client
}

func NewRedisCacheService(cfg *config.CacheConfig) (*RedisCacheService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %v", err)
	}

	return &RedisCacheService{client: client}, nil
}

func (c *RedisCacheService) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

func (c *RedisCacheService) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %v", err)
	}
	return c.client.Set(ctx, key, jsonData, expiration).Err()
}

func (c *RedisCacheService) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCacheService) DeleteByPattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		err := c.client.Del(ctx, iter.Val()).Err()
		if err != nil {
			return err
		}
	}
	return iter.Err()
}
