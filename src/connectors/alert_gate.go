package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const alertGatePrefix = "warehouseops:alert:"

// RedisAlertGate lets one alert per key through per TTL, shared by every instance.
type RedisAlertGate struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisAlertGate(config Config) *RedisAlertGate {
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})
	return NewRedisAlertGateWithClient(rdb, config.AlertGateTTL)
}

func NewRedisAlertGateWithClient(client *redis.Client, ttl time.Duration) *RedisAlertGate {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisAlertGate{client: client, ttl: ttl}
}

// Allow reports true for the first call per key inside the TTL window.
func (g *RedisAlertGate) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, alertGatePrefix+key, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis alert gate: %w", err)
	}
	return ok, nil
}

func (g *RedisAlertGate) Close() error {
	return g.client.Close()
}
