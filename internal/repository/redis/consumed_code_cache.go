package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"phone-auth-service/internal/client"
	"phone-auth-service/internal/util"
)

const consumedCodePrefix = "consumed_code:"

// ConsumedCodeCache remembers accepted verification codes across instances.
type ConsumedCodeCache struct {
	client *client.RedisClient
}

func NewConsumedCodeCache(client *client.RedisClient) *ConsumedCodeCache {
	return &ConsumedCodeCache{client: client}
}

// Consume uses SET NX so exactly one caller wins per key within ttl.
func (c *ConsumedCodeCache) Consume(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	fresh, err := c.client.SetNX(ctx, consumedCodePrefix+key, time.Now().Unix(), ttl)
	if err != nil {
		util.Error("Failed to record consumed code", zap.Duration("ttl", ttl), zap.Error(err))
		return false, fmt.Errorf("failed to record consumed code: %w", err)
	}
	if !fresh {
		util.Debug("Verification code replay rejected")
	}
	return fresh, nil
}
