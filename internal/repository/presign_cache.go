package repository

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// PresignCache 定义了对象键到预签名链接的短期缓存接口，
// 避免热门商品的代表图被重复签名。
type PresignCache interface {
	// GetURL 返回缓存的预签名链接；未命中或读取失败时 ok 为 false。
	GetURL(ctx context.Context, objectKey string) (url string, ok bool)
	SetURL(ctx context.Context, objectKey, url string, ttl time.Duration) error
}

type redisPresignCache struct {
	redisClient *redis.Client
}

// NewPresignCache 创建一个新的 Redis 实现的 PresignCache 实例。
func NewPresignCache(redisClient *redis.Client) PresignCache {
	return &redisPresignCache{redisClient: redisClient}
}

func (c *redisPresignCache) cacheKey(objectKey string) string {
	return "presign:" + objectKey
}

// GetURL 从 Redis 读取缓存的预签名链接。
func (c *redisPresignCache) GetURL(ctx context.Context, objectKey string) (string, bool) {
	cached, err := c.redisClient.Get(ctx, c.cacheKey(objectKey)).Result()
	if err != nil || cached == "" {
		return "", false
	}
	return cached, true
}

// SetURL 以限定的 TTL 写入预签名链接。
func (c *redisPresignCache) SetURL(ctx context.Context, objectKey, url string, ttl time.Duration) error {
	return c.redisClient.Set(ctx, c.cacheKey(objectKey), url, ttl).Err()
}
