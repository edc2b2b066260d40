package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/matheusnogalha/draft-os/internal/repository"
)

// 只有租约仍属于该会话时才刷新过期时间
var refreshLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// 只有租约仍属于该会话时才删除
var releaseLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStateRepository 是 StateRepository 接口的 Redis 实现
type RedisStateRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStateRepository 创建 RedisStateRepository 实例
func NewRedisStateRepository(client *redis.Client, keyPrefix string) *RedisStateRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisStateRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "dos:" // 默认前缀 "dos:" (draft-os)
	}
	return &RedisStateRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// --- Key Generation Helpers ---
func (r *RedisStateRepository) contentCacheKey(chapterID string) string {
	return fmt.Sprintf("%schapter:%s:content", r.keyPrefix, chapterID)
}

func (r *RedisStateRepository) leaseKey(chapterID string) string {
	return fmt.Sprintf("%schapter:%s:lease", r.keyPrefix, chapterID)
}

// StatusChannel 返回章节保存状态的发布频道
func (r *RedisStateRepository) StatusChannel(chapterID string) string {
	return fmt.Sprintf("%schapter:%s:status", r.keyPrefix, chapterID)
}

// --- StateRepository Interface Implementation ---

// GetContentCache 获取章节最近一次保存的内容及其版本。无法解析的条目视为未命中。
func (r *RedisStateRepository) GetContentCache(ctx context.Context, chapterID string) (*repository.CachedContent, error) {
	key := r.contentCacheKey(chapterID)
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis: failed to get content cache for chapter %s from %s: %w", chapterID, key, err)
	}
	var entry repository.CachedContent
	if err := json.Unmarshal(data, &entry); err != nil || len(entry.Content) == 0 || entry.SavedAt.IsZero() {
		logrus.WithField("key", key).Warn("Ignoring malformed content cache entry")
		return nil, repository.ErrCacheMiss
	}
	return &entry, nil
}

// SetContentCache 缓存章节内容及其版本 (ttl 为 0 表示永不过期)
func (r *RedisStateRepository) SetContentCache(ctx context.Context, chapterID string, entry repository.CachedContent, ttl time.Duration) error {
	key := r.contentCacheKey(chapterID)
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redis: failed to encode content cache for chapter %s: %w", chapterID, err)
	}
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: failed to set content cache for chapter %s on key %s: %w", chapterID, key, err)
	}
	return nil
}

// InvalidateContentCache 删除章节内容缓存
func (r *RedisStateRepository) InvalidateContentCache(ctx context.Context, chapterID string) error {
	key := r.contentCacheKey(chapterID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: failed to invalidate content cache for chapter %s on key %s: %w", chapterID, key, err)
	}
	return nil
}

// AcquireEditLease 使用 SET NX PX 获取章节编辑租约；同一会话再次获取时刷新过期时间。
func (r *RedisStateRepository) AcquireEditLease(ctx context.Context, chapterID, sessionID string, ttl time.Duration) error {
	key := r.leaseKey(chapterID)
	ok, err := r.client.SetNX(ctx, key, sessionID, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis: failed to acquire edit lease for chapter %s: %w", chapterID, err)
	}
	if ok {
		return nil
	}

	refreshed, err := refreshLeaseScript.Run(ctx, r.client, []string{key}, sessionID, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("redis: failed to refresh edit lease for chapter %s: %w", chapterID, err)
	}
	if refreshed == 0 {
		return repository.ErrLeaseHeld
	}
	return nil
}

// ReleaseEditLease 释放编辑租约，不会删除其他会话持有的租约
func (r *RedisStateRepository) ReleaseEditLease(ctx context.Context, chapterID, sessionID string) error {
	key := r.leaseKey(chapterID)
	if err := releaseLeaseScript.Run(ctx, r.client, []string{key}, sessionID).Err(); err != nil {
		return fmt.Errorf("redis: failed to release edit lease for chapter %s: %w", chapterID, err)
	}
	return nil
}

// PublishStatus 将保存状态发布到章节频道
func (r *RedisStateRepository) PublishStatus(ctx context.Context, chapterID string, payload []byte) error {
	channel := r.StatusChannel(chapterID)
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		logrus.WithFields(logrus.Fields{
			"channel":      channel,
			"payload_size": len(payload),
			"chapter_id":   chapterID,
		}).WithError(err).Error("Redis Publish failed")
		return fmt.Errorf("redis: failed to publish status to channel %s: %w", channel, err)
	}
	return nil
}

// CheckRateLimit 检查给定 key 的请求频率是否超限，并递增计数。
func (r *RedisStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	key = r.keyPrefix + "ratelimit:" + key
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to incr rate limit counter %s: %w", key, err)
	}
	// 窗口内第一次请求时设置过期时间，之后的请求不延长窗口
	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return false, fmt.Errorf("redis: failed to set rate limit window on key %s: %w", key, err)
		}
	}
	return count > int64(limit), nil
}
