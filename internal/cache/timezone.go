// Package cache keeps read-mostly profile data in Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Freeeeeet/tutor_scheduler/internal/repository"
)

// noZone is stored for teachers without a zone so misses are cached too.
const noZone = "-"

// KV is the subset of redis.Cmdable used here.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// TimezoneCache decorates a ProfileRepository. Redis failures fall through
// to the source and are only logged.
type TimezoneCache struct {
	source repository.ProfileRepository
	kv     KV
	ttl    time.Duration
	logger *zap.Logger
}

func NewTimezoneCache(source repository.ProfileRepository, kv KV, ttl time.Duration, logger *zap.Logger) *TimezoneCache {
	return &TimezoneCache{source: source, kv: kv, ttl: ttl, logger: logger}
}

// NewRedisClient подключается к Redis и проверяет соединение
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func timezoneKey(teacherID int64) string {
	return "teacher:tz:" + strconv.FormatInt(teacherID, 10)
}

func (c *TimezoneCache) TeacherTimezone(ctx context.Context, teacherID int64) (string, error) {
	key := timezoneKey(teacherID)

	cached, err := c.kv.Get(ctx, key).Result()
	switch {
	case err == nil:
		if cached == noZone {
			return "", nil
		}
		return cached, nil
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("Timezone cache read failed", zap.String("key", key), zap.Error(err))
	}

	tz, err := c.source.TeacherTimezone(ctx, teacherID)
	if err != nil {
		return "", err
	}

	value := tz
	if value == "" {
		value = noZone
	}
	if err := c.kv.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.logger.Warn("Timezone cache write failed", zap.String("key", key), zap.Error(err))
	}
	return tz, nil
}

// Invalidate drops the cached zone after a profile change.
func (c *TimezoneCache) Invalidate(ctx context.Context, teacherID int64) error {
	if err := c.kv.Del(ctx, timezoneKey(teacherID)).Err(); err != nil {
		return fmt.Errorf("invalidate timezone: %w", err)
	}
	return nil
}
