package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chachabrian/parkit-backend/internal/parking"
)

const (
	// EventsChannel carries every parking event as JSON
	EventsChannel = "parking:events"

	statusCacheKey = "parking:status"
	fcmTokenKey    = "fcm:token:%s"
)

var RedisClient *redis.Client

// InitRedis initializes the Redis client
func InitRedis(redisURL string) error {
	if redisURL == "" {
		redisURL = "redis://redis:6379" // Default Redis address for Docker
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %v", err)
	}

	client := redis.NewClient(opt)

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %v", err)
	}

	RedisClient = client
	return nil
}

// RedisStore caches the status snapshot, relays events on EventsChannel and
// keeps the FCM token of each user.
type RedisStore struct {
	client    *redis.Client
	statusTTL time.Duration
}

func NewRedisStore(client *redis.Client, statusTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, statusTTL: statusTTL}
}

// CacheStatus stores the latest status snapshot
func (r *RedisStore) CacheStatus(ctx context.Context, rec parking.StatusRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, statusCacheKey, data, r.statusTTL).Err()
}

// CachedStatus returns the cached snapshot, or nil when none is cached
func (r *RedisStore) CachedStatus(ctx context.Context) (*parking.StatusRecord, error) {
	data, err := r.client.Get(ctx, statusCacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec parking.StatusRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// InvalidateStatus drops the cached snapshot
func (r *RedisStore) InvalidateStatus(ctx context.Context) error {
	return r.client.Del(ctx, statusCacheKey).Err()
}

// Publish relays the event on EventsChannel and refreshes the status cache
// when the event carries a new snapshot.
func (r *RedisStore) Publish(ctx context.Context, event parking.Event) error {
	if event.Status != nil {
		if err := r.CacheStatus(ctx, *event.Status); err != nil {
			return fmt.Errorf("cache status: %w", err)
		}
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, EventsChannel, data).Err()
}

// SetFCMToken stores the push token of a user
func (r *RedisStore) SetFCMToken(ctx context.Context, userID, token string) error {
	return r.client.Set(ctx, fmt.Sprintf(fcmTokenKey, userID), token, 0).Err()
}

// FCMToken returns the push token of a user, or "" when none is registered
func (r *RedisStore) FCMToken(ctx context.Context, userID string) (string, error) {
	token, err := r.client.Get(ctx, fmt.Sprintf(fcmTokenKey, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return token, err
}

// RemoveFCMToken forgets the push token of a user
func (r *RedisStore) RemoveFCMToken(ctx context.Context, userID string) error {
	return r.client.Del(ctx, fmt.Sprintf(fcmTokenKey, userID)).Err()
}
