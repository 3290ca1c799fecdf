package cache

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisDeviceStateStore persists the small durable per-install state: the
// device identity and the per-account migration flag. The flag is keyed by
// account so switching accounts re-triggers migration.
type RedisDeviceStateStore struct {
	client *redis.Client
}

func NewRedisDeviceStateStore(client *redis.Client) *RedisDeviceStateStore {
	return &RedisDeviceStateStore{client: client}
}

func (s *RedisDeviceStateStore) DeviceID(ctx context.Context) (string, error) {
	const key = "sync:device:id"
	id, err := s.client.Get(ctx, key).Result()
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	// SetNX keeps the identity stable even if two processes race the first
	// generation on the same install.
	generated := uuid.NewString()
	ok, err := s.client.SetNX(ctx, key, generated, 0).Result()
	if err != nil {
		return "", err
	}
	if ok {
		return generated, nil
	}
	return s.client.Get(ctx, key).Result()
}

func (s *RedisDeviceStateStore) MigrationComplete(ctx context.Context, accountID string) (bool, error) {
	n, err := s.client.Exists(ctx, migrationKey(accountID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisDeviceStateStore) MarkMigrationComplete(ctx context.Context, accountID string) error {
	return s.client.Set(ctx, migrationKey(accountID), "1", 0).Err()
}

func migrationKey(accountID string) string {
	return "sync:migration:done:" + accountID
}
