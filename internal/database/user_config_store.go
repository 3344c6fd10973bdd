package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/irfndi/celebrum-arbwatch/internal/models"
	"github.com/redis/go-redis/v9"
)

// UserConfigsKey is the hash holding one JSON document per chat id.
const UserConfigsKey = "arbwatch:user_configs"

// RedisUserConfigStore keeps per-chat configuration in a redis hash.
type RedisUserConfigStore struct {
	client *redis.Client
	key    string
}

func NewRedisUserConfigStore(client *redis.Client) *RedisUserConfigStore {
	return &RedisUserConfigStore{client: client, key: UserConfigsKey}
}

// Get returns the stored config for userID and whether one exists.
func (s *RedisUserConfigStore) Get(ctx context.Context, userID int64) (models.UserConfig, bool, error) {
	raw, err := s.client.HGet(ctx, s.key, strconv.FormatInt(userID, 10)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.UserConfig{}, false, nil
	}
	if err != nil {
		return models.UserConfig{}, false, fmt.Errorf("failed to read user config from redis: %w", err)
	}

	var cfg models.UserConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return models.UserConfig{}, false, fmt.Errorf("failed to decode user config %d: %w", userID, err)
	}
	return cfg, true, nil
}

func (s *RedisUserConfigStore) Put(ctx context.Context, userID int64, cfg models.UserConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode user config: %w", err)
	}
	if err := s.client.HSet(ctx, s.key, strconv.FormatInt(userID, 10), data).Err(); err != nil {
		return fmt.Errorf("failed to write user config to redis: %w", err)
	}
	return nil
}

func (s *RedisUserConfigStore) Delete(ctx context.Context, userID int64) error {
	if err := s.client.HDel(ctx, s.key, strconv.FormatInt(userID, 10)).Err(); err != nil {
		return fmt.Errorf("failed to delete user config from redis: %w", err)
	}
	return nil
}

// MemoryUserConfigStore is the fallback when redis is not configured.
type MemoryUserConfigStore struct {
	mu      sync.RWMutex
	configs map[int64]models.UserConfig
}

func NewMemoryUserConfigStore() *MemoryUserConfigStore {
	return &MemoryUserConfigStore{configs: make(map[int64]models.UserConfig)}
}

func (s *MemoryUserConfigStore) Get(_ context.Context, userID int64) (models.UserConfig, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[userID]
	if !ok {
		return models.UserConfig{}, false, nil
	}
	return cfg.Clone(), true, nil
}

func (s *MemoryUserConfigStore) Put(_ context.Context, userID int64, cfg models.UserConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[userID] = cfg.Clone()
	return nil
}

func (s *MemoryUserConfigStore) Delete(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.configs, userID)
	return nil
}
