package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey holds the registry when no key is configured.
const DefaultRedisKey = "millennium:plugins"

// RedisPersister stores the registry as one JSON value under a single key.
type RedisPersister struct {
	client *redis.Client
	key    string
}

// NewRedisPersister uses client and key. An empty key selects DefaultRedisKey.
func NewRedisPersister(client *redis.Client, key string) *RedisPersister {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisPersister{client: client, key: key}
}

// Load reads the registry. A missing key yields an empty registry.
func (p *RedisPersister) Load(ctx context.Context) ([]PluginRecord, error) {
	data, err := p.client.Get(ctx, p.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []PluginRecord{}, nil
		}
		return nil, fmt.Errorf("%w: get %s: %w", ErrPersistence, p.key, err)
	}

	records := []PluginRecord{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrPersistence, p.key, err)
	}
	return records, nil
}

// Save overwrites the key in a single SET.
func (p *RedisPersister) Save(ctx context.Context, records []PluginRecord) error {
	if records == nil {
		records = []PluginRecord{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("%w: encode registry: %w", ErrPersistence, err)
	}
	if err := p.client.Set(ctx, p.key, data, 0).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %w", ErrPersistence, p.key, err)
	}
	return nil
}

// Close closes the redis client.
func (p *RedisPersister) Close() error {
	return p.client.Close()
}
