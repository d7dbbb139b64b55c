package settings

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config selects and configures the registry persister.
type Config struct {
	// Driver: file, sqlite, postgres, mysql, redis
	Driver string `yaml:"driver" env:"DRIVER"`
	// Path of the YAML registry (driver=file)
	Path string `yaml:"path" env:"PATH"`
	// DSN for the SQL drivers
	DSN string `yaml:"dsn" env:"DSN"`
	// RedisAddr, RedisPassword, RedisDB and RedisKey for driver=redis
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB"`
	RedisKey      string `yaml:"redis_key" env:"REDIS_KEY"`
	// PluginsDir is scanned by Discover
	PluginsDir string `yaml:"plugins_dir" env:"PLUGINS_DIR"`
}

// DefaultConfig returns a file-backed registry in the working directory.
func DefaultConfig() Config {
	return Config{
		Driver:     "file",
		Path:       "plugins.yaml",
		RedisAddr:  "localhost:6379",
		RedisKey:   DefaultRedisKey,
		PluginsDir: "plugins",
	}
}

// NewPersister builds the persister selected by cfg.Driver.
func NewPersister(cfg Config) (Persister, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFilePersister(cfg.Path), nil
	case "sqlite", "postgres", "mysql":
		return OpenSQL(cfg.Driver, cfg.DSN)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewRedisPersister(client, cfg.RedisKey), nil
	default:
		return nil, fmt.Errorf("unknown settings driver: %s", cfg.Driver)
	}
}

// Open builds the persister for cfg and loads the registry.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	persister, err := NewPersister(cfg)
	if err != nil {
		return nil, err
	}

	store := NewStore(persister, logger)
	if _, err := store.Load(ctx); err != nil {
		persister.Close()
		return nil, err
	}
	return store, nil
}
