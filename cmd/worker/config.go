package main

import (
	"log"

	"github.com/hibiken/asynq"

	"household-catalog/pkg/container"
)

// Config holds worker-only settings, phần còn lại nằm trong container.Config
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
}

// loadConfig derives worker settings from the container config
func loadConfig(c *container.Container) *Config {
	cfg := &Config{
		RedisAddr:     c.Config.Redis.Host,
		RedisPassword: c.Config.Redis.Password,
		RedisDB:       c.Config.Redis.DB,
		Concurrency:   c.Config.Sync.RecalcConcurrency,
	}

	log.Printf("[Config] Redis: %s, Store: %s, LocalCache: %s",
		cfg.RedisAddr, c.Config.Store.Driver, c.Config.LocalCache.Driver)

	return cfg
}

func (c *Config) redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}
