// Package cache owns the shared Redis connection used by the active-window cache.
package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

var Client *redis.Client

// InitRedis initializes the Redis connection. An empty addr leaves Client nil and
// the caller keeps the cache in process.
func InitRedis(addr, password string, db int) error {
	if addr == "" {
		log.Println("✓ Redis not configured, using in-process window cache")
		return nil
	}

	Client = redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Println("✓ Redis connected successfully")
	return nil
}

// Enabled reports whether a Redis connection was configured
func Enabled() bool {
	return Client != nil
}

// Close closes the Redis connection
func Close() error {
	if Client != nil {
		return Client.Close()
	}
	return nil
}
