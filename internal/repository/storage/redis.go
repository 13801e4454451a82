package storage

import (
	"context"
	"fmt"
	"net"

	"github.com/redis/go-redis/v9"
)

type RedisStorage struct {
	Connection *redis.Client
}

// NewRedisStorage connects to host:port and pings the server once.
func NewRedisStorage(ctx context.Context, host, port string) (*RedisStorage, error) {
	conn := redis.NewClient(&redis.Options{
		Addr: net.JoinHostPort(host, port),
	})

	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStorage{Connection: conn}, nil
}

func (that *RedisStorage) Close() error {
	if err := that.Connection.Close(); err != nil {
		return fmt.Errorf("failed to close Redis connection: %w", err)
	}

	return nil
}
