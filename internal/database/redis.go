package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClients splits one URL into two connections. Queue backs BLPOP job
// consumption, worker locks, rate keys and report caches; PubSub is reserved
// for the session hub's subscriptions. Separating them keeps a blocked
// subscribe from starving queue traffic.
type RedisClients struct {
	Queue  *redis.Client
	PubSub *redis.Client
}

func NewRedisClients(redisURL string) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	queue := redis.NewClient(opt)
	if err := queue.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis (queue): %w", err)
	}

	hubOpt := *opt
	pubsub := redis.NewClient(&hubOpt)
	if err := pubsub.Ping(ctx).Err(); err != nil {
		queue.Close()
		return nil, fmt.Errorf("ping redis (pubsub): %w", err)
	}

	return &RedisClients{Queue: queue, PubSub: pubsub}, nil
}

func (r *RedisClients) Close() {
	r.Queue.Close()
	r.PubSub.Close()
}
