package delivery

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisQueueKey = "gridbase:delivery:retries"

// RedisQueue is the shared RetryQueue for multi-process deployments: a
// sorted set scored by the retry due time in unix seconds.
type RedisQueue struct {
	client *redis.Client
	key    string
}

func NewRedisQueue(redisURL string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisQueue{client: client, key: redisQueueKey}, nil
}

func (q *RedisQueue) Schedule(ctx context.Context, deliveryID string, at time.Time) error {
	return q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(at.Unix()),
		Member: deliveryID,
	}).Err()
}

func (q *RedisQueue) Due(ctx context.Context, now time.Time) ([]string, error) {
	max := strconv.FormatInt(now.Unix(), 10)

	ids, err := q.client.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min: "-inf",
		Max: max,
	}).Result()
	if err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return nil, nil
	}

	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}

	if err := q.client.ZRem(ctx, q.key, members...).Err(); err != nil {
		return nil, err
	}

	return ids, nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
