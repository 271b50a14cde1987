package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"news-publisher/internal/infra/metrics"
)

// maxPendingSignals ограничивает длину списка: один сигнал будит одного воркера.
const maxPendingSignals = 64

// RedisJobSignal реализует domain.JobSignal на Redis list.
type RedisJobSignal struct {
	client *redis.Client
	key    string
}

// NewRedisJobSignal создаёт сигнал по указанному ключу.
func NewRedisJobSignal(client *redis.Client, key string) *RedisJobSignal {
	return &RedisJobSignal{client: client, key: key}
}

// Notify кладёт сигнал в список.
func (q *RedisJobSignal) Notify(ctx context.Context) error {
	start := time.Now()
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, q.key, time.Now().UnixNano())
		pipe.LTrim(ctx, q.key, 0, maxPendingSignals-1)
		return nil
	})
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push signal: %w", err)
	}
	return nil
}

// Wait блокирующе ждёт сигнал не дольше timeout.
func (q *RedisJobSignal) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, fmt.Errorf("pop signal: %w", err)
	}
	if len(res) != 2 {
		return false, errors.New("redis signal: unexpected response")
	}
	return true, nil
}
