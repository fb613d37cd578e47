package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"influencer-prospector/internal/domain"
)

// RedisRunQueue реализует очередь прогонов на базе Redis lists.
// Подтверждения нет: BRPOP снимает задачу сразу, ack(false) кладёт её обратно.
type RedisRunQueue struct {
	client *redis.Client
	key    string
}

var _ domain.RunQueue = (*RedisRunQueue)(nil)

// NewRedisRunQueue создаёт очередь по указанному ключу.
func NewRedisRunQueue(client *redis.Client, key string) *RedisRunQueue {
	return &RedisRunQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisRunQueue) Enqueue(ctx context.Context, job domain.RunJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди.
func (q *RedisRunQueue) Receive(ctx context.Context) (domain.RunJob, func(ok bool) error, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.RunJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.RunJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.RunJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.RunJob{}, nil, errors.New("redis queue: unexpected response")
		}
		payload := res[1]
		var job domain.RunJob
		if err := json.Unmarshal([]byte(payload), &job); err != nil {
			return domain.RunJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(ok bool) error {
			if ok {
				return nil
			}
			return q.client.LPush(context.Background(), q.key, payload).Err()
		}
		return job, ack, nil
	}
}
