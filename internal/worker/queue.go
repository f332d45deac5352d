package worker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	BatchSize       = 50
	BatchTimeout    = 2 * time.Second
	PollTimeout     = 1 * time.Second // Must be >= 1s to satisfy Redis
	RetryDelay      = 2 * time.Second
	ShutdownTimeout = 5 * time.Second
)

// pop blocks up to timeout for the next queue item. ok is false on an
// empty queue or a cancelled context.
func pop(ctx context.Context, rdb *redis.Client, queue string, timeout time.Duration) (item string, ok bool, err error) {
	result, err := rdb.BLPop(ctx, timeout, queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return "", false, nil
		}
		return "", false, err
	}
	if len(result) < 2 {
		return "", false, nil
	}
	return result[1], true, nil
}

// drain pops everything left in the queue without blocking.
func drain(ctx context.Context, rdb *redis.Client, queue string, limit int) []string {
	var items []string
	for len(items) < limit {
		item, err := rdb.LPop(ctx, queue).Result()
		if err != nil {
			break
		}
		items = append(items, item)
	}
	return items
}

// requeue pushes payloads back to the tail of the queue in one pipeline.
func requeue(ctx context.Context, rdb *redis.Client, log zerolog.Logger, queue string, payloads [][]byte) {
	if len(payloads) == 0 {
		return
	}
	pipe := rdb.Pipeline()
	for _, p := range payloads {
		pipe.RPush(ctx, queue, p)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Err(err).Int("count", len(payloads)).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}
	log.Info().Int("count", len(payloads)).Msg("Requeued failed items back to Redis")
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
