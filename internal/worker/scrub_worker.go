package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/livesession-backend/internal/config"
	"github.com/stemsi/livesession-backend/internal/model"
	"github.com/stemsi/livesession-backend/internal/repository"
)

// ScrubLog is implemented by repository.ScrubRepository.
type ScrubLog interface {
	BulkInsert(ctx context.Context, batch []model.ScrubViolation) error
	Insert(ctx context.Context, v *model.ScrubViolation) error
}

// ScrubWorker consumes persist_scrubs_queue and appends anti-scrub
// violations to PostgreSQL in batches.
type ScrubWorker struct {
	store        ScrubLog
	rdb          *redis.Client
	log          zerolog.Logger
	batchSize    int
	batchTimeout time.Duration
	pollTimeout  time.Duration
	retryDelay   time.Duration
}

// NewScrubWorker creates a new ScrubWorker.
func NewScrubWorker(store ScrubLog, rdb *redis.Client, log zerolog.Logger) *ScrubWorker {
	return &ScrubWorker{
		store:        store,
		rdb:          rdb,
		log:          log.With().Str("component", "scrub_worker").Logger(),
		batchSize:    BatchSize,
		batchTimeout: BatchTimeout,
		pollTimeout:  PollTimeout,
		retryDelay:   RetryDelay,
	}
}

// Start begins the worker loop and returns after flushing once ctx is
// cancelled. Call in a goroutine.
func (w *ScrubWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	buffer := make([]model.ScrubViolation, 0, w.batchSize)
	lastFlush := time.Now()

	for {
		// 1. Flush on size or age
		if len(buffer) > 0 && (len(buffer) >= w.batchSize || time.Since(lastFlush) >= w.batchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		// 2. Graceful shutdown
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis
		item, ok, err := pop(ctx, w.rdb, config.WorkerKey.PersistScrubsQueue, w.pollTimeout)
		if err != nil {
			w.log.Error().Err(err).Msg("Redis connection error, sleeping")
			sleep(ctx, w.retryDelay)
			continue
		}
		if !ok {
			continue
		}

		if v, ok := w.decode(item); ok {
			buffer = append(buffer, v)
		}
	}
}

// decode discards malformed payloads; they can never succeed on retry.
func (w *ScrubWorker) decode(item string) (model.ScrubViolation, bool) {
	var v model.ScrubViolation
	if err := json.Unmarshal([]byte(item), &v); err != nil {
		w.log.Error().Err(err).Str("data", item).Msg("Discarding malformed scrub event")
		return v, false
	}
	if v.RecordedAt.IsZero() {
		v.RecordedAt = time.Now().UTC()
	}
	return v, true
}

// flushSafe tries one bulk copy, then falls back to row-by-row inserts so
// one bad row cannot hold back the rest of the batch.
func (w *ScrubWorker) flushSafe(ctx context.Context, batch []model.ScrubViolation) {
	if err := w.store.BulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *ScrubWorker) fallbackInsert(ctx context.Context, batch []model.ScrubViolation) {
	var retry [][]byte
	for i := range batch {
		v := &batch[i]
		err := w.store.Insert(ctx, v)
		if err == nil {
			continue
		}
		if repository.IsForeignKeyViolation(err) {
			// The session ended and its participants are gone.
			w.log.Debug().Str("participant_id", v.ParticipantID.String()).Msg("Dropping scrub event for deleted participant")
			continue
		}
		w.log.Error().Err(err).Str("participant_id", v.ParticipantID.String()).Msg("Insert failed, requeueing")
		data, _ := json.Marshal(v)
		retry = append(retry, data)
	}

	if len(retry) > 0 {
		requeue(ctx, w.rdb, w.log, config.WorkerKey.PersistScrubsQueue, retry)
		sleep(ctx, w.retryDelay)
	}
}

func (w *ScrubWorker) shutdown(buffer []model.ScrubViolation) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	for _, item := range drain(shutdownCtx, w.rdb, config.WorkerKey.PersistScrubsQueue, 10*w.batchSize) {
		if v, ok := w.decode(item); ok {
			buffer = append(buffer, v)
		}
	}
	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
	w.log.Info().Msg("Worker stopped")
}
