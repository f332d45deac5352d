package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/livesession-backend/internal/config"
	"github.com/stemsi/livesession-backend/internal/model"
)

// PositionStore is implemented by repository.ParticipantRepository.
type PositionStore interface {
	UpdatePositions(ctx context.Context, positions map[uuid.UUID]float64) (int64, error)
}

// ProgressWorker consumes persist_progress_queue and writes the newest
// playback position of each participant to PostgreSQL. Several autosaves
// from one participant inside a batch collapse into one row update.
type ProgressWorker struct {
	store        PositionStore
	rdb          *redis.Client
	log          zerolog.Logger
	batchSize    int
	batchTimeout time.Duration
	pollTimeout  time.Duration
	retryDelay   time.Duration
}

// NewProgressWorker creates a new ProgressWorker.
func NewProgressWorker(store PositionStore, rdb *redis.Client, log zerolog.Logger) *ProgressWorker {
	return &ProgressWorker{
		store:        store,
		rdb:          rdb,
		log:          log.With().Str("component", "progress_worker").Logger(),
		batchSize:    BatchSize,
		batchTimeout: BatchTimeout,
		pollTimeout:  PollTimeout,
		retryDelay:   RetryDelay,
	}
}

// Start begins the worker loop and returns after draining the queue once
// ctx is cancelled. Call in a goroutine.
func (w *ProgressWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	batch := make(map[uuid.UUID]model.ProgressUpdate, w.batchSize)
	received := 0
	lastFlush := time.Now()

	for {
		if received > 0 && (received >= w.batchSize || time.Since(lastFlush) >= w.batchTimeout) {
			w.flush(ctx, batch)
			clear(batch)
			received = 0
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(batch)
			return
		default:
		}

		item, ok, err := pop(ctx, w.rdb, config.WorkerKey.PersistProgressQueue, w.pollTimeout)
		if err != nil {
			w.log.Error().Err(err).Msg("Redis connection error, sleeping")
			sleep(ctx, w.retryDelay)
			continue
		}
		if !ok {
			continue
		}
		if w.add(batch, item) {
			received++
		}
	}
}

// add keeps the newest update per participant. Malformed payloads cannot
// be retried and are discarded.
func (w *ProgressWorker) add(batch map[uuid.UUID]model.ProgressUpdate, item string) bool {
	var u model.ProgressUpdate
	if err := json.Unmarshal([]byte(item), &u); err != nil || u.ParticipantID == uuid.Nil {
		w.log.Error().Err(err).Str("data", item).Msg("Discarding malformed progress update")
		return false
	}
	if prev, ok := batch[u.ParticipantID]; ok && prev.At.After(u.At) {
		return true
	}
	batch[u.ParticipantID] = u
	return true
}

func (w *ProgressWorker) flush(ctx context.Context, batch map[uuid.UUID]model.ProgressUpdate) {
	if len(batch) == 0 {
		return
	}
	positions := make(map[uuid.UUID]float64, len(batch))
	for id, u := range batch {
		positions[id] = u.PositionSeconds
	}

	updated, err := w.store.UpdatePositions(ctx, positions)
	if err != nil {
		w.log.Error().Err(err).Int("count", len(batch)).Msg("Persist error, requeueing")
		payloads := make([][]byte, 0, len(batch))
		for _, u := range batch {
			data, _ := json.Marshal(u)
			payloads = append(payloads, data)
		}
		requeue(ctx, w.rdb, w.log, config.WorkerKey.PersistProgressQueue, payloads)
		sleep(ctx, w.retryDelay)
		return
	}
	w.log.Debug().Int("participants", len(batch)).Int64("updated", updated).Msg("Positions persisted")
}

func (w *ProgressWorker) shutdown(batch map[uuid.UUID]model.ProgressUpdate) {
	w.log.Info().Msg("Worker stopping, flushing remaining updates...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	for _, item := range drain(shutdownCtx, w.rdb, config.WorkerKey.PersistProgressQueue, 10*w.batchSize) {
		w.add(batch, item)
	}
	w.flush(shutdownCtx, batch)
	w.log.Info().Msg("Worker stopped")
}
