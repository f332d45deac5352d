package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/livesession-backend/internal/config"
	"github.com/stemsi/livesession-backend/internal/model"
	"golang.org/x/sync/singleflight"
)

// ContentCache keeps session content bundles in Redis. Every poller reads
// the content, so concurrent misses for one session collapse into a
// single database load. Content never changes after creation, so entries
// are never stale; they only expire.
type ContentCache struct {
	rdb   *redis.Client
	ttl   time.Duration
	group singleflight.Group
	log   zerolog.Logger
}

// NewContentCache creates a new ContentCache.
func NewContentCache(rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *ContentCache {
	return &ContentCache{
		rdb: rdb,
		ttl: ttl,
		log: log.With().Str("component", "content_cache").Logger(),
	}
}

// Get returns cached content or calls load on a miss. A Redis outage
// degrades to loading from the database.
func (c *ContentCache) Get(ctx context.Context, sessionID uuid.UUID, load func(context.Context) (*model.SessionContent, error)) (*model.SessionContent, error) {
	key := config.CacheKey.LiveSessionContentKey(sessionID.String())

	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		content := &model.SessionContent{}
		if err := json.Unmarshal(data, content); err == nil {
			return content, nil
		}
		c.log.Warn().Str("session_id", sessionID.String()).Msg("Discarding corrupt cached content")
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warn().Err(err).Msg("Content cache read failed, falling back to database")
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		content, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, sessionID, content)
		return content, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.SessionContent), nil
}

// Set writes content to the cache. Failures are logged, not returned.
func (c *ContentCache) Set(ctx context.Context, sessionID uuid.UUID, content *model.SessionContent) {
	data, err := json.Marshal(content)
	if err != nil {
		c.log.Error().Err(err).Msg("Marshal content")
		return
	}
	key := config.CacheKey.LiveSessionContentKey(sessionID.String())
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("Content cache write failed")
	}
}

// Drop removes a session's cached content.
func (c *ContentCache) Drop(ctx context.Context, sessionID uuid.UUID) error {
	if err := c.rdb.Del(ctx, config.CacheKey.LiveSessionContentKey(sessionID.String())).Err(); err != nil {
		return fmt.Errorf("drop content cache: %w", err)
	}
	return nil
}
