package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// LiveSessionContentKey returns the cache key for a session's content bundle.
// Keyed by session id because content is immutable and ids are never reused.
func (r *CacheKeyStruct) LiveSessionContentKey(sessionID string) string {
	return fmt.Sprintf("live:session:%s:content", sessionID)
}

// SessionProgressKey returns the hash of participant id → last reported playback position
func (r *CacheKeyStruct) SessionProgressKey(code string) string {
	return fmt.Sprintf("live:session:%s:progress", code)
}

// SessionEventsChannel returns the Redis PubSub channel name for a live session
func (r *CacheKeyStruct) SessionEventsChannel(code string) string {
	return fmt.Sprintf("live:events:%s", code)
}

var CacheKey = NewCacheKeyStruct()
