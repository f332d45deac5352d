package service

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

// EventType names a change pushed to stream subscribers.
type EventType string

const (
	EventParticipantJoined  EventType = "participant_joined"
	EventParticipantUpdated EventType = "participant_updated"
	EventSessionStatus      EventType = "session_status"
	EventSessionEnded       EventType = "session_ended"
)

// Event is a change notification. Subscribers re-read state on receipt;
// the event itself is only a hint.
type Event struct {
	Type          EventType               `json:"type"`
	SessionCode   string                  `json:"session_code"`
	ParticipantID *uuid.UUID              `json:"participant_id,omitempty"`
	Status        model.LiveSessionStatus `json:"status,omitempty"`
	Score         *int                    `json:"score,omitempty"`
	Phase         model.Phase             `json:"phase,omitempty"`
	At            time.Time               `json:"at"`
}

// EventPublisher fans events out over Redis Pub/Sub.
type EventPublisher struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewEventPublisher creates a new EventPublisher.
func NewEventPublisher(rdb *redis.Client, log zerolog.Logger) *EventPublisher {
	return &EventPublisher{
		rdb: rdb,
		log: log.With().Str("component", "event_publisher").Logger(),
	}
}

// Publish is best-effort: subscribers also refresh on a timer, so a lost
// message only delays an update by one poll interval.
func (p *EventPublisher) Publish(ctx context.Context, ev Event) {
	if p == nil || p.rdb == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Error().Err(err).Msg("Marshal event")
		return
	}
	if err := p.rdb.Publish(ctx, config.CacheKey.SessionEventsChannel(ev.SessionCode), data).Err(); err != nil {
		p.log.Warn().Err(err).Str("type", string(ev.Type)).Str("code", ev.SessionCode).Msg("Publish event failed")
	}
}

// Subscribe opens a Pub/Sub subscription for one session's events.
func (p *EventPublisher) Subscribe(ctx context.Context, code string) *redis.PubSub {
	return p.rdb.Subscribe(ctx, config.CacheKey.SessionEventsChannel(code))
}

func participantEvent(t EventType, pt *model.Participant) Event {
	id := pt.ID
	score := pt.Score
	return Event{
		Type:          t,
		SessionCode:   pt.SessionCode,
		ParticipantID: &id,
		Score:         &score,
		Phase:         pt.Phase,
	}
}
