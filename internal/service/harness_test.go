package service

import (
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/livesession-backend/internal/model"
	"github.com/stemsi/livesession-backend/internal/service/servicetest"
)

type harness struct {
	store        *servicetest.Store
	mr           *miniredis.Miniredis
	rdb          *redis.Client
	sessions     *LiveSessionService
	participants *ParticipantService
	progress     *ProgressService
	monitor      *MonitorService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log := zerolog.Nop()
	store := servicetest.NewStore()
	events := NewEventPublisher(rdb, log)
	cache := NewContentCache(rdb, time.Minute, log)

	sessions := NewLiveSessionService(store, cache, events, rdb, DefaultJoinCodeAttempts, log)
	participants := NewParticipantService(sessions, store.Participants(), store.Responses(), store.Checks(), events, rdb, log)
	progress := NewProgressService(participants, sessions, rdb, log)
	monitor := NewMonitorService(sessions, participants, store.Responses(), store.Checks(), store.Scrubs(), progress, log)

	return &harness{
		store:        store,
		mr:           mr,
		rdb:          rdb,
		sessions:     sessions,
		participants: participants,
		progress:     progress,
		monitor:      monitor,
	}
}

// fixedCodes yields the given codes in order, then repeats the last one.
func fixedCodes(codes ...string) CodeGenerator {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		c := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return c, nil
	}
}

// sampleRequest is a 60 second video with checks at 10s and 40s and three
// questions whose correct choices are 0, 1 and 2.
func sampleRequest() *model.CreateLiveSessionRequest {
	choices := []string{"one", "two", "three", "four"}
	return &model.CreateLiveSessionRequest{
		VideoURL:             "https://videos.example/photosynthesis.mp4",
		VideoDurationSeconds: 60,
		Content: model.SessionContent{
			Questions: []model.Question{
				{ID: "q1", Text: "First?", Choices: choices, CorrectChoiceIndex: 0},
				{ID: "q2", Text: "Second?", Choices: choices, CorrectChoiceIndex: 1},
				{ID: "q3", Text: "Third?", Choices: choices, CorrectChoiceIndex: 2},
			},
			AttentionChecks: []model.AttentionCheck{
				{TimestampSeconds: 40, Question: "Later?", Choices: choices, CorrectChoiceLetter: "b"},
				{TimestampSeconds: 10, Question: "Early?", Choices: choices, CorrectChoiceLetter: "A"},
			},
			Inquiry: model.InquiryContent{Hook: "Why are leaves green?"},
		},
	}
}

func ptr[T any](v T) *T { return &v }

func mustParse(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	if err != nil {
		t.Fatalf("parse uuid %q: %v", s, err)
	}
	return id
}
