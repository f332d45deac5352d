package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/livesession-backend/internal/config"
	"github.com/stemsi/livesession-backend/internal/handler"
	"github.com/stemsi/livesession-backend/internal/middleware"
	"github.com/stemsi/livesession-backend/internal/router"
	"github.com/stemsi/livesession-backend/internal/service"
	"github.com/stemsi/livesession-backend/internal/service/servicetest"
	"github.com/stemsi/livesession-backend/internal/validator"
)

type app struct {
	engine *gin.Engine
	auth   *service.AuthService
	store  *servicetest.Store
	rdb    *redis.Client
}

func newApp(t *testing.T) *app {
	t.Helper()
	validator.Setup()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := &config.Config{
		GinMode:                gin.TestMode,
		JWTSecret:              "handler-test-secret",
		JWTExpiry:              time.Hour,
		ParticipantTokenExpiry: time.Hour,
		PollInterval:           50 * time.Millisecond,
	}
	log := zerolog.Nop()
	store := servicetest.NewStore()
	events := service.NewEventPublisher(rdb, log)
	cache := service.NewContentCache(rdb, time.Minute, log)
	auth := service.NewAuthService(cfg)

	sessions := service.NewLiveSessionService(store, cache, events, rdb, service.DefaultJoinCodeAttempts, log)
	participants := service.NewParticipantService(sessions, store.Participants(), store.Responses(), store.Checks(), events, rdb, log)
	progress := service.NewProgressService(participants, sessions, rdb, log)
	monitor := service.NewMonitorService(sessions, participants, store.Responses(), store.Checks(), store.Scrubs(), progress, log)

	handlers := &router.Handlers{
		LiveSession: handler.NewLiveSessionHandler(sessions, participants, monitor, cfg.PollInterval, log),
		Participant: handler.NewParticipantHandler(sessions, participants, progress, auth, cfg.PollInterval, log),
		Stream:      handler.NewStreamHandler(sessions, monitor, events, cfg.PollInterval, log),
		WS:          handler.NewWSHandler(participants, progress, events, cfg.PollInterval, log, nil),
		System:      handler.NewSystemHandler(nil, rdb, log),
	}
	limiter := middleware.NewRateLimiter(1000, time.Minute)

	return &app{
		engine: router.SetupRouter(auth, handlers, limiter, cfg, log),
		auth:   auth,
		store:  store,
		rdb:    rdb,
	}
}

func (a *app) token(t *testing.T, typ service.TokenType, userID string) string {
	t.Helper()
	tok, err := a.auth.GenerateToken(typ, userID)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return tok
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code   string            `json:"code"`
		Detail string            `json:"detail"`
		Fields map[string]string `json:"fields"`
	} `json:"error"`
}

func (a *app) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, env
}

func errCode(env envelope) string {
	if env.Error == nil {
		return ""
	}
	return env.Error.Code
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return v
}

func sessionBody() map[string]any {
	choices := []string{"one", "two", "three", "four"}
	return map[string]any{
		"video_url":              "https://videos.example/cells.mp4",
		"video_duration_seconds": 60,
		"content": map[string]any{
			"questions": []map[string]any{
				{"id": "q1", "text": "First?", "choices": choices, "correct_choice_index": 0},
				{"id": "q2", "text": "Second?", "choices": choices, "correct_choice_index": 1},
			},
			"attention_checks": []map[string]any{
				{"timestamp_seconds": 30, "question": "Still here?", "choices": choices, "correct_choice_letter": "c"},
			},
			"inquiry": map[string]any{"hook": "What is a cell?"},
		},
	}
}

// createSession hosts a session as hostID and returns its code.
func (a *app) createSession(t *testing.T, hostToken string) string {
	t.Helper()
	status, env := a.do(t, http.MethodPost, "/api/v1/live/sessions", hostToken, sessionBody())
	if status != http.StatusCreated {
		t.Fatalf("create session: status %d, error %s", status, errCode(env))
	}
	body := decode[struct {
		Session struct {
			Code string `json:"code"`
		} `json:"session"`
	}](t, env.Data)
	return body.Session.Code
}

type joinResult struct {
	Participant struct {
		ID    string `json:"id"`
		Phase string `json:"phase"`
	} `json:"participant"`
	Token         string `json:"token"`
	AlreadyJoined bool   `json:"already_joined"`
}

func (a *app) join(t *testing.T, code, name, studentToken string) (int, joinResult) {
	t.Helper()
	status, env := a.do(t, http.MethodPost, "/api/v1/live/join", studentToken, map[string]any{
		"code":         code,
		"display_name": name,
	})
	if env.Error != nil {
		t.Fatalf("join: status %d, error %s", status, errCode(env))
	}
	return status, decode[joinResult](t, env.Data)
}

func (a *app) sessionID(t *testing.T, code string) uuid.UUID {
	t.Helper()
	s, err := a.store.GetByCode(context.Background(), code)
	if err != nil {
		t.Fatalf("lookup %s: %v", code, err)
	}
	return s.ID
}
