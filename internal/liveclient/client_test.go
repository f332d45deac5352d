package liveclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/livesession-backend/internal/config"
	"github.com/stemsi/livesession-backend/internal/handler"
	"github.com/stemsi/livesession-backend/internal/liveclient"
	"github.com/stemsi/livesession-backend/internal/middleware"
	"github.com/stemsi/livesession-backend/internal/model"
	"github.com/stemsi/livesession-backend/internal/router"
	"github.com/stemsi/livesession-backend/internal/service"
	"github.com/stemsi/livesession-backend/internal/service/servicetest"
	"github.com/stemsi/livesession-backend/internal/validator"
)

type server struct {
	url  string
	auth *service.AuthService
	rdb  *redis.Client
}

func newServer(t *testing.T) *server {
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
		JWTSecret:              "liveclient-test-secret",
		JWTExpiry:              time.Hour,
		ParticipantTokenExpiry: time.Hour,
		PollInterval:           20 * time.Millisecond,
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
	engine := router.SetupRouter(auth, handlers, middleware.NewRateLimiter(1000, time.Minute), cfg, log)

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return &server{url: srv.URL, auth: auth, rdb: rdb}
}

func (s *server) host(t *testing.T) *liveclient.Client {
	t.Helper()
	tok, err := s.auth.GenerateToken(service.TokenTypeHost, "teacher-1")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return liveclient.NewClient(s.url, tok)
}

func lesson() *model.CreateLiveSessionRequest {
	choices := []string{"one", "two", "three", "four"}
	return &model.CreateLiveSessionRequest{
		VideoURL:             "https://videos.example/cells.mp4",
		VideoDurationSeconds: 20,
		Content: model.SessionContent{
			Questions: []model.Question{
				{ID: "q1", Text: "First?", Choices: choices, CorrectChoiceIndex: 0},
				{ID: "q2", Text: "Second?", Choices: choices, CorrectChoiceIndex: 1},
			},
			AttentionChecks: []model.AttentionCheck{
				{TimestampSeconds: 8, Question: "Still here?", Choices: choices, CorrectChoiceLetter: "C"},
			},
			Inquiry: model.InquiryContent{Hook: "What is a cell?"},
		},
	}
}

// knowItAll always answers correctly for lesson().
func knowItAll(prompt string, _ []string) int {
	switch prompt {
	case "Still here?":
		return 2
	case "Second?":
		return 1
	}
	return 0
}

func TestClientErrors(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	host := s.host(t)

	created, err := host.CreateSession(ctx, lesson())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.PollInterval() != 20*time.Millisecond {
		t.Fatalf("poll interval = %v", created.PollInterval())
	}
	code := created.Session.Code

	t.Run("status conflicts are transient with a code", func(t *testing.T) {
		student := liveclient.NewClient(s.url, "")
		joined, err := student.Join(ctx, code, "Ada")
		if err != nil {
			t.Fatalf("join: %v", err)
		}
		_, err = student.WithToken(joined.Token).UpdatePhase(ctx, model.PhaseInquiry, nil)
		var te *liveclient.TransientError
		if !errors.As(err, &te) || te.Status != http.StatusConflict || te.Code != "SESSION_NOT_ACTIVE" {
			t.Fatalf("err = %v, want 409 SESSION_NOT_ACTIVE", err)
		}
	})

	t.Run("ended session is gone", func(t *testing.T) {
		student := liveclient.NewClient(s.url, "")
		joined, err := student.Join(ctx, code, "Bob")
		if err != nil {
			t.Fatalf("join: %v", err)
		}
		if err := host.EndSession(ctx, code); err != nil {
			t.Fatalf("end: %v", err)
		}
		if _, err := student.SessionView(ctx, code); !errors.Is(err, liveclient.ErrGone) {
			t.Fatalf("SessionView() = %v, want ErrGone", err)
		}
		if _, err := student.WithToken(joined.Token).Me(ctx); !errors.Is(err, liveclient.ErrGone) {
			t.Fatalf("Me() = %v, want ErrGone", err)
		}
	})

	t.Run("server errors are transient", func(t *testing.T) {
		broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer broken.Close()

		_, err := liveclient.NewClient(broken.URL, "").SessionView(ctx, "ABC123")
		var te *liveclient.TransientError
		if !errors.As(err, &te) || te.Status != http.StatusBadGateway {
			t.Fatalf("err = %v, want transient 502", err)
		}
		if errors.Is(err, liveclient.ErrGone) {
			t.Fatal("502 must not be terminal")
		}
	})

	t.Run("network errors are transient", func(t *testing.T) {
		_, err := liveclient.NewClient("http://127.0.0.1:1", "").SessionView(ctx, "ABC123")
		var te *liveclient.TransientError
		if !errors.As(err, &te) || te.Status != 0 {
			t.Fatalf("err = %v, want transient network error", err)
		}
	})
}

func TestStudentRunnerCompletesSession(t *testing.T) {
	s := newServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	host := s.host(t)

	created, err := host.CreateSession(ctx, lesson())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	code := created.Session.Code

	runner := liveclient.NewStudentRunner(liveclient.NewClient(s.url, ""), code, "Ada", zerolog.Nop(),
		liveclient.WithTick(0), liveclient.WithChooser(knowItAll), liveclient.WithScrub())

	type outcome struct {
		res *liveclient.RunResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := runner.Run(ctx)
		done <- outcome{res, err}
	}()

	// The runner sits in waiting until the host starts.
	time.Sleep(100 * time.Millisecond)
	if _, err := host.SetStatus(ctx, code, model.LiveSessionStatusActive); err != nil {
		t.Fatalf("activate: %v", err)
	}

	out := <-done
	if out.err != nil {
		t.Fatalf("run: %v", out.err)
	}
	res := out.res
	if res.Participant.Phase != model.PhaseCompleted {
		t.Fatalf("phase = %s, want completed", res.Participant.Phase)
	}
	if res.Participant.Score != 25 || res.CheckAwarded != 5 || res.Correct != 2 {
		t.Fatalf("result = %+v, want score 25 with 5 from the check", res)
	}
	if res.Scrubs != 1 {
		t.Fatalf("scrubs = %d, want 1", res.Scrubs)
	}
	if n := s.rdb.LLen(ctx, config.WorkerKey.PersistScrubsQueue).Val(); n != 1 {
		t.Fatalf("scrub queue length = %d, want 1", n)
	}

	view, err := liveclient.TeacherPoll(ctx, host, code)
	if err != nil {
		t.Fatalf("teacher poll: %v", err)
	}
	if len(view.Leaderboard) != 1 || view.Leaderboard[0].Score != 25 {
		t.Fatalf("leaderboard = %+v", view.Leaderboard)
	}
	if len(view.Accuracy) != 2 || view.Accuracy[0].Correct != 1 || view.Accuracy[1].Accuracy != 1 {
		t.Fatalf("accuracy = %+v", view.Accuracy)
	}
	if len(view.Responses) != 2 {
		t.Fatalf("responses = %d, want 2", len(view.Responses))
	}
}

func TestStudentPollRanksLocally(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	host := s.host(t)

	created, err := host.CreateSession(ctx, lesson())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	code := created.Session.Code

	guest := liveclient.NewClient(s.url, "")
	first, err := guest.Join(ctx, code, "Ada")
	if err != nil {
		t.Fatalf("join Ada: %v", err)
	}
	second, err := guest.Join(ctx, code, "Bob")
	if err != nil {
		t.Fatalf("join Bob: %v", err)
	}

	view, err := liveclient.StudentPoll(ctx, guest.WithToken(second.Token), code)
	if err != nil {
		t.Fatalf("student poll: %v", err)
	}
	if view.Total != 2 || view.Rank != 2 {
		t.Fatalf("total %d rank %d, want 2 and 2 (ties break by join time)", view.Total, view.Rank)
	}
	if view.State.Participant.ID != second.Participant.ID {
		t.Fatalf("state is for %s", view.State.Participant.ID)
	}
	if len(view.Session.Questions) != 2 {
		t.Fatalf("view has %d questions", len(view.Session.Questions))
	}

	if err := host.EndSession(ctx, code); err != nil {
		t.Fatalf("end: %v", err)
	}
	p := liveclient.NewPoller(10*time.Millisecond, func(ctx context.Context) error {
		_, err := liveclient.StudentPoll(ctx, guest.WithToken(first.Token), code)
		return err
	}, zerolog.Nop())
	if err := p.Run(ctx); !errors.Is(err, liveclient.ErrGone) {
		t.Fatalf("poller stopped with %v, want ErrGone", err)
	}
}
