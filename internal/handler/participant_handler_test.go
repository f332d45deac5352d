package handler_test

import (
	"net/http"
	"testing"

	"github.com/stemsi/livesession-backend/internal/config"
	"github.com/stemsi/livesession-backend/internal/service"
)

type meBody struct {
	Participant struct {
		ID    string `json:"id"`
		Score int    `json:"score"`
		Phase string `json:"phase"`
	} `json:"participant"`
	Rank              int      `json:"rank"`
	TotalParticipants int      `json:"total_participants"`
	SessionStatus     string   `json:"session_status"`
	CompletedChecks   []int    `json:"completed_checks"`
	AnsweredQuestions []string `json:"answered_questions"`
}

func TestJoin(t *testing.T) {
	a := newApp(t)
	code := a.createSession(t, a.token(t, service.TokenTypeHost, "teacher-1"))
	student := a.token(t, service.TokenTypeStudent, "student-7")

	status, first := a.join(t, code, "  Ada  ", student)
	if status != http.StatusCreated || first.AlreadyJoined {
		t.Fatalf("first join: status %d, already_joined %v", status, first.AlreadyJoined)
	}
	if first.Token == "" || first.Participant.Phase != "waiting" {
		t.Fatalf("first join: %+v", first)
	}

	status, again := a.join(t, code, "Ada again", student)
	if status != http.StatusOK || !again.AlreadyJoined {
		t.Fatalf("repeat join: status %d, already_joined %v", status, again.AlreadyJoined)
	}
	if again.Participant.ID != first.Participant.ID {
		t.Fatalf("repeat join created %s, want %s", again.Participant.ID, first.Participant.ID)
	}

	// Guests never collide.
	_, g1 := a.join(t, code, "Guest", "")
	_, g2 := a.join(t, code, "Guest", "")
	if g1.Participant.ID == g2.Participant.ID {
		t.Fatal("two guests share a participant")
	}

	if n := a.store.ParticipantCount(a.sessionID(t, code)); n != 3 {
		t.Fatalf("participant count = %d, want 3", n)
	}
}

func TestJoinErrors(t *testing.T) {
	a := newApp(t)
	code := a.createSession(t, a.token(t, service.TokenTypeHost, "teacher-1"))

	cases := []struct {
		name   string
		token  string
		body   map[string]any
		status int
		code   string
	}{
		{"malformed code", "", map[string]any{"code": "AB1", "display_name": "Ada"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown code", "", map[string]any{"code": "ZZZZZZ", "display_name": "Ada"}, http.StatusNotFound, "SESSION_NOT_FOUND"},
		{"blank name", "", map[string]any{"code": code, "display_name": "   "}, http.StatusBadRequest, "INVALID_DISPLAY_NAME"},
		{"missing name", "", map[string]any{"code": code}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"host token", a.token(t, service.TokenTypeHost, "teacher-1"), map[string]any{"code": code, "display_name": "Ada"}, http.StatusForbidden, "FORBIDDEN"},
		{"garbage token", "not-a-jwt", map[string]any{"code": code, "display_name": "Ada"}, http.StatusUnauthorized, "TOKEN_INVALID"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, env := a.do(t, http.MethodPost, "/api/v1/live/join", tc.token, tc.body)
			if status != tc.status || errCode(env) != tc.code {
				t.Fatalf("got %d %s, want %d %s", status, errCode(env), tc.status, tc.code)
			}
		})
	}
}

// TestClassroomOverHTTP walks one student through every phase.
func TestClassroomOverHTTP(t *testing.T) {
	a := newApp(t)
	host := a.token(t, service.TokenTypeHost, "teacher-1")
	code := a.createSession(t, host)
	_, joined := a.join(t, code, "Ada", "")
	me := joined.Token

	phase := func(to string, pos *float64) (int, string) {
		body := map[string]any{"phase": to}
		if pos != nil {
			body["video_position_seconds"] = *pos
		}
		status, env := a.do(t, http.MethodPatch, "/api/v1/live/me/phase", me, body)
		return status, errCode(env)
	}
	expect := func(step string, gotStatus int, gotCode string, wantStatus int, wantCode string) {
		t.Helper()
		if gotStatus != wantStatus || gotCode != wantCode {
			t.Fatalf("%s: got %d %q, want %d %q", step, gotStatus, gotCode, wantStatus, wantCode)
		}
	}

	s, c := phase("inquiry", nil)
	expect("inquiry before start", s, c, http.StatusConflict, "SESSION_NOT_ACTIVE")

	s, env := a.do(t, http.MethodPatch, "/api/v1/live/sessions/"+code+"/status", host, map[string]string{"status": "active"})
	expect("activate", s, errCode(env), http.StatusOK, "")

	s, c = phase("quiz", nil)
	expect("skip ahead", s, c, http.StatusConflict, "INVALID_TRANSITION")
	s, c = phase("inquiry", nil)
	expect("inquiry", s, c, http.StatusOK, "")
	s, c = phase("inquiry", nil)
	expect("inquiry again", s, c, http.StatusOK, "")

	s, env = a.do(t, http.MethodPost, "/api/v1/live/me/checks", me, map[string]any{"order": 0, "choice": "C"})
	expect("check in inquiry", s, errCode(env), http.StatusConflict, "WRONG_PHASE")

	s, c = phase("video", nil)
	expect("video", s, c, http.StatusOK, "")

	end := 59.0
	s, c = phase("quiz", &end)
	expect("quiz with open check", s, c, http.StatusConflict, "CHECKS_INCOMPLETE")

	s, env = a.do(t, http.MethodPost, "/api/v1/live/me/checks", me, map[string]any{"order": 3, "choice": "C"})
	expect("unknown check", s, errCode(env), http.StatusNotFound, "CHECK_NOT_FOUND")

	s, env = a.do(t, http.MethodPost, "/api/v1/live/me/checks", me, map[string]any{"order": 0, "choice": "c"})
	expect("check", s, errCode(env), http.StatusOK, "")
	check := decode[struct {
		Correct  bool `json:"correct"`
		Awarded  int  `json:"awarded"`
		Recorded bool `json:"recorded"`
	}](t, env.Data)
	if !check.Correct || check.Awarded != 5 || !check.Recorded {
		t.Fatalf("check result = %+v", check)
	}

	s, env = a.do(t, http.MethodPost, "/api/v1/live/me/checks", me, map[string]any{"order": 0, "choice": "A"})
	expect("check again", s, errCode(env), http.StatusOK, "")
	again := decode[struct {
		Awarded  int  `json:"awarded"`
		Recorded bool `json:"recorded"`
	}](t, env.Data)
	if again.Awarded != 0 || again.Recorded {
		t.Fatalf("repeat check scored: %+v", again)
	}

	early := 20.0
	s, c = phase("quiz", &early)
	expect("quiz mid video", s, c, http.StatusConflict, "VIDEO_NOT_FINISHED")
	s, c = phase("quiz", &end)
	expect("quiz", s, c, http.StatusOK, "")

	s, env = a.do(t, http.MethodPost, "/api/v1/live/me/answers", me, map[string]any{"question_id": "nope", "selected_choice": 0})
	expect("unknown question", s, errCode(env), http.StatusNotFound, "QUESTION_NOT_FOUND")
	s, env = a.do(t, http.MethodPost, "/api/v1/live/me/answers", me, map[string]any{"question_id": "q1", "selected_choice": 0})
	expect("answer q1", s, errCode(env), http.StatusOK, "")
	s, env = a.do(t, http.MethodPost, "/api/v1/live/me/answers", me, map[string]any{"question_id": "q1", "selected_choice": 3})
	expect("answer q1 again", s, errCode(env), http.StatusOK, "")
	s, env = a.do(t, http.MethodPost, "/api/v1/live/me/answers", me, map[string]any{"question_id": "q2", "selected_choice": 0})
	expect("answer q2", s, errCode(env), http.StatusOK, "")

	s, env = a.do(t, http.MethodGet, "/api/v1/live/me", me, nil)
	expect("me", s, errCode(env), http.StatusOK, "")
	state := decode[meBody](t, env.Data)
	if state.Participant.Score != 15 || state.Participant.Phase != "completed" {
		t.Fatalf("final state = %+v, want score 15 completed", state.Participant)
	}
	if state.Rank != 1 || state.TotalParticipants != 1 || state.SessionStatus != "active" {
		t.Fatalf("final state = %+v", state)
	}
	if len(state.CompletedChecks) != 1 || len(state.AnsweredQuestions) != 2 {
		t.Fatalf("final state = %+v", state)
	}

	s, env = a.do(t, http.MethodGet, "/api/v1/live/sessions/"+code+"/responses", host, nil)
	expect("responses", s, errCode(env), http.StatusOK, "")
	log := decode[struct {
		Responses []struct {
			QuestionID string `json:"question_id"`
			IsCorrect  bool   `json:"is_correct"`
		} `json:"responses"`
	}](t, env.Data)
	if len(log.Responses) != 2 {
		t.Fatalf("logged %d responses, want 2 (first answer wins)", len(log.Responses))
	}
}

func TestProgressAndScrubs(t *testing.T) {
	a := newApp(t)
	code := a.createSession(t, a.token(t, service.TokenTypeHost, "teacher-1"))
	_, joined := a.join(t, code, "Ada", "")

	status, env := a.do(t, http.MethodPut, "/api/v1/live/me/progress", joined.Token, map[string]any{"position_seconds": 75})
	if status != http.StatusOK {
		t.Fatalf("progress: %d %s", status, errCode(env))
	}
	saved := decode[struct {
		PositionSeconds float64 `json:"position_seconds"`
	}](t, env.Data)
	if saved.PositionSeconds != 60 {
		t.Fatalf("position = %v, want clamped to 60", saved.PositionSeconds)
	}

	status, env = a.do(t, http.MethodPut, "/api/v1/live/me/progress", joined.Token, map[string]any{"position_seconds": -1})
	if status != http.StatusBadRequest || errCode(env) != "VALIDATION_ERROR" {
		t.Fatalf("negative progress: got %d %s", status, errCode(env))
	}

	status, env = a.do(t, http.MethodPost, "/api/v1/live/me/scrubs", joined.Token, map[string]any{"from_seconds": 30, "to_seconds": 12})
	if status != http.StatusAccepted {
		t.Fatalf("scrub: %d %s", status, errCode(env))
	}
	status, env = a.do(t, http.MethodPost, "/api/v1/live/me/scrubs", joined.Token, map[string]any{"from_seconds": 12, "to_seconds": 30})
	if status != http.StatusBadRequest || errCode(env) != "INVALID_SCRUB" {
		t.Fatalf("forward scrub: got %d %s", status, errCode(env))
	}

	if n, _ := a.rdb.LLen(t.Context(), config.WorkerKey.PersistProgressQueue).Result(); n != 1 {
		t.Fatalf("progress queue length = %d, want 1", n)
	}
	if n, _ := a.rdb.LLen(t.Context(), config.WorkerKey.PersistScrubsQueue).Result(); n != 1 {
		t.Fatalf("scrub queue length = %d, want 1", n)
	}

	status, env = a.do(t, http.MethodPut, "/api/v1/live/me/progress", a.token(t, service.TokenTypeStudent, "s-1"), map[string]any{"position_seconds": 5})
	if status != http.StatusForbidden || errCode(env) != "PARTICIPANT_ACCESS_ONLY" {
		t.Fatalf("student token on /me: got %d %s", status, errCode(env))
	}
}

func TestDashboardEndpoint(t *testing.T) {
	a := newApp(t)
	host := a.token(t, service.TokenTypeHost, "teacher-1")
	code := a.createSession(t, host)
	a.join(t, code, "Ada", "")
	a.join(t, code, "Bob", "")

	status, env := a.do(t, http.MethodGet, "/api/v1/live/sessions/"+code+"/dashboard", host, nil)
	if status != http.StatusOK {
		t.Fatalf("dashboard: %d %s", status, errCode(env))
	}
	body := decode[struct {
		Dashboard struct {
			Stats struct {
				TotalParticipants int            `json:"total_participants"`
				ByPhase           map[string]int `json:"by_phase"`
			} `json:"stats"`
			Leaderboard []struct {
				Rank        int    `json:"rank"`
				DisplayName string `json:"display_name"`
			} `json:"leaderboard"`
		} `json:"dashboard"`
	}](t, env.Data)
	d := body.Dashboard
	if d.Stats.TotalParticipants != 2 || d.Stats.ByPhase["waiting"] != 2 {
		t.Fatalf("stats = %+v", d.Stats)
	}
	// Equal scores fall back to join order.
	if len(d.Leaderboard) != 2 || d.Leaderboard[0].DisplayName != "Ada" || d.Leaderboard[1].Rank != 2 {
		t.Fatalf("leaderboard = %+v", d.Leaderboard)
	}
}
