package handler_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stemsi/livesession-backend/internal/service"
)

func TestCreateSessionValidation(t *testing.T) {
	a := newApp(t)
	host := a.token(t, service.TokenTypeHost, "teacher-1")

	t.Run("three choices", func(t *testing.T) {
		body := sessionBody()
		content := body["content"].(map[string]any)
		questions := content["questions"].([]map[string]any)
		questions[0]["choices"] = []string{"a", "b", "c"}

		status, env := a.do(t, http.MethodPost, "/api/v1/live/sessions", host, body)
		if status != http.StatusBadRequest || errCode(env) != "VALIDATION_ERROR" {
			t.Fatalf("got %d %s, want 400 VALIDATION_ERROR", status, errCode(env))
		}
		if _, ok := env.Error.Fields["content.questions[0].choices"]; !ok {
			t.Fatalf("fields = %v, want content.questions[0].choices", env.Error.Fields)
		}
	})

	t.Run("check past the end of the video", func(t *testing.T) {
		body := sessionBody()
		content := body["content"].(map[string]any)
		checks := content["attention_checks"].([]map[string]any)
		checks[0]["timestamp_seconds"] = 120

		status, env := a.do(t, http.MethodPost, "/api/v1/live/sessions", host, body)
		if status != http.StatusUnprocessableEntity || errCode(env) != "INVALID_CONTENT" {
			t.Fatalf("got %d %s, want 422 INVALID_CONTENT", status, errCode(env))
		}
		if env.Error.Detail == "" {
			t.Fatal("expected a detail message")
		}
	})

	t.Run("student token", func(t *testing.T) {
		student := a.token(t, service.TokenTypeStudent, "student-1")
		status, env := a.do(t, http.MethodPost, "/api/v1/live/sessions", student, sessionBody())
		if status != http.StatusForbidden || errCode(env) != "HOST_ACCESS_ONLY" {
			t.Fatalf("got %d %s, want 403 HOST_ACCESS_ONLY", status, errCode(env))
		}
	})
}

func TestSessionViewHidesAnswers(t *testing.T) {
	a := newApp(t)
	host := a.token(t, service.TokenTypeHost, "teacher-1")
	code := a.createSession(t, host)

	status, env := a.do(t, http.MethodGet, "/api/v1/live/join/"+strings.ToLower(code), "", nil)
	if status != http.StatusOK {
		t.Fatalf("view: status %d, error %s", status, errCode(env))
	}
	raw := string(env.Data)
	if strings.Contains(raw, "correct_choice_index") || strings.Contains(raw, "correct_choice_letter") {
		t.Fatalf("student view leaks answer keys: %s", raw)
	}

	status, env = a.do(t, http.MethodGet, "/api/v1/live/sessions/"+code, host, nil)
	if status != http.StatusOK || !strings.Contains(string(env.Data), "correct_choice_index") {
		t.Fatalf("host view: status %d, body %s", status, env.Data)
	}
}

func TestHostOwnership(t *testing.T) {
	a := newApp(t)
	code := a.createSession(t, a.token(t, service.TokenTypeHost, "teacher-1"))
	other := a.token(t, service.TokenTypeHost, "teacher-2")

	paths := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/api/v1/live/sessions/" + code, nil},
		{http.MethodPatch, "/api/v1/live/sessions/" + code + "/status", map[string]string{"status": "active"}},
		{http.MethodDelete, "/api/v1/live/sessions/" + code, nil},
		{http.MethodGet, "/api/v1/live/sessions/" + code + "/participants", nil},
		{http.MethodGet, "/api/v1/live/sessions/" + code + "/responses", nil},
		{http.MethodGet, "/api/v1/live/sessions/" + code + "/dashboard", nil},
	}
	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			status, env := a.do(t, p.method, p.path, other, p.body)
			if status != http.StatusForbidden || errCode(env) != "NOT_SESSION_HOST" {
				t.Fatalf("got %d %s, want 403 NOT_SESSION_HOST", status, errCode(env))
			}
		})
	}
	if a.store.SessionCount() != 1 {
		t.Fatal("a foreign host must not end the session")
	}
}

func TestStatusTransitions(t *testing.T) {
	a := newApp(t)
	host := a.token(t, service.TokenTypeHost, "teacher-1")
	code := a.createSession(t, host)
	path := "/api/v1/live/sessions/" + code + "/status"

	status, env := a.do(t, http.MethodPatch, path, host, map[string]string{"status": "active"})
	if status != http.StatusOK {
		t.Fatalf("activate: %d %s", status, errCode(env))
	}
	status, _ = a.do(t, http.MethodPatch, path, host, map[string]string{"status": "active"})
	if status != http.StatusOK {
		t.Fatalf("repeat activate: status %d, want 200", status)
	}
	status, env = a.do(t, http.MethodPatch, path, host, map[string]string{"status": "waiting"})
	if status != http.StatusConflict || errCode(env) != "INVALID_STATUS_TRANSITION" {
		t.Fatalf("back to waiting: got %d %s", status, errCode(env))
	}
	status, env = a.do(t, http.MethodPatch, path, host, map[string]string{"status": "paused"})
	if status != http.StatusBadRequest || errCode(env) != "VALIDATION_ERROR" {
		t.Fatalf("unknown status: got %d %s", status, errCode(env))
	}

	status, env = a.do(t, http.MethodPatch, path, host, map[string]string{"status": "ended"})
	if status != http.StatusOK {
		t.Fatalf("end: %d %s", status, errCode(env))
	}
	status, env = a.do(t, http.MethodGet, "/api/v1/live/sessions/"+code, host, nil)
	if status != http.StatusNotFound || errCode(env) != "SESSION_NOT_FOUND" {
		t.Fatalf("after end: got %d %s, want 404 SESSION_NOT_FOUND", status, errCode(env))
	}
}

func TestListSessions(t *testing.T) {
	a := newApp(t)
	host := a.token(t, service.TokenTypeHost, "teacher-1")
	a.createSession(t, host)
	a.createSession(t, host)
	a.createSession(t, a.token(t, service.TokenTypeHost, "teacher-2"))

	status, env := a.do(t, http.MethodGet, "/api/v1/live/sessions", host, nil)
	if status != http.StatusOK {
		t.Fatalf("list: %d %s", status, errCode(env))
	}
	body := decode[struct {
		Sessions []struct {
			HostID string `json:"host_id"`
		} `json:"sessions"`
	}](t, env.Data)
	if len(body.Sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(body.Sessions))
	}
	for _, s := range body.Sessions {
		if s.HostID != "teacher-1" {
			t.Fatalf("listed another host's session: %s", s.HostID)
		}
	}
}

func TestParticipantsEndpointAccess(t *testing.T) {
	a := newApp(t)
	host := a.token(t, service.TokenTypeHost, "teacher-1")
	code := a.createSession(t, host)
	otherCode := a.createSession(t, host)

	_, ada := a.join(t, code, "Ada", "")
	_, bob := a.join(t, otherCode, "Bob", "")

	status, env := a.do(t, http.MethodGet, "/api/v1/live/sessions/"+code+"/participants", ada.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("own session: %d %s", status, errCode(env))
	}
	if strings.Contains(string(env.Data), `"participants"`) {
		t.Fatal("participants must only see the leaderboard")
	}

	status, env = a.do(t, http.MethodGet, "/api/v1/live/sessions/"+code+"/participants", bob.Token, nil)
	if status != http.StatusForbidden || errCode(env) != "FORBIDDEN" {
		t.Fatalf("other session: got %d %s, want 403 FORBIDDEN", status, errCode(env))
	}

	status, env = a.do(t, http.MethodGet, "/api/v1/live/sessions/"+code+"/participants", host, nil)
	if status != http.StatusOK || !strings.Contains(string(env.Data), `"participants"`) {
		t.Fatalf("host: status %d, body %s", status, env.Data)
	}

	student := a.token(t, service.TokenTypeStudent, "student-1")
	status, _ = a.do(t, http.MethodGet, "/api/v1/live/sessions/"+code+"/participants", student, nil)
	if status != http.StatusForbidden {
		t.Fatalf("student token: status %d, want 403", status)
	}
}

func TestEndSessionIsTerminalForParticipants(t *testing.T) {
	a := newApp(t)
	host := a.token(t, service.TokenTypeHost, "teacher-1")
	code := a.createSession(t, host)
	_, joined := a.join(t, code, "Ada", "")

	status, env := a.do(t, http.MethodDelete, "/api/v1/live/sessions/"+code, host, nil)
	if status != http.StatusOK {
		t.Fatalf("end: %d %s", status, errCode(env))
	}

	status, env = a.do(t, http.MethodGet, "/api/v1/live/me", joined.Token, nil)
	if status != http.StatusNotFound || errCode(env) != "PARTICIPANT_NOT_FOUND" {
		t.Fatalf("me after end: got %d %s", status, errCode(env))
	}
	status, env = a.do(t, http.MethodGet, "/api/v1/live/sessions/"+code+"/participants", joined.Token, nil)
	if status != http.StatusNotFound || errCode(env) != "SESSION_NOT_FOUND" {
		t.Fatalf("leaderboard after end: got %d %s", status, errCode(env))
	}
	status, env = a.do(t, http.MethodDelete, "/api/v1/live/sessions/"+code, host, nil)
	if status != http.StatusNotFound {
		t.Fatalf("second end: got %d %s, want 404", status, errCode(env))
	}
}

func TestHealth(t *testing.T) {
	a := newApp(t)
	status, env := a.do(t, http.MethodGet, "/health", "", nil)
	if status != http.StatusOK {
		t.Fatalf("health: %d %s", status, errCode(env))
	}
}
