package handler_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stemsi/livesession-backend/internal/service"
)

func TestParticipantWebSocket(t *testing.T) {
	a := newApp(t)
	host := a.token(t, service.TokenTypeHost, "teacher-1")
	code := a.createSession(t, host)
	_, joined := a.join(t, code, "Ada", "")

	srv := httptest.NewServer(a.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/live/me?token=" + joined.Token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	type message struct {
		Event string `json:"event"`
		State *struct {
			Participant struct {
				ID string `json:"id"`
			} `json:"participant"`
		} `json:"state"`
		PositionSeconds float64 `json:"position_seconds"`
		Reason          string  `json:"reason"`
	}
	readUntil := func(event string) message {
		t.Helper()
		for {
			var m message
			if err := conn.ReadJSON(&m); err != nil {
				t.Fatalf("waiting for %q: %v", event, err)
			}
			if m.Event == event {
				return m
			}
		}
	}

	snap := readUntil("snapshot")
	if snap.State == nil || snap.State.Participant.ID != joined.Participant.ID {
		t.Fatalf("snapshot = %+v", snap)
	}

	pos := 12.5
	if err := conn.WriteJSON(map[string]any{"action": "progress", "position_seconds": pos}); err != nil {
		t.Fatalf("write progress: %v", err)
	}
	if saved := readUntil("progress_saved"); saved.PositionSeconds != pos {
		t.Fatalf("saved position = %v, want %v", saved.PositionSeconds, pos)
	}

	if err := conn.WriteJSON(map[string]any{"action": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	readUntil("pong")

	status, env := a.do(t, http.MethodDelete, "/api/v1/live/sessions/"+code, host, nil)
	if status != http.StatusOK {
		t.Fatalf("end: %d %s", status, errCode(env))
	}
	readUntil("ended")
}

func TestParticipantWebSocketRejectsStaleToken(t *testing.T) {
	a := newApp(t)
	host := a.token(t, service.TokenTypeHost, "teacher-1")
	code := a.createSession(t, host)
	_, joined := a.join(t, code, "Ada", "")
	a.do(t, http.MethodDelete, "/api/v1/live/sessions/"+code, host, nil)

	srv := httptest.NewServer(a.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/live/me?token=" + joined.Token
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial succeeded for a deleted participant")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("handshake response = %v, want 404", resp)
	}
}

func TestSessionStream(t *testing.T) {
	a := newApp(t)
	host := a.token(t, service.TokenTypeHost, "teacher-1")
	code := a.createSession(t, host)

	srv := httptest.NewServer(a.engine)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/live/sessions/"+code+"/stream", nil)
	req.Header.Set("Authorization", "Bearer "+host)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}

	events := make(chan string, 64)
	go func() {
		defer close(events)
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		var name string
		for sc.Scan() {
			line := sc.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:") && name != "":
				events <- name + " " + strings.TrimSpace(strings.TrimPrefix(line, "data:"))
				name = ""
			}
		}
	}()

	next := func(want string) string {
		t.Helper()
		for ev := range events {
			if strings.HasPrefix(ev, want+" ") {
				return strings.TrimPrefix(ev, want+" ")
			}
		}
		t.Fatalf("stream closed before %q", want)
		return ""
	}

	var first struct {
		Session struct {
			Code string `json:"code"`
		} `json:"session"`
	}
	if err := json.Unmarshal([]byte(next("snapshot")), &first); err != nil || first.Session.Code != code {
		t.Fatalf("first snapshot: %+v, %v", first, err)
	}

	a.join(t, code, "Ada", "")
	var change service.Event
	if err := json.Unmarshal([]byte(next("change")), &change); err != nil {
		t.Fatalf("decode change: %v", err)
	}
	if change.Type != service.EventParticipantJoined {
		t.Fatalf("change type = %s", change.Type)
	}

	a.do(t, http.MethodDelete, "/api/v1/live/sessions/"+code, host, nil)
	next("ended")
}
