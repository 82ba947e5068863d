package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/krshsl/praxis/grader/models"
	"github.com/krshsl/praxis/grader/scoring"
	ws "github.com/krshsl/praxis/grader/websocket"
)

const testOrigin = "http://localhost:5173"

// newEventServer serves the API with a running hub and the origin guard enabled.
func newEventServer(t *testing.T, env *testEnv) (*httptest.Server, *ws.Hub) {
	t.Helper()
	s := NewServer(&Config{WebSocket: WebSocketConfig{AllowedOrigins: testOrigin}}, env.repo)
	s.wsHub = ws.NewHub()
	go s.wsHub.Run()
	s.sessions = env.sessions
	s.pipeline = env.pipeline

	srv := httptest.NewServer(s.SetupRoutes())
	t.Cleanup(srv.Close)
	return srv, s.wsHub
}

func eventURL(srv *httptest.Server, sessionID string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws?session_id=" + sessionID
}

func TestEventStreamRejectsUnknownSessions(t *testing.T) {
	env := newTestEnv(t, scoring.ZeroFill)
	srv, _ := newEventServer(t, env)

	tests := []struct {
		name       string
		query      string
		wantStatus int
	}{
		{"missing session id", "", http.StatusBadRequest},
		{"unknown session", "?session_id=missing", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "/api/v1/ws" + tt.query)
			if err != nil {
				t.Fatalf("GET /api/v1/ws error = %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestEventStreamChecksOrigin(t *testing.T) {
	env := newTestEnv(t, scoring.ZeroFill)
	srv, hub := newEventServer(t, env)
	interview := createInterview(t, env, models.InterviewTechnical)
	session := startSession(t, env, interview.ID, models.InterviewTechnical)

	header := http.Header{"Origin": []string{"http://malicious.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(eventURL(srv, session.ID), header)
	if err == nil {
		t.Fatal("Dial() from a foreign origin succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("foreign origin response = %v, want 403", resp)
	}
	if hub.Subscribers(session.ID) != 0 {
		t.Errorf("foreign origin was subscribed")
	}
}

func TestEventStreamDeliversSessionEvents(t *testing.T) {
	env := newTestEnv(t, scoring.ZeroFill)
	srv, hub := newEventServer(t, env)
	interview := createInterview(t, env, models.InterviewTechnical)
	session := startSession(t, env, interview.ID, models.InterviewTechnical)

	header := http.Header{"Origin": []string{testOrigin}}
	conn, _, err := websocket.DefaultDialer.Dial(eventURL(srv, session.ID), header)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers(session.ID) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the subscription")
		}
		time.Sleep(5 * time.Millisecond)
	}

	NewHubPublisher(hub).Publish(Event{Type: EventSessionEnded, SessionID: session.ID})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if got.Type != EventSessionEnded || got.SessionID != session.ID {
		t.Errorf("event = %+v", got)
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed string
		origin  string
		want    bool
	}{
		{"first in list", "http://localhost,http://example.com", "http://localhost", true},
		{"whitespace in list", "http://localhost, http://example.com", "http://example.com", true},
		{"not listed", "http://localhost,http://example.com", "http://malicious.com", false},
		{"nothing configured", "", "http://localhost", false},
		{"port mismatch", testOrigin, "http://localhost:8080", false},
		{"no origin header", testOrigin, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := CheckOrigin(req, tt.allowed); got != tt.want {
				t.Errorf("CheckOrigin(%q, %q) = %v, want %v", tt.origin, tt.allowed, got, tt.want)
			}
		})
	}
}

func TestAPIIndex(t *testing.T) {
	env := newTestEnv(t, scoring.ZeroFill)
	srv, _ := newEventServer(t, env)

	resp, err := http.Get(srv.URL + "/api/v1/")
	if err != nil {
		t.Fatalf("GET /api/v1/ error = %v", err)
	}
	defer resp.Body.Close()
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["version"] == "" {
		t.Errorf("api index = %v", body)
	}
}
