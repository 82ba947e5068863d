package services

import (
	"encoding/json"
	"log/slog"
	"time"

	ws "github.com/krshsl/praxis/grader/websocket"
)

// Event types pushed to session subscribers
const (
	EventSubmissionReceived    = "submission.received"
	EventSubmissionTranscribed = "submission.transcribed"
	EventSubmissionScored      = "submission.scored"
	EventSubmissionFailed      = "submission.failed"
	EventSessionEnded          = "session.ended"
)

type Event struct {
	Type       string         `json:"type"`
	SessionID  string         `json:"session_id"`
	QuestionID string         `json:"question_id,omitempty"`
	ResponseID string         `json:"response_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Publisher fans submission progress out to whoever watches a session.
type Publisher interface {
	Publish(event Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// HubPublisher delivers events to websocket clients subscribed to the event's session.
type HubPublisher struct {
	hub *ws.Hub
}

func NewHubPublisher(hub *ws.Hub) *HubPublisher {
	return &HubPublisher{hub: hub}
}

func (p *HubPublisher) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to encode event", "error", err, "type", event.Type, "session_id", event.SessionID)
		return
	}
	p.hub.BroadcastToSession(event.SessionID, payload)
}
