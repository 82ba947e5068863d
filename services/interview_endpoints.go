package services

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jinzhu/copier"
	"github.com/krshsl/praxis/grader/models"
)

type InterviewEndpoints struct {
	sessions *SessionStateMachine
}

func NewInterviewEndpoints(sessions *SessionStateMachine) *InterviewEndpoints {
	return &InterviewEndpoints{sessions: sessions}
}

type CreateInterviewRequest struct {
	OwnerID     string `json:"owner_id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type StartSessionRequest struct {
	Type string `json:"type"`
}

// SessionView is the API form of a session.
type SessionView struct {
	ID                string               `json:"id"`
	InterviewID       string               `json:"interview_id"`
	Type              models.InterviewType `json:"type"`
	Status            models.SessionStatus `json:"status"`
	StartedAt         time.Time            `json:"started_at"`
	EndedAt           *time.Time           `json:"ended_at,omitempty"`
	Duration          *int                 `json:"duration,omitempty"`
	SessionScore      *float64             `json:"session_score,omitempty"`
	QuestionsAnswered int                  `json:"questions_answered"`
}

func (e *InterviewEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/interviews", func(r chi.Router) {
		r.Post("/", e.CreateInterviewHandler)
		r.Get("/{id}/summary", e.SummaryHandler)
		r.Post("/{id}/cancel", e.CancelInterviewHandler)
		r.Post("/{id}/sessions", e.StartSessionHandler)
	})
	r.Post("/sessions/{id}/end", e.EndSessionHandler)
	r.Get("/sessions/{id}/next-question", e.NextQuestionHandler)
}

func (e *InterviewEndpoints) CreateInterviewHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateInterviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	interview, err := e.sessions.CreateInterview(r.Context(), req.OwnerID, models.InterviewType(req.Type), req.Title, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, interview)
}

func (e *InterviewEndpoints) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := e.sessions.Summarize(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (e *InterviewEndpoints) CancelInterviewHandler(w http.ResponseWriter, r *http.Request) {
	interview, err := e.sessions.CancelInterview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, interview)
}

func (e *InterviewEndpoints) StartSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	session, err := e.sessions.StartSession(r.Context(), chi.URLParam(r, "id"), models.InterviewType(req.Type))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionView(session))
}

func (e *InterviewEndpoints) EndSessionHandler(w http.ResponseWriter, r *http.Request) {
	session, err := e.sessions.EndSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(session))
}

func (e *InterviewEndpoints) NextQuestionHandler(w http.ResponseWriter, r *http.Request) {
	difficulty := models.Difficulty(r.URL.Query().Get("difficulty"))
	question, err := e.sessions.NextQuestion(r.Context(), chi.URLParam(r, "id"), difficulty)
	if err != nil {
		writeError(w, err)
		return
	}
	if question == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, question)
}

func sessionView(session *models.Session) SessionView {
	var view SessionView
	if err := copier.Copy(&view, session); err != nil {
		slog.Error("Failed to build session view", "error", err, "session_id", session.ID)
	}
	return view
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

// writeError maps a pipeline or state machine error to its status. Operational failures are logged.
func writeError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "error", err, "status", status)
	}
	writeJSON(w, status, map[string]string{
		"error": Message(err),
		"kind":  string(KindOf(err)),
	})
}
