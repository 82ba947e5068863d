package services

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jinzhu/copier"
	"github.com/krshsl/praxis/grader/models"
	"github.com/krshsl/praxis/grader/repository"
	"github.com/krshsl/praxis/grader/scoring"
)

// multipartOverhead is the allowance for form fields around the audio part.
const multipartOverhead = 1 << 20

type SubmissionEndpoints struct {
	pipeline *SubmissionPipeline
	repo     *repository.GORMRepository
	maxBytes int64
}

func NewSubmissionEndpoints(pipeline *SubmissionPipeline, repo *repository.GORMRepository, maxBytes int64) *SubmissionEndpoints {
	return &SubmissionEndpoints{pipeline: pipeline, repo: repo, maxBytes: maxBytes}
}

type TechnicalSubmissionRequest struct {
	QuestionID     string  `json:"question_id"`
	Code           string  `json:"code"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Replace        bool    `json:"replace"`
}

type ComponentView struct {
	Category     string  `json:"category"`
	RawValue     float64 `json:"raw_value"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

type AudioView struct {
	Format          string             `json:"format"`
	FileSize        int64              `json:"file_size"`
	DurationSeconds float64            `json:"duration_seconds"`
	VolumeDB        float64            `json:"volume_db"`
	SampleRate      int                `json:"sample_rate"`
	Channels        int                `json:"channels"`
	SpeechRate      float64            `json:"speech_rate_estimate"`
	Status          string             `json:"status"`
	ToneMetrics     models.ToneMetrics `json:"tone"`
}

// ResponseView is a stored response with its score and breakdown.
type ResponseView struct {
	ID              string          `json:"id"`
	QuestionID      string          `json:"question_id"`
	QuestionTitle   string          `json:"question_title,omitempty"`
	TextResponse    string          `json:"text_response,omitempty"`
	CodeResponse    string          `json:"code_response,omitempty"`
	DurationSeconds float64         `json:"duration_seconds"`
	TotalScore      *float64        `json:"score,omitempty"`
	Grade           string          `json:"grade,omitempty"`
	Feedback        string          `json:"feedback,omitempty"`
	Degraded        bool            `json:"degraded"`
	Breakdown       []ComponentView `json:"breakdown,omitempty"`
	Details         map[string]any  `json:"details,omitempty"`
	Recording       *AudioView      `json:"audio,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (e *SubmissionEndpoints) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{id}/responses", e.ListResponsesHandler)
	r.Post("/sessions/{id}/technical", e.TechnicalHandler)
	r.Post("/sessions/{id}/behavioral", e.BehavioralHandler)
}

func (e *SubmissionEndpoints) TechnicalHandler(w http.ResponseWriter, r *http.Request) {
	var req TechnicalSubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := e.pipeline.SubmitTechnical(r.Context(), TechnicalSubmission{
		SessionID:      chi.URLParam(r, "id"),
		QuestionID:     req.QuestionID,
		Code:           req.Code,
		ElapsedSeconds: req.ElapsedSeconds,
		Replace:        req.Replace,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (e *SubmissionEndpoints) BehavioralHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, e.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Audio payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "Audio file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	// One byte past the ceiling is enough for the pipeline to reject the payload.
	data, err := io.ReadAll(io.LimitReader(file, e.maxBytes+1))
	if err != nil {
		slog.Error("Failed to read audio upload", "error", err)
		http.Error(w, "Failed to read audio", http.StatusBadRequest)
		return
	}

	format := r.FormValue("format")
	if format == "" {
		format = filepath.Ext(header.Filename)
	}
	replace, _ := strconv.ParseBool(r.FormValue("replace"))

	result, err := e.pipeline.SubmitBehavioral(r.Context(), BehavioralSubmission{
		SessionID:  chi.URLParam(r, "id"),
		QuestionID: r.FormValue("question_id"),
		Audio:      data,
		Format:     format,
		Replace:    replace,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (e *SubmissionEndpoints) ListResponsesHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	session, err := e.repo.GetSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "Failed to load session", http.StatusInternalServerError)
		return
	}
	if session == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	responses, err := e.repo.ListResponses(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "Failed to list responses", http.StatusInternalServerError)
		return
	}

	views := make([]ResponseView, 0, len(responses))
	for i := range responses {
		views = append(views, responseView(&responses[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":   sessionView(session),
		"responses": views,
		"count":     len(views),
	})
}

func responseView(resp *models.Response) ResponseView {
	var view ResponseView
	if err := copier.Copy(&view, resp); err != nil {
		slog.Error("Failed to build response view", "error", err, "response_id", resp.ID)
	}
	if resp.Question != nil {
		view.QuestionTitle = resp.Question.Title
	}
	if resp.TotalScore != nil {
		view.Grade = scoring.Grade(*resp.TotalScore)
	}
	if resp.Score != nil {
		if err := copier.Copy(&view.Breakdown, &resp.Score.Components); err != nil {
			slog.Error("Failed to copy score breakdown", "error", err, "response_id", resp.ID)
		}
		if len(resp.Score.Details) > 0 {
			view.Details = resp.Score.Details
		}
	}
	if resp.Audio != nil {
		recording := &AudioView{}
		if err := copier.Copy(recording, resp.Audio); err != nil {
			slog.Error("Failed to copy audio artifact", "error", err, "response_id", resp.ID)
		}
		recording.Status = string(resp.Audio.Status)
		recording.ToneMetrics = resp.Audio.Tone.Data()
		view.Recording = recording
	}
	return view
}
