package services

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/krshsl/praxis/grader/models"
	"github.com/krshsl/praxis/grader/repository"
	"gorm.io/gorm"
)

type QuestionEndpoints struct {
	repo *repository.GORMRepository
}

func NewQuestionEndpoints(repo *repository.GORMRepository) *QuestionEndpoints {
	return &QuestionEndpoints{repo: repo}
}

type UpdateQuestionRequest struct {
	IsActive *bool `json:"is_active"`
}

func (e *QuestionEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/questions", func(r chi.Router) {
		r.Get("/", e.ListQuestionsHandler)
		r.Patch("/{id}", e.UpdateQuestionHandler)
	})
}

func (e *QuestionEndpoints) ListQuestionsHandler(w http.ResponseWriter, r *http.Request) {
	filter := repository.QuestionFilter{
		Type:       models.QuestionType(r.URL.Query().Get("type")),
		Difficulty: models.Difficulty(r.URL.Query().Get("difficulty")),
		ActiveOnly: r.URL.Query().Get("active") == "true",
	}
	if filter.Difficulty != "" && !filter.Difficulty.Valid() {
		http.Error(w, "Unknown difficulty", http.StatusBadRequest)
		return
	}

	questions, err := e.repo.ListQuestions(r.Context(), filter)
	if err != nil {
		http.Error(w, "Failed to list questions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"questions": questions,
		"count":     len(questions),
	})
}

// UpdateQuestionHandler toggles is_active, the only field that changes after import.
func (e *QuestionEndpoints) UpdateQuestionHandler(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IsActive == nil {
		http.Error(w, "is_active is required", http.StatusBadRequest)
		return
	}

	id := chi.URLParam(r, "id")
	if err := e.repo.SetQuestionActive(r.Context(), id, *req.IsActive); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Question not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to update question", http.StatusInternalServerError)
		return
	}

	question, err := e.repo.GetQuestion(r.Context(), id)
	if err != nil || question == nil {
		http.Error(w, "Failed to load question", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, question)
}
