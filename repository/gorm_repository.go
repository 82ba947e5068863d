package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/krshsl/praxis/grader/models"
	"gorm.io/gorm"
)

type GORMRepository struct {
	db *gorm.DB
}

func NewGORMRepository(db *gorm.DB) *GORMRepository {
	return &GORMRepository{db: db}
}

// DB exposes the underlying handle, e.g. for health checks.
func (r *GORMRepository) DB() *gorm.DB {
	return r.db
}

// AutoMigrate runs database migrations
func (r *GORMRepository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&models.Interview{},
		&models.Session{},
		&models.Question{},
		&models.Response{},
		&models.AudioArtifact{},
		&models.Score{},
		&models.ScoreComponent{},
	)
}

// Transaction runs fn against a repository bound to a single database transaction.
func (r *GORMRepository) Transaction(ctx context.Context, fn func(tx *GORMRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GORMRepository{db: tx})
	})
}

func (r *GORMRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Interview operations
func (r *GORMRepository) CreateInterview(ctx context.Context, interview *models.Interview) error {
	if err := r.db.WithContext(ctx).Create(interview).Error; err != nil {
		slog.Error("Failed to create interview", "error", err)
		return err
	}
	slog.Info("Interview created", "interview_id", interview.ID, "owner_id", interview.OwnerID, "type", interview.Type)
	return nil
}

func (r *GORMRepository) GetInterview(ctx context.Context, id string) (*models.Interview, error) {
	var interview models.Interview
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&interview).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to get interview", "error", err, "interview_id", id)
		return nil, err
	}
	return &interview, nil
}

// TransitionInterview applies updates only while the interview is in one of the from states.
// It returns ErrConflict when no row matched.
func (r *GORMRepository) TransitionInterview(ctx context.Context, id string, from []models.InterviewStatus, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.Interview{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		slog.Error("Failed to update interview", "error", res.Error, "interview_id", id)
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// SetInterviewScores stores the integer-rounded aggregate columns.
func (r *GORMRepository) SetInterviewScores(ctx context.Context, id string, technical, behavioral, overall *int) error {
	err := r.db.WithContext(ctx).Model(&models.Interview{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"technical_score":  technical,
			"behavioral_score": behavioral,
			"overall_score":    overall,
		}).Error
	if err != nil {
		slog.Error("Failed to store interview scores", "error", err, "interview_id", id)
		return err
	}
	return nil
}

// Session operations
func (r *GORMRepository) CreateSession(ctx context.Context, session *models.Session) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		if IsDuplicate(err) {
			return fmt.Errorf("%w: active %s session for interview %s", ErrDuplicate, session.Type, session.InterviewID)
		}
		slog.Error("Failed to create session", "error", err, "interview_id", session.InterviewID)
		return err
	}
	slog.Info("Session created", "session_id", session.ID, "interview_id", session.InterviewID, "type", session.Type)
	return nil
}

func (r *GORMRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		Preload("Interview").
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to get session", "error", err, "session_id", id)
		return nil, err
	}
	return &session, nil
}

func (r *GORMRepository) GetActiveSession(ctx context.Context, interviewID string, sessionType models.InterviewType) (*models.Session, error) {
	var session models.Session
	err := r.db.WithContext(ctx).
		Where("interview_id = ? AND type = ? AND ended_at IS NULL", interviewID, sessionType).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to get active session", "error", err, "interview_id", interviewID, "type", sessionType)
		return nil, err
	}
	return &session, nil
}

// LatestEndedSession returns the most recently ended session of a type, or nil.
func (r *GORMRepository) LatestEndedSession(ctx context.Context, interviewID string, sessionType models.InterviewType) (*models.Session, error) {
	var session models.Session
	err := r.db.WithContext(ctx).
		Where("interview_id = ? AND type = ? AND ended_at IS NOT NULL", interviewID, sessionType).
		Order("ended_at DESC").
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to get ended session", "error", err, "interview_id", interviewID, "type", sessionType)
		return nil, err
	}
	return &session, nil
}

func (r *GORMRepository) ListSessions(ctx context.Context, interviewID string) ([]models.Session, error) {
	var sessions []models.Session
	err := r.db.WithContext(ctx).
		Where("interview_id = ?", interviewID).
		Order("started_at").
		Find(&sessions).Error
	if err != nil {
		slog.Error("Failed to list sessions", "error", err, "interview_id", interviewID)
		return nil, err
	}
	return sessions, nil
}

// EndSession freezes the session's end time, duration and score.
// Only an active session is updated; otherwise ErrConflict is returned.
func (r *GORMRepository) EndSession(ctx context.Context, id string, endedAt time.Time, duration int, score *float64) error {
	res := r.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND ended_at IS NULL", id).
		Updates(map[string]any{
			"status":        models.SessionEnded,
			"ended_at":      endedAt,
			"duration":      duration,
			"session_score": score,
		})
	if res.Error != nil {
		slog.Error("Failed to end session", "error", res.Error, "session_id", id)
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	slog.Info("Session ended", "session_id", id, "duration", duration)
	return nil
}

// Question operations
func (r *GORMRepository) CreateQuestion(ctx context.Context, question *models.Question) error {
	if err := r.db.WithContext(ctx).Create(question).Error; err != nil {
		slog.Error("Failed to create question", "error", err, "title", question.Title)
		return err
	}
	return nil
}

func (r *GORMRepository) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	var question models.Question
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&question).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to get question", "error", err, "question_id", id)
		return nil, err
	}
	return &question, nil
}

func (r *GORMRepository) GetQuestionByTitle(ctx context.Context, title string) (*models.Question, error) {
	var question models.Question
	if err := r.db.WithContext(ctx).Where("title = ?", title).First(&question).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to get question by title", "error", err, "title", title)
		return nil, err
	}
	return &question, nil
}

// QuestionFilter narrows ListQuestions; zero values match everything.
type QuestionFilter struct {
	Type       models.QuestionType
	Difficulty models.Difficulty
	ActiveOnly bool
}

func (r *GORMRepository) ListQuestions(ctx context.Context, filter QuestionFilter) ([]models.Question, error) {
	var questions []models.Question
	query := r.db.WithContext(ctx).Order("created_at")
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Difficulty != "" {
		query = query.Where("difficulty = ?", filter.Difficulty)
	}
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Find(&questions).Error; err != nil {
		slog.Error("Failed to list questions", "error", err)
		return nil, err
	}
	return questions, nil
}

// UnansweredQuestions lists active questions of the given types with no live response in the session.
// An empty difficulty matches any difficulty.
func (r *GORMRepository) UnansweredQuestions(ctx context.Context, sessionID string, types []models.QuestionType, difficulty models.Difficulty) ([]models.Question, error) {
	db := r.db.WithContext(ctx)
	answered := db.Model(&models.Response{}).Select("question_id").Where("session_id = ?", sessionID)

	query := db.Where("is_active = ? AND type IN ?", true, types).
		Where("id NOT IN (?)", answered)
	if difficulty != "" {
		query = query.Where("difficulty = ?", difficulty)
	}

	var questions []models.Question
	if err := query.Find(&questions).Error; err != nil {
		slog.Error("Failed to list unanswered questions", "error", err, "session_id", sessionID)
		return nil, err
	}
	return questions, nil
}

// SetQuestionActive toggles the only mutable question field.
func (r *GORMRepository) SetQuestionActive(ctx context.Context, id string, active bool) error {
	res := r.db.WithContext(ctx).Model(&models.Question{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		slog.Error("Failed to update question", "error", res.Error, "question_id", id)
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	slog.Info("Question updated", "question_id", id, "is_active", active)
	return nil
}

func (r *GORMRepository) CountQuestions(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Question{}).Count(&n).Error; err != nil {
		slog.Error("Failed to count questions", "error", err)
		return 0, err
	}
	return n, nil
}

// Response operations

// GetLiveResponse returns the non-replaced response for (session, question), or nil.
func (r *GORMRepository) GetLiveResponse(ctx context.Context, sessionID, questionID string) (*models.Response, error) {
	var response models.Response
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND question_id = ?", sessionID, questionID).
		First(&response).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to get response", "error", err, "session_id", sessionID, "question_id", questionID)
		return nil, err
	}
	return &response, nil
}

func (r *GORMRepository) GetResponse(ctx context.Context, id string) (*models.Response, error) {
	var response models.Response
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		Preload("Score.Components", orderByPosition).
		Preload("Audio").
		First(&response).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to get response", "error", err, "response_id", id)
		return nil, err
	}
	return &response, nil
}

// ListResponses returns the live responses of a session with their scores, breakdowns and audio.
func (r *GORMRepository) ListResponses(ctx context.Context, sessionID string) ([]models.Response, error) {
	var responses []models.Response
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at").
		Preload("Question").
		Preload("Score.Components", orderByPosition).
		Preload("Audio").
		Find(&responses).Error
	if err != nil {
		slog.Error("Failed to list responses", "error", err, "session_id", sessionID)
		return nil, err
	}
	return responses, nil
}

// ResponseTotals returns the total of every live response in the session; nil means unscored.
func (r *GORMRepository) ResponseTotals(ctx context.Context, sessionID string) ([]*float64, error) {
	var raw []sql.NullFloat64
	err := r.db.WithContext(ctx).Model(&models.Response{}).
		Where("session_id = ?", sessionID).
		Order("created_at").
		Pluck("score", &raw).Error
	if err != nil {
		slog.Error("Failed to load response scores", "error", err, "session_id", sessionID)
		return nil, err
	}
	totals := make([]*float64, len(raw))
	for i, v := range raw {
		if v.Valid {
			f := v.Float64
			totals[i] = &f
		}
	}
	return totals, nil
}

func orderByPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position")
}
