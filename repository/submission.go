package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/krshsl/praxis/grader/models"
	"gorm.io/gorm"
)

// CreateResponse inserts a response. With replace set, the live response for the same
// (session, question) is soft-deleted in the same transaction and returned so that a failed
// attempt can restore it. Without replace, an existing live response yields ErrDuplicate.
func (r *GORMRepository) CreateResponse(ctx context.Context, response *models.Response, replace bool) (*models.Response, error) {
	var replaced *models.Response
	err := r.Transaction(ctx, func(tx *GORMRepository) error {
		if replace {
			existing, err := tx.GetLiveResponse(ctx, response.SessionID, response.QuestionID)
			if err != nil {
				return err
			}
			if existing != nil {
				if err := tx.db.WithContext(ctx).Delete(existing).Error; err != nil {
					return fmt.Errorf("failed to retire response %s: %w", existing.ID, err)
				}
				replaced = existing
			}
		}
		if err := tx.db.WithContext(ctx).Create(response).Error; err != nil {
			if IsDuplicate(err) {
				return fmt.Errorf("%w: response to question %s in session %s", ErrDuplicate, response.QuestionID, response.SessionID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		if !IsDuplicate(err) {
			slog.Error("Failed to create response", "error", err, "session_id", response.SessionID, "question_id", response.QuestionID)
		}
		return nil, err
	}

	slog.Info("Response created", "response_id", response.ID, "session_id", response.SessionID, "question_id", response.QuestionID)
	if replaced != nil {
		slog.Info("Response replaced", "response_id", replaced.ID, "replacement_id", response.ID)
	}
	return replaced, nil
}

func (r *GORMRepository) CreateAudioArtifact(ctx context.Context, artifact *models.AudioArtifact) error {
	if err := r.db.WithContext(ctx).Create(artifact).Error; err != nil {
		slog.Error("Failed to create audio artifact", "error", err, "response_id", artifact.ResponseID)
		return err
	}
	return nil
}

// FinalizeSubmission atomically stores the score with its breakdown, copies the total and
// feedback onto the response and, for first answers, bumps the session's answered counter.
func (r *GORMRepository) FinalizeSubmission(ctx context.Context, response *models.Response, score *models.Score, firstAnswer bool) error {
	err := r.Transaction(ctx, func(tx *GORMRepository) error {
		db := tx.db.WithContext(ctx)

		score.ResponseID = response.ID
		score.InterviewID = response.InterviewID
		if err := db.Create(score).Error; err != nil {
			return fmt.Errorf("failed to create score: %w", err)
		}

		res := db.Model(&models.Response{}).
			Where("id = ?", response.ID).
			Updates(map[string]any{
				"score":    score.Total,
				"feedback": score.Feedback,
				"degraded": score.Degraded,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update response: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("response %s: %w", response.ID, ErrConflict)
		}

		if firstAnswer {
			err := db.Model(&models.Session{}).
				Where("id = ?", response.SessionID).
				UpdateColumn("questions_answered", gorm.Expr("questions_answered + ?", 1)).Error
			if err != nil {
				return fmt.Errorf("failed to count answer: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		slog.Error("Failed to finalize submission", "error", err, "response_id", response.ID)
		return err
	}

	total := score.Total
	response.TotalScore = &total
	response.Feedback = score.Feedback
	response.Degraded = score.Degraded
	response.Score = score
	slog.Info("Score created", "score_id", score.ID, "response_id", response.ID, "total", score.Total)
	return nil
}

// RollbackSubmission hard-deletes everything written for a failed attempt and restores the
// response it was replacing, if any.
func (r *GORMRepository) RollbackSubmission(ctx context.Context, responseID, replacedID string) error {
	err := r.Transaction(ctx, func(tx *GORMRepository) error {
		db := tx.db.WithContext(ctx).Unscoped().Session(&gorm.Session{})

		scoreIDs := db.Model(&models.Score{}).Select("id").Where("response_id = ?", responseID)
		if err := db.Where("score_id IN (?)", scoreIDs).Delete(&models.ScoreComponent{}).Error; err != nil {
			return fmt.Errorf("failed to delete score components: %w", err)
		}
		if err := db.Where("response_id = ?", responseID).Delete(&models.Score{}).Error; err != nil {
			return fmt.Errorf("failed to delete score: %w", err)
		}
		if err := db.Where("response_id = ?", responseID).Delete(&models.AudioArtifact{}).Error; err != nil {
			return fmt.Errorf("failed to delete audio artifact: %w", err)
		}
		if err := db.Where("id = ?", responseID).Delete(&models.Response{}).Error; err != nil {
			return fmt.Errorf("failed to delete response: %w", err)
		}

		if replacedID != "" {
			err := db.Model(&models.Response{}).
				Where("id = ?", replacedID).
				Update("deleted_at", nil).Error
			if err != nil {
				return fmt.Errorf("failed to restore response %s: %w", replacedID, err)
			}
		}
		return nil
	})
	if err != nil {
		slog.Error("Failed to roll back submission", "error", err, "response_id", responseID)
		return err
	}
	slog.Info("Submission rolled back", "response_id", responseID, "restored_id", replacedID)
	return nil
}
