package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Response is one submission to one question within a session.
// Only one live (not soft-deleted) response may exist per (session, question).
type Response struct {
	ID              string         `gorm:"type:uuid;primaryKey" json:"id"`
	InterviewID     string         `gorm:"type:uuid;not null;index" json:"interview_id"`
	SessionID       string         `gorm:"type:uuid;not null;uniqueIndex:idx_response_session_question,where:deleted_at IS NULL" json:"session_id"`
	QuestionID      string         `gorm:"type:uuid;not null;uniqueIndex:idx_response_session_question,where:deleted_at IS NULL" json:"question_id"`
	TextResponse    string         `gorm:"type:text" json:"text_response,omitempty"`
	CodeResponse    string         `gorm:"type:text" json:"code_response,omitempty"`
	StartTime       time.Time      `gorm:"not null" json:"start_time"`
	EndTime         time.Time      `gorm:"not null" json:"end_time"`
	DurationSeconds float64        `gorm:"not null;default:0" json:"duration_seconds"`
	TotalScore      *float64       `gorm:"column:score;type:decimal(5,2)" json:"score,omitempty"`
	Feedback        string         `gorm:"type:text" json:"feedback,omitempty"`
	Degraded        bool           `gorm:"not null;default:false" json:"degraded"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Question *Question      `gorm:"foreignKey:QuestionID" json:"question,omitempty"`
	Score    *Score         `gorm:"foreignKey:ResponseID" json:"score_detail,omitempty"`
	Audio    *AudioArtifact `gorm:"foreignKey:ResponseID" json:"audio,omitempty"`
}

func (r *Response) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// ToneMetrics is the stored form of a tone analysis.
type ToneMetrics struct {
	SentimentLabel        string  `json:"sentiment"`
	SentimentScore        float64 `json:"sentiment_score"`
	ClarityScore          float64 `json:"clarity_score"`
	ProfessionalismScore  float64 `json:"professionalism_score"`
	AvgSentenceLength     float64 `json:"avg_sentence_length"`
	TotalWords            int     `json:"total_words"`
	ProfessionalWordCount int     `json:"professional_word_count"`
}

// AudioArtifact holds what was derived from a behavioral response's recording
type AudioArtifact struct {
	ID              string           `gorm:"type:uuid;primaryKey" json:"id"`
	ResponseID      string           `gorm:"type:uuid;not null;uniqueIndex" json:"response_id"`
	Format          string           `gorm:"size:10;not null" json:"format"`
	FileSize        int64            `gorm:"not null" json:"file_size"`
	DurationSeconds float64          `json:"duration_seconds"`
	DurationMS      int64            `json:"duration_ms"`
	VolumeDB        float64          `json:"volume_db"`
	VolumeLinear    float64          `json:"volume_linear"`
	SampleRate      int              `json:"sample_rate"`
	Channels        int              `json:"channels"`
	SpeechRate      float64          `json:"speech_rate_estimate"`
	Transcription   string           `gorm:"type:text" json:"transcription"`

	Tone datatypes.JSONType[ToneMetrics] `json:"tone"`

	Status          ProcessingStatus `gorm:"size:20;not null;default:'pending';check:status IN ('pending', 'processing', 'completed', 'failed')" json:"status"`
	ProcessingError string           `gorm:"type:text" json:"processing_error,omitempty"`
	ProcessedAt     *time.Time       `json:"processed_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

func (a *AudioArtifact) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
