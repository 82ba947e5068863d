package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Score is the immutable weighted result of one response.
// Resubmissions create a new Response/Score pair instead of updating this one.
type Score struct {
	ID          string            `gorm:"type:uuid;primaryKey" json:"id"`
	ResponseID  string            `gorm:"type:uuid;not null;uniqueIndex" json:"response_id"`
	InterviewID string            `gorm:"type:uuid;not null;index" json:"interview_id"`
	Total       float64           `gorm:"type:decimal(5,2);not null" json:"total"` // 0.00 to 100.00
	Method      ScoringMethod     `gorm:"size:20;not null;check:method IN ('technical', 'behavioral')" json:"method"`
	Degraded    bool              `gorm:"not null;default:false" json:"degraded"`
	Feedback    string            `gorm:"type:text" json:"feedback,omitempty"`
	Details     datatypes.JSONMap `json:"details,omitempty"` // evaluator extras: strengths, issues, complexities
	CreatedAt   time.Time         `json:"created_at"`

	Components []ScoreComponent `gorm:"foreignKey:ScoreID" json:"components"`
}

func (s *Score) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// ScoreComponent is one ordered breakdown row: contribution = raw value x weight
type ScoreComponent struct {
	ID           string  `gorm:"type:uuid;primaryKey" json:"id"`
	ScoreID      string  `gorm:"type:uuid;not null;index" json:"score_id"`
	Position     int     `gorm:"not null" json:"position"`
	Category     string  `gorm:"size:50;not null" json:"category"` // e.g. "accuracy", "time", "evaluator", "tone"
	RawValue     float64 `gorm:"type:decimal(5,2);not null" json:"raw_value"`
	Weight       float64 `gorm:"type:decimal(6,5);not null" json:"weight"`
	Contribution float64 `gorm:"type:decimal(5,2);not null" json:"contribution"`
}

func (c *ScoreComponent) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
