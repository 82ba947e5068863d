package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Question is an imported question. Only IsActive changes after import.
type Question struct {
	ID          string       `gorm:"type:uuid;primaryKey" json:"id"`
	Type        QuestionType `gorm:"size:20;not null;index;check:type IN ('leetcode', 'system_design', 'behavioral')" json:"type"`
	Difficulty  Difficulty   `gorm:"size:10;not null;index;check:difficulty IN ('easy', 'medium', 'hard')" json:"difficulty"`
	Title       string       `gorm:"not null" json:"title"`
	Content     string       `gorm:"type:text;not null" json:"content"`
	Description string       `gorm:"type:text" json:"description,omitempty"`

	// Technical
	ProblemStatement string         `gorm:"type:text" json:"problem_statement,omitempty"`
	Constraints      string         `gorm:"type:text" json:"constraints,omitempty"`
	Examples         datatypes.JSON `json:"examples,omitempty"`
	ExpectedOutput   string         `gorm:"type:text" json:"expected_output,omitempty"`

	// System design
	SystemRequirements string `gorm:"type:text" json:"system_requirements,omitempty"`
	ScaleRequirements  string `gorm:"type:text" json:"scale_requirements,omitempty"`

	// Behavioral
	Scenario  string                      `gorm:"type:text" json:"scenario,omitempty"`
	KeyPoints datatypes.JSONSlice[string] `json:"key_points,omitempty"`
	FollowUps datatypes.JSONSlice[string] `json:"follow_ups,omitempty"`

	Tags             datatypes.JSONSlice[string] `json:"tags,omitempty"`
	EstimatedMinutes int                         `json:"estimated_minutes,omitempty"`
	IsActive         bool                        `gorm:"not null" json:"is_active"`
	CreatedAt        time.Time                   `json:"created_at"`
	UpdatedAt        time.Time                   `json:"updated_at"`
}

func (q *Question) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return nil
}

// Problem is the text the evaluator judges a technical answer against.
func (q *Question) Problem() string {
	switch {
	case q.Type == QuestionSystemDesign && q.SystemRequirements != "":
		return q.SystemRequirements
	case q.ProblemStatement != "":
		return q.ProblemStatement
	}
	return q.Content
}
