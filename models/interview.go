package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Interview is one candidate's interview, spanning one or more sessions
type Interview struct {
	ID              string          `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID         string          `gorm:"size:64;not null;index" json:"owner_id"`
	Type            InterviewType   `gorm:"size:20;not null;check:type IN ('technical', 'behavioral', 'mixed')" json:"type"`
	Status          InterviewStatus `gorm:"size:20;not null;default:'pending';check:status IN ('pending', 'in_progress', 'completed', 'cancelled')" json:"status"`
	Title           string          `gorm:"not null" json:"title"`
	Description     string          `gorm:"type:text" json:"description,omitempty"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	TechnicalScore  *int            `json:"technical_score,omitempty"`  // 0-100, rounded
	BehavioralScore *int            `json:"behavioral_score,omitempty"` // 0-100, rounded
	OverallScore    *int            `json:"overall_score,omitempty"`    // 0-100, rounded
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	DeletedAt       gorm.DeletedAt  `gorm:"index" json:"-"`

	// Relationships
	Sessions []Session `gorm:"foreignKey:InterviewID" json:"sessions,omitempty"`
}

func (i *Interview) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// Session is one technical or behavioral sub-interview.
// At most one session per (interview, type) may be active; the partial unique index enforces it in the store.
type Session struct {
	ID                string         `gorm:"type:uuid;primaryKey" json:"id"`
	InterviewID       string         `gorm:"type:uuid;not null;uniqueIndex:idx_session_active_type,where:ended_at IS NULL" json:"interview_id"`
	Type              InterviewType  `gorm:"size:20;not null;uniqueIndex:idx_session_active_type,where:ended_at IS NULL;check:type IN ('technical', 'behavioral')" json:"type"`
	Status            SessionStatus  `gorm:"size:20;not null;default:'active';check:status IN ('active', 'ended')" json:"status"`
	StartedAt         time.Time      `gorm:"not null" json:"started_at"`
	EndedAt           *time.Time     `json:"ended_at,omitempty"`
	Duration          *int           `json:"duration,omitempty"` // seconds, frozen at end
	SessionScore      *float64       `gorm:"type:decimal(5,2)" json:"session_score,omitempty"`
	QuestionsAnswered int            `gorm:"not null;default:0" json:"questions_answered"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Interview *Interview `gorm:"foreignKey:InterviewID" json:"interview,omitempty"`
	Responses []Response `gorm:"foreignKey:SessionID" json:"responses,omitempty"`
}

func (Session) TableName() string {
	return "interview_sessions"
}

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Active reports whether the session has not been ended.
func (s *Session) Active() bool {
	return s.EndedAt == nil
}
