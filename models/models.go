package models

// Database schema overview:
// 1. interviews - one candidate's interview, owning its sessions
// 2. interview_sessions - technical or behavioral sub-interviews; one active per type per interview
// 3. questions - the imported question bank; only is_active changes after import
// 4. responses - one submission per (session, question); replaced rows are soft-deleted
// 5. audio_artifacts - transcription, acoustic features and tone metrics for behavioral responses
// 6. scores - immutable weighted totals, 1:1 with a response
// 7. score_components - ordered breakdown rows of a score

// InterviewType is the kind of interview or session.
type InterviewType string

const (
	InterviewTechnical  InterviewType = "technical"
	InterviewBehavioral InterviewType = "behavioral"
	InterviewMixed      InterviewType = "mixed"
)

// Valid reports whether t names a known interview type.
func (t InterviewType) Valid() bool {
	switch t {
	case InterviewTechnical, InterviewBehavioral, InterviewMixed:
		return true
	}
	return false
}

// ValidSession reports whether t can be the type of a session.
func (t InterviewType) ValidSession() bool {
	return t == InterviewTechnical || t == InterviewBehavioral
}

// Allows reports whether an interview of type t may run a session of type session.
func (t InterviewType) Allows(session InterviewType) bool {
	if t == InterviewMixed {
		return session.ValidSession()
	}
	return t == session
}

// RequiredSessions lists the session types that must end before the interview completes.
func (t InterviewType) RequiredSessions() []InterviewType {
	if t == InterviewMixed {
		return []InterviewType{InterviewTechnical, InterviewBehavioral}
	}
	return []InterviewType{t}
}

type InterviewStatus string

const (
	InterviewPending    InterviewStatus = "pending"
	InterviewInProgress InterviewStatus = "in_progress"
	InterviewCompleted  InterviewStatus = "completed"
	InterviewCancelled  InterviewStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s InterviewStatus) Terminal() bool {
	return s == InterviewCompleted || s == InterviewCancelled
}

type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

type QuestionType string

const (
	QuestionLeetCode     QuestionType = "leetcode"
	QuestionSystemDesign QuestionType = "system_design"
	QuestionBehavioral   QuestionType = "behavioral"
)

// SessionType is the session type that may ask this kind of question.
func (q QuestionType) SessionType() InterviewType {
	if q == QuestionBehavioral {
		return InterviewBehavioral
	}
	return InterviewTechnical
}

// QuestionTypesFor lists the question types a session of the given type can ask.
func QuestionTypesFor(session InterviewType) []QuestionType {
	if session == InterviewBehavioral {
		return []QuestionType{QuestionBehavioral}
	}
	return []QuestionType{QuestionLeetCode, QuestionSystemDesign}
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// ProcessingStatus tracks an audio artifact through transcription and analysis.
type ProcessingStatus string

const (
	ProcessingPending    ProcessingStatus = "pending"
	ProcessingInProgress ProcessingStatus = "processing"
	ProcessingCompleted  ProcessingStatus = "completed"
	ProcessingFailed     ProcessingStatus = "failed"
)

// ScoringMethod names the weight set a score was computed with.
type ScoringMethod string

const (
	MethodTechnical  ScoringMethod = "technical"
	MethodBehavioral ScoringMethod = "behavioral"
)
