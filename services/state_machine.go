package services

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/krshsl/praxis/grader/models"
	"github.com/krshsl/praxis/grader/repository"
	"github.com/krshsl/praxis/grader/scoring"
)

// SessionStateMachine governs the interview and session lifecycle and decides when a submission is legal.
type SessionStateMachine struct {
	repo   *repository.GORMRepository
	policy scoring.MissingScorePolicy
	locks  *KeyedLock
	events Publisher
	now    func() time.Time
}

func NewSessionStateMachine(repo *repository.GORMRepository, policy scoring.MissingScorePolicy, locks *KeyedLock, events Publisher) *SessionStateMachine {
	if locks == nil {
		locks = NewKeyedLock()
	}
	if events == nil {
		events = noopPublisher{}
	}
	return &SessionStateMachine{
		repo:   repo,
		policy: policy,
		locks:  locks,
		events: events,
		now:    time.Now,
	}
}

func sessionLockKey(sessionID string) string {
	return "session:" + sessionID
}

// lockSession takes the per-session submission lock shared with the pipelines.
func (sm *SessionStateMachine) lockSession(ctx context.Context, sessionID string) (func(), error) {
	release, err := sm.locks.Acquire(ctx, sessionLockKey(sessionID))
	if err != nil {
		return nil, lockError(err, "waiting for session lock")
	}
	return release, nil
}

// CreateInterview stores a new interview in pending.
func (sm *SessionStateMachine) CreateInterview(ctx context.Context, ownerID string, interviewType models.InterviewType, title, description string) (*models.Interview, error) {
	ownerID = strings.TrimSpace(ownerID)
	title = strings.TrimSpace(title)
	switch {
	case ownerID == "":
		return nil, validationError(ErrInvalidInput, "owner_id is required")
	case title == "":
		return nil, validationError(ErrInvalidInput, "title is required")
	case !interviewType.Valid():
		return nil, validationError(ErrInvalidInput, "unknown interview type %q", interviewType)
	}

	interview := &models.Interview{
		OwnerID:     ownerID,
		Type:        interviewType,
		Status:      models.InterviewPending,
		Title:       title,
		Description: description,
	}
	if err := sm.repo.CreateInterview(ctx, interview); err != nil {
		return nil, persistenceError(err, "failed to create interview")
	}
	return interview, nil
}

// StartSession opens an active session of the given type. The first session moves the interview to in_progress.
func (sm *SessionStateMachine) StartSession(ctx context.Context, interviewID string, sessionType models.InterviewType) (*models.Session, error) {
	if !sessionType.ValidSession() {
		return nil, validationError(ErrInvalidInput, "unknown session type %q", sessionType)
	}

	release, err := sm.locks.Acquire(ctx, "start:"+interviewID+":"+string(sessionType))
	if err != nil {
		return nil, lockError(err, "waiting for interview lock")
	}
	defer release()

	interview, err := sm.repo.GetInterview(ctx, interviewID)
	if err != nil {
		return nil, persistenceError(err, "failed to load interview")
	}
	if interview == nil {
		return nil, validationError(ErrNotFound, "interview %s", interviewID)
	}
	if interview.Status.Terminal() {
		return nil, stateError(ErrInvalidState, "interview is %s", interview.Status)
	}
	if !interview.Type.Allows(sessionType) {
		return nil, validationError(ErrWrongSessionType, "%s interview cannot run a %s session", interview.Type, sessionType)
	}

	active, err := sm.repo.GetActiveSession(ctx, interviewID, sessionType)
	if err != nil {
		return nil, persistenceError(err, "failed to load active session")
	}
	if active != nil {
		return nil, stateError(ErrSessionActive, "session %s", active.ID)
	}

	now := sm.now()
	session := &models.Session{
		InterviewID: interviewID,
		Type:        sessionType,
		Status:      models.SessionActive,
		StartedAt:   now,
	}
	err = sm.repo.Transaction(ctx, func(tx *repository.GORMRepository) error {
		current, err := tx.GetInterview(ctx, interviewID)
		if err != nil {
			return err
		}
		if current == nil || current.Status.Terminal() {
			return stateError(ErrInvalidState, "interview is no longer open")
		}
		if err := tx.CreateSession(ctx, session); err != nil {
			return err
		}
		err = tx.TransitionInterview(ctx, interviewID,
			[]models.InterviewStatus{models.InterviewPending},
			map[string]any{"status": models.InterviewInProgress, "started_at": now})
		if err != nil && !errors.Is(err, repository.ErrConflict) {
			return err
		}
		return nil
	})
	if err != nil {
		var typed *Error
		switch {
		case errors.As(err, &typed):
			return nil, typed
		case errors.Is(err, repository.ErrDuplicate):
			return nil, stateError(ErrSessionActive, "%s session already running", sessionType)
		}
		return nil, persistenceError(err, "failed to start session")
	}

	slog.Info("Session started", "session_id", session.ID, "interview_id", interviewID, "type", sessionType)
	return session, nil
}

// EndSession freezes the session score and duration. It waits for in-flight submissions to the session.
func (sm *SessionStateMachine) EndSession(ctx context.Context, sessionID string) (*models.Session, error) {
	release, err := sm.lockSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := sm.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, persistenceError(err, "failed to load session")
	}
	if session == nil {
		return nil, validationError(ErrNotFound, "session %s", sessionID)
	}
	if !session.Active() {
		return nil, stateError(ErrAlreadyEnded, "session %s", sessionID)
	}

	totals, err := sm.repo.ResponseTotals(ctx, sessionID)
	if err != nil {
		return nil, persistenceError(err, "failed to load response scores")
	}
	var score *float64
	if v, ok := scoring.SessionScore(totals, sm.policy); ok {
		score = &v
	}

	endedAt := sm.now()
	duration := max(int(endedAt.Sub(session.StartedAt).Seconds()), 0)
	if err := sm.repo.EndSession(ctx, sessionID, endedAt, duration, score); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, stateError(ErrAlreadyEnded, "session %s", sessionID)
		}
		return nil, persistenceError(err, "failed to end session")
	}
	session.Status = models.SessionEnded
	session.EndedAt = &endedAt
	session.Duration = &duration
	session.SessionScore = score

	if err := sm.completeIfDone(ctx, session.Interview); err != nil {
		slog.Error("Failed to complete interview", "error", err, "interview_id", session.InterviewID)
	}

	data := map[string]any{"duration": duration, "responses": len(totals)}
	if score != nil {
		data["session_score"] = *score
		data["grade"] = scoring.Grade(*score)
	}
	sm.events.Publish(Event{Type: EventSessionEnded, SessionID: sessionID, Data: data})
	return session, nil
}

// completeIfDone moves an in-progress interview to completed once every required session type has ended.
func (sm *SessionStateMachine) completeIfDone(ctx context.Context, interview *models.Interview) error {
	if interview == nil || interview.Status != models.InterviewInProgress {
		return nil
	}
	for _, t := range interview.Type.RequiredSessions() {
		ended, err := sm.repo.LatestEndedSession(ctx, interview.ID, t)
		if err != nil {
			return err
		}
		active, err := sm.repo.GetActiveSession(ctx, interview.ID, t)
		if err != nil {
			return err
		}
		if ended == nil || active != nil {
			return nil
		}
	}

	err := sm.repo.TransitionInterview(ctx, interview.ID,
		[]models.InterviewStatus{models.InterviewInProgress},
		map[string]any{"status": models.InterviewCompleted, "completed_at": sm.now()})
	if errors.Is(err, repository.ErrConflict) {
		return nil
	}
	if err == nil {
		slog.Info("Interview completed", "interview_id", interview.ID)
	}
	return err
}

// CancelInterview moves a pending or in-progress interview to cancelled.
func (sm *SessionStateMachine) CancelInterview(ctx context.Context, interviewID string) (*models.Interview, error) {
	interview, err := sm.repo.GetInterview(ctx, interviewID)
	if err != nil {
		return nil, persistenceError(err, "failed to load interview")
	}
	if interview == nil {
		return nil, validationError(ErrNotFound, "interview %s", interviewID)
	}
	if interview.Status.Terminal() {
		return nil, stateError(ErrInvalidState, "interview is already %s", interview.Status)
	}

	err = sm.repo.TransitionInterview(ctx, interviewID,
		[]models.InterviewStatus{models.InterviewPending, models.InterviewInProgress},
		map[string]any{"status": models.InterviewCancelled})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, stateError(ErrInvalidState, "interview changed state concurrently")
		}
		return nil, persistenceError(err, "failed to cancel interview")
	}
	interview.Status = models.InterviewCancelled
	slog.Info("Interview cancelled", "interview_id", interviewID)
	return interview, nil
}

// SessionSummary is the frozen outcome of one ended session.
type SessionSummary struct {
	SessionID         string     `json:"session_id"`
	Type              string     `json:"type"`
	Score             *float64   `json:"score,omitempty"`
	Grade             string     `json:"grade,omitempty"`
	QuestionsAnswered int        `json:"questions_answered"`
	Duration          *int       `json:"duration,omitempty"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
}

type InterviewSummary struct {
	InterviewID  string          `json:"interview_id"`
	Type         string          `json:"type"`
	Status       string          `json:"status"`
	Technical    *SessionSummary `json:"technical,omitempty"`
	Behavioral   *SessionSummary `json:"behavioral,omitempty"`
	Overall      *float64        `json:"overall_score,omitempty"`
	OverallGrade string          `json:"overall_grade,omitempty"`
}

// Summarize reports the latest ended session of each type and derives the overall score.
// The overall score exists only when both a technical and a behavioral session have ended with a score.
func (sm *SessionStateMachine) Summarize(ctx context.Context, interviewID string) (*InterviewSummary, error) {
	interview, err := sm.repo.GetInterview(ctx, interviewID)
	if err != nil {
		return nil, persistenceError(err, "failed to load interview")
	}
	if interview == nil {
		return nil, validationError(ErrNotFound, "interview %s", interviewID)
	}

	summary := &InterviewSummary{
		InterviewID: interview.ID,
		Type:        string(interview.Type),
		Status:      string(interview.Status),
	}
	var technical, behavioral *float64
	for _, t := range []models.InterviewType{models.InterviewTechnical, models.InterviewBehavioral} {
		session, err := sm.repo.LatestEndedSession(ctx, interviewID, t)
		if err != nil {
			return nil, persistenceError(err, "failed to load %s session", t)
		}
		if session == nil {
			continue
		}
		s := summarizeSession(session)
		if t == models.InterviewTechnical {
			summary.Technical, technical = s, s.Score
		} else {
			summary.Behavioral, behavioral = s, s.Score
		}
	}

	if overall, ok := scoring.OverallInterviewScore(technical, behavioral); ok {
		summary.Overall = &overall
		summary.OverallGrade = scoring.Grade(overall)
	}

	if err := sm.repo.SetInterviewScores(ctx, interviewID, roundedInt(technical), roundedInt(behavioral), roundedInt(summary.Overall)); err != nil {
		return nil, persistenceError(err, "failed to store interview scores")
	}
	return summary, nil
}

func summarizeSession(session *models.Session) *SessionSummary {
	s := &SessionSummary{
		SessionID:         session.ID,
		Type:              string(session.Type),
		Score:             session.SessionScore,
		QuestionsAnswered: session.QuestionsAnswered,
		Duration:          session.Duration,
		EndedAt:           session.EndedAt,
	}
	if s.Score != nil {
		s.Grade = scoring.Grade(*s.Score)
	}
	return s
}

func roundedInt(v *float64) *int {
	if v == nil {
		return nil
	}
	n := int(math.Round(*v))
	return &n
}

// NextQuestion picks an unanswered active question for the session, preferring the given difficulty.
// It returns nil when the session has nothing left to ask.
func (sm *SessionStateMachine) NextQuestion(ctx context.Context, sessionID string, difficulty models.Difficulty) (*models.Question, error) {
	if difficulty != "" && !difficulty.Valid() {
		return nil, validationError(ErrInvalidInput, "unknown difficulty %q", difficulty)
	}

	session, err := sm.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, persistenceError(err, "failed to load session")
	}
	if session == nil {
		return nil, validationError(ErrNotFound, "session %s", sessionID)
	}
	if !session.Active() {
		return nil, stateError(ErrAlreadyEnded, "session %s", sessionID)
	}

	types := models.QuestionTypesFor(session.Type)
	candidates, err := sm.repo.UnansweredQuestions(ctx, sessionID, types, difficulty)
	if err != nil {
		return nil, persistenceError(err, "failed to list questions")
	}
	if len(candidates) == 0 && difficulty != "" {
		candidates, err = sm.repo.UnansweredQuestions(ctx, sessionID, types, "")
		if err != nil {
			return nil, persistenceError(err, "failed to list questions")
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return &candidates[rand.IntN(len(candidates))], nil
}

// admit checks that a submission to (session, question) is legal for a session of the given type.
func (sm *SessionStateMachine) admit(ctx context.Context, sessionID, questionID string, sessionType models.InterviewType) (*models.Session, *models.Question, error) {
	question, err := sm.repo.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, nil, persistenceError(err, "failed to load question")
	}
	if question == nil {
		return nil, nil, validationError(ErrNotFound, "question %s", questionID)
	}
	if !question.IsActive {
		return nil, nil, validationError(ErrQuestionInactive, "question %s", questionID)
	}

	session, err := sm.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, persistenceError(err, "failed to load session")
	}
	if session == nil {
		return nil, nil, validationError(ErrNotFound, "session %s", sessionID)
	}
	if session.Type != sessionType {
		return nil, nil, validationError(ErrWrongSessionType, "session %s is %s", sessionID, session.Type)
	}
	if question.Type.SessionType() != session.Type {
		return nil, nil, validationError(ErrWrongSessionType, "%s question in a %s session", question.Type, session.Type)
	}
	if !session.Active() {
		return nil, nil, stateError(ErrAlreadyEnded, "session %s", sessionID)
	}
	if session.Interview == nil || session.Interview.Status != models.InterviewInProgress {
		return nil, nil, stateError(ErrInvalidState, "interview is not in progress")
	}
	return session, question, nil
}
