package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/krshsl/praxis/grader/models"
)

func newTestRepo(t *testing.T) *GORMRepository {
	t.Helper()
	db, err := Open(DatabaseOptions{URL: ":memory:", LogLevel: "silent"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	repo := NewGORMRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("AutoMigrate() error = %v", err)
	}
	return repo
}

type fixture struct {
	interview *models.Interview
	session   *models.Session
	question  *models.Question
}

func seed(t *testing.T, repo *GORMRepository) fixture {
	t.Helper()
	ctx := context.Background()

	interview := &models.Interview{OwnerID: "owner-1", Type: models.InterviewTechnical, Status: models.InterviewInProgress, Title: "Backend loop"}
	if err := repo.CreateInterview(ctx, interview); err != nil {
		t.Fatalf("CreateInterview() error = %v", err)
	}
	session := &models.Session{InterviewID: interview.ID, Type: models.InterviewTechnical, Status: models.SessionActive, StartedAt: time.Now()}
	if err := repo.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	question := &models.Question{Type: models.QuestionLeetCode, Difficulty: models.DifficultyEasy, Title: "Two Sum", Content: "Find two numbers", IsActive: true}
	if err := repo.CreateQuestion(ctx, question); err != nil {
		t.Fatalf("CreateQuestion() error = %v", err)
	}
	return fixture{interview: interview, session: session, question: question}
}

func newResponse(f fixture) *models.Response {
	now := time.Now()
	return &models.Response{
		InterviewID:     f.interview.ID,
		SessionID:       f.session.ID,
		QuestionID:      f.question.ID,
		CodeResponse:    "return nil",
		StartTime:       now.Add(-time.Minute),
		EndTime:         now,
		DurationSeconds: 60,
	}
}

func newScore(total float64) *models.Score {
	return &models.Score{
		Total:    total,
		Method:   models.MethodTechnical,
		Feedback: "fine",
		Components: []models.ScoreComponent{
			{Position: 0, Category: "accuracy", RawValue: total, Weight: 1, Contribution: total},
		},
	}
}

func TestOneActiveSessionPerType(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seed(t, repo)

	dup := &models.Session{InterviewID: f.interview.ID, Type: models.InterviewTechnical, Status: models.SessionActive, StartedAt: time.Now()}
	if err := repo.CreateSession(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second active session error = %v, want ErrDuplicate", err)
	}

	other := &models.Session{InterviewID: f.interview.ID, Type: models.InterviewBehavioral, Status: models.SessionActive, StartedAt: time.Now()}
	if err := repo.CreateSession(ctx, other); err != nil {
		t.Fatalf("session of another type error = %v", err)
	}

	if err := repo.EndSession(ctx, f.session.ID, time.Now(), 60, nil); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	again := &models.Session{InterviewID: f.interview.ID, Type: models.InterviewTechnical, Status: models.SessionActive, StartedAt: time.Now()}
	if err := repo.CreateSession(ctx, again); err != nil {
		t.Fatalf("new session after ending the old one error = %v", err)
	}
}

func TestEndSessionOnlyOnce(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seed(t, repo)

	score := 72.5
	if err := repo.EndSession(ctx, f.session.ID, time.Now(), 90, &score); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	other := 10.0
	if err := repo.EndSession(ctx, f.session.ID, time.Now(), 120, &other); !errors.Is(err, ErrConflict) {
		t.Fatalf("second EndSession() error = %v, want ErrConflict", err)
	}

	got, err := repo.GetSession(ctx, f.session.ID)
	if err != nil || got == nil {
		t.Fatalf("GetSession() = %v, %v", got, err)
	}
	if got.SessionScore == nil || *got.SessionScore != 72.5 {
		t.Errorf("SessionScore = %v, want 72.5", got.SessionScore)
	}
	if got.Duration == nil || *got.Duration != 90 || got.Status != models.SessionEnded {
		t.Errorf("session = %+v", got)
	}
	if got.Interview == nil || got.Interview.ID != f.interview.ID {
		t.Error("GetSession should preload the interview")
	}
}

func TestCreateResponseDuplicateAndReplace(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seed(t, repo)

	first := newResponse(f)
	if replaced, err := repo.CreateResponse(ctx, first, false); err != nil || replaced != nil {
		t.Fatalf("CreateResponse() = %v, %v", replaced, err)
	}

	if _, err := repo.CreateResponse(ctx, newResponse(f), false); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate CreateResponse() error = %v, want ErrDuplicate", err)
	}

	second := newResponse(f)
	replaced, err := repo.CreateResponse(ctx, second, true)
	if err != nil {
		t.Fatalf("replacing CreateResponse() error = %v", err)
	}
	if replaced == nil || replaced.ID != first.ID {
		t.Fatalf("replaced = %+v, want %s", replaced, first.ID)
	}

	live, err := repo.GetLiveResponse(ctx, f.session.ID, f.question.ID)
	if err != nil || live == nil || live.ID != second.ID {
		t.Fatalf("GetLiveResponse() = %+v, %v; want %s", live, err, second.ID)
	}
}

func TestFinalizeSubmission(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seed(t, repo)

	resp := newResponse(f)
	if _, err := repo.CreateResponse(ctx, resp, false); err != nil {
		t.Fatalf("CreateResponse() error = %v", err)
	}
	if err := repo.FinalizeSubmission(ctx, resp, newScore(81.25), true); err != nil {
		t.Fatalf("FinalizeSubmission() error = %v", err)
	}

	got, err := repo.GetResponse(ctx, resp.ID)
	if err != nil || got == nil {
		t.Fatalf("GetResponse() = %v, %v", got, err)
	}
	if got.TotalScore == nil || *got.TotalScore != 81.25 {
		t.Errorf("response score = %v, want 81.25", got.TotalScore)
	}
	if got.Score == nil || len(got.Score.Components) != 1 {
		t.Fatalf("score not preloaded: %+v", got.Score)
	}

	session, _ := repo.GetSession(ctx, f.session.ID)
	if session.QuestionsAnswered != 1 {
		t.Errorf("QuestionsAnswered = %d, want 1", session.QuestionsAnswered)
	}

	totals, err := repo.ResponseTotals(ctx, f.session.ID)
	if err != nil || len(totals) != 1 || totals[0] == nil || *totals[0] != 81.25 {
		t.Errorf("ResponseTotals() = %v, %v", totals, err)
	}
}

func TestRollbackRestoresReplacedResponse(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seed(t, repo)

	original := newResponse(f)
	if _, err := repo.CreateResponse(ctx, original, false); err != nil {
		t.Fatalf("CreateResponse() error = %v", err)
	}
	if err := repo.FinalizeSubmission(ctx, original, newScore(60), true); err != nil {
		t.Fatalf("FinalizeSubmission() error = %v", err)
	}

	replacement := newResponse(f)
	replaced, err := repo.CreateResponse(ctx, replacement, true)
	if err != nil {
		t.Fatalf("CreateResponse(replace) error = %v", err)
	}
	if err := repo.CreateAudioArtifact(ctx, &models.AudioArtifact{ResponseID: replacement.ID, Format: "wav", FileSize: 10, Status: models.ProcessingCompleted}); err != nil {
		t.Fatalf("CreateAudioArtifact() error = %v", err)
	}
	if err := repo.FinalizeSubmission(ctx, replacement, newScore(90), false); err != nil {
		t.Fatalf("FinalizeSubmission() error = %v", err)
	}

	if err := repo.RollbackSubmission(ctx, replacement.ID, replaced.ID); err != nil {
		t.Fatalf("RollbackSubmission() error = %v", err)
	}

	live, err := repo.GetLiveResponse(ctx, f.session.ID, f.question.ID)
	if err != nil || live == nil || live.ID != original.ID {
		t.Fatalf("live response after rollback = %+v, %v; want %s", live, err, original.ID)
	}
	if gone, _ := repo.GetResponse(ctx, replacement.ID); gone != nil {
		t.Error("rolled back response is still readable")
	}

	var scores, components, artifacts int64
	repo.DB().Model(&models.Score{}).Count(&scores)
	repo.DB().Model(&models.ScoreComponent{}).Count(&components)
	repo.DB().Model(&models.AudioArtifact{}).Count(&artifacts)
	if scores != 1 || components != 1 || artifacts != 0 {
		t.Errorf("after rollback: %d scores, %d components, %d artifacts; want 1, 1, 0", scores, components, artifacts)
	}

	session, _ := repo.GetSession(ctx, f.session.ID)
	if session.QuestionsAnswered != 1 {
		t.Errorf("QuestionsAnswered = %d, want 1", session.QuestionsAnswered)
	}
}

func TestUnansweredQuestions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seed(t, repo)

	extra := []*models.Question{
		{Type: models.QuestionSystemDesign, Difficulty: models.DifficultyHard, Title: "Design a URL shortener", Content: "Design it", IsActive: true},
		{Type: models.QuestionLeetCode, Difficulty: models.DifficultyEasy, Title: "Retired", Content: "Old", IsActive: false},
		{Type: models.QuestionBehavioral, Difficulty: models.DifficultyEasy, Title: "Conflict", Content: "Tell me", IsActive: true},
	}
	for _, q := range extra {
		if err := repo.CreateQuestion(ctx, q); err != nil {
			t.Fatalf("CreateQuestion() error = %v", err)
		}
	}
	// A false IsActive must survive the insert.
	if retired, _ := repo.GetQuestionByTitle(ctx, "Retired"); retired == nil || retired.IsActive {
		t.Fatalf("retired question = %+v", retired)
	}

	technical := models.QuestionTypesFor(models.InterviewTechnical)

	all, err := repo.UnansweredQuestions(ctx, f.session.ID, technical, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("UnansweredQuestions() = %d questions, %v; want 2", len(all), err)
	}

	if _, err := repo.CreateResponse(ctx, newResponse(f), false); err != nil {
		t.Fatalf("CreateResponse() error = %v", err)
	}

	easy, err := repo.UnansweredQuestions(ctx, f.session.ID, technical, models.DifficultyEasy)
	if err != nil || len(easy) != 0 {
		t.Errorf("easy unanswered = %d, %v; want 0", len(easy), err)
	}
	hard, err := repo.UnansweredQuestions(ctx, f.session.ID, technical, models.DifficultyHard)
	if err != nil || len(hard) != 1 || hard[0].Type != models.QuestionSystemDesign {
		t.Errorf("hard unanswered = %+v, %v", hard, err)
	}
}

func TestTransitionInterview(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seed(t, repo)

	cancel := map[string]any{"status": models.InterviewCancelled}
	from := []models.InterviewStatus{models.InterviewPending, models.InterviewInProgress}
	if err := repo.TransitionInterview(ctx, f.interview.ID, from, cancel); err != nil {
		t.Fatalf("TransitionInterview() error = %v", err)
	}
	if err := repo.TransitionInterview(ctx, f.interview.ID, from, cancel); !errors.Is(err, ErrConflict) {
		t.Fatalf("second TransitionInterview() error = %v, want ErrConflict", err)
	}
}

func TestSetQuestionActive(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seed(t, repo)

	if err := repo.SetQuestionActive(ctx, f.question.ID, false); err != nil {
		t.Fatalf("SetQuestionActive() error = %v", err)
	}
	got, _ := repo.GetQuestion(ctx, f.question.ID)
	if got.IsActive {
		t.Error("question still active")
	}
	if err := repo.SetQuestionActive(ctx, "missing", true); err == nil {
		t.Error("expected an error for an unknown question")
	}
}

func TestIsDuplicate(t *testing.T) {
	if IsDuplicate(nil) {
		t.Error("nil is not a duplicate")
	}
	if !IsDuplicate(errors.New("constraint failed: UNIQUE constraint failed: responses.session_id (2067)")) {
		t.Error("sqlite unique violations should be duplicates")
	}
	if IsDuplicate(errors.New("connection refused")) {
		t.Error("unrelated errors are not duplicates")
	}
}
