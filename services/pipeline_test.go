package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/krshsl/praxis/grader/models"
	"github.com/krshsl/praxis/grader/scoring"
	"gorm.io/gorm"
)

type technicalFixture struct {
	env      *testEnv
	session  *models.Session
	question *models.Question
}

func newTechnicalFixture(t *testing.T) technicalFixture {
	t.Helper()
	env := newTestEnv(t, scoring.ZeroFill)
	interview := createInterview(t, env, models.InterviewTechnical)
	return technicalFixture{
		env:      env,
		session:  startSession(t, env, interview.ID, models.InterviewTechnical),
		question: createQuestion(t, env.repo, models.QuestionLeetCode, models.DifficultyMedium, "Two Sum"),
	}
}

func (f technicalFixture) submission() TechnicalSubmission {
	return TechnicalSubmission{
		SessionID:      f.session.ID,
		QuestionID:     f.question.ID,
		Code:           "func twoSum(nums []int, target int) []int { return nil }",
		ElapsedSeconds: 200,
	}
}

func TestSubmitTechnical(t *testing.T) {
	f := newTechnicalFixture(t)
	f.env.evaluator.fn = judging(technicalJudgment(90, 80, 70, 60))
	ctx := context.Background()

	result, err := f.env.pipeline.SubmitTechnical(ctx, f.submission())
	if err != nil {
		t.Fatalf("SubmitTechnical() error = %v", err)
	}

	// 90x0.5 + 100x0.2 + 70x0.2 + 60x0.1
	if result.Total != 85 || result.Grade != "A" {
		t.Errorf("total = %v (%s), want 85 (A)", result.Total, result.Grade)
	}
	if result.Degraded {
		t.Errorf("result degraded: %v", result.Warnings)
	}
	wantCategories := []string{"accuracy", "time", "optimality", "process"}
	if len(result.Breakdown) != len(wantCategories) {
		t.Fatalf("breakdown = %+v", result.Breakdown)
	}
	for i, c := range result.Breakdown {
		if c.Category != wantCategories[i] {
			t.Errorf("breakdown[%d] = %s, want %s", i, c.Category, wantCategories[i])
		}
	}

	stored, err := f.env.repo.GetResponse(ctx, result.ResponseID)
	if err != nil || stored == nil {
		t.Fatalf("GetResponse() = %v, %v", stored, err)
	}
	if stored.TotalScore == nil || *stored.TotalScore != 85 || stored.Score == nil || len(stored.Score.Components) != 4 {
		t.Errorf("stored response = %+v, want score 85 with four components", stored)
	}
	if stored.DurationSeconds != 200 || !stored.EndTime.After(stored.StartTime) {
		t.Errorf("stored timing = %v..%v (%v s)", stored.StartTime, stored.EndTime, stored.DurationSeconds)
	}
	if stored.Score != nil && stored.Score.Details["time_complexity_score"] != float64(80) {
		t.Errorf("score details = %v, want the time complexity judgment kept", stored.Score.Details)
	}

	session, _ := f.env.repo.GetSession(ctx, f.session.ID)
	if session.QuestionsAnswered != 1 {
		t.Errorf("questions_answered = %d, want 1", session.QuestionsAnswered)
	}

	got := f.env.events.types()
	if len(got) != 2 || got[0] != EventSubmissionReceived || got[1] != EventSubmissionScored {
		t.Errorf("events = %v, want received then scored", got)
	}
}

func TestSubmitTechnicalSystemDesign(t *testing.T) {
	f := newTechnicalFixture(t)
	design := createQuestion(t, f.env.repo, models.QuestionSystemDesign, models.DifficultyHard, "URL Shortener")

	var gotKind scoring.Kind
	f.env.evaluator.fn = func(_ context.Context, kind scoring.Kind, _ EvaluationRequest, _ int) (scoring.Judgment, error) {
		gotKind = kind
		return scoring.Judgment{Kind: kind, Correctness: scoring.Float(80), Optimality: scoring.Float(60), Process: scoring.Float(40)}, nil
	}

	sub := f.submission()
	sub.QuestionID = design.ID
	result, err := f.env.pipeline.SubmitTechnical(context.Background(), sub)
	if err != nil {
		t.Fatalf("SubmitTechnical() error = %v", err)
	}
	if gotKind != scoring.KindSystemDesign {
		t.Errorf("evaluator kind = %s, want system_design", gotKind)
	}
	// 80x0.5 + 100x0.2 + 60x0.2 + 40x0.1
	if result.Total != 76 {
		t.Errorf("total = %v, want 76", result.Total)
	}
}

func TestSubmitTechnicalMalformedJudgment(t *testing.T) {
	f := newTechnicalFixture(t)
	f.env.evaluator.fn = judging(scoring.Judgment{Malformed: true})

	result, err := f.env.pipeline.SubmitTechnical(context.Background(), f.submission())
	if err != nil {
		t.Fatalf("SubmitTechnical() error = %v", err)
	}
	if !result.Degraded || len(result.Warnings) == 0 {
		t.Errorf("degraded = %v warnings = %v, want degraded result", result.Degraded, result.Warnings)
	}
	if result.Total != 20 {
		t.Errorf("total = %v, want only the time contribution (20)", result.Total)
	}

	stored, _ := f.env.repo.GetResponse(context.Background(), result.ResponseID)
	if !stored.Degraded || !stored.Score.Degraded {
		t.Error("degraded flag not persisted")
	}
}

func TestSubmitTechnicalValidation(t *testing.T) {
	f := newTechnicalFixture(t)
	ctx := context.Background()
	behavioral := createQuestion(t, f.env.repo, models.QuestionBehavioral, models.DifficultyEasy, "Conflict")
	inactive := createQuestion(t, f.env.repo, models.QuestionLeetCode, models.DifficultyEasy, "Retired")
	if err := f.env.repo.SetQuestionActive(ctx, inactive.ID, false); err != nil {
		t.Fatalf("SetQuestionActive() error = %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*TechnicalSubmission)
		wantErr error
	}{
		{"negative elapsed", func(s *TechnicalSubmission) { s.ElapsedSeconds = -1 }, ErrInvalidInput},
		{"empty code", func(s *TechnicalSubmission) { s.Code = "  " }, ErrInvalidInput},
		{"unknown question", func(s *TechnicalSubmission) { s.QuestionID = "missing" }, ErrNotFound},
		{"unknown session", func(s *TechnicalSubmission) { s.SessionID = "missing" }, ErrNotFound},
		{"inactive question", func(s *TechnicalSubmission) { s.QuestionID = inactive.ID }, ErrQuestionInactive},
		{"behavioral question", func(s *TechnicalSubmission) { s.QuestionID = behavioral.ID }, ErrWrongSessionType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := f.submission()
			tt.mutate(&sub)
			_, err := f.env.pipeline.SubmitTechnical(ctx, sub)
			if !errors.Is(err, tt.wantErr) || KindOf(err) != KindValidation {
				t.Errorf("SubmitTechnical() error = %v, want validation %v", err, tt.wantErr)
			}
		})
	}

	if n := countRows(t, f.env, &models.Response{}); n != 0 {
		t.Errorf("responses = %d, want 0", n)
	}
	if f.env.evaluator.Calls() != 0 {
		t.Errorf("evaluator called %d times for rejected submissions", f.env.evaluator.Calls())
	}
}

func TestSubmitTechnicalToEndedSession(t *testing.T) {
	f := newTechnicalFixture(t)
	ctx := context.Background()
	if _, err := f.env.sessions.EndSession(ctx, f.session.ID); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}

	_, err := f.env.pipeline.SubmitTechnical(ctx, f.submission())
	if KindOf(err) != KindState {
		t.Errorf("SubmitTechnical() error = %v, want state error", err)
	}
}

func TestSubmitTechnicalDuplicate(t *testing.T) {
	f := newTechnicalFixture(t)
	ctx := context.Background()

	if _, err := f.env.pipeline.SubmitTechnical(ctx, f.submission()); err != nil {
		t.Fatalf("first SubmitTechnical() error = %v", err)
	}
	_, err := f.env.pipeline.SubmitTechnical(ctx, f.submission())
	if !errors.Is(err, ErrDuplicateSubmission) || KindOf(err) != KindValidation {
		t.Fatalf("second SubmitTechnical() error = %v, want ErrDuplicateSubmission", err)
	}

	if n := countRows(t, f.env, &models.Response{}); n != 1 {
		t.Errorf("responses = %d, want 1", n)
	}
	if n := countRows(t, f.env, &models.Score{}); n != 1 {
		t.Errorf("scores = %d, want 1", n)
	}
}

func TestSubmitTechnicalConcurrentDuplicates(t *testing.T) {
	f := newTechnicalFixture(t)
	f.env.evaluator.fn = func(ctx context.Context, kind scoring.Kind, _ EvaluationRequest, _ int) (scoring.Judgment, error) {
		time.Sleep(20 * time.Millisecond)
		return technicalJudgment(70, 70, 70, 70), nil
	}

	const callers = 2
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.env.pipeline.SubmitTechnical(context.Background(), f.submission())
		}(i)
	}
	wg.Wait()

	succeeded, duplicates := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrDuplicateSubmission):
			duplicates++
		default:
			t.Errorf("unexpected error = %v", err)
		}
	}
	if succeeded != 1 || duplicates != 1 {
		t.Errorf("succeeded = %d duplicates = %d, want 1 and 1", succeeded, duplicates)
	}
	if n := countRows(t, f.env, &models.Score{}); n != 1 {
		t.Errorf("scores = %d, want 1", n)
	}
}

func TestSubmitTechnicalReplace(t *testing.T) {
	f := newTechnicalFixture(t)
	ctx := context.Background()

	first, err := f.env.pipeline.SubmitTechnical(ctx, f.submission())
	if err != nil {
		t.Fatalf("first SubmitTechnical() error = %v", err)
	}

	f.env.evaluator.fn = judging(technicalJudgment(100, 100, 100, 100))
	sub := f.submission()
	sub.Replace = true
	second, err := f.env.pipeline.SubmitTechnical(ctx, sub)
	if err != nil {
		t.Fatalf("replacing SubmitTechnical() error = %v", err)
	}
	if second.Replaced != first.ResponseID {
		t.Errorf("replaced = %q, want %q", second.Replaced, first.ResponseID)
	}

	live, _ := f.env.repo.GetLiveResponse(ctx, f.session.ID, f.question.ID)
	if live == nil || live.ID != second.ResponseID {
		t.Errorf("live response = %v, want %s", live, second.ResponseID)
	}
	if n := countRows(t, f.env, &models.Score{}); n != 2 {
		t.Errorf("scores = %d, want both kept", n)
	}
	session, _ := f.env.repo.GetSession(ctx, f.session.ID)
	if session.QuestionsAnswered != 1 {
		t.Errorf("questions_answered = %d, want 1", session.QuestionsAnswered)
	}
}

func TestSubmitTechnicalEvaluatorFailureRollsBack(t *testing.T) {
	f := newTechnicalFixture(t)
	f.env.evaluator.fn = failing(errors.New("invalid api key"))

	_, err := f.env.pipeline.SubmitTechnical(context.Background(), f.submission())
	if !errors.Is(err, ErrEvaluatorFailed) || KindOf(err) != KindExternal {
		t.Fatalf("SubmitTechnical() error = %v, want external ErrEvaluatorFailed", err)
	}
	if f.env.evaluator.Calls() != 1 {
		t.Errorf("evaluator calls = %d, want 1 for a non-transient error", f.env.evaluator.Calls())
	}
	if n := countRows(t, f.env, &models.Response{}); n != 0 {
		t.Errorf("responses = %d, want 0 after rollback", n)
	}

	got := f.env.events.types()
	if len(got) != 2 || got[1] != EventSubmissionFailed {
		t.Errorf("events = %v, want received then failed", got)
	}
}

func TestSubmitTechnicalRetriesTransientFailures(t *testing.T) {
	f := newTechnicalFixture(t)
	f.env.evaluator.fn = func(_ context.Context, _ scoring.Kind, _ EvaluationRequest, call int) (scoring.Judgment, error) {
		if call < 3 {
			return scoring.Judgment{}, fmt.Errorf("%w: 503", ErrTransient)
		}
		return technicalJudgment(80, 80, 80, 80), nil
	}

	if _, err := f.env.pipeline.SubmitTechnical(context.Background(), f.submission()); err != nil {
		t.Fatalf("SubmitTechnical() error = %v", err)
	}
	if f.env.evaluator.Calls() != 3 {
		t.Errorf("evaluator calls = %d, want 3", f.env.evaluator.Calls())
	}
}

func TestSubmitTechnicalTimeout(t *testing.T) {
	env := newTestEnv(t, scoring.ZeroFill, func(_ *AudioConfig, p *PipelineConfig) {
		p.EvaluationTimeout = 20 * time.Millisecond
	})
	interview := createInterview(t, env, models.InterviewTechnical)
	f := technicalFixture{
		env:      env,
		session:  startSession(t, env, interview.ID, models.InterviewTechnical),
		question: createQuestion(t, env.repo, models.QuestionLeetCode, models.DifficultyEasy, "Two Sum"),
	}
	env.evaluator.fn = func(ctx context.Context, _ scoring.Kind, _ EvaluationRequest, _ int) (scoring.Judgment, error) {
		<-ctx.Done()
		return scoring.Judgment{}, ctx.Err()
	}

	_, err := env.pipeline.SubmitTechnical(context.Background(), f.submission())
	if !errors.Is(err, ErrEvaluationTimeout) || KindOf(err) != KindExternal {
		t.Fatalf("SubmitTechnical() error = %v, want ErrEvaluationTimeout", err)
	}
	if n := countRows(t, env, &models.Response{}); n != 0 {
		t.Errorf("responses = %d, want 0", n)
	}
	if n := countRows(t, env, &models.Score{}); n != 0 {
		t.Errorf("scores = %d, want 0", n)
	}

	// the session lock was released
	env.evaluator.fn = judging(technicalJudgment(50, 50, 50, 50))
	if _, err := env.pipeline.SubmitTechnical(context.Background(), f.submission()); err != nil {
		t.Errorf("SubmitTechnical() after timeout error = %v", err)
	}
}

func TestSubmitTechnicalPersistenceFailure(t *testing.T) {
	f := newTechnicalFixture(t)
	err := f.env.repo.DB().Callback().Create().Before("gorm:create").Register("test:fail_scores", func(tx *gorm.DB) {
		if tx.Statement.Table == "scores" {
			tx.AddError(errors.New("disk full"))
		}
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	_, err = f.env.pipeline.SubmitTechnical(context.Background(), f.submission())
	if !errors.Is(err, ErrPersistence) || KindOf(err) != KindPersistence {
		t.Fatalf("SubmitTechnical() error = %v, want ErrPersistence", err)
	}
	if n := countRows(t, f.env, &models.Response{}); n != 0 {
		t.Errorf("responses = %d, want 0 after rollback", n)
	}
	session, _ := f.env.repo.GetSession(context.Background(), f.session.ID)
	if session.QuestionsAnswered != 0 {
		t.Errorf("questions_answered = %d, want 0", session.QuestionsAnswered)
	}
}

func TestFailedReplacementRestoresPrevious(t *testing.T) {
	f := newTechnicalFixture(t)
	ctx := context.Background()

	first, err := f.env.pipeline.SubmitTechnical(ctx, f.submission())
	if err != nil {
		t.Fatalf("first SubmitTechnical() error = %v", err)
	}

	f.env.evaluator.fn = failing(errors.New("boom"))
	sub := f.submission()
	sub.Replace = true
	if _, err := f.env.pipeline.SubmitTechnical(ctx, sub); !errors.Is(err, ErrEvaluatorFailed) {
		t.Fatalf("replacing SubmitTechnical() error = %v, want ErrEvaluatorFailed", err)
	}

	live, err := f.env.repo.GetLiveResponse(ctx, f.session.ID, f.question.ID)
	if err != nil {
		t.Fatalf("GetLiveResponse() error = %v", err)
	}
	if live == nil || live.ID != first.ResponseID {
		t.Errorf("live response = %v, want original %s restored", live, first.ResponseID)
	}
	if live != nil && (live.TotalScore == nil || *live.TotalScore != first.Total) {
		t.Errorf("restored score = %v, want %v", live.TotalScore, first.Total)
	}
}
