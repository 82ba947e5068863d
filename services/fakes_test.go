package services

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/krshsl/praxis/grader/audio"
	"github.com/krshsl/praxis/grader/models"
	"github.com/krshsl/praxis/grader/repository"
	"github.com/krshsl/praxis/grader/scoring"
)

type fakeEvaluator struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, kind scoring.Kind, req EvaluationRequest, call int) (scoring.Judgment, error)
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, kind scoring.Kind, req EvaluationRequest) (scoring.Judgment, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	fn := f.fn
	f.mu.Unlock()
	return fn(ctx, kind, req, call)
}

func (f *fakeEvaluator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func judging(j scoring.Judgment) func(context.Context, scoring.Kind, EvaluationRequest, int) (scoring.Judgment, error) {
	return func(_ context.Context, kind scoring.Kind, _ EvaluationRequest, _ int) (scoring.Judgment, error) {
		j.Kind = kind
		return j, nil
	}
}

func failing(err error) func(context.Context, scoring.Kind, EvaluationRequest, int) (scoring.Judgment, error) {
	return func(context.Context, scoring.Kind, EvaluationRequest, int) (scoring.Judgment, error) {
		return scoring.Judgment{}, err
	}
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, wav []byte, format audio.Format) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

// fakeTranscoder stores every artifact in a temp file so tests can check it is released.
type fakeTranscoder struct {
	dir   string
	err   error
	mu    sync.Mutex
	paths []string
}

func (f *fakeTranscoder) Transcode(ctx context.Context, data []byte, from audio.Format) (*audio.Artifact, error) {
	if f.err != nil {
		return nil, f.err
	}
	file, err := os.CreateTemp(f.dir, "canonical-*.wav")
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if _, err := file.Write(data); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.paths = append(f.paths, file.Name())
	f.mu.Unlock()
	return audio.TempArtifact(file.Name(), data), nil
}

func (f *fakeTranscoder) leftovers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var left []string
	for _, p := range f.paths {
		if _, err := os.Stat(p); err == nil {
			left = append(left, p)
		}
	}
	return left
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func (p *recordingPublisher) last() Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return Event{}
	}
	return p.events[len(p.events)-1]
}

// assertFailedEvent checks that exactly one submission.failed was published for the pair.
func assertFailedEvent(t *testing.T, p *recordingPublisher, sessionID, questionID string, kind ErrorKind) {
	t.Helper()
	if got := p.types(); !slices.Equal(got, []string{EventSubmissionFailed}) {
		t.Fatalf("events = %v, want only %s", got, EventSubmissionFailed)
	}
	e := p.last()
	if e.SessionID != sessionID || e.QuestionID != questionID {
		t.Errorf("failed event for %s/%s, want %s/%s", e.SessionID, e.QuestionID, sessionID, questionID)
	}
	if e.Data["kind"] != string(kind) {
		t.Errorf("failed event kind = %v, want %s", e.Data["kind"], kind)
	}
}

type testEnv struct {
	repo        *repository.GORMRepository
	sessions    *SessionStateMachine
	pipeline    *SubmissionPipeline
	evaluator   *fakeEvaluator
	transcriber *fakeTranscriber
	transcoder  *fakeTranscoder
	events      *recordingPublisher
}

func newTestRepo(t *testing.T) *repository.GORMRepository {
	t.Helper()
	db, err := repository.Open(repository.DatabaseOptions{URL: ":memory:", LogLevel: "silent"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	repo := repository.NewGORMRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("AutoMigrate() error = %v", err)
	}
	return repo
}

func testPipelineConfig() PipelineConfig {
	return PipelineConfig{
		EvaluationTimeout:    2 * time.Second,
		TranscriptionTimeout: 2 * time.Second,
		CodecTimeout:         2 * time.Second,
		Retry:                RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond},
	}
}

func newTestEnv(t *testing.T, policy scoring.MissingScorePolicy, tweak ...func(*AudioConfig, *PipelineConfig)) *testEnv {
	t.Helper()
	repo := newTestRepo(t)
	engine, err := scoring.NewEngine()
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	env := &testEnv{
		repo:        repo,
		evaluator:   &fakeEvaluator{fn: judging(technicalJudgment(75, 75, 75, 75))},
		transcriber: &fakeTranscriber{text: "I coordinated the team and delivered the solution on time."},
		transcoder:  &fakeTranscoder{dir: t.TempDir()},
		events:      &recordingPublisher{},
	}
	env.sessions = NewSessionStateMachine(repo, policy, NewKeyedLock(), env.events)

	audioCfg := AudioConfig{MaxBytes: 1 << 20, SupportedFormats: audio.DefaultFormats()}
	pipelineCfg := testPipelineConfig()
	for _, fn := range tweak {
		fn(&audioCfg, &pipelineCfg)
	}
	env.pipeline = NewSubmissionPipeline(PipelineDeps{
		Repo:        repo,
		Sessions:    env.sessions,
		Engine:      engine,
		Evaluator:   env.evaluator,
		Transcriber: env.transcriber,
		Transcoder:  env.transcoder,
		Events:      env.events,
	}, audioCfg, pipelineCfg)
	return env
}

func technicalJudgment(correctness, timeComplexity, optimality, process float64) scoring.Judgment {
	return scoring.Judgment{
		Kind:           scoring.KindTechnical,
		Correctness:    scoring.Float(correctness),
		TimeComplexity: scoring.Float(timeComplexity),
		Optimality:     scoring.Float(optimality),
		Process:        scoring.Float(process),
		Feedback:       "solid",
	}
}

func createQuestion(t *testing.T, repo *repository.GORMRepository, qt models.QuestionType, d models.Difficulty, title string) *models.Question {
	t.Helper()
	q := &models.Question{Type: qt, Difficulty: d, Title: title, Content: title + " content", IsActive: true}
	if qt == models.QuestionBehavioral {
		q.KeyPoints = []string{"ownership", "result"}
	}
	if err := repo.CreateQuestion(context.Background(), q); err != nil {
		t.Fatalf("CreateQuestion() error = %v", err)
	}
	return q
}

func createInterview(t *testing.T, env *testEnv, it models.InterviewType) *models.Interview {
	t.Helper()
	interview, err := env.sessions.CreateInterview(context.Background(), "owner-1", it, "Loop", "")
	if err != nil {
		t.Fatalf("CreateInterview() error = %v", err)
	}
	return interview
}

func startSession(t *testing.T, env *testEnv, interviewID string, st models.InterviewType) *models.Session {
	t.Helper()
	session, err := env.sessions.StartSession(context.Background(), interviewID, st)
	if err != nil {
		t.Fatalf("StartSession(%s) error = %v", st, err)
	}
	return session
}

// scoredResponse stores a response with a known total, bypassing the evaluator.
func scoredResponse(t *testing.T, env *testEnv, session *models.Session, question *models.Question, total *float64) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	resp := &models.Response{
		InterviewID: session.InterviewID,
		SessionID:   session.ID,
		QuestionID:  question.ID,
		StartTime:   now,
		EndTime:     now,
	}
	if _, err := env.repo.CreateResponse(ctx, resp, false); err != nil {
		t.Fatalf("CreateResponse() error = %v", err)
	}
	if total == nil {
		return
	}
	score := &models.Score{Total: *total, Method: models.MethodTechnical}
	if err := env.repo.FinalizeSubmission(ctx, resp, score, true); err != nil {
		t.Fatalf("FinalizeSubmission() error = %v", err)
	}
}

func countRows(t *testing.T, env *testEnv, model any) int64 {
	t.Helper()
	var n int64
	if err := env.repo.DB().Unscoped().Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count error = %v", err)
	}
	return n
}

// encodeWAV builds a mono 16 kHz 16-bit recording of the given length at a constant level.
func encodeWAV(t *testing.T, seconds float64, level int) []byte {
	t.Helper()
	const sampleRate = 16000
	samples := make([]int, int(seconds*sampleRate))
	for i := range samples {
		samples[i] = level
	}

	path := filepath.Join(t.TempDir(), "answer.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	f.Close()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return data
}
