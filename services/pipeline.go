package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/krshsl/praxis/grader/audio"
	"github.com/krshsl/praxis/grader/models"
	"github.com/krshsl/praxis/grader/repository"
	"github.com/krshsl/praxis/grader/scoring"
	"gorm.io/datatypes"
)

const rollbackTimeout = 10 * time.Second

// SubmissionPipeline turns a raw submission into a persisted, scored response.
// Submissions to one session run one at a time; different sessions run in parallel.
type SubmissionPipeline struct {
	repo        *repository.GORMRepository
	sessions    *SessionStateMachine
	engine      *scoring.Engine
	tone        *scoring.ToneAnalyzer
	evaluator   Evaluator
	transcriber Transcriber
	transcoder  audio.Transcoder
	audio       AudioConfig
	cfg         PipelineConfig
	events      Publisher
	now         func() time.Time
}

type PipelineDeps struct {
	Repo        *repository.GORMRepository
	Sessions    *SessionStateMachine
	Engine      *scoring.Engine
	Evaluator   Evaluator
	Transcriber Transcriber
	Transcoder  audio.Transcoder
	Events      Publisher
}

func NewSubmissionPipeline(deps PipelineDeps, audioCfg AudioConfig, cfg PipelineConfig) *SubmissionPipeline {
	events := deps.Events
	if events == nil {
		events = noopPublisher{}
	}
	if len(audioCfg.SupportedFormats) == 0 {
		audioCfg.SupportedFormats = audio.DefaultFormats()
	}
	return &SubmissionPipeline{
		repo:        deps.Repo,
		sessions:    deps.Sessions,
		engine:      deps.Engine,
		tone:        scoring.NewToneAnalyzer(),
		evaluator:   deps.Evaluator,
		transcriber: deps.Transcriber,
		transcoder:  deps.Transcoder,
		audio:       audioCfg,
		cfg:         cfg,
		events:      events,
		now:         time.Now,
	}
}

// SubmissionResult is what a caller gets back for a scored submission.
type SubmissionResult struct {
	ResponseID    string                `json:"response_id"`
	SessionID     string                `json:"session_id"`
	QuestionID    string                `json:"question_id"`
	Method        string                `json:"method"`
	Total         float64               `json:"total_score"`
	Grade         string                `json:"grade"`
	Feedback      string                `json:"feedback"`
	Degraded      bool                  `json:"degraded"`
	Warnings      []string              `json:"warnings,omitempty"`
	Breakdown     []scoring.Component   `json:"breakdown"`
	Details       map[string]any        `json:"details,omitempty"`
	Replaced      string                `json:"replaced_response_id,omitempty"`
	Transcription *string               `json:"transcription,omitempty"`
	Tone          *scoring.ToneAnalysis `json:"tone_analysis,omitempty"`
	Audio         *audio.Features       `json:"audio_features,omitempty"`
}

// attempt tracks what a submission has written so a failure can undo it.
type attempt struct {
	response *models.Response
	replaced *models.Response
}

// begin runs the shared validation stage under the session lock. The caller must call release.
func (p *SubmissionPipeline) begin(ctx context.Context, sessionID, questionID string, sessionType models.InterviewType, replace bool) (release func(), session *models.Session, question *models.Question, firstAnswer bool, err error) {
	release, err = p.sessions.lockSession(ctx, sessionID)
	if err != nil {
		return nil, nil, nil, false, err
	}

	session, question, err = p.sessions.admit(ctx, sessionID, questionID, sessionType)
	if err != nil {
		release()
		return nil, nil, nil, false, err
	}

	existing, err := p.repo.GetLiveResponse(ctx, sessionID, questionID)
	if err != nil {
		release()
		return nil, nil, nil, false, persistenceError(err, "failed to check for an existing response")
	}
	if existing != nil && !replace {
		release()
		return nil, nil, nil, false, validationError(ErrDuplicateSubmission, "response %s", existing.ID)
	}
	return release, session, question, existing == nil, nil
}

// persistResponse stores the raw response, retiring the previous one when replacing.
func (p *SubmissionPipeline) persistResponse(ctx context.Context, response *models.Response, replace bool) (*attempt, error) {
	replaced, err := p.repo.CreateResponse(ctx, response, replace)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, validationError(ErrDuplicateSubmission, "question %s", response.QuestionID)
		}
		return nil, p.abort(ctx, response.SessionID, response.QuestionID, nil, persistenceError(err, "failed to store response"))
	}
	p.events.Publish(Event{
		Type:       EventSubmissionReceived,
		SessionID:  response.SessionID,
		QuestionID: response.QuestionID,
		ResponseID: response.ID,
	})
	return &attempt{response: response, replaced: replaced}, nil
}

// evaluate calls the evaluator under the evaluation timeout, retrying transient failures.
func (p *SubmissionPipeline) evaluate(ctx context.Context, kind scoring.Kind, req EvaluationRequest) (scoring.Judgment, error) {
	ctx, cancel := withTimeout(ctx, p.cfg.EvaluationTimeout)
	defer cancel()

	var judgment scoring.Judgment
	err := p.cfg.Retry.Do(ctx, "evaluate", func(ctx context.Context) error {
		j, err := p.evaluator.Evaluate(ctx, kind, req)
		if err != nil {
			return err
		}
		judgment = j
		return nil
	})
	if err != nil {
		return scoring.Judgment{}, externalError(ErrEvaluatorFailed, err, "evaluation failed")
	}
	return judgment, nil
}

// finalize stores the score atomically with the response update and reports the outcome.
func (p *SubmissionPipeline) finalize(ctx context.Context, a *attempt, result scoring.Result, judgment scoring.Judgment, firstAnswer bool) (*SubmissionResult, error) {
	score := buildScore(result, judgment)
	if err := p.repo.FinalizeSubmission(ctx, a.response, score, firstAnswer); err != nil {
		return nil, persistenceError(err, "failed to store score")
	}

	out := &SubmissionResult{
		ResponseID: a.response.ID,
		SessionID:  a.response.SessionID,
		QuestionID: a.response.QuestionID,
		Method:     result.Method,
		Total:      result.Total,
		Grade:      scoring.Grade(result.Total),
		Feedback:   result.Feedback,
		Degraded:   result.Degraded,
		Warnings:   result.Warnings,
		Breakdown:  result.Components,
		Details:    judgment.Details,
	}
	if a.replaced != nil {
		out.Replaced = a.replaced.ID
	}

	p.events.Publish(Event{
		Type:       EventSubmissionScored,
		SessionID:  a.response.SessionID,
		QuestionID: a.response.QuestionID,
		ResponseID: a.response.ID,
		Data:       map[string]any{"total_score": out.Total, "grade": out.Grade, "degraded": out.Degraded},
	})
	if result.Degraded {
		slog.Warn("Submission scored with degraded evaluation", "response_id", a.response.ID, "warnings", result.Warnings)
	}
	slog.Info("Submission scored", "response_id", a.response.ID, "session_id", a.response.SessionID, "question_id", a.response.QuestionID, "total", out.Total)
	return out, nil
}

// abort undoes a failed attempt, publishes submission.failed and returns cause.
// a is nil when the failure happened before the response was stored.
// The undo runs even when ctx is already cancelled.
func (p *SubmissionPipeline) abort(ctx context.Context, sessionID, questionID string, a *attempt, cause error) error {
	if a != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
		defer cancel()

		replacedID := ""
		if a.replaced != nil {
			replacedID = a.replaced.ID
		}
		if err := p.repo.RollbackSubmission(rctx, a.response.ID, replacedID); err != nil {
			slog.Error("Failed to roll back submission", "error", err, "response_id", a.response.ID, "cause", cause)
		}
	}

	event := Event{
		Type:       EventSubmissionFailed,
		SessionID:  sessionID,
		QuestionID: questionID,
		Data:       map[string]any{"kind": string(KindOf(cause)), "error": Message(cause)},
	}
	if a != nil {
		event.ResponseID = a.response.ID
	}
	p.events.Publish(event)
	slog.Error("Submission failed", "error", cause, "kind", KindOf(cause), "session_id", sessionID, "question_id", questionID)
	return cause
}

func buildScore(result scoring.Result, judgment scoring.Judgment) *models.Score {
	score := &models.Score{
		Total:    result.Total,
		Method:   models.ScoringMethod(result.Method),
		Degraded: result.Degraded,
		Feedback: result.Feedback,
	}
	if len(judgment.Details) > 0 || len(result.Warnings) > 0 || judgment.TimeComplexity != nil {
		details := datatypes.JSONMap{}
		for k, v := range judgment.Details {
			details[k] = v
		}
		if judgment.TimeComplexity != nil {
			details["time_complexity_score"] = *judgment.TimeComplexity
		}
		if len(result.Warnings) > 0 {
			details["warnings"] = result.Warnings
		}
		score.Details = details
	}
	for i, c := range result.Components {
		score.Components = append(score.Components, models.ScoreComponent{
			Position:     i,
			Category:     c.Category,
			RawValue:     scoring.Round2(c.RawValue),
			Weight:       c.Weight,
			Contribution: scoring.Round2(c.Contribution),
		})
	}
	return score
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
