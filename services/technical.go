package services

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/krshsl/praxis/grader/models"
	"github.com/krshsl/praxis/grader/scoring"
)

type TechnicalSubmission struct {
	SessionID      string
	QuestionID     string
	Code           string
	ElapsedSeconds float64
	Replace        bool
}

// SubmitTechnical evaluates and scores a code answer to a leetcode or system design question.
func (p *SubmissionPipeline) SubmitTechnical(ctx context.Context, sub TechnicalSubmission) (*SubmissionResult, error) {
	switch {
	case strings.TrimSpace(sub.Code) == "":
		return nil, validationError(ErrInvalidInput, "code is required")
	case math.IsNaN(sub.ElapsedSeconds) || math.IsInf(sub.ElapsedSeconds, 0) || sub.ElapsedSeconds < 0:
		return nil, validationError(ErrInvalidInput, "elapsed_seconds must be a non-negative number")
	}

	release, session, question, firstAnswer, err := p.begin(ctx, sub.SessionID, sub.QuestionID, models.InterviewTechnical, sub.Replace)
	if err != nil {
		return nil, err
	}
	defer release()

	now := p.now()
	response := &models.Response{
		InterviewID:     session.InterviewID,
		SessionID:       sub.SessionID,
		QuestionID:      sub.QuestionID,
		CodeResponse:    sub.Code,
		StartTime:       now.Add(-time.Duration(sub.ElapsedSeconds * float64(time.Second))),
		EndTime:         now,
		DurationSeconds: sub.ElapsedSeconds,
	}
	a, err := p.persistResponse(ctx, response, sub.Replace)
	if err != nil {
		return nil, err
	}
	slog.Debug("Technical response stored", "response_id", response.ID, "session_id", sub.SessionID)

	kind := scoring.KindTechnical
	if question.Type == models.QuestionSystemDesign {
		kind = scoring.KindSystemDesign
	}
	judgment, err := p.evaluate(ctx, kind, EvaluationRequest{
		Question:       question.Problem(),
		Response:       sub.Code,
		ExpectedOutput: question.ExpectedOutput,
	})
	if err != nil {
		return nil, p.abort(ctx, sub.SessionID, sub.QuestionID, a, err)
	}
	slog.Debug("Technical response evaluated", "response_id", response.ID, "kind", kind, "malformed", judgment.Malformed)

	window := p.engine.WindowFor(string(question.Difficulty))
	result := p.engine.ComputeTechnicalWithin(window, judgment, sub.ElapsedSeconds)

	out, err := p.finalize(ctx, a, result, judgment, firstAnswer)
	if err != nil {
		return nil, p.abort(ctx, sub.SessionID, sub.QuestionID, a, err)
	}
	return out, nil
}
