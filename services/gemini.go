package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/krshsl/praxis/grader/audio"
	"github.com/krshsl/praxis/grader/scoring"
	"golang.org/x/sync/semaphore"
	"google.golang.org/genai"
)

const (
	DefaultModelName = "gemini-2.5-flash"
	maxOutputTokens  = 4096
)

// GeminiService is the Evaluator and Transcriber backed by the Gemini API.
// In-flight requests are bounded by a semaphore shared by both roles.
type GeminiService struct {
	genaiClient *genai.Client
	model       string
	temperature float32
	prompts     *PromptBuilder
	inflight    *semaphore.Weighted
}

func NewGeminiService(ctx context.Context, cfg AIConfig) (*GeminiService, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiService{
		genaiClient: genaiClient,
		model:       model,
		temperature: cfg.Temperature,
		prompts:     NewPromptBuilder(),
		inflight:    semaphore.NewWeighted(max(cfg.MaxConcurrent, 1)),
	}, nil
}

// Evaluate asks the model for a JSON judgment. An unparseable reply yields a Malformed judgment.
func (g *GeminiService) Evaluate(ctx context.Context, kind scoring.Kind, req EvaluationRequest) (scoring.Judgment, error) {
	prompt := g.prompts.Build(kind, req)
	temperature := g.temperature
	config := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		MaxOutputTokens:  maxOutputTokens,
		ResponseMIMEType: "application/json",
		SystemInstruction: genai.NewContentFromText(
			"You are an expert interviewer. Score strictly and reply with JSON only.",
			genai.RoleUser,
		),
	}

	reply, err := g.generate(ctx, genai.Text(prompt), config)
	if err != nil {
		return scoring.Judgment{}, fmt.Errorf("failed to evaluate %s response: %w", kind, err)
	}

	judgment := ParseJudgment(kind, reply)
	if judgment.Malformed {
		slog.Warn("Evaluator reply could not be parsed", "kind", kind, "reply_length", len(reply))
	}
	return judgment, nil
}

// Transcribe sends the recording inline. Replies without intelligible speech return ErrUnrecognized.
func (g *GeminiService) Transcribe(ctx context.Context, wav []byte, format audio.Format) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(transcriptionPrompt),
		{
			InlineData: &genai.Blob{
				MIMEType: format.MIMEType(),
				Data:     wav,
			},
		},
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	transcript, err := g.generate(ctx, contents, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate transcript: %w", err)
	}

	transcript = strings.TrimSpace(transcript)
	if unintelligible(transcript) {
		return "", ErrUnrecognized
	}
	slog.Debug("Audio transcribed", "size", len(wav), "transcript_length", len(transcript))
	return transcript, nil
}

func (g *GeminiService) generate(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
	if g.genaiClient == nil {
		return "", fmt.Errorf("genai client not initialized")
	}
	if err := g.inflight.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer g.inflight.Release(1)

	result, err := g.genaiClient.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", classifyGenAIError(err)
	}
	if result == nil {
		return "", fmt.Errorf("%w: no response generated", ErrTransient)
	}
	return result.Text(), nil
}

// classifyGenAIError marks rate limiting, server errors and dropped connections as transient.
func classifyGenAIError(err error) error {
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	code := 0
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	}
	if code == 429 || code >= 500 || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return err
}
