package services

import (
	"fmt"
	"strings"

	"github.com/krshsl/praxis/grader/scoring"
)

const transcriptionPrompt = "Transcribe only clear, intelligible speech. Provide only the transcript, no additional commentary. If the audio is silent, empty, or unintelligible, return an empty string."

type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// Build returns the evaluation prompt for a kind of response.
func (pb *PromptBuilder) Build(kind scoring.Kind, req EvaluationRequest) string {
	switch kind {
	case scoring.KindSystemDesign:
		return pb.BuildSystemDesignPrompt(req.Question, req.Response)
	case scoring.KindBehavioral:
		return pb.BuildBehavioralPrompt(req.Question, req.Response, req.KeyPoints)
	}
	return pb.BuildTechnicalPrompt(req.Question, req.Response, req.ExpectedOutput)
}

// BuildTechnicalPrompt creates prompt for coding solution evaluation
func (pb *PromptBuilder) BuildTechnicalPrompt(problem, solution, expectedOutput string) string {
	return fmt.Sprintf(`You are an expert technical interviewer evaluating a coding solution.

PROBLEM:
%s

EXPECTED OUTPUT:
%s

CANDIDATE SOLUTION:
%s

Evaluate the solution on a scale of 0-100 for each of:
1. Correctness
2. Time complexity
3. Code quality and optimality
4. Problem-solving approach

Return your response in the following JSON format:
{
  "correctness_score": <0-100>,
  "time_complexity_score": <0-100>,
  "optimality_score": <0-100>,
  "process_score": <0-100>,
  "feedback": "<detailed feedback>",
  "time_complexity": "<O(n), O(n^2), etc.>",
  "space_complexity": "<O(1), O(n), etc.>",
  "issues": ["<issue1>", "<issue2>"],
  "suggestions": ["<suggestion1>", "<suggestion2>"]
}`, problem, orNone(expectedOutput), solution)
}

// BuildSystemDesignPrompt creates prompt for system design evaluation
func (pb *PromptBuilder) BuildSystemDesignPrompt(requirements, design string) string {
	return fmt.Sprintf(`You are an expert system design interviewer evaluating a design solution.

REQUIREMENTS:
%s

CANDIDATE DESIGN:
%s

Evaluate the design on a scale of 0-100 for each of:
1. Completeness of the design
2. Scalability considerations
3. Technical feasibility
4. Trade-offs understanding
5. Communication clarity

Return your response in the following JSON format:
{
  "completeness_score": <0-100>,
  "scalability_score": <0-100>,
  "feasibility_score": <0-100>,
  "trade_offs_score": <0-100>,
  "communication_score": <0-100>,
  "feedback": "<detailed feedback>",
  "strengths": ["<strength1>", "<strength2>"],
  "weaknesses": ["<weakness1>", "<weakness2>"],
  "missing_components": ["<component1>", "<component2>"]
}`, requirements, design)
}

// BuildBehavioralPrompt creates prompt for transcribed behavioral answers
func (pb *PromptBuilder) BuildBehavioralPrompt(question, transcript string, keyPoints []string) string {
	return fmt.Sprintf(`You are an expert interviewer evaluating a behavioral response. The response was transcribed from audio; treat filler words as pauses.

QUESTION:
%s

KEY POINTS TO EVALUATE:
%s

CANDIDATE RESPONSE:
%s

Evaluate the response on a scale of 0-100 based on relevance, specificity, use of the STAR method
(Situation, Task, Action, Result), clarity and professionalism.

Return your response in the following JSON format:
{
  "score": <0-100>,
  "feedback": "<detailed feedback>",
  "strengths": ["<strength1>", "<strength2>"],
  "areas_for_improvement": ["<area1>", "<area2>"],
  "key_points_covered": ["<point1>", "<point2>"],
  "missing_points": ["<missing_point1>", "<missing_point2>"]
}`, question, orNone(strings.Join(keyPoints, ", ")), orNone(transcript))
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
