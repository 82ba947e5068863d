package services

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/krshsl/praxis/grader/audio"
	"github.com/krshsl/praxis/grader/scoring"
)

// EvaluationRequest bundles what the evaluator judges a response against.
type EvaluationRequest struct {
	Question       string
	Response       string
	ExpectedOutput string
	KeyPoints      []string
}

// Evaluator judges a response. A judgment it cannot parse is returned with Malformed set,
// not as an error; errors are reserved for failed calls.
type Evaluator interface {
	Evaluate(ctx context.Context, kind scoring.Kind, req EvaluationRequest) (scoring.Judgment, error)
}

// ErrUnrecognized is returned by a Transcriber when the recording holds no intelligible speech.
var ErrUnrecognized = errors.New("speech not recognized")

// Transcriber turns a canonical WAV recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte, format audio.Format) (string, error)
}

// scoreKeys maps evaluator JSON fields onto judgment sub-scores, per kind.
var scoreKeys = map[scoring.Kind]map[string]func(j *scoring.Judgment) **float64{
	scoring.KindTechnical: {
		"correctness_score":     func(j *scoring.Judgment) **float64 { return &j.Correctness },
		"time_complexity_score": func(j *scoring.Judgment) **float64 { return &j.TimeComplexity },
		"optimality_score":      func(j *scoring.Judgment) **float64 { return &j.Optimality },
		"process_score":         func(j *scoring.Judgment) **float64 { return &j.Process },
	},
	scoring.KindSystemDesign: {
		"completeness_score": func(j *scoring.Judgment) **float64 { return &j.Correctness },
		"scalability_score":  func(j *scoring.Judgment) **float64 { return &j.Optimality },
		"trade_offs_score":   func(j *scoring.Judgment) **float64 { return &j.Process },
	},
	scoring.KindBehavioral: {
		"score": func(j *scoring.Judgment) **float64 { return &j.Score },
	},
}

// ParseJudgment reads an evaluator reply. Fields it does not score are kept as details.
func ParseJudgment(kind scoring.Kind, reply string) scoring.Judgment {
	j := scoring.Judgment{Kind: kind}

	var fields map[string]any
	if err := json.Unmarshal([]byte(extractJSON(reply)), &fields); err != nil || fields == nil {
		j.Malformed = true
		return j
	}

	keys := scoreKeys[kind]
	details := make(map[string]any)
	for key, value := range fields {
		if key == "feedback" {
			if s, ok := value.(string); ok {
				j.Feedback = strings.TrimSpace(s)
			}
			continue
		}
		target, scored := keys[key]
		if !scored {
			details[key] = value
			continue
		}
		if v, ok := number(value); ok {
			*target(&j) = &v
		}
	}
	if len(details) > 0 {
		j.Details = details
	}
	return j
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// extractJSON tries to extract JSON from text that might contain markdown or other formatting
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		return text[start : end+1]
	}
	return text
}

// unintelligible reports transcripts that carry no usable speech: blanks, bracketed markers,
// one word repeated, or short filler naming a noise.
func unintelligible(transcript string) bool {
	trimmed := strings.TrimSpace(transcript)
	lower := strings.ToLower(trimmed)
	if lower == "" || lower == "[inaudible]" || lower == "[vocalization]" || len([]rune(trimmed)) < 2 {
		return true
	}

	words := strings.Fields(lower)
	if len(words) > 1 {
		allSame := true
		for _, w := range words {
			if w != words[0] {
				allSame = false
				break
			}
		}
		if allSame {
			return true
		}
	}

	if len(words) <= 5 {
		for _, pat := range []string{"vocalization", "humming", "mumbling", "audio", "noise", "unintelligible"} {
			if strings.Contains(lower, pat) {
				return true
			}
		}
	}
	return false
}
