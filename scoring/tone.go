package scoring

import (
	"strings"
	"unicode"
)

// Sentiment labels
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

const polarityThreshold = 0.1

// DefaultProfessionalTerms are the profession-signal terms counted for professionalism.
var DefaultProfessionalTerms = []string{
	"experience", "responsibility", "leadership", "collaboration",
	"achievement", "solution", "strategy", "implementation",
	"analysis", "development", "management", "coordination",
}

// ToneAnalysis are the metrics derived from a transcription.
type ToneAnalysis struct {
	SentimentScore        float64 `json:"sentiment_score"` // [-1,1]
	SentimentLabel        string  `json:"sentiment"`
	ClarityScore          float64 `json:"clarity_score"`         // [0,1]
	ProfessionalismScore  float64 `json:"professionalism_score"` // [0,1]
	AvgSentenceLength     float64 `json:"avg_sentence_length"`
	TotalWords            int     `json:"total_words"`
	ProfessionalWordCount int     `json:"professional_word_count"`
}

// ToneAnalyzer derives sentiment, clarity and professionalism from text.
// It holds no mutable state.
type ToneAnalyzer struct {
	terms     []string
	polarizer Polarizer
}

type ToneOption func(*ToneAnalyzer)

func WithProfessionalTerms(terms []string) ToneOption {
	return func(a *ToneAnalyzer) {
		a.terms = make([]string, 0, len(terms))
		for _, t := range terms {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				a.terms = append(a.terms, t)
			}
		}
	}
}

// WithLexicon replaces the VADER polarity scorer.
func WithLexicon(p Polarizer) ToneOption {
	return func(a *ToneAnalyzer) { a.polarizer = p }
}

func NewToneAnalyzer(opts ...ToneOption) *ToneAnalyzer {
	a := &ToneAnalyzer{
		terms:     DefaultProfessionalTerms,
		polarizer: NewVader(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze computes the tone metrics of text. Blank text yields a neutral, all-zero analysis.
func (a *ToneAnalyzer) Analyze(text string) ToneAnalysis {
	if strings.TrimSpace(text) == "" {
		return ToneAnalysis{SentimentLabel: SentimentNeutral}
	}

	polarity := a.polarizer.Polarity(text)
	avg := averageSentenceLength(text)
	lower := strings.ToLower(text)

	found := 0
	for _, term := range a.terms {
		if strings.Contains(lower, term) {
			found++
		}
	}
	totalWords := len(strings.Fields(text))
	professionalism := float64(found) / float64(max(totalWords, 1)) * 10
	if professionalism > 1 {
		professionalism = 1
	}

	return ToneAnalysis{
		SentimentScore:        polarity,
		SentimentLabel:        SentimentLabel(polarity),
		ClarityScore:          ClarityScore(avg),
		ProfessionalismScore:  professionalism,
		AvgSentenceLength:     avg,
		TotalWords:            totalWords,
		ProfessionalWordCount: found,
	}
}

// SentimentLabel maps polarity to positive (>0.1), negative (<-0.1) or neutral.
func SentimentLabel(polarity float64) string {
	switch {
	case polarity > polarityThreshold:
		return SentimentPositive
	case polarity < -polarityThreshold:
		return SentimentNegative
	}
	return SentimentNeutral
}

// ClarityScore is 1.0 for a mean sentence length in [10,25] words, 0.8 in [5,30], else 0.5.
func ClarityScore(avgSentenceLength float64) float64 {
	switch {
	case avgSentenceLength >= 10 && avgSentenceLength <= 25:
		return 1.0
	case avgSentenceLength >= 5 && avgSentenceLength <= 30:
		return 0.8
	}
	return 0.5
}

func averageSentenceLength(text string) float64 {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return 0
	}
	total := 0
	for _, s := range sentences {
		total += len(words(s))
	}
	return float64(total) / float64(len(sentences))
}

// splitSentences splits on terminal punctuation and drops fragments without words.
func splitSentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	sentences := parts[:0]
	for _, p := range parts {
		if len(words(p)) > 0 {
			sentences = append(sentences, p)
		}
	}
	return sentences
}

// words returns the lowercase word tokens of s; apostrophes stay inside words.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}
