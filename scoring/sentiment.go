package scoring

import (
	"math"
	"sync"

	"github.com/jonreiter/govader"
)

// Polarizer scores the sentiment polarity of text in [-1,1].
type Polarizer interface {
	Polarity(text string) float64
}

// Vader scores polarity with the VADER compound score.
// The analyzer only reads its dictionaries, so one instance serves concurrent callers.
type Vader struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

var sharedVader = sync.OnceValue(func() *Vader {
	return &Vader{analyzer: govader.NewSentimentIntensityAnalyzer()}
})

// NewVader returns the process-wide analyzer; the lexicon is loaded on first use.
func NewVader() *Vader {
	return sharedVader()
}

func (v *Vader) Polarity(text string) float64 {
	compound := v.analyzer.PolarityScores(text).Compound
	if math.IsNaN(compound) {
		return 0
	}
	return math.Max(-1, math.Min(1, compound))
}
