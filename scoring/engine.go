package scoring

import (
	"fmt"
	"math"
)

const weightTolerance = 1e-6

// TechnicalWeights weigh the four technical sub-scores.
type TechnicalWeights struct {
	Accuracy   float64
	Time       float64
	Optimality float64
	Process    float64
}

func (w TechnicalWeights) sum() float64 {
	return w.Accuracy + w.Time + w.Optimality + w.Process
}

// BehavioralWeights weigh the evaluator score against the tone score.
type BehavioralWeights struct {
	Evaluator float64
	Tone      float64
}

func (w BehavioralWeights) sum() float64 {
	return w.Evaluator + w.Tone
}

// TimeWindow is the optimal answering time in seconds.
type TimeWindow struct {
	Min float64
	Max float64
}

func DefaultTechnicalWeights() TechnicalWeights {
	return TechnicalWeights{Accuracy: 0.5, Time: 0.2, Optimality: 0.2, Process: 0.1}
}

func DefaultBehavioralWeights() BehavioralWeights {
	return BehavioralWeights{Evaluator: 0.8, Tone: 0.2}
}

func DefaultTimeWindow() TimeWindow {
	return TimeWindow{Min: 60, Max: 300}
}

// DifficultyWindows are the per-difficulty optimal windows.
func DifficultyWindows() map[string]TimeWindow {
	return map[string]TimeWindow{
		"easy":   {Min: 30, Max: 120},
		"medium": {Min: 60, Max: 300},
		"hard":   {Min: 120, Max: 600},
	}
}

// Component is one breakdown row of a score.
type Component struct {
	Category     string  `json:"category"`
	RawValue     float64 `json:"raw_value"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

// Result is a weighted total with the breakdown that produced it.
type Result struct {
	Method     string      `json:"method"`
	Total      float64     `json:"total"`
	Components []Component `json:"components"`
	Feedback   string      `json:"feedback"`
	Degraded   bool        `json:"degraded"`
	Warnings   []string    `json:"warnings,omitempty"`
}

func (r *Result) degrade(format string, args ...any) {
	r.Degraded = true
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Engine turns judgments and auxiliary metrics into weighted scores.
// An Engine is immutable after construction and safe for concurrent use.
type Engine struct {
	technical  TechnicalWeights
	behavioral BehavioralWeights
	window     TimeWindow
	windows    map[string]TimeWindow
}

type Option func(*Engine)

func WithTechnicalWeights(w TechnicalWeights) Option {
	return func(e *Engine) { e.technical = w }
}

func WithBehavioralWeights(w BehavioralWeights) Option {
	return func(e *Engine) { e.behavioral = w }
}

func WithTimeWindow(w TimeWindow) Option {
	return func(e *Engine) { e.window = w }
}

// WithDifficultyWindows makes WindowFor pick a window by question difficulty.
func WithDifficultyWindows(windows map[string]TimeWindow) Option {
	return func(e *Engine) {
		e.windows = make(map[string]TimeWindow, len(windows))
		for k, v := range windows {
			e.windows[k] = v
		}
	}
}

// NewEngine builds an engine with the default weights unless overridden.
// Each weight set must sum to 1.0.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		technical:  DefaultTechnicalWeights(),
		behavioral: DefaultBehavioralWeights(),
		window:     DefaultTimeWindow(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if s := e.technical.sum(); math.Abs(s-1) > weightTolerance {
		return nil, fmt.Errorf("technical weights sum to %.4f, want 1.0", s)
	}
	if s := e.behavioral.sum(); math.Abs(s-1) > weightTolerance {
		return nil, fmt.Errorf("behavioral weights sum to %.4f, want 1.0", s)
	}
	if err := validateWindow(e.window); err != nil {
		return nil, err
	}
	for name, w := range e.windows {
		if err := validateWindow(w); err != nil {
			return nil, fmt.Errorf("%s window: %w", name, err)
		}
	}
	return e, nil
}

func validateWindow(w TimeWindow) error {
	if w.Min < 0 || w.Max <= w.Min {
		return fmt.Errorf("invalid time window [%g,%g]", w.Min, w.Max)
	}
	return nil
}

func (e *Engine) TechnicalWeights() TechnicalWeights   { return e.technical }
func (e *Engine) BehavioralWeights() BehavioralWeights { return e.behavioral }

// WindowFor returns the optimal window for a difficulty, falling back to the configured default.
func (e *Engine) WindowFor(difficulty string) TimeWindow {
	if w, ok := e.windows[difficulty]; ok {
		return w
	}
	return e.window
}

// TimeScore rates elapsed seconds against the window:
// <=min 80, (min,max] 100, (max,1.5max] 70, (1.5max,2max] 50, else 30.
func TimeScore(elapsedSeconds float64, w TimeWindow) float64 {
	switch {
	case elapsedSeconds <= w.Min:
		return 80
	case elapsedSeconds <= w.Max:
		return 100
	case elapsedSeconds <= w.Max*1.5:
		return 70
	case elapsedSeconds <= w.Max*2:
		return 50
	default:
		return 30
	}
}

// ComputeTechnical scores a technical judgment against the default window.
func (e *Engine) ComputeTechnical(j Judgment, elapsedSeconds float64) Result {
	return e.ComputeTechnicalWithin(e.window, j, elapsedSeconds)
}

// ComputeTechnicalWithin scores a technical judgment against an explicit window.
// Missing sub-scores count as 0 and mark the result degraded.
func (e *Engine) ComputeTechnicalWithin(w TimeWindow, j Judgment, elapsedSeconds float64) Result {
	res := Result{Method: "technical", Feedback: j.Feedback}
	if j.Malformed {
		res.degrade("evaluator response could not be parsed")
	}

	correctness := subScore(&res, "correctness", j.Correctness)
	optimality := subScore(&res, "optimality", j.Optimality)
	process := subScore(&res, "process", j.Process)
	timeScore := TimeScore(elapsedSeconds, w)

	res.Components = []Component{
		component("accuracy", correctness, e.technical.Accuracy),
		component("time", timeScore, e.technical.Time),
		component("optimality", optimality, e.technical.Optimality),
		component("process", process, e.technical.Process),
	}
	res.Total = total(res.Components)
	return res
}

// ComputeBehavioral scores a behavioral judgment together with the tone of the transcription.
func (e *Engine) ComputeBehavioral(j Judgment, tone ToneAnalysis) Result {
	res := Result{Method: "behavioral", Feedback: j.Feedback}
	if j.Malformed {
		res.degrade("evaluator response could not be parsed")
	}

	judged := subScore(&res, "score", j.Score)
	res.Components = []Component{
		component("evaluator", judged, e.behavioral.Evaluator),
		component("tone", ToneScore(tone), e.behavioral.Tone),
	}
	res.Total = total(res.Components)
	return res
}

// ToneScore = min(100, 100 x (clarity x 0.3 + professionalism x 0.4 + |sentiment| x 0.3))
func ToneScore(t ToneAnalysis) float64 {
	v := 100 * (t.ClarityScore*0.3 + t.ProfessionalismScore*0.4 + math.Abs(t.SentimentScore)*0.3)
	return clamp(v)
}

func subScore(res *Result, name string, v *float64) float64 {
	if v == nil {
		res.degrade("evaluator did not return a %s score", name)
		return 0
	}
	if math.IsNaN(*v) {
		res.degrade("evaluator returned an invalid %s score", name)
		return 0
	}
	if *v < 0 || *v > 100 {
		res.degrade("evaluator %s score %g outside [0,100]", name, *v)
		return clamp(*v)
	}
	return *v
}

func component(category string, raw, weight float64) Component {
	return Component{Category: category, RawValue: raw, Weight: weight, Contribution: raw * weight}
}

func total(components []Component) float64 {
	var sum float64
	for _, c := range components {
		sum += c.Contribution
	}
	return Round2(clamp(sum))
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
