package scoring

// Kind selects how the evaluator judges a response.
type Kind string

const (
	KindTechnical    Kind = "technical"
	KindBehavioral   Kind = "behavioral"
	KindSystemDesign Kind = "system_design"
)

// Judgment is the structured result returned by an evaluator.
// Sub-scores are nil when the evaluator did not provide them.
type Judgment struct {
	Kind Kind

	// Behavioral
	Score *float64

	// Technical and system design
	Correctness    *float64
	TimeComplexity *float64
	Optimality     *float64
	Process        *float64

	Feedback string
	Details  map[string]any

	// Malformed is set when the evaluator output could not be parsed as a judgment.
	Malformed bool
}

// Float returns a pointer to v, for building judgments.
func Float(v float64) *float64 {
	return &v
}
