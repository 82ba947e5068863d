package scoring

import "fmt"

// MissingScorePolicy decides how unscored responses count toward a session score.
type MissingScorePolicy string

const (
	// ZeroFill counts an unscored response as 0.
	ZeroFill MissingScorePolicy = "zero_fill"
	// Exclude leaves unscored responses out of the mean.
	Exclude MissingScorePolicy = "exclude"
)

func ParseMissingScorePolicy(s string) (MissingScorePolicy, error) {
	switch p := MissingScorePolicy(s); p {
	case ZeroFill, Exclude:
		return p, nil
	case "":
		return ZeroFill, nil
	}
	return "", fmt.Errorf("unknown missing score policy %q", s)
}

// SessionScore is the mean of the response totals rounded to two decimals.
// ok is false when nothing counts toward the mean.
func SessionScore(totals []*float64, policy MissingScorePolicy) (score float64, ok bool) {
	var sum float64
	var n int
	for _, t := range totals {
		switch {
		case t != nil:
			sum += *t
			n++
		case policy != Exclude:
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return Round2(sum / float64(n)), true
}

// OverallInterviewScore is the midpoint of the technical and behavioral scores.
// It is undefined unless both are present.
func OverallInterviewScore(technical, behavioral *float64) (float64, bool) {
	if technical == nil || behavioral == nil {
		return 0, false
	}
	return Round2((*technical + *behavioral) / 2), true
}

var gradeLadder = []struct {
	min   float64
	grade string
}{
	{90, "A+"},
	{85, "A"},
	{80, "A-"},
	{75, "B+"},
	{70, "B"},
	{65, "B-"},
	{60, "C+"},
	{55, "C"},
	{50, "C-"},
}

// Grade maps a score to its display letter. It plays no part in aggregation.
func Grade(score float64) string {
	for _, g := range gradeLadder {
		if score >= g.min {
			return g.grade
		}
	}
	return "F"
}
