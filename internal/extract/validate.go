package extract

import (
	"strings"

	"mnemos/internal/types"
)

// Validation tuning. Very short candidates are usually noise ("fix",
// "yes"), so their confidence is dampened before the acceptance floor
// is applied.
const (
	acceptanceFloor = 0.25
	shortQuestion   = 12
	shortAnswer     = 8
	shortDampening  = 0.5
)

// Validate checks a candidate and returns whether it is storable along
// with its effective confidence score.
func Validate(c types.Candidate) (bool, float64) {
	q := strings.TrimSpace(c.Question)
	a := strings.TrimSpace(c.Answer)
	if q == "" || a == "" {
		return false, 0
	}

	score := c.Confidence
	if score <= 0 {
		score = heuristicConfidence
	}
	if len(q) < shortQuestion || len(a) < shortAnswer {
		score *= shortDampening
	}

	return score >= acceptanceFloor, score
}
