package grading

// RetakePolicy selects which attempt at a course counts toward accumulation.
type RetakePolicy string

const (
	// PolicyKeepLatest marks the newest attempt as the counted one.
	PolicyKeepLatest RetakePolicy = "keep-latest"
	// PolicyBest keeps the attempt with the highest 4.0-scale value, ties
	// broken by the most recent term.
	PolicyBest RetakePolicy = "best"
)

// ParsePolicy normalizes a policy string, defaulting to keep-latest.
func ParsePolicy(s string) RetakePolicy {
	if RetakePolicy(s) == PolicyBest {
		return PolicyBest
	}
	return PolicyKeepLatest
}

// Attempt is the slice of a grade record the retake policy needs.
type Attempt struct {
	Scale4 float64
	Term   Term
	Final  bool
}

// ApplyRetakePolicy decides the single final/counted attempt among all
// attempts for one (student, course) pair. The incoming attempt must be the
// last element of attempts. The function mutates Final flags in place and is
// idempotent: re-applying with the same inputs changes nothing.
func ApplyRetakePolicy(policy RetakePolicy, attempts []*Attempt) {
	if len(attempts) == 0 {
		return
	}
	if len(attempts) == 1 {
		attempts[0].Final = true
		return
	}

	winner := len(attempts) - 1 // keep-latest: the new attempt wins
	if policy == PolicyBest {
		winner = 0
		for i := 1; i < len(attempts); i++ {
			a, best := attempts[i], attempts[winner]
			if a.Scale4 > best.Scale4 ||
				(a.Scale4 == best.Scale4 && a.Term.Compare(best.Term) > 0) {
				winner = i
			}
		}
	}
	for i, a := range attempts {
		a.Final = i == winner
	}
}
