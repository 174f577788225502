// Package grading holds the pure grade arithmetic of the import engine: the
// 10-point score classification table, the ordered term representation, and
// the retake policy that decides which attempt counts.
package grading

// Grade is the derived classification of a 10-point score.
type Grade struct {
	Letter string
	Scale4 float64
	Passed bool
}

type band struct {
	min   float64
	grade Grade
}

// Breakpoints are fixed institution-wide. The table depends on nothing but
// the score itself.
var bands = []band{
	{8.5, Grade{"A", 4.0, true}},
	{7.8, Grade{"B+", 3.5, true}},
	{7.0, Grade{"B", 3.0, true}},
	{6.3, Grade{"C+", 2.5, true}},
	{5.5, Grade{"C", 2.0, true}},
	{4.8, Grade{"D+", 1.5, true}},
	{4.0, Grade{"D", 1.0, true}},
}

// Classify maps a 10-point score to its letter grade, 4.0-scale value and
// pass/fail outcome.
func Classify(score float64) Grade {
	for _, b := range bands {
		if score >= b.min {
			return b.grade
		}
	}
	return Grade{"F", 0.0, false}
}
