// Package transcript models the per-course grade attempts that make up a
// student's academic record.
package transcript

// Attempt is one graded sitting of one course by one student. A student may
// hold several attempts for the same course (retakes); exactly one of them is
// flagged Final and participates in averages.
type Attempt struct {
	ID          int64
	StudentCode string
	CourseCode  string
	Term        string
	Score10     float64
	Scale4      float64
	Letter      string
	Passed      bool
	Final       bool
}
