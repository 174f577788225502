// Package student holds the student identity records and their linked user
// accounts.
package student

import "time"

// Student is one enrolled student. SummaryAvg is the 10-point cumulative
// average shown on transcripts; it is nullable because freshly created
// students have no grades yet.
type Student struct {
	Code        string
	FullName    string
	BirthDate   *time.Time
	Birthplace  string
	CohortCode  string
	Status      string
	UserID      int64
	SummaryAvg  *float64
	DebtCourses *int
	DebtCredits *int
}

// DefaultStatus is assigned to auto-provisioned students.
const DefaultStatus = "Đang học"

// Update carries the mutable fields of an existing student; nil means leave
// unchanged.
type Update struct {
	Code        string
	FullName    *string
	BirthDate   *time.Time
	Birthplace  *string
	CohortCode  *string
	SummaryAvg  *float64
	DebtCourses *int
	DebtCredits *int
}

// Empty reports whether the update would change nothing.
func (u Update) Empty() bool {
	return u.FullName == nil && u.BirthDate == nil && u.Birthplace == nil &&
		u.CohortCode == nil && u.SummaryAvg == nil && u.DebtCourses == nil && u.DebtCredits == nil
}
