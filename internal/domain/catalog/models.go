// Package catalog holds the course catalog, study programs, cohorts and the
// curriculum that ties them together, plus their persistence and search.
package catalog

// Course is one catalog entry. CountsTowardGPA marks whether the course's
// grades enter the cumulative weighted average (physical education and the
// like are excluded).
type Course struct {
	Code            string
	Name            string
	Credits         int
	KnowledgeBlock  string
	CountsTowardGPA bool
}

// Program is a study program (major) a cohort follows.
type Program struct {
	Code         string
	Name         string
	TotalCredits int
	FacultyCode  string
}

// Cohort is an admission class; students belong to exactly one.
type Cohort struct {
	Code        string
	Name        string
	IntakeYear  int
	ProgramCode string
}

// CurriculumEntry places a course inside a program at a suggested term.
type CurriculumEntry struct {
	ProgramCode string
	CourseCode  string
	TermNo      int
	Required    bool
}
