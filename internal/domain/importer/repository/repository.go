package repository

import (
	"context"

	"github.com/vui-edu/records/internal/domain/catalog"
	"github.com/vui-edu/records/internal/domain/student"
	"github.com/vui-edu/records/internal/domain/transcript"
)

// Store is everything the import run controller needs from persistence. Reads
// happen while rows are processed; all proposed writes are gathered into a
// Batch and submitted once through ApplyBatch.
type Store interface {
	ListCourses(ctx context.Context) ([]catalog.Course, error)
	GetCourse(ctx context.Context, code string) (*catalog.Course, error)
	GetCohort(ctx context.Context, code string) (*catalog.Cohort, error)
	GetProgram(ctx context.Context, code string) (*catalog.Program, error)
	// CurriculumTerms returns, per course code, the earliest term number at
	// which the program schedules that course.
	CurriculumTerms(ctx context.Context, programCode string) (map[string]int, error)
	CurriculumEntries(ctx context.Context, programCode string) (map[string]catalog.CurriculumEntry, error)

	GetStudent(ctx context.Context, code string) (*student.Student, error)
	// ListStudentAttempts returns every attempt on record for the student,
	// ordered by course then insertion.
	ListStudentAttempts(ctx context.Context, studentCode string) ([]transcript.Attempt, error)

	ApplyBatch(ctx context.Context, batch *Batch) error
}

// Batch is the unit of work of a single import run: every create and update
// the run proposes, applied inside one transaction by ApplyBatch. A previewed
// run builds a Batch and then throws it away.
type Batch struct {
	StudentCreates []student.Student
	StudentUpdates []student.Update

	AttemptInserts []transcript.Attempt
	AttemptUpdates []transcript.Attempt

	CourseCreates []catalog.Course
	CourseUpdates []catalog.Course

	// CurriculumReplace, when non-empty, clears the named program's
	// curriculum before CurriculumUpserts are applied.
	CurriculumReplace string
	CurriculumUpserts []catalog.CurriculumEntry
}

// Empty reports whether the batch proposes no writes at all.
func (b *Batch) Empty() bool {
	return len(b.StudentCreates) == 0 && len(b.StudentUpdates) == 0 &&
		len(b.AttemptInserts) == 0 && len(b.AttemptUpdates) == 0 &&
		len(b.CourseCreates) == 0 && len(b.CourseUpdates) == 0 &&
		b.CurriculumReplace == "" && len(b.CurriculumUpserts) == 0
}
