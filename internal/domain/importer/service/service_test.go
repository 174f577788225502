package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vui-edu/records/internal/domain/audit"
	"github.com/vui-edu/records/internal/domain/catalog"
	"github.com/vui-edu/records/internal/domain/importer/repository"
	"github.com/vui-edu/records/internal/domain/student"
	"github.com/vui-edu/records/internal/domain/transcript"
)

// fakeStore is an in-memory Store that records every batch it is asked to
// apply without mutating its own state, which is exactly what the run
// controller assumes of a real transaction boundary.
type fakeStore struct {
	courses    []catalog.Course
	cohorts    map[string]*catalog.Cohort
	programs   map[string]*catalog.Program
	curriculum map[string][]catalog.CurriculumEntry
	students   map[string]*student.Student
	attempts   map[string][]transcript.Attempt

	applied []*repository.Batch
}

func (f *fakeStore) ListCourses(context.Context) ([]catalog.Course, error) {
	return f.courses, nil
}

func (f *fakeStore) GetCourse(_ context.Context, code string) (*catalog.Course, error) {
	for _, c := range f.courses {
		if c.Code == code {
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetCohort(_ context.Context, code string) (*catalog.Cohort, error) {
	return f.cohorts[code], nil
}

func (f *fakeStore) GetProgram(_ context.Context, code string) (*catalog.Program, error) {
	return f.programs[code], nil
}

func (f *fakeStore) CurriculumTerms(_ context.Context, programCode string) (map[string]int, error) {
	terms := make(map[string]int)
	for _, e := range f.curriculum[programCode] {
		if cur, ok := terms[e.CourseCode]; !ok || e.TermNo < cur {
			terms[e.CourseCode] = e.TermNo
		}
	}
	return terms, nil
}

func (f *fakeStore) CurriculumEntries(_ context.Context, programCode string) (map[string]catalog.CurriculumEntry, error) {
	entries := make(map[string]catalog.CurriculumEntry)
	for _, e := range f.curriculum[programCode] {
		entries[e.CourseCode] = e
	}
	return entries, nil
}

func (f *fakeStore) GetStudent(_ context.Context, code string) (*student.Student, error) {
	if st, ok := f.students[code]; ok {
		cp := *st
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeStore) ListStudentAttempts(_ context.Context, studentCode string) ([]transcript.Attempt, error) {
	return f.attempts[studentCode], nil
}

func (f *fakeStore) ApplyBatch(_ context.Context, batch *repository.Batch) error {
	f.applied = append(f.applied, batch)
	return nil
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		courses: []catalog.Course{
			{Code: "IT101", Name: "Lập trình C", Credits: 3, CountsTowardGPA: true},
			{Code: "MA101", Name: "Toán cao cấp", Credits: 4, CountsTowardGPA: true},
			{Code: "PE101", Name: "Giáo dục thể chất", Credits: 2, CountsTowardGPA: false},
		},
		cohorts: map[string]*catalog.Cohort{
			"DH21TH01": {Code: "DH21TH01", Name: "Tin học K21", IntakeYear: 2021, ProgramCode: "7480201"},
		},
		programs: map[string]*catalog.Program{
			"7480201": {Code: "7480201", Name: "Công nghệ thông tin", TotalCredits: 120},
		},
		curriculum: map[string][]catalog.CurriculumEntry{
			"7480201": {
				{ProgramCode: "7480201", CourseCode: "IT101", TermNo: 1, Required: true},
				{ProgramCode: "7480201", CourseCode: "MA101", TermNo: 1, Required: true},
			},
		},
		students: map[string]*student.Student{},
		attempts: map[string][]transcript.Attempt{},
	}
}

func newTestService(store *fakeStore) *ImportService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewImportService(store, audit.NopSink{}, logger, nil, nil)
}

const gradeSheet = "STT,Mã sinh viên,Họ và tên,Tên lớp,Lập trình C,Toán cao cấp,TBC HT10,Số HP nợ,Số tín chỉ nợ\n" +
	"1,DH52100123,Nguyễn Văn An,DH21TH01,\"8,5\",7.0,7.64,0,0\n" +
	"2,DH52100124,Trần Thị Bình,DH21TH01,6.0,9.0,7.71,1,3\n"

func TestImportGradesCreatesStudentsAndAttempts(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	res, err := svc.ImportGrades(context.Background(), "grades.csv", []byte(gradeSheet), GradeOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Summary.TotalRows)
	assert.Equal(t, 2, res.Summary.Created)
	assert.Equal(t, 0, res.Summary.Skipped)

	require.Len(t, store.applied, 1)
	batch := store.applied[0]
	assert.Len(t, batch.StudentCreates, 2)
	require.Len(t, batch.AttemptInserts, 4)

	byKey := make(map[string]transcript.Attempt)
	for _, a := range batch.AttemptInserts {
		byKey[a.StudentCode+"/"+a.CourseCode] = a
	}
	an := byKey["DH52100123/IT101"]
	assert.Equal(t, 8.5, an.Score10)
	assert.Equal(t, "A", an.Letter)
	assert.Equal(t, 4.0, an.Scale4)
	assert.Equal(t, "1", an.Term)
	assert.True(t, an.Passed)
	assert.True(t, an.Final)
}

func TestImportGradesPreviewWritesNothing(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	res, err := svc.ImportGrades(context.Background(), "grades.csv", []byte(gradeSheet), GradeOptions{Preview: true})
	require.NoError(t, err)

	assert.Empty(t, store.applied, "preview must not reach the store's write path")
	assert.True(t, res.Previewed)
	assert.Equal(t, 2, res.Summary.Created)
	require.Len(t, res.Preview, 2)
	assert.Equal(t, "DH52100123", res.Preview[0].StudentCode)
	require.NotNil(t, res.Preview[0].SummaryAvg)
	assert.InDelta(t, 7.64, *res.Preview[0].SummaryAvg, 1e-9)
}

func TestImportGradesSkipsUnknownCohort(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	sheet := "Mã sinh viên,Họ và tên,Tên lớp,Lập trình C\n" +
		"DH52100125,Lê Văn Cường,DH99XX01,8.0\n"
	res, err := svc.ImportGrades(context.Background(), "grades.csv", []byte(sheet), GradeOptions{})
	require.NoError(t, err)

	assert.Equal(t, 0, res.Summary.Created)
	assert.Equal(t, 1, res.Summary.Skipped)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "DH99XX01")
	require.Len(t, store.applied, 1)
	assert.True(t, store.applied[0].Empty())
}

func TestImportGradesUnknownRunCohortFails(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	sheet := "Mã sinh viên,Họ và tên,Lập trình C\n" +
		"DH52100123,Nguyễn Văn An,8.0\n"
	_, err := svc.ImportGrades(context.Background(), "grades.csv", []byte(sheet),
		GradeOptions{CohortCode: "DH99XX01"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownReference)
	assert.Empty(t, store.applied)
}

func TestImportGradesFuzzyColumnMatchIsFlagged(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	// "Toán cao cấpp" is one edit away from the catalog name and must be
	// accepted, but the acceptance has to be visible to the operator.
	sheet := "Mã sinh viên,Họ và tên,Tên lớp,Toán cao cấpp\n" +
		"DH52100123,Nguyễn Văn An,DH21TH01,9.0\n"
	res, err := svc.ImportGrades(context.Background(), "grades.csv", []byte(sheet), GradeOptions{Preview: true})
	require.NoError(t, err)

	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "Toán cao cấpp")
	assert.Contains(t, res.Warnings[0], "MA101")
	assert.Equal(t, 1, res.Summary.Created, "a flagged match still imports")
}

func TestImportGradesRepeatedHeaderRowSkipped(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	sheet := "Mã sinh viên,Họ và tên,Tên lớp,Lập trình C\n" +
		"DH52100123,Nguyễn Văn An,DH21TH01,8.0\n" +
		"Mã sinh viên,Họ và tên,Tên lớp,Lập trình C\n" +
		"DH52100124,Trần Thị Bình,DH21TH01,9.0\n"
	res, err := svc.ImportGrades(context.Background(), "grades.csv", []byte(sheet), GradeOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Summary.Created)
	assert.Equal(t, 1, res.Summary.Skipped)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "header")
	assert.Len(t, store.applied[0].StudentCreates, 2)
}

func TestImportGradesStudentOnTwoRows(t *testing.T) {
	sheet := "Mã sinh viên,Họ và tên,Tên lớp,Lập trình C\n" +
		"DH52100123,Nguyễn Văn An,DH21TH01,6.0\n" +
		"DH52100123,Nguyễn Văn An,DH21TH01,8.0\n"

	t.Run("second row folds into the pending attempt", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(store)
		res, err := svc.ImportGrades(context.Background(), "grades.csv", []byte(sheet),
			GradeOptions{AllowUpdate: true})
		require.NoError(t, err)

		assert.Equal(t, 1, res.Summary.Created)
		batch := store.applied[0]
		require.Len(t, batch.AttemptInserts, 1, "one student, one course, one term")
		assert.Equal(t, 8.0, batch.AttemptInserts[0].Score10)
		assert.Empty(t, batch.AttemptUpdates)
	})

	t.Run("second row skipped without allow_update", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(store)
		res, err := svc.ImportGrades(context.Background(), "grades.csv", []byte(sheet), GradeOptions{})
		require.NoError(t, err)

		batch := store.applied[0]
		require.Len(t, batch.AttemptInserts, 1)
		assert.Equal(t, 6.0, batch.AttemptInserts[0].Score10)
		require.Len(t, res.Warnings, 1)
		assert.Contains(t, res.Warnings[0], "already graded")
	})
}

func TestImportGradesReconciliationWarning(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	// 8.5*3 + 7.0*4 over 7 credits computes to 7.64; the file claims 9.99.
	sheet := "Mã sinh viên,Họ và tên,Tên lớp,Lập trình C,Toán cao cấp,TBC HT10\n" +
		"DH52100123,Nguyễn Văn An,DH21TH01,\"8,5\",7.0,9.99\n"
	res, err := svc.ImportGrades(context.Background(), "grades.csv", []byte(sheet), GradeOptions{Preview: true})
	require.NoError(t, err)

	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "9.99")
	assert.Contains(t, res.Warnings[0], "7.64")
	// The file figure still wins.
	require.NotNil(t, res.Preview[0].SummaryAvg)
	assert.InDelta(t, 9.99, *res.Preview[0].SummaryAvg, 1e-9)
}

func TestImportGradesWithinEpsilonStaysQuiet(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	sheet := "Mã sinh viên,Họ và tên,Tên lớp,Lập trình C,Toán cao cấp,TBC HT10\n" +
		"DH52100123,Nguyễn Văn An,DH21TH01,\"8,5\",7.0,7.68\n"
	res, err := svc.ImportGrades(context.Background(), "grades.csv", []byte(sheet), GradeOptions{Preview: true})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
}

func TestImportGradesEpsilonBoundaryStaysQuiet(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	// Computed average is 7.64; 7.69 sits exactly on the tolerance. The
	// comparison happens in decimal, so binary float noise around 0.05
	// must not tip it into a warning.
	sheet := "Mã sinh viên,Họ và tên,Tên lớp,Lập trình C,Toán cao cấp,TBC HT10\n" +
		"DH52100123,Nguyễn Văn An,DH21TH01,\"8,5\",7.0,7.69\n"
	res, err := svc.ImportGrades(context.Background(), "grades.csv", []byte(sheet), GradeOptions{Preview: true})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
}

func TestImportGradesRetakePolicies(t *testing.T) {
	seed := func() *fakeStore {
		store := newFakeStore()
		store.students["DH52100123"] = &student.Student{
			Code: "DH52100123", FullName: "Nguyễn Văn An", CohortCode: "DH21TH01", UserID: 7,
		}
		store.attempts["DH52100123"] = []transcript.Attempt{
			{ID: 1, StudentCode: "DH52100123", CourseCode: "IT101", Term: "2",
				Score10: 9.0, Scale4: 4.0, Letter: "A", Passed: true, Final: true},
		}
		return store
	}
	sheet := "Mã sinh viên,Họ và tên,Tên lớp,Lập trình C\n" +
		"DH52100123,Nguyễn Văn An,DH21TH01,7.5\n"

	t.Run("keep-latest demotes the stored attempt", func(t *testing.T) {
		store := seed()
		svc := newTestService(store)
		res, err := svc.ImportGrades(context.Background(), "grades.csv", []byte(sheet),
			GradeOptions{RetakePolicy: "keep-latest"})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Summary.Updated)

		batch := store.applied[0]
		require.Len(t, batch.AttemptInserts, 1)
		assert.True(t, batch.AttemptInserts[0].Final)
		require.Len(t, batch.AttemptUpdates, 1)
		assert.Equal(t, int64(1), batch.AttemptUpdates[0].ID)
		assert.False(t, batch.AttemptUpdates[0].Final)
	})

	t.Run("best keeps the higher stored score", func(t *testing.T) {
		store := seed()
		svc := newTestService(store)
		_, err := svc.ImportGrades(context.Background(), "grades.csv", []byte(sheet),
			GradeOptions{RetakePolicy: "best"})
		require.NoError(t, err)

		batch := store.applied[0]
		require.Len(t, batch.AttemptInserts, 1)
		assert.False(t, batch.AttemptInserts[0].Final, "7.5 must not displace the stored 9.0")
		assert.Empty(t, batch.AttemptUpdates)
	})
}

func TestImportGradesSameTermCollision(t *testing.T) {
	seed := func() *fakeStore {
		store := newFakeStore()
		store.students["DH52100123"] = &student.Student{
			Code: "DH52100123", FullName: "Nguyễn Văn An", CohortCode: "DH21TH01", UserID: 7,
		}
		store.attempts["DH52100123"] = []transcript.Attempt{
			{ID: 1, StudentCode: "DH52100123", CourseCode: "IT101", Term: "1",
				Score10: 5.0, Scale4: 1.0, Letter: "D", Passed: true, Final: true},
		}
		return store
	}
	sheet := "Mã sinh viên,Họ và tên,Tên lớp,Lập trình C\n" +
		"DH52100123,Nguyễn Văn An,DH21TH01,8.0\n"

	t.Run("skipped without allow_update", func(t *testing.T) {
		store := seed()
		svc := newTestService(store)
		res, err := svc.ImportGrades(context.Background(), "grades.csv", []byte(sheet), GradeOptions{})
		require.NoError(t, err)

		assert.Equal(t, 1, res.Summary.Skipped)
		require.Len(t, res.Warnings, 1)
		assert.Contains(t, res.Warnings[0], "already graded")
		batch := store.applied[0]
		assert.Empty(t, batch.AttemptInserts)
		assert.Empty(t, batch.AttemptUpdates)
	})

	t.Run("overwritten with allow_update", func(t *testing.T) {
		store := seed()
		svc := newTestService(store)
		res, err := svc.ImportGrades(context.Background(), "grades.csv", []byte(sheet),
			GradeOptions{AllowUpdate: true})
		require.NoError(t, err)

		assert.Equal(t, 1, res.Summary.Updated)
		batch := store.applied[0]
		assert.Empty(t, batch.AttemptInserts)
		require.Len(t, batch.AttemptUpdates, 1)
		upd := batch.AttemptUpdates[0]
		assert.Equal(t, int64(1), upd.ID)
		assert.Equal(t, 8.0, upd.Score10)
		assert.Equal(t, "B+", upd.Letter)
		assert.True(t, upd.Final)
	})
}

func TestImportGradesInvalidScoreWarns(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	sheet := "Mã sinh viên,Họ và tên,Tên lớp,Lập trình C\n" +
		"DH52100123,Nguyễn Văn An,DH21TH01,11\n"
	res, err := svc.ImportGrades(context.Background(), "grades.csv", []byte(sheet), GradeOptions{})
	require.NoError(t, err)

	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "invalid score")
	assert.Empty(t, store.applied[0].AttemptInserts)
}

func TestImportGradesUnmatchedColumnWarnsOnce(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	sheet := "Mã sinh viên,Họ và tên,Tên lớp,Môn không tồn tại\n" +
		"DH52100123,Nguyễn Văn An,DH21TH01,8.0\n" +
		"DH52100124,Trần Thị Bình,DH21TH01,9.0\n"
	res, err := svc.ImportGrades(context.Background(), "grades.csv", []byte(sheet), GradeOptions{Preview: true})
	require.NoError(t, err)

	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "does not match any course")
}

func TestImportGradesMissingStudentIDColumnFails(t *testing.T) {
	svc := newTestService(newFakeStore())
	_, err := svc.ImportGrades(context.Background(), "grades.csv",
		[]byte("STT,Họ và tên,Lập trình C\n1,Nguyễn Văn An,8.0\n"), GradeOptions{})
	require.Error(t, err)
}

func TestImportRoster(t *testing.T) {
	store := newFakeStore()
	born := time.Date(2003, time.September, 1, 0, 0, 0, 0, time.UTC)
	store.students["DH52100123"] = &student.Student{
		Code: "DH52100123", FullName: "Nguyễn Văn An", CohortCode: "DH21TH01", UserID: 7,
		BirthDate: &born, Birthplace: "Hà Nội",
	}
	svc := newTestService(store)

	sheet := "STT,Mã sinh viên,Họ và tên,Ngày sinh,Nơi sinh\n" +
		"1,DH52100123,Nguyễn Văn An,01/09/2003,Hà Nội\n" +
		"2,DH52100130,Phạm Thị Dung,15/02/2003,Nam Định\n" +
		"3,DH52100130,Phạm Thị Dung,15/02/2003,Nam Định\n"
	res, err := svc.ImportRoster(context.Background(), "roster.csv", []byte(sheet),
		RosterOptions{CohortCode: "DH21TH01", AllowUpdate: true})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Summary.TotalRows)
	assert.Equal(t, 1, res.Summary.Created)
	assert.Equal(t, 2, res.Summary.Skipped, "existing unchanged row and duplicate row")

	require.Len(t, store.applied, 1)
	batch := store.applied[0]
	require.Len(t, batch.StudentCreates, 1)
	created := batch.StudentCreates[0]
	assert.Equal(t, "DH52100130", created.Code)
	assert.Equal(t, "DH21TH01", created.CohortCode)
	require.NotNil(t, created.BirthDate)
	assert.Equal(t, 2003, created.BirthDate.Year())
}

func TestImportRosterUnknownCohortFails(t *testing.T) {
	svc := newTestService(newFakeStore())
	_, err := svc.ImportRoster(context.Background(), "roster.csv",
		[]byte("Mã sinh viên,Họ và tên\nDH52100123,Nguyễn Văn An\n"),
		RosterOptions{CohortCode: "DH99XX01"})
	require.Error(t, err)
}

func TestImportRosterRepeatedHeaderRowSkipped(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	sheet := "Mã sinh viên,Họ và tên\n" +
		"DH52100123,Nguyễn Văn An\n" +
		"Mã sinh viên,Họ và tên\n" +
		"DH52100124,Trần Thị Bình\n"
	res, err := svc.ImportRoster(context.Background(), "roster.csv", []byte(sheet),
		RosterOptions{CohortCode: "DH21TH01"})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Summary.Created)
	assert.Equal(t, 1, res.Summary.Skipped)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "header")
	assert.Len(t, store.applied[0].StudentCreates, 2)
}

func TestImportCurriculum(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	sheet := "Mã học phần,Tên học phần,Số tín chỉ,Học kỳ\n" +
		"IT101,Lập trình C,3,1\n" +
		"MA101,Toán cao cấp,4,2\n" +
		"IT205,Cơ sở dữ liệu,3,3\n"
	res, err := svc.ImportCurriculum(context.Background(), "curriculum.csv", []byte(sheet),
		CurriculumOptions{ProgramCode: "7480201"})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Summary.Created, "IT205 is new to the curriculum")
	assert.Equal(t, 1, res.Summary.Updated, "MA101 moves from term 1 to term 2")
	assert.Equal(t, 1, res.Summary.Skipped, "IT101 is unchanged")

	require.Len(t, store.applied, 1)
	batch := store.applied[0]
	assert.Equal(t, "7480201", batch.CurriculumReplace)
	assert.Len(t, batch.CurriculumUpserts, 3)
	require.Len(t, batch.CourseCreates, 1)
	assert.Equal(t, "IT205", batch.CourseCreates[0].Code)
}

func TestImportCurriculumUnknownProgramFails(t *testing.T) {
	svc := newTestService(newFakeStore())
	_, err := svc.ImportCurriculum(context.Background(), "curriculum.csv",
		[]byte("Mã học phần,Tên học phần\nIT101,Lập trình C\n"),
		CurriculumOptions{ProgramCode: "0000000"})
	require.Error(t, err)
}
