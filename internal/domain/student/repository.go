package student

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vui-edu/records/internal/domain/transcript"
)

// Querier is the read surface the repository needs; pgxmock satisfies it in
// tests.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository reads students and their transcripts.
type PostgresRepository struct {
	pool Querier
}

func NewPostgresRepository(pool Querier) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) GetByCode(ctx context.Context, code string) (*Student, error) {
	var st Student
	err := r.pool.QueryRow(ctx, `
		SELECT code, full_name, birth_date, birthplace, cohort_code, status,
		       user_id, summary_avg, debt_courses, debt_credits
		FROM students WHERE code = $1`, code).
		Scan(&st.Code, &st.FullName, &st.BirthDate, &st.Birthplace, &st.CohortCode,
			&st.Status, &st.UserID, &st.SummaryAvg, &st.DebtCourses, &st.DebtCredits)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting student %s: %w", code, err)
	}
	return &st, nil
}

func (r *PostgresRepository) ListByCohort(ctx context.Context, cohortCode string) ([]Student, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT code, full_name, birth_date, birthplace, cohort_code, status,
		       user_id, summary_avg, debt_courses, debt_credits
		FROM students WHERE cohort_code = $1
		ORDER BY code`, cohortCode)
	if err != nil {
		return nil, fmt.Errorf("listing students in %s: %w", cohortCode, err)
	}
	defer rows.Close()

	var out []Student
	for rows.Next() {
		var st Student
		if err := rows.Scan(&st.Code, &st.FullName, &st.BirthDate, &st.Birthplace, &st.CohortCode,
			&st.Status, &st.UserID, &st.SummaryAvg, &st.DebtCourses, &st.DebtCredits); err != nil {
			return nil, fmt.Errorf("scanning student: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Transcript(ctx context.Context, code string) ([]transcript.Attempt, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, student_code, course_code, term, score10, scale4, letter, passed, final
		FROM grade_attempts
		WHERE student_code = $1
		ORDER BY course_code, id`, code)
	if err != nil {
		return nil, fmt.Errorf("loading transcript for %s: %w", code, err)
	}
	defer rows.Close()

	var out []transcript.Attempt
	for rows.Next() {
		var a transcript.Attempt
		if err := rows.Scan(&a.ID, &a.StudentCode, &a.CourseCode, &a.Term,
			&a.Score10, &a.Scale4, &a.Letter, &a.Passed, &a.Final); err != nil {
			return nil, fmt.Errorf("scanning attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
