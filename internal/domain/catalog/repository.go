package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Querier is the read surface the repository needs; both pgxpool.Pool and
// pgxmock satisfy it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository reads the catalog tables.
type PostgresRepository struct {
	pool Querier
}

func NewPostgresRepository(pool Querier) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) ListCourses(ctx context.Context) ([]Course, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT code, name, credits, knowledge_block, counts_toward_gpa
		FROM courses ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("listing courses: %w", err)
	}
	defer rows.Close()

	var out []Course
	for rows.Next() {
		var c Course
		if err := rows.Scan(&c.Code, &c.Name, &c.Credits, &c.KnowledgeBlock, &c.CountsTowardGPA); err != nil {
			return nil, fmt.Errorf("scanning course: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) GetCourse(ctx context.Context, code string) (*Course, error) {
	var c Course
	err := r.pool.QueryRow(ctx, `
		SELECT code, name, credits, knowledge_block, counts_toward_gpa
		FROM courses WHERE code = $1`, code).
		Scan(&c.Code, &c.Name, &c.Credits, &c.KnowledgeBlock, &c.CountsTowardGPA)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting course %s: %w", code, err)
	}
	return &c, nil
}

func (r *PostgresRepository) ListPrograms(ctx context.Context) ([]Program, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT code, name, total_credits, faculty_code
		FROM programs ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("listing programs: %w", err)
	}
	defer rows.Close()

	var out []Program
	for rows.Next() {
		var p Program
		if err := rows.Scan(&p.Code, &p.Name, &p.TotalCredits, &p.FacultyCode); err != nil {
			return nil, fmt.Errorf("scanning program: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListCohorts(ctx context.Context) ([]Cohort, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT code, name, intake_year, program_code
		FROM cohorts ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("listing cohorts: %w", err)
	}
	defer rows.Close()

	var out []Cohort
	for rows.Next() {
		var c Cohort
		if err := rows.Scan(&c.Code, &c.Name, &c.IntakeYear, &c.ProgramCode); err != nil {
			return nil, fmt.Errorf("scanning cohort: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListCurriculum(ctx context.Context, programCode string) ([]CurriculumEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT program_code, course_code, term_no, required
		FROM curriculum WHERE program_code = $1
		ORDER BY term_no, course_code`, programCode)
	if err != nil {
		return nil, fmt.Errorf("listing curriculum for %s: %w", programCode, err)
	}
	defer rows.Close()

	var out []CurriculumEntry
	for rows.Next() {
		var e CurriculumEntry
		if err := rows.Scan(&e.ProgramCode, &e.CourseCode, &e.TermNo, &e.Required); err != nil {
			return nil, fmt.Errorf("scanning curriculum entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
