package warning

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vui-edu/records/internal/domain/catalog"
	"github.com/vui-edu/records/internal/domain/transcript"
)

// Pool is the pgxpool surface the repository needs; pgxmock satisfies it in
// tests.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// PostgresStore persists warning cases in the warning_cases table.
type PostgresStore struct {
	pool Pool
}

func NewPostgresStore(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) ListCourses(ctx context.Context) ([]catalog.Course, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT code, name, credits, knowledge_block, counts_toward_gpa
		FROM courses`)
	if err != nil {
		return nil, fmt.Errorf("listing courses: %w", err)
	}
	defer rows.Close()

	var out []catalog.Course
	for rows.Next() {
		var c catalog.Course
		if err := rows.Scan(&c.Code, &c.Name, &c.Credits, &c.KnowledgeBlock, &c.CountsTowardGPA); err != nil {
			return nil, fmt.Errorf("scanning course: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListFinalAttempts(ctx context.Context) ([]transcript.Attempt, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, student_code, course_code, term, score10, scale4, letter, passed, final
		FROM grade_attempts WHERE final`)
	if err != nil {
		return nil, fmt.Errorf("listing final attempts: %w", err)
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

// SyncCases upserts the cases the student should have and closes the rest,
// all in one transaction.
func (s *PostgresStore) SyncCases(ctx context.Context, studentCode string, cases []Case) (int, int, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, 0, fmt.Errorf("beginning case sync: %w", err)
	}
	defer tx.Rollback(ctx)

	opened := 0
	keep := make([]string, 0, len(cases))
	for _, c := range cases {
		keep = append(keep, c.RuleCode)
		tag, err := tx.Exec(ctx, `
			INSERT INTO warning_cases (student_code, rule_code, severity, value, detail, updated_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (student_code, rule_code)
			DO UPDATE SET severity = EXCLUDED.severity, value = EXCLUDED.value,
			              detail = EXCLUDED.detail, updated_at = now()
			WHERE warning_cases.value IS DISTINCT FROM EXCLUDED.value`,
			c.StudentCode, c.RuleCode, c.Severity, c.Value, c.Detail)
		if err != nil {
			return 0, 0, fmt.Errorf("upserting case %s/%s: %w", c.StudentCode, c.RuleCode, err)
		}
		if tag.RowsAffected() > 0 {
			opened++
		}
	}

	tag, err := tx.Exec(ctx, `
		DELETE FROM warning_cases
		WHERE student_code = $1 AND NOT (rule_code = ANY($2))`,
		studentCode, keep)
	if err != nil {
		return 0, 0, fmt.Errorf("closing resolved cases for %s: %w", studentCode, err)
	}
	resolved := int(tag.RowsAffected())

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("committing case sync: %w", err)
	}
	return opened, resolved, nil
}

func (s *PostgresStore) ListCases(ctx context.Context, severity Severity) ([]Case, error) {
	query := `
		SELECT id, student_code, rule_code, severity, value, detail, updated_at
		FROM warning_cases`
	args := []any{}
	if severity != "" {
		query += ` WHERE severity = $1`
		args = append(args, severity)
	}
	query += ` ORDER BY severity DESC, student_code`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing warning cases: %w", err)
	}
	defer rows.Close()

	var out []Case
	for rows.Next() {
		var c Case
		if err := rows.Scan(&c.ID, &c.StudentCode, &c.RuleCode, &c.Severity,
			&c.Value, &c.Detail, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning warning case: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
