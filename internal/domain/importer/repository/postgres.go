package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
	"golang.org/x/crypto/bcrypt"

	"github.com/vui-edu/records/internal/domain/catalog"
	"github.com/vui-edu/records/internal/domain/student"
	"github.com/vui-edu/records/internal/domain/transcript"
)

const (
	commitAttempts = 3
	commitBackoff  = 250 * time.Millisecond
)

// Pool is the slice of pgxpool.Pool the store uses; pgxmock satisfies it in
// tests.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// PostgresStore implements Store against the records database.
type PostgresStore struct {
	pool        Pool
	logger      *slog.Logger
	emailDomain string
}

func NewPostgresStore(pool Pool, logger *slog.Logger, emailDomain string) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger, emailDomain: emailDomain}
}

func (s *PostgresStore) ListCourses(ctx context.Context) ([]catalog.Course, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT code, name, credits, knowledge_block, counts_toward_gpa
		FROM courses ORDER BY code`)
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

func (s *PostgresStore) GetCourse(ctx context.Context, code string) (*catalog.Course, error) {
	var c catalog.Course
	err := s.pool.QueryRow(ctx, `
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

func (s *PostgresStore) GetCohort(ctx context.Context, code string) (*catalog.Cohort, error) {
	var c catalog.Cohort
	err := s.pool.QueryRow(ctx, `
		SELECT code, name, intake_year, program_code
		FROM cohorts WHERE code = $1`, code).
		Scan(&c.Code, &c.Name, &c.IntakeYear, &c.ProgramCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting cohort %s: %w", code, err)
	}
	return &c, nil
}

func (s *PostgresStore) GetProgram(ctx context.Context, code string) (*catalog.Program, error) {
	var p catalog.Program
	err := s.pool.QueryRow(ctx, `
		SELECT code, name, total_credits, faculty_code
		FROM programs WHERE code = $1`, code).
		Scan(&p.Code, &p.Name, &p.TotalCredits, &p.FacultyCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting program %s: %w", code, err)
	}
	return &p, nil
}

func (s *PostgresStore) CurriculumTerms(ctx context.Context, programCode string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT course_code, MIN(term_no)
		FROM curriculum WHERE program_code = $1
		GROUP BY course_code`, programCode)
	if err != nil {
		return nil, fmt.Errorf("loading curriculum terms for %s: %w", programCode, err)
	}
	defer rows.Close()

	terms := make(map[string]int)
	for rows.Next() {
		var code string
		var term int
		if err := rows.Scan(&code, &term); err != nil {
			return nil, fmt.Errorf("scanning curriculum term: %w", err)
		}
		terms[code] = term
	}
	return terms, rows.Err()
}

func (s *PostgresStore) CurriculumEntries(ctx context.Context, programCode string) (map[string]catalog.CurriculumEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT program_code, course_code, term_no, required
		FROM curriculum WHERE program_code = $1`, programCode)
	if err != nil {
		return nil, fmt.Errorf("loading curriculum for %s: %w", programCode, err)
	}
	defer rows.Close()

	entries := make(map[string]catalog.CurriculumEntry)
	for rows.Next() {
		var e catalog.CurriculumEntry
		if err := rows.Scan(&e.ProgramCode, &e.CourseCode, &e.TermNo, &e.Required); err != nil {
			return nil, fmt.Errorf("scanning curriculum entry: %w", err)
		}
		entries[e.CourseCode] = e
	}
	return entries, rows.Err()
}

func (s *PostgresStore) GetStudent(ctx context.Context, code string) (*student.Student, error) {
	var st student.Student
	err := s.pool.QueryRow(ctx, `
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

func (s *PostgresStore) ListStudentAttempts(ctx context.Context, studentCode string) ([]transcript.Attempt, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, student_code, course_code, term, score10, scale4, letter, passed, final
		FROM grade_attempts
		WHERE student_code = $1
		ORDER BY course_code, id`, studentCode)
	if err != nil {
		return nil, fmt.Errorf("listing attempts for %s: %w", studentCode, err)
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

// ApplyBatch writes the whole batch inside one transaction. Lock contention
// is retried up to commitAttempts times with doubling backoff starting at
// commitBackoff; any other failure surfaces immediately.
func (s *PostgresStore) ApplyBatch(ctx context.Context, batch *Batch) error {
	if batch.Empty() {
		return nil
	}

	// Password hashes are deterministic inputs to the transaction; compute
	// them once so retries do not repeat the bcrypt work.
	hashes := make([][]byte, len(batch.StudentCreates))
	for i, st := range batch.StudentCreates {
		h, err := bcrypt.GenerateFromPassword([]byte(st.Code), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hashing password for %s: %w", st.Code, err)
		}
		hashes[i] = h
	}

	backoff := retry.WithMaxRetries(commitAttempts-1, retry.NewExponential(commitBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.applyOnce(ctx, batch, hashes)
		if err != nil && IsLockBusy(err) {
			s.logger.Warn("import commit hit lock contention, retrying", "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *PostgresStore) applyOnce(ctx context.Context, batch *Batch, hashes [][]byte) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning import transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, st := range batch.StudentCreates {
		email := fmt.Sprintf("%s@%s", st.Code, s.emailDomain)
		var userID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO users (email, password_hash, role)
			VALUES ($1, $2, 'student')
			ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
			RETURNING id`, email, string(hashes[i])).Scan(&userID)
		if err != nil {
			return fmt.Errorf("provisioning user for %s: %w", st.Code, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO students (code, full_name, birth_date, birthplace, cohort_code,
			                      status, user_id, summary_avg, debt_courses, debt_credits)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			st.Code, st.FullName, st.BirthDate, st.Birthplace, nullIfEmpty(st.CohortCode),
			st.Status, userID, st.SummaryAvg, st.DebtCourses, st.DebtCredits)
		if err != nil {
			return fmt.Errorf("creating student %s: %w", st.Code, err)
		}
	}

	for _, u := range batch.StudentUpdates {
		_, err := tx.Exec(ctx, `
			UPDATE students SET
				full_name    = COALESCE($2, full_name),
				birth_date   = COALESCE($3, birth_date),
				birthplace   = COALESCE($4, birthplace),
				cohort_code  = COALESCE($5, cohort_code),
				summary_avg  = COALESCE($6, summary_avg),
				debt_courses = COALESCE($7, debt_courses),
				debt_credits = COALESCE($8, debt_credits)
			WHERE code = $1`,
			u.Code, u.FullName, u.BirthDate, u.Birthplace, u.CohortCode,
			u.SummaryAvg, u.DebtCourses, u.DebtCredits)
		if err != nil {
			return fmt.Errorf("updating student %s: %w", u.Code, err)
		}
	}

	for _, a := range batch.AttemptInserts {
		_, err := tx.Exec(ctx, `
			INSERT INTO grade_attempts (student_code, course_code, term, score10,
			                            scale4, letter, passed, final)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			a.StudentCode, a.CourseCode, a.Term, a.Score10, a.Scale4, a.Letter, a.Passed, a.Final)
		if err != nil {
			return fmt.Errorf("inserting attempt %s/%s: %w", a.StudentCode, a.CourseCode, err)
		}
	}

	for _, a := range batch.AttemptUpdates {
		_, err := tx.Exec(ctx, `
			UPDATE grade_attempts SET
				term = $2, score10 = $3, scale4 = $4, letter = $5, passed = $6, final = $7
			WHERE id = $1`,
			a.ID, a.Term, a.Score10, a.Scale4, a.Letter, a.Passed, a.Final)
		if err != nil {
			return fmt.Errorf("updating attempt %d: %w", a.ID, err)
		}
	}

	for _, c := range batch.CourseCreates {
		_, err := tx.Exec(ctx, `
			INSERT INTO courses (code, name, credits, knowledge_block, counts_toward_gpa)
			VALUES ($1, $2, $3, $4, $5)`,
			c.Code, c.Name, c.Credits, c.KnowledgeBlock, c.CountsTowardGPA)
		if err != nil {
			return fmt.Errorf("creating course %s: %w", c.Code, err)
		}
	}

	for _, c := range batch.CourseUpdates {
		_, err := tx.Exec(ctx, `
			UPDATE courses SET name = $2, credits = $3, knowledge_block = $4, counts_toward_gpa = $5
			WHERE code = $1`,
			c.Code, c.Name, c.Credits, c.KnowledgeBlock, c.CountsTowardGPA)
		if err != nil {
			return fmt.Errorf("updating course %s: %w", c.Code, err)
		}
	}

	if batch.CurriculumReplace != "" {
		if _, err := tx.Exec(ctx, `DELETE FROM curriculum WHERE program_code = $1`, batch.CurriculumReplace); err != nil {
			return fmt.Errorf("clearing curriculum for %s: %w", batch.CurriculumReplace, err)
		}
	}

	for _, e := range batch.CurriculumUpserts {
		_, err := tx.Exec(ctx, `
			INSERT INTO curriculum (program_code, course_code, term_no, required)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (program_code, course_code, term_no)
			DO UPDATE SET required = EXCLUDED.required`,
			e.ProgramCode, e.CourseCode, e.TermNo, e.Required)
		if err != nil {
			return fmt.Errorf("upserting curriculum %s/%s: %w", e.ProgramCode, e.CourseCode, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing import transaction: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// IsLockBusy reports whether the error is worth retrying: lock timeouts,
// deadlocks and serialization failures. Callers that exhaust the retry
// budget translate it into a 503.
func IsLockBusy(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "55P03", "40P01", "40001":
		return true
	}
	return false
}
