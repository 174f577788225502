// Command seed fills a development database with a plausible faculty: a
// program, two cohorts, a course catalog and a few hundred students with
// graded attempts.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/vui-edu/records/internal/domain/importer/grading"
	"github.com/vui-edu/records/pkg/config"
	"github.com/vui-edu/records/pkg/db"
)

var courseCatalog = []struct {
	code    string
	name    string
	credits int
	gpa     bool
}{
	{"IT101", "Lập trình C", 3, true},
	{"IT102", "Nhập môn công nghệ thông tin", 2, true},
	{"IT205", "Cơ sở dữ liệu", 3, true},
	{"IT206", "Cấu trúc dữ liệu và giải thuật", 4, true},
	{"IT301", "Lập trình hướng đối tượng", 3, true},
	{"MA101", "Toán cao cấp", 4, true},
	{"MA102", "Xác suất thống kê", 3, true},
	{"PH101", "Vật lý đại cương", 3, true},
	{"EN101", "Tiếng Anh 1", 3, true},
	{"PE101", "Giáo dục thể chất", 2, false},
}

var familyNames = []string{"Nguyễn", "Trần", "Lê", "Phạm", "Hoàng", "Vũ", "Đặng", "Bùi", "Đỗ", "Hồ"}
var middleNames = []string{"Văn", "Thị", "Đức", "Minh", "Ngọc", "Thanh", "Quang", "Hữu"}
var givenNames = []string{"An", "Bình", "Cường", "Dung", "Em", "Giang", "Hà", "Khoa", "Linh", "Minh", "Nam", "Oanh", "Phúc", "Quân", "Sơn", "Trang", "Uyên", "Việt"}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(logger); err != nil {
		logger.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := db.RunMigrations(cfg.Database.DSN(), logger); err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer pool.Close()

	gofakeit.Seed(42)

	if err := seedCatalog(ctx, pool); err != nil {
		return err
	}
	count, err := seedStudents(ctx, pool, cfg.Import.StudentEmailDomain)
	if err != nil {
		return err
	}
	logger.Info("seeded", "students", count, "courses", len(courseCatalog))
	return nil
}

func seedCatalog(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO programs (code, name, total_credits, faculty_code)
		VALUES ('7480201', 'Công nghệ thông tin', 120, 'CNTT')
		ON CONFLICT (code) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("seeding program: %w", err)
	}

	for _, cohort := range []struct {
		code string
		name string
		year int
	}{
		{"DH21TH01", "Tin học K21-01", 2021},
		{"DH22TH01", "Tin học K22-01", 2022},
	} {
		_, err := pool.Exec(ctx, `
			INSERT INTO cohorts (code, name, intake_year, program_code)
			VALUES ($1, $2, $3, '7480201')
			ON CONFLICT (code) DO NOTHING`, cohort.code, cohort.name, cohort.year)
		if err != nil {
			return fmt.Errorf("seeding cohort %s: %w", cohort.code, err)
		}
	}

	for i, c := range courseCatalog {
		_, err := pool.Exec(ctx, `
			INSERT INTO courses (code, name, credits, counts_toward_gpa)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (code) DO NOTHING`, c.code, c.name, c.credits, c.gpa)
		if err != nil {
			return fmt.Errorf("seeding course %s: %w", c.code, err)
		}
		_, err = pool.Exec(ctx, `
			INSERT INTO curriculum (program_code, course_code, term_no, required)
			VALUES ('7480201', $1, $2, TRUE)
			ON CONFLICT DO NOTHING`, c.code, i/3+1)
		if err != nil {
			return fmt.Errorf("seeding curriculum %s: %w", c.code, err)
		}
	}
	return nil
}

func seedStudents(ctx context.Context, pool *pgxpool.Pool, emailDomain string) (int, error) {
	count := 0
	for _, cohort := range []string{"DH21TH01", "DH22TH01"} {
		for i := 0; i < 40; i++ {
			code := fmt.Sprintf("DH%s%04d", cohort[2:4], gofakeit.Number(1000, 9999)*10+i%10)
			name := fmt.Sprintf("%s %s %s",
				gofakeit.RandomString(familyNames),
				gofakeit.RandomString(middleNames),
				gofakeit.RandomString(givenNames))
			birth := gofakeit.DateRange(
				time.Date(2002, 1, 1, 0, 0, 0, 0, time.UTC),
				time.Date(2004, 12, 31, 0, 0, 0, 0, time.UTC))

			hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
			if err != nil {
				return count, err
			}
			var userID int64
			err = pool.QueryRow(ctx, `
				INSERT INTO users (email, password_hash, role)
				VALUES ($1, $2, 'student')
				ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
				RETURNING id`, fmt.Sprintf("%s@%s", code, emailDomain), string(hash)).Scan(&userID)
			if err != nil {
				return count, fmt.Errorf("seeding user for %s: %w", code, err)
			}

			_, err = pool.Exec(ctx, `
				INSERT INTO students (code, full_name, birth_date, birthplace, cohort_code, status, user_id)
				VALUES ($1, $2, $3, $4, $5, 'Đang học', $6)
				ON CONFLICT (code) DO NOTHING`,
				code, name, birth, gofakeit.City(), cohort, userID)
			if err != nil {
				return count, fmt.Errorf("seeding student %s: %w", code, err)
			}

			if err := seedAttempts(ctx, pool, code); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

func seedAttempts(ctx context.Context, pool *pgxpool.Pool, studentCode string) error {
	for i, c := range courseCatalog {
		if gofakeit.Number(0, 9) < 3 {
			continue // not every student has taken every course
		}
		score := float64(gofakeit.Number(20, 100)) / 10.0
		g := grading.Classify(score)
		_, err := pool.Exec(ctx, `
			INSERT INTO grade_attempts (student_code, course_code, term, score10, scale4, letter, passed, final)
			VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)`,
			studentCode, c.code, fmt.Sprintf("%d", i/3+1), score, g.Scale4, g.Letter, g.Passed)
		if err != nil {
			return fmt.Errorf("seeding attempt %s/%s: %w", studentCode, c.code, err)
		}
	}
	return nil
}
