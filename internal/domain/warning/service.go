package warning

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/vui-edu/records/internal/domain/catalog"
	"github.com/vui-edu/records/internal/domain/transcript"
)

// Store is the persistence the scanner needs. SyncCases replaces the full
// case set for a student in one statement batch, which is what keeps the
// scan idempotent.
type Store interface {
	ListCourses(ctx context.Context) ([]catalog.Course, error)
	// ListFinalAttempts returns every attempt currently flagged final,
	// across all students.
	ListFinalAttempts(ctx context.Context) ([]transcript.Attempt, error)
	SyncCases(ctx context.Context, studentCode string, cases []Case) (opened, resolved int, err error)
	ListCases(ctx context.Context, severity Severity) ([]Case, error)
}

// Service runs the academic-risk scan.
type Service struct {
	store      Store
	logger     *slog.Logger
	thresholds Thresholds
}

func NewService(store Store, logger *slog.Logger, thresholds Thresholds) *Service {
	return &Service{store: store, logger: logger, thresholds: thresholds}
}

// Cases lists open cases, optionally filtered by severity.
func (s *Service) Cases(ctx context.Context, severity Severity) ([]Case, error) {
	return s.store.ListCases(ctx, severity)
}

// Scan recomputes every student's risk standing from their final attempts.
// Running it twice in a row changes nothing the second time.
func (s *Service) Scan(ctx context.Context) (*Report, error) {
	courses, err := s.store.ListCourses(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading courses for warning scan: %w", err)
	}
	byCode := make(map[string]catalog.Course, len(courses))
	for _, c := range courses {
		byCode[c.Code] = c
	}

	finals, err := s.store.ListFinalAttempts(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading final attempts: %w", err)
	}
	byStudent := make(map[string][]transcript.Attempt)
	for _, a := range finals {
		byStudent[a.StudentCode] = append(byStudent[a.StudentCode], a)
	}

	report := &Report{}
	for code, attempts := range byStudent {
		report.Students++
		cases := s.evaluate(code, attempts, byCode)
		opened, resolved, err := s.store.SyncCases(ctx, code, cases)
		if err != nil {
			return nil, fmt.Errorf("syncing cases for %s: %w", code, err)
		}
		report.Opened += opened
		report.Resolved += resolved
	}

	s.logger.Info("warning scan finished",
		"students", report.Students, "opened", report.Opened, "resolved", report.Resolved)
	return report, nil
}

// evaluate derives the case set one student should currently have.
func (s *Service) evaluate(code string, attempts []transcript.Attempt, courses map[string]catalog.Course) []Case {
	num := decimal.Zero
	den := decimal.Zero
	debtCredits := 0
	for _, a := range attempts {
		course, ok := courses[a.CourseCode]
		if !ok || course.Credits <= 0 {
			continue
		}
		if !a.Passed {
			debtCredits += course.Credits
		}
		if course.CountsTowardGPA {
			w := decimal.NewFromInt(int64(course.Credits))
			num = num.Add(decimal.NewFromFloat(a.Scale4).Mul(w))
			den = den.Add(w)
		}
	}

	var cases []Case
	if !den.IsZero() {
		gpa, _ := num.Div(den).Round(2).Float64()
		if gpa < s.thresholds.MinGPA4 {
			cases = append(cases, Case{
				StudentCode: code,
				RuleCode:    RuleLowGPA,
				Severity:    SeverityCritical,
				Value:       gpa,
				Detail:      fmt.Sprintf("cumulative GPA %.2f is below %.2f", gpa, s.thresholds.MinGPA4),
			})
		}
	}
	if debtCredits >= s.thresholds.MaxDebtCredits {
		cases = append(cases, Case{
			StudentCode: code,
			RuleCode:    RuleDebtCredits,
			Severity:    SeverityWarning,
			Value:       float64(debtCredits),
			Detail:      fmt.Sprintf("%d failed credits, limit is %d", debtCredits, s.thresholds.MaxDebtCredits),
		})
	}
	return cases
}
