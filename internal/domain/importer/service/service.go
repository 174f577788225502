// Package service drives import runs end to end: column resolution, row
// parsing, grade classification, retake policy, reconciliation and the final
// atomic commit.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/trace"

	"github.com/vui-edu/records/internal/domain/audit"
	"github.com/vui-edu/records/internal/domain/importer/repository"
	"github.com/vui-edu/records/pkg/metrics"
)

// ErrUnknownReference marks runs rejected because an option names a cohort
// or program the catalog has never seen.
var ErrUnknownReference = errors.New("unknown reference")

// reconcileEpsilon is how far the file-supplied cumulative average may drift
// from the recomputed one before the run flags it. The discrepancy is
// advisory only; the file value is stored either way.
const reconcileEpsilon = 0.05

// previewLimit caps how many rows a result carries back for display. Counts
// and warnings always cover the whole file.
const previewLimit = 80

// ImportService runs grade, roster and curriculum imports.
type ImportService struct {
	store    repository.Store
	sink     audit.Sink
	logger   *slog.Logger
	metrics  *metrics.ImportMetrics
	tracer   trace.Tracer
	validate *validator.Validate
}

func NewImportService(store repository.Store, sink audit.Sink, logger *slog.Logger,
	m *metrics.ImportMetrics, tracer trace.Tracer) *ImportService {
	return &ImportService{
		store:    store,
		sink:     sink,
		logger:   logger,
		metrics:  m,
		tracer:   tracer,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// GradeOptions controls a grade-sheet run.
type GradeOptions struct {
	// Preview computes the full result without writing anything.
	Preview bool
	// AllowUpdate lets the run overwrite records that already exist;
	// without it, collisions are skipped and warned about.
	AllowUpdate bool
	// CohortCode is the fallback cohort for students the file does not
	// place in a class of its own.
	CohortCode string
	// TermLabel is assigned to attempts for courses the cohort's
	// curriculum does not schedule.
	TermLabel string
	// RetakePolicy picks the final attempt among retakes.
	RetakePolicy string `validate:"omitempty,oneof=keep-latest best"`
	// Actor is recorded in the audit trail.
	Actor string
}

// RosterOptions controls a class-roster run.
type RosterOptions struct {
	Preview     bool
	AllowUpdate bool
	CohortCode  string `validate:"required"`
	Actor       string
}

// CurriculumOptions controls a curriculum run.
type CurriculumOptions struct {
	Preview     bool
	ProgramCode string `validate:"required"`
	Actor       string
}

// Summary is the count block of a run result.
type Summary struct {
	TotalRows int `json:"total_rows"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
	Warnings  int `json:"warnings"`
}

// PreviewRow is one sample line of what the run would write.
type PreviewRow struct {
	StudentCode string   `json:"student_code"`
	FullName    string   `json:"full_name"`
	SummaryAvg  *float64 `json:"summary_avg,omitempty"`
	DebtCourses *int     `json:"debt_courses,omitempty"`
	DebtCredits *int     `json:"debt_credits,omitempty"`
	CourseCode  string   `json:"course_code,omitempty"`
	CourseName  string   `json:"course_name,omitempty"`
	TermNo      int      `json:"term_no,omitempty"`
}

// Result is what a run reports back, identical in shape for preview and
// commit so callers can diff the two.
type Result struct {
	RunID     string       `json:"run_id"`
	Summary   Summary      `json:"summary"`
	Preview   []PreviewRow `json:"preview"`
	Warnings  []string     `json:"warnings"`
	File      string       `json:"file"`
	Previewed bool         `json:"previewed"`
}

func (s *ImportService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func auditEntry(endpoint, filename, actor string, res *Result, params map[string]string) audit.Entry {
	params["run_id"] = res.RunID
	return audit.Entry{
		Actor:         actor,
		Endpoint:      endpoint,
		Params:        params,
		Filename:      filename,
		Summary:       res.Summary,
		AffectedTable: tableFor(endpoint),
	}
}

func tableFor(endpoint string) string {
	switch endpoint {
	case "import/grades":
		return "grade_attempts"
	case "import/class-roster":
		return "students"
	case "import/curriculum":
		return "curriculum"
	}
	return ""
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
	r.Summary.Warnings = len(r.Warnings)
}

func (r *Result) sample(row PreviewRow) {
	if len(r.Preview) < previewLimit {
		r.Preview = append(r.Preview, row)
	}
}
