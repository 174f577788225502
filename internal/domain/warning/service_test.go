package warning

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vui-edu/records/internal/domain/catalog"
	"github.com/vui-edu/records/internal/domain/transcript"
)

type memStore struct {
	courses []catalog.Course
	finals  []transcript.Attempt
	cases   map[string][]Case
}

func (m *memStore) ListCourses(context.Context) ([]catalog.Course, error) { return m.courses, nil }

func (m *memStore) ListFinalAttempts(context.Context) ([]transcript.Attempt, error) {
	return m.finals, nil
}

func (m *memStore) SyncCases(_ context.Context, studentCode string, cases []Case) (int, int, error) {
	if m.cases == nil {
		m.cases = make(map[string][]Case)
	}
	prev := m.cases[studentCode]
	opened := 0
	for _, c := range cases {
		fresh := true
		for _, p := range prev {
			if p.RuleCode == c.RuleCode && p.Value == c.Value {
				fresh = false
			}
		}
		if fresh {
			opened++
		}
	}
	resolved := 0
	for _, p := range prev {
		gone := true
		for _, c := range cases {
			if c.RuleCode == p.RuleCode {
				gone = false
			}
		}
		if gone {
			resolved++
		}
	}
	m.cases[studentCode] = cases
	return opened, resolved, nil
}

func (m *memStore) ListCases(_ context.Context, severity Severity) ([]Case, error) {
	var out []Case
	for _, cs := range m.cases {
		for _, c := range cs {
			if severity == "" || c.Severity == severity {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func attempt(student, course string, scale4 float64, passed bool) transcript.Attempt {
	return transcript.Attempt{StudentCode: student, CourseCode: course,
		Scale4: scale4, Passed: passed, Final: true}
}

func TestScanFlagsLowGPAAndDebt(t *testing.T) {
	store := &memStore{
		courses: []catalog.Course{
			{Code: "IT101", Credits: 3, CountsTowardGPA: true},
			{Code: "MA101", Credits: 4, CountsTowardGPA: true},
			{Code: "IT205", Credits: 6, CountsTowardGPA: true},
			{Code: "PE101", Credits: 2, CountsTowardGPA: false},
		},
		finals: []transcript.Attempt{
			// 4.0*3 + 0.0*4 over 7 credits is 1.71, and 4+6 failed credits.
			attempt("DH52100123", "IT101", 4.0, true),
			attempt("DH52100123", "MA101", 0.0, false),
			attempt("DH52100123", "IT205", 0.0, false),
			// healthy record
			attempt("DH52100124", "IT101", 3.0, true),
			attempt("DH52100124", "MA101", 4.0, true),
		},
	}
	svc := NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)), DefaultThresholds())

	report, err := svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Students)

	cases := store.cases["DH52100123"]
	require.Len(t, cases, 2)
	byRule := map[string]Case{}
	for _, c := range cases {
		byRule[c.RuleCode] = c
	}
	low := byRule[RuleLowGPA]
	assert.Equal(t, SeverityCritical, low.Severity)
	assert.Less(t, low.Value, 2.0)
	debt := byRule[RuleDebtCredits]
	assert.Equal(t, SeverityWarning, debt.Severity)
	assert.Equal(t, 10.0, debt.Value)

	assert.Empty(t, store.cases["DH52100124"])
}

func TestScanIsIdempotent(t *testing.T) {
	store := &memStore{
		courses: []catalog.Course{{Code: "IT101", Credits: 3, CountsTowardGPA: true}},
		finals:  []transcript.Attempt{attempt("DH52100123", "IT101", 0.0, false)},
	}
	svc := NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)), DefaultThresholds())

	first, err := svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Opened)

	second, err := svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.Opened)
	assert.Zero(t, second.Resolved)
}

func TestScanResolvesRecoveredStudents(t *testing.T) {
	store := &memStore{
		courses: []catalog.Course{{Code: "IT101", Credits: 3, CountsTowardGPA: true}},
		finals:  []transcript.Attempt{attempt("DH52100123", "IT101", 0.0, false)},
	}
	svc := NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)), DefaultThresholds())

	_, err := svc.Scan(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, store.cases["DH52100123"])

	// The retake fixed the grade; the next scan should close the case.
	store.finals[0] = attempt("DH52100123", "IT101", 3.0, true)
	report, err := svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Resolved)
	assert.Empty(t, store.cases["DH52100123"])
}
