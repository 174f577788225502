// Package warning flags students whose record has drifted into academic
// risk: a low 4-point cumulative average or too many failed credits.
package warning

import "time"

// Severity orders cases for triage.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rule codes are stable identifiers; cases are keyed on (student, rule) so a
// rescan updates rather than duplicates.
const (
	RuleLowGPA      = "low-gpa"
	RuleDebtCredits = "debt-credits"
)

// Case is one triggered rule for one student.
type Case struct {
	ID          int64     `json:"id"`
	StudentCode string    `json:"student_code"`
	RuleCode    string    `json:"rule_code"`
	Severity    Severity  `json:"severity"`
	Value       float64   `json:"value"`
	Detail      string    `json:"detail"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Thresholds are configurable per deployment; the zero value is never valid,
// use DefaultThresholds.
type Thresholds struct {
	// MinGPA4 is the 4-point cumulative average below which a student is
	// critically at risk.
	MinGPA4 float64
	// MaxDebtCredits is the failed-credit total at which a warning opens.
	MaxDebtCredits int
}

func DefaultThresholds() Thresholds {
	return Thresholds{MinGPA4: 2.0, MaxDebtCredits: 10}
}

// Report summarizes one scan.
type Report struct {
	Students int `json:"students"`
	Opened   int `json:"opened"`
	Resolved int `json:"resolved"`
}
