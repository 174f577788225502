package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vui-edu/records/internal/domain/catalog"
	"github.com/vui-edu/records/internal/domain/importer/grading"
	"github.com/vui-edu/records/internal/domain/importer/matcher"
	"github.com/vui-edu/records/internal/domain/importer/normalizer"
	"github.com/vui-edu/records/internal/domain/importer/parser"
	"github.com/vui-edu/records/internal/domain/importer/repository"
	"github.com/vui-edu/records/internal/domain/importer/resolver"
	"github.com/vui-edu/records/internal/domain/student"
	"github.com/vui-edu/records/internal/domain/transcript"
)

type matchedColumn struct {
	col    int
	course catalog.Course
}

// gradeRun holds the working state of one grade-sheet import: the resolved
// columns, caches of catalog lookups, and the overlay of rows already
// proposed in this run so later rows see them.
type gradeRun struct {
	svc   *ImportService
	opts  GradeOptions
	res   *Result
	batch *repository.Batch

	cm      *resolver.ColumnMap
	matched []matchedColumn

	courseByCode   map[string]catalog.Course
	cohorts        map[string]*catalog.Cohort
	termsByProgram map[string]map[string]int

	pendingStudents map[string]*student.Student
	pendingAttempts []*transcript.Attempt
	attemptUpdates  map[int64]*transcript.Attempt
}

// ImportGrades runs one grade-sheet file through the full pipeline. A preview
// run returns the identical result without issuing a single write.
func (s *ImportService) ImportGrades(ctx context.Context, filename string, data []byte, opts GradeOptions) (*Result, error) {
	ctx, span := s.startSpan(ctx, "import.grades")
	defer span.End()
	start := time.Now()

	if err := s.validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid import options: %w", err)
	}
	policy := grading.ParsePolicy(opts.RetakePolicy)

	sheet, err := parser.ReadSheet(filename, data)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	cm := resolver.Resolve(sheet.Headers)
	if err := cm.RequireStudentID(); err != nil {
		return nil, err
	}

	var runCohort *catalog.Cohort
	if opts.CohortCode != "" {
		runCohort, err = s.store.GetCohort(ctx, opts.CohortCode)
		if err != nil {
			return nil, err
		}
		if runCohort == nil {
			return nil, fmt.Errorf("%w: cohort %q", ErrUnknownReference, opts.CohortCode)
		}
	}

	courses, err := s.store.ListCourses(ctx)
	if err != nil {
		return nil, err
	}

	run := &gradeRun{
		svc:             s,
		opts:            opts,
		res:             &Result{RunID: uuid.NewString(), File: filename, Previewed: opts.Preview, Warnings: []string{}},
		batch:           &repository.Batch{},
		cm:              cm,
		courseByCode:    make(map[string]catalog.Course, len(courses)),
		cohorts:         make(map[string]*catalog.Cohort),
		termsByProgram:  make(map[string]map[string]int),
		pendingStudents: make(map[string]*student.Student),
		attemptUpdates:  make(map[int64]*transcript.Attempt),
	}
	for _, c := range courses {
		run.courseByCode[c.Code] = c
	}
	if runCohort != nil {
		run.cohorts[runCohort.Code] = runCohort
	}
	run.bindSubjectColumns(matcher.NewIndex(courses))

	for i, row := range sheet.Rows {
		if err := run.processRow(ctx, policy, i+2, row); err != nil {
			return nil, err
		}
	}
	run.res.Summary.TotalRows = len(sheet.Rows)

	for _, a := range run.pendingAttempts {
		run.batch.AttemptInserts = append(run.batch.AttemptInserts, *a)
	}
	for _, a := range run.attemptUpdates {
		run.batch.AttemptUpdates = append(run.batch.AttemptUpdates, *a)
	}
	for _, st := range run.pendingStudents {
		run.batch.StudentCreates = append(run.batch.StudentCreates, *st)
	}

	if !opts.Preview {
		if err := s.store.ApplyBatch(ctx, run.batch); err != nil {
			s.metrics.ObserveRun("grades", "error", time.Since(start).Seconds(), 0, 0, 0, 0)
			return nil, fmt.Errorf("committing grade import: %w", err)
		}
		s.sink.Record(ctx, auditEntry("import/grades", filename, opts.Actor, run.res, map[string]string{
			"allow_update":  strconv.FormatBool(opts.AllowUpdate),
			"cohort":        opts.CohortCode,
			"term":          opts.TermLabel,
			"retake_policy": string(policy),
		}))
	}

	sum := run.res.Summary
	s.metrics.ObserveRun("grades", "ok", time.Since(start).Seconds(), sum.Created, sum.Updated, sum.Skipped, sum.Warnings)
	s.logger.Info("grade import finished",
		"file", filename, "preview", opts.Preview,
		"rows", sum.TotalRows, "created", sum.Created, "updated", sum.Updated,
		"skipped", sum.Skipped, "warnings", sum.Warnings)
	return run.res, nil
}

// bindSubjectColumns matches every unresolved header candidate against the
// course catalog. Columns that match nothing are warned about once and then
// ignored for the rest of the run.
func (r *gradeRun) bindSubjectColumns(idx *matcher.Index) {
	for _, cand := range r.cm.Candidates {
		m, ok := idx.Match(cand.Header)
		if !ok {
			r.res.warnf("column %q does not match any course, ignored", cand.Header)
			continue
		}
		if !m.Exact {
			r.res.warnf("column %q matched course %s (%s) by fuzzy similarity %.2f, verify the mapping",
				cand.Header, m.Course.Code, m.Course.Name, m.Score)
		}
		r.matched = append(r.matched, matchedColumn{col: cand.Index, course: m.Course})
	}
}

func (r *gradeRun) processRow(ctx context.Context, policy grading.RetakePolicy, line int, row []string) error {
	code := strings.TrimSpace(r.cm.Cell(row, resolver.FieldStudentID))
	if code == "" {
		r.res.Summary.Skipped++
		r.res.warnf("row %d: missing student id, skipped", line)
		return nil
	}
	if resolver.IsHeaderEcho(resolver.FieldStudentID, code) {
		r.res.Summary.Skipped++
		r.res.warnf("row %d: repeats the header row, skipped", line)
		return nil
	}
	name := strings.TrimSpace(r.cm.Cell(row, resolver.FieldFullName))

	st, pending := r.pendingStudents[code]
	if !pending {
		var err error
		st, err = r.svc.store.GetStudent(ctx, code)
		if err != nil {
			return err
		}
	}

	cohort, err := r.resolveCohort(ctx, row)
	if err != nil {
		return err
	}

	if st == nil {
		if cohort == nil {
			r.res.Summary.Skipped++
			r.res.warnf("row %d: student %s skipped, cohort %q is not on record", line, code, r.cohortLabel(row))
			return nil
		}
		st = r.createStudent(line, code, name, cohort, row)
		r.res.Summary.Created++
	}

	programCode := ""
	if cohort != nil {
		programCode = cohort.ProgramCode
	} else if c, err := r.cohortForStudent(ctx, st); err != nil {
		return err
	} else if c != nil {
		programCode = c.ProgramCode
	}
	terms, err := r.curriculumTerms(ctx, programCode)
	if err != nil {
		return err
	}

	stored, err := r.storedAttempts(ctx, st, pending)
	if err != nil {
		return err
	}

	changed := false
	for _, mc := range r.matched {
		if r.applyGrade(policy, line, row, st, mc, terms, stored) {
			changed = true
		}
	}

	fileAvg := r.parseSummaryAvg(line, row)
	computed := r.computeAverage(stored)
	if fileAvg != nil && computed != nil {
		// Compared in decimal so a drift of exactly the epsilon never
		// tips over from float rounding.
		if fileAvg.Sub(*computed).Abs().GreaterThan(decimal.NewFromFloat(reconcileEpsilon)) {
			r.res.warnf("row %d: %s: file average %s differs from computed %s",
				line, code, fileAvg.StringFixed(2), computed.StringFixed(2))
		}
	}
	// The file's own figure wins when present; the recomputed one only
	// fills the gap.
	chosen := fileAvg
	if chosen == nil {
		chosen = computed
	}
	var summaryAvg *float64
	if chosen != nil {
		f, _ := chosen.Float64()
		summaryAvg = &f
	}
	debtCourses := r.parseCount(row, resolver.FieldDebtCourses)
	debtCredits := r.parseCount(row, resolver.FieldDebtCredits)

	if r.pendingStudents[code] != nil {
		ps := r.pendingStudents[code]
		ps.SummaryAvg = summaryAvg
		ps.DebtCourses = debtCourses
		ps.DebtCredits = debtCredits
	} else {
		upd := r.buildUpdate(st, name, summaryAvg, debtCourses, debtCredits)
		if !upd.Empty() && r.opts.AllowUpdate {
			r.batch.StudentUpdates = append(r.batch.StudentUpdates, upd)
			changed = true
		}
		if changed {
			r.res.Summary.Updated++
		} else {
			r.res.Summary.Skipped++
		}
	}

	r.res.sample(PreviewRow{
		StudentCode: code,
		FullName:    coalesce(name, st.FullName),
		SummaryAvg:  summaryAvg,
		DebtCourses: debtCourses,
		DebtCredits: debtCredits,
	})
	return nil
}

// applyGrade handles one (student, course) cell: parse, classify, collide
// with any same-term attempt, then let the retake policy settle which attempt
// stays final. Reports whether it changed anything.
func (r *gradeRun) applyGrade(policy grading.RetakePolicy, line int, row []string,
	st *student.Student, mc matchedColumn, terms map[string]int, stored map[string][]*transcript.Attempt) bool {

	if mc.col >= len(row) {
		return false
	}
	raw := strings.TrimSpace(row[mc.col])
	if raw == "" {
		return false
	}
	score, ok := normalizer.ParseScore(raw)
	if !ok {
		r.res.warnf("row %d: %s: invalid score %q for %s, skipped", line, st.Code, raw, mc.course.Code)
		return false
	}
	score10, _ := score.Float64()
	g := grading.Classify(score10)

	term := r.opts.TermLabel
	if n, ok := terms[mc.course.Code]; ok {
		term = strconv.Itoa(n)
	}
	if term == "" {
		term = "?"
	}

	// A same-term collision may be a stored row or one proposed earlier in
	// this very run; both count, so one file never yields two attempts for
	// the same (student, course, term).
	existing := stored[mc.course.Code]
	var incoming *transcript.Attempt
	for _, a := range existing {
		if a.Term == term {
			if !r.opts.AllowUpdate {
				r.res.warnf("row %d: %s: %s already graded in term %s, skipped", line, st.Code, mc.course.Code, term)
				return false
			}
			incoming = a
			break
		}
	}

	if incoming != nil {
		incoming.Score10 = score10
		incoming.Scale4 = g.Scale4
		incoming.Letter = g.Letter
		incoming.Passed = g.Passed
		if incoming.ID != 0 {
			r.attemptUpdates[incoming.ID] = incoming
		}
	} else {
		incoming = &transcript.Attempt{
			StudentCode: st.Code,
			CourseCode:  mc.course.Code,
			Term:        term,
			Score10:     score10,
			Scale4:      g.Scale4,
			Letter:      g.Letter,
			Passed:      g.Passed,
		}
		r.pendingAttempts = append(r.pendingAttempts, incoming)
		stored[mc.course.Code] = append(existing, incoming)
	}

	r.settleFinals(policy, stored[mc.course.Code], incoming)
	return true
}

// settleFinals runs the retake policy over all attempts for one course, with
// the incoming attempt ordered last, and records any final-flag flips on
// stored rows.
func (r *gradeRun) settleFinals(policy grading.RetakePolicy, attempts []*transcript.Attempt, incoming *transcript.Attempt) {
	ordered := make([]*transcript.Attempt, 0, len(attempts))
	for _, a := range attempts {
		if a != incoming {
			ordered = append(ordered, a)
		}
	}
	ordered = append(ordered, incoming)

	gAttempts := make([]*grading.Attempt, len(ordered))
	for i, a := range ordered {
		gAttempts[i] = &grading.Attempt{
			Scale4: a.Scale4,
			Term:   grading.ParseTerm(a.Term),
			Final:  a.Final,
		}
	}
	grading.ApplyRetakePolicy(policy, gAttempts)
	for i, a := range ordered {
		if a.Final == gAttempts[i].Final {
			continue
		}
		a.Final = gAttempts[i].Final
		if a.ID != 0 {
			r.attemptUpdates[a.ID] = a
		}
	}
}

// computeAverage recomputes the credit-weighted 10-point average over the
// student's final attempts, counting only GPA-bearing courses. Returns nil
// when no attempt qualifies.
func (r *gradeRun) computeAverage(stored map[string][]*transcript.Attempt) *decimal.Decimal {
	num := decimal.Zero
	den := decimal.Zero
	for courseCode, attempts := range stored {
		course, ok := r.courseByCode[courseCode]
		if !ok || !course.CountsTowardGPA || course.Credits <= 0 {
			continue
		}
		for _, a := range attempts {
			if !a.Final {
				continue
			}
			w := decimal.NewFromInt(int64(course.Credits))
			num = num.Add(decimal.NewFromFloat(a.Score10).Mul(w))
			den = den.Add(w)
		}
	}
	if den.IsZero() {
		return nil
	}
	avg := num.Div(den).Round(2)
	return &avg
}

func (r *gradeRun) storedAttempts(ctx context.Context, st *student.Student, pendingOnly bool) (map[string][]*transcript.Attempt, error) {
	byCourse := make(map[string][]*transcript.Attempt)
	if !pendingOnly {
		attempts, err := r.svc.store.ListStudentAttempts(ctx, st.Code)
		if err != nil {
			return nil, err
		}
		for i := range attempts {
			a := attempts[i]
			if upd, ok := r.attemptUpdates[a.ID]; ok {
				byCourse[a.CourseCode] = append(byCourse[a.CourseCode], upd)
				continue
			}
			byCourse[a.CourseCode] = append(byCourse[a.CourseCode], &a)
		}
	}
	for _, a := range r.pendingAttempts {
		if a.StudentCode == st.Code {
			byCourse[a.CourseCode] = append(byCourse[a.CourseCode], a)
		}
	}
	return byCourse, nil
}

func (r *gradeRun) createStudent(line int, code, name string, cohort *catalog.Cohort, row []string) *student.Student {
	st := &student.Student{
		Code:       code,
		FullName:   name,
		Birthplace: strings.TrimSpace(r.cm.Cell(row, resolver.FieldBirthplace)),
		CohortCode: cohort.Code,
		Status:     student.DefaultStatus,
	}
	if raw := strings.TrimSpace(r.cm.Cell(row, resolver.FieldBirthDate)); raw != "" {
		if d, ok := normalizer.ParseDate(raw); ok {
			st.BirthDate = &d
		} else {
			r.res.warnf("row %d: %s: unreadable birth date %q", line, code, raw)
		}
	}
	r.pendingStudents[code] = st
	return st
}

func (r *gradeRun) buildUpdate(st *student.Student, name string, avg *float64, debtCourses, debtCredits *int) student.Update {
	upd := student.Update{Code: st.Code}
	if name != "" && name != st.FullName {
		upd.FullName = &name
	}
	if avg != nil && (st.SummaryAvg == nil || *st.SummaryAvg != *avg) {
		upd.SummaryAvg = avg
	}
	if debtCourses != nil && (st.DebtCourses == nil || *st.DebtCourses != *debtCourses) {
		upd.DebtCourses = debtCourses
	}
	if debtCredits != nil && (st.DebtCredits == nil || *st.DebtCredits != *debtCredits) {
		upd.DebtCredits = debtCredits
	}
	return upd
}

func (r *gradeRun) cohortLabel(row []string) string {
	if raw := strings.TrimSpace(r.cm.Cell(row, resolver.FieldClass)); raw != "" {
		return raw
	}
	return r.opts.CohortCode
}

// resolveCohort picks the row's own class column when present, falling back
// to the run-level cohort option. Lookups are memoized, misses included.
func (r *gradeRun) resolveCohort(ctx context.Context, row []string) (*catalog.Cohort, error) {
	code := r.cohortLabel(row)
	if code == "" {
		return nil, nil
	}
	if c, ok := r.cohorts[code]; ok {
		return c, nil
	}
	c, err := r.svc.store.GetCohort(ctx, code)
	if err != nil {
		return nil, err
	}
	r.cohorts[code] = c
	return c, nil
}

func (r *gradeRun) cohortForStudent(ctx context.Context, st *student.Student) (*catalog.Cohort, error) {
	if st.CohortCode == "" {
		return nil, nil
	}
	if c, ok := r.cohorts[st.CohortCode]; ok {
		return c, nil
	}
	c, err := r.svc.store.GetCohort(ctx, st.CohortCode)
	if err != nil {
		return nil, err
	}
	r.cohorts[st.CohortCode] = c
	return c, nil
}

func (r *gradeRun) curriculumTerms(ctx context.Context, programCode string) (map[string]int, error) {
	if programCode == "" {
		return map[string]int{}, nil
	}
	if t, ok := r.termsByProgram[programCode]; ok {
		return t, nil
	}
	t, err := r.svc.store.CurriculumTerms(ctx, programCode)
	if err != nil {
		return nil, err
	}
	r.termsByProgram[programCode] = t
	return t, nil
}

func (r *gradeRun) parseSummaryAvg(line int, row []string) *decimal.Decimal {
	raw := strings.TrimSpace(r.cm.Cell(row, resolver.FieldSummaryAvg))
	if raw == "" {
		return nil
	}
	v, ok := normalizer.ParseScore(raw)
	if !ok {
		r.res.warnf("row %d: unreadable cumulative average %q", line, raw)
		return nil
	}
	return &v
}

func (r *gradeRun) parseCount(row []string, field resolver.Field) *int {
	raw := strings.TrimSpace(r.cm.Cell(row, field))
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

func coalesce(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
