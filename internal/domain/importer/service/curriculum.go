package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vui-edu/records/internal/domain/catalog"
	"github.com/vui-edu/records/internal/domain/importer/parser"
	"github.com/vui-edu/records/internal/domain/importer/repository"
	"github.com/vui-edu/records/internal/domain/importer/resolver"
)

// ImportCurriculum replaces one program's curriculum with the file's
// contents. Courses the catalog has never seen are created on the fly so the
// curriculum never references a dangling code.
func (s *ImportService) ImportCurriculum(ctx context.Context, filename string, data []byte, opts CurriculumOptions) (*Result, error) {
	ctx, span := s.startSpan(ctx, "import.curriculum")
	defer span.End()
	start := time.Now()

	if err := s.validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid import options: %w", err)
	}
	program, err := s.store.GetProgram(ctx, opts.ProgramCode)
	if err != nil {
		return nil, err
	}
	if program == nil {
		return nil, fmt.Errorf("%w: program %q", ErrUnknownReference, opts.ProgramCode)
	}

	sheet, err := parser.ReadSheet(filename, data)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	cm := resolver.Resolve(sheet.Headers)
	if !cm.Has(resolver.FieldCourseCode) {
		return nil, fmt.Errorf("no course code column found in %s", filename)
	}

	existing, err := s.store.CurriculumEntries(ctx, program.Code)
	if err != nil {
		return nil, err
	}

	res := &Result{RunID: uuid.NewString(), File: filename, Previewed: opts.Preview, Warnings: []string{}}
	res.Summary.TotalRows = len(sheet.Rows)
	batch := &repository.Batch{CurriculumReplace: program.Code}
	seen := make(map[string]bool)

	for i, row := range sheet.Rows {
		line := i + 2
		code := strings.ToUpper(strings.TrimSpace(cm.Cell(row, resolver.FieldCourseCode)))
		if code == "" {
			res.Summary.Skipped++
			res.warnf("row %d: missing course code, skipped", line)
			continue
		}
		if seen[code] {
			res.Summary.Skipped++
			res.warnf("row %d: duplicate course %s, skipped", line, code)
			continue
		}
		seen[code] = true

		name := strings.TrimSpace(cm.Cell(row, resolver.FieldCourseName))
		credits := parseIntCell(cm.Cell(row, resolver.FieldCreditWeight))
		termNo := parseIntCell(cm.Cell(row, resolver.FieldTermNo))
		if termNo <= 0 {
			res.warnf("row %d: %s: no usable term number, defaulting to 1", line, code)
			termNo = 1
		}

		course, err := s.store.GetCourse(ctx, code)
		if err != nil {
			return nil, err
		}
		switch {
		case course == nil:
			if name == "" {
				res.Summary.Skipped++
				res.warnf("row %d: unknown course %s has no name, skipped", line, code)
				continue
			}
			batch.CourseCreates = append(batch.CourseCreates, catalog.Course{
				Code:            code,
				Name:            name,
				Credits:         credits,
				CountsTowardGPA: true,
			})
		case name != "" && (course.Name != name || (credits > 0 && course.Credits != credits)):
			upd := *course
			upd.Name = name
			if credits > 0 {
				upd.Credits = credits
			}
			batch.CourseUpdates = append(batch.CourseUpdates, upd)
		}

		batch.CurriculumUpserts = append(batch.CurriculumUpserts, catalog.CurriculumEntry{
			ProgramCode: program.Code,
			CourseCode:  code,
			TermNo:      termNo,
			Required:    true,
		})
		if prev, ok := existing[code]; !ok {
			res.Summary.Created++
		} else if prev.TermNo != termNo {
			res.Summary.Updated++
		} else {
			res.Summary.Skipped++
		}
		res.sample(PreviewRow{CourseCode: code, CourseName: name, TermNo: termNo})
	}

	for code := range existing {
		if !seen[code] {
			res.warnf("course %s is no longer part of the curriculum", code)
		}
	}

	if !opts.Preview {
		if err := s.store.ApplyBatch(ctx, batch); err != nil {
			s.metrics.ObserveRun("curriculum", "error", time.Since(start).Seconds(), 0, 0, 0, 0)
			return nil, fmt.Errorf("committing curriculum import: %w", err)
		}
		s.sink.Record(ctx, auditEntry("import/curriculum", filename, opts.Actor, res, map[string]string{
			"program": opts.ProgramCode,
		}))
	}

	sum := res.Summary
	s.metrics.ObserveRun("curriculum", "ok", time.Since(start).Seconds(), sum.Created, sum.Updated, sum.Skipped, sum.Warnings)
	s.logger.Info("curriculum import finished",
		"file", filename, "program", opts.ProgramCode, "preview", opts.Preview,
		"rows", sum.TotalRows, "created", sum.Created, "updated", sum.Updated, "skipped", sum.Skipped)
	return res, nil
}

func parseIntCell(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
