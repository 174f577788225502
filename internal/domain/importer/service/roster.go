package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vui-edu/records/internal/domain/importer/normalizer"
	"github.com/vui-edu/records/internal/domain/importer/parser"
	"github.com/vui-edu/records/internal/domain/importer/repository"
	"github.com/vui-edu/records/internal/domain/importer/resolver"
	"github.com/vui-edu/records/internal/domain/student"
)

// ImportRoster loads a class roster: one student per row, all assigned to the
// cohort named in the options. Existing students are updated only when
// AllowUpdate is set.
func (s *ImportService) ImportRoster(ctx context.Context, filename string, data []byte, opts RosterOptions) (*Result, error) {
	ctx, span := s.startSpan(ctx, "import.roster")
	defer span.End()
	start := time.Now()

	if err := s.validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid import options: %w", err)
	}

	cohort, err := s.store.GetCohort(ctx, opts.CohortCode)
	if err != nil {
		return nil, err
	}
	if cohort == nil {
		return nil, fmt.Errorf("%w: cohort %q", ErrUnknownReference, opts.CohortCode)
	}

	sheet, err := parser.ReadSheet(filename, data)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	rows, err := parser.ParseRoster(sheet)
	if err != nil {
		return nil, err
	}

	res := &Result{RunID: uuid.NewString(), File: filename, Previewed: opts.Preview, Warnings: []string{}}
	res.Summary.TotalRows = len(rows)
	batch := &repository.Batch{}
	seen := make(map[string]bool)

	for i, row := range rows {
		line := i + 2
		code := strings.TrimSpace(row.StudentCode())
		if code == "" {
			res.Summary.Skipped++
			res.warnf("row %d: missing student id, skipped", line)
			continue
		}
		if resolver.IsHeaderEcho(resolver.FieldStudentID, code) {
			res.Summary.Skipped++
			res.warnf("row %d: repeats the header row, skipped", line)
			continue
		}
		if seen[code] {
			res.Summary.Skipped++
			res.warnf("row %d: duplicate student %s, skipped", line, code)
			continue
		}
		seen[code] = true

		name := strings.TrimSpace(row.StudentName())
		var birth *time.Time
		if raw := strings.TrimSpace(row.BirthDateRaw()); raw != "" {
			if d, ok := normalizer.ParseDate(raw); ok {
				birth = &d
			} else {
				res.warnf("row %d: %s: unreadable birth date %q", line, code, raw)
			}
		}
		birthplace := strings.TrimSpace(row.BirthplaceRaw())

		existing, err := s.store.GetStudent(ctx, code)
		if err != nil {
			return nil, err
		}

		if existing == nil {
			batch.StudentCreates = append(batch.StudentCreates, student.Student{
				Code:       code,
				FullName:   name,
				BirthDate:  birth,
				Birthplace: birthplace,
				CohortCode: cohort.Code,
				Status:     student.DefaultStatus,
			})
			res.Summary.Created++
			res.sample(PreviewRow{StudentCode: code, FullName: name})
			continue
		}

		if !opts.AllowUpdate {
			res.Summary.Skipped++
			res.warnf("row %d: student %s already exists, skipped", line, code)
			continue
		}
		upd := student.Update{Code: code}
		if name != "" && name != existing.FullName {
			upd.FullName = &name
		}
		if birth != nil && (existing.BirthDate == nil || !existing.BirthDate.Equal(*birth)) {
			upd.BirthDate = birth
		}
		if birthplace != "" && birthplace != existing.Birthplace {
			upd.Birthplace = &birthplace
		}
		if existing.CohortCode != cohort.Code {
			c := cohort.Code
			upd.CohortCode = &c
		}
		if upd.Empty() {
			res.Summary.Skipped++
			continue
		}
		batch.StudentUpdates = append(batch.StudentUpdates, upd)
		res.Summary.Updated++
		res.sample(PreviewRow{StudentCode: code, FullName: coalesce(name, existing.FullName)})
	}

	if !opts.Preview {
		if err := s.store.ApplyBatch(ctx, batch); err != nil {
			s.metrics.ObserveRun("roster", "error", time.Since(start).Seconds(), 0, 0, 0, 0)
			return nil, fmt.Errorf("committing roster import: %w", err)
		}
		s.sink.Record(ctx, auditEntry("import/class-roster", filename, opts.Actor, res, map[string]string{
			"cohort":       opts.CohortCode,
			"allow_update": strconv.FormatBool(opts.AllowUpdate),
		}))
	}

	sum := res.Summary
	s.metrics.ObserveRun("roster", "ok", time.Since(start).Seconds(), sum.Created, sum.Updated, sum.Skipped, sum.Warnings)
	s.logger.Info("roster import finished",
		"file", filename, "cohort", opts.CohortCode, "preview", opts.Preview,
		"rows", sum.TotalRows, "created", sum.Created, "updated", sum.Updated, "skipped", sum.Skipped)
	return res, nil
}
