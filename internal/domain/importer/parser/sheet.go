// Package parser reads uploaded spreadsheet exports into a RawSheet: the
// ordered header row plus the ordered data rows, nothing interpreted yet.
// CSV and single-sheet XLSX are supported; format is picked by file name.
package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

var (
	ErrEmptyFile    = errors.New("file is empty")
	ErrNoHeaderRow  = errors.New("could not find a header row")
	ErrNoWorksheets = errors.New("workbook has no worksheets")
)

// RawSheet is one uploaded table. It lives only for the duration of a single
// import run.
type RawSheet struct {
	Headers []string
	Rows    [][]string
}

// Cell returns the trimmed value of column idx in row, or "" when the row is
// ragged.
func (s *RawSheet) Cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// ReadSheet parses file content by extension: ".csv" goes through the CSV
// reader with delimiter detection, everything else is treated as a workbook.
func ReadSheet(filename string, data []byte) (*RawSheet, error) {
	if strings.HasSuffix(strings.ToLower(filename), ".csv") {
		return ReadCSV(data)
	}
	return ReadExcel(data)
}

// ReadCSV reads a CSV/TSV export. The delimiter is detected from the header
// line, a UTF-8 BOM is stripped, and non-UTF-8 content falls back to a
// Latin-1 decode rather than failing.
func ReadCSV(data []byte) (*RawSheet, error) {
	data = normalizeBytes(data)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	headerLine := firstNonEmptyLine(data)
	if headerLine == "" {
		return nil, ErrNoHeaderRow
	}
	delimiter := detectDelimiter(headerLine)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var sheet RawSheet
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if sheet.Headers == nil {
			if rowEmpty(record) {
				continue
			}
			for i, h := range record {
				record[i] = strings.TrimSpace(h)
			}
			sheet.Headers = record
			continue
		}
		if rowEmpty(record) {
			continue
		}
		sheet.Rows = append(sheet.Rows, record)
	}
	if sheet.Headers == nil {
		return nil, ErrNoHeaderRow
	}
	return &sheet, nil
}

// ReadExcel reads the first worksheet of an XLSX workbook.
func ReadExcel(data []byte) (*RawSheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoWorksheets
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read worksheet %s: %w", sheets[0], err)
	}

	var sheet RawSheet
	for _, row := range rows {
		if sheet.Headers == nil {
			if rowEmpty(row) {
				continue
			}
			for i, h := range row {
				row[i] = strings.TrimSpace(h)
			}
			sheet.Headers = row
			continue
		}
		if rowEmpty(row) {
			continue
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	if sheet.Headers == nil {
		return nil, ErrNoHeaderRow
	}
	return &sheet, nil
}

func rowEmpty(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func firstNonEmptyLine(data []byte) string {
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

func detectDelimiter(line string) rune {
	delimiters := []rune{';', '\t', ',', '|'}
	best := ','
	bestCount := 0
	for _, d := range delimiters {
		if count := strings.Count(line, string(d)); count > bestCount {
			bestCount = count
			best = d
		}
	}
	return best
}

func normalizeBytes(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		data = data[3:]
	}
	if utf8.Valid(data) {
		return data
	}
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return []byte(string(runes))
}
