package parser

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/gocarina/gocsv"

	"github.com/vui-edu/records/internal/domain/importer/normalizer"
)

// RosterRow is one class-roster line. Tags carry the alias spellings seen in
// real exports; headers are normalized before unmarshaling so "Mã Sinh Viên",
// "ma_sinh_vien" and "MSSV" all land in a field.
type RosterRow struct {
	// Student id columns
	MaSinhVien string `csv:"masinhvien"`
	MaSV       string `csv:"masv"`
	MSSV       string `csv:"mssv"`
	StudentID  string `csv:"studentid"`
	ID         string `csv:"id"`

	// Full name columns
	HoVaTen  string `csv:"hovaten"`
	HoTen    string `csv:"hoten"`
	Ten      string `csv:"ten"`
	FullName string `csv:"fullname"`
	Name     string `csv:"name"`

	// Birth date columns
	NgaySinh    string `csv:"ngaysinh"`
	NS          string `csv:"ns"`
	DOB         string `csv:"dob"`
	DateOfBirth string `csv:"dateofbirth"`

	// Birthplace columns
	NoiSinh    string `csv:"noisinh"`
	QueQuan    string `csv:"quequan"`
	Birthplace string `csv:"birthplace"`
}

// StudentCode returns the first non-empty student id alias.
func (r RosterRow) StudentCode() string {
	return coalesce(r.MaSinhVien, r.MaSV, r.MSSV, r.StudentID, r.ID)
}

// StudentName returns the first non-empty name alias.
func (r RosterRow) StudentName() string {
	return coalesce(r.HoVaTen, r.HoTen, r.Ten, r.FullName, r.Name)
}

// BirthDateRaw returns the first non-empty birth date alias, unparsed.
func (r RosterRow) BirthDateRaw() string {
	return coalesce(r.NgaySinh, r.NS, r.DOB, r.DateOfBirth)
}

// BirthplaceRaw returns the first non-empty birthplace alias.
func (r RosterRow) BirthplaceRaw() string {
	return coalesce(r.NoiSinh, r.QueQuan, r.Birthplace)
}

// ParseRoster reads an already-loaded sheet into roster rows by rewriting the
// header row to normalized keys and running it through gocsv.
func ParseRoster(sheet *RawSheet) ([]RosterRow, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	headers := make([]string, len(sheet.Headers))
	for i, h := range sheet.Headers {
		headers[i] = normalizer.Key(h)
	}
	if err := w.Write(headers); err != nil {
		return nil, err
	}
	for _, row := range sheet.Rows {
		record := make([]string, len(headers))
		for i := range headers {
			record[i] = sheet.Cell(row, i)
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	var rows []RosterRow
	if err := gocsv.UnmarshalBytes(buf.Bytes(), &rows); err != nil {
		return nil, fmt.Errorf("unmarshal roster: %w", err)
	}
	return rows, nil
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
