// Package resolver binds the headers of an uploaded sheet to the canonical
// identity/metadata fields of an import, and collects whatever is left over
// as subject candidate columns. All alias knowledge lives in one declarative
// table here, not scattered across call sites.
package resolver

import (
	"errors"

	"github.com/cloudflare/ahocorasick"

	"github.com/vui-edu/records/internal/domain/importer/normalizer"
)

// Field names one canonical per-row attribute a sheet may supply.
type Field string

const (
	FieldRowNo        Field = "stt"
	FieldStudentID    Field = "student_id"
	FieldFullName     Field = "full_name"
	FieldBirthDate    Field = "birth_date"
	FieldBirthplace   Field = "birthplace"
	FieldClass        Field = "class"
	FieldSummaryAvg   Field = "summary_avg"
	FieldDebtCourses  Field = "debt_courses"
	FieldDebtCredits  Field = "debt_credits"
	FieldCourseCode   Field = "course_code"
	FieldCourseName   Field = "course_name"
	FieldTermNo       Field = "term_no"
	FieldCreditWeight Field = "credit_weight"
)

// ErrMissingStudentID aborts a grade or roster run before any row is touched.
var ErrMissingStudentID = errors.New("mandatory student id column not found")

type aliasEntry struct {
	field   Field
	aliases []string
}

// aliasTable is ordered: earlier fields claim their header first, and a
// header never binds to more than one field.
var aliasTable = []aliasEntry{
	{FieldRowNo, []string{"stt", "so", "sott", "sothutu"}},
	{FieldStudentID, []string{"mã sinh viên", "masinhvien", "ma sinh vien", "masv", "mssv", "studentid", "id"}},
	{FieldFullName, []string{"họ và tên", "hovaten", "ho va ten", "hoten", "ten", "fullname", "name"}},
	{FieldBirthDate, []string{"ngày sinh", "ngaysinh", "ngay sinh", "ns", "dob", "dateofbirth"}},
	{FieldBirthplace, []string{"nơi sinh", "noisinh", "noi sinh", "quequan", "que quan", "birthplace"}},
	{FieldClass, []string{"tenlop", "ten lop", "lop", "malop"}},
	{FieldSummaryAvg, []string{"tbcht10", "tbc ht10", "tbcht 10", "tbc he 10", "tbc10", "gpa10"}},
	{FieldDebtCourses, []string{"sohpno", "so hp no", "somonno", "nohp", "số hp nợ"}},
	{FieldDebtCredits, []string{"sotinchino", "so tin chi no", "sotcno", "notinchi", "số tín chỉ nợ"}},
	{FieldCourseCode, []string{"mã học phần", "mahp", "mãhp", "mamon", "mahocphan", "ma_mon"}},
	{FieldCourseName, []string{"tên học phần", "tenhp", "tênhp", "tenmon", "tenhocphan", "ten_mon"}},
	{FieldTermNo, []string{"kỳ thứ", "kithu", "kythu", "hocky", "học kỳ", "hk"}},
	{FieldCreditWeight, []string{"số tín chỉ", "sotinchi", "stc", "so tc", "so_tin_chi"}},
}

// metaExact is the stoplist of whole headers that are never subject columns:
// report bookkeeping labels and every canonical alias.
var metaExact = buildMetaExact()

// metaSubstrings mark aggregate/classification columns wherever they appear
// inside a header ("TBC HT10 (cả năm)", "Xếp loại học tập", ...).
var metaSubstrings = []string{"tbc", "ht4", "xeploai", "thang10", "thang4", "ngaytonghop", "nguoitonghop"}

var metaMatcher = ahocorasick.NewStringMatcher(metaSubstrings)

func buildMetaExact() map[string]struct{} {
	set := map[string]struct{}{
		normalizer.Key("Ngày tổng hợp"):   {},
		normalizer.Key("Người tổng hợp"): {},
		normalizer.Key("GPA"):            {},
	}
	for _, e := range aliasTable {
		for _, a := range e.aliases {
			set[normalizer.Key(a)] = struct{}{}
		}
	}
	return set
}

var fieldAliasKeys = buildFieldAliasKeys()

func buildFieldAliasKeys() map[Field]map[string]struct{} {
	byField := make(map[Field]map[string]struct{}, len(aliasTable))
	for _, e := range aliasTable {
		keys := make(map[string]struct{}, len(e.aliases))
		for _, a := range e.aliases {
			keys[normalizer.Key(a)] = struct{}{}
		}
		byField[e.field] = keys
	}
	return byField
}

// IsHeaderEcho reports whether a data cell is one of field's own header
// aliases. Concatenated sheets repeat their title row mid-data; a student-id
// cell reading "Mã sinh viên" is such an echo, not a student.
func IsHeaderEcho(f Field, cell string) bool {
	keys, ok := fieldAliasKeys[f]
	if !ok {
		return false
	}
	_, ok = keys[normalizer.Key(cell)]
	return ok
}

// SubjectCandidate is a header that resolved to no canonical field and no
// known metadata label, presumed to carry a course's scores.
type SubjectCandidate struct {
	Index  int
	Header string
}

// ColumnMap is the result of resolving one sheet's header row. Built once per
// run and discarded with it.
type ColumnMap struct {
	fields     map[Field]int
	Candidates []SubjectCandidate
}

// Index returns the column index bound to field, or -1.
func (m *ColumnMap) Index(f Field) int {
	if idx, ok := m.fields[f]; ok {
		return idx
	}
	return -1
}

// Has reports whether field was bound.
func (m *ColumnMap) Has(f Field) bool {
	_, ok := m.fields[f]
	return ok
}

// Cell returns the row value under field, or "" when the field was never
// bound or the row is too short. Ragged rows are normal in exported sheets.
func (m *ColumnMap) Cell(row []string, f Field) string {
	idx, ok := m.fields[f]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// Resolve binds headers to canonical fields via the alias table. Headers that
// bind to nothing and are not metadata become subject candidates; candidate
// collection starts after the student id column, matching how grade sheets
// are laid out (identity block first, score block after).
func Resolve(headers []string) *ColumnMap {
	keys := make([]string, len(headers))
	for i, h := range headers {
		keys[i] = normalizer.Key(h)
	}

	m := &ColumnMap{fields: make(map[Field]int)}
	bound := make(map[int]bool)
	for _, entry := range aliasTable {
		for _, alias := range entry.aliases {
			aliasKey := normalizer.Key(alias)
			for i, key := range keys {
				if !bound[i] && key == aliasKey {
					m.fields[entry.field] = i
					bound[i] = true
					break
				}
			}
			if m.Has(entry.field) {
				break
			}
		}
	}

	start := 0
	if idx, ok := m.fields[FieldStudentID]; ok {
		start = idx + 1
	}
	for i := start; i < len(headers); i++ {
		if bound[i] || keys[i] == "" {
			continue
		}
		if IsMetadataHeader(headers[i]) {
			continue
		}
		m.Candidates = append(m.Candidates, SubjectCandidate{Index: i, Header: headers[i]})
	}
	return m
}

// RequireStudentID returns ErrMissingStudentID when the mandatory identity
// column is unbound.
func (m *ColumnMap) RequireStudentID() error {
	if !m.Has(FieldStudentID) {
		return ErrMissingStudentID
	}
	return nil
}

// IsMetadataHeader reports whether a header names known non-subject metadata.
// The check runs on the raw key and on the pattern-stripped subject key, so
// trailing attempt numbers or parenthetical notes do not hide a metadata
// label.
func IsMetadataHeader(header string) bool {
	key := normalizer.Key(header)
	if _, ok := metaExact[key]; ok {
		return true
	}
	if len(metaMatcher.MatchThreadSafe([]byte(key))) > 0 {
		return true
	}
	stripped := normalizer.SubjectKey(header)
	if stripped == "" {
		return true
	}
	_, ok := metaExact[stripped]
	return ok
}
