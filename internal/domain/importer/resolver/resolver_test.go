package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveGradeSheet(t *testing.T) {
	headers := []string{
		"STT", "Mã sinh viên", "Họ và tên", "Ngày sinh", "Nơi sinh",
		"Toán cao cấp", "Lập trình C (Lần 2)", "TBC HT10", "Số HP nợ", "Số tín chỉ nợ",
	}
	m := Resolve(headers)

	require.NoError(t, m.RequireStudentID())
	assert.Equal(t, 1, m.Index(FieldStudentID))
	assert.Equal(t, 2, m.Index(FieldFullName))
	assert.Equal(t, 3, m.Index(FieldBirthDate))
	assert.Equal(t, 4, m.Index(FieldBirthplace))
	assert.Equal(t, 7, m.Index(FieldSummaryAvg))
	assert.Equal(t, 8, m.Index(FieldDebtCourses))
	assert.Equal(t, 9, m.Index(FieldDebtCredits))

	require.Len(t, m.Candidates, 2)
	assert.Equal(t, "Toán cao cấp", m.Candidates[0].Header)
	assert.Equal(t, "Lập trình C (Lần 2)", m.Candidates[1].Header)
}

func TestResolveAliasVariants(t *testing.T) {
	m := Resolve([]string{"MSSV", "fullname", "dob"})
	assert.Equal(t, 0, m.Index(FieldStudentID))
	assert.Equal(t, 1, m.Index(FieldFullName))
	assert.Equal(t, 2, m.Index(FieldBirthDate))
	assert.Empty(t, m.Candidates)
}

func TestResolveMissingStudentID(t *testing.T) {
	m := Resolve([]string{"Họ và tên", "Toán cao cấp"})
	assert.ErrorIs(t, m.RequireStudentID(), ErrMissingStudentID)
	assert.Equal(t, -1, m.Index(FieldStudentID))
}

func TestResolveCurriculumSheet(t *testing.T) {
	m := Resolve([]string{"Mã học phần", "Tên học phần", "Kỳ thứ", "Số tín chỉ"})
	assert.Equal(t, 0, m.Index(FieldCourseCode))
	assert.Equal(t, 1, m.Index(FieldCourseName))
	assert.Equal(t, 2, m.Index(FieldTermNo))
	assert.Equal(t, 3, m.Index(FieldCreditWeight))
}

func TestHeaderBindsAtMostOnce(t *testing.T) {
	// "hoten" could alias full name only once even if repeated.
	m := Resolve([]string{"Mã SV", "Họ tên", "Họ tên"})
	assert.Equal(t, 1, m.Index(FieldFullName))
	// Second duplicate is a candidate? No: it still looks like metadata (an
	// identity alias), so it must not become a subject column.
	assert.Empty(t, m.Candidates)
}

func TestIsMetadataHeader(t *testing.T) {
	cases := []struct {
		header string
		want   bool
	}{
		{"TBC HT10", true},
		{"Xếp loại", true},
		{"Xếp loại (cả khóa)", true},
		{"Ngày tổng hợp", true},
		{"Người tổng hợp", true},
		{"GPA", true},
		{"Điểm hệ 4 (thang 4)", true},
		{"Toán cao cấp", false},
		{"Lập trình C (Lần 2)", false},
	}
	for _, tc := range cases {
		t.Run(tc.header, func(t *testing.T) {
			assert.Equal(t, tc.want, IsMetadataHeader(tc.header))
		})
	}
}

func TestIsHeaderEcho(t *testing.T) {
	cases := []struct {
		cell string
		want bool
	}{
		{"Mã sinh viên", true},
		{"MSSV", true},
		{"ma_sinh_vien", true},
		{"DH52100123", false},
		{"", false},
	}
	for _, tc := range cases {
		t.Run(tc.cell, func(t *testing.T) {
			assert.Equal(t, tc.want, IsHeaderEcho(FieldStudentID, tc.cell))
		})
	}
}
