package parser

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReadCSV(t *testing.T) {
	t.Run("comma delimited", func(t *testing.T) {
		data := []byte("Mã sinh viên,Họ và tên,Toán cao cấp\nSV001,Nguyễn Văn A,8.5\nSV002,Trần Thị B,7\n")
		sheet, err := ReadCSV(data)
		require.NoError(t, err)
		assert.Equal(t, []string{"Mã sinh viên", "Họ và tên", "Toán cao cấp"}, sheet.Headers)
		require.Len(t, sheet.Rows, 2)
		assert.Equal(t, "SV001", sheet.Cell(sheet.Rows[0], 0))
	})

	t.Run("semicolon delimited with BOM", func(t *testing.T) {
		data := []byte("\xEF\xBB\xBFMã sinh viên;Họ và tên\nSV001;Nguyễn Văn A\n")
		sheet, err := ReadCSV(data)
		require.NoError(t, err)
		assert.Equal(t, "Mã sinh viên", sheet.Headers[0])
	})

	t.Run("blank lines skipped", func(t *testing.T) {
		data := []byte("\n\nMã sinh viên,Họ và tên\n\nSV001,Nguyễn Văn A\n\n")
		sheet, err := ReadCSV(data)
		require.NoError(t, err)
		require.Len(t, sheet.Rows, 1)
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := ReadCSV([]byte("  \n "))
		assert.ErrorIs(t, err, ErrEmptyFile)
	})
}

func TestReadExcel(t *testing.T) {
	f := excelize.NewFile()
	sheetName := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheetName, "A1", &[]any{"Mã sinh viên", "Họ và tên", "Lập trình C"}))
	require.NoError(t, f.SetSheetRow(sheetName, "A2", &[]any{"SV001", "Nguyễn Văn A", 8.5}))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	sheet, err := ReadExcel(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []string{"Mã sinh viên", "Họ và tên", "Lập trình C"}, sheet.Headers)
	require.Len(t, sheet.Rows, 1)
	assert.Equal(t, "SV001", sheet.Cell(sheet.Rows[0], 0))
}

func TestReadSheetDispatch(t *testing.T) {
	data := []byte("Mã sinh viên,Họ và tên\nSV001,A\n")
	sheet, err := ReadSheet("grades.csv", data)
	require.NoError(t, err)
	assert.Len(t, sheet.Rows, 1)

	_, err = ReadSheet("grades.xlsx", data)
	assert.Error(t, err) // not a zip archive
}

func TestParseRoster(t *testing.T) {
	sheet := &RawSheet{
		Headers: []string{"STT", "Mã Sinh Viên", "Họ và tên", "Ngày sinh", "Nơi sinh"},
		Rows: [][]string{
			{"1", "SV001", "Nguyễn Văn A", "25/12/2003", "Hà Nội"},
			{"2", "SV002", "Trần Thị B", "", "Huế"},
		},
	}
	rows, err := ParseRoster(sheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "SV001", rows[0].StudentCode())
	assert.Equal(t, "Nguyễn Văn A", rows[0].StudentName())
	assert.Equal(t, "25/12/2003", rows[0].BirthDateRaw())
	assert.Equal(t, "Hà Nội", rows[0].BirthplaceRaw())
	assert.Empty(t, rows[1].BirthDateRaw())
}
