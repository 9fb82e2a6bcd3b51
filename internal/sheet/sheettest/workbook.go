// Package sheettest builds small xlsx workbooks in memory for tests.
package sheettest

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// Merge is an inclusive merged range such as {"E3", "F3"}.
type Merge [2]string

// Workbook returns xlsx bytes with rows written to Sheet1 from A1. Nil
// values are left unset.
func Workbook(t testing.TB, rows [][]any, merges ...Merge) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for r, row := range rows {
		for c, v := range row {
			if v == nil {
				continue
			}
			axis, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Sheet1", axis, v))
		}
	}
	for _, m := range merges {
		require.NoError(t, f.MergeCell("Sheet1", m[0], m[1]))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

// Template returns a template workbook with three header rows and a stale
// value in the first data row.
func Template(t testing.TB) []byte {
	t.Helper()
	return Workbook(t, [][]any{
		{"EC package"},
		{"Registry"},
		{"Key", "Name", "Code"},
		{"stale", "stale", "stale"},
	})
}

// Values reads Sheet1 back as display strings.
func Values(t testing.TB, data []byte) [][]string {
	t.Helper()

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(f.GetActiveSheetIndex()))
	require.NoError(t, err)
	return rows
}
