package sheet

import (
	"errors"
	"testing"
	"time"

	"github.com/JonMunkholm/ecpack/internal/schema"
	"github.com/JonMunkholm/ecpack/internal/sheet/sheettest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_SkipsHeaderRowsAndPads(t *testing.T) {
	data := sheettest.Workbook(t, [][]any{
		{"header 1"},
		{"header 2", "x", "y", "z"},
		{"a", 12345},
		{"b", 2.5, "text", "wide", "widest"},
	})

	tbl, err := Load(data, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, 5, tbl.Width())
	assert.Equal(t, 2, tbl.HeaderRows())

	first := tbl.Row(0)
	require.Len(t, first, 5)
	assert.Equal(t, "a", first[0].Text())
	assert.Equal(t, KindNumber, first[1].Kind())
	assert.Equal(t, "12345", first[1].Text())
	assert.True(t, first[4].IsBlank())

	assert.Equal(t, "widest", tbl.Cell(1, 4).Text())
	assert.Equal(t, KindEmpty, tbl.Cell(9, 9).Kind())
}

func TestLoad_NumericTextStaysText(t *testing.T) {
	data := sheettest.Workbook(t, [][]any{{"012345", 12345}})

	tbl, err := Load(data, 0)
	require.NoError(t, err)

	assert.Equal(t, KindString, tbl.Cell(0, 0).Kind())
	assert.Equal(t, "012345", tbl.Cell(0, 0).Text())
	assert.Equal(t, KindNumber, tbl.Cell(0, 1).Kind())
}

func TestLoad_DateCells(t *testing.T) {
	born := time.Date(1988, 12, 23, 0, 0, 0, 0, time.UTC)
	data := sheettest.Workbook(t, [][]any{{born, 32500}})

	tbl, err := Load(data, 0)
	require.NoError(t, err)

	assert.Equal(t, KindDate, tbl.Cell(0, 0).Kind())
	got, ok := tbl.Cell(0, 0).Time()
	require.True(t, ok)
	assert.True(t, born.Equal(got), "got %v", got)
	assert.Equal(t, "1988-12-23 00:00:00", tbl.Cell(0, 0).Text())

	assert.Equal(t, KindNumber, tbl.Cell(0, 1).Kind(), "plain serials stay numbers")
}

func TestTemplate_FillKeepsDates(t *testing.T) {
	born := time.Date(1988, 12, 23, 0, 0, 0, 0, time.UTC)
	tp, err := ParseTemplate(sheettest.Template(t))
	require.NoError(t, err)

	out, err := tp.Fill([]Row{{Str("k1"), Date(born)}})
	require.NoError(t, err)
	data, err := out.Bytes()
	require.NoError(t, err)

	back, err := Load(data, TemplateDataRow)
	require.NoError(t, err)
	got, ok := back.Cell(0, 1).Time()
	require.True(t, ok, "kind = %v", back.Cell(0, 1).Kind())
	assert.True(t, born.Equal(got), "got %v", got)
	assert.NotEqual(t, "32500", sheettest.Values(t, data)[3][1])
}

func TestIsDateFormat(t *testing.T) {
	tests := map[string]bool{
		"dd.mm.yyyy":         true,
		"[$-409]m/d/yy h:mm": true,
		"hh:mm:ss":           true,
		"0.00":               false,
		"#,##0":              false,
		`0 "days"`:           false,
		"[Red]0.00":          false,
		"General":            false,
		`#,##0\ "sum"`:       false,
	}
	for code, want := range tests {
		assert.Equal(t, want, isDateFormat(code), code)
	}

	assert.True(t, isDateNumFmt(14))
	assert.True(t, isDateNumFmt(22))
	assert.False(t, isDateNumFmt(0))
	assert.False(t, isDateNumFmt(49))
}

func TestLoad_FormatError(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"garbage", []byte("this is not a workbook")},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.data, 0)
			var fe *FormatError
			assert.True(t, errors.As(err, &fe), "expected *FormatError, got %v", err)
		})
	}
}

func TestLoad_NegativeHeaderRows(t *testing.T) {
	_, err := Load(sheettest.Workbook(t, [][]any{{"a"}}), -1)
	var ce *schema.ConfigError
	assert.True(t, errors.As(err, &ce))
}

func TestIsPartOfMergedRegion(t *testing.T) {
	data := sheettest.Workbook(t, [][]any{
		{"header"},
		{"a", "b", "c"},
		{"d", "e", "f"},
	}, sheettest.Merge{"B2", "C3"})

	tbl, err := Load(data, 1)
	require.NoError(t, err)

	assert.False(t, tbl.IsPartOfMergedRegion(0, 1), "anchor is writable")
	assert.True(t, tbl.IsPartOfMergedRegion(0, 2))
	assert.True(t, tbl.IsPartOfMergedRegion(1, 1))
	assert.True(t, tbl.IsPartOfMergedRegion(1, 2))
	assert.False(t, tbl.IsPartOfMergedRegion(0, 0))
	assert.False(t, tbl.IsPartOfMergedRegion(2, 2))
}

func TestWith_LeavesParentUntouched(t *testing.T) {
	tbl := New("", []Row{{Str("a"), Str("b")}, {Str("c")}})

	edited, err := tbl.With(Set(0, 1, Str("B")), Set(3, 2, Num(7)))
	require.NoError(t, err)

	assert.Equal(t, "b", tbl.Cell(0, 1).Text())
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, 2, tbl.Width())

	assert.Equal(t, "B", edited.Cell(0, 1).Text())
	assert.Equal(t, 4, edited.Len())
	assert.Equal(t, 3, edited.Width())
	assert.Equal(t, "7", edited.Cell(3, 2).Text())
	assert.Len(t, edited.Row(1), 3)
	assert.Equal(t, 2, edited.Edited())
}

func TestWith_MergedCellRejected(t *testing.T) {
	data := sheettest.Workbook(t, [][]any{{"a", "b"}}, sheettest.Merge{"A1", "B1"})
	tbl, err := Load(data, 0)
	require.NoError(t, err)

	_, err = tbl.With(Set(0, 1, Str("x")))
	var me *MergedCellError
	require.True(t, errors.As(err, &me), "expected *MergedCellError, got %v", err)
	assert.Equal(t, "B1", me.Axis)

	_, err = tbl.With(Set(0, 0, Str("anchor")))
	assert.NoError(t, err)
}

func TestBytes_ReplaysEditsOntoSource(t *testing.T) {
	data := sheettest.Workbook(t, [][]any{
		{"Title"},
		{"a", "keep"},
		{"b", "keep"},
	})
	tbl, err := Load(data, 1)
	require.NoError(t, err)

	edited, err := tbl.With(Set(1, 0, Str("B")), Set(0, 1, Cell{}))
	require.NoError(t, err)

	out, err := edited.Bytes()
	require.NoError(t, err)

	rows := sheettest.Values(t, out)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Title"}, rows[0])
	assert.Equal(t, []string{"a"}, rows[1])
	assert.Equal(t, []string{"B", "keep"}, rows[2])
}

func TestBytes_InMemoryTable(t *testing.T) {
	tbl := New("Data", []Row{{Str("x"), Num(1.5)}, {Cell{}, Str("y")}})

	out, err := tbl.Bytes()
	require.NoError(t, err)

	back, err := Load(out, 0)
	require.NoError(t, err)
	assert.Equal(t, "Data", back.SheetName())
	assert.Equal(t, "1.5", back.Cell(0, 1).Text())
	assert.Equal(t, KindNumber, back.Cell(0, 1).Kind())
	assert.Equal(t, "y", back.Cell(1, 1).Text())
}

func TestTemplate_Fill(t *testing.T) {
	tp, err := ParseTemplate(sheettest.Template(t))
	require.NoError(t, err)

	rows := []Row{
		{Str("k1"), Str("n1"), Str("012345")},
		{Cell{}, Cell{}, Num(7)},
	}
	out, err := tp.Fill(rows)
	require.NoError(t, err)

	again, err := tp.Fill(rows[:1])
	require.NoError(t, err)

	data, err := out.Bytes()
	require.NoError(t, err)
	values := sheettest.Values(t, data)
	require.Len(t, values, 5)
	assert.Equal(t, []string{"EC package"}, values[0])
	assert.Equal(t, []string{"Key", "Name", "Code"}, values[2])
	assert.Equal(t, []string{"k1", "n1", "012345"}, values[3])
	assert.Equal(t, []string{"", "", "7"}, values[4])

	assert.Equal(t, 4, again.Len(), "each fill starts from the pristine template")
}

func TestCell(t *testing.T) {
	assert.True(t, Str("").IsBlank())
	assert.Equal(t, KindEmpty, Str("").Kind())
	assert.True(t, Str("  \t").IsBlank())
	assert.False(t, Num(0).IsBlank())

	f, ok := Str(" 12345.0 ").Float()
	assert.True(t, ok)
	assert.Equal(t, 12345.0, f)

	_, ok = Str("NaN").Float()
	assert.False(t, ok)
	_, ok = Str("abc").Float()
	assert.False(t, ok)

	assert.Nil(t, Cell{}.Value())
	assert.Equal(t, "100", Num(100).Text())
}
