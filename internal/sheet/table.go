// Package sheet loads spreadsheet documents into immutable tables and writes
// edited views of them back out.
//
// A Table remembers the bytes it was loaded from. Edits never touch the
// loaded rows: With returns a new view that shares untouched rows with its
// parent, and Bytes replays only the edited cells onto a fresh copy of the
// source workbook so headers, styles and merged regions survive the round
// trip.
package sheet

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/JonMunkholm/ecpack/internal/schema"
	"github.com/xuri/excelize/v2"
)

// DefaultSheet is the sheet name used for tables built in memory.
const DefaultSheet = "Sheet1"

// Pos addresses a cell in table coordinates (0-based, after skipped rows).
type Pos struct {
	Row int
	Col int
}

// Edit is a single cell override.
type Edit struct {
	Pos
	Value Cell
}

// Set builds an Edit.
func Set(row, col int, v Cell) Edit {
	return Edit{Pos: Pos{Row: row, Col: col}, Value: v}
}

// Region is a merged range in table coordinates, inclusive on both ends.
type Region struct {
	FromRow, FromCol int
	ToRow, ToCol     int
}

// Contains reports whether the cell lies inside the region.
func (r Region) Contains(row, col int) bool {
	return row >= r.FromRow && row <= r.ToRow && col >= r.FromCol && col <= r.ToCol
}

// Table is an ordered, immutable sequence of rows read from one sheet.
type Table struct {
	sheet  string
	offset int // rows skipped above row 0
	rows   []Row
	width  int
	merged []Region
	src    []byte
	edits  map[Pos]Cell
}

// New builds a table in memory. Rows are padded to the widest row.
func New(sheetName string, rows []Row) *Table {
	if sheetName == "" {
		sheetName = DefaultSheet
	}
	t := &Table{sheet: sheetName, edits: map[Pos]Cell{}}
	for _, r := range rows {
		t.width = max(t.width, len(r))
	}
	t.rows = make([]Row, len(rows))
	for i, r := range rows {
		t.rows[i] = pad(r.Clone(), t.width)
	}
	return t
}

// Load parses workbook bytes and returns the active sheet as a table,
// dropping the first headerRows rows. Every row is padded with empty cells
// to the width of the widest row.
func Load(data []byte, headerRows int) (*Table, error) {
	if headerRows < 0 {
		return nil, &schema.ConfigError{Field: "header rows", Reason: fmt.Sprintf("must not be negative, got %d", headerRows)}
	}
	if len(data) == 0 {
		return nil, &FormatError{Err: errors.New("empty file")}
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &FormatError{Err: err}
	}
	defer f.Close()

	name := activeSheet(f)
	if name == "" {
		return nil, &FormatError{Err: errors.New("workbook has no sheets")}
	}

	raw, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &FormatError{Err: fmt.Errorf("read sheet %q: %w", name, err)}
	}

	t := &Table{
		sheet:  name,
		offset: headerRows,
		src:    data,
		edits:  map[Pos]Cell{},
	}

	cr := newCellReader(f, name)
	for r := headerRows; r < len(raw); r++ {
		row := make(Row, len(raw[r]))
		for c, v := range raw[r] {
			row[c] = cr.read(r, c, v)
		}
		t.width = max(t.width, len(row))
		t.rows = append(t.rows, row)
	}
	for i := range t.rows {
		t.rows[i] = pad(t.rows[i], t.width)
	}

	merges, err := f.GetMergeCells(name)
	if err != nil {
		return nil, &FormatError{Err: fmt.Errorf("read merged cells: %w", err)}
	}
	for _, mc := range merges {
		region, err := toRegion(mc.GetStartAxis(), mc.GetEndAxis(), headerRows)
		if err != nil {
			return nil, &FormatError{Err: err}
		}
		t.merged = append(t.merged, region)
	}

	return t, nil
}

// activeSheet returns the sheet a user sees when opening the workbook,
// falling back to the first sheet.
func activeSheet(f *excelize.File) string {
	if name := f.GetSheetName(f.GetActiveSheetIndex()); name != "" {
		return name
	}
	if list := f.GetSheetList(); len(list) > 0 {
		return list[0]
	}
	return ""
}

// cellReader classifies raw cell values, remembering which styles carry a
// date number format.
type cellReader struct {
	f         *excelize.File
	sheet     string
	date1904  bool
	dateStyle map[int]bool
}

func newCellReader(f *excelize.File, sheetName string) *cellReader {
	cr := &cellReader{f: f, sheet: sheetName, dateStyle: map[int]bool{}}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		cr.date1904 = *props.Date1904
	}
	return cr
}

// read classifies one raw value. Cells without an explicit string type that
// parse as numbers become numeric cells, or date cells when their style has
// a date format.
func (cr *cellReader) read(row, col int, raw string) Cell {
	if raw == "" {
		return Cell{}
	}
	axis, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return Str(raw)
	}
	typ, err := cr.f.GetCellType(cr.sheet, axis)
	if err != nil {
		return Str(raw)
	}
	if typ != excelize.CellTypeUnset && typ != excelize.CellTypeNumber && typ != excelize.CellTypeDate {
		return Str(raw)
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Str(raw)
	}
	if cr.isDate(axis) {
		if t, err := excelize.ExcelDateToTime(n, cr.date1904); err == nil {
			return Date(t)
		}
	}
	return Num(n)
}

func (cr *cellReader) isDate(axis string) bool {
	idx, err := cr.f.GetCellStyle(cr.sheet, axis)
	if err != nil || idx == 0 {
		return false
	}
	if v, ok := cr.dateStyle[idx]; ok {
		return v
	}
	v := false
	if style, err := cr.f.GetStyle(idx); err == nil {
		if style.CustomNumFmt != nil {
			v = isDateFormat(*style.CustomNumFmt)
		} else {
			v = isDateNumFmt(style.NumFmt)
		}
	}
	cr.dateStyle[idx] = v
	return v
}

// isDateNumFmt reports whether a built-in number format id shows a date or
// time.
func isDateNumFmt(id int) bool {
	switch {
	case id >= 14 && id <= 22, id >= 45 && id <= 47:
		return true
	case id >= 27 && id <= 36, id >= 50 && id <= 58:
		return true
	}
	return false
}

// isDateFormat reports whether a custom format code shows a date or time.
// Quoted text, escaped characters and bracketed sections such as colors or
// locales are ignored.
func isDateFormat(code string) bool {
	var b strings.Builder
	quoted, bracket := false, false
	for i := 0; i < len(code); i++ {
		ch := code[i]
		switch {
		case quoted:
			quoted = ch != '"'
		case bracket:
			bracket = ch != ']'
		case ch == '"':
			quoted = true
		case ch == '[':
			bracket = true
		case ch == '\\' || ch == '_' || ch == '*':
			i++
		default:
			b.WriteByte(ch)
		}
	}
	return strings.ContainsAny(strings.ToLower(b.String()), "ymdhs")
}

func toRegion(start, end string, offset int) (Region, error) {
	c1, r1, err := excelize.CellNameToCoordinates(start)
	if err != nil {
		return Region{}, fmt.Errorf("merged range start %q: %w", start, err)
	}
	c2, r2, err := excelize.CellNameToCoordinates(end)
	if err != nil {
		return Region{}, fmt.Errorf("merged range end %q: %w", end, err)
	}
	return Region{
		FromRow: min(r1, r2) - 1 - offset,
		FromCol: min(c1, c2) - 1,
		ToRow:   max(r1, r2) - 1 - offset,
		ToCol:   max(c1, c2) - 1,
	}, nil
}

func pad(r Row, width int) Row {
	for len(r) < width {
		r = append(r, Cell{})
	}
	return r
}

// SheetName returns the sheet the table was read from.
func (t *Table) SheetName() string { return t.sheet }

// HeaderRows returns how many rows were skipped above row 0.
func (t *Table) HeaderRows() int { return t.offset }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Width returns the number of columns in every row.
func (t *Table) Width() int { return t.width }

// Row returns a copy of row i.
func (t *Table) Row(i int) Row {
	return t.rows[i].Clone()
}

// Rows returns copies of all rows in order.
func (t *Table) Rows() []Row {
	out := make([]Row, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.Clone()
	}
	return out
}

// Cell returns the value at (row, col). Positions outside the table read as
// empty cells.
func (t *Table) Cell(row, col int) Cell {
	if row < 0 || row >= len(t.rows) || col < 0 || col >= len(t.rows[row]) {
		return Cell{}
	}
	return t.rows[row][col]
}

// IsPartOfMergedRegion reports whether the cell is covered by a merged
// region without being its top-left anchor. Such cells cannot hold a value.
func (t *Table) IsPartOfMergedRegion(row, col int) bool {
	for _, r := range t.merged {
		if r.Contains(row, col) && !(row == r.FromRow && col == r.FromCol) {
			return true
		}
	}
	return false
}

// Edited returns the number of cells overridden since the table was loaded.
func (t *Table) Edited() int { return len(t.edits) }

// With returns a new table with the edits applied. The receiver is left
// unchanged. Writes outside the current bounds grow the table. A write into
// a merged cell fails with *MergedCellError and nothing is applied.
func (t *Table) With(edits ...Edit) (*Table, error) {
	for _, e := range edits {
		if e.Row < 0 || e.Col < 0 {
			return nil, &schema.ConfigError{
				Field:  "cell",
				Reason: fmt.Sprintf("position row %d column %d is out of range", e.Row, e.Col),
			}
		}
		if t.IsPartOfMergedRegion(e.Row, e.Col) {
			axis, _ := excelize.CoordinatesToCellName(e.Col+1, e.Row+t.offset+1)
			return nil, &MergedCellError{Row: e.Row, Col: e.Col, Axis: axis}
		}
	}

	out := &Table{
		sheet:  t.sheet,
		offset: t.offset,
		rows:   slices.Clone(t.rows),
		width:  t.width,
		merged: t.merged,
		src:    t.src,
		edits:  maps.Clone(t.edits),
	}
	if out.edits == nil {
		out.edits = map[Pos]Cell{}
	}

	cloned := make(map[int]bool)
	for _, e := range edits {
		for len(out.rows) <= e.Row {
			out.rows = append(out.rows, make(Row, out.width))
			cloned[len(out.rows)-1] = true
		}
		if !cloned[e.Row] {
			out.rows[e.Row] = out.rows[e.Row].Clone()
			cloned[e.Row] = true
		}
		if e.Col >= out.width {
			out.width = e.Col + 1
		}
		out.rows[e.Row] = pad(out.rows[e.Row], e.Col+1)
		out.rows[e.Row][e.Col] = e.Value
		out.edits[e.Pos] = e.Value
	}
	for i := range out.rows {
		if len(out.rows[i]) < out.width {
			if !cloned[i] {
				out.rows[i] = out.rows[i].Clone()
				cloned[i] = true
			}
			out.rows[i] = pad(out.rows[i], out.width)
		}
	}

	return out, nil
}

// Bytes encodes the table as an xlsx workbook. Tables loaded from bytes are
// written by replaying edits onto a fresh copy of the source; tables built
// in memory are written cell by cell.
func (t *Table) Bytes() ([]byte, error) {
	var (
		f   *excelize.File
		err error
	)
	if t.src != nil {
		f, err = excelize.OpenReader(bytes.NewReader(t.src))
		if err != nil {
			return nil, &FormatError{Err: err}
		}
	} else {
		f = excelize.NewFile()
		if t.sheet != DefaultSheet {
			if err := f.SetSheetName(DefaultSheet, t.sheet); err != nil {
				f.Close()
				return nil, fmt.Errorf("name sheet: %w", err)
			}
		}
	}
	defer f.Close()

	if t.src != nil {
		positions := slices.SortedFunc(maps.Keys(t.edits), comparePos)
		for _, p := range positions {
			if err := t.write(f, p, t.edits[p]); err != nil {
				return nil, err
			}
		}
	} else {
		for r, row := range t.rows {
			for c, v := range row {
				if v.Kind() == KindEmpty {
					continue
				}
				if err := t.write(f, Pos{Row: r, Col: c}, v); err != nil {
					return nil, err
				}
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (t *Table) write(f *excelize.File, p Pos, v Cell) error {
	axis, err := excelize.CoordinatesToCellName(p.Col+1, p.Row+t.offset+1)
	if err != nil {
		return fmt.Errorf("cell address: %w", err)
	}
	if err := f.SetCellValue(t.sheet, axis, v.Value()); err != nil {
		return fmt.Errorf("write %s: %w", axis, err)
	}
	return nil
}

func comparePos(a, b Pos) int {
	if a.Row != b.Row {
		return a.Row - b.Row
	}
	return a.Col - b.Col
}
