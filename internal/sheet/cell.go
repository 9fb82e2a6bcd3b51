package sheet

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind identifies what a Cell holds.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindString
	KindNumber
	KindDate
)

// dateLayout is how date cells print as text.
const dateLayout = "2006-01-02 15:04:05"

// Cell is a single spreadsheet value. Numbers keep their float form so they
// are written back as numeric cells; dates are written back as dates.
type Cell struct {
	kind Kind
	str  string
	num  float64
	tm   time.Time
}

// Row is an ordered sequence of cells.
type Row []Cell

// Str returns a text cell. The empty string yields an empty cell.
func Str(s string) Cell {
	if s == "" {
		return Cell{}
	}
	return Cell{kind: KindString, str: s}
}

// Num returns a numeric cell.
func Num(f float64) Cell {
	return Cell{kind: KindNumber, num: f}
}

// Date returns a date cell.
func Date(t time.Time) Cell {
	return Cell{kind: KindDate, tm: t}
}

// Kind reports what the cell holds.
func (c Cell) Kind() Kind { return c.kind }

// IsBlank reports whether the cell is empty or holds only whitespace.
func (c Cell) IsBlank() bool {
	switch c.kind {
	case KindEmpty:
		return true
	case KindString:
		return strings.TrimSpace(c.str) == ""
	default:
		return false
	}
}

// Text returns the string form of the cell. Whole numbers print without a
// fractional part.
func (c Cell) Text() string {
	switch c.kind {
	case KindString:
		return c.str
	case KindNumber:
		return strconv.FormatFloat(c.num, 'f', -1, 64)
	case KindDate:
		return c.tm.Format(dateLayout)
	default:
		return ""
	}
}

// Time returns the value of a date cell.
func (c Cell) Time() (time.Time, bool) {
	return c.tm, c.kind == KindDate
}

// Float returns the numeric value of the cell. Text cells are parsed after
// trimming; NaN and infinities are rejected.
func (c Cell) Float() (float64, bool) {
	var f float64
	switch c.kind {
	case KindNumber:
		f = c.num
	case KindString:
		v, err := strconv.ParseFloat(strings.TrimSpace(c.str), 64)
		if err != nil {
			return 0, false
		}
		f = v
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Value returns the cell in the form excelize.SetCellValue expects.
func (c Cell) Value() any {
	switch c.kind {
	case KindString:
		return c.str
	case KindNumber:
		return c.num
	case KindDate:
		return c.tm
	default:
		return nil
	}
}

// Clone returns a copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}
