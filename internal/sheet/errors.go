package sheet

import "fmt"

// FormatError is returned when input bytes are not a readable workbook.
type FormatError struct {
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("not a valid spreadsheet: %v", e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// MergedCellError is returned when a write targets a cell hidden under a
// merged region.
type MergedCellError struct {
	Row  int // table row, 0-based
	Col  int // table column, 0-based
	Axis string
}

func (e *MergedCellError) Error() string {
	return fmt.Sprintf("cannot write merged cell %s (row %d, column %d)", e.Axis, e.Row, e.Col)
}
