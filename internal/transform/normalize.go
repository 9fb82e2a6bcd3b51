package transform

import (
	"strconv"
	"strings"

	"github.com/JonMunkholm/ecpack/internal/sheet"
)

// IdentityKey canonicalizes a cell for equality checks: string form,
// trimmed, upper-cased. Blank cells yield the empty key, which callers never
// treat as a match.
func IdentityKey(c sheet.Cell) string {
	return strings.ToUpper(strings.TrimSpace(c.Text()))
}

// FixCode restores the leading zero of a six-digit code that was stored as
// a number. A value whose integer part has exactly five digits becomes a
// zero-padded text cell; anything else, including non-numeric text, is
// returned unchanged.
func FixCode(c sheet.Cell) sheet.Cell {
	f, ok := c.Float()
	if !ok || f < 10000 || f >= 100000 {
		return c
	}
	return sheet.Str("0" + strconv.FormatInt(int64(f), 10))
}

// FixCodes applies FixCode to one column of every row and returns the new
// table with the number of cells changed.
func FixCodes(t *sheet.Table, col int) (*sheet.Table, int) {
	rows := t.Rows()
	fixed := 0
	for _, r := range rows {
		if col >= len(r) {
			continue
		}
		if v := FixCode(r[col]); v.Text() != r[col].Text() {
			r[col] = v
			fixed++
		}
	}
	return sheet.New(t.SheetName(), rows), fixed
}
