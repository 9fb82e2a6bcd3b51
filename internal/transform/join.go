package transform

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/JonMunkholm/ecpack/internal/schema"
	"github.com/JonMunkholm/ecpack/internal/sheet"
)

// PINFL replacement constants. The alphabet is independent of the passport
// macro alphabet.
const (
	PinflAlphabet    = "0123456789KJTIFHBMNCXZSDQWRYUPLEA"
	PinflDefault     = "AB0663236"
	PinflDefaultDate = "23.12.1988"
)

// JoinInputError is returned when one of the two join workbooks is missing
// or unreadable.
type JoinInputError struct {
	Input string // "source" or "results"
	Err   error
}

func (e *JoinInputError) Error() string {
	return fmt.Sprintf("join input %s unusable: %v", e.Input, e.Err)
}

func (e *JoinInputError) Unwrap() error { return e.Err }

// ErrMissingInput marks a join input that never arrived.
var ErrMissingInput = errors.New("missing input file")

// LoadJoinInputs loads the source register and the PINFL results workbook.
// Any failure is reported as *JoinInputError naming the input.
func LoadJoinInputs(source, results []byte, reg schema.Register, res schema.PinflResults) (*sheet.Table, *sheet.Table, error) {
	src, err := loadJoinInput("source", source, reg.HeaderRows)
	if err != nil {
		return nil, nil, err
	}
	lookup, err := loadJoinInput("results", results, res.HeaderRows)
	if err != nil {
		return nil, nil, err
	}
	return src, lookup, nil
}

func loadJoinInput(name string, data []byte, headerRows int) (*sheet.Table, error) {
	if len(data) == 0 {
		return nil, &JoinInputError{Input: name, Err: ErrMissingInput}
	}
	t, err := sheet.Load(data, headerRows)
	if err != nil {
		return nil, &JoinInputError{Input: name, Err: err}
	}
	return t, nil
}

// JoinRules are the literal values written to rows with a blank code.
type JoinRules struct {
	Alphabet    string
	Default     sheet.Cell
	DefaultDate sheet.Cell
}

// DefaultJoinRules returns the PINFL replacement constants.
func DefaultJoinRules() JoinRules {
	return JoinRules{
		Alphabet:    PinflAlphabet,
		Default:     sheet.Str(PinflDefault),
		DefaultDate: sheet.Str(PinflDefaultDate),
	}
}

// Mapping maps identity keys to replacement values.
type Mapping map[string]sheet.Cell

// BuildMapping reads key/value pairs from the results table. Later rows win
// over earlier rows with the same key; blank keys are skipped.
func BuildMapping(t *sheet.Table, l schema.PinflResults) Mapping {
	m := make(Mapping, t.Len())
	for r := 0; r < t.Len(); r++ {
		key := IdentityKey(t.Cell(r, l.JoinKey.Index))
		if key == "" {
			continue
		}
		m[key] = t.Cell(r, l.JoinValue.Index)
	}
	return m
}

// Replacement is one substitution made by ReplacePinfl.
type Replacement struct {
	Row int        // table row, 0-based
	Key string     // normalized code that was looked up
	Old sheet.Cell // cell value before replacement
	New sheet.Cell // mapped value written
}

// ReplacementLog lists substitutions in row-scan order.
type ReplacementLog []Replacement

// WriteTo writes one "old → new" line per replacement, using the
// normalized code as the old value.
func (l ReplacementLog) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	for _, r := range l {
		k, err := fmt.Fprintf(bw, "%s → %s\n", r.Key, r.New.Text())
		n += int64(k)
		if err != nil {
			return n, err
		}
	}
	return n, bw.Flush()
}

// JoinResult is the outcome of ReplacePinfl.
type JoinResult struct {
	Table     *sheet.Table
	Log       ReplacementLog
	Defaulted int // blank codes filled with the default value
	Misses    int // eligible codes with no mapping
	Ignored   int // codes outside the alphabet
}

// ReplacePinfl replaces check codes in the source table with mapped values.
//
// For every data row: a blank code gets the default value and, unless the
// neighbouring date cell is covered by a merged region, the default date. A
// code whose normalized form starts with an alphabet character is looked up;
// a hit replaces the cell and is logged, a miss (including a blank mapped
// value) leaves the row alone. Other codes are ignored.
func ReplacePinfl(src *sheet.Table, m Mapping, l schema.Register, rules JoinRules) (*JoinResult, error) {
	res := &JoinResult{}
	var edits []sheet.Edit

	for r := 0; r < src.Len(); r++ {
		c := src.Cell(r, l.CheckCode.Index)

		if c.IsBlank() {
			edits = append(edits, sheet.Set(r, l.CheckCode.Index, rules.Default))
			if !src.IsPartOfMergedRegion(r, l.ReplacementDate.Index) {
				edits = append(edits, sheet.Set(r, l.ReplacementDate.Index, rules.DefaultDate))
			}
			res.Defaulted++
			continue
		}

		key := IdentityKey(c)
		if !leadsWith(key, rules.Alphabet) {
			res.Ignored++
			continue
		}

		v, ok := m[key]
		if !ok || v.IsBlank() {
			res.Misses++
			continue
		}

		edits = append(edits, sheet.Set(r, l.CheckCode.Index, v))
		res.Log = append(res.Log, Replacement{Row: r, Key: key, Old: c, New: v})
	}

	out, err := src.With(edits...)
	if err != nil {
		return nil, err
	}
	res.Table = out

	slog.Debug("pinfl replacement applied",
		"rows", src.Len(),
		"replaced", len(res.Log),
		"defaulted", res.Defaulted,
		"misses", res.Misses,
	)
	return res, nil
}
