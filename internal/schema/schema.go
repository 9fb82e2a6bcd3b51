// Package schema names the spreadsheet columns the batch jobs read and write.
//
// The business rules address cells by position ("column 5 is the check
// cell"). Each document kind gets a layout that maps those positions to
// named fields, and every job validates its layout once before touching a
// row so the algorithms never see a bad index.
package schema

import (
	"fmt"
	"strings"
)

// ConfigError reports an invalid layout, column index, or chunk size.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// Column is a 0-based column position with the name used in logs and errors.
type Column struct {
	Name  string
	Index int
}

// Letter returns the spreadsheet column letter (0 -> "A", 26 -> "AA").
func (c Column) Letter() string {
	n := c.Index + 1
	if n <= 0 {
		return ""
	}
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}

func (c Column) String() string {
	return fmt.Sprintf("%s (%s)", c.Name, c.Letter())
}

// validator accumulates layout problems so one Validate call reports them all.
type validator struct {
	problems []string
}

func (v *validator) column(c Column) {
	if c.Index < 0 {
		v.problems = append(v.problems, fmt.Sprintf("%s has negative index %d", c.Name, c.Index))
	}
}

func (v *validator) distinct(a, b Column) {
	if a.Index == b.Index {
		v.problems = append(v.problems, fmt.Sprintf("%s and %s share column %d", a.Name, b.Name, a.Index))
	}
}

func (v *validator) headerRows(n int) {
	if n < 0 {
		v.problems = append(v.problems, fmt.Sprintf("header rows %d is negative", n))
	}
}

func (v *validator) err(layout string) error {
	if len(v.problems) == 0 {
		return nil
	}
	return &ConfigError{Field: layout, Reason: strings.Join(v.problems, "; ")}
}

// PackageRegister is the EC package register that is deduplicated and split
// into template-sized chunks.
type PackageRegister struct {
	HeaderRows int
	RecordKey  Column // identity of a record; repeats are blanked
	Code       Column // numeric code that lost its leading zero
	BlankFrom  Column // first column cleared on a repeated record
	BlankTo    Column // last column cleared on a repeated record (inclusive)
}

// DefaultPackageRegister returns the register layout the templates expect.
func DefaultPackageRegister() PackageRegister {
	return PackageRegister{
		HeaderRows: 3,
		RecordKey:  Column{Name: "record key", Index: 0},
		Code:       Column{Name: "code", Index: 10},
		BlankFrom:  Column{Name: "blank from", Index: 0},
		BlankTo:    Column{Name: "blank to", Index: 7},
	}
}

// Validate checks every column index and the blank range.
func (l PackageRegister) Validate() error {
	var v validator
	v.headerRows(l.HeaderRows)
	v.column(l.RecordKey)
	v.column(l.Code)
	v.column(l.BlankFrom)
	v.column(l.BlankTo)
	if l.BlankFrom.Index > l.BlankTo.Index {
		v.problems = append(v.problems, fmt.Sprintf("blank range %d..%d is reversed", l.BlankFrom.Index, l.BlankTo.Index))
	}
	return v.err("package register layout")
}

// Register is a passport register: the macro rewrites it in place and the
// PINFL join uses it as the source table.
type Register struct {
	HeaderRows      int
	CheckCode       Column // document code whose leading character is tested
	ReplacementDate Column // date cell written next to a replaced code
}

// DefaultRegister returns the register layout used by both the passport
// macro and the PINFL replacement.
func DefaultRegister() Register {
	return Register{
		HeaderRows:      1,
		CheckCode:       Column{Name: "check code", Index: 4},
		ReplacementDate: Column{Name: "replacement date", Index: 5},
	}
}

// Validate checks the register columns.
func (l Register) Validate() error {
	var v validator
	v.headerRows(l.HeaderRows)
	v.column(l.CheckCode)
	v.column(l.ReplacementDate)
	v.distinct(l.CheckCode, l.ReplacementDate)
	return v.err("register layout")
}

// PinflResults is the lookup workbook that maps passport numbers to PINFL.
type PinflResults struct {
	HeaderRows int
	JoinKey    Column
	JoinValue  Column
}

// DefaultPinflResults returns the results layout. The lookup sheet is read
// without skipping any rows.
func DefaultPinflResults() PinflResults {
	return PinflResults{
		HeaderRows: 0,
		JoinKey:    Column{Name: "join key", Index: 8},
		JoinValue:  Column{Name: "join value", Index: 9},
	}
}

// Validate checks the results columns.
func (l PinflResults) Validate() error {
	var v validator
	v.headerRows(l.HeaderRows)
	v.column(l.JoinKey)
	v.column(l.JoinValue)
	v.distinct(l.JoinKey, l.JoinValue)
	return v.err("pinfl results layout")
}

// ValidateChunkSize rejects non-positive chunk sizes.
func ValidateChunkSize(n int) error {
	if n <= 0 {
		return &ConfigError{Field: "chunk size", Reason: fmt.Sprintf("must be positive, got %d", n)}
	}
	return nil
}
