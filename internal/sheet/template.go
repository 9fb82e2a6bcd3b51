package sheet

import (
	"fmt"
	"os"
)

// Template layout: three header rows, data from row 4, column A.
const (
	TemplateDataRow = 3
	TemplateDataCol = 0
)

// Template is a read-only output layout that data rows are written into.
// Every Fill starts from the pristine template, so one Template serves any
// number of output files.
type Template struct {
	base     *Table
	startRow int
	startCol int
}

// LoadTemplate reads a template workbook from disk.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}
	return ParseTemplate(data)
}

// ParseTemplate parses template bytes using the standard data offset.
func ParseTemplate(data []byte) (*Template, error) {
	base, err := Load(data, 0)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	return &Template{base: base, startRow: TemplateDataRow, startCol: TemplateDataCol}, nil
}

// StartRow returns the 0-based row of the first data row.
func (tp *Template) StartRow() int { return tp.startRow }

// SheetName returns the sheet rows are written into.
func (tp *Template) SheetName() string { return tp.base.SheetName() }

// Fill returns a copy of the template with rows written row-major from the
// data offset, keeping their order and column order. Empty cells are
// written too so nothing left in the template's data area survives.
func (tp *Template) Fill(rows []Row) (*Table, error) {
	n := 0
	for _, r := range rows {
		n += len(r)
	}
	edits := make([]Edit, 0, n)
	for i, r := range rows {
		for j, c := range r {
			edits = append(edits, Set(tp.startRow+i, tp.startCol+j, c))
		}
	}
	out, err := tp.base.With(edits...)
	if err != nil {
		return nil, fmt.Errorf("fill template: %w", err)
	}
	return out, nil
}
