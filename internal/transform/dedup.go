package transform

import (
	"github.com/JonMunkholm/ecpack/internal/schema"
	"github.com/JonMunkholm/ecpack/internal/sheet"
)

// Dedupe scans rows in order and blanks the configured column range of every
// row whose record key was already seen. The first occurrence of a key is
// kept; the row count and order never change. Rows with a blank key are
// left alone and do not enter the seen set.
func Dedupe(t *sheet.Table, l schema.PackageRegister) (*sheet.Table, int) {
	rows := t.Rows()
	seen := make(map[string]struct{}, len(rows))
	blanked := 0

	for _, r := range rows {
		var key string
		if l.RecordKey.Index < len(r) {
			key = IdentityKey(r[l.RecordKey.Index])
		}
		if key == "" {
			continue
		}
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			continue
		}
		for c := l.BlankFrom.Index; c <= l.BlankTo.Index && c < len(r); c++ {
			r[c] = sheet.Cell{}
		}
		blanked++
	}

	return sheet.New(t.SheetName(), rows), blanked
}
