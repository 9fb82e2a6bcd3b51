package transform

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/JonMunkholm/ecpack/internal/schema"
	"github.com/JonMunkholm/ecpack/internal/sheet"
)

// Passport macro constants.
const (
	PassportAlphabet    = "123456789MRTGKZECUVFBNDGHJLKQIP"
	PassportReplacement = "AB0663236"
	PassportDate        = "23,12,1988"
)

// MacroRules are the literal values the passport macro writes.
type MacroRules struct {
	Alphabet    string
	Replacement sheet.Cell
	Date        sheet.Cell
}

// DefaultMacroRules returns the passport macro constants.
func DefaultMacroRules() MacroRules {
	return MacroRules{
		Alphabet:    PassportAlphabet,
		Replacement: sheet.Str(PassportReplacement),
		Date:        sheet.Str(PassportDate),
	}
}

// leadsWith reports whether the first character of s, upper-cased, is in
// alphabet.
func leadsWith(s, alphabet string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return false
	}
	return strings.ContainsRune(alphabet, unicode.ToUpper(r))
}

// RewritePassports overwrites the check code and the date next to it on
// every data row whose check code is non-blank and starts with a character
// from the macro alphabet. Blank codes and codes outside the alphabet are
// left untouched. The values written are constants, not derived from the
// row.
func RewritePassports(t *sheet.Table, l schema.Register, rules MacroRules) (*sheet.Table, int, error) {
	var edits []sheet.Edit
	rewritten := 0

	for r := 0; r < t.Len(); r++ {
		c := t.Cell(r, l.CheckCode.Index)
		if c.IsBlank() {
			continue
		}
		if !leadsWith(strings.TrimSpace(c.Text()), rules.Alphabet) {
			continue
		}
		edits = append(edits,
			sheet.Set(r, l.CheckCode.Index, rules.Replacement),
			sheet.Set(r, l.ReplacementDate.Index, rules.Date),
		)
		rewritten++
	}

	out, err := t.With(edits...)
	if err != nil {
		return nil, 0, err
	}
	return out, rewritten, nil
}
