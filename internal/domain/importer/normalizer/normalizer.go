// Package normalizer canonicalizes header and cell text from academic
// spreadsheet exports. Header resolution and subject matching both go through
// the same key function so equivalent labels compare equal no matter how the
// source file spelled them.
package normalizer

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldTransformer = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// spaceLike covers regular whitespace plus NBSP, zero-width characters and the
// BOM, all of which show up in real exports.
var spaceLike = regexp.MustCompile(`[\s\x{00A0}\x{200B}-\x{200D}\x{FEFF}]+`)

var (
	noisePrefix   = regexp.MustCompile(`^(diem|diemmon|mon|hp|hocphan|tbc|tbcht|tbcht4|gpa|xeploai)+`)
	parenthetical = regexp.MustCompile(`\(.*?\)`)
	attemptSuffix = regexp.MustCompile(`(lan|thi|hk)\d+$`)
)

// Fold strips diacritics, lowercases and trims the string. Vietnamese đ/Đ do
// not decompose under NFKD and are folded explicitly.
func Fold(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	folded = strings.Map(func(r rune) rune {
		switch r {
		case 'đ', 'Đ':
			return 'd'
		}
		return r
	}, folded)
	return strings.ToLower(strings.TrimSpace(folded))
}

// Key collapses a label to its comparison key: folded text with every
// whitespace run and separator character removed. Key is idempotent:
// Key(Key(s)) == Key(s).
func Key(s string) string {
	k := Fold(s)
	k = spaceLike.ReplaceAllString(k, "")
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', '.', '/':
			return -1
		}
		return r
	}, k)
}

// Tokens splits the folded form of s into word tokens. Tokenization happens
// before separator stripping, otherwise multi-word names degenerate into a
// single token and the overlap bonus loses its meaning.
func Tokens(s string) []string {
	folded := Fold(s)
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// SubjectKey cleans a subject-candidate header down to a catalog-comparable
// key: parenthetical notes and trailing attempt/term markers are dropped,
// generic score/GPA prefixes are stripped, and the common "LT" abbreviation
// is expanded before keying.
func SubjectKey(s string) string {
	cleaned := parenthetical.ReplaceAllString(s, "")
	k := Key(cleaned)
	k = noisePrefix.ReplaceAllString(k, "")
	k = attemptSuffix.ReplaceAllString(k, "")
	if strings.HasPrefix(k, "lt") && len(k) > 2 {
		k = "laptrinh" + k[2:]
	}
	return k
}
