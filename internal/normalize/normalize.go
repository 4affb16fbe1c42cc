// Package normalize implements the identifier and integer normalization
// rules shared by every stage of the allocation engine: Persian/Arabic
// digit folding, zero-width stripping, and the natural-sort decomposition
// used to give mentor IDs a total order.
package normalize

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const zeroWidthJoiner = '‌'

// digitFold maps Persian and Arabic-Indic digits to ASCII digits.
var digitFold = map[rune]rune{
	'۰': '0', '۱': '1', '۲': '2', '۳': '3', '۴': '4',
	'۵': '5', '۶': '6', '۷': '7', '۸': '8', '۹': '9',
	'٠': '0', '١': '1', '٢': '2', '٣': '3', '٤': '4',
	'٥': '5', '٦': '6', '٧': '7', '٨': '8', '٩': '9',
}

// letterFold maps the Arabic presentation forms of two Persian letters to
// their canonical Persian codepoints.
var letterFold = map[rune]rune{
	'ي': 'ی',
	'ك': 'ک',
}

// Text applies the identifier-normalization pipeline shared by mentor IDs
// and national codes: NFKC Unicode normalization, digit and letter folding,
// zero-width-joiner stripping, and outer whitespace trimming. It never
// removes interior separators — that is the caller's job when the context
// calls for it (see NationalCode).
func Text(s string) string {
	s = norm.NFKC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == zeroWidthJoiner {
			continue
		}
		if folded, ok := digitFold[r]; ok {
			b.WriteRune(folded)
			continue
		}
		if folded, ok := letterFold[r]; ok {
			b.WriteRune(folded)
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// NationalCode normalizes a national-code string: the shared Text pipeline
// plus stripping the separators ("-", space) that are common in
// hand-entered national codes but never part of the code's value.
func NationalCode(s string) string {
	s = Text(s)
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// Int coerces a string join-key value to an integer after applying the
// shared digit-folding pipeline. ok is false when the normalized string is
// not a valid integer.
func Int(s string) (value int, ok bool) {
	folded := Text(s)
	if folded == "" {
		return 0, false
	}
	n, err := strconv.Atoi(folded)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SortKey is the total-order key for a mentor ID: (prefix, numeric
// suffix, raw normalized string). Two keys compare equal only when all
// three fields are equal; Less implements the tie-break chain from
// spec §4.2 — lexicographic prefix, then numeric suffix, then raw string.
type SortKey struct {
	Prefix string
	Suffix int64
	Raw    string
}

// MentorSortKey decomposes a normalized mentor ID into its natural sort
// key: the longest non-digit prefix followed by a trailing run of digits.
// IDs with no trailing digit run get (whole_string, 0, whole_string).
func MentorSortKey(normalizedID string) SortKey {
	runes := []rune(normalizedID)
	end := len(runes)
	start := end
	for start > 0 && unicode.IsDigit(runes[start-1]) {
		start--
	}
	if start == end {
		// No trailing digit run at all.
		return SortKey{Prefix: normalizedID, Suffix: 0, Raw: normalizedID}
	}
	prefix := string(runes[:start])
	digits := string(runes[start:end])
	// digits is a run of Unicode decimal digits; when ParseInt rejects it
	// (a run too long for int64, or non-ASCII digits) the suffix falls back
	// to 0 and the raw string decides the order.
	suffix, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		suffix = 0
	}
	return SortKey{Prefix: prefix, Suffix: suffix, Raw: normalizedID}
}

// Less implements the total order: prefix lexicographic, then suffix
// numeric, then raw string lexicographic.
func (k SortKey) Less(other SortKey) bool {
	if k.Prefix != other.Prefix {
		return k.Prefix < other.Prefix
	}
	if k.Suffix != other.Suffix {
		return k.Suffix < other.Suffix
	}
	return k.Raw < other.Raw
}

// SchoolTokens splits a delimiter-joined school-code string on the common
// separators (",", ";", "|") and trims each token. Tokens that are empty
// after trimming are dropped here; wildcard tokens such as "0" or "-" are
// kept and left to the caller's policy flags.
func SchoolTokens(s string) []string {
	if s == "" {
		return nil
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '|'
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		t := strings.TrimSpace(Text(f))
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}
