package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// foldTransform decomposes accented characters and strips combining marks so
// stylized IGNs ("Pokë", full-width latin) collapse to plain ASCII-ish forms.
var foldTransform = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// ocrConfusion maps glyphs the extractor systematically confuses in the
// standings font onto one canonical rune per confusion class.
var ocrConfusion = map[rune]rune{
	'l': '1',
	'i': '1',
	'|': '1',
	'o': '0',
	's': '5',
	'b': '8',
}

// Normalize reduces a raw extracted name to a matching key: unicode folding,
// lowercase, non-alphanumerics stripped, then OCR confusion substitutions.
// Normalizing an already-normalized string is a no-op.
func Normalize(name string) string {
	s := width.Fold.String(strings.TrimSpace(name))
	if folded, _, err := transform.String(foldTransform, s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)

	// "rn" reads as "m" at this font size; collapse before the rune pass.
	s = strings.ReplaceAll(s, "rn", "m")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if sub, ok := ocrConfusion[r]; ok {
			b.WriteRune(sub)
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Lowered is the tier-2 key: trimmed and lowercased but otherwise untouched.
// Symbol-only names normalize to the empty string and only match here.
func Lowered(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
