package utils

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	disallowedSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
	duplicateDashes     = regexp.MustCompile(`-{2,}`)
)

// StringHelper provides string utility functions.
type StringHelper struct{}

// NewStringHelper creates a new string helper.
func NewStringHelper() *StringHelper {
	return &StringHelper{}
}

// TrimWhitespace removes leading and trailing whitespace.
func (s *StringHelper) TrimWhitespace(str string) string {
	return strings.TrimSpace(str)
}

// NormalizeWhitespace replaces multiple whitespace with single space.
func (s *StringHelper) NormalizeWhitespace(str string) string {
	return strings.Join(strings.Fields(str), " ")
}

// TruncateString truncates string to max length.
func (s *StringHelper) TruncateString(str string, maxLength int) string {
	if len(str) <= maxLength {
		return str
	}

	return str[:maxLength] + "..."
}

// Slugify converts text into a lowercase, dash separated ASCII identifier
// safe for URLs and file names. Accented letters are folded to their base
// letter; any other run of non alphanumerics becomes a single dash.
func Slugify(text string) string {
	folding := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	folded, _, err := transform.String(folding, text)
	if err != nil {
		folded = text
	}

	slug := strings.ToLower(folded)
	slug = disallowedSlugChars.ReplaceAllString(slug, "-")
	slug = duplicateDashes.ReplaceAllString(slug, "-")

	return strings.Trim(slug, "-")
}

// TitleCaseWord upper-cases the first letter of every run of letters in
// word and lower-cases the rest, so "o'neil" becomes "O'Neil".
func TitleCaseWord(word string) string {
	var sb strings.Builder

	sb.Grow(len(word))

	prevLetter := false

	for _, r := range word {
		switch {
		case unicode.IsLetter(r) && !prevLetter:
			sb.WriteRune(unicode.ToUpper(r))
		case unicode.IsLetter(r):
			sb.WriteRune(unicode.ToLower(r))
		default:
			sb.WriteRune(r)
		}

		prevLetter = unicode.IsLetter(r)
	}

	return sb.String()
}

// CountUpper returns the number of upper-case letters in s.
func CountUpper(s string) int {
	n := 0

	for _, r := range s {
		if unicode.IsUpper(r) {
			n++
		}
	}

	return n
}
