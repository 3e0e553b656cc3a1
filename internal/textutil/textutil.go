package textutil

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	wordBreakRe = regexp.MustCompile(`[^0-9a-zA-Z]+`)
	snakeRe     = regexp.MustCompile(`__+`)

	// NFD decomposition followed by removal of combining marks strips
	// diacritics (e.g. "Valoare Totală" -> "Valoare Totala").
	deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// StripDiacritics transliterates accented characters to their ASCII base form.
func StripDiacritics(value string) string {
	out, _, err := transform.String(deaccent, value)
	if err != nil {
		return value
	}
	return out
}

// ToSnakeCase lowercases a string, strips diacritics, and joins the
// alphanumeric segments with underscores.
func ToSnakeCase(value string) string {
	lowered := strings.ToLower(StripDiacritics(value))
	parts := wordBreakRe.Split(lowered, -1)
	kept := parts[:0]
	for _, segment := range parts {
		if segment != "" {
			kept = append(kept, segment)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	snake := strings.Join(kept, "_")
	snake = snakeRe.ReplaceAllString(snake, "_")
	return strings.Trim(snake, "_")
}

// NormalizeColumnName converts a raw header cell into a stable column
// identifier, falling back to "column" for empty results.
func NormalizeColumnName(name string) string {
	if snake := ToSnakeCase(name); snake != "" {
		return snake
	}
	return "column"
}

// DedupeNames suffixes repeated names so every column identifier is
// unique: col, col_2, col_3, ...
func DedupeNames(names []string) []string {
	seen := make(map[string]int, len(names))
	result := make([]string, 0, len(names))
	for _, name := range names {
		base := name
		if base == "" {
			base = "column"
		}
		count := seen[base]
		if count == 0 {
			result = append(result, base)
		} else {
			result = append(result, fmt.Sprintf("%s_%d", base, count+1))
		}
		seen[base] = count + 1
	}
	return result
}
