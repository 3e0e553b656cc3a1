// Package coerce parses locale-ambiguous numeric and date text into
// concrete values. Both coercers are tolerant by design: anything that
// cannot be parsed reports failure instead of an error, so callers can
// count successes across a column.
package coerce

import (
	"regexp"
	"strconv"
	"strings"
)

// DecimalStyle controls how an ambiguous decimal separator is resolved.
type DecimalStyle string

const (
	DecimalAuto  DecimalStyle = "auto"
	DecimalComma DecimalStyle = "comma"
	DecimalDot   DecimalStyle = "dot"
)

// ParseDecimalStyle maps a request parameter onto a DecimalStyle,
// defaulting to auto for anything unrecognized.
func ParseDecimalStyle(value string) DecimalStyle {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "comma":
		return DecimalComma
	case "dot":
		return DecimalDot
	default:
		return DecimalAuto
	}
}

var (
	currencyRe   = regexp.MustCompile(`(?i)[€$£¥₽₴₺₦]|\b(?:lei|ron|usd|eur|gbp)\b`)
	nonNumericRe = regexp.MustCompile(`[^0-9.+-]`)
)

// thousands separators tolerated between two digits
func isThousandsSep(r rune) bool {
	switch r {
	case ' ', ' ', '\'', '`', '·', '_':
		return true
	}
	return false
}

// NormalizeNumericString strips currency markers, percent signs, and
// inter-digit thousands separators, leaving digits, signs, commas and dots.
func NormalizeNumericString(value string) string {
	cleaned := strings.TrimSpace(value)
	cleaned = strings.ReplaceAll(cleaned, " ", " ")
	cleaned = currencyRe.ReplaceAllString(cleaned, "")
	cleaned = strings.ReplaceAll(cleaned, "%", "")
	cleaned = dropInterDigitSeparators(cleaned)
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	return cleaned
}

func dropInterDigitSeparators(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range runes {
		if isThousandsSep(r) && i > 0 && i < len(runes)-1 && isDigit(runes[i-1]) && isDigit(runes[i+1]) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

// ParseNumber parses a numeric token such as "1.234,56 lei", "12,345.67"
// or "10%". When style is DecimalAuto and both separators appear, the one
// occurring later in the string is the decimal separator; a lone comma is
// treated as decimal. An explicit style overrides inference. The second
// return value reports whether the token was a number at all.
func ParseNumber(value string, style DecimalStyle) (float64, bool) {
	text := strings.TrimSpace(value)
	if text == "" {
		return 0, false
	}

	percent := strings.HasSuffix(text, "%")

	normalized := NormalizeNumericString(text)
	if normalized == "" {
		return 0, false
	}

	decimalComma := false
	switch style {
	case DecimalComma:
		decimalComma = true
	case DecimalDot:
		decimalComma = false
	default:
		hasComma := strings.Contains(normalized, ",")
		hasDot := strings.Contains(normalized, ".")
		switch {
		case hasComma && hasDot:
			decimalComma = strings.LastIndex(normalized, ",") > strings.LastIndex(normalized, ".")
		case hasComma:
			decimalComma = true
		}
	}

	if decimalComma {
		normalized = strings.ReplaceAll(normalized, ".", "")
		normalized = strings.ReplaceAll(normalized, ",", ".")
	} else {
		normalized = strings.ReplaceAll(normalized, ",", "")
	}

	normalized = nonNumericRe.ReplaceAllString(normalized, "")
	switch normalized {
	case "", ".", "+", "-", "-.", "+.":
		return 0, false
	}

	number, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, false
	}
	if percent {
		number /= 100
	}
	return number, true
}
