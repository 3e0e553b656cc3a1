// Package pii detects and masks email addresses and phone-like digit
// runs in free text. ISO-8601 shaped strings are explicitly excluded
// from phone detection so timestamp columns never raise the phone flag.
package pii

import (
	"regexp"
	"strings"
)

var (
	emailRe = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)

	// phone body: leading optional +, then digits with tolerated
	// separators, at least 10 characters between the anchor digits
	phoneBodyRe = regexp.MustCompile(`\+?\d[\d\-\s().]{8,}\d`)

	isoDateTimeRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T`)
	isoDateRe     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

	nonDigitRe = regexp.MustCompile(`\D`)
)

func isISODateLike(text string) bool {
	return isoDateTimeRe.MatchString(text) || isoDateRe.MatchString(text)
}

// ContainsEmail reports whether the value holds an email-shaped substring.
func ContainsEmail(value string) bool {
	return emailRe.MatchString(value)
}

// ContainsPhone reports whether the value holds a phone-like digit run
// of 10 to 15 digits. ISO dates and timestamps never match.
func ContainsPhone(value string) bool {
	text := strings.TrimSpace(value)
	if text == "" {
		return false
	}
	if isISODateLike(text) {
		return false
	}
	digits := nonDigitRe.ReplaceAllString(text, "")
	if len(digits) < 10 || len(digits) > 15 {
		return false
	}
	return phoneBodyRe.MatchString(text)
}

// MaskEmail keeps the first and last character of the local part. Local
// parts of two or fewer characters are fully starred.
func MaskEmail(value string) string {
	at := strings.Index(value, "@")
	if at <= 0 || at == len(value)-1 {
		return value
	}
	local, domain := value[:at], value[at+1:]
	var masked string
	if len(local) <= 2 {
		masked = strings.Repeat("*", len(local))
	} else {
		masked = local[:1] + strings.Repeat("*", len(local)-2) + local[len(local)-1:]
	}
	return masked + "@" + domain
}

// MaskPhone stars every digit except the final two.
func MaskPhone(value string) string {
	digits := nonDigitRe.ReplaceAllString(value, "")
	if len(digits) <= 4 {
		return strings.Repeat("*", len(digits))
	}
	return strings.Repeat("*", len(digits)-2) + digits[len(digits)-2:]
}

// ScanColumn scans every value of one column and reports whether any
// email or phone pattern occurred. Scanning short-circuits once both
// flags are set.
func ScanColumn(values []string) (email bool, phone bool) {
	for _, value := range values {
		if !email && ContainsEmail(value) {
			email = true
		}
		if !phone && ContainsPhone(value) {
			phone = true
		}
		if email && phone {
			break
		}
	}
	return email, phone
}

// MaybeMask replaces the first detected email and/or phone substring in
// the value with its masked form.
func MaybeMask(value string, maskEmail, maskPhone bool) string {
	text := value
	if maskEmail && ContainsEmail(text) {
		if match := emailRe.FindString(text); match != "" {
			text = strings.Replace(text, match, MaskEmail(match), 1)
		}
	}
	if maskPhone && ContainsPhone(text) {
		if match := phoneBodyRe.FindString(text); match != "" {
			text = strings.Replace(text, match, MaskPhone(match), 1)
		}
	}
	return text
}
