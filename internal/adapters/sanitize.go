package adapters

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	sanitizePattern = regexp.MustCompile(`[^A-Za-z0-9_]`)
	collapsePattern = regexp.MustCompile(`_+`)
)

// SanitizeFieldName converts an arbitrary column name into an
// identifier safe for NDJSON keys and warehouse columns.
func SanitizeFieldName(name string) string {
	sanitized := sanitizePattern.ReplaceAllString(name, "_")
	sanitized = collapsePattern.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "field"
	}
	if sanitized[0] >= '0' && sanitized[0] <= '9' {
		sanitized = "_" + sanitized
	}
	return strings.ToLower(sanitized)
}

// BuildFieldMap sanitizes every column name and suffixes collisions so
// the mapping stays injective.
func BuildFieldMap(columns []string) map[string]string {
	used := map[string]bool{}
	mapping := make(map[string]string, len(columns))
	for _, column := range columns {
		base := SanitizeFieldName(column)
		candidate := base
		for n := 1; used[candidate]; n++ {
			candidate = fmt.Sprintf("%s_%d", base, n)
		}
		used[candidate] = true
		mapping[column] = candidate
	}
	return mapping
}
