package api

import (
	"strconv"
	"strings"

	"github.com/ignite/table-engine/internal/presets"
)

// parseLooseBool accepts the spellings webhook senders actually use.
// The second return reports whether the value was recognized at all.
func parseLooseBool(value string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true, true
	case "false", "0", "no", "off":
		return false, true
	}
	return false, false
}

// optionsFromGetter builds per-request options from string key lookup,
// which covers query params and multipart form fields alike. Unknown
// or malformed values are ignored rather than rejected.
func optionsFromGetter(get func(string) string) presets.Options {
	var opts presets.Options
	if v := get("adapter"); v != "" {
		opts.Adapter = &v
	}
	if v := get("source_hint"); v != "" {
		opts.SourceHint = &v
	}
	if v := get("sheet_name"); v != "" {
		opts.SheetName = &v
	}
	if v := get("decimal_style"); v != "" {
		opts.DecimalStyle = &v
	}
	if v := get("enable_llm"); v != "" {
		if b, ok := parseLooseBool(v); ok {
			opts.EnableLLM = &b
		}
	}
	if v := get("dayfirst"); v != "" {
		if b, ok := parseLooseBool(v); ok {
			opts.DayFirst = &b
		}
	}
	if v := get("dry_run"); v != "" {
		if b, ok := parseLooseBool(v); ok {
			opts.DryRun = &b
		}
	}
	if v := get("sync"); v != "" {
		if b, ok := parseLooseBool(v); ok {
			opts.Sync = &b
		}
	}
	if v := get("header_row"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			opts.HeaderRow = &n
		}
	}
	return opts
}

// optionsFromJSON builds options from a decoded JSON object, tolerating
// both native and string-typed values.
func optionsFromJSON(raw map[string]any) presets.Options {
	str := func(key string) string {
		switch v := raw[key].(type) {
		case string:
			return v
		case bool:
			return strconv.FormatBool(v)
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
		return ""
	}
	return optionsFromGetter(str)
}
