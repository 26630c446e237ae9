package api

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Daemon replies are decoded into generic JSON values. The helpers below read
// them with "value or default" semantics: a missing, null, false, zero, NaN,
// or empty-string field takes the default.

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case string:
		return t != ""
	default:
		return true
	}
}

func or(rec map[string]any, key string, def any) any {
	if v := rec[key]; truthy(v) {
		return v
	}
	return def
}

func copyPresent(dst map[string]any, dstKey string, src map[string]any, srcKey string) {
	if v, ok := src[srcKey]; ok {
		dst[dstKey] = v
	}
}

// sectionRecords returns the object records of data[section].
func sectionRecords(data any, section string) []map[string]any {
	reply, ok := data.(map[string]any)
	if !ok {
		return nil
	}
	list, ok := reply[section].([]any)
	if !ok {
		return nil
	}
	records := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if rec, ok := item.(map[string]any); ok {
			records = append(records, rec)
		}
	}
	return records
}

func firstRecord(data any, section string) map[string]any {
	records := sectionRecords(data, section)
	if len(records) == 0 {
		return nil
	}
	return records[0]
}

func mapRecords(data any, section string, fn func(map[string]any) any) []any {
	records := sectionRecords(data, section)
	out := make([]any, 0, len(records))
	for _, rec := range records {
		out = append(out, fn(rec))
	}
	return out
}

// paramString renders a request body value the way it is spliced into a
// pipe-delimited command parameter.
func paramString(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			if item != nil {
				parts[i] = paramString(item)
			}
		}
		return strings.Join(parts, ",")
	default:
		return "[object Object]"
	}
}

var spacedRune = regexp.MustCompile(`\s+[a-zA-Z0-9]`)

// camelKey turns a cgminer field name like "Last Well" into "lastWell".
func camelKey(key string, stripStar bool) string {
	if stripStar {
		key = strings.TrimPrefix(key, "*")
	}
	key = spacedRune.ReplaceAllStringFunc(key, func(m string) string {
		return strings.ToUpper(m[len(m)-1:])
	})
	r, size := utf8.DecodeRuneInString(key)
	if size == 0 {
		return key
	}
	return string(unicode.ToLower(r)) + key[size:]
}
