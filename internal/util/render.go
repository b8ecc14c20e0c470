package util

import (
	"os"
	"regexp"
)

// varRe matches ${NAME} and ${NAME:-default}.
var varRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// Expand replaces ${NAME} references in s using lookup. ${NAME:-def} yields
// def when NAME is empty. A bare "$" is left alone so regex anchors and
// prices survive.
func Expand(s string, lookup func(string) string) string {
	if lookup == nil {
		lookup = os.Getenv
	}
	return varRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := varRe.FindStringSubmatch(m)
		if v := lookup(sub[1]); v != "" {
			return v
		}
		return sub[2]
	})
}

// ExpandAny returns a copy of in with Expand applied to every string inside
// maps and slices. Other scalars are returned as-is.
func ExpandAny(in any, lookup func(string) string) any {
	switch t := in.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, v := range t {
			m[k] = ExpandAny(v, lookup)
		}
		return m
	case []any:
		arr := make([]any, len(t))
		for i := range t {
			arr[i] = ExpandAny(t[i], lookup)
		}
		return arr
	case string:
		return Expand(t, lookup)
	default:
		return in
	}
}
