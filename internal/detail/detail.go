// Package detail extracts user statistics from a page snapshot using
// per-field regular expressions.
package detail

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Field describes how to extract one value.
type Field struct {
	Regex *regexp.Regexp
	// Group is the capture group holding the value; 0 means the whole match.
	Group int
	// Handle post-processes the raw value, e.g. Infinite.
	Handle func(string) string
}

// Spec maps output names to fields.
type Spec map[string]Field

// RawField is the config form of Field.
type RawField struct {
	Regex    string `mapstructure:"regex" yaml:"regex"`
	Group    int    `mapstructure:"group" yaml:"group"`
	Infinite bool   `mapstructure:"infinite" yaml:"infinite"`
}

// Compile builds a Spec from config.
func Compile(raw map[string]RawField) (Spec, error) {
	spec := make(Spec, len(raw))
	for name, rf := range raw {
		re, err := regexp.Compile("(?s)" + rf.Regex)
		if err != nil {
			return nil, fmt.Errorf("detail %s: %w", name, err)
		}
		f := Field{Regex: re, Group: rf.Group}
		if rf.Infinite {
			f.Handle = Infinite
		}
		spec[name] = f
	}
	return spec, nil
}

// Extract applies spec to content. Values have thousands separators removed.
// Fields that do not match are reported in the error; matched ones are still returned.
func Extract(content string, spec Spec) (map[string]string, error) {
	out := make(map[string]string, len(spec))
	var missing []string
	for name, f := range spec {
		m := f.Regex.FindStringSubmatch(content)
		if m == nil || f.Group >= len(m) {
			missing = append(missing, name)
			continue
		}
		v := strings.TrimSpace(strings.ReplaceAll(m[f.Group], ",", ""))
		if f.Handle != nil {
			v = f.Handle(v)
		}
		out[name] = v
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return out, fmt.Errorf("details not found: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// Infinite normalises the various "no downloads yet" ratio markers to "inf".
func Infinite(v string) string {
	switch v {
	case "---", "∞", "Inf.", "无限", "無限":
		return "inf"
	}
	return v
}
