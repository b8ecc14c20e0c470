package workflow

import (
	"regexp"

	"github.com/tidwall/gjson"
)

// Pattern is a success signature. Either Regex or JSONPath is set.
type Pattern struct {
	Regex *regexp.Regexp
	// Group selects the capture group used as the message. With Group 0 the
	// message is the text fragment around the match, bounded by markup or newlines.
	Group int

	// JSONPath is a gjson path that must exist in a JSON body. When
	// JSONEquals is set the value must also equal it.
	JSONPath   string
	JSONEquals string
}

// Re compiles expr into a whole-match pattern.
func Re(expr string) Pattern { return Pattern{Regex: regexp.MustCompile(expr)} }

// ReGroup compiles expr and uses capture group as the message.
func ReGroup(expr string, group int) Pattern {
	return Pattern{Regex: regexp.MustCompile(expr), Group: group}
}

// Match reports whether content satisfies p and returns the raw message.
func (p Pattern) Match(content string) (string, bool) {
	if p.JSONPath != "" {
		if !gjson.Valid(content) {
			return "", false
		}
		r := gjson.Get(content, p.JSONPath)
		if !r.Exists() {
			return "", false
		}
		if p.JSONEquals != "" && r.String() != p.JSONEquals {
			return "", false
		}
		return r.String(), true
	}
	if p.Regex == nil {
		return "", false
	}
	loc := p.Regex.FindStringSubmatchIndex(content)
	if loc == nil {
		return "", false
	}
	if p.Group > 0 && 2*p.Group+1 < len(loc) && loc[2*p.Group] >= 0 {
		return content[loc[2*p.Group]:loc[2*p.Group+1]], true
	}
	start, end := loc[0], loc[1]
	for start > 0 && !fragmentBoundary(content[start-1]) {
		start--
	}
	for end < len(content) && !fragmentBoundary(content[end]) {
		end++
	}
	return content[start:end], true
}

func (p Pattern) String() string {
	if p.JSONPath != "" {
		return "json:" + p.JSONPath
	}
	if p.Regex == nil {
		return ""
	}
	return p.Regex.String()
}

func fragmentBoundary(b byte) bool {
	return b == '<' || b == '>' || b == '\n'
}

// Step is one declarative unit of network interaction.
type Step struct {
	Name string
	// URL is absolute or relative to the task base URL.
	URL     string
	Handler Handler
	// ResponseURLs lists acceptable final URLs. Empty means the step URL itself.
	ResponseURLs []string
	Success      []Pattern
	Fail         *regexp.Regexp
	// Auth matches pages served when the credential is no longer accepted.
	Auth *regexp.Regexp
	// Expect is the state required to continue. The zero value is Succeeded.
	Expect State
	// BaseContent stores this step's content as the task snapshot.
	BaseContent bool
	// UseLastContent re-classifies the previous step's content without a request.
	UseLastContent bool
}

// Workflow is an ordered list of steps.
type Workflow []Step

// Assemble prepends the credential-acquisition steps when no credential is held.
func Assemble(credential string, acquire, action []Step) Workflow {
	wf := make(Workflow, 0, len(acquire)+len(action))
	if credential == "" {
		wf = append(wf, acquire...)
	}
	return append(wf, action...)
}
