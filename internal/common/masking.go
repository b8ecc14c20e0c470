package common

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

const maskedValue = "***MASKED***"

// SensitivePattern represents a pattern to detect and mask sensitive information
type SensitivePattern struct {
	Name        string         // Pattern name (e.g., "password", "passkey")
	Regex       *regexp.Regexp // Regular expression to match sensitive data
	Replacement string         // Replacement string
	Keys        []string       // Attribute keys masked wholesale (case-insensitive)
}

// DefaultSensitivePatterns covers credentials that show up in check-in logs:
// session cookies, tracker passkeys and login form passwords.
var DefaultSensitivePatterns = []SensitivePattern{
	{
		Name:        "cookie",
		Regex:       regexp.MustCompile(`(?i)\b(c_secure_pass|c_secure_uid|c_secure_login|passhash|session_?id|sessid|sid|remember_token)=([^;\s]+)`),
		Replacement: "${1}=" + maskedValue,
		Keys:        []string{"cookie", "credential", "set-cookie"},
	},
	{
		Name:        "passkey",
		Regex:       regexp.MustCompile(`(?i)\b(passkey|authkey|torrent_pass)=([0-9a-z]+)`),
		Replacement: "${1}=" + maskedValue,
		Keys:        []string{"passkey", "authkey"},
	},
	{
		Name:        "password",
		Regex:       regexp.MustCompile(`(?i)(password|passwd|pwd)["'\s]*[:=]["'\s]*([^"',}\]\s&]+)`),
		Replacement: "${1}=" + maskedValue,
		Keys:        []string{"password", "passwd", "pwd"},
	},
	{
		Name:        "token",
		Regex:       regexp.MustCompile(`(?i)\b(token|api[_-]?key)["'\s]*[:=]["'\s]*([^"',}\]\s&]+)`),
		Replacement: "${1}=" + maskedValue,
		Keys:        []string{"token", "api_key", "uuid"},
	},
	{
		Name:        "bearer_token",
		Regex:       regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-._~+/]+=*`),
		Replacement: "Bearer " + maskedValue,
		Keys:        []string{"authorization"},
	},
}

// Masker handles masking of sensitive information in logs
type Masker struct {
	patterns []SensitivePattern
	enabled  bool
}

// NewMasker creates a new masker with default patterns
func NewMasker() *Masker {
	return &Masker{
		patterns: DefaultSensitivePatterns,
		enabled:  true,
	}
}

// SetEnabled enables or disables masking
func (m *Masker) SetEnabled(enabled bool) {
	m.enabled = enabled
}

// IsEnabled returns whether masking is enabled
func (m *Masker) IsEnabled() bool {
	return m.enabled
}

// AddPattern adds a new sensitive pattern. A nil Regex is derived from Keys.
func (m *Masker) AddPattern(pattern SensitivePattern) {
	if pattern.Regex == nil && len(pattern.Keys) > 0 {
		quoted := make([]string, len(pattern.Keys))
		for i, k := range pattern.Keys {
			quoted[i] = regexp.QuoteMeta(k)
		}
		keyPattern := strings.Join(quoted, "|")
		pattern.Regex = regexp.MustCompile(fmt.Sprintf(`(?i)\b(%s)\s*[:=]\s*['"]?([^'",;\s}\]]+)['"]?`, keyPattern))
		if pattern.Replacement == "" {
			pattern.Replacement = "${1}=" + maskedValue
		}
	}
	m.patterns = append(append([]SensitivePattern(nil), m.patterns...), pattern)
}

// MaskString masks sensitive information in a string
func (m *Masker) MaskString(input string) string {
	if !m.enabled {
		return input
	}
	result := input
	for _, pattern := range m.patterns {
		if pattern.Regex == nil {
			continue
		}
		result = pattern.Regex.ReplaceAllString(result, pattern.Replacement)
	}
	return result
}

// MaskValue masks value entirely when key is sensitive, otherwise applies patterns.
func (m *Masker) MaskValue(key, value string) string {
	if !m.enabled {
		return value
	}
	if value != "" && m.sensitiveKey(key) {
		return maskedValue
	}
	return m.MaskString(value)
}

func (m *Masker) sensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, pattern := range m.patterns {
		for _, k := range pattern.Keys {
			if lowerKey == k {
				return true
			}
		}
	}
	return false
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr hook.
func (m *Masker) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if !m.enabled {
		return a
	}
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, m.MaskValue(a.Key, a.Value.String()))
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, m.MaskString(err.Error()))
		}
	}
	return a
}
