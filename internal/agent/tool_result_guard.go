package agent

import (
	"regexp"
	"strings"
)

// DefaultMaxToolResultSize is 64KB. Nothing applies it automatically: a
// ToolResultGuard truncates only at its own MaxChars.
const DefaultMaxToolResultSize = 64 * 1024

// builtinSecretPatterns catches common secret shapes before a tool result
// is persisted to a session file.
var builtinSecretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*['"]?[\w-]{20,}['"]?`),
	regexp.MustCompile(`(?i)bearer\s+[\w-\.]+`),
	regexp.MustCompile(`(?i)(aws|amazon).*?(key|secret|token)\s*[:=]\s*['"]?[\w/+=]{20,}['"]?`),
	regexp.MustCompile(`(?i)(password|passwd|secret|token)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`),
	regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
}

// ToolResultGuard redacts a tool_result body before it is written into
// session history, independent of the permission decision that allowed
// the call in the first place.
type ToolResultGuard struct {
	MaxChars        int
	Denylist        []string // tool name patterns always fully redacted
	RedactPatterns  []string // extra regexps, applied after the builtins
	RedactionText   string
	TruncateSuffix  string
	SanitizeSecrets bool
}

func (g ToolResultGuard) active() bool {
	return g.MaxChars > 0 || len(g.Denylist) > 0 || len(g.RedactPatterns) > 0 || g.SanitizeSecrets
}

// Apply redacts/truncates content produced by toolName. Called once per
// tool_result before it is appended to session history (spec §4.6 step
// 3.5 persists after tool results — this runs just before that append).
func (g ToolResultGuard) Apply(toolName, content string) string {
	if !g.active() {
		return content
	}

	redaction := strings.TrimSpace(g.RedactionText)
	if redaction == "" {
		redaction = "[REDACTED]"
	}
	truncateSuffix := strings.TrimSpace(g.TruncateSuffix)
	if truncateSuffix == "" {
		truncateSuffix = "...[truncated]"
	}

	if len(g.Denylist) > 0 && matchesToolPatterns(g.Denylist, toolName) {
		return redaction
	}

	if g.SanitizeSecrets {
		for _, re := range builtinSecretPatterns {
			content = re.ReplaceAllString(content, redaction)
		}
	}

	for _, pattern := range g.RedactPatterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		content = re.ReplaceAllString(content, redaction)
	}

	if g.MaxChars > 0 && len(content) > g.MaxChars {
		content = content[:g.MaxChars] + truncateSuffix
	}

	return content
}

// matchesToolPatterns reports whether toolName matches any of patterns,
// where a pattern is either an exact name or a "prefix*" glob.
func matchesToolPatterns(patterns []string, toolName string) bool {
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.HasSuffix(p, "*") {
			if strings.HasPrefix(toolName, strings.TrimSuffix(p, "*")) {
				return true
			}
			continue
		}
		if p == toolName {
			return true
		}
	}
	return false
}
