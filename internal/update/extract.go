package update

import (
	"regexp"
	"strings"
	"sync"
)

var (
	fieldPatternsMu sync.Mutex
	fieldPatterns   = map[string]*regexp.Regexp{}
)

func fieldPattern(key string) *regexp.Regexp {
	fieldPatternsMu.Lock()
	defer fieldPatternsMu.Unlock()
	re, ok := fieldPatterns[key]
	if !ok {
		re = regexp.MustCompile(`"` + regexp.QuoteMeta(key) + `"\s*:\s*"([^"]+)"`)
		fieldPatterns[key] = re
	}
	return re
}

// extractField returns the first `"key": "value"` string in body, scanning
// left to right regardless of nesting. Literal \r\n and \n escapes in the
// value become real newlines.
func extractField(body, key string) (string, bool) {
	m := fieldPattern(key).FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return unescapeNewlines(m[1]), true
}

// extractAllFields returns every raw value for key in document order.
func extractAllFields(body, key string) []string {
	matches := fieldPattern(key).FindAllStringSubmatch(body, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

func unescapeNewlines(s string) string {
	s = strings.ReplaceAll(s, `\r\n`, "\n")
	return strings.ReplaceAll(s, `\n`, "\n")
}
